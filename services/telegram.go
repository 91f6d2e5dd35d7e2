package services

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"edms/config"
	"edms/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// telegramSender is the part of *tgbotapi.BotAPI used to deliver messages
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramService struct {
	bot            telegramSender
	chatID         int64
	cooldown       time.Duration
	lastAlertTimes map[string]time.Time // Track last alert time per device and reason
	mu             sync.Mutex
	logger         *zap.Logger
	now            func() time.Time
}

func NewTelegramService(cfg *config.Config, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	ts := newTelegramService(bot, chatID, cfg.AlertCooldown, logger)

	// Test Telegram connection with retry
	if err := ts.testConnection(bot); err != nil {
		logger.Error("Telegram connection test failed", zap.Error(err))
		return nil, fmt.Errorf("telegram connection test failed: %w", err)
	}

	return ts, nil
}

func newTelegramService(bot telegramSender, chatID int64, cooldown time.Duration, logger *zap.Logger) *TelegramService {
	return &TelegramService{
		bot:            bot,
		chatID:         chatID,
		cooldown:       cooldown,
		lastAlertTimes: make(map[string]time.Time),
		logger:         logger,
		now:            time.Now,
	}
}

// testConnection tests Telegram connection with retry logic
func (ts *TelegramService) testConnection(bot *tgbotapi.BotAPI) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ts.logger.Info("Testing Telegram connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		_, err := bot.GetMe()
		if err == nil {
			ts.logger.Info("Telegram connection successful")
			return nil
		}

		ts.logger.Warn("Telegram connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Telegram after %d attempts", maxRetries)
}

func (ts *TelegramService) Name() string { return "telegram" }

// Notify sends a digest of every summary item not alerted within the cooldown.
// Large digests go out as several messages; items count as alerted once the
// message carrying them was delivered.
func (ts *TelegramService) Notify(_ context.Context, summary *models.NotificationSummary) error {
	items := ts.unthrottled(summary.Items)
	if len(items) == 0 {
		ts.logger.Debug("Telegram digest suppressed, nothing new",
			zap.String("pass_id", summary.PassID),
			zap.Int("items", len(summary.Items)))
		return nil
	}

	chunks := ts.formatDigest(summary, items)
	for i, chunk := range chunks {
		if err := ts.sendHTML(chunk.text); err != nil {
			return fmt.Errorf("error sending telegram digest part %d/%d: %w", i+1, len(chunks), err)
		}
		ts.markAlerted(chunk.items)
	}

	ts.logger.Info("Sent notification digest",
		zap.String("pass_id", summary.PassID),
		zap.Int("item_count", len(items)),
		zap.Int("messages", len(chunks)))
	return nil
}

func alertKey(item models.SummaryItem) string {
	return fmt.Sprintf("%d/%s", item.DeviceID, item.Reason)
}

// unthrottled drops items whose device and reason were alerted within the cooldown
func (ts *TelegramService) unthrottled(items []models.SummaryItem) []models.SummaryItem {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	var fresh []models.SummaryItem
	for _, item := range items {
		last, exists := ts.lastAlertTimes[alertKey(item)]
		if exists && now.Sub(last) < ts.cooldown {
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh
}

func (ts *TelegramService) markAlerted(items []models.SummaryItem) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	for _, item := range items {
		ts.lastAlertTimes[alertKey(item)] = now
	}
}

// telegramMessageLimit is the sendMessage text limit. Lengths are measured in
// bytes, which never undercounts characters.
const telegramMessageLimit = 4096

type digestChunk struct {
	text  string
	items []models.SummaryItem
}

// formatDigest creates mobile-friendly digest messages, each within the Telegram limit
func (ts *TelegramService) formatDigest(summary *models.NotificationSummary, items []models.SummaryItem) []digestChunk {
	critical, warning := summary.Counts()

	var header strings.Builder
	header.WriteString("🚨 <b>EDMS DEVICE NOTIFICATIONS</b> 🚨\n\n")
	header.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s\n", summary.GeneratedAt.Format("2006-01-02 15:04:05")))
	if summary.Filter.BuildingCode != "" {
		header.WriteString(fmt.Sprintf("🏢 <b>Building:</b> %s\n", html.EscapeString(summary.Filter.BuildingCode)))
	}
	header.WriteString(fmt.Sprintf("🔴 Critical: %d   🟡 Warning: %d\n\n", critical, warning))

	footer := "\n🟡 <b>Status:</b> UPCOMING WORK"
	if critical > 0 {
		footer = "\n🔴 <b>Status:</b> ATTENTION REQUIRED"
	}
	const continued = "🚨 <b>EDMS DEVICE NOTIFICATIONS</b> (continued)\n\n"

	var (
		chunks []digestChunk
		body   strings.Builder
		inBody []models.SummaryItem
	)
	prefix := header.String()

	flush := func(last bool) {
		text := prefix + body.String()
		if last {
			text += footer
		}
		chunks = append(chunks, digestChunk{text: text, items: inBody})
		prefix = continued
		body.Reset()
		inBody = nil
	}

	for _, item := range items {
		block := formatDigestItem(item)
		if len(inBody) > 0 {
			block = "\n" + block
		}
		if len(inBody) > 0 && len(prefix)+body.Len()+len(block)+len(footer) > telegramMessageLimit {
			flush(false)
			block = formatDigestItem(item)
		}
		body.WriteString(block)
		inBody = append(inBody, item)
	}
	flush(true)

	return chunks
}

func formatDigestItem(item models.SummaryItem) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s <b>%s</b>\n", severityMarker(item.Severity), html.EscapeString(item.TypeName)))
	sb.WriteString(fmt.Sprintf("   ├ Room: %s", html.EscapeString(item.RoomCode)))
	if item.SerialNumber != "" {
		sb.WriteString(fmt.Sprintf(" · SN: <code>%s</code>", html.EscapeString(item.SerialNumber)))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("   └ %s\n", html.EscapeString(item.Label)))
	return sb.String()
}

func severityMarker(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "🔴"
	case models.SeverityWarning:
		return "🟡"
	default:
		return "⚪"
	}
}

func (ts *TelegramService) sendHTML(text string) error {
	msg := tgbotapi.NewMessage(ts.chatID, text)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	_, err := ts.bot.Send(msg)
	return err
}

// SendStartupMessage sends a message when the service starts
func (ts *TelegramService) SendStartupMessage() error {
	message := "🟢 <b>EDMS Notification Service Started</b>\n\n" +
		"📡 Polling the EDMS backend for device status\n" +
		"🤖 Telegram notifications active\n\n" +
		"✅ System is ready and operational!"

	return ts.sendHTML(message)
}

// SendBackendUnreachableAlert sends an alert when no device fetch succeeded within the timeout
func (ts *TelegramService) SendBackendUnreachableAlert(lastSuccess time.Time, downFor time.Duration, lastErr string) error {
	var sb strings.Builder

	sb.WriteString("⚠️ <b>EDMS BACKEND UNREACHABLE</b> ⚠️\n\n")
	sb.WriteString(fmt.Sprintf("🕐 <b>Last Successful Fetch:</b> %s\n", lastSuccess.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Unreachable For:</b> %s\n", formatDuration(downFor)))
	if lastErr != "" {
		sb.WriteString(fmt.Sprintf("❌ <b>Last Error:</b> <code>%s</code>\n", html.EscapeString(lastErr)))
	}
	sb.WriteString("\n💡 Device statuses shown to operators may be stale until the backend recovers.\n\n")
	sb.WriteString("🔴 <b>Status:</b> BACKEND DOWN")

	if err := ts.sendHTML(sb.String()); err != nil {
		return fmt.Errorf("error sending backend unreachable alert: %w", err)
	}

	ts.logger.Info("Sent backend unreachable alert", zap.Duration("down_for", downFor))
	return nil
}

// SendBackendRecoveryAlert sends an alert when the backend answers again
func (ts *TelegramService) SendBackendRecoveryAlert(downDuration time.Duration) error {
	var sb strings.Builder

	sb.WriteString("✅ <b>EDMS BACKEND RECOVERED</b> ✅\n\n")
	sb.WriteString(fmt.Sprintf("🕐 <b>Recovery Time:</b> %s\n", ts.now().Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Downtime:</b> %s\n\n", formatDuration(downDuration)))
	sb.WriteString("🟢 <b>Status:</b> BACKEND ONLINE")

	if err := ts.sendHTML(sb.String()); err != nil {
		return fmt.Errorf("error sending backend recovery alert: %w", err)
	}

	ts.logger.Info("Sent backend recovery alert", zap.Duration("down_duration", downDuration))
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	} else if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%d min %d sec", minutes, seconds)
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%d hr %d min", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%d days %d hr", days, hours)
}
