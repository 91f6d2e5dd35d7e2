package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"edms/config"
	"edms/services"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	criticalOnly = flag.Bool("critical", false, "Only print critical items")
	asJSON       = flag.Bool("json", false, "Print the raw snapshot as JSON")
)

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// Only the Firebase settings are needed here, so skip the full config validation
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
	}

	cfg := &config.Config{
		FirebaseDbUrl:              os.Getenv("FIREBASE_DB_URL"),
		FirebaseServiceAccountJSON: os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"),
	}
	if cfg.FirebaseDbUrl == "" || cfg.FirebaseServiceAccountJSON == "" {
		logger.Fatal("FIREBASE_DB_URL and FIREBASE_SERVICE_ACCOUNT_JSON must be set")
	}

	firebaseService, err := services.NewFirebaseService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Firebase service", zap.Error(err))
	}
	defer firebaseService.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snapshot, err := firebaseService.GetLatestSnapshot(ctx)
	if err != nil {
		logger.Fatal("Failed to read snapshot", zap.Error(err))
	}

	items := snapshot.Items
	if *criticalOnly {
		items = snapshot.Critical()
	}

	if *asJSON {
		snapshot.Items = items
		out, _ := json.MarshalIndent(snapshot, "", "  ")
		fmt.Println(string(out))
		return
	}

	critical, warning := snapshot.Counts()
	fmt.Printf("Pass %s at %s\n", snapshot.PassID, snapshot.GeneratedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Critical: %d  Warning: %d\n", critical, warning)
	fmt.Println("---")

	for _, item := range items {
		serial := item.SerialNumber
		if serial == "" {
			serial = "-"
		}
		fmt.Printf("[%-8s] #%d %s (room %s, SN %s): %s\n",
			item.Severity, item.DeviceID, item.TypeName, item.RoomCode, serial, item.Label)
	}
}
