package services

import (
	"testing"

	"edms/models"

	"github.com/stretchr/testify/assert"
)

func TestTransitionUpdates_KeysArePerPassDeviceAndRule(t *testing.T) {
	inspection := transitionFor(1)
	inspection.Rule = models.RuleInspection
	inspection.To = models.StatusInspectionDue

	updates := transitionUpdates([]models.StatusTransition{transitionFor(1), inspection, transitionFor(1)})

	assert.Len(t, updates, 2)
	assert.Contains(t, updates, "pass-1-1-expiry")
	assert.Contains(t, updates, "pass-1-1-inspection")
}
