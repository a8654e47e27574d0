package ui

import (
	"time"

	"github.com/rovshanmuradov/bonk-keeper/internal/orchestrator"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/models"
)

// Tea message types for dashboard updates

// tickMsg schedules the next poll.
type tickMsg time.Time

// SnapshotMsg carries one read of the mirror.
type SnapshotMsg struct {
	Counts     map[string]int64
	Winners    []*models.Winner
	Runs       []*models.RunHistory
	Activities []*models.Activity
	At         time.Time
}

// BatchDoneMsg reports a batch triggered from the dashboard.
type BatchDoneMsg struct {
	Summary *orchestrator.Summary
	Err     error
}

// ErrorMsg represents error conditions
type ErrorMsg struct {
	Error error
	Title string
}
