// internal/storage/models/run.go
package models

import "time"

// RunHistory is the summary of one keeper invocation.
type RunHistory struct {
	BaseModel
	RunName       string `gorm:"index;not null;type:varchar(50)"`
	CorrelationID string `gorm:"type:varchar(36)"`
	Status        string `gorm:"not null;type:varchar(20)"`
	StartedAt     *time.Time
	CompletedAt   *time.Time
	Scanned       int `gorm:"default:0"`
	Checked       int `gorm:"default:0"`
	SuccessCount  int `gorm:"default:0"`
	ErrorCount    int `gorm:"default:0"`
	Skipped       int `gorm:"default:0"`
	Reconciled    int `gorm:"default:0"`
	NotStarted    int `gorm:"default:0"`
	// AverageExecutionTime is the mean per-mint duration in milliseconds.
	AverageExecutionTime float64 `gorm:"type:decimal(10,3)"`
}
