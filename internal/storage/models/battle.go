// internal/storage/models/battle.go
package models

import "time"

const (
	BattleActive    = "active"
	BattleCompleted = "completed"
)

// Battle is one pairing of two tokens.
type Battle struct {
	BaseModel
	TokenAMint     string `gorm:"index;not null;type:varchar(44)"`
	TokenBMint     string `gorm:"index;not null;type:varchar(44)"`
	Status         string `gorm:"index;not null;type:varchar(20)"`
	WinnerMint     string `gorm:"type:varchar(44)"`
	StartedAt      *time.Time
	EndedAt        *time.Time
	StartSignature string `gorm:"type:varchar(88)"`
	EndSignature   string `gorm:"type:varchar(88)"`
}
