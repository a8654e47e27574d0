// internal/storage/models/activity.go
package models

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"
)

// Activity feed kinds.
const (
	ActivityBattleStarted = "battle_started"
	ActivityVictory       = "victory"
	ActivityFinalized     = "duel_finalized"
	ActivityWithdrawn     = "liquidity_withdrawn"
	ActivityPoolCreated   = "pool_created"
	ActivityPoolFailed    = "pool_failed"
	ActivityPriceUpdate   = "price_update"
)

// Activity is one entry of the public activity feed.
type Activity struct {
	BaseModel
	PublicID  string `gorm:"uniqueIndex;not null;type:varchar(21)"`
	Mint      string `gorm:"index;type:varchar(44)"`
	Kind      string `gorm:"index;not null;type:varchar(32)"`
	Signature string `gorm:"type:varchar(88)"`
	Details   string `gorm:"type:text"`
}

// BeforeCreate assigns the public id.
func (a *Activity) BeforeCreate(_ *gorm.DB) error {
	if a.PublicID != "" {
		return nil
	}
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("generate activity id: %w", err)
	}
	a.PublicID = id
	return nil
}
