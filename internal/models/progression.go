package models

import (
	"time"

	"github.com/google/uuid"
)

// ProgressionState holds a user's cumulative XP and the level derived
// from it. TotalXP only ever grows; Level is always recomputed from the
// XP curve after an award, never adjusted independently.
type ProgressionState struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"-"`
	TotalXP   int64     `gorm:"not null;default:0" json:"total_xp"`
	Level     int       `gorm:"not null;default:1" json:"level"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// XPAwardLog is the append-only audit trail of every XP grant. The sum
// of all deltas for a user must always equal that user's TotalXP.
type XPAwardLog struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Delta       int64     `gorm:"not null" json:"delta"`
	Reason      string    `gorm:"type:varchar(100);not null" json:"reason"`
	LevelBefore int       `gorm:"not null" json:"level_before"`
	LevelAfter  int       `gorm:"not null" json:"level_after"`
	CreatedAt   time.Time `json:"created_at"`
}
