package models

import (
	"time"

	"github.com/google/uuid"
)

// AchievementUnlock records the first time a user satisfied an
// achievement condition. The composite unique index is what makes
// awarding idempotent: a duplicate insert collapses to a no-op.
type AchievementUnlock struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_achievement_unlock" json:"user_id"`
	AchievementID string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_achievement_unlock" json:"achievement_id"`
	UnlockedAt    time.Time `gorm:"not null" json:"unlocked_at"`
}
