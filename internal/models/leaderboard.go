package models

import (
	"time"

	"github.com/google/uuid"
)

// PeriodType identifies the time window a leaderboard entry covers
type PeriodType string

const (
	PeriodWeekly  PeriodType = "weekly"
	PeriodAllTime PeriodType = "all_time"
)

// LeaderboardCategory identifies what a leaderboard entry scores
type LeaderboardCategory string

const (
	CategoryDroppers      LeaderboardCategory = "droppers"
	CategoryReceivers     LeaderboardCategory = "receivers"
	CategoryStreakMasters LeaderboardCategory = "streak_masters"
)

// LeaderboardEntry is a per-user score snapshot for one period and
// category. The composite unique index makes recomputation an upsert:
// exactly one row per (user, period type, category, period start).
type LeaderboardEntry struct {
	ID          uuid.UUID           `gorm:"type:uuid;primary_key" json:"id"`
	UserID      uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_leaderboard_key" json:"user_id"`
	User        User                `gorm:"foreignKey:UserID" json:"-"`
	PeriodType  PeriodType          `gorm:"type:varchar(20);not null;uniqueIndex:idx_leaderboard_key" json:"period_type"`
	Category    LeaderboardCategory `gorm:"type:varchar(30);not null;uniqueIndex:idx_leaderboard_key" json:"category"`
	Score       int64               `gorm:"not null" json:"score"`
	Rank        *int                `json:"rank,omitempty"`
	PeriodStart time.Time           `gorm:"not null;uniqueIndex:idx_leaderboard_key" json:"period_start"`
	PeriodEnd   time.Time           `gorm:"not null" json:"period_end"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}
