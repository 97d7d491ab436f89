package progression

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/karmadrop/backend/internal/models"
	"github.com/karmadrop/backend/internal/services/notification"
	"gorm.io/gorm/clause"
)

// UserStats is the snapshot achievement conditions evaluate against
type UserStats struct {
	DropsSent     int64
	DropsReceived int64
	CurrentStreak int
	LongestStreak int
	Level         int
	TotalXP       int64
}

// Achievement is one entry of the fixed catalog: an id, a display
// name, a pure predicate over UserStats, and a fixed XP reward
type Achievement struct {
	ID          string
	Name        string
	Description string
	XPReward    int64
	Condition   func(stats UserStats) bool
}

// Catalog is the fixed, ordered achievement catalog
var Catalog = []Achievement{
	{
		ID:          "first_drop",
		Name:        "First Drop",
		Description: "Complete your first drop",
		XPReward:    50,
		Condition:   func(s UserStats) bool { return s.DropsSent >= 1 },
	},
	{
		ID:          "ten_drops",
		Name:        "Making It Rain",
		Description: "Complete 10 drops",
		XPReward:    100,
		Condition:   func(s UserStats) bool { return s.DropsSent >= 10 },
	},
	{
		ID:          "fifty_drops",
		Name:        "Drop Machine",
		Description: "Complete 50 drops",
		XPReward:    300,
		Condition:   func(s UserStats) bool { return s.DropsSent >= 50 },
	},
	{
		ID:          "first_received",
		Name:        "On The Receiving End",
		Description: "Receive your first drop",
		XPReward:    50,
		Condition:   func(s UserStats) bool { return s.DropsReceived >= 1 },
	},
	{
		ID:          "week_streak",
		Name:        "Seven In A Row",
		Description: "Keep a 7-day activity streak",
		XPReward:    200,
		Condition:   func(s UserStats) bool { return s.CurrentStreak >= 7 || s.LongestStreak >= 7 },
	},
	{
		ID:          "month_streak",
		Name:        "Unstoppable",
		Description: "Keep a 30-day activity streak",
		XPReward:    500,
		Condition:   func(s UserStats) bool { return s.CurrentStreak >= 30 || s.LongestStreak >= 30 },
	},
	{
		ID:          "level_five",
		Name:        "Halfway Up",
		Description: "Reach level 5",
		XPReward:    150,
		Condition:   func(s UserStats) bool { return s.Level >= 5 },
	},
	{
		ID:          "level_ten",
		Name:        "Top Of The Curve",
		Description: "Reach level 10",
		XPReward:    500,
		Condition:   func(s UserStats) bool { return s.Level >= 10 },
	},
}

// CheckAchievements evaluates every catalog condition against the
// user's current stats and awards any newly satisfied achievement.
// Conditions are evaluated independently: one failing award does not
// stop the rest. Returns the ids unlocked by this pass.
func (s *ProgressionService) CheckAchievements(ctx context.Context, userID uuid.UUID) ([]string, error) {
	stats, err := s.collectStats(userID)
	if err != nil {
		return nil, err
	}

	var unlocked []string
	var errs []error
	for _, a := range Catalog {
		if !a.Condition(*stats) {
			continue
		}

		isNew, err := s.awardAchievement(ctx, userID, a)
		if err != nil {
			log.Printf("achievement %s check failed for user %s: %v", a.ID, userID, err)
			errs = append(errs, err)
			continue
		}
		if isNew {
			unlocked = append(unlocked, a.ID)
		}
	}

	return unlocked, errors.Join(errs...)
}

// awardAchievement unlocks an achievement exactly once. The unique
// constraint on (user_id, achievement_id) is the arbiter: a duplicate
// insert collapses to a no-op with no XP and no notification.
func (s *ProgressionService) awardAchievement(ctx context.Context, userID uuid.UUID, a Achievement) (bool, error) {
	unlock := models.AchievementUnlock{
		ID:            uuid.New(),
		UserID:        userID,
		AchievementID: a.ID,
		UnlockedAt:    time.Now().UTC(),
	}

	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
		DoNothing: true,
	}).Create(&unlock)
	if res.Error != nil {
		return false, fmt.Errorf("%w: failed to record achievement unlock: %v", models.ErrDependencyUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		// Already unlocked
		return false, nil
	}

	if _, err := s.AwardXP(ctx, userID, a.XPReward, "achievement:"+a.ID); err != nil {
		return true, err
	}

	s.notifier.Notify(ctx, notification.Event{
		Type:    notification.EventAchievementUnlocked,
		UserID:  userID,
		Title:   a.Name,
		Message: fmt.Sprintf("Achievement unlocked: %s (+%d XP)", a.Description, a.XPReward),
	})
	return true, nil
}

// collectStats builds the stats snapshot conditions evaluate against
func (s *ProgressionService) collectStats(userID uuid.UUID) (*UserStats, error) {
	var sent, received int64
	err := s.db.Model(&models.Drop{}).
		Where("sender_id = ? AND status = ?", userID, models.DropStatusCompleted).
		Count(&sent).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count sent drops: %v", models.ErrDependencyUnavailable, err)
	}
	err = s.db.Model(&models.Drop{}).
		Where("receiver_id = ? AND status = ?", userID, models.DropStatusCompleted).
		Count(&received).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count received drops: %v", models.ErrDependencyUnavailable, err)
	}

	current, err := s.leaderboardSvc.CurrentStreak(userID)
	if err != nil {
		return nil, err
	}
	longest, err := s.leaderboardSvc.UserLongestStreak(userID)
	if err != nil {
		return nil, err
	}

	state, err := s.getOrCreateState(userID)
	if err != nil {
		return nil, err
	}

	return &UserStats{
		DropsSent:     sent,
		DropsReceived: received,
		CurrentStreak: current,
		LongestStreak: longest,
		Level:         state.Level,
		TotalXP:       state.TotalXP,
	}, nil
}

// AchievementView is one catalog entry annotated with unlock status
type AchievementView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	XPReward    int64      `json:"xp_reward"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

// GetUserAchievements returns the full catalog with each entry's
// unlocked flag and timestamp. Locked achievements still appear.
func (s *ProgressionService) GetUserAchievements(userID uuid.UUID) ([]AchievementView, error) {
	var unlocks []models.AchievementUnlock
	err := s.db.Where("user_id = ?", userID).Find(&unlocks).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load achievement unlocks: %v", models.ErrDependencyUnavailable, err)
	}

	unlockedAt := make(map[string]time.Time, len(unlocks))
	for _, u := range unlocks {
		unlockedAt[u.AchievementID] = u.UnlockedAt
	}

	views := make([]AchievementView, 0, len(Catalog))
	for _, a := range Catalog {
		view := AchievementView{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			XPReward:    a.XPReward,
		}
		if at, ok := unlockedAt[a.ID]; ok {
			view.Unlocked = true
			t := at
			view.UnlockedAt = &t
		}
		views = append(views, view)
	}
	return views, nil
}
