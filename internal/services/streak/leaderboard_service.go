package streak

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/karmadrop/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// allTimePeriodEnd is the sentinel end for the all_time period
var allTimePeriodEnd = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// LeaderboardService derives activity streaks from completed drops and
// maintains per-period, per-category leaderboard scores
type LeaderboardService struct {
	db *gorm.DB
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{db: db}
}

// WeekStart returns the start of the calendar week (Monday 00:00 UTC)
// containing the given time
func WeekStart(now time.Time) time.Time {
	day := dateOf(now)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// PeriodWindow returns the [start, end) window for a period type
func PeriodWindow(period models.PeriodType, now time.Time) (time.Time, time.Time) {
	if period == models.PeriodWeekly {
		start := WeekStart(now)
		return start, start.AddDate(0, 0, 7)
	}
	return time.Unix(0, 0).UTC(), allTimePeriodEnd
}

// sentEventTimes loads the timestamps of a user's completed drops,
// oldest-first. These are the activity events streaks derive from.
func (s *LeaderboardService) sentEventTimes(userID uuid.UUID) ([]time.Time, error) {
	var events []time.Time
	err := s.db.Model(&models.Drop{}).
		Where("sender_id = ? AND status = ?", userID, models.DropStatusCompleted).
		Order("updated_at asc").
		Pluck("updated_at", &events).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load activity events: %v", models.ErrDependencyUnavailable, err)
	}
	return events, nil
}

// CurrentStreak returns the user's current consecutive-day streak
func (s *LeaderboardService) CurrentStreak(userID uuid.UUID) (int, error) {
	events, err := s.sentEventTimes(userID)
	if err != nil {
		return 0, err
	}
	return CalculateStreak(events, time.Now().UTC()), nil
}

// UserLongestStreak returns the user's longest streak on record
func (s *LeaderboardService) UserLongestStreak(userID uuid.UUID) (int, error) {
	events, err := s.sentEventTimes(userID)
	if err != nil {
		return 0, err
	}
	return LongestStreak(events), nil
}

// UpdateUserLeaderboard recomputes the user's weekly and all-time
// scores and upserts one entry per (period, category). Recomputation
// is idempotent; the unique key on (user, period type, category,
// period start) guarantees replacement, never duplication.
func (s *LeaderboardService) UpdateUserLeaderboard(userID uuid.UUID) error {
	now := time.Now().UTC()

	events, err := s.sentEventTimes(userID)
	if err != nil {
		return err
	}

	weekStart, weekEnd := PeriodWindow(models.PeriodWeekly, now)
	allStart, allEnd := PeriodWindow(models.PeriodAllTime, now)

	var weeklySent int64
	for _, e := range events {
		if !e.Before(weekStart) && e.Before(weekEnd) {
			weeklySent++
		}
	}

	var received, weeklyReceived int64
	err = s.db.Model(&models.Drop{}).
		Where("receiver_id = ? AND status = ?", userID, models.DropStatusCompleted).
		Count(&received).Error
	if err != nil {
		return fmt.Errorf("%w: failed to count received drops: %v", models.ErrDependencyUnavailable, err)
	}
	err = s.db.Model(&models.Drop{}).
		Where("receiver_id = ? AND status = ? AND updated_at >= ? AND updated_at < ?",
			userID, models.DropStatusCompleted, weekStart, weekEnd).
		Count(&weeklyReceived).Error
	if err != nil {
		return fmt.Errorf("%w: failed to count weekly received drops: %v", models.ErrDependencyUnavailable, err)
	}

	current := CalculateStreak(events, now)
	longest := LongestStreak(events)

	type scored struct {
		period   models.PeriodType
		category models.LeaderboardCategory
		score    int64
		start    time.Time
		end      time.Time
	}
	scores := []scored{
		{models.PeriodWeekly, models.CategoryDroppers, weeklySent, weekStart, weekEnd},
		{models.PeriodAllTime, models.CategoryDroppers, int64(len(events)), allStart, allEnd},
		{models.PeriodWeekly, models.CategoryReceivers, weeklyReceived, weekStart, weekEnd},
		{models.PeriodAllTime, models.CategoryReceivers, received, allStart, allEnd},
		{models.PeriodWeekly, models.CategoryStreakMasters, int64(current), weekStart, weekEnd},
		{models.PeriodAllTime, models.CategoryStreakMasters, int64(longest), allStart, allEnd},
	}

	for _, sc := range scores {
		if err := s.upsertEntry(userID, sc.period, sc.category, sc.score, sc.start, sc.end); err != nil {
			return err
		}
	}
	return nil
}

// upsertEntry replaces the entry for the exact period window. A zero
// score removes the entry instead: absence, not zero, is the unranked
// signal the UI relies on.
func (s *LeaderboardService) upsertEntry(userID uuid.UUID, period models.PeriodType, category models.LeaderboardCategory, score int64, start, end time.Time) error {
	if score == 0 {
		err := s.db.
			Where("user_id = ? AND period_type = ? AND category = ? AND period_start = ?",
				userID, period, category, start).
			Delete(&models.LeaderboardEntry{}).Error
		if err != nil {
			return fmt.Errorf("%w: failed to remove empty leaderboard entry: %v", models.ErrDependencyUnavailable, err)
		}
		return nil
	}

	entry := models.LeaderboardEntry{
		ID:          uuid.New(),
		UserID:      userID,
		PeriodType:  period,
		Category:    category,
		Score:       score,
		PeriodStart: start,
		PeriodEnd:   end,
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "period_type"}, {Name: "category"}, {Name: "period_start"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"score", "period_end", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("%w: failed to upsert leaderboard entry: %v", models.ErrDependencyUnavailable, err)
	}
	return nil
}

// GetUserRank returns the user's 1-based rank in the current window for
// the period/category, or nil if the user has no entry. Ties break by
// score descending then user id, so ranks are stable across calls.
func (s *LeaderboardService) GetUserRank(userID uuid.UUID, period models.PeriodType, category models.LeaderboardCategory) (*int, error) {
	start, _ := PeriodWindow(period, time.Now().UTC())

	var entry models.LeaderboardEntry
	err := s.db.
		Where("user_id = ? AND period_type = ? AND category = ? AND period_start = ?",
			userID, period, category, start).
		First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to load leaderboard entry: %v", models.ErrDependencyUnavailable, err)
	}

	var ahead int64
	err = s.db.Model(&models.LeaderboardEntry{}).
		Where("period_type = ? AND category = ? AND period_start = ?", period, category, start).
		Where("score > ? OR (score = ? AND user_id < ?)", entry.Score, entry.Score, userID).
		Count(&ahead).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to compute rank: %v", models.ErrDependencyUnavailable, err)
	}

	rank := int(ahead) + 1
	return &rank, nil
}

// GetTopPerformers returns the top-N entries by score for the current
// window of the period/category
func (s *LeaderboardService) GetTopPerformers(period models.PeriodType, category models.LeaderboardCategory, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	start, _ := PeriodWindow(period, time.Now().UTC())

	var entries []models.LeaderboardEntry
	err := s.db.
		Where("period_type = ? AND category = ? AND period_start = ?", period, category, start).
		Order("score desc, user_id asc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load top performers: %v", models.ErrDependencyUnavailable, err)
	}
	return entries, nil
}
