package progression

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/karmadrop/backend/internal/models"
	"github.com/karmadrop/backend/internal/services/notification"
	"github.com/karmadrop/backend/internal/services/streak"
	"gorm.io/gorm"
)

// levelThresholds is the cumulative XP needed to reach levels 2..10.
// Level = 1 + number of thresholds at or below current XP.
var levelThresholds = []int64{100, 250, 500, 1000, 2000, 3500, 5500, 8000, 12000}

const (
	// ReasonLevelUpBonus tags the recursive bonus award a level-up triggers
	ReasonLevelUpBonus = "level_up_bonus"
	// maxAwardRetries bounds retries of the atomic XP read-modify-write
	maxAwardRetries = 3
	// maxSettleDepth bounds the level-up bonus settle loop
	maxSettleDepth = 16
)

// LevelForXP computes the level for a cumulative XP total
func LevelForXP(xp int64) int {
	level := 1
	for _, threshold := range levelThresholds {
		if xp < threshold {
			break
		}
		level++
	}
	return level
}

// XPToNextLevel returns the XP remaining until the next threshold, or 0
// at the top level
func XPToNextLevel(xp int64) int64 {
	level := LevelForXP(xp)
	if level >= MaxLevel() {
		return 0
	}
	remaining := levelThresholds[level-1] - xp
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MaxLevel is the highest level the curve reaches
func MaxLevel() int {
	return len(levelThresholds) + 1
}

// ProgressionService is the single authority for awarding XP, deriving
// levels and unlocking achievements
type ProgressionService struct {
	db             *gorm.DB
	notifier       notification.Notifier
	leaderboardSvc *streak.LeaderboardService
}

// NewProgressionService creates a new progression service
func NewProgressionService(db *gorm.DB, notifier notification.Notifier, leaderboardSvc *streak.LeaderboardService) *ProgressionService {
	return &ProgressionService{
		db:             db,
		notifier:       notifier,
		leaderboardSvc: leaderboardSvc,
	}
}

type award struct {
	amount int64
	reason string
}

// AwardXP atomically adds amount to the user's cumulative XP, appends an
// audit log row, and recomputes the level. Each level-up queues a bonus
// of newLevel x 10 XP, which is settled iteratively so a bonus that
// crosses another threshold keeps the loop going, bounded by
// maxSettleDepth. Returns the state after all awards settle.
func (s *ProgressionService) AwardXP(ctx context.Context, userID uuid.UUID, amount int64, reason string) (*models.ProgressionState, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: XP amount must be positive", models.ErrInvalidArgument)
	}

	pending := []award{{amount: amount, reason: reason}}
	var state *models.ProgressionState

	for depth := 0; len(pending) > 0; depth++ {
		if depth >= maxSettleDepth {
			return nil, fmt.Errorf("%w: level-up settle loop exceeded depth %d", models.ErrDependencyUnavailable, maxSettleDepth)
		}

		a := pending[0]
		pending = pending[1:]

		var levelBefore, levelAfter int
		var err error
		state, levelBefore, levelAfter, err = s.applyAward(userID, a)
		if err != nil {
			return nil, err
		}

		if levelAfter > levelBefore {
			pending = append(pending, award{
				amount: int64(levelAfter) * 10,
				reason: ReasonLevelUpBonus,
			})
			s.notifier.Notify(ctx, notification.Event{
				Type:    notification.EventLevelUp,
				UserID:  userID,
				Title:   fmt.Sprintf("Level %d!", levelAfter),
				Message: fmt.Sprintf("You reached level %d and earned a %d XP bonus.", levelAfter, levelAfter*10),
			})
		}
	}

	return state, nil
}

// applyAward performs one atomic read-modify-write of the user's XP.
// The write is conditional on the XP total still being what was read;
// a lost race is retried a bounded number of times. The audit log row
// is written in the same transaction as the state update so the two
// can never disagree.
func (s *ProgressionService) applyAward(userID uuid.UUID, a award) (*models.ProgressionState, int, int, error) {
	for attempt := 0; attempt < maxAwardRetries; attempt++ {
		state, err := s.getOrCreateState(userID)
		if err != nil {
			return nil, 0, 0, err
		}

		levelBefore := state.Level
		newXP := state.TotalXP + a.amount
		newLevel := LevelForXP(newXP)

		err = s.db.Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.ProgressionState{}).
				Where("user_id = ? AND total_xp = ?", userID, state.TotalXP).
				Updates(map[string]interface{}{"total_xp": newXP, "level": newLevel})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return models.ErrConflictRetryable
			}

			logEntry := models.XPAwardLog{
				ID:          uuid.New(),
				UserID:      userID,
				Delta:       a.amount,
				Reason:      a.reason,
				LevelBefore: levelBefore,
				LevelAfter:  newLevel,
			}
			return tx.Create(&logEntry).Error
		})
		if errors.Is(err, models.ErrConflictRetryable) {
			continue
		}
		if err != nil {
			return nil, 0, 0, fmt.Errorf("%w: failed to award XP: %v", models.ErrDependencyUnavailable, err)
		}

		state.TotalXP = newXP
		state.Level = newLevel
		return state, levelBefore, newLevel, nil
	}

	return nil, 0, 0, fmt.Errorf("%w: XP award lost the update race %d times", models.ErrDependencyUnavailable, maxAwardRetries)
}

// getOrCreateState loads the user's progression row, creating it on
// first award. A create race on the unique user index is treated as
// "somebody else created it" and re-read.
func (s *ProgressionService) getOrCreateState(userID uuid.UUID) (*models.ProgressionState, error) {
	var state models.ProgressionState
	err := s.db.Where("user_id = ?", userID).First(&state).Error
	if err == nil {
		return &state, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: failed to load progression state: %v", models.ErrDependencyUnavailable, err)
	}

	state = models.ProgressionState{
		ID:      uuid.New(),
		UserID:  userID,
		TotalXP: 0,
		Level:   1,
	}
	if err := s.db.Create(&state).Error; err != nil {
		// Lost the create race; the winner's row is the truth
		var existing models.ProgressionState
		if ferr := s.db.Where("user_id = ?", userID).First(&existing).Error; ferr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("%w: failed to create progression state: %v", models.ErrDependencyUnavailable, err)
	}
	return &state, nil
}

// GetProgression returns the user's current XP, level and XP to next
// level. Users with no awards yet read as level 1 with zero XP.
func (s *ProgressionService) GetProgression(userID uuid.UUID) (*ProgressionView, error) {
	state, err := s.getOrCreateState(userID)
	if err != nil {
		return nil, err
	}
	return &ProgressionView{
		UserID:   state.UserID,
		TotalXP:  state.TotalXP,
		Level:    state.Level,
		MaxLevel: MaxLevel(),
		XPToNext: XPToNextLevel(state.TotalXP),
	}, nil
}

// ProgressionView is the read model the dashboard renders
type ProgressionView struct {
	UserID   uuid.UUID `json:"user_id"`
	TotalXP  int64     `json:"total_xp"`
	Level    int       `json:"level"`
	MaxLevel int       `json:"max_level"`
	XPToNext int64     `json:"xp_to_next"`
}
