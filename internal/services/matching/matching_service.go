package matching

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/karmadrop/backend/internal/config"
	"github.com/karmadrop/backend/internal/models"
	"github.com/karmadrop/backend/internal/utils"
	"gorm.io/gorm"
)

const (
	// Wait-time estimates are clamped to this range
	minWaitEstimate = 5 * time.Minute
	maxWaitEstimate = 30 * time.Minute
	// defaultWaitEstimate is used when fewer than two arrivals exist
	defaultWaitEstimate = 15 * time.Minute
	// arrivalSampleSize is the trailing window of same-amount arrivals
	// used to estimate match time
	arrivalSampleSize = 10
)

// MatchingService owns the pending -> matched -> completed/cancelled
// lifecycle of drops
type MatchingService struct {
	db             *gorm.DB
	allowSelfMatch bool
}

// NewMatchingService creates a new matching service
func NewMatchingService(db *gorm.DB, cfg config.MatchingConfig) *MatchingService {
	return &MatchingService{
		db:             db,
		allowSelfMatch: cfg.AllowSelfMatch,
	}
}

// CreateDrop creates a new pending drop for the sender
func (s *MatchingService) CreateDrop(senderID uuid.UUID, amount int64, message string) (*models.Drop, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: drop amount must be positive", models.ErrInvalidArgument)
	}

	drop := models.Drop{
		SenderID:  senderID,
		Amount:    amount,
		Message:   message,
		Status:    models.DropStatusPending,
		Reference: utils.GenerateReference("DROP"),
	}

	if err := s.db.Create(&drop).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to create drop: %v", models.ErrDependencyUnavailable, err)
	}

	return &drop, nil
}

// ListPending returns all unmatched pending drops oldest-first
func (s *MatchingService) ListPending() ([]models.Drop, error) {
	var drops []models.Drop
	err := s.db.
		Where("status = ? AND matched_drop_id IS NULL", models.DropStatusPending).
		Order("created_at asc").
		Find(&drops).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list pending drops: %v", models.ErrDependencyUnavailable, err)
	}
	return drops, nil
}

// PairDrops scans pending drops grouped by amount and pairs them in
// arrival order. Each pair is claimed in a single transaction keyed on
// both drops still being pending and unmatched; a lost claim means
// another pass got there first and the pair is simply skipped.
// Returns the number of pairs created.
func (s *MatchingService) PairDrops() (int, error) {
	pending, err := s.ListPending()
	if err != nil {
		return 0, err
	}

	buckets := make(map[int64][]models.Drop)
	var amounts []int64
	for _, d := range pending {
		if _, ok := buckets[d.Amount]; !ok {
			amounts = append(amounts, d.Amount)
		}
		buckets[d.Amount] = append(buckets[d.Amount], d)
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i] < amounts[j] })

	paired := 0
	for _, amount := range amounts {
		paired += s.pairBucket(buckets[amount])
	}
	return paired, nil
}

// pairBucket greedily pairs same-amount drops oldest-first
func (s *MatchingService) pairBucket(drops []models.Drop) int {
	paired := 0
	used := make([]bool, len(drops))

	for i := range drops {
		if used[i] {
			continue
		}
		for j := i + 1; j < len(drops); j++ {
			if used[j] {
				continue
			}
			if !s.allowSelfMatch && drops[i].SenderID == drops[j].SenderID {
				continue
			}

			err := s.claimPair(&drops[i], &drops[j])
			if errors.Is(err, models.ErrConflictRetryable) {
				// Another pairing pass claimed at least one side. Re-check
				// each, so a side that is still pending stays eligible for
				// the rest of this sweep.
				used[i] = !s.stillClaimable(drops[i].ID)
				used[j] = !s.stillClaimable(drops[j].ID)
				if used[i] {
					break
				}
				continue
			}
			if err != nil {
				return paired
			}

			used[i], used[j] = true, true
			paired++
			break
		}
	}
	return paired
}

// stillClaimable reports whether a drop is still pending and unmatched.
// A read error counts as not claimable; the next sweep will see it.
func (s *MatchingService) stillClaimable(id uuid.UUID) bool {
	var count int64
	err := s.db.Model(&models.Drop{}).
		Where("id = ? AND status = ? AND matched_drop_id IS NULL", id, models.DropStatusPending).
		Count(&count).Error
	return err == nil && count > 0
}

// claimPair atomically transitions both drops to matched with reciprocal
// references and a shared matchedAt timestamp. Each side is updated with
// a conditional write keyed on the row still being pending and unmatched;
// if either side was already claimed the whole transaction rolls back.
func (s *MatchingService) claimPair(a, b *models.Drop) error {
	matchedAt := time.Now().UTC()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := claimSide(tx, a.ID, b, matchedAt); err != nil {
			return err
		}
		return claimSide(tx, b.ID, a, matchedAt)
	})
	if err != nil {
		if errors.Is(err, models.ErrConflictRetryable) {
			return err
		}
		return fmt.Errorf("%w: failed to pair drops: %v", models.ErrDependencyUnavailable, err)
	}
	return nil
}

func claimSide(tx *gorm.DB, id uuid.UUID, other *models.Drop, matchedAt time.Time) error {
	res := tx.Model(&models.Drop{}).
		Where("id = ? AND status = ? AND matched_drop_id IS NULL", id, models.DropStatusPending).
		Updates(map[string]interface{}{
			"status":          models.DropStatusMatched,
			"matched_drop_id": other.ID,
			"receiver_id":     other.SenderID,
			"matched_at":      matchedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrConflictRetryable
	}
	return nil
}

// DropStatusResult is the drop plus its pair and, for pending drops, an
// estimated match time
type DropStatusResult struct {
	Drop             models.Drop  `json:"drop"`
	MatchedDrop      *models.Drop `json:"matched_drop,omitempty"`
	EstimatedMatchAt *time.Time   `json:"estimated_match_at,omitempty"`
}

// GetDropStatus returns the drop's current status, its paired drop if
// any, and a wait estimate for pending drops
func (s *MatchingService) GetDropStatus(dropID uuid.UUID) (*DropStatusResult, error) {
	drop, err := s.getDrop(dropID)
	if err != nil {
		return nil, err
	}

	result := &DropStatusResult{Drop: *drop}

	if drop.MatchedDropID != nil {
		var matched models.Drop
		if err := s.db.First(&matched, "id = ?", *drop.MatchedDropID).Error; err == nil {
			result.MatchedDrop = &matched
		}
	}

	if drop.Status == models.DropStatusPending {
		wait, err := s.estimateWait(drop.Amount)
		if err != nil {
			return nil, err
		}
		eta := time.Now().UTC().Add(wait)
		result.EstimatedMatchAt = &eta
	}

	return result, nil
}

// estimateWait estimates the time until a drop of the given amount is
// matched, from the average inter-arrival gap of the last
// arrivalSampleSize same-amount drops, clamped to [min, max]. With
// fewer than two arrivals there is no rate to measure and the fixed
// default applies.
func (s *MatchingService) estimateWait(amount int64) (time.Duration, error) {
	var arrivals []time.Time
	err := s.db.Model(&models.Drop{}).
		Where("amount = ?", amount).
		Order("created_at desc").
		Limit(arrivalSampleSize).
		Pluck("created_at", &arrivals).Error
	if err != nil {
		return 0, fmt.Errorf("%w: failed to sample arrivals: %v", models.ErrDependencyUnavailable, err)
	}

	if len(arrivals) < 2 {
		return defaultWaitEstimate, nil
	}

	// arrivals are newest-first; total span / gap count = average gap
	span := arrivals[0].Sub(arrivals[len(arrivals)-1])
	avg := span / time.Duration(len(arrivals)-1)

	if avg < minWaitEstimate {
		return minWaitEstimate, nil
	}
	if avg > maxWaitEstimate {
		return maxWaitEstimate, nil
	}
	return avg, nil
}

// Statistics aggregates drop counts per status and mean time-to-match
type Statistics struct {
	CountsByStatus     map[models.DropStatus]int64 `json:"counts_by_status"`
	MeanTimeToMatchSec float64                     `json:"mean_time_to_match_seconds"`
}

// GetStatistics returns aggregate counts per status and the mean
// time-to-match over all completed drops
func (s *MatchingService) GetStatistics() (*Statistics, error) {
	type statusCount struct {
		Status models.DropStatus
		Count  int64
	}
	var counts []statusCount
	err := s.db.Model(&models.Drop{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count drops: %v", models.ErrDependencyUnavailable, err)
	}

	stats := &Statistics{CountsByStatus: make(map[models.DropStatus]int64)}
	for _, c := range counts {
		stats.CountsByStatus[c.Status] = c.Count
	}

	var completed []models.Drop
	err = s.db.
		Where("status = ?", models.DropStatusCompleted).
		Find(&completed).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load completed drops: %v", models.ErrDependencyUnavailable, err)
	}

	if len(completed) > 0 {
		var total time.Duration
		for _, d := range completed {
			total += d.UpdatedAt.Sub(d.CreatedAt)
		}
		stats.MeanTimeToMatchSec = (total / time.Duration(len(completed))).Seconds()
	}

	return stats, nil
}

// UserDrops partitions a user's drops into views the dashboard renders
type UserDrops struct {
	Sent     []models.Drop `json:"sent"`
	Received []models.Drop `json:"received"`
	Pending  []models.Drop `json:"pending"`
	Matched  []models.Drop `json:"matched"`
}

// GetUserDrops partitions a user's drops into sent/received/pending/matched
func (s *MatchingService) GetUserDrops(userID uuid.UUID) (*UserDrops, error) {
	var drops []models.Drop
	err := s.db.
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at desc").
		Find(&drops).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load user drops: %v", models.ErrDependencyUnavailable, err)
	}

	result := &UserDrops{}
	for _, d := range drops {
		if d.SenderID == userID {
			result.Sent = append(result.Sent, d)
			switch d.Status {
			case models.DropStatusPending:
				result.Pending = append(result.Pending, d)
			case models.DropStatusMatched:
				result.Matched = append(result.Matched, d)
			}
		}
		if d.ReceiverID != nil && *d.ReceiverID == userID {
			result.Received = append(result.Received, d)
		}
	}
	return result, nil
}

// CancelDrop transitions a pending drop to cancelled. Only the sender
// may cancel, and only while the drop is still pending; once matching
// has claimed the drop the conditional update loses and the caller gets
// ErrInvalidState instead of racing the pairing transaction.
func (s *MatchingService) CancelDrop(dropID, requestingUserID uuid.UUID) error {
	drop, err := s.getDrop(dropID)
	if err != nil {
		return err
	}

	if drop.SenderID != requestingUserID {
		return fmt.Errorf("%w: only the sender may cancel a drop", models.ErrNotAuthorized)
	}
	if drop.Status != models.DropStatusPending {
		return fmt.Errorf("%w: drop is %s, only pending drops can be cancelled", models.ErrInvalidState, drop.Status)
	}

	res := s.db.Model(&models.Drop{}).
		Where("id = ? AND status = ?", dropID, models.DropStatusPending).
		Update("status", models.DropStatusCancelled)
	if res.Error != nil {
		return fmt.Errorf("%w: failed to cancel drop: %v", models.ErrDependencyUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		// Pairing claimed the drop between our read and the update
		return fmt.Errorf("%w: drop was matched before cancellation", models.ErrInvalidState)
	}
	return nil
}

// AmountBracket is the pending count and wait estimate for one amount
type AmountBracket struct {
	Amount        int64         `json:"amount"`
	PendingCount  int64         `json:"pending_count"`
	EstimatedWait time.Duration `json:"estimated_wait"`
}

// EstimateAmountBrackets returns, for each distinct pending amount, the
// pending count and an estimated wait. Used for UI hinting before a
// user creates a drop.
func (s *MatchingService) EstimateAmountBrackets() ([]AmountBracket, error) {
	type amountCount struct {
		Amount int64
		Count  int64
	}
	var counts []amountCount
	err := s.db.Model(&models.Drop{}).
		Select("amount, count(*) as count").
		Where("status = ? AND matched_drop_id IS NULL", models.DropStatusPending).
		Group("amount").
		Order("amount asc").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count pending amounts: %v", models.ErrDependencyUnavailable, err)
	}

	brackets := make([]AmountBracket, 0, len(counts))
	for _, c := range counts {
		wait, err := s.estimateWait(c.Amount)
		if err != nil {
			return nil, err
		}
		brackets = append(brackets, AmountBracket{
			Amount:        c.Amount,
			PendingCount:  c.Count,
			EstimatedWait: wait,
		})
	}
	return brackets, nil
}

// SettleDrop applies the payment provider's settlement outcome for the
// drop with the given reference. Success completes a matched drop;
// failure moves a pending or matched drop to failed. Returns the drop
// after the transition.
func (s *MatchingService) SettleDrop(reference string, succeeded bool, metadata models.JSON) (*models.Drop, error) {
	var drop models.Drop
	if err := s.db.First(&drop, "reference = ?", reference).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no drop with reference %s", models.ErrInvalidArgument, reference)
		}
		return nil, fmt.Errorf("%w: failed to load drop: %v", models.ErrDependencyUnavailable, err)
	}

	updates := map[string]interface{}{"metadata": metadata}
	var query *gorm.DB
	if succeeded {
		updates["status"] = models.DropStatusCompleted
		query = s.db.Model(&models.Drop{}).
			Where("id = ? AND status = ?", drop.ID, models.DropStatusMatched)
	} else {
		updates["status"] = models.DropStatusFailed
		query = s.db.Model(&models.Drop{}).
			Where("id = ? AND status IN ?", drop.ID, []models.DropStatus{models.DropStatusPending, models.DropStatusMatched})
	}

	res := query.Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("%w: failed to settle drop: %v", models.ErrDependencyUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: drop %s is %s and cannot settle", models.ErrInvalidState, drop.ID, drop.Status)
	}

	return s.getDrop(drop.ID)
}

func (s *MatchingService) getDrop(dropID uuid.UUID) (*models.Drop, error) {
	var drop models.Drop
	if err := s.db.First(&drop, "id = ?", dropID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: drop %s not found", models.ErrInvalidArgument, dropID)
		}
		return nil, fmt.Errorf("%w: failed to load drop: %v", models.ErrDependencyUnavailable, err)
	}
	return &drop, nil
}
