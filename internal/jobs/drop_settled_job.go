package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/karmadrop/backend/internal/models"
	"github.com/karmadrop/backend/internal/queue"
	"github.com/karmadrop/backend/internal/services/progression"
	"github.com/karmadrop/backend/internal/services/streak"
	"gorm.io/gorm"
)

const (
	// DropSettledJobType is the job type for post-settlement side effects
	DropSettledJobType queue.JobType = "drop_settled"

	// dropCompletedXP is the XP earned for each completed drop
	dropCompletedXP = 25
	// ReasonDropCompleted tags the XP award for a completed drop
	ReasonDropCompleted = "drop_completed"
)

// DropSettledJobPayload identifies the settled drop
type DropSettledJobPayload struct {
	DropID    uuid.UUID `json:"drop_id"`
	Succeeded bool      `json:"succeeded"`
}

// DropSettledJob applies the progression side effects of a settled
// drop: XP for the sender, leaderboard recomputation and achievement
// checks for both parties
type DropSettledJob struct {
	db             *gorm.DB
	queue          queue.QueueInterface
	progressionSvc *progression.ProgressionService
	leaderboardSvc *streak.LeaderboardService
}

// NewDropSettledJob creates a new drop settled job handler
func NewDropSettledJob(db *gorm.DB, q queue.QueueInterface, progressionSvc *progression.ProgressionService, leaderboardSvc *streak.LeaderboardService) *DropSettledJob {
	return &DropSettledJob{
		db:             db,
		queue:          q,
		progressionSvc: progressionSvc,
		leaderboardSvc: leaderboardSvc,
	}
}

// RegisterDropSettledJobHandlers registers the drop settled job handler
func RegisterDropSettledJobHandlers(q queue.QueueInterface, db *gorm.DB, progressionSvc *progression.ProgressionService, leaderboardSvc *streak.LeaderboardService) {
	handler := NewDropSettledJob(db, q, progressionSvc, leaderboardSvc)
	q.RegisterHandler(DropSettledJobType, func(ctx context.Context, job queue.Job) (interface{}, error) {
		return nil, handler.ProcessDropSettled(ctx, &job)
	})
}

// EnqueueDropSettled enqueues the side effects of a settlement
func EnqueueDropSettled(q queue.QueueInterface, dropID uuid.UUID, succeeded bool) error {
	_, err := q.EnqueueJob(DropSettledJobType, DropSettledJobPayload{
		DropID:    dropID,
		Succeeded: succeeded,
	})
	return err
}

// ProcessDropSettled processes a single settlement
func (j *DropSettledJob) ProcessDropSettled(ctx context.Context, job *queue.Job) error {
	var payload DropSettledJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal drop settled job payload: %w", err)
	}

	var drop models.Drop
	if err := j.db.First(&drop, "id = ?", payload.DropID).Error; err != nil {
		return fmt.Errorf("failed to get settled drop: %w", err)
	}

	if !payload.Succeeded {
		// A failed settlement changes no scores, but the sender's
		// pending view should reflect reality on next refresh
		return j.leaderboardSvc.UpdateUserLeaderboard(drop.SenderID)
	}

	if _, err := j.progressionSvc.AwardXP(ctx, drop.SenderID, dropCompletedXP, ReasonDropCompleted); err != nil {
		return fmt.Errorf("failed to award completion XP: %w", err)
	}

	if err := j.leaderboardSvc.UpdateUserLeaderboard(drop.SenderID); err != nil {
		return fmt.Errorf("failed to refresh sender leaderboard: %w", err)
	}
	if err := EnqueueAchievementCheck(j.queue, drop.SenderID); err != nil {
		log.Printf("failed to enqueue achievement check for sender %s: %v", drop.SenderID, err)
	}

	if drop.ReceiverID != nil {
		if err := j.leaderboardSvc.UpdateUserLeaderboard(*drop.ReceiverID); err != nil {
			return fmt.Errorf("failed to refresh receiver leaderboard: %w", err)
		}
		if err := EnqueueAchievementCheck(j.queue, *drop.ReceiverID); err != nil {
			log.Printf("failed to enqueue achievement check for receiver %s: %v", *drop.ReceiverID, err)
		}
	}

	return nil
}
