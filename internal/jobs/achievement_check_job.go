package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/karmadrop/backend/internal/queue"
	"github.com/karmadrop/backend/internal/services/progression"
)

const (
	// AchievementCheckJobType is the job type for evaluating a user's
	// achievement conditions
	AchievementCheckJobType queue.JobType = "achievement_check"
)

// AchievementCheckJobPayload identifies the user to check
type AchievementCheckJobPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

// AchievementCheckJob evaluates the achievement catalog for one user
type AchievementCheckJob struct {
	progressionSvc *progression.ProgressionService
}

// NewAchievementCheckJob creates a new achievement check job handler
func NewAchievementCheckJob(progressionSvc *progression.ProgressionService) *AchievementCheckJob {
	return &AchievementCheckJob{progressionSvc: progressionSvc}
}

// RegisterAchievementCheckJobHandlers registers the achievement check handler
func RegisterAchievementCheckJobHandlers(q queue.QueueInterface, progressionSvc *progression.ProgressionService) {
	handler := NewAchievementCheckJob(progressionSvc)
	q.RegisterHandler(AchievementCheckJobType, func(ctx context.Context, job queue.Job) (interface{}, error) {
		return handler.ProcessAchievementCheck(ctx, &job)
	})
}

// EnqueueAchievementCheck enqueues a check for one user
func EnqueueAchievementCheck(q queue.QueueInterface, userID uuid.UUID) error {
	_, err := q.EnqueueJob(AchievementCheckJobType, AchievementCheckJobPayload{UserID: userID})
	return err
}

// ProcessAchievementCheck runs one catalog pass; unlocking is
// idempotent so replays cannot double-award
func (j *AchievementCheckJob) ProcessAchievementCheck(ctx context.Context, job *queue.Job) (interface{}, error) {
	var payload AchievementCheckJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal achievement check payload: %w", err)
	}

	unlocked, err := j.progressionSvc.CheckAchievements(ctx, payload.UserID)
	if err != nil {
		return unlocked, err
	}
	return unlocked, nil
}
