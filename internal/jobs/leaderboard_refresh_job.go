package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/karmadrop/backend/internal/queue"
	"github.com/karmadrop/backend/internal/services/streak"
)

const (
	// LeaderboardRefreshJobType is the job type for recomputing a
	// user's leaderboard entries
	LeaderboardRefreshJobType queue.JobType = "leaderboard_refresh"
)

// LeaderboardRefreshJobPayload identifies the user to refresh
type LeaderboardRefreshJobPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

// LeaderboardRefreshJob recomputes leaderboard entries for one user
type LeaderboardRefreshJob struct {
	queue          queue.QueueInterface
	leaderboardSvc *streak.LeaderboardService
}

// NewLeaderboardRefreshJob creates a new leaderboard refresh job handler
func NewLeaderboardRefreshJob(q queue.QueueInterface, leaderboardSvc *streak.LeaderboardService) *LeaderboardRefreshJob {
	return &LeaderboardRefreshJob{queue: q, leaderboardSvc: leaderboardSvc}
}

// RegisterLeaderboardRefreshJobHandlers registers the refresh job handler
func RegisterLeaderboardRefreshJobHandlers(q queue.QueueInterface, leaderboardSvc *streak.LeaderboardService) {
	handler := NewLeaderboardRefreshJob(q, leaderboardSvc)
	q.RegisterHandler(LeaderboardRefreshJobType, func(ctx context.Context, job queue.Job) (interface{}, error) {
		return nil, handler.ProcessLeaderboardRefresh(ctx, &job)
	})
}

// EnqueueLeaderboardRefreshJob enqueues a refresh for one user
func (j *LeaderboardRefreshJob) EnqueueLeaderboardRefreshJob(userID uuid.UUID) error {
	_, err := j.queue.EnqueueJob(LeaderboardRefreshJobType, LeaderboardRefreshJobPayload{UserID: userID})
	return err
}

// ProcessLeaderboardRefresh recomputes one user's entries. The upsert
// is idempotent, so replays and overlapping refreshes are harmless.
func (j *LeaderboardRefreshJob) ProcessLeaderboardRefresh(ctx context.Context, job *queue.Job) error {
	var payload LeaderboardRefreshJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal leaderboard refresh payload: %w", err)
	}
	return j.leaderboardSvc.UpdateUserLeaderboard(payload.UserID)
}
