package jobs

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/karmadrop/backend/internal/config"
	"github.com/karmadrop/backend/internal/models"
	"github.com/karmadrop/backend/internal/queue"
	"github.com/karmadrop/backend/internal/services/matching"
	"github.com/karmadrop/backend/internal/services/progression"
	"github.com/karmadrop/backend/internal/services/streak"
	"gorm.io/gorm"
)

// RegisterJobHandlers registers every job handler with the queue
func RegisterJobHandlers(q queue.QueueInterface, db *gorm.DB, progressionSvc *progression.ProgressionService, leaderboardSvc *streak.LeaderboardService) {
	RegisterDropSettledJobHandlers(q, db, progressionSvc, leaderboardSvc)
	RegisterLeaderboardRefreshJobHandlers(q, leaderboardSvc)
	RegisterAchievementCheckJobHandlers(q, progressionSvc)
}

// StartScheduler starts the recurring jobs: the pairing sweep and the
// periodic leaderboard refresh for recently active users. Returns the
// scheduler so the caller can stop it on shutdown.
func StartScheduler(cfg config.MatchingConfig, db *gorm.DB, q queue.QueueInterface, matchingSvc *matching.MatchingService, leaderboardSvc *streak.LeaderboardService) *gocron.Scheduler {
	scheduler := gocron.NewScheduler(time.UTC)

	_, err := scheduler.Every(cfg.PairingIntervalSeconds).Seconds().Do(func() {
		paired, err := matchingSvc.PairDrops()
		if err != nil {
			log.Printf("pairing sweep failed: %v", err)
			return
		}
		if paired > 0 {
			log.Printf("pairing sweep matched %d pair(s)", paired)
		}
	})
	if err != nil {
		log.Printf("failed to schedule pairing sweep: %v", err)
	}

	refreshJob := NewLeaderboardRefreshJob(q, leaderboardSvc)
	_, err = scheduler.Every(cfg.RefreshIntervalMinutes).Minutes().Do(func() {
		refreshRecentlyActive(db, refreshJob, time.Duration(cfg.RefreshIntervalMinutes)*time.Minute)
	})
	if err != nil {
		log.Printf("failed to schedule leaderboard refresh: %v", err)
	}

	scheduler.StartAsync()
	return scheduler
}

// refreshRecentlyActive enqueues a leaderboard refresh for every user
// whose drops changed within the window
func refreshRecentlyActive(db *gorm.DB, refreshJob *LeaderboardRefreshJob, window time.Duration) {
	var userIDs []string
	since := time.Now().Add(-window)
	err := db.Model(&models.Drop{}).
		Distinct("sender_id").
		Where("updated_at >= ?", since).
		Pluck("sender_id", &userIDs).Error
	if err != nil {
		log.Printf("failed to find recently active users: %v", err)
		return
	}

	for _, id := range userIDs {
		uid, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		if err := refreshJob.EnqueueLeaderboardRefreshJob(uid); err != nil {
			log.Printf("failed to enqueue leaderboard refresh for %s: %v", id, err)
		}
	}
}
