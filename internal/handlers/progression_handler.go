package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/karmadrop/backend/internal/services/notification"
	"github.com/karmadrop/backend/internal/services/progression"
	"github.com/karmadrop/backend/internal/services/streak"
	"gorm.io/gorm"
)

// ProgressionHandler handles XP, level and achievement reads plus
// manual achievement checks
type ProgressionHandler struct {
	db             *gorm.DB
	progressionSvc *progression.ProgressionService
}

// NewProgressionHandler creates a new progression handler
func NewProgressionHandler(db *gorm.DB, notifier notification.Notifier) *ProgressionHandler {
	leaderboardSvc := streak.NewLeaderboardService(db)
	return &ProgressionHandler{
		db:             db,
		progressionSvc: progression.NewProgressionService(db, notifier, leaderboardSvc),
	}
}

// GetProgression returns the authenticated user's XP, level and XP to next level
func (h *ProgressionHandler) GetProgression(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	view, err := h.progressionSvc.GetProgression(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetAchievements returns the full catalog annotated with unlock status
func (h *ProgressionHandler) GetAchievements(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	achievements, err := h.progressionSvc.GetUserAchievements(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, achievements)
}

// CheckAchievements runs a catalog pass for the authenticated user and
// returns any newly unlocked ids
func (h *ProgressionHandler) CheckAchievements(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	unlocked, err := h.progressionSvc.CheckAchievements(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unlocked": unlocked})
}
