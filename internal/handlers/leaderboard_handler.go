package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/karmadrop/backend/internal/models"
	"github.com/karmadrop/backend/internal/services/streak"
	"gorm.io/gorm"
)

// LeaderboardHandler handles leaderboard reads and refresh triggers
type LeaderboardHandler struct {
	db             *gorm.DB
	leaderboardSvc *streak.LeaderboardService
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(db *gorm.DB) *LeaderboardHandler {
	return &LeaderboardHandler{
		db:             db,
		leaderboardSvc: streak.NewLeaderboardService(db),
	}
}

func parseLeaderboardKey(c *gin.Context) (models.PeriodType, models.LeaderboardCategory, bool) {
	period := models.PeriodType(c.Param("period"))
	if period != models.PeriodWeekly && period != models.PeriodAllTime {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period"})
		return "", "", false
	}

	category := models.LeaderboardCategory(c.Param("category"))
	switch category {
	case models.CategoryDroppers, models.CategoryReceivers, models.CategoryStreakMasters:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return "", "", false
	}
	return period, category, true
}

// GetTopPerformers returns the top-N entries for a period/category
func (h *LeaderboardHandler) GetTopPerformers(c *gin.Context) {
	period, category, ok := parseLeaderboardKey(c)
	if !ok {
		return
	}

	limit := 10
	if l, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil {
		limit = l
	}

	entries, err := h.leaderboardSvc.GetTopPerformers(period, category, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

// GetMyRank returns the authenticated user's rank, or null when unranked
func (h *LeaderboardHandler) GetMyRank(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	period, category, ok := parseLeaderboardKey(c)
	if !ok {
		return
	}

	rank, err := h.leaderboardSvc.GetUserRank(userID, period, category)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rank": rank})
}

// Refresh recomputes the authenticated user's leaderboard entries
func (h *LeaderboardHandler) Refresh(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.leaderboardSvc.UpdateUserLeaderboard(userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

// GetStreak returns the authenticated user's current and longest streaks
func (h *LeaderboardHandler) GetStreak(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	current, err := h.leaderboardSvc.CurrentStreak(userID)
	if err != nil {
		respondError(c, err)
		return
	}
	longest, err := h.leaderboardSvc.UserLongestStreak(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"current_streak": current, "longest_streak": longest})
}
