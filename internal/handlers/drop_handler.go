package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/karmadrop/backend/internal/config"
	"github.com/karmadrop/backend/internal/services/matching"
	"gorm.io/gorm"
)

// DropHandler handles drop-related requests
type DropHandler struct {
	db          *gorm.DB
	matchingSvc *matching.MatchingService
}

// NewDropHandler creates a new drop handler
func NewDropHandler(db *gorm.DB, cfg config.MatchingConfig) *DropHandler {
	return &DropHandler{
		db:          db,
		matchingSvc: matching.NewMatchingService(db, cfg),
	}
}

// CreateDrop creates a pending drop for the authenticated user
func (h *DropHandler) CreateDrop(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var input struct {
		Amount  int64  `json:"amount" binding:"required"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	drop, err := h.matchingSvc.CreateDrop(userID, input.Amount, input.Message)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, drop)
}

// GetDrop returns a drop's status, its pair, and a wait estimate for
// pending drops
func (h *DropHandler) GetDrop(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	dropID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid drop ID"})
		return
	}

	status, err := h.matchingSvc.GetDropStatus(dropID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetUserDrops partitions the authenticated user's drops
func (h *DropHandler) GetUserDrops(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	drops, err := h.matchingSvc.GetUserDrops(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, drops)
}

// CancelDrop cancels a pending drop owned by the authenticated user
func (h *DropHandler) CancelDrop(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	dropID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid drop ID"})
		return
	}

	if err := h.matchingSvc.CancelDrop(dropID, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// GetBrackets returns pending counts and wait estimates per amount
func (h *DropHandler) GetBrackets(c *gin.Context) {
	brackets, err := h.matchingSvc.EstimateAmountBrackets()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, brackets)
}

// GetStatistics returns aggregate drop counts and mean time-to-match
func (h *DropHandler) GetStatistics(c *gin.Context) {
	stats, err := h.matchingSvc.GetStatistics()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
