package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/karmadrop/backend/internal/config"
	"github.com/karmadrop/backend/internal/jobs"
	"github.com/karmadrop/backend/internal/models"
	"github.com/karmadrop/backend/internal/queue"
	"github.com/karmadrop/backend/internal/services/matching"
	"gorm.io/gorm"
)

// WebhookHandler receives settlement callbacks from the payment provider
type WebhookHandler struct {
	db          *gorm.DB
	queue       queue.QueueInterface
	matchingSvc *matching.MatchingService
	secret      string
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(db *gorm.DB, q queue.QueueInterface, cfg *config.Config) *WebhookHandler {
	return &WebhookHandler{
		db:          db,
		queue:       q,
		matchingSvc: matching.NewMatchingService(db, cfg.Matching),
		secret:      cfg.Webhook.Secret,
	}
}

// paymentWebhookPayload is the provider's settlement callback body
type paymentWebhookPayload struct {
	Reference   string      `json:"reference" binding:"required"`
	Status      string      `json:"status" binding:"required"` // success | failed
	ProviderRef string      `json:"provider_ref"`
	Metadata    models.JSON `json:"metadata"`
}

// PaymentWebhook applies a settlement outcome to the referenced drop
// and enqueues the progression side effects. The provider retries on
// non-2xx, so an already-settled drop answers 200.
func (h *WebhookHandler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if !h.verifySignature(body, c.GetHeader("X-Webhook-Signature")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var payload paymentWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}
	if payload.Reference == "" || payload.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference and status are required"})
		return
	}

	succeeded := payload.Status == "success"
	metadata := payload.Metadata
	if metadata == nil {
		metadata = models.JSON{}
	}
	if payload.ProviderRef != "" {
		metadata["provider_ref"] = payload.ProviderRef
	}

	drop, err := h.matchingSvc.SettleDrop(payload.Reference, succeeded, metadata)
	if err != nil {
		// The provider retries on non-2xx. A replay against a drop that
		// already reached a terminal state is acknowledged so retries
		// converge; a success callback that merely arrived before the
		// drop was paired must keep the retries coming, so it answers
		// 409 and the provider tries again after pairing.
		if errors.Is(err, models.ErrInvalidState) && h.dropSettled(payload.Reference) {
			c.JSON(http.StatusOK, gin.H{"status": "already settled"})
			return
		}
		respondError(c, err)
		return
	}

	if err := jobs.EnqueueDropSettled(h.queue, drop.ID, succeeded); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(drop.Status)})
}

// dropSettled reports whether the referenced drop is in a terminal state
func (h *WebhookHandler) dropSettled(reference string) bool {
	var drop models.Drop
	if err := h.db.First(&drop, "reference = ?", reference).Error; err != nil {
		return false
	}
	return drop.Status.Terminal()
}

// verifySignature checks the provider's HMAC-SHA256 signature. An
// empty configured secret disables verification (development only).
func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if h.secret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
