package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/karmadrop/backend/internal/config"
	"github.com/karmadrop/backend/internal/jobs"
	"github.com/karmadrop/backend/internal/models"
	"github.com/karmadrop/backend/internal/queue"
	"github.com/karmadrop/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupWebhookRouter(t *testing.T, db *gorm.DB, secret string) (*gin.Engine, *queue.Queue) {
	require.NoError(t, db.AutoMigrate(&queue.Job{}))

	gin.SetMode(gin.TestMode)
	router := gin.New()

	cfg := &config.Config{}
	cfg.Webhook.Secret = secret

	q := queue.NewQueue(db)
	handler := NewWebhookHandler(db, q, cfg)
	router.POST("/webhooks/payment", handler.PaymentWebhook)
	return router, q
}

func createMatchedDrop(t *testing.T, db *gorm.DB, senderID uuid.UUID) models.Drop {
	matchedID := uuid.New()
	now := time.Now().UTC()
	drop := models.Drop{
		SenderID:      senderID,
		Amount:        10,
		Status:        models.DropStatusMatched,
		MatchedDropID: &matchedID,
		MatchedAt:     &now,
		Reference:     utils.GenerateReference("DROP"),
	}
	require.NoError(t, db.Create(&drop).Error)
	return drop
}

func TestPaymentWebhookCompletesDropAndEnqueuesSideEffects(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupWebhookRouter(t, db, "")
	senderID := createTestUser(t, db)
	drop := createMatchedDrop(t, db, senderID)

	body, _ := json.Marshal(map[string]interface{}{
		"reference":    drop.Reference,
		"status":       "success",
		"provider_ref": "pay_123",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var updated models.Drop
	require.NoError(t, db.First(&updated, "id = ?", drop.ID).Error)
	assert.Equal(t, models.DropStatusCompleted, updated.Status)

	var jobRows []queue.Job
	require.NoError(t, db.Where("type = ?", jobs.DropSettledJobType).Find(&jobRows).Error)
	require.Len(t, jobRows, 1)

	var payload jobs.DropSettledJobPayload
	require.NoError(t, json.Unmarshal(jobRows[0].Payload, &payload))
	assert.Equal(t, drop.ID, payload.DropID)
	assert.True(t, payload.Succeeded)
}

func TestPaymentWebhookReplayAcknowledged(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupWebhookRouter(t, db, "")
	senderID := createTestUser(t, db)
	drop := createMatchedDrop(t, db, senderID)

	body, _ := json.Marshal(map[string]interface{}{
		"reference": drop.Reference,
		"status":    "success",
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// The replay did not enqueue a second round of side effects
	var count int64
	require.NoError(t, db.Model(&queue.Job{}).Where("type = ?", jobs.DropSettledJobType).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPaymentWebhookFailureMarksDropFailed(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupWebhookRouter(t, db, "")
	senderID := createTestUser(t, db)
	drop := createMatchedDrop(t, db, senderID)

	body, _ := json.Marshal(map[string]interface{}{
		"reference": drop.Reference,
		"status":    "failed",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var updated models.Drop
	require.NoError(t, db.First(&updated, "id = ?", drop.ID).Error)
	assert.Equal(t, models.DropStatusFailed, updated.Status)
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupWebhookRouter(t, db, "topsecret")
	senderID := createTestUser(t, db)
	drop := createMatchedDrop(t, db, senderID)

	body, _ := json.Marshal(map[string]interface{}{
		"reference": drop.Reference,
		"status":    "success",
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", "nonsense")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A correctly signed request passes
	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write(body)
	req = httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", hex.EncodeToString(mac.Sum(nil)))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var updated models.Drop
	require.NoError(t, db.First(&updated, "id = ?", drop.ID).Error)
	assert.Equal(t, models.DropStatusCompleted, updated.Status)
}

func TestPaymentWebhookSuccessBeforePairingKeepsRetries(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupWebhookRouter(t, db, "")
	senderID := createTestUser(t, db)

	drop := models.Drop{
		SenderID:  senderID,
		Amount:    10,
		Status:    models.DropStatusPending,
		Reference: utils.GenerateReference("DROP"),
	}
	require.NoError(t, db.Create(&drop).Error)

	body, _ := json.Marshal(map[string]interface{}{
		"reference": drop.Reference,
		"status":    "success",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// An unpaired drop cannot complete yet; a non-2xx keeps the
	// provider retrying instead of silently dropping the settlement
	assert.Equal(t, http.StatusConflict, w.Code)

	var reread models.Drop
	require.NoError(t, db.First(&reread, "id = ?", drop.ID).Error)
	assert.Equal(t, models.DropStatusPending, reread.Status)

	var count int64
	require.NoError(t, db.Model(&queue.Job{}).Count(&count).Error)
	assert.Zero(t, count, "no side effects may run before the drop pairs")

	// Once the drop pairs, the provider's retry lands
	matchedID := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, db.Model(&models.Drop{}).Where("id = ?", drop.ID).Updates(map[string]interface{}{
		"status":          models.DropStatusMatched,
		"matched_drop_id": matchedID,
		"matched_at":      now,
	}).Error)

	req = httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, db.First(&reread, "id = ?", drop.ID).Error)
	assert.Equal(t, models.DropStatusCompleted, reread.Status)
}

func TestPaymentWebhookCancelledDropAcknowledged(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupWebhookRouter(t, db, "")
	senderID := createTestUser(t, db)

	drop := models.Drop{
		SenderID:  senderID,
		Amount:    10,
		Status:    models.DropStatusCancelled,
		Reference: utils.GenerateReference("DROP"),
	}
	require.NoError(t, db.Create(&drop).Error)

	body, _ := json.Marshal(map[string]interface{}{
		"reference": drop.Reference,
		"status":    "success",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Terminal state: acknowledge so the provider stops retrying
	assert.Equal(t, http.StatusOK, w.Code)

	var reread models.Drop
	require.NoError(t, db.First(&reread, "id = ?", drop.ID).Error)
	assert.Equal(t, models.DropStatusCancelled, reread.Status)
}

func TestPaymentWebhookUnknownReference(t *testing.T) {
	db := setupTestDB(t)
	router, _ := setupWebhookRouter(t, db, "")

	body, _ := json.Marshal(map[string]interface{}{
		"reference": "DROP_UNKNOWN",
		"status":    "success",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
