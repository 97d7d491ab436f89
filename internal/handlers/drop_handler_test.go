package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/karmadrop/backend/internal/config"
	"github.com/karmadrop/backend/internal/models"
	"github.com/karmadrop/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory database with the core schema
func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.User{}, &models.Drop{})
	require.NoError(t, err)

	return db
}

func createTestUser(t *testing.T, db *gorm.DB) uuid.UUID {
	user := models.User{Username: "user-" + uuid.NewString()[:8]}
	require.NoError(t, db.Create(&user).Error)
	return user.ID
}

// setupRouter builds a router with a stub auth middleware that injects
// the given user id, the way the JWT middleware would
func setupRouter(db *gorm.DB, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", userID.String())
		c.Next()
	})

	handler := NewDropHandler(db, config.MatchingConfig{})
	router.POST("/api/drops", handler.CreateDrop)
	router.GET("/api/drops/:id", handler.GetDrop)
	router.DELETE("/api/drops/:id", handler.CancelDrop)
	router.GET("/api/drops/brackets", handler.GetBrackets)
	return router
}

func TestCreateDropEndpoint(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)
	router := setupRouter(db, userID)

	body, _ := json.Marshal(map[string]interface{}{"amount": 10, "message": "coffee"})
	req := httptest.NewRequest(http.MethodPost, "/api/drops", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var drop models.Drop
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &drop))
	assert.Equal(t, models.DropStatusPending, drop.Status)
	assert.Equal(t, userID, drop.SenderID)
}

func TestCreateDropEndpointRejectsBadAmount(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)
	router := setupRouter(db, userID)

	body, _ := json.Marshal(map[string]interface{}{"amount": -5})
	req := httptest.NewRequest(http.MethodPost, "/api/drops", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelDropEndpointAuthorization(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db)
	stranger := createTestUser(t, db)

	drop := models.Drop{
		SenderID:  owner,
		Amount:    10,
		Status:    models.DropStatusPending,
		Reference: utils.GenerateReference("DROP"),
	}
	require.NoError(t, db.Create(&drop).Error)

	// A stranger cannot cancel someone else's drop
	router := setupRouter(db, stranger)
	req := httptest.NewRequest(http.MethodDelete, "/api/drops/"+drop.ID.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The owner can
	router = setupRouter(db, owner)
	req = httptest.NewRequest(http.MethodDelete, "/api/drops/"+drop.ID.String(), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCancelMatchedDropEndpointConflicts(t *testing.T) {
	db := setupTestDB(t)
	owner := createTestUser(t, db)

	matchedID := uuid.New()
	now := time.Now().UTC()
	drop := models.Drop{
		SenderID:      owner,
		Amount:        10,
		Status:        models.DropStatusMatched,
		MatchedDropID: &matchedID,
		MatchedAt:     &now,
		Reference:     utils.GenerateReference("DROP"),
	}
	require.NoError(t, db.Create(&drop).Error)

	router := setupRouter(db, owner)
	req := httptest.NewRequest(http.MethodDelete, "/api/drops/"+drop.ID.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetDropEndpointIncludesEstimate(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)
	router := setupRouter(db, userID)

	drop := models.Drop{
		SenderID:  userID,
		Amount:    10,
		Status:    models.DropStatusPending,
		Reference: utils.GenerateReference("DROP"),
	}
	require.NoError(t, db.Create(&drop).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/drops/"+drop.ID.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Drop             models.Drop `json:"drop"`
		EstimatedMatchAt *time.Time  `json:"estimated_match_at"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, models.DropStatusPending, result.Drop.Status)
	require.NotNil(t, result.EstimatedMatchAt, "pending drops carry a wait estimate")
}
