package streak

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
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

	err = db.AutoMigrate(
		&models.User{},
		&models.Drop{},
		&models.LeaderboardEntry{},
	)
	require.NoError(t, err)

	return db
}

func createTestUser(t *testing.T, db *gorm.DB) uuid.UUID {
	user := models.User{Username: "user-" + uuid.NewString()[:8]}
	require.NoError(t, db.Create(&user).Error)
	return user.ID
}

// createCompletedDrop inserts a completed drop settled at the given time
func createCompletedDrop(t *testing.T, db *gorm.DB, senderID uuid.UUID, settledAt time.Time) {
	drop := models.Drop{
		SenderID:  senderID,
		Amount:    5,
		Status:    models.DropStatusCompleted,
		Reference: utils.GenerateReference("DROP"),
	}
	drop.CreatedAt = settledAt.Add(-10 * time.Minute)
	drop.UpdatedAt = settledAt
	require.NoError(t, db.Create(&drop).Error)
}

func TestUpdateUserLeaderboardScoresAndIdempotence(t *testing.T) {
	db := setupTestDB(t)
	svc := NewLeaderboardService(db)
	userID := createTestUser(t, db)

	now := time.Now().UTC()
	createCompletedDrop(t, db, userID, now.Add(-time.Hour))
	createCompletedDrop(t, db, userID, now.Add(-2*time.Hour))

	require.NoError(t, svc.UpdateUserLeaderboard(userID))
	// Recomputing with unchanged activity must replace, not duplicate
	require.NoError(t, svc.UpdateUserLeaderboard(userID))

	var entries []models.LeaderboardEntry
	require.NoError(t, db.Where("user_id = ? AND category = ?", userID, models.CategoryDroppers).Find(&entries).Error)
	require.Len(t, entries, 2) // weekly + all_time, exactly one row each

	byPeriod := map[models.PeriodType]models.LeaderboardEntry{}
	for _, e := range entries {
		byPeriod[e.PeriodType] = e
	}
	assert.Equal(t, int64(2), byPeriod[models.PeriodAllTime].Score)
	assert.Equal(t, allTimePeriodEnd, byPeriod[models.PeriodAllTime].PeriodEnd.UTC())
}

func TestUpdateUserLeaderboardZeroScoreMeansAbsence(t *testing.T) {
	db := setupTestDB(t)
	svc := NewLeaderboardService(db)
	userID := createTestUser(t, db)

	require.NoError(t, svc.UpdateUserLeaderboard(userID))

	var count int64
	require.NoError(t, db.Model(&models.LeaderboardEntry{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.Zero(t, count, "a user with no activity must not appear with zero-score entries")

	rank, err := svc.GetUserRank(userID, models.PeriodAllTime, models.CategoryDroppers)
	require.NoError(t, err)
	assert.Nil(t, rank, "absence, not zero, signals unranked")
}

func TestGetUserRankAndTopPerformers(t *testing.T) {
	db := setupTestDB(t)
	svc := NewLeaderboardService(db)

	now := time.Now().UTC()
	alice := createTestUser(t, db)
	bob := createTestUser(t, db)
	carol := createTestUser(t, db)

	for i := 0; i < 3; i++ {
		createCompletedDrop(t, db, alice, now.Add(-time.Duration(i+1)*time.Hour))
	}
	createCompletedDrop(t, db, bob, now.Add(-time.Hour))
	createCompletedDrop(t, db, bob, now.Add(-2*time.Hour))
	createCompletedDrop(t, db, carol, now.Add(-time.Hour))

	for _, id := range []uuid.UUID{alice, bob, carol} {
		require.NoError(t, svc.UpdateUserLeaderboard(id))
	}

	top, err := svc.GetTopPerformers(models.PeriodAllTime, models.CategoryDroppers, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, alice, top[0].UserID)
	assert.Equal(t, int64(3), top[0].Score)
	assert.Equal(t, bob, top[1].UserID)

	rank, err := svc.GetUserRank(carol, models.PeriodAllTime, models.CategoryDroppers)
	require.NoError(t, err)
	require.NotNil(t, rank)
	assert.Equal(t, 3, *rank)
}

func TestStreakMastersUsesCurrentAndLongest(t *testing.T) {
	db := setupTestDB(t)
	svc := NewLeaderboardService(db)
	userID := createTestUser(t, db)

	now := time.Now().UTC()
	// Current streak of 2 (today and yesterday); an older 3 day run
	createCompletedDrop(t, db, userID, now)
	createCompletedDrop(t, db, userID, now.AddDate(0, 0, -1))
	for i := 10; i < 13; i++ {
		createCompletedDrop(t, db, userID, now.AddDate(0, 0, -i))
	}

	require.NoError(t, svc.UpdateUserLeaderboard(userID))

	var weekly, allTime models.LeaderboardEntry
	require.NoError(t, db.Where("user_id = ? AND category = ? AND period_type = ?",
		userID, models.CategoryStreakMasters, models.PeriodWeekly).First(&weekly).Error)
	require.NoError(t, db.Where("user_id = ? AND category = ? AND period_type = ?",
		userID, models.CategoryStreakMasters, models.PeriodAllTime).First(&allTime).Error)

	assert.Equal(t, int64(2), weekly.Score, "weekly streak_masters scores the current streak")
	assert.Equal(t, int64(3), allTime.Score, "all_time streak_masters scores the longest streak")
}
