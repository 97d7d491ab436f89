package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Job{}))
	return db
}

func loadJob(t *testing.T, db *gorm.DB, id string) Job {
	var job Job
	require.NoError(t, db.First(&job, "id = ?", id).Error)
	return job
}

func TestEnqueueAndProcessJob(t *testing.T) {
	db := setupTestDB(t)
	q := NewQueue(db)

	type payload struct {
		Value int `json:"value"`
	}

	var got payload
	q.RegisterHandler("test_job", func(ctx context.Context, job Job) (interface{}, error) {
		require.NoError(t, json.Unmarshal(job.Payload, &got))
		return map[string]string{"ok": "yes"}, nil
	})

	id, err := q.EnqueueJob("test_job", payload{Value: 42})
	require.NoError(t, err)

	require.NoError(t, q.ProcessPending(10))

	assert.Equal(t, 42, got.Value)
	job := loadJob(t, db, id)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.JSONEq(t, `{"ok":"yes"}`, string(job.Result))
}

func TestFailedJobIsRetriedWithBackoff(t *testing.T) {
	db := setupTestDB(t)
	q := NewQueue(db)

	calls := 0
	q.RegisterHandler("flaky_job", func(ctx context.Context, job Job) (interface{}, error) {
		calls++
		return nil, errors.New("transient failure")
	})

	id, err := q.EnqueueJob("flaky_job", nil)
	require.NoError(t, err)

	require.NoError(t, q.ProcessPending(10))
	assert.Equal(t, 1, calls)

	job := loadJob(t, db, id)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	require.NotNil(t, job.NextRetry)
	assert.True(t, job.NextRetry.After(time.Now()))

	// Not due yet, so another pass leaves it alone
	require.NoError(t, q.ProcessPending(10))
	assert.Equal(t, 1, calls)
}

func TestJobFailsAfterMaxRetries(t *testing.T) {
	db := setupTestDB(t)
	q := NewQueue(db)

	q.RegisterHandler("doomed_job", func(ctx context.Context, job Job) (interface{}, error) {
		return nil, errors.New("permanent failure")
	})

	id, err := q.EnqueueJob("doomed_job", nil)
	require.NoError(t, err)

	// Put the job on its last attempt
	require.NoError(t, db.Model(&Job{}).Where("id = ?", id).
		Update("retry_count", 2).Error)

	require.NoError(t, q.ProcessPending(10))

	job := loadJob(t, db, id)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "permanent failure")
}

func TestUnknownJobTypeFails(t *testing.T) {
	db := setupTestDB(t)
	q := NewQueue(db)

	id, err := q.EnqueueJob("nobody_handles_this", nil)
	require.NoError(t, err)

	require.NoError(t, q.ProcessPending(10))

	job := loadJob(t, db, id)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "no handler registered")
}
