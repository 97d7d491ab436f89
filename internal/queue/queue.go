package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Queue is a database-backed job queue. Jobs survive restarts; failed
// jobs are retried with exponential backoff until MaxRetries.
type Queue struct {
	db       *gorm.DB
	handlers map[JobType]JobHandler
	quit     chan struct{}
}

// NewQueue creates a new queue
func NewQueue(db *gorm.DB) *Queue {
	return &Queue{
		db:       db,
		handlers: make(map[JobType]JobHandler),
		quit:     make(chan struct{}),
	}
}

// RegisterHandler registers a handler for a job type
func (q *Queue) RegisterHandler(jobType JobType, handler JobHandler) {
	q.handlers[jobType] = handler
}

// EnqueueJob adds a job to the queue
func (q *Queue) EnqueueJob(jobType JobType, payload interface{}) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := Job{
		ID:      uuid.New(),
		Type:    jobType,
		Payload: payloadBytes,
		Status:  JobStatusPending,
	}

	if err := q.db.Create(&job).Error; err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	return job.ID.String(), nil
}

// ProcessPending claims and processes up to limit due jobs
func (q *Queue) ProcessPending(limit int) error {
	var jobs []Job
	now := time.Now()
	err := q.db.
		Where("status = ? AND (next_retry IS NULL OR next_retry <= ?)", JobStatusPending, now).
		Order("created_at asc").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	for i := range jobs {
		q.processJob(&jobs[i])
	}
	return nil
}

// processJob runs a single job through its handler and records the outcome
func (q *Queue) processJob(job *Job) {
	// Claim the job so an overlapping processor skips it
	res := q.db.Model(&Job{}).
		Where("id = ? AND status = ?", job.ID, JobStatusPending).
		Update("status", JobStatusProcessing)
	if res.Error != nil || res.RowsAffected == 0 {
		return
	}

	handler, ok := q.handlers[job.Type]
	if !ok {
		q.markFailed(job, fmt.Errorf("no handler registered for job type %s", job.Type))
		return
	}

	result, err := handler(context.Background(), *job)
	if err != nil {
		log.Printf("job %s (%s) failed: %v", job.ID, job.Type, err)
		q.retryOrFail(job, err)
		return
	}

	updates := map[string]interface{}{"status": JobStatusCompleted}
	if result != nil {
		if resultBytes, merr := json.Marshal(result); merr == nil {
			updates["result"] = resultBytes
		}
	}
	if err := q.db.Model(&Job{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
		log.Printf("failed to mark job %s completed: %v", job.ID, err)
	}
}

// retryOrFail schedules a retry with exponential backoff, or marks the
// job failed once retries are exhausted
func (q *Queue) retryOrFail(job *Job, jobErr error) {
	if job.RetryCount+1 >= job.MaxRetries {
		q.markFailed(job, jobErr)
		return
	}

	backoff := time.Duration(1<<uint(job.RetryCount)) * time.Minute
	nextRetry := time.Now().Add(backoff)
	err := q.db.Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":      JobStatusPending,
		"retry_count": job.RetryCount + 1,
		"next_retry":  nextRetry,
		"error":       jobErr.Error(),
	}).Error
	if err != nil {
		log.Printf("failed to schedule retry for job %s: %v", job.ID, err)
	}
}

func (q *Queue) markFailed(job *Job, jobErr error) {
	err := q.db.Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status": JobStatusFailed,
		"error":  jobErr.Error(),
	}).Error
	if err != nil {
		log.Printf("failed to mark job %s failed: %v", job.ID, err)
	}
}

// Start begins polling for pending jobs until Stop is called
func (q *Queue) Start() {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-q.quit:
				return
			case <-ticker.C:
				if err := q.ProcessPending(10); err != nil {
					log.Printf("queue processing error: %v", err)
				}
			}
		}
	}()
}

// Stop stops the polling loop
func (q *Queue) Stop() {
	close(q.quit)
}
