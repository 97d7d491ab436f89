package notification

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Event kinds delivered to the notification collaborator
const (
	EventLevelUp             = "level_up"
	EventAchievementUnlocked = "achievement_unlocked"
)

// Event is a fire-and-forget notification payload
type Event struct {
	Type      string    `json:"type"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier delivers events to the external notification service.
// Delivery is best-effort; failures are logged, never propagated.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// RedisNotifier publishes events onto a redis channel and a per-user
// list the notification service drains
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier creates a notifier backed by the given redis client
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Notify publishes the event. Errors are logged and swallowed.
func (n *RedisNotifier) Notify(ctx context.Context, event Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal notification event: %v", err)
		return
	}

	if err := n.client.LPush(ctx, "notifications:"+event.UserID.String(), payload).Err(); err != nil {
		log.Printf("failed to push notification for user %s: %v", event.UserID, err)
	}
	if err := n.client.Publish(ctx, "notifications", payload).Err(); err != nil {
		log.Printf("failed to publish notification event: %v", err)
	}
}

// NoopNotifier discards all events. Used when redis is not configured.
type NoopNotifier struct{}

// Notify implements Notifier
func (NoopNotifier) Notify(ctx context.Context, event Event) {}
