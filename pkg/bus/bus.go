package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"vigil/pkg/database"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Topics connecting the pipeline stages. One instance publishes, any
// instance may consume, so horizontal scaling falls out of Redis pub/sub.
const (
	// TopicProbeDispatch carries one ProbeRequest per monitor per tick.
	TopicProbeDispatch = "vigil:probe:dispatch"

	// TopicMonitorEvents carries down/recovery events from the probe executor
	// to the alert state machine.
	TopicMonitorEvents = "vigil:monitor:events"

	// TopicAnomalyCheck asks the anomaly detector to evaluate a monitor.
	TopicAnomalyCheck = "vigil:anomaly:check"

	// TopicAlertRequests carries outbound alert requests to the router.
	TopicAlertRequests = "vigil:alert:requests"
)

// StreamTopic returns the per-monitor channel used to push freshly recorded
// metrics to live status-stream subscribers.
func StreamTopic(monitorID string) string {
	return "vigil:stream:" + monitorID
}

// Envelope wraps every published payload with the publishing instance ID
// and send time for diagnostics.
type Envelope struct {
	ServerID string          `json:"server_id"`
	SentAt   time.Time       `json:"sent_at"`
	Payload  json.RawMessage `json:"payload"`
}

// Bus is a thin topic-based publish/subscribe layer over Redis.
type Bus struct {
	redis    *database.Redis
	serverID string
}

// New creates a bus bound to the given Redis connection.
func New(r *database.Redis) *Bus {
	return &Bus{
		redis:    r,
		serverID: uuid.New().String(),
	}
}

// ServerID returns this instance's publish identity.
func (b *Bus) ServerID() string {
	return b.serverID
}

// Publish marshals v and sends it to the topic.
func (b *Bus) Publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}

	env := Envelope{
		ServerID: b.serverID,
		SentAt:   time.Now().UTC(),
		Payload:  payload,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope for %s: %w", topic, err)
	}

	if err := b.redis.Publish(ctx, topic, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	slog.Debug("Event published", "topic", topic, "server_id", b.serverID)
	return nil
}

// Subscription is a live topic subscription. Close is idempotent.
type Subscription struct {
	pubsub *redis.PubSub
}

// Close terminates the subscription and its receive loop.
func (s *Subscription) Close() error {
	if s == nil || s.pubsub == nil {
		return nil
	}
	return s.pubsub.Close()
}

// Subscribe starts a receive loop on the topic and invokes handler with each
// raw payload. The loop exits when ctx is cancelled or the subscription is
// closed. A payload that fails to decode is logged and skipped.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, payload []byte)) *Subscription {
	pubsub := b.redis.Subscribe(ctx, topic)

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					slog.Error("Failed to unmarshal event envelope",
						"error", err,
						"topic", msg.Channel)
					continue
				}
				handler(ctx, env.Payload)
			}
		}
	}()

	slog.Info("Subscribed to topic", "topic", topic, "server_id", b.serverID)
	return &Subscription{pubsub: pubsub}
}
