package alerts

import (
	"context"
	"errors"
	"fmt"

	"vigil/pkg/database"

	"github.com/redis/go-redis/v9"
)

// AlertState is the per-monitor alerting state. An absent key is treated as
// UP for transition purposes.
type AlertState string

const (
	StateUp      AlertState = "UP"
	StateDown    AlertState = "DOWN"
	StateAlerted AlertState = "ALERTED"
)

// StateStore holds the per-monitor alert state and consecutive-failure
// counter in Redis. Redis serializes writes per key, which scopes contention
// to the monitor key as overlapping probes require.
type StateStore struct {
	redis *database.Redis
}

// NewStateStore creates a state store on the given Redis connection.
func NewStateStore(r *database.Redis) *StateStore {
	return &StateStore{redis: r}
}

func stateKey(monitorID string) string {
	return "vigil:monitor:" + monitorID + ":state"
}

func failureKey(monitorID string) string {
	return "vigil:monitor:" + monitorID + ":failures"
}

// GetState returns the monitor's alert state, defaulting to UP when unset.
func (s *StateStore) GetState(ctx context.Context, monitorID string) (AlertState, error) {
	value, err := s.redis.Get(ctx, stateKey(monitorID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return StateUp, nil
		}
		return StateUp, fmt.Errorf("failed to read alert state: %w", err)
	}

	switch AlertState(value) {
	case StateDown, StateAlerted, StateUp:
		return AlertState(value), nil
	default:
		return StateUp, nil
	}
}

// SetState writes the monitor's alert state.
func (s *StateStore) SetState(ctx context.Context, monitorID string, state AlertState) error {
	if err := s.redis.Set(ctx, stateKey(monitorID), string(state), 0); err != nil {
		return fmt.Errorf("failed to write alert state: %w", err)
	}
	return nil
}

// IncrFailures atomically increments the consecutive-failure counter and
// returns the new count.
func (s *StateStore) IncrFailures(ctx context.Context, monitorID string) (int64, error) {
	count, err := s.redis.Incr(ctx, failureKey(monitorID))
	if err != nil {
		return 0, fmt.Errorf("failed to increment failure counter: %w", err)
	}
	return count, nil
}

// ResetFailures zeroes the consecutive-failure counter.
func (s *StateStore) ResetFailures(ctx context.Context, monitorID string) error {
	if err := s.redis.Delete(ctx, failureKey(monitorID)); err != nil {
		return fmt.Errorf("failed to reset failure counter: %w", err)
	}
	return nil
}
