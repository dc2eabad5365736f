package alerts

import (
	"context"
	"fmt"
	"log/slog"

	"vigil/pkg/bus"
)

// MonitorStateStore is the per-monitor state the machine reads and writes.
type MonitorStateStore interface {
	GetState(ctx context.Context, monitorID string) (AlertState, error)
	SetState(ctx context.Context, monitorID string, state AlertState) error
	IncrFailures(ctx context.Context, monitorID string) (int64, error)
	ResetFailures(ctx context.Context, monitorID string) error
}

// Publisher is the outbound side of the event bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

// Transition is the outcome of applying one event to the current state.
type Transition struct {
	Next      AlertState
	EmitAlert bool
}

// NextOnDown applies a down event. A monitor already in ALERTED has had its
// outage alert dispatched, so the event is suppressed; otherwise the machine
// moves to ALERTED and exactly one critical alert goes out.
func NextOnDown(current AlertState) Transition {
	if current == StateAlerted {
		return Transition{Next: StateAlerted, EmitAlert: false}
	}
	return Transition{Next: StateAlerted, EmitAlert: true}
}

// NextOnRecovery applies a recovery event. A monitor already UP means the
// signal is stale or duplicated; the state is normalized without an alert.
// From DOWN or ALERTED exactly one recovery alert goes out.
func NextOnRecovery(current AlertState) Transition {
	if current == StateUp {
		return Transition{Next: StateUp, EmitAlert: false}
	}
	return Transition{Next: StateUp, EmitAlert: true}
}

// StateMachine guarantees at most one down alert and at most one recovery
// alert per outage, no matter how many duplicate events arrive.
type StateMachine struct {
	store     MonitorStateStore
	publisher Publisher
}

// NewStateMachine creates a state machine over the given store and bus.
func NewStateMachine(store MonitorStateStore, publisher Publisher) *StateMachine {
	return &StateMachine{
		store:     store,
		publisher: publisher,
	}
}

// HandleEvent applies one monitor event and emits an alert request when the
// transition calls for one.
func (sm *StateMachine) HandleEvent(ctx context.Context, event bus.MonitorEvent) error {
	current, err := sm.store.GetState(ctx, event.MonitorID)
	if err != nil {
		return fmt.Errorf("failed to load state for %s: %w", event.MonitorID, err)
	}

	switch event.Type {
	case bus.MonitorEventDown:
		return sm.handleDown(ctx, event.MonitorID, current)
	case bus.MonitorEventRecovery:
		return sm.handleRecovery(ctx, event.MonitorID, current)
	default:
		slog.Warn("Unknown monitor event type",
			"monitor_id", event.MonitorID,
			"type", string(event.Type))
		return nil
	}
}

func (sm *StateMachine) handleDown(ctx context.Context, monitorID string, current AlertState) error {
	t := NextOnDown(current)
	if !t.EmitAlert {
		slog.Debug("Down event suppressed, outage already alerted", "monitor_id", monitorID)
		return nil
	}

	if err := sm.store.SetState(ctx, monitorID, t.Next); err != nil {
		return err
	}

	request := bus.AlertRequest{
		MonitorID: monitorID,
		Severity:  bus.SeverityCritical,
		Diagnostic: &bus.Diagnostic{
			Reason: "threshold_breach",
		},
	}
	if err := sm.publisher.Publish(ctx, bus.TopicAlertRequests, request); err != nil {
		return fmt.Errorf("failed to publish down alert for %s: %w", monitorID, err)
	}

	slog.Info("Monitor down, alert requested", "monitor_id", monitorID, "previous_state", string(current))
	return nil
}

func (sm *StateMachine) handleRecovery(ctx context.Context, monitorID string, current AlertState) error {
	t := NextOnRecovery(current)

	if err := sm.store.SetState(ctx, monitorID, t.Next); err != nil {
		return err
	}

	if !t.EmitAlert {
		slog.Debug("Stale recovery signal ignored", "monitor_id", monitorID)
		return nil
	}

	if err := sm.store.ResetFailures(ctx, monitorID); err != nil {
		slog.Error("Failed to reset failure counter on recovery",
			"monitor_id", monitorID,
			"error", err)
	}

	request := bus.AlertRequest{
		MonitorID: monitorID,
		Severity:  bus.SeverityNormal,
		Diagnostic: &bus.Diagnostic{
			Reason:    "recovered",
			Recovered: true,
		},
	}
	if err := sm.publisher.Publish(ctx, bus.TopicAlertRequests, request); err != nil {
		return fmt.Errorf("failed to publish recovery alert for %s: %w", monitorID, err)
	}

	slog.Info("Monitor recovered, notice requested", "monitor_id", monitorID, "previous_state", string(current))
	return nil
}
