package alerts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"vigil/pkg/bus"
)

type fakeStateStore struct {
	states   map[string]AlertState
	failures map[string]int64
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{
		states:   make(map[string]AlertState),
		failures: make(map[string]int64),
	}
}

func (f *fakeStateStore) GetState(ctx context.Context, monitorID string) (AlertState, error) {
	if state, ok := f.states[monitorID]; ok {
		return state, nil
	}
	return StateUp, nil
}

func (f *fakeStateStore) SetState(ctx context.Context, monitorID string, state AlertState) error {
	f.states[monitorID] = state
	return nil
}

func (f *fakeStateStore) IncrFailures(ctx context.Context, monitorID string) (int64, error) {
	f.failures[monitorID]++
	return f.failures[monitorID], nil
}

func (f *fakeStateStore) ResetFailures(ctx context.Context, monitorID string) error {
	delete(f.failures, monitorID)
	return nil
}

type fakePublisher struct {
	published []publishedMessage
}

type publishedMessage struct {
	topic   string
	payload []byte
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.published = append(f.published, publishedMessage{topic: topic, payload: data})
	return nil
}

func (f *fakePublisher) alertRequests(t *testing.T) []bus.AlertRequest {
	t.Helper()
	var requests []bus.AlertRequest
	for _, msg := range f.published {
		if msg.topic != bus.TopicAlertRequests {
			continue
		}
		var request bus.AlertRequest
		if err := json.Unmarshal(msg.payload, &request); err != nil {
			t.Fatalf("failed to decode published alert request: %v", err)
		}
		requests = append(requests, request)
	}
	return requests
}

func downEvent(monitorID string) bus.MonitorEvent {
	return bus.MonitorEvent{MonitorID: monitorID, Type: bus.MonitorEventDown, At: time.Now().UTC()}
}

func recoveryEvent(monitorID string) bus.MonitorEvent {
	return bus.MonitorEvent{MonitorID: monitorID, Type: bus.MonitorEventRecovery, At: time.Now().UTC()}
}

func TestNextOnDown(t *testing.T) {
	tests := []struct {
		name    string
		current AlertState
		next    AlertState
		emit    bool
	}{
		{name: "from up", current: StateUp, next: StateAlerted, emit: true},
		{name: "from down", current: StateDown, next: StateAlerted, emit: true},
		{name: "already alerted", current: StateAlerted, next: StateAlerted, emit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextOnDown(tt.current)
			if got.Next != tt.next || got.EmitAlert != tt.emit {
				t.Errorf("NextOnDown(%v) = %+v, want next=%v emit=%v", tt.current, got, tt.next, tt.emit)
			}
		})
	}
}

func TestNextOnRecovery(t *testing.T) {
	tests := []struct {
		name    string
		current AlertState
		next    AlertState
		emit    bool
	}{
		{name: "already up", current: StateUp, next: StateUp, emit: false},
		{name: "from down", current: StateDown, next: StateUp, emit: true},
		{name: "from alerted", current: StateAlerted, next: StateUp, emit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextOnRecovery(tt.current)
			if got.Next != tt.next || got.EmitAlert != tt.emit {
				t.Errorf("NextOnRecovery(%v) = %+v, want next=%v emit=%v", tt.current, got, tt.next, tt.emit)
			}
		})
	}
}

func TestStateMachine_SingleAlertPerOutage(t *testing.T) {
	ctx := context.Background()
	store := newFakeStateStore()
	publisher := &fakePublisher{}
	machine := NewStateMachine(store, publisher)

	// First down event after the threshold breach
	store.states["mon-1"] = StateDown
	if err := machine.HandleEvent(ctx, downEvent("mon-1")); err != nil {
		t.Fatalf("HandleEvent(down) error: %v", err)
	}

	// Duplicate down events while the outage continues
	if err := machine.HandleEvent(ctx, downEvent("mon-1")); err != nil {
		t.Fatalf("HandleEvent(duplicate down) error: %v", err)
	}
	if err := machine.HandleEvent(ctx, downEvent("mon-1")); err != nil {
		t.Fatalf("HandleEvent(duplicate down) error: %v", err)
	}

	requests := publisher.alertRequests(t)
	if len(requests) != 1 {
		t.Fatalf("published %d alert requests, want exactly 1", len(requests))
	}
	if requests[0].Severity != bus.SeverityCritical {
		t.Errorf("Severity = %v, want CRITICAL", requests[0].Severity)
	}
	if requests[0].Diagnostic == nil || requests[0].Diagnostic.Reason != "threshold_breach" {
		t.Errorf("Diagnostic = %+v, want reason threshold_breach", requests[0].Diagnostic)
	}
	if store.states["mon-1"] != StateAlerted {
		t.Errorf("state = %v, want ALERTED", store.states["mon-1"])
	}
}

func TestStateMachine_SingleRecoveryNotice(t *testing.T) {
	ctx := context.Background()
	store := newFakeStateStore()
	publisher := &fakePublisher{}
	machine := NewStateMachine(store, publisher)

	store.states["mon-1"] = StateAlerted
	store.failures["mon-1"] = 5

	if err := machine.HandleEvent(ctx, recoveryEvent("mon-1")); err != nil {
		t.Fatalf("HandleEvent(recovery) error: %v", err)
	}
	// A stale duplicate must not produce a second notice
	if err := machine.HandleEvent(ctx, recoveryEvent("mon-1")); err != nil {
		t.Fatalf("HandleEvent(duplicate recovery) error: %v", err)
	}

	requests := publisher.alertRequests(t)
	if len(requests) != 1 {
		t.Fatalf("published %d alert requests, want exactly 1", len(requests))
	}
	if requests[0].Severity != bus.SeverityNormal {
		t.Errorf("Severity = %v, want NORMAL", requests[0].Severity)
	}
	if requests[0].Diagnostic == nil || !requests[0].Diagnostic.Recovered {
		t.Errorf("Diagnostic = %+v, want recovered=true", requests[0].Diagnostic)
	}
	if store.states["mon-1"] != StateUp {
		t.Errorf("state = %v, want UP", store.states["mon-1"])
	}
	if _, ok := store.failures["mon-1"]; ok {
		t.Error("failure counter should be reset on recovery")
	}
}

func TestStateMachine_RecoveryWhileUpIsSilent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStateStore()
	publisher := &fakePublisher{}
	machine := NewStateMachine(store, publisher)

	if err := machine.HandleEvent(ctx, recoveryEvent("mon-1")); err != nil {
		t.Fatalf("HandleEvent(recovery while up) error: %v", err)
	}

	if requests := publisher.alertRequests(t); len(requests) != 0 {
		t.Fatalf("published %d alert requests, want 0", len(requests))
	}
	if store.states["mon-1"] != StateUp {
		t.Errorf("state = %v, want UP", store.states["mon-1"])
	}
}

func TestStateMachine_NewOutageAfterRecovery(t *testing.T) {
	ctx := context.Background()
	store := newFakeStateStore()
	publisher := &fakePublisher{}
	machine := NewStateMachine(store, publisher)

	store.states["mon-1"] = StateDown
	if err := machine.HandleEvent(ctx, downEvent("mon-1")); err != nil {
		t.Fatalf("HandleEvent(down) error: %v", err)
	}
	if err := machine.HandleEvent(ctx, recoveryEvent("mon-1")); err != nil {
		t.Fatalf("HandleEvent(recovery) error: %v", err)
	}
	store.states["mon-1"] = StateDown
	if err := machine.HandleEvent(ctx, downEvent("mon-1")); err != nil {
		t.Fatalf("HandleEvent(second down) error: %v", err)
	}

	requests := publisher.alertRequests(t)
	if len(requests) != 3 {
		t.Fatalf("published %d alert requests, want 3 (down, recovery, down)", len(requests))
	}
	if requests[2].Severity != bus.SeverityCritical {
		t.Errorf("second outage Severity = %v, want CRITICAL", requests[2].Severity)
	}
}
