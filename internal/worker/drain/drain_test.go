package drain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shifohub/patient-comms/internal/outbound"
)

type fakeStore struct {
	queued    []outbound.Message
	listErr   error
	claimed   []string
	claimDeny map[string]bool
}

func (f *fakeStore) ListQueued(ctx context.Context) ([]outbound.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.queued, nil
}

func (f *fakeStore) Claim(ctx context.Context, id string) (bool, error) {
	if f.claimDeny[id] {
		return false, nil
	}
	f.claimed = append(f.claimed, id)
	return true, nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	executed []string
	failIDs  map[string]bool
}

func (f *fakeExecutor) Execute(ctx context.Context, msg *outbound.Message) error {
	if f.failIDs[msg.ID] {
		return errors.New("send failed")
	}
	f.mu.Lock()
	f.executed = append(f.executed, msg.ID)
	f.mu.Unlock()
	return nil
}

// gateExecutor holds every delivery until the test releases them, so the test
// can observe whether two deliveries are in flight at the same time.
type gateExecutor struct {
	started chan string
	release chan struct{}
}

func (g *gateExecutor) Execute(ctx context.Context, msg *outbound.Message) error {
	g.started <- msg.ID
	<-g.release
	return nil
}

type fakeAlerter struct {
	batches [][]string
}

func (f *fakeAlerter) DeliveryFailures(ctx context.Context, failed []string) {
	f.batches = append(f.batches, failed)
}

func TestDrainDeliversOnlyDueMessages(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{queued: []outbound.Message{
		{ID: "past", Status: outbound.StatusQueued, ScheduledFor: now.Add(-time.Hour).Format(time.RFC3339)},
		{ID: "future", Status: outbound.StatusQueued, ScheduledFor: now.Add(time.Hour).Format(time.RFC3339)},
	}}
	executor := &fakeExecutor{}
	consumer := NewConsumer(store, executor, nil, nil).WithClock(func() time.Time { return now })

	consumer.Drain(context.Background())

	assert.Equal(t, []string{"past"}, executor.executed)
	assert.Equal(t, []string{"past"}, store.claimed)
}

func TestDrainSkipsMessagesClaimedElsewhere(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{
		queued: []outbound.Message{
			{ID: "m1", Status: outbound.StatusQueued, ScheduledFor: now.Add(-time.Minute).Format(time.RFC3339)},
		},
		claimDeny: map[string]bool{"m1": true},
	}
	executor := &fakeExecutor{}
	consumer := NewConsumer(store, executor, nil, nil).WithClock(func() time.Time { return now })

	consumer.Drain(context.Background())

	assert.Empty(t, executor.executed)
}

func TestDrainAlertsOnFailures(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{queued: []outbound.Message{
		{ID: "bad", Status: outbound.StatusQueued, ScheduledFor: now.Add(-time.Minute).Format(time.RFC3339)},
	}}
	executor := &fakeExecutor{failIDs: map[string]bool{"bad": true}}
	alerter := &fakeAlerter{}
	consumer := NewConsumer(store, executor, alerter, nil).WithClock(func() time.Time { return now })

	consumer.Drain(context.Background())

	require.Len(t, alerter.batches, 1)
	assert.Contains(t, alerter.batches[0][0], "bad")
}

func TestDrainDoesNotSerializeSlowDeliveries(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{queued: []outbound.Message{
		{ID: "m1", Status: outbound.StatusQueued, ScheduledFor: now.Add(-time.Minute).Format(time.RFC3339)},
		{ID: "m2", Status: outbound.StatusQueued, ScheduledFor: now.Add(-time.Minute).Format(time.RFC3339)},
	}}
	executor := &gateExecutor{started: make(chan string, 2), release: make(chan struct{})}
	consumer := NewConsumer(store, executor, nil, nil).WithClock(func() time.Time { return now })

	done := make(chan struct{})
	go func() {
		consumer.Drain(context.Background())
		close(done)
	}()

	// Both deliveries must start while neither has finished.
	for i := 0; i < 2; i++ {
		select {
		case <-executor.started:
		case <-time.After(time.Second):
			t.Fatal("delivery blocked behind a slow sibling")
		}
	}
	close(executor.release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain pass did not finish")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := &fakeStore{}
	consumer := NewConsumer(store, &fakeExecutor{}, nil, nil).WithInterval(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
