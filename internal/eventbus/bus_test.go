package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToMatchingSubscriber(t *testing.T) {
	b := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Event, 1)
	_ = b.Subscribe(ctx, func(e Event) { received <- e }, EventAttentionStateChanged)

	err := b.Publish(context.Background(), Event{
		SourceSystem:  "attention",
		TargetSystems: []string{"broker"},
		Type:          EventAttentionStateChanged,
		WorkspaceID:   "ws1",
		Priority:      PriorityNormal,
	})
	require.NoError(t, err)

	select {
	case evt := <-received:
		assert.Equal(t, EventAttentionStateChanged, evt.Type)
		assert.NotEmpty(t, evt.ID)
		assert.False(t, evt.CreatedAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestBus_PublishRejectsUnauthorizedSource(t *testing.T) {
	b := New(8)
	err := b.Publish(context.Background(), Event{
		SourceSystem:  "registry",
		TargetSystems: []string{"broker"},
		Type:          EventAttentionStateChanged,
	})
	assert.Error(t, err)
}

func TestBus_PublishRejectsMissingTargetSystems(t *testing.T) {
	b := New(8)
	err := b.Publish(context.Background(), Event{
		SourceSystem: "attention",
		Type:         EventAttentionStateChanged,
	})
	assert.Error(t, err)
}

func TestBus_SubscriberFilterExcludesOtherTypes(t *testing.T) {
	b := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Event, 1)
	_ = b.Subscribe(ctx, func(e Event) { received <- e }, EventBreakRequired)

	_ = b.Publish(context.Background(), Event{
		SourceSystem: "attention", TargetSystems: []string{"broker"}, Type: EventAttentionStateChanged,
	})

	select {
	case <-received:
		t.Fatal("unexpected delivery of filtered-out event type")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New(8)
	ctx := context.Background()

	received := make(chan Event, 4)
	unsubscribe := b.Subscribe(ctx, func(e Event) { received <- e }, EventAttentionStateChanged)
	unsubscribe()

	_ = b.Publish(context.Background(), Event{
		SourceSystem: "attention", TargetSystems: []string{"broker"}, Type: EventAttentionStateChanged,
	})

	select {
	case <-received:
		t.Fatal("unexpected delivery after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_FullQueueDropsLowPriorityBeforeHigh(t *testing.T) {
	b := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blocker := make(chan struct{})
	delivered := make(chan Event, 4)
	_ = b.Subscribe(ctx, func(e Event) {
		<-blocker
		delivered <- e
	}, EventBreakRequired)

	// First publish starts the handler goroutine, which blocks on <-blocker,
	// leaving the queue itself empty for the next two publishes to race into.
	_ = b.Publish(context.Background(), Event{
		SourceSystem: "attention", TargetSystems: []string{"broker"}, Type: EventBreakRequired, Priority: PriorityLow,
	})
	time.Sleep(20 * time.Millisecond)

	_ = b.Publish(context.Background(), Event{
		SourceSystem: "attention", TargetSystems: []string{"broker"}, Type: EventBreakRequired, Priority: PriorityLow,
	})
	_ = b.Publish(context.Background(), Event{
		SourceSystem: "attention", TargetSystems: []string{"broker"}, Type: EventBreakRequired, Priority: PriorityHigh,
	})

	close(blocker)

	var last Event
	for i := 0; i < 2; i++ {
		select {
		case last = <-delivered:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}
	assert.Equal(t, PriorityHigh, last.Priority)
}
