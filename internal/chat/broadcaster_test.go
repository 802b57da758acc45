// ABOUTME: Tests for the turn broadcaster
// ABOUTME: Covers fan-out, unsubscribe cleanup, and the slow-subscriber drop policy

package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandchat/strand/internal/store"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(discardLogger())
	defer b.Close()

	ctx := context.Background()
	ch1, _ := b.Subscribe(ctx, "conv-1")
	ch2, _ := b.Subscribe(ctx, "conv-1")
	other, _ := b.Subscribe(ctx, "conv-2")

	msg := &store.Message{ID: "m1", Role: store.RoleAssistant}
	b.Publish("conv-1", msg)

	assert.Equal(t, "m1", (<-ch1).ID)
	assert.Equal(t, "m1", (<-ch2).ID)

	select {
	case got := <-other:
		t.Fatalf("subscriber of another conversation received %v", got)
	default:
	}
}

func TestBroadcaster_PublishWithoutSubscribers(t *testing.T) {
	b := NewBroadcaster(discardLogger())
	defer b.Close()

	// Must not panic or block.
	b.Publish("conv-1", &store.Message{ID: "m1"})
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(discardLogger())
	defer b.Close()

	ch, subID := b.Subscribe(context.Background(), "conv-1")
	b.Unsubscribe("conv-1", subID)

	_, open := <-ch
	assert.False(t, open, "channel should be closed after unsubscribe")

	// Repeated unsubscribe is a no-op.
	b.Unsubscribe("conv-1", subID)
}

func TestBroadcaster_ContextCancelCleansUp(t *testing.T) {
	b := NewBroadcaster(discardLogger())
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "conv-1")
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond, "subscription was not cleaned up on context cancel")
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster(discardLogger())
	defer b.Close()

	ch, _ := b.Subscribe(context.Background(), "conv-1")

	// Overfill the subscriber buffer; the excess is dropped, not blocked on.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBufferSize+10; i++ {
			b.Publish("conv-1", &store.Message{ID: fmt.Sprintf("m%d", i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(discardLogger())

	ch1, _ := b.Subscribe(context.Background(), "conv-1")
	ch2, _ := b.Subscribe(context.Background(), "conv-2")
	b.Close()

	_, open := <-ch1
	assert.False(t, open)
	_, open = <-ch2
	assert.False(t, open)
}
