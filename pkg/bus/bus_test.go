package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New(4)
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer sub1.Close()
	defer sub2.Close()

	rec := ChangeRecord{Origin: OriginLocal, Kind: EntityThread, ThreadID: "t1", EntityID: "t1", Seq: 1}
	b.Publish(rec)

	select {
	case got := <-sub1.C():
		assert.Equal(t, rec, got)
	case <-time.After(time.Second):
		t.Fatal("sub1 did not receive the change record")
	}
	select {
	case got := <-sub2.C():
		assert.Equal(t, rec, got)
	case <-time.After(time.Second):
		t.Fatal("sub2 did not receive the change record")
	}
}

func TestCloseUnregistersSubscriber(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())
	sub.Close()
	assert.Equal(t, 0, b.SubscriberCount())
	// double-close must not panic
	sub.Close()
}

func TestSlowSubscriberIsDroppedNotBlocking(t *testing.T) {
	b := New(1)
	slow := b.Subscribe()
	defer func() { recover() }() // Close on an already-dropped subscriber is safe, but guard anyway

	// fill the slow subscriber's buffer without draining it
	b.Publish(ChangeRecord{Kind: EntityMessage, EntityID: "m1"})
	// this publish finds the channel full and must disconnect it rather than block
	done := make(chan struct{})
	go func() {
		b.Publish(ChangeRecord{Kind: EntityMessage, EntityID: "m2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	assert.Equal(t, uint64(1), b.Dropped())
	assert.Equal(t, 0, b.SubscriberCount())
	_ = slow
}

func TestNewDefaultsNonPositiveCapacity(t *testing.T) {
	b := New(0)
	assert.Equal(t, 256, b.capacity)
}
