package flow

import (
	"testing"

	"go.uber.org/zap"
)

func TestBroadcaster_DeliversInOrder(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	ch := b.Subscribe(8)

	for i := uint64(1); i <= 3; i++ {
		b.Publish(testFlow("10.0.0.1", "10.0.0.2", i, i))
	}

	for i := uint64(1); i <= 3; i++ {
		f := <-ch
		if f.Bytes != i {
			t.Errorf("expected flow %d, got %d", i, f.Bytes)
		}
	}
}

func TestBroadcaster_DropsSlowListener(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	slow := b.Subscribe(1)
	fast := b.Subscribe(8)

	b.Publish(testFlow("10.0.0.1", "10.0.0.2", 1, 1))
	// slow's buffer is now full; the next publish must drop it.
	b.Publish(testFlow("10.0.0.1", "10.0.0.2", 2, 2))

	if b.Listeners() != 1 {
		t.Errorf("expected 1 listener after drop, got %d", b.Listeners())
	}

	// The dropped channel is closed after draining its buffered entry.
	<-slow
	if _, ok := <-slow; ok {
		t.Error("expected slow listener channel to be closed")
	}

	// The fast listener got both.
	if f := <-fast; f.Bytes != 1 {
		t.Errorf("fast listener missed flow 1, got %d", f.Bytes)
	}
	if f := <-fast; f.Bytes != 2 {
		t.Errorf("fast listener missed flow 2, got %d", f.Bytes)
	}
}

func TestBroadcaster_UnsubscribeIdempotent(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	ch := b.Subscribe(1)
	b.Unsubscribe(ch)
	b.Unsubscribe(ch) // second call must not panic on a closed channel

	if b.Listeners() != 0 {
		t.Errorf("expected 0 listeners, got %d", b.Listeners())
	}
}
