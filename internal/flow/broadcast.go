package flow

import (
	"sync"

	"github.com/netstream-lab/netstream/internal/netflow"
	"go.uber.org/zap"
)

// Broadcaster fans enriched flows out to subscribed listeners. Publish
// never blocks the ingest path: a listener whose buffer is full is
// dropped and its channel closed.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan *netflow.EnrichedFlow]struct{}
	logger *zap.Logger
}

func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[chan *netflow.EnrichedFlow]struct{}),
		logger: logger,
	}
}

// Subscribe registers a listener with the given buffer size.
func (b *Broadcaster) Subscribe(bufSize int) chan *netflow.EnrichedFlow {
	ch := make(chan *netflow.EnrichedFlow, bufSize)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan *netflow.EnrichedFlow) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Publish delivers a flow to every listener. Each listener receives
// flows in the order Publish is called; the order in which listeners
// are served within one call is not defined.
func (b *Broadcaster) Publish(e *netflow.EnrichedFlow) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Listener too slow; drop it rather than stall the reader.
			delete(b.subs, ch)
			close(ch)
			b.logger.Warn("dropped slow flow listener")
		}
	}
}

// Listeners returns the current subscriber count.
func (b *Broadcaster) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
