package trigger

import (
	"sync"

	"go.uber.org/zap"
)

// Notifier fans trigger notifications out to listeners. Like the flow
// broadcaster, sends never block the dispatch path; a listener with a
// full buffer is dropped.
type Notifier struct {
	mu     sync.Mutex
	subs   map[chan Notification]struct{}
	logger *zap.Logger
}

func NewNotifier(logger *zap.Logger) *Notifier {
	return &Notifier{
		subs:   make(map[chan Notification]struct{}),
		logger: logger,
	}
}

func (n *Notifier) Subscribe(bufSize int) chan Notification {
	ch := make(chan Notification, bufSize)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

func (n *Notifier) Unsubscribe(ch chan Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subs[ch]; ok {
		delete(n.subs, ch)
		close(ch)
	}
}

func (n *Notifier) Publish(msg Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs {
		select {
		case ch <- msg:
		default:
			delete(n.subs, ch)
			close(ch)
			n.logger.Warn("dropped slow notification listener")
		}
	}
}
