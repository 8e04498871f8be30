package watch

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/ChenCXxx/townpass-microservice/internal/geo"
)

// PositionSource is the external position stream the controller
// consumes. Subscribe delivers fixes in the stream's own order until
// ctx is canceled.
type PositionSource interface {
	Subscribe(ctx context.Context) (<-chan geo.Position, error)
}

// feedBuffer bounds the number of fixes queued behind a slow match
// cycle. When the buffer fills, the oldest fix is dropped so publishing
// never blocks the producer.
const feedBuffer = 128

// Feed is a push-style PositionSource: the host publishes fixes (for
// the daemon, via the control API's position endpoint) and a single
// subscriber consumes them in FIFO order.
type Feed struct {
	mu  sync.Mutex
	sub chan geo.Position
}

// NewFeed creates an unsubscribed feed. Publishing before a subscriber
// exists discards the fix.
func NewFeed() *Feed {
	return &Feed{}
}

// Subscribe attaches the single consumer. The subscription ends when
// ctx is canceled; a later Subscribe may then attach again.
func (f *Feed) Subscribe(ctx context.Context) (<-chan geo.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sub != nil {
		return nil, errors.New("position feed already subscribed")
	}

	ch := make(chan geo.Position, feedBuffer)
	f.sub = ch

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		if f.sub == ch {
			f.sub = nil
		}
		f.mu.Unlock()
	}()

	return ch, nil
}

// Publish hands a fix to the subscriber without ever blocking the
// caller.
func (f *Feed) Publish(p geo.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sub == nil {
		return
	}

	select {
	case f.sub <- p:
	default:
		// Buffer full: sacrifice the oldest queued fix for the newest.
		select {
		case <-f.sub:
		default:
		}
		select {
		case f.sub <- p:
		default:
		}
	}
}
