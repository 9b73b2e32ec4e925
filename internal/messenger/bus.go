// Package messenger relays messages between the page side (observer and
// bridge) and the gateway side. Requests are routed to one handler per
// action; broadcasts fan out to every subscribed view; one-shot waiters
// consume exactly one message of an action and then detach.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrNoReceiver means nothing is listening for the message.
	ErrNoReceiver = errors.New("no receiver for message")
	// ErrUnknownAction is returned for actions the bus does not route.
	ErrUnknownAction = errors.New("unknown action")
)

// HandlerFunc answers a routed message.
type HandlerFunc func(ctx context.Context, msg models.Message) (models.Response, error)

type waiter struct {
	action models.Action
	ch     chan models.Message
}

// Bus is safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[models.Action]HandlerFunc
	waiters  []*waiter
	subs     map[int]chan models.Message
	nextSub  int
	log      *zap.Logger
}

// New creates an empty Bus.
func New(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[models.Action]HandlerFunc),
		subs:     make(map[int]chan models.Message),
		log:      log,
	}
}

// Handle registers the handler for action, replacing any previous one.
func (b *Bus) Handle(action models.Action, fn HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[action] = fn
}

// Send delivers msg. A pending one-shot waiter for the action takes
// precedence over the registered handler; the waiter is detached in the
// same step, so a second identical message cannot reach it.
func (b *Bus) Send(ctx context.Context, msg models.Message) (models.Response, error) {
	if msg.Action == "" {
		return models.Response{}, fmt.Errorf("%w: empty", ErrUnknownAction)
	}

	b.mu.Lock()
	for i, w := range b.waiters {
		if w.action != msg.Action {
			continue
		}
		b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
		b.mu.Unlock()
		// Buffered with capacity one and written once.
		w.ch <- msg
		return models.Response{Done: true}, nil
	}
	fn, ok := b.handlers[msg.Action]
	b.mu.Unlock()

	if !ok {
		b.log.Debug("message dropped", zap.String("action", string(msg.Action)))
		return models.Response{}, fmt.Errorf("%w: %s", ErrNoReceiver, msg.Action)
	}
	return fn(ctx, msg)
}

// OneShot is a registered single-message listener.
type OneShot struct {
	bus *Bus
	w   *waiter
}

// ListenOnce registers a one-shot listener for action without blocking, so
// the caller can trigger whatever produces the message afterwards.
func (b *Bus) ListenOnce(action models.Action) *OneShot {
	w := &waiter{action: action, ch: make(chan models.Message, 1)}

	b.mu.Lock()
	b.waiters = append(b.waiters, w)
	b.mu.Unlock()
	return &OneShot{bus: b, w: w}
}

// Wait blocks until the message arrives. Cancelling ctx deregisters the
// listener without consuming anything.
func (o *OneShot) Wait(ctx context.Context) (models.Message, error) {
	select {
	case msg := <-o.w.ch:
		return msg, nil
	case <-ctx.Done():
		o.Cancel()
		// A Send may have won the race between ctx and the lock in Cancel.
		select {
		case msg := <-o.w.ch:
			return msg, nil
		default:
		}
		return models.Message{}, ctx.Err()
	}
}

// Cancel deregisters the listener if it has not fired.
func (o *OneShot) Cancel() {
	b := o.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, other := range b.waiters {
		if other == o.w {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return
		}
	}
}

// WaitOnce blocks until one message with action arrives, consumes it and
// deregisters.
func (b *Bus) WaitOnce(ctx context.Context, action models.Action) (models.Message, error) {
	return b.ListenOnce(action).Wait(ctx)
}

// Waiting reports how many one-shot waiters are registered for action.
func (b *Bus) Waiting(action models.Action) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, w := range b.waiters {
		if w.action == action {
			n++
		}
	}
	return n
}

// Subscribe registers a broadcast receiver. The returned cancel function
// detaches it and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan models.Message, func()) {
	ch := make(chan models.Message, buffer)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast offers msg to every subscriber without blocking; a subscriber
// whose buffer is full misses the message. It returns ErrNoReceiver when
// nobody received it.
func (b *Bus) Broadcast(_ context.Context, msg models.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- msg:
			delivered++
		default:
		}
	}
	if delivered == 0 {
		return fmt.Errorf("%w: %s", ErrNoReceiver, msg.Action)
	}
	return nil
}
