// Package logsink is the serial diagnostic log: callers record messages
// without blocking, and a single drain goroutine folds them one at a time
// into the bounded log held in the store, then mirrors each entry to any
// open diagnostics view.
package logsink

import (
	"context"
	"fmt"
	"sync"

	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"github.com/tblumenau/voodoo-ss-extension/internal/storage"
	"go.uber.org/zap"
)

// DefaultCapacity is how many entries the persisted log keeps.
const DefaultCapacity = 100

// Broadcaster receives each entry after it has been persisted. An error
// (typically nobody listening) is ignored.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg models.Message) error
}

type op struct {
	entry models.LogEntry
	clear bool
	done  chan error
}

// Sink owns the queue of pending entries and the busy flag that keeps at
// most one read-modify-write of the stored log in flight.
type Sink struct {
	store    storage.Store
	notify   Broadcaster
	capacity int
	log      *zap.Logger

	mu         sync.Mutex
	pending    []op
	processing bool
	idle       chan struct{}
}

// New creates a Sink. notify may be nil.
func New(store storage.Store, notify Broadcaster, capacity int, log *zap.Logger) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = zap.NewNop()
	}
	idle := make(chan struct{})
	close(idle)
	return &Sink{
		store:    store,
		notify:   notify,
		capacity: capacity,
		log:      log,
		idle:     idle,
	}
}

// Record appends a timestamped entry and returns immediately.
func (s *Sink) Record(message string) {
	s.enqueue(op{entry: models.NewLogEntry(message)})
}

// Recordf formats and records a message.
func (s *Sink) Recordf(format string, args ...interface{}) {
	s.Record(fmt.Sprintf(format, args...))
}

// Clear empties the stored log once everything queued before it has been
// written. Entries recorded after the call do not delay it.
func (s *Sink) Clear(ctx context.Context) error {
	done := make(chan error, 1)
	s.enqueue(op{clear: true, done: done})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush blocks until the queue is empty and no write is in flight.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries returns the persisted log, oldest first.
func (s *Sink) Entries(ctx context.Context) ([]models.LogEntry, error) {
	var entries []models.LogEntry
	if _, err := s.store.Get(ctx, models.KeyConsoleLog, &entries); err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	return entries, nil
}

func (s *Sink) enqueue(o op) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, o)
	if s.processing {
		return
	}
	s.processing = true
	s.idle = make(chan struct{})
	go s.drain()
}

// drain is the only consumer. It takes one op at a time and does not look
// at the queue again until that op is persisted and announced.
func (s *Sink) drain() {
	ctx := context.Background()
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.processing = false
			close(s.idle)
			s.mu.Unlock()
			return
		}
		next := s.pending[0]
		s.pending[0] = op{}
		s.pending = s.pending[1:]
		s.mu.Unlock()

		if next.clear {
			err := s.store.Remove(ctx, models.KeyConsoleLog)
			if err != nil {
				s.log.Error("clearing log failed", zap.Error(err))
				err = fmt.Errorf("clearing log: %w", err)
			}
			next.done <- err
			continue
		}

		if err := s.persist(ctx, next.entry); err != nil {
			s.log.Error("persisting log entry failed", zap.Error(err), zap.String("message", next.entry.Message))
		}
		if s.notify != nil {
			entry := next.entry
			if err := s.notify.Broadcast(ctx, models.Message{Action: models.ActionAddLogEntry, Entry: &entry}); err != nil {
				s.log.Debug("log entry not mirrored", zap.Error(err))
			}
		}
	}
}

func (s *Sink) persist(ctx context.Context, entry models.LogEntry) error {
	var entries []models.LogEntry
	if _, err := s.store.Get(ctx, models.KeyConsoleLog, &entries); err != nil {
		return err
	}
	entries = append(entries, entry)
	if over := len(entries) - s.capacity; over > 0 {
		entries = entries[over:]
	}
	return s.store.Set(ctx, map[string]interface{}{models.KeyConsoleLog: entries})
}
