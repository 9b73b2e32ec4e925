package logsink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tblumenau/voodoo-ss-extension/internal/models"
	"github.com/tblumenau/voodoo-ss-extension/internal/testutil"
	"go.uber.org/goleak"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	store    *testutil.MemoryStore
	messages []string
	// persistedAtNotify records whether the entry was already stored when
	// the broadcast happened.
	persistedAtNotify []bool
	err               error
}

func (r *recordingBroadcaster) Broadcast(ctx context.Context, msg models.Message) error {
	var stored []models.LogEntry
	r.store.Get(ctx, models.KeyConsoleLog, &stored)
	found := false
	for _, e := range stored {
		if e.Message == msg.Entry.Message {
			found = true
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg.Entry.Message)
	r.persistedAtNotify = append(r.persistedAtNotify, found)
	return r.err
}

func flush(t *testing.T, s *Sink) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}

func messages(entries []models.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestRecord_PersistsInCallOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := testutil.NewMemoryStore()
	s := New(store, nil, DefaultCapacity, nil)

	for i := 0; i < 20; i++ {
		s.Record(fmt.Sprintf("msg %d", i))
	}
	flush(t, s)

	entries, err := s.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 20)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("msg %d", i), e.Message)
	}
}

func TestRecord_KeepsLastCapacityEntries(t *testing.T) {
	for _, n := range []int{1, 99, 100, 101, 250} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			store := testutil.NewMemoryStore()
			s := New(store, nil, DefaultCapacity, nil)

			for i := 0; i < n; i++ {
				s.Record(fmt.Sprintf("msg %d", i))
			}
			flush(t, s)

			entries, err := s.Entries(context.Background())
			require.NoError(t, err)

			want := n
			if want > DefaultCapacity {
				want = DefaultCapacity
			}
			require.Len(t, entries, want)
			for i, e := range entries {
				assert.Equal(t, fmt.Sprintf("msg %d", n-want+i), e.Message)
			}
		})
	}
}

func TestRecord_ConcurrentCallersLoseNothing(t *testing.T) {
	store := testutil.NewMemoryStore()
	s := New(store, nil, 1000, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				s.Record(fmt.Sprintf("g%d-%d", g, i))
			}
		}(g)
	}
	wg.Wait()
	flush(t, s)

	entries, err := s.Entries(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 200)

	// Per-caller order survives interleaving.
	last := map[string]int{}
	for _, e := range entries {
		var g, i int
		_, err := fmt.Sscanf(e.Message, "g%d-%d", &g, &i)
		require.NoError(t, err)
		key := fmt.Sprint(g)
		if prev, ok := last[key]; ok {
			assert.Greater(t, i, prev)
		}
		last[key] = i
	}
}

func TestRecord_NotifiesAfterPersist(t *testing.T) {
	store := testutil.NewMemoryStore()
	b := &recordingBroadcaster{store: store}
	s := New(store, b, DefaultCapacity, nil)

	s.Record("first")
	s.Record("second")
	s.Record("third")
	flush(t, s)

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, b.messages)
	assert.Equal(t, []bool{true, true, true}, b.persistedAtNotify)
}

func TestRecord_NotifyFailureDoesNotStopDraining(t *testing.T) {
	store := testutil.NewMemoryStore()
	b := &recordingBroadcaster{store: store, err: errors.New("no receiver")}
	s := New(store, b, DefaultCapacity, nil)

	s.Record("a")
	s.Record("b")
	flush(t, s)

	entries, err := s.Entries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, messages(entries))
	assert.Equal(t, 2, store.WriteCount())
}

func TestClear(t *testing.T) {
	store := testutil.NewMemoryStore()
	s := New(store, nil, DefaultCapacity, nil)

	s.Record("before")
	require.NoError(t, s.Clear(context.Background()))
	s.Record("after")
	flush(t, s)

	entries, err := s.Entries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"after"}, messages(entries))
}

type slowBroadcaster struct{ delay time.Duration }

func (b slowBroadcaster) Broadcast(context.Context, models.Message) error {
	time.Sleep(b.delay)
	return nil
}

func TestClear_DoesNotWaitForLaterRecords(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := testutil.NewMemoryStore()
	s := New(store, slowBroadcaster{delay: time.Millisecond}, DefaultCapacity, nil)

	s.Record("before")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.Record("noise")
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Clear(ctx)
	close(stop)
	wg.Wait()
	require.NoError(t, err, "clear returns while records keep arriving")

	flush(t, s)
	entries, err := s.Entries(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, messages(entries), "before")
}

type failingRemove struct{ *testutil.MemoryStore }

func (failingRemove) Remove(context.Context, ...string) error { return errors.New("disk full") }

func TestClear_StoreError(t *testing.T) {
	s := New(failingRemove{testutil.NewMemoryStore()}, nil, DefaultCapacity, nil)

	err := s.Clear(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestFlush_Idle(t *testing.T) {
	s := New(testutil.NewMemoryStore(), nil, 0, nil)
	assert.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, DefaultCapacity, s.capacity)
}

func TestLogEntry_String(t *testing.T) {
	e := models.LogEntry{Timestamp: time.Date(2024, 1, 2, 15, 4, 5, 0, time.Local), Message: "Not logged in."}
	assert.Equal(t, "1/2/2024, 3:04:05 PM: Not logged in.", e.String())
}
