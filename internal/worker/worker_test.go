package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/tagrelay/internal/feed"
	"github.com/JakeFAU/tagrelay/internal/filter"
	"github.com/JakeFAU/tagrelay/internal/relay"
	"github.com/JakeFAU/tagrelay/internal/seen"
	"github.com/JakeFAU/tagrelay/internal/sink"
)

type stubFeed struct {
	mu        sync.Mutex
	snap      relay.Snapshot
	ensureErr error
	fetchErr  error
	fetches   int
	reloads   int
	recreates []string
	nudges    int
}

func (f *stubFeed) Alive() bool { return true }

func (f *stubFeed) EnsureAlive(context.Context) error { return f.ensureErr }

func (f *stubFeed) Nudge(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nudges++
	return nil
}

func (f *stubFeed) Fetch(context.Context) (relay.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.snap, f.fetchErr
}

func (f *stubFeed) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return errors.New("reload also failed")
}

func (f *stubFeed) Recreate(_ context.Context, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recreates = append(f.recreates, reason)
	return nil
}

func (f *stubFeed) Close() {}

type recordingDispatcher struct {
	mu       sync.Mutex
	payloads []relay.Payload
	err      error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, p relay.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, p)
	return d.err
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.payloads)
}

func openSeen(t *testing.T, path string) *seen.FileStore {
	t.Helper()
	s, err := seen.OpenFile(path, nil)
	require.NoError(t, err)
	return s
}

func TestTickDispatchesThenDeduplicates(t *testing.T) {
	t.Parallel()

	f := &stubFeed{snap: relay.Snapshot{Candidates: []relay.Candidate{
		{ID: "1", Text: "hello #foo world", Handle: "alice"},
	}}}
	d := &recordingDispatcher{}
	path := filepath.Join(t.TempDir(), "seen_ids.txt")
	store := openSeen(t, path)
	w := New(f, filter.New([]string{"foo"}, 0), store, d, Config{}, zap.NewNop())

	stats := w.Tick(context.Background())
	assert.Equal(t, Stats{Visible: 1, Dispatched: 1}, stats)
	require.Len(t, d.payloads, 1)
	assert.Equal(t, relay.Payload{ID: "1", Content: "hello world", Username: "@alice", Handle: "@alice"}, d.payloads[0])
	assert.True(t, store.Has("1"))

	stats = w.Tick(context.Background())
	assert.Equal(t, 0, stats.Dispatched)
	assert.Equal(t, 1, d.count())

	restarted := New(f, filter.New([]string{"foo"}, 0), openSeen(t, path), d, Config{}, nil)
	restarted.Tick(context.Background())
	assert.Equal(t, 1, d.count())
	assert.Equal(t, 3, f.nudges)
}

func TestTickWebhookFailureStillMarksSeen(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	dispatcher := sink.NewDispatcher(logger, sink.Target{Name: "webhook", Sink: sink.NewWebhook(srv.URL, nil)})

	f := &stubFeed{snap: relay.Snapshot{Candidates: []relay.Candidate{
		{ID: "1", Text: "a #foo"},
		{ID: "2", Text: "b #foo"},
	}}}
	store := openSeen(t, filepath.Join(t.TempDir(), "seen.txt"))
	w := New(f, filter.New([]string{"foo"}, 0), store, dispatcher, Config{Pace: time.Millisecond}, logger)

	stats := w.Tick(context.Background())
	assert.Equal(t, 2, stats.Dispatched)
	assert.True(t, store.Has("1"))
	assert.True(t, store.Has("2"))
	assert.Equal(t, 2, logs.FilterMessage("delivery failed").Len())
	assert.Zero(t, f.reloads)
}

func TestTickSessionLostRecreatesWithoutReload(t *testing.T) {
	t.Parallel()

	f := &stubFeed{fetchErr: fmt.Errorf("snapshot: %w", feed.ErrSessionLost)}
	d := &recordingDispatcher{}
	w := New(f, filter.New([]string{"foo"}, 0), openSeen(t, filepath.Join(t.TempDir(), "s")), d, Config{}, nil)

	w.Tick(context.Background())
	assert.Len(t, f.recreates, 1)
	assert.Zero(t, f.reloads)
	assert.Zero(t, d.count())
}

func TestTickOtherErrorReloads(t *testing.T) {
	t.Parallel()

	f := &stubFeed{fetchErr: errors.New("selector timeout")}
	w := New(f, filter.New([]string{"foo"}, 0), openSeen(t, filepath.Join(t.TempDir(), "s")), &recordingDispatcher{}, Config{}, nil)

	w.Tick(context.Background())
	assert.Equal(t, 1, f.reloads)
	assert.Empty(t, f.recreates)
}

func TestTickEnsureAliveFailureSkipsFetch(t *testing.T) {
	t.Parallel()

	f := &stubFeed{ensureErr: fmt.Errorf("recreate: %w", feed.ErrSessionLost)}
	w := New(f, filter.New([]string{"foo"}, 0), openSeen(t, filepath.Join(t.TempDir(), "s")), &recordingDispatcher{}, Config{}, nil)

	w.Tick(context.Background())
	assert.Zero(t, f.fetches)
	assert.Len(t, f.recreates, 1)
}

func TestTickZeroItemsLogsHint(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	f := &stubFeed{snap: relay.Snapshot{Title: "X", LoginWall: true}}
	w := New(f, filter.New([]string{"foo"}, 0), openSeen(t, filepath.Join(t.TempDir(), "s")), &recordingDispatcher{}, Config{}, zap.New(core))

	stats := w.Tick(context.Background())
	assert.Zero(t, stats.Visible)
	entries := logs.FilterMessage("no posts found").All()
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].ContextMap()["login_wall_suspected"])
	assert.Equal(t, "X", entries[0].ContextMap()["title"])
	assert.Zero(t, f.reloads)
}

func TestTickExaminesAtMostMaxItems(t *testing.T) {
	t.Parallel()

	var candidates []relay.Candidate
	for i := 0; i < 15; i++ {
		candidates = append(candidates, relay.Candidate{ID: fmt.Sprint(i), Text: "x #foo"})
	}
	f := &stubFeed{snap: relay.Snapshot{Candidates: candidates}}
	d := &recordingDispatcher{}
	w := New(f, filter.New([]string{"foo"}, 0), openSeen(t, filepath.Join(t.TempDir(), "s")), d, Config{}, nil)

	stats := w.Tick(context.Background())
	assert.Equal(t, 15, stats.Visible)
	assert.Equal(t, DefaultMaxItems, stats.Dispatched)
	assert.Equal(t, "0", d.payloads[0].ID)
	assert.Equal(t, "9", d.payloads[9].ID)
}

func TestTickDebugPost(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	f := &stubFeed{snap: relay.Snapshot{Candidates: []relay.Candidate{{ID: "5", Text: "x #foo", AvatarURL: "https://a"}}}}
	w := New(f, filter.New([]string{"foo"}, 0), openSeen(t, filepath.Join(t.TempDir(), "s")), &recordingDispatcher{}, Config{DebugPost: true}, zap.New(core))

	w.Tick(context.Background())
	entries := logs.FilterMessage("send").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "-", entries[0].ContextMap()["user"])
	assert.Equal(t, true, entries[0].ContextMap()["avatar"])
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := &stubFeed{}
	w := New(f, filter.New([]string{"foo"}, 0), openSeen(t, filepath.Join(t.TempDir(), "s")), &recordingDispatcher{}, Config{Interval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.fetches >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
