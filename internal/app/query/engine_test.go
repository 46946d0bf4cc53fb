package query

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xray/internal/app/errors"
	"xray/internal/app/filter"
	"xray/internal/app/record"
	"xray/internal/app/store"
	"xray/internal/config"
)

func testEngine(t *testing.T) (Engine, store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "xray.db"), nil)
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })

	cfg := config.DefaultConfig()

	return &engine{
		store:       s,
		buffer:      cfg.Feed.Buffer,
		filter:      filter.Default(),
		subscribers: make(map[chan Snapshot]struct{}),
	}, s
}

func newTestEngine(t *testing.T) (Engine, store.Store) {
	e, s := testEngine(t)
	e.Refresh()
	s.Subscribe(e.(store.Observer))

	return e, s
}

func insert(t *testing.T, s store.Store, id string, level record.Level, project string, ts time.Time) {
	t.Helper()

	require.NoError(t, s.InsertLog(record.Record{
		ID:        id,
		Timestamp: ts,
		Level:     level,
		Project:   project,
		Message:   "message " + id,
	}))
}

func Test_Engine_InitialSnapshot_Empty(t *testing.T) {
	e, _ := newTestEngine(t)

	snapshot := e.Current()
	assert.NoError(t, snapshot.Err)
	assert.Empty(t, snapshot.Records)
}

func Test_Engine_RefreshOnInsert(t *testing.T) {
	e, s := newTestEngine(t)

	insert(t, s, "a", record.LevelError, "svc-a", time.Now())

	snapshot := e.Current()
	require.NoError(t, snapshot.Err)
	require.Len(t, snapshot.Records, 1)
	assert.Equal(t, "a", snapshot.Records[0].ID)
}

func Test_Engine_SetFilter_Synchronous(t *testing.T) {
	e, s := newTestEngine(t)

	now := time.Now()
	insert(t, s, "a", record.LevelError, "svc-a", now)
	insert(t, s, "b", record.LevelInfo, "svc-a", now.Add(time.Second))

	f := filter.Default()
	f.Levels = record.NewLevelSet(record.LevelError)
	e.SetFilter(f)

	// the snapshot must reflect the new filter before SetFilter returns
	snapshot := e.Current()
	require.Len(t, snapshot.Records, 1)
	assert.Equal(t, "a", snapshot.Records[0].ID)
}

func Test_Engine_EmptyLevelSet_ZeroRecords(t *testing.T) {
	e, s := newTestEngine(t)

	insert(t, s, "a", record.LevelError, "svc-a", time.Now())
	insert(t, s, "b", record.LevelInfo, "svc-b", time.Now())

	f := filter.Default()
	f.Levels = record.NewLevelSet()
	e.SetFilter(f)

	assert.Empty(t, e.Current().Records)
}

func Test_Engine_BookmarkToggle_RefreshesBookmarkOnlyView(t *testing.T) {
	e, s := newTestEngine(t)

	now := time.Now()
	insert(t, s, "a", record.LevelInfo, "svc-a", now)
	insert(t, s, "b", record.LevelInfo, "svc-a", now.Add(time.Second))

	f := filter.Default()
	f.BookmarksOnly = true
	e.SetFilter(f)

	assert.Empty(t, e.Current().Records)

	require.NoError(t, s.AddBookmark("a"))

	snapshot := e.Current()
	require.Len(t, snapshot.Records, 1)
	assert.Equal(t, "a", snapshot.Records[0].ID)
	assert.True(t, snapshot.Bookmarks["a"])
}

func Test_Engine_Subscribe_PrimedWithCurrent(t *testing.T) {
	e, s := newTestEngine(t)

	insert(t, s, "a", record.LevelInfo, "svc-a", time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.Subscribe(ctx)

	select {
	case snapshot := <-ch:
		require.Len(t, snapshot.Records, 1)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Expected primed snapshot")
	}
}

func Test_Engine_Subscribe_ReceivesUpdates(t *testing.T) {
	e, s := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.Subscribe(ctx)
	<-ch // primed empty snapshot

	insert(t, s, "a", record.LevelInfo, "svc-a", time.Now())

	select {
	case snapshot := <-ch:
		require.Len(t, snapshot.Records, 1)
		assert.Equal(t, "a", snapshot.Records[0].ID)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Expected updated snapshot")
	}
}

func Test_Engine_Subscribe_PrimeOrderedWithRefresh(t *testing.T) {
	e, s := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// subscribe concurrently with a stream of mutations: the primed snapshot
	// must never land behind a newer one, so the last buffered snapshot is
	// always the final state
	var mu sync.Mutex

	var channels []<-chan Snapshot

	var wg sync.WaitGroup

	wg.Add(10)

	for i := 0; i < 10; i++ {
		go func() {
			defer wg.Done()

			ch := e.Subscribe(ctx)

			mu.Lock()
			channels = append(channels, ch)
			mu.Unlock()
		}()
	}

	base := time.Now()
	for i := 0; i < 50; i++ {
		insert(t, s, fmt.Sprintf("r%02d", i), record.LevelInfo, "svc-a", base.Add(time.Duration(i)*time.Second))
	}

	wg.Wait()

	require.Len(t, e.Current().Records, 50)

	for _, ch := range channels {
		var last Snapshot
		for {
			select {
			case snapshot := <-ch:
				last = snapshot

				continue
			default:
			}

			break
		}

		assert.Len(t, last.Records, 50)
	}
}

func Test_Engine_SlowSubscriber_SeesFinalState(t *testing.T) {
	e, s := testEngine(t)
	e.(*engine).buffer = 1
	e.Refresh()
	s.Subscribe(e.(store.Observer))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.Subscribe(ctx)

	base := time.Now()
	for i := 0; i < 10; i++ {
		insert(t, s, string(rune('a'+i)), record.LevelInfo, "svc-a", base.Add(time.Duration(i)*time.Second))
	}

	var last Snapshot
	for {
		select {
		case snapshot := <-ch:
			last = snapshot

			continue
		default:
		}

		break
	}

	assert.Len(t, last.Records, 10)
}

func Test_Engine_StoreError_PropagatesOnSnapshot(t *testing.T) {
	e, s := newTestEngine(t)

	require.NoError(t, s.Close())
	e.Refresh()

	snapshot := e.Current()
	assert.ErrorIs(t, snapshot.Err, errors.ErrStoreUnavailable)
	assert.Empty(t, snapshot.Records)
}

func Test_Engine_Unsubscribe_OnContextCancel(t *testing.T) {
	e, _ := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	ch := e.Subscribe(ctx)
	<-ch

	cancel()
	time.Sleep(10 * time.Millisecond)

	_, ok := <-ch
	assert.False(t, ok)
}
