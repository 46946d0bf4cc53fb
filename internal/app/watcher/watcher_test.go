package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xray/internal/app/bus"
	"xray/internal/config"
	"xray/internal/config/logger"
)

func writeConfig(t *testing.T, path, level string) {
	t.Helper()

	body := "logging:\n  level: " + level + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
}

func newTestWatcher(t *testing.T) (*watcher, *config.Config, bus.Bus, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)
	writeConfig(t, path, "info")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	log := logger.NewLogger(cfg)
	b := bus.New(cfg, log)
	t.Cleanup(b.Close)

	w, err := NewWatcher(cfg, b, log)
	require.NoError(t, err)

	t.Cleanup(w.Close)

	return w.(*watcher), cfg, b, path
}

func appliedLevel(w *watcher) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.level
}

func Test_NewWatcher(t *testing.T) {
	w, cfg, _, _ := newTestWatcher(t)

	assert.NotNil(t, w.fsWatcher)
	assert.NotNil(t, w.debouncer)
	assert.Equal(t, cfg, w.cfg)
}

func Test_Watcher_NoConfigFile(t *testing.T) {
	cfg := config.DefaultConfig()
	log := logger.NewLogger(cfg)
	b := bus.New(cfg, log)

	defer b.Close()

	w, err := NewWatcher(cfg, b, log)
	require.NoError(t, err)

	defer w.Close()

	assert.NoError(t, w.Start())
}

func Test_Watcher_ReloadOnChange(t *testing.T) {
	w, cfg, b, path := newTestWatcher(t)

	require.NoError(t, w.Start())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgCh := b.Subscribe(ctx)

	writeConfig(t, path, "debug")

	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-msgCh:
			if msg.Type != bus.EventConfigReloaded {
				continue
			}

			data, ok := msg.Data.(bus.ConfigReloaded)
			require.True(t, ok)
			assert.Equal(t, "debug", data.Level)
			assert.Equal(t, "debug", appliedLevel(w))

			// the shared config is never written after load
			assert.Equal(t, "info", cfg.Logging.Level)

			return
		case <-deadline:
			t.Fatal("Expected config reload event")
		}
	}
}

func Test_Watcher_InvalidConfigKeepsSettings(t *testing.T) {
	w, cfg, b, path := newTestWatcher(t)

	require.NoError(t, w.Start())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgCh := b.Subscribe(ctx)

	require.NoError(t, os.WriteFile(path, []byte(":::not yaml"), 0600))

	select {
	case msg := <-msgCh:
		t.Fatalf("Unexpected bus message: %s", msg.Type)
	case <-time.After(2 * config.WatchDebounce):
	}

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "info", appliedLevel(w))
}

func Test_Watcher_IgnoresOtherFiles(t *testing.T) {
	w, _, b, path := newTestWatcher(t)

	require.NoError(t, w.Start())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgCh := b.Subscribe(ctx)

	other := filepath.Join(filepath.Dir(path), "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("hi"), 0600))

	select {
	case msg := <-msgCh:
		t.Fatalf("Unexpected bus message: %s", msg.Type)
	case <-time.After(2 * config.WatchDebounce):
	}
}

func Test_Watcher_CloseTwice(t *testing.T) {
	w, _, _, _ := newTestWatcher(t)

	w.Close()
	w.Close()
}
