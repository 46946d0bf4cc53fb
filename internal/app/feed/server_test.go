package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xray/internal/app/envelope"
	"xray/internal/app/query"
	"xray/internal/app/selection"
	"xray/internal/app/session"
	"xray/internal/app/stats"
	"xray/internal/app/store"
	"xray/internal/config"
	"xray/internal/config/logger"
)

func newTestSession(t *testing.T) session.Session {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "xray.db")

	log := logger.NewLogger(cfg)

	s, err := store.NewStore(cfg, log)
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })

	return session.NewSession(
		envelope.NewDecoder(),
		s,
		query.NewEngine(cfg, s, log),
		selection.NewTracker(log),
		stats.NewCounters(cfg, s, log),
		log,
	)
}

func newTestFeed(t *testing.T, name string) (*server, session.Session) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Feed.Name = name

	sess := newTestSession(t)

	s := NewServer(cfg, sess, logger.NewLogger(cfg)).(*server)

	return s, sess
}

func subscribe(t *testing.T, socketPath string, topics []string) net.Conn {
	t.Helper()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)

	data, err := json.Marshal(SubscribeRequest{Type: MessageSubscribe, Topics: topics})
	require.NoError(t, err)

	_, err = conn.Write(append(data, '\n'))
	require.NoError(t, err)

	return conn
}

func readFrames(conn net.Conn, frames chan<- Frame) {
	reader := bufio.NewReader(conn)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var frame Frame
		if json.Unmarshal(line, &frame) == nil {
			frames <- frame
		}
	}
}

func Test_Feed_SocketPath(t *testing.T) {
	s, _ := newTestFeed(t, "path-check")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))

	defer s.Stop()

	expected := filepath.Join(config.SocketDir, config.SocketPrefix+"path-check"+config.SocketSuffix)
	assert.Equal(t, expected, s.SocketPath())
}

func Test_Feed_StartAndStop(t *testing.T) {
	s, _ := newTestFeed(t, "start-stop")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.running.Load())
	assert.FileExists(t, s.socketPath)

	require.NoError(t, s.Stop())
	assert.False(t, s.running.Load())
	assert.NoFileExists(t, s.socketPath)
}

func Test_Feed_Disabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Feed.Enabled = false

	s := NewServer(cfg, newTestSession(t), logger.NewLogger(cfg)).(*server)

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.running.Load())
	assert.NoError(t, s.Stop())
}

func Test_Feed_PrimesNewClient(t *testing.T) {
	s, sess := newTestFeed(t, "prime")

	_, err := sess.Ingest([]byte(`{"level":"error","project":"svc-a","payload":"Ym9vbQ=="}`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))

	defer s.Stop()

	conn := subscribe(t, s.SocketPath(), nil)

	defer conn.Close()

	frames := make(chan Frame, 16)
	go readFrames(conn, frames)

	seen := map[MessageType]Frame{}

	deadline := time.After(time.Second)
	for len(seen) < 3 {
		select {
		case frame := <-frames:
			seen[frame.Type] = frame
		case <-deadline:
			t.Fatalf("Expected all topics primed, got %v", seen)
		}
	}

	require.Len(t, seen[MessageLogs].Records, 1)
	assert.Equal(t, "boom", seen[MessageLogs].Records[0].Message)
	require.NotNil(t, seen[MessageCounts].Counts)
	assert.Equal(t, 1, seen[MessageCounts].Counts.Total)
	assert.Equal(t, []string{"svc-a"}, seen[MessageProjects].Projects)
}

func Test_Feed_StreamsOnMutation(t *testing.T) {
	s, sess := newTestFeed(t, "stream")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))

	defer s.Stop()

	conn := subscribe(t, s.SocketPath(), []string{"logs"})

	defer conn.Close()

	frames := make(chan Frame, 16)
	go readFrames(conn, frames)

	// drain the primed frame
	select {
	case <-frames:
	case <-time.After(time.Second):
		t.Fatal("Expected primed frame")
	}

	_, err := sess.Ingest([]byte(`{"level":"info","project":"svc-b","payload":"aGV5"}`))
	require.NoError(t, err)

	deadline := time.After(time.Second)
	for {
		select {
		case frame := <-frames:
			require.Equal(t, MessageLogs, frame.Type)

			if len(frame.Records) == 1 {
				assert.Equal(t, "hey", frame.Records[0].Message)

				return
			}
		case <-deadline:
			t.Fatal("Expected snapshot frame after ingest")
		}
	}
}

func Test_Feed_TopicFilter(t *testing.T) {
	s, sess := newTestFeed(t, "topics")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))

	defer s.Stop()

	conn := subscribe(t, s.SocketPath(), []string{"counts"})

	defer conn.Close()

	frames := make(chan Frame, 16)
	go readFrames(conn, frames)

	_, err := sess.Ingest([]byte(`{"level":"info","project":"svc-a","payload":"aGV5"}`))
	require.NoError(t, err)

	deadline := time.After(time.Second)
	for {
		select {
		case frame := <-frames:
			require.Equal(t, MessageCounts, frame.Type)

			if frame.Counts != nil && frame.Counts.Total == 1 {
				return
			}
		case <-deadline:
			t.Fatal("Expected counts frame")
		}
	}
}

func Test_Feed_cleanupStaleSocket_StaleSocketIsRemoved(t *testing.T) {
	socketPath := filepath.Join(config.SocketDir, config.SocketPrefix+"stale-test"+config.SocketSuffix)

	f, err := os.Create(socketPath)
	require.NoError(t, err)
	f.Close()

	s, _ := newTestFeed(t, "stale-test")
	s.socketPath = socketPath

	require.NoError(t, s.cleanupStaleSocket())
	assert.NoFileExists(t, socketPath)
}

func Test_Feed_cleanupStaleSocket_ActiveSocketReturnsError(t *testing.T) {
	socketPath := filepath.Join(config.SocketDir, config.SocketPrefix+"active-test"+config.SocketSuffix)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Skip("Cannot create unix socket listener:", err)
	}

	defer listener.Close()
	defer os.Remove(socketPath)

	s, _ := newTestFeed(t, "active-test")
	s.socketPath = socketPath

	assert.Error(t, s.cleanupStaleSocket())
}
