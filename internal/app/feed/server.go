package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"xray/internal/app/errors"
	"xray/internal/app/query"
	"xray/internal/app/session"
	"xray/internal/app/stats"
	"xray/internal/config"
	"xray/internal/config/logger"
)

// Server streams live state to out-of-process consumers over a Unix socket.
// Every subscriber gets a full frame per topic on connect, then a new frame
// whenever that topic's state changes.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	SocketPath() string
}

// server implements the Server interface
type server struct {
	socketPath string
	bufferSize int
	enabled    bool
	name       string
	session    session.Session
	listener   net.Listener
	hub        Hub
	running    atomic.Bool
	wg         sync.WaitGroup
	connID     atomic.Int64
	cancel     context.CancelFunc
	log        logger.Logger
}

// NewServer creates a new feed server
func NewServer(cfg *config.Config, sess session.Session, log logger.Logger) Server {
	return &server{
		bufferSize: cfg.Feed.Buffer,
		enabled:    cfg.Feed.Enabled,
		name:       cfg.Feed.Name,
		session:    sess,
		hub:        NewHub(cfg.Feed.Buffer),
		log:        log.WithComponent("FEED"),
	}
}

// SocketPath returns the socket path for this server
func (s *server) SocketPath() string {
	return s.socketPath
}

// SocketPathForName constructs the socket path for a given instance name
func SocketPathForName(socketDir, name string) string {
	return filepath.Join(socketDir, config.SocketPrefix+name+config.SocketSuffix)
}

// Start starts the Unix socket server and the broadcast pumps
func (s *server) Start(ctx context.Context) error {
	if !s.enabled {
		s.log.Debug().Msg("Feed disabled")

		return nil
	}

	s.socketPath = SocketPathForName(config.SocketDir, s.name)

	if err := s.cleanupStaleSocket(); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrFailedToCleanupSocket, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("%w %s: %w", errors.ErrFailedToListenSocket, s.socketPath, err)
	}

	s.listener = listener
	s.running.Store(true)
	s.log.Info().Msgf("Feed listening on %s", s.socketPath)

	serverCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.hub.Run(serverCtx)
	}()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.pump(serverCtx)
	}()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.acceptConnections(serverCtx)
	}()

	return nil
}

// Stop stops the server and cleans up resources
func (s *server) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)

	if s.cancel != nil {
		s.cancel()
	}

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Msgf("Failed to remove socket file: %s", s.socketPath)
	}

	s.log.Info().Msg("Feed stopped")

	return nil
}

// pump forwards session state changes to the hub as frames
func (s *server) pump(ctx context.Context) {
	logsCh := s.session.WatchLogs(ctx)
	totalsCh := s.session.WatchTotals(ctx)

	for logsCh != nil || totalsCh != nil {
		select {
		case snapshot, ok := <-logsCh:
			if !ok {
				logsCh = nil

				continue
			}

			s.hub.Broadcast(logsFrame(snapshot))
		case totals, ok := <-totalsCh:
			if !ok {
				totalsCh = nil

				continue
			}

			s.hub.Broadcast(countsFrame(totals))
			s.hub.Broadcast(projectsFrame(totals))
		}
	}
}

// cleanupStaleSocket removes stale socket file if not in use
func (s *server) cleanupStaleSocket() error {
	if _, err := os.Stat(s.socketPath); os.IsNotExist(err) {
		return nil
	}

	conn, err := net.DialTimeout("unix", s.socketPath, config.SocketDialTimeout)
	if err == nil {
		conn.Close()

		return fmt.Errorf("%w: %s", errors.ErrSocketAlreadyInUse, s.socketPath)
	}

	s.log.Info().Msgf("Removing stale socket: %s", s.socketPath)

	return os.Remove(s.socketPath)
}

// acceptConnections handles incoming client connections
func (s *server) acceptConnections(ctx context.Context) {
	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.log.Error().Err(err).Msg("Failed to accept connection")
			}

			continue
		}

		s.wg.Add(1)

		go func(c net.Conn) {
			defer s.wg.Done()

			s.handleConnection(ctx, c)
		}(conn)
	}
}

// handleConnection processes a single client connection
func (s *server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connID := s.connID.Add(1)
	clientID := fmt.Sprintf("client-%d", connID)
	client := NewClientConn(clientID, s.bufferSize)

	s.log.Debug().Msgf("Client connected: %s", clientID)

	reader := bufio.NewReader(conn)

	line, err := reader.ReadBytes('\n')
	if err != nil {
		s.log.Error().Err(err).Msgf("Failed to read from client %s", clientID)
		return
	}

	var req SubscribeRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.log.Error().Err(err).Msgf("Failed to parse subscribe request from %s", clientID)
		return
	}

	if req.Type != MessageSubscribe {
		s.log.Error().Msgf("Expected subscribe message from %s, got %s", clientID, req.Type)
		return
	}

	client.SetSubscription(req.Topics)
	s.hub.Register(client)

	defer s.hub.Unregister(client)

	s.log.Debug().Msgf("Client %s subscribed to topics: %v", clientID, req.Topics)

	s.prime(client)

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-client.SendChan:
			if !ok {
				return
			}

			data, err := json.Marshal(frame)
			if err != nil {
				s.log.Error().Err(err).Msgf("Failed to marshal frame for %s", clientID)
				continue
			}

			data = append(data, '\n')
			if _, err := conn.Write(data); err != nil {
				s.log.Debug().Err(err).Msgf("Client %s disconnected", clientID)
				return
			}
		}
	}
}

// prime sends the current state of each subscribed topic so a fresh client
// renders without waiting for the next mutation
func (s *server) prime(client *ClientConn) {
	snapshot := s.session.Snapshot()
	totals := s.session.Totals()

	for _, frame := range []Frame{logsFrame(snapshot), countsFrame(totals), projectsFrame(totals)} {
		if !client.ShouldReceive(frame.Type) {
			continue
		}

		select {
		case client.SendChan <- frame:
		default:
		}
	}
}

func logsFrame(snapshot query.Snapshot) Frame {
	frame := Frame{
		Type:      MessageLogs,
		Records:   snapshot.Records,
		Bookmarks: snapshot.Bookmarks,
	}

	if snapshot.Err != nil {
		frame.Error = snapshot.Err.Error()
	}

	return frame
}

func countsFrame(totals stats.Totals) Frame {
	frame := Frame{Type: MessageCounts}

	if totals.Err != nil {
		frame.Error = totals.Err.Error()

		return frame
	}

	counts := totals.Counts
	frame.Counts = &counts

	return frame
}

func projectsFrame(totals stats.Totals) Frame {
	frame := Frame{Type: MessageProjects, Projects: totals.Projects}

	if totals.Err != nil {
		frame.Error = totals.Err.Error()
	}

	return frame
}
