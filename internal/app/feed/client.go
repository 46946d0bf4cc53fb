package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"xray/internal/app/errors"
	"xray/internal/config"
)

// Client connects to a running xray instance and streams feed frames
type Client interface {
	Connect(socketPath string) error
	Subscribe(topics []string) error
	Stream(ctx context.Context, output io.Writer) error
	Close() error
}

type client struct {
	conn net.Conn
}

// NewClient creates a new feed client
func NewClient() Client {
	return &client{}
}

// Connect connects to the xray feed socket
func (c *client) Connect(socketPath string) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrFailedToConnectSocket, err)
	}

	c.conn = conn

	return nil
}

// Subscribe sends a subscription request for the specified topics
func (c *client) Subscribe(topics []string) error {
	req := SubscribeRequest{
		Type:   MessageSubscribe,
		Topics: topics,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrFailedToMarshalFrame, err)
	}

	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrFailedToWriteSocket, err)
	}

	return nil
}

// Stream reads frames and writes them to output, one JSON document per line
func (c *client) Stream(ctx context.Context, output io.Writer) error {
	reader := bufio.NewReader(c.conn)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					return nil
				}

				return fmt.Errorf("%w: %w", errors.ErrFailedToReadSocket, err)
			}

			if !json.Valid(line) {
				continue
			}

			if _, err := output.Write(line); err != nil {
				return err
			}
		}
	}
}

// Close closes the connection
func (c *client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}

// FindSocket finds the socket for a running xray instance in the given directory
func FindSocket(socketDir, name string) (string, error) {
	if name != "" {
		socketPath := SocketPathForName(socketDir, name)
		if _, err := os.Stat(socketPath); err == nil {
			return socketPath, nil
		}

		return "", fmt.Errorf("%w: '%s'", errors.ErrInstanceNotFound, name)
	}

	pattern := filepath.Join(socketDir, config.SocketPrefix+"*"+config.SocketSuffix)

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrSocketSearchFailed, err)
	}

	if len(matches) == 0 {
		return "", errors.ErrNoInstanceRunning
	}

	if len(matches) > 1 {
		names := make([]string, len(matches))
		for i, m := range matches {
			base := filepath.Base(m)
			names[i] = strings.TrimSuffix(strings.TrimPrefix(base, config.SocketPrefix), config.SocketSuffix)
		}

		return "", fmt.Errorf("%w, specify with --feed: %v", errors.ErrMultipleFeedsRunning, names)
	}

	return matches[0], nil
}
