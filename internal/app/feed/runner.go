package feed

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"xray/internal/config"
)

// Runner handles tail mode: stream the feed of a running instance to stdout
type Runner interface {
	Run(args []string) int
}

type runner struct {
	client Client
}

// NewRunner creates a new tail runner
func NewRunner(client Client) Runner {
	return &runner{client: client}
}

// Run handles the --tail flag to stream frames from a running instance
func (r *runner) Run(args []string) int {
	name, topics := r.parseArgs(args)

	socketPath, err := FindSocket(config.SocketDir, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return r.streamFrames(socketPath, topics, os.Stdout)
}

// parseArgs extracts the instance name and topics from tail arguments
func (r *runner) parseArgs(args []string) (name string, topics []string) {
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "--feed="):
			name = strings.TrimPrefix(arg, "--feed=")
		case strings.HasPrefix(arg, "-"):
			// skip other flags
		default:
			topics = append(topics, arg)
		}
	}

	return name, topics
}

// streamFrames connects to a running xray instance and streams frames
func (r *runner) streamFrames(socketPath string, topics []string, output io.Writer) int {
	if err := r.client.Connect(socketPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	defer r.client.Close()

	if err := r.client.Subscribe(topics); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := r.client.Stream(ctx, output); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}
