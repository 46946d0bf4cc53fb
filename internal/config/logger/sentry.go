package logger

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"xray/internal/config"
)

const sentryFlushTimeout = 2 * time.Second

// sentryHook forwards error-level log events to sentry
type sentryHook struct{}

// newSentryHook initializes sentry when a DSN is configured and returns a
// zerolog hook that reports error events. Returns nil when reporting is
// disabled.
func newSentryHook(cfg *config.Config) zerolog.Hook {
	if cfg.Sentry.DSN == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:     cfg.Sentry.DSN,
		Release: fmt.Sprintf("%s@%s", config.AppName, config.Version),
	})
	if err != nil {
		return nil
	}

	return &sentryHook{}
}

// Run implements zerolog.Hook
func (h *sentryHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level < zerolog.ErrorLevel || msg == "" {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		sentry.CaptureMessage(msg)
	})
}

// Flush drains any pending sentry events, typically on shutdown
func Flush() {
	sentry.Flush(sentryFlushTimeout)
}
