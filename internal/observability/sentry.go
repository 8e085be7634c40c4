package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/spec-kit/ticket-triage/internal/config"
)

var sentryEnabled bool

// InitSentry enables error reporting when a DSN is configured.
func InitSentry(logCfg config.LoggerConfig, appCfg config.AppConfig) error {
	if logCfg.SentryDSN == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         logCfg.SentryDSN,
		Environment: appCfg.Env,
		Release:     appCfg.Name + "@" + appCfg.Version,
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	sentryEnabled = true
	return nil
}

// CaptureError forwards err to Sentry with optional tags. No-op when disabled.
func CaptureError(err error, tags map[string]string) {
	if !sentryEnabled || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// FlushSentry waits for buffered events to be sent.
func FlushSentry(timeout time.Duration) {
	if sentryEnabled {
		sentry.Flush(timeout)
	}
}
