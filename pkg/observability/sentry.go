package observability

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/noah-isme/sma-report-api/pkg/config"
)

// InitSentry configures the global Sentry hub. The returned flush func is safe to
// call even when Sentry is disabled.
func InitSentry(cfg *config.Config) (func(), error) {
	if cfg == nil || cfg.Sentry.DSN == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.DSN,
		Environment: cfg.Env,
		Release:     cfg.Sentry.Release,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureErr reports err to Sentry with optional string tags.
func CaptureErr(err error, tags map[string]string) {
	if err == nil {
		return
	}
	if len(tags) == 0 {
		sentry.CaptureException(err)
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}
