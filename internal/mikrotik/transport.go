package mikrotik

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/metrics"
)

// ConfigSource supplies the current router settings. It returns ErrNotConfigured
// when no router is set up.
type ConfigSource interface {
	RouterConfig(ctx context.Context) (*Config, error)
}

// Transport opens one short-lived session per call. There is no pool: the
// settings are re-read on every call so credential edits apply immediately.
type Transport struct {
	source         ConfigSource
	log            *zap.Logger
	defaultTimeout time.Duration
	dial           func(ctx context.Context, cfg Config) (runner, error)
}

// NewTransport creates a Transport reading its settings from source.
func NewTransport(source ConfigSource, log *zap.Logger, defaultTimeout time.Duration) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{
		source:         source,
		log:            log,
		defaultTimeout: defaultTimeout,
		dial: func(ctx context.Context, cfg Config) (runner, error) {
			return Dial(ctx, cfg)
		},
	}
}

// WithConnection opens an authenticated session, passes it to fn and closes it
// on every exit path. Close errors are logged and never replace fn's result.
func (t *Transport) WithConnection(ctx context.Context, fn func(Commands) error) error {
	cfg, err := t.source.RouterConfig(ctx)
	if err != nil {
		return err
	}
	if cfg == nil || cfg.Host == "" {
		return ErrNotConfigured
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = t.defaultTimeout
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := t.dial(ctx, *cfg)
	if err != nil {
		metrics.RouterConnectErrors.Inc()
		t.log.Warn("Router: connect failed", zap.String("address", cfg.Address()), zap.Error(err))
		return unavailable("connect", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			t.log.Debug("Router: close failed", zap.Error(cerr))
		}
	}()

	return fn(&session{conn: conn})
}

// IsNotConfigured reports whether err is ErrNotConfigured.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}
