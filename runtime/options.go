package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/guest-bridge/config"
	"github.com/wippyai/guest-bridge/proxy"
)

// ExitHandler runs once during Finalize, before the engine shuts down.
type ExitHandler func(ctx context.Context) error

type options struct {
	logger  *zap.Logger
	cfg     *config.Config
	exit    ExitHandler
	workers int
	mode    *proxy.Mode
}

// Option configures a Runtime.
type Option func(*options)

// WithLogger sets the logger of the runtime and of the engine and proxy
// packages. It takes precedence over the log settings of WithConfig.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithConfig applies loaded configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = &cfg }
}

// WithExitHandler sets the handler Finalize runs first.
func WithExitHandler(h ExitHandler) Option {
	return func(o *options) { o.exit = h }
}

// WithWorkers bounds concurrent async guest calls. It overrides the
// configured worker count.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithDefaultMode sets the mode of proxies returned by the runtime. It
// overrides the configured mode.
func WithDefaultMode(m proxy.Mode) Option {
	return func(o *options) { o.mode = &m }
}

// modeFromConfig converts configured mode flags.
func modeFromConfig(c config.ModeConfig) proxy.Mode {
	return proxy.Mode{
		AttributeCheck:        c.AttributeCheck,
		AsyncOverride:         c.AsyncOverride,
		GetReference:          c.GetReference,
		GetReferenceOnIterate: c.GetReferenceOnIterate,
	}
}
