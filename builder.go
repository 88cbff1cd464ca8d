package goSession

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/vault"
	"go.uber.org/zap"
)

// Builder assembles a [Manager]. A Builder can be used for one Build call.
type Builder struct {
	config    Config
	exchanger Exchanger
	backend   vault.Backend
	clock     Clock
	logger    *zap.Logger
	auditSink AuditSink

	built bool
}

// New returns a builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithExchanger sets the backend collaborator. Required.
func (b *Builder) WithExchanger(ex Exchanger) *Builder {
	b.exchanger = ex
	return b
}

// WithBackend sets durable storage. Without one the manager keeps sessions in memory only.
func (b *Builder) WithBackend(backend vault.Backend) *Builder {
	b.backend = backend
	return b
}

// WithClock replaces the wall clock used for renewal scheduling.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger sets the logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination. Audit must also be enabled in the config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration and returns a manager in [StatusIdle].
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.exchanger == nil {
		return nil, errors.New("exchanger required")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}

	store, err := vault.NewStore(b.backend, cfg.Storage.Secret, vault.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:        cfg,
		exchange:   b.exchanger,
		store:      store,
		clock:      clock,
		logger:     logger.Named("session"),
		metrics:    NewMetrics(cfg.Metrics),
		baseCtx:    ctx,
		cancelBase: cancel,
		status:     StatusIdle,
	}
	m.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Now:        clock.Now,
		Logger:     logger,
	}, b.auditSink)

	b.built = true

	return m, nil
}
