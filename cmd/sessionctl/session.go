package main

import (
	"context"
	"errors"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/broadcast"
	"github.com/MrEthical07/goSession/exchange"
	"github.com/MrEthical07/goSession/vault"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const userAgent = "sessionctl/1"

// session is one manager over the configured storage, with its synchronizer.
type session struct {
	manager *goSession.Manager
	sync    *goSession.Synchronizer
	closers []func() error
}

// openSession builds the storage backend, exchange client and manager described by s.
func openSession(s settings, logger *zap.Logger) (*session, error) {
	if s.Secret == "" {
		return nil, errNoSecret
	}

	out := &session{}
	var (
		backend vault.Backend
		bus     broadcast.Bus
	)
	switch s.Storage {
	case storageRedis:
		client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		out.closers = append(out.closers, client.Close)
		backend = vault.NewRedisBackend(client, vault.RedisConfig{Prefix: s.RedisPrefix}, logger)
		bus = broadcast.NewRedis(client, s.RedisPrefix+":broadcast", logger)
	default:
		fb, err := vault.NewFileBackend(s.Dir, logger)
		if err != nil {
			return nil, err
		}
		backend = fb
	}

	ex, err := exchange.NewClient(exchange.Config{
		BaseURL:   s.APIURL,
		UserAgent: userAgent,
		Logger:    logger,
	})
	if err != nil {
		return nil, multierr.Append(err, out.closeAll())
	}

	cfg := goSession.DefaultConfig()
	cfg.Storage.Key = s.Key
	cfg.Storage.Secret = s.Secret

	m, err := goSession.New().
		WithConfig(cfg).
		WithExchanger(ex).
		WithBackend(backend).
		WithLogger(logger).
		Build()
	if err != nil {
		return nil, multierr.Append(err, out.closeAll())
	}
	out.manager = m
	out.sync = goSession.NewSynchronizer(m, bus)
	return out, nil
}

// start resolves the stored session and begins following other processes.
func (s *session) start(ctx context.Context) (goSession.Snapshot, error) {
	if err := s.sync.Start(ctx); err != nil && !errors.Is(err, goSession.ErrSynchronizerStarted) {
		return goSession.Snapshot{}, err
	}
	return s.manager.Initialize(ctx), nil
}

// Close stops the synchronizer first so that queued broadcasts are still published.
func (s *session) Close() error {
	var err error
	if s.sync != nil {
		err = multierr.Append(err, s.sync.Close())
	}
	if s.manager != nil {
		err = multierr.Append(err, s.manager.Close())
	}
	return multierr.Append(err, s.closeAll())
}

func (s *session) closeAll() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i]())
	}
	s.closers = nil
	return err
}
