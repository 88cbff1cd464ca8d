package goSession

import (
	"context"
	"errors"
	"sync"

	"github.com/MrEthical07/goSession/broadcast"
	"github.com/MrEthical07/goSession/vault"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type signal uint8

const (
	signalStorage signal = iota + 1
	signalRenewed
	signalLogout
	signalUnauthorized
)

const (
	signalBuffer   = 64
	outboundBuffer = 16
)

// Synchronizer keeps a [Manager] consistent with other instances sharing its storage.
//
// It consumes storage changes from the vault backend, messages from an optional
// [broadcast.Bus], and same-process unauthorized notifications. Signals already queued when a
// batch starts are handled together; when the batch contains a logout-type signal only the
// logout is applied.
//
// It also announces the manager's own logins, renewals and logouts on the bus.
type Synchronizer struct {
	manager *Manager
	bus     broadcast.Bus
	origin  string
	logger  *zap.Logger

	signals  chan signal
	outbound chan broadcast.Kind

	mu          sync.Mutex
	done        <-chan struct{}
	running     bool
	stopped     bool
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewSynchronizer returns a synchronizer for m. bus may be nil.
func NewSynchronizer(m *Manager, bus broadcast.Bus) *Synchronizer {
	return &Synchronizer{
		manager:  m,
		bus:      bus,
		origin:   uuid.NewString(),
		logger:   m.logger.Named("sync"),
		signals:  make(chan signal, signalBuffer),
		outbound: make(chan broadcast.Kind, outboundBuffer),
	}
}

// Origin returns the id this synchronizer stamps on its broadcasts.
func (s *Synchronizer) Origin() string {
	return s.origin
}

// Start subscribes to the storage backend and the bus and starts processing signals until ctx
// is done or Close is called. A backend without change notification is tolerated.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.stopped {
		return ErrSynchronizerStarted
	}

	ctx, cancel := context.WithCancel(ctx)

	changes, err := s.manager.store.Watch(ctx)
	if err != nil && !errors.Is(err, vault.ErrWatchUnsupported) {
		cancel()
		return err
	}

	var inbound <-chan broadcast.Message
	if s.bus != nil {
		inbound, err = s.bus.Subscribe(ctx)
		if err != nil {
			cancel()
			return err
		}
	}

	s.cancel = cancel
	s.done = ctx.Done()
	s.running = true
	s.unsubscribe = s.manager.Subscribe(s.onEvent)

	s.wg.Add(3)
	go s.listen(ctx, changes, inbound)
	go s.run(ctx)
	go s.announce(ctx)

	return nil
}

// NotifyUnauthorized reports that the backend rejected the current access token. The session
// ends without a network call and the stored envelope is removed. Before Start, or after
// Close, the effect is applied synchronously.
func (s *Synchronizer) NotifyUnauthorized() {
	s.mu.Lock()
	running, done := s.running, s.done
	s.mu.Unlock()

	if running {
		select {
		case s.signals <- signalUnauthorized:
			return
		case <-done:
		}
	}
	s.manager.endSession(context.Background(), EventUnauthorized)
}

// Close stops processing and waits for background goroutines.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	if !s.running {
		s.stopped = true
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.stopped = true
	cancel, unsubscribe := s.cancel, s.unsubscribe
	s.mu.Unlock()

	unsubscribe()
	cancel()
	s.wg.Wait()
	return nil
}

func (s *Synchronizer) listen(ctx context.Context, changes <-chan vault.Change, inbound <-chan broadcast.Message) {
	defer s.wg.Done()

	key := s.manager.cfg.Storage.Key
	for changes != nil || inbound != nil {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if c.Key == key {
				s.offer(signalStorage)
			}
		case msg, ok := <-inbound:
			if !ok {
				inbound = nil
				continue
			}
			if msg.Origin == s.origin {
				continue
			}
			switch msg.Kind {
			case broadcast.Logout:
				select {
				case s.signals <- signalLogout:
				case <-ctx.Done():
					return
				}
			case broadcast.Renewed:
				s.offer(signalRenewed)
			}
		}
	}
	<-ctx.Done()
}

// offer queues a re-check signal. A full queue already holds a pending re-check.
func (s *Synchronizer) offer(sig signal) {
	select {
	case s.signals <- sig:
	default:
	}
}

func (s *Synchronizer) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-s.signals:
			s.apply(ctx, s.batch(sig))
		}
	}
}

func (s *Synchronizer) batch(first signal) []signal {
	batch := []signal{first}
	for {
		select {
		case sig := <-s.signals:
			batch = append(batch, sig)
		default:
			return batch
		}
	}
}

func (s *Synchronizer) apply(ctx context.Context, batch []signal) {
	var unauthorized, logout, recheck bool
	for _, sig := range batch {
		switch sig {
		case signalUnauthorized:
			unauthorized = true
		case signalLogout:
			logout = true
		case signalStorage, signalRenewed:
			recheck = true
		}
	}

	switch {
	case unauthorized:
		s.manager.endSession(ctx, EventUnauthorized)
	case logout:
		s.manager.endSession(ctx, EventForeignLogout)
	case recheck:
		s.manager.reconcile(ctx)
	}
}

func (s *Synchronizer) onEvent(ev Event) {
	var kind broadcast.Kind
	switch ev.Kind {
	case EventLogin, EventRefreshed:
		kind = broadcast.Renewed
	case EventLogout, EventUnauthorized:
		kind = broadcast.Logout
	default:
		return
	}
	if s.bus == nil {
		return
	}
	select {
	case s.outbound <- kind:
	default:
		s.logger.Warn("broadcast queue full, dropping signal", zap.String("kind", string(kind)))
	}
}

func (s *Synchronizer) announce(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			s.drainOutbound(context.WithoutCancel(ctx))
			return
		case kind := <-s.outbound:
			s.publish(context.WithoutCancel(ctx), kind)
		}
	}
}

func (s *Synchronizer) drainOutbound(ctx context.Context) {
	for {
		select {
		case kind := <-s.outbound:
			s.publish(ctx, kind)
		default:
			return
		}
	}
}

func (s *Synchronizer) publish(ctx context.Context, kind broadcast.Kind) {
	msg := broadcast.Message{Kind: kind, Origin: s.origin}
	if err := s.bus.Publish(ctx, msg); err != nil {
		s.logger.Warn("broadcast failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}
