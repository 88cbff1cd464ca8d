package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/exchange"
	"github.com/MrEthical07/goSession/internal/idp"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const benchPassword = "bench-password"

type benchOptions struct {
	Sessions    int
	Concurrency int
	Ops         int
	External    bool
}

func newBenchCommand(a *app) *cobra.Command {
	opts := benchOptions{Sessions: 200, Concurrency: 32, Ops: 5000}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure login, refresh and verification against an in-process identity backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Sessions <= 0 || opts.Concurrency <= 0 || opts.Ops <= 0 {
				return errors.New("sessions, concurrency, and ops must be > 0")
			}
			return runBench(cmd.Context(), cmd.OutOrStdout(), opts, a.settings, a.logger)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&opts.Sessions, "sessions", opts.Sessions, "number of signed-in managers")
	flags.IntVar(&opts.Concurrency, "concurrency", opts.Concurrency, "number of concurrent workers")
	flags.IntVar(&opts.Ops, "ops", opts.Ops, "operations per phase (refresh + verify)")
	flags.BoolVar(&opts.External, "external-redis", false, "use redis-addr instead of an embedded miniredis")
	return cmd
}

func runBench(ctx context.Context, out io.Writer, opts benchOptions, s settings, logger *zap.Logger) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var client redis.UniversalClient
	if opts.External {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{s.RedisAddr}})
		fmt.Fprintf(out, "using redis at %s\n", s.RedisAddr)
	} else {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("failed to start miniredis: %w", err)
		}
		defer mr.Close()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
	}
	defer func() { err = multierr.Append(err, client.Close()) }()

	idpOpts := defaultIDPOptions()
	idpOpts.RateLimit = 0
	idpOpts.Users = nil
	idpOpts.Hasher = idp.HasherConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	srv, err := newIDPServer(idpOpts, client, logger)
	if err != nil {
		return err
	}

	addrc := make(chan net.Addr, 1)
	served := make(chan error, 1)
	go func() {
		served <- serveHTTP(ctx, "127.0.0.1:0", srv.Handler(), logger, func(addr net.Addr) { addrc <- addr })
	}()
	var addr net.Addr
	select {
	case addr = <-addrc:
	case err := <-served:
		return err
	}
	defer func() {
		cancel()
		err = multierr.Append(err, <-served)
	}()

	ex, err := exchange.NewClient(exchange.Config{BaseURL: "http://" + addr.String(), UserAgent: userAgent, Logger: logger})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "signing in %d sessions...\n", opts.Sessions)
	managers, loginStats, err := benchLogin(ctx, srv, ex, opts.Sessions, logger)
	defer func() {
		for _, m := range managers {
			err = multierr.Append(err, m.Close())
		}
	}()
	if err != nil {
		return err
	}

	refreshStats := runRefreshPhase(ctx, managers, opts.Ops, opts.Concurrency)
	verifyStats := runVerifyPhase(srv, managers, opts.Ops, opts.Concurrency)

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "login", loginStats)
	printStats(out, "refresh", refreshStats)
	printStats(out, "verify", verifyStats)
	return nil
}

func benchLogin(ctx context.Context, srv *idp.Server, ex goSession.Exchanger, n int, logger *zap.Logger) ([]*goSession.Manager, phaseStats, error) {
	cfg := goSession.DefaultConfig()
	cfg.Storage.Secret = "bench"

	managers := make([]*goSession.Manager, 0, n)
	latencies := make([]time.Duration, 0, n)
	var failures int64

	start := time.Now()
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("bench-%d@example.com", i)
		if _, err := srv.Directory().Add(email, fmt.Sprintf("bench %d", i), benchPassword, "user"); err != nil {
			return managers, phaseStats{}, err
		}
		m, err := goSession.New().WithConfig(cfg).WithExchanger(ex).WithLogger(logger).Build()
		if err != nil {
			return managers, phaseStats{}, err
		}
		managers = append(managers, m)
		m.Initialize(ctx)

		t0 := time.Now()
		_, err = m.Login(ctx, goSession.Credentials{Email: email, Password: benchPassword})
		latencies = append(latencies, time.Since(t0))
		if err != nil {
			failures++
		}
	}
	return managers, computeStats(time.Since(start), latencies, failures), nil
}

func runRefreshPhase(ctx context.Context, managers []*goSession.Manager, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				m := managers[r.Intn(len(managers))]
				t0 := time.Now()
				err := m.Refresh(ctx)
				d := time.Since(t0)
				if (err != nil && !errors.Is(err, goSession.ErrRefreshSuperseded)) || !m.Snapshot().Authenticated() {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runVerifyPhase(srv *idp.Server, managers []*goSession.Manager, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				snap := managers[r.Intn(len(managers))].Snapshot()
				if !snap.Authenticated() {
					atomic.AddInt64(&failures, 1)
					continue
				}
				t0 := time.Now()
				_, err := srv.Verify(snap.Session.Tokens.AccessToken)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
