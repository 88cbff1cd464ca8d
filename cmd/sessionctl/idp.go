package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/internal/idp"
	"github.com/MrEthical07/goSession/internal/issuer"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultDemoUser = "demo@example.com:demo-password:user"

// idpOptions configure the demo identity backend.
type idpOptions struct {
	Addr       string
	Shared     bool
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	RateLimit  int
	RateWindow time.Duration
	Users      []string
	Hasher     idp.HasherConfig
}

func defaultIDPOptions() idpOptions {
	return idpOptions{
		Addr:       "localhost:8080",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: idp.DefaultRefreshTTL,
		RateLimit:  rate.DefaultLimit,
		RateWindow: rate.DefaultWindow,
		Users:      []string{defaultDemoUser},
		Hasher:     idp.DefaultHasherConfig(),
	}
}

// newIDPServer builds the backend. A non-nil client keeps refresh families and login counters
// in Redis; otherwise they live in memory. A zero RateLimit disables throttling.
func newIDPServer(opts idpOptions, client redis.UniversalClient, logger *zap.Logger) (*idp.Server, error) {
	issCfg := issuer.Config{
		AccessTTL: opts.AccessTTL,
		Issuer:    "sessionctl",
		Leeway:    5 * time.Second,
	}
	if opts.SigningKey != "" {
		issCfg.SigningMethod = issuer.MethodHS256
		issCfg.PrivateKey = []byte(opts.SigningKey)
	} else {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		issCfg.SigningMethod = issuer.MethodEd25519
		issCfg.PrivateKey = priv
		logger.Info("using an ephemeral ed25519 signing key")
	}
	iss, err := issuer.New(issCfg)
	if err != nil {
		return nil, err
	}

	hasher, err := idp.NewHasher(opts.Hasher)
	if err != nil {
		return nil, err
	}
	dir, err := idp.NewDirectory(hasher)
	if err != nil {
		return nil, err
	}
	for _, spec := range opts.Users {
		if err := addUser(dir, spec); err != nil {
			return nil, err
		}
	}

	cfg := idp.Config{
		Issuer:     iss,
		Directory:  dir,
		RefreshTTL: opts.RefreshTTL,
		Logger:     logger.Named("idp"),
	}

	var counter rate.Counter
	if client != nil {
		cfg.Families = idp.NewRedisFamilies(client, "")
		counter = rate.NewRedisCounter(client, "")
	} else {
		counter = rate.NewMemoryCounter(nil)
	}
	if opts.RateLimit > 0 {
		limiter, err := rate.New(counter, rate.Config{Limit: opts.RateLimit, Window: opts.RateWindow})
		if err != nil {
			return nil, err
		}
		cfg.Limiter = limiter
	}

	return idp.NewServer(cfg)
}

// addUser parses EMAIL:PASSWORD[:ROLE,ROLE...].
func addUser(dir *idp.Directory, spec string) error {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 {
		return fmt.Errorf("invalid user %q: want email:password[:role,role]", spec)
	}
	email, password := parts[0], parts[1]
	var roles []string
	if len(parts) == 3 {
		for _, r := range strings.Split(parts[2], ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}
	}
	name, _, _ := strings.Cut(email, "@")
	if _, err := dir.Add(email, name, password, roles...); err != nil {
		return fmt.Errorf("user %s: %w", email, err)
	}
	return nil
}

func newIDPCommand(a *app) *cobra.Command {
	opts := defaultIDPOptions()
	cmd := &cobra.Command{
		Use:   "idp",
		Short: "Serve a demo identity backend for login, refresh and logout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.SigningKey == "" {
				opts.SigningKey = a.viper.GetString("signing-key")
			}

			var client redis.UniversalClient
			if opts.Shared {
				c := redis.NewClient(&redis.Options{Addr: a.settings.RedisAddr})
				defer c.Close()
				client = c
			}
			srv, err := newIDPServer(opts, client, a.logger)
			if err != nil {
				return err
			}
			return serveHTTP(cmd.Context(), opts.Addr, srv.Handler(), a.logger, func(addr net.Addr) {
				fmt.Fprintf(cmd.OutOrStdout(), "identity backend listening on http://%s\n", addr)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Addr, "addr", opts.Addr, "listen address")
	flags.BoolVar(&opts.Shared, "shared", false, "keep refresh families and login counters in redis (redis-addr)")
	flags.String("signing-key", "", "HS256 signing key of at least 32 bytes (default: ephemeral ed25519 key)")
	flags.DurationVar(&opts.AccessTTL, "access-ttl", opts.AccessTTL, "access token lifetime")
	flags.DurationVar(&opts.RefreshTTL, "refresh-ttl", opts.RefreshTTL, "refresh token idle lifetime")
	flags.IntVar(&opts.RateLimit, "rate-limit", opts.RateLimit, "login attempts per client IP and window; 0 disables")
	flags.DurationVar(&opts.RateWindow, "rate-window", opts.RateWindow, "login rate window")
	flags.StringArrayVar(&opts.Users, "user", opts.Users, "account EMAIL:PASSWORD[:ROLE,ROLE]")
	_ = a.viper.BindPFlag("signing-key", flags.Lookup("signing-key"))
	return cmd
}

// serveHTTP serves h on addr until ctx is done, then shuts down gracefully.
func serveHTTP(ctx context.Context, addr string, h http.Handler, logger *zap.Logger, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if ready != nil {
		ready(ln.Addr())
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
