package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrEthical07/goSession/internal/idp"
	"go.uber.org/zap"
)

const (
	testEmail    = "ann@example.com"
	testPassword = "correct horse"
)

func cheapHasher() idp.HasherConfig {
	return idp.HasherConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func startIDP(t *testing.T) *httptest.Server {
	t.Helper()
	opts := defaultIDPOptions()
	opts.Hasher = cheapHasher()
	opts.SigningKey = "0123456789abcdef0123456789abcdef"
	opts.Users = []string{testEmail + ":" + testPassword + ":user,admin"}
	srv, err := newIDPServer(opts, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("newIDPServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// cli runs sessionctl against apiURL with file storage in dir.
type cli struct {
	t      *testing.T
	apiURL string
	dir    string
	config string
}

func newCLI(t *testing.T, apiURL string) *cli {
	t.Helper()
	tmp := t.TempDir()
	config := filepath.Join(tmp, "sessionctl.yaml")
	if err := os.WriteFile(config, []byte("log-level: error\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cli{t: t, apiURL: apiURL, dir: filepath.Join(tmp, "store"), config: config}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{
		"--config", c.config,
		"--api-url", c.apiURL,
		"--storage", storageFile,
		"--dir", c.dir,
		"--secret", "cli-test-secret",
	}, args...))
	err := cmd.ExecuteContext(c.t.Context())
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("sessionctl %v: %v\n%s", args, err, out)
	}
	return out
}
