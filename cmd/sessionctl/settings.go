package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	envPrefix         = "SESSIONCTL"
	defaultConfigFile = "~/.sessionctl.yaml"

	storageFile  = "file"
	storageRedis = "redis"
)

const (
	keyConfig      = "config"
	keyAPIURL      = "api-url"
	keyStorage     = "storage"
	keyDir         = "dir"
	keyRedisAddr   = "redis-addr"
	keyRedisPrefix = "redis-prefix"
	keySecret      = "secret"
	keyKey         = "key"
	keyLogLevel    = "log-level"
)

var errNoSecret = errors.New("no storage secret: set --secret, SESSIONCTL_SECRET or secret in the config file")

// settings are shared by every command that opens the session.
type settings struct {
	APIURL      string
	Storage     string
	Dir         string
	RedisAddr   string
	RedisPrefix string
	Secret      string
	Key         string
	LogLevel    string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyAPIURL, "http://localhost:8080")
	v.SetDefault(keyStorage, storageFile)
	v.SetDefault(keyRedisAddr, "localhost:6379")
	v.SetDefault(keyRedisPrefix, "gosession")
	v.SetDefault(keyKey, "auth:tokens")
	v.SetDefault(keyLogLevel, "warn")
	return v
}

// readConfigFile loads the file named by the config key. The default file is optional.
func readConfigFile(v *viper.Viper) error {
	path := v.GetString(keyConfig)
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config %s: %w", expanded, err)
	}

	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config %s: %w", expanded, err)
	}
	return nil
}

func loadSettings(v *viper.Viper) (settings, error) {
	s := settings{
		APIURL:      v.GetString(keyAPIURL),
		Storage:     strings.ToLower(strings.TrimSpace(v.GetString(keyStorage))),
		Dir:         v.GetString(keyDir),
		RedisAddr:   v.GetString(keyRedisAddr),
		RedisPrefix: v.GetString(keyRedisPrefix),
		Secret:      v.GetString(keySecret),
		Key:         v.GetString(keyKey),
		LogLevel:    v.GetString(keyLogLevel),
	}
	switch s.Storage {
	case storageFile:
	case storageRedis:
		if s.RedisAddr == "" {
			return s, errors.New("redis storage requires redis-addr")
		}
	default:
		return s, fmt.Errorf("unknown storage %q (want %s or %s)", s.Storage, storageFile, storageRedis)
	}
	return s, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
