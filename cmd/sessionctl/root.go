package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app carries what PersistentPreRunE resolved to the subcommands.
type app struct {
	viper    *viper.Viper
	settings settings
	logger   *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{viper: newViper(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Manage a shared, encrypted sign-in session",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := readConfigFile(a.viper); err != nil {
				return err
			}
			s, err := loadSettings(a.viper)
			if err != nil {
				return err
			}
			logger, err := newLogger(s.LogLevel)
			if err != nil {
				return err
			}
			a.settings = s
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.String(keyConfig, "", "config file (default "+defaultConfigFile+")")
	flags.String(keyAPIURL, "", "identity backend base URL")
	flags.String(keyStorage, "", "session storage: file or redis")
	flags.String(keyDir, "", "directory of the file storage (default ~/.gosession)")
	flags.String(keyRedisAddr, "", "redis address for redis storage")
	flags.String(keyRedisPrefix, "", "redis key prefix")
	flags.String(keySecret, "", "storage encryption secret")
	flags.String(keyKey, "", "storage key of the session")
	flags.String(keyLogLevel, "", "log level: debug, info, warn or error")
	for _, name := range []string{
		keyConfig, keyAPIURL, keyStorage, keyDir, keyRedisAddr, keyRedisPrefix, keySecret, keyKey, keyLogLevel,
	} {
		_ = a.viper.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newLoginCommand(a),
		newLogoutCommand(a),
		newStatusCommand(a),
		newRefreshCommand(a),
		newWatchCommand(a),
		newCheckCommand(a),
		newIDPCommand(a),
		newBenchCommand(a),
	)
	return root
}
