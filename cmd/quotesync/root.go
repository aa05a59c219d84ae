package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charlesng35/quotesync/internal/app"
	"github.com/charlesng35/quotesync/pkg/logger"
)

// cli carries state shared by every subcommand once the root has loaded configuration.
type cli struct {
	configPath string
	cfg        *app.Config
	log        *zap.Logger
}

func newRootCmd() *cobra.Command {
	state := &cli{}

	root := &cobra.Command{
		Use:           "quotesync",
		Short:         "Offline-first data layer for the quoting app",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync() // best effort
		},
	}
	root.PersistentFlags().StringVar(&state.configPath, "config", "", "path to configuration directory or file")

	root.AddCommand(newServeCmd(state))
	root.AddCommand(newMigrateCmd(state))
	root.AddCommand(newQueueCmd(state))
	root.AddCommand(newVersionCmd())
	return root
}

func (c *cli) load() error {
	cfg, err := loadApplicationConfig(c.configPath)
	if err != nil {
		return err
	}

	derived, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	c.cfg = cfg
	c.log = logger.WithModule("bootstrap")
	for key, value := range derived {
		c.log.Debug("derived runtime default", zap.String("key", key), zap.String("value", value))
	}
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	if strings.TrimSpace(path) == "" {
		return app.LoadConfig()
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return app.LoadConfig(path)
	case err == nil:
		return app.LoadConfig(filepath.Dir(path))
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config path %q does not exist", path)
	default:
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}
