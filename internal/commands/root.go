// Package commands implements the receipts command line
package commands

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/garyjia/receipt-pipeline/internal/config"
	"github.com/garyjia/receipt-pipeline/internal/container"
	"github.com/garyjia/receipt-pipeline/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/config.yaml"

// Version is set at build time
var Version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
	logFile    string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     "receipts",
		Short:   "Extract receipts into review workbooks and consolidate them for accounting",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "also write JSON logs to this file")

	rootCmd.AddCommand(newExtractCommand(opts))
	rootCmd.AddCommand(newConsolidateCommand(opts))
	rootCmd.AddCommand(newRunsCommand(opts))

	return rootCmd
}

// session is the configured logger and container of one invocation
type session struct {
	cfg       *config.Config
	logger    *zap.Logger
	container *container.Container
}

func (s *session) close() {
	if err := s.container.Close(); err != nil {
		s.logger.Warn("Failed to close container", zap.Error(err))
	}
	_ = s.logger.Sync()
}

// open loads configuration, applies flag overrides, builds the logger and
// starts the container
func (o *rootOptions) open(ctx context.Context, explicitConfig bool, overrides ...func(*config.Config)) (*session, error) {
	path := o.configPath
	if !explicitConfig {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	for _, override := range overrides {
		override(cfg)
	}

	level := cfg.Logger.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	logFile := cfg.Logger.OutputPath
	if o.logFile != "" {
		logFile = o.logFile
	}
	logger, err := utils.NewRunLogger(level, logFile)
	if err != nil {
		return nil, err
	}
	if path == "" {
		logger.Debug("No config file found; using defaults and environment")
	}

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, container: c}, nil
}
