package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-harvest/config"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	cfg        *config.Config
	logCloser  io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "harvest",
		Short:         "Polite sitemap-driven product harvester",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logCloser != nil {
				_ = a.logCloser.Close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: harvest.yaml in . or ./configs)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	root.AddCommand(newRunCmd(a), newResolveCmd(a), newFetchCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.LoadWithFlags(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, closer, err := newLogger(cfg.Verbose, cfg.LogFile)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	a.logCloser = closer
	return nil
}
