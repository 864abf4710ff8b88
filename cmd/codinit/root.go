package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/rhuss/codinit/pkg/config"
	"github.com/rhuss/codinit/pkg/debug"
)

// app carries the state shared by all subcommands.
type app struct {
	configPath string
	cfg        *config.Config
	logCloser  io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "codinit",
		Short:         "Self-correcting Python code generation",
		Long:          "codinit plans, writes, lints and runs Python programs with a language model,\nfeeding errors back until the program works or the attempts are used up.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (YAML or TOML)")

	cmd.AddCommand(
		newServeCmd(a),
		newRunCmd(a),
		newScrapeCmd(a),
		newReportCmd(a),
		newMCPCmd(a),
	)
	return cmd
}

// load reads the configuration and sets up logging.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	var file *debug.FileOptions
	if cfg.Logging.File != "" {
		file = &debug.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		}
	}
	a.logCloser = debug.Init(cfg.Logging.Debug, cfg.Logging.Level, file)
	return nil
}
