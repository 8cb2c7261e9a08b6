package main

import (
	"context"
	"fmt"

	"github.com/hupe1980/partstore"
	"github.com/spf13/cobra"
)

const configDesc = "path to the partstore YAML configuration file"

// app carries the resolved configuration into subcommands.
type app struct {
	configPath string
	dir        string
	partition  string
	logLevel   string

	cfg    Config
	logger *partstore.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	c := &cobra.Command{
		Use:   "partstore",
		Short: "Inspect and maintain partstore partitions",
		Long: "partstore reads and writes a partition directory directly and moves its\n" +
			"segments to and from an archive blob store.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return a.load() },
	}

	c.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", configDesc)
	c.PersistentFlags().StringVarP(&a.dir, "dir", "d", "", "partition directory (overrides config)")
	c.PersistentFlags().StringVarP(&a.partition, "partition", "p", "", "partition name used in the archive (overrides config)")
	c.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	c.AddCommand(
		newPutCmd(a),
		newGetCmd(a),
		newScanCmd(a),
		newStatsCmd(a),
		newSegmentsCmd(a),
		newCompactCmd(a),
		newArchiveCmd(a),
		newRestoreCmd(a),
		newManifestCmd(a),
	)
	return c
}

func (a *app) load() error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.dir != "" {
		cfg.Directory = a.dir
	}
	if a.partition != "" {
		cfg.Partition = a.partition
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Logger()
	return nil
}

// withStorage opens the configured partition, runs fn and closes it,
// flushing whatever fn left pending.
func (a *app) withStorage(ctx context.Context, fn func(*partstore.Storage) error) (err error) {
	opts, err := a.cfg.StorageOptions(a.logger)
	if err != nil {
		return err
	}
	s, err := partstore.Open(ctx, a.cfg.Directory, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(ctx); cerr != nil && err == nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	}()
	return fn(s)
}
