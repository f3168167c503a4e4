package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mwaldstein/qipu-sub002/pkg/config"
	"github.com/mwaldstein/qipu-sub002/pkg/logging"
	"github.com/mwaldstein/qipu-sub002/pkg/store"
)

// newLogger builds the process logger. The --log-level flag wins over the
// environment, which wins over the store configuration.
func newLogger(cmd *cobra.Command, cfg config.LoggingConfig) (*zap.Logger, error) {
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Level = level
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, usageError{err}
	}
	return logger, nil
}

// resolveStore finds the store directory from --store or the working
// directory.
func resolveStore(cmd *cobra.Command, fs afero.Fs) (string, error) {
	if path, _ := cmd.Flags().GetString("store"); path != "" {
		return filepath.Abs(path)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return store.Discover(fs, cwd)
}

// openStore opens the store selected by the global flags.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	fs := afero.NewOsFs()
	root, err := resolveStore(cmd, fs)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(fs, filepath.Join(root, store.ConfigFile))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	logger, err := newLogger(cmd, cfg.Logging)
	if err != nil {
		return nil, err
	}

	return store.Open(root, store.Options{Fs: fs, Logger: logger})
}

func resolveCompaction(cmd *cobra.Command) bool {
	off, _ := cmd.Flags().GetBool("no-resolve-compaction")
	return !off
}

func outputJSON(cmd *cobra.Command) (bool, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "", "human":
		return false, nil
	case "json":
		return true, nil
	}
	return false, usageError{fmt.Errorf("unknown format %q (want human or json)", format)}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
