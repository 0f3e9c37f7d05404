package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pbaille/codecontext/internal/config"
	"github.com/pbaille/codecontext/internal/ingest"
	"github.com/pbaille/codecontext/internal/logger"
	"github.com/pbaille/codecontext/internal/store"
	"github.com/spf13/cobra"
)

// Process exit codes
const (
	exitGeneric  = 1
	exitInvalid  = 2
	exitNotFound = 3
	exitStorage  = 4
)

// usageError marks bad flags or arguments
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		st := newStyles(os.Stderr)
		fmt.Fprintln(os.Stderr, st.err.Render("error: ")+err.Error())
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	var uerr usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &uerr),
		errors.Is(err, store.ErrInvalidMemory),
		errors.Is(err, store.ErrInvalidRecord):
		return exitInvalid
	case errors.Is(err, store.ErrNotFound):
		return exitNotFound
	case errors.Is(err, store.ErrStorage), errors.Is(err, store.ErrStoreUnavailable):
		return exitStorage
	default:
		return exitGeneric
	}
}

// app carries the persistent flags and what they resolve to
type app struct {
	path     string
	logLevel string

	root string
	cfg  *config.Config
	log  *logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "codecontext",
		Short:         "Local project memory: remember decisions, recall them later",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.log != nil {
				return a.log.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.path, "path", "C", ".", "project directory")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	rootCmd.AddCommand(initCmd(a))
	rootCmd.AddCommand(rememberCmd(a))
	rootCmd.AddCommand(recallCmd(a))
	rootCmd.AddCommand(scanCmd(a))
	rootCmd.AddCommand(statusCmd(a))
	rootCmd.AddCommand(exportCmd(a))
	rootCmd.AddCommand(importCmd(a))
	rootCmd.AddCommand(clearCmd(a))
	rootCmd.AddCommand(reindexCmd(a))
	rootCmd.AddCommand(serveCmd(a))
	rootCmd.AddCommand(watchCmd(a))

	return rootCmd
}

func (a *app) setup(stderr io.Writer) error {
	root, err := filepath.Abs(a.path)
	if err != nil {
		return usagef("resolve path: %v", err)
	}
	a.root = root

	cfg, err := config.Load(filepath.Join(root, store.StateDirName))
	if err != nil {
		return usageError{err}
	}
	a.cfg = cfg

	level := cfg.Logging.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	file := cfg.Logging.File
	if file != "" && !filepath.IsAbs(file) {
		file = filepath.Join(root, store.StateDirName, file)
	}

	a.log, err = logger.New(logger.Config{
		Level:   level,
		File:    file,
		Console: true,
		Pretty:  true,
		Out:     stderr,
	})
	return err
}

// repairIndex rebuilds the search index after a write when it no longer
// matches the stored memories.
func (a *app) repairIndex(ctx context.Context, s *store.Store) error {
	rebuilt, err := s.EnsureIndex(ctx)
	if err != nil {
		return err
	}
	if rebuilt {
		a.log.Info().Str("db", s.DBPath()).Msg("search index out of sync, rebuilt")
	}
	return nil
}

// openStore opens the store of an initialized project
func (a *app) openStore() (*store.Store, error) {
	s, err := store.OpenExisting(a.root)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w (run 'codecontext init' first)", err)
		}
		return nil, err
	}
	a.log.Debug().Str("db", s.DBPath()).Msg("store opened")
	return s, nil
}

// readInput reads a named file, or stdin for "-"
func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, usagef("read %s: %v", name, err)
	}
	return data, nil
}

func printProgress(w io.Writer, p ingest.Progress) {
	fmt.Fprintf(w, "Ingested %d files and %d patterns\n", p.Files, p.Patterns)
}
