// Package main provides the qipu CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu-sub002/pkg/compaction"
	"github.com/mwaldstein/qipu-sub002/pkg/config"
	"github.com/mwaldstein/qipu-sub002/pkg/graph"
	"github.com/mwaldstein/qipu-sub002/pkg/note"
	"github.com/mwaldstein/qipu-sub002/pkg/ontology"
	"github.com/mwaldstein/qipu-sub002/pkg/store"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
	exitData  = 3
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "qipu",
		Short: "qipu - a knowledge graph of markdown notes",
		Long: `qipu keeps notes as markdown files with YAML frontmatter and treats
typed and inline references between them as a graph.

Features:
  • Typed links with semantic inverses
  • Weighted traversal with hop-cost budgets
  • Compaction of related notes into digests`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := rootCmd.PersistentFlags()
	pf.String("store", "", "Store directory (default: discovered from the working directory)")
	pf.String("format", "human", "Output format: human or json")
	pf.String("log-level", "", "Log level: debug, info, warn or error (overrides config)")
	pf.Bool("no-resolve-compaction", false, "Treat absorbed notes as ordinary notes")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "qipu v%s (%s)\n", version, commit)
		},
	})

	initCmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new store",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE:  runInit,
	}
	initCmd.Flags().Bool("visible", false, "Create qipu/ instead of .qipu/")
	initCmd.Flags().String("id-scheme", "", "Note id scheme: hash, uuid or timestamp")
	rootCmd.AddCommand(initCmd)

	createCmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a note",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE:  runCreate,
	}
	createCmd.Flags().String("type", "", "Note type (default from config)")
	createCmd.Flags().StringSlice("tag", nil, "Tag to attach (repeatable)")
	createCmd.Flags().String("id", "", "Explicit note id")
	createCmd.Flags().Int("value", -1, "Importance value 0-100")
	createCmd.Flags().String("body", "", "Note body")
	rootCmd.AddCommand(createCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List notes",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  runList,
	}
	listCmd.Flags().String("tag", "", "Only notes with this tag")
	listCmd.Flags().String("type", "", "Only notes of this type")
	listCmd.Flags().Bool("show-compacted", false, "Include notes absorbed by a digest")
	rootCmd.AddCommand(listCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a note",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE:  runShow,
	})

	rootCmd.AddCommand(newLinkCmd())
	rootCmd.AddCommand(newCompactCmd())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Check the store for broken links, unknown types and compaction problems",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  runDoctor,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the note cache from the markdown files",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  runRebuild,
	})

	return rootCmd
}

// usageError marks errors caused by how the command was invoked.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// errCheckFailed is returned by doctor when it finds errors.
var errCheckFailed = errors.New("store check failed")

func exitCode(err error) int {
	var uerr usageError
	var verr *compaction.ValidationError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &uerr),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, ontology.ErrUnknownNoteType),
		errors.Is(err, ontology.ErrUnknownLinkType),
		errors.Is(err, graph.ErrInvalidOptions),
		errors.Is(err, note.ErrInvalidID),
		errors.Is(err, note.ErrInvalidValue),
		errors.Is(err, store.ErrStoreNotFound),
		errors.Is(err, store.ErrNotAStore):
		return exitUsage
	case errors.As(err, &verr),
		errors.Is(err, graph.ErrNodeNotFound),
		errors.Is(err, store.ErrNoteNotFound),
		errors.Is(err, store.ErrNoteExists),
		errors.Is(err, compaction.ErrDigestNotFound),
		errors.Is(err, compaction.ErrNotDigest),
		errors.Is(err, errCheckFailed):
		return exitData
	}
	return exitError
}

func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}
