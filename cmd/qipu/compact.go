package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu-sub002/pkg/compaction"
)

func newCompactCmd() *cobra.Command {
	compactCmd := &cobra.Command{
		Use:   "compact",
		Short: "Fold notes into digest notes",
	}

	applyCmd := &cobra.Command{
		Use:   "apply <digest-id>",
		Short: "Record that a digest compacts the given notes",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE:  runCompactApply,
	}
	applyCmd.Flags().StringArray("note", nil, "Note id to compact (repeatable)")
	applyCmd.Flags().String("notes-file", "", "File with one note id per line")
	applyCmd.Flags().Bool("from-stdin", false, "Read note ids from stdin, one per line")
	compactCmd.AddCommand(applyCmd)

	showCmd := &cobra.Command{
		Use:   "show <digest-id>",
		Short: "Show the notes a digest compacts",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE:  runCompactShow,
	}
	showCmd.Flags().Int("depth", 1, "Levels of nested digests to expand")
	showCmd.Flags().Int("max-nodes", 0, "Show at most this many notes (0 = unlimited)")
	compactCmd.AddCommand(showCmd)

	compactCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Summarise digests and compaction problems",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  runCompactStatus,
	})

	compactCmd.AddCommand(&cobra.Command{
		Use:   "report <digest-id>",
		Short: "Report size, boundary links, staleness and validity of a digest",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE:  runCompactReport,
	})

	return compactCmd
}

// readIDs reads one id per line, skipping blank lines and # comments.
func readIDs(r io.Reader) ([]string, error) {
	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, sc.Err()
}

func compactSources(cmd *cobra.Command) ([]string, error) {
	ids, _ := cmd.Flags().GetStringArray("note")

	if path, _ := cmd.Flags().GetString("notes-file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, usageError{err}
		}
		defer f.Close()
		more, err := readIDs(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		ids = append(ids, more...)
	}
	if stdin, _ := cmd.Flags().GetBool("from-stdin"); stdin {
		more, err := readIDs(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		ids = append(ids, more...)
	}

	if len(ids) == 0 {
		return nil, usageError{errors.New("no notes to compact: use --note, --notes-file or --from-stdin")}
	}
	return ids, nil
}

func runCompactApply(cmd *cobra.Command, args []string) error {
	asJSON, err := outputJSON(cmd)
	if err != nil {
		return err
	}
	sources, err := compactSources(cmd)
	if err != nil {
		return err
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	digest, err := s.ApplyCompaction(args[0], sources)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"digest":   digest.ID,
			"compacts": digest.Compacts,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s now compacts %d notes\n", digest.ID, len(digest.Compacts))
	return nil
}

func runCompactShow(cmd *cobra.Command, args []string) error {
	depth, _ := cmd.Flags().GetInt("depth")
	maxNodes, _ := cmd.Flags().GetInt("max-nodes")
	if depth < 1 || maxNodes < 0 {
		return usageError{errors.New("depth must be at least 1 and max-nodes must not be negative")}
	}
	asJSON, err := outputJSON(cmd)
	if err != nil {
		return err
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	digest, err := s.GetNote(args[0])
	if err != nil {
		return err
	}
	notes, err := s.ListNotes()
	if err != nil {
		return err
	}
	cc := compaction.Build(notes)
	byID := compaction.NoteMap(notes)
	expanded, truncated := cc.ExpandNotes(digest.ID, depth, maxNodes, byID)
	pct, hasPct := cc.Percent(digest, byID)

	if asJSON {
		rows := make([]listedNote, 0, len(expanded))
		for _, n := range expanded {
			rows = append(rows, noteSummary(n, cc))
		}
		out := map[string]any{
			"digest":    noteSummary(digest, cc),
			"notes":     rows,
			"truncated": truncated,
		}
		if hasPct {
			out["compaction_percent"] = pct
		}
		return writeJSON(cmd.OutOrStdout(), out)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %s\n", digest.ID, digest.Title)
	if hasPct {
		fmt.Fprintf(w, "compaction: %.0f%%\n", pct)
	}
	for _, n := range expanded {
		fmt.Fprintf(w, "  %s %s\n", n.ID, n.Title)
	}
	if truncated {
		fmt.Fprintln(w, "  (truncated)")
	}
	return nil
}

type digestStatus struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Compacts int      `json:"compacts"`
	Percent  *float64 `json:"compaction_percent,omitempty"`
}

func runCompactStatus(cmd *cobra.Command, args []string) error {
	asJSON, err := outputJSON(cmd)
	if err != nil {
		return err
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	notes, err := s.ListNotes()
	if err != nil {
		return err
	}
	cc := compaction.Build(notes)
	byID := compaction.NoteMap(notes)

	digests := []digestStatus{}
	for _, id := range cc.Digests() {
		n, ok := byID[id]
		if !ok {
			continue
		}
		ds := digestStatus{ID: id, Title: n.Title, Compacts: cc.CompactsCount(id)}
		if pct, ok := cc.Percent(n, byID); ok {
			ds.Percent = &pct
		}
		digests = append(digests, ds)
	}
	problems := cc.Validate(notes)
	if problems == nil {
		problems = []string{}
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"digests":  digests,
			"problems": problems,
		})
	}
	w := cmd.OutOrStdout()
	if len(digests) == 0 {
		fmt.Fprintln(w, "No digests")
	}
	for _, d := range digests {
		line := fmt.Sprintf("%s %s (%d notes", d.ID, d.Title, d.Compacts)
		if d.Percent != nil {
			line += fmt.Sprintf(", %.0f%%", *d.Percent)
		}
		fmt.Fprintln(w, line+")")
	}
	for _, p := range problems {
		fmt.Fprintln(w, "problem:", p)
	}
	return nil
}

func runCompactReport(cmd *cobra.Command, args []string) error {
	asJSON, err := outputJSON(cmd)
	if err != nil {
		return err
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.CompactionReport(args[0])
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), r)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Compaction report: %s\n", r.DigestID)
	fmt.Fprintf(w, "  direct count:   %d\n", r.DirectCount)
	fmt.Fprintf(w, "  compaction:     %.1f%%\n", r.Percent)
	fmt.Fprintf(w, "  internal edges: %d\n", r.InternalEdges)
	fmt.Fprintf(w, "  boundary edges: %d\n", r.BoundaryEdges)
	fmt.Fprintf(w, "  boundary ratio: %.2f\n", r.BoundaryRatio)
	if r.Stale() {
		fmt.Fprintf(w, "  stale: %d sources updated after the digest\n", len(r.StaleSources))
		for _, id := range r.StaleSources {
			fmt.Fprintf(w, "    - %s\n", id)
		}
	} else {
		fmt.Fprintln(w, "  stale: no")
	}
	if r.Valid() {
		fmt.Fprintln(w, "  invariants: valid")
	} else {
		fmt.Fprintln(w, "  invariants: INVALID")
		for _, v := range r.Violations {
			fmt.Fprintf(w, "    - %s\n", v)
		}
	}
	return nil
}
