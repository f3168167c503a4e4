package main

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu-sub002/pkg/compaction"
	"github.com/mwaldstein/qipu-sub002/pkg/config"
	"github.com/mwaldstein/qipu-sub002/pkg/note"
	"github.com/mwaldstein/qipu-sub002/pkg/store"
)

func runInit(cmd *cobra.Command, args []string) error {
	visible, _ := cmd.Flags().GetBool("visible")
	scheme, _ := cmd.Flags().GetString("id-scheme")
	asJSON, err := outputJSON(cmd)
	if err != nil {
		return err
	}

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	cfg := config.Default()
	if scheme != "" {
		if _, err := note.ParseIDScheme(scheme); err != nil {
			return usageError{err}
		}
		cfg.IDScheme = strings.ToLower(scheme)
	}
	logger, err := newLogger(cmd, cfg.Logging)
	if err != nil {
		return err
	}

	s, err := store.Init(dir, store.Options{
		Fs:      afero.NewOsFs(),
		Logger:  logger,
		Visible: visible,
		Config:  cfg,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"store": s.Root()})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized qipu store at %s\n", s.Root())
	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	noteType, _ := cmd.Flags().GetString("type")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	id, _ := cmd.Flags().GetString("id")
	value, _ := cmd.Flags().GetInt("value")
	body, _ := cmd.Flags().GetString("body")
	asJSON, err := outputJSON(cmd)
	if err != nil {
		return err
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := store.CreateOptions{ID: id, Type: noteType, Tags: tags, Body: body}
	if cmd.Flags().Changed("value") {
		opts.Value = &value
	}
	n, err := s.CreateNote(strings.Join(args, " "), opts)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), noteSummary(n, nil))
	}
	fmt.Fprintln(cmd.OutOrStdout(), n.ID)
	return nil
}

// listedNote is the JSON shape of a note in listings.
type listedNote struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Type        string   `json:"type"`
	Tags        []string `json:"tags,omitempty"`
	Path        string   `json:"path,omitempty"`
	Value       int      `json:"value"`
	CompactedBy string   `json:"compacted_by,omitempty"`
	Compacts    int      `json:"compacts,omitempty"`
}

func noteSummary(n *note.Note, cc *compaction.Context) listedNote {
	ln := listedNote{
		ID:    n.ID,
		Title: n.Title,
		Type:  n.NoteType(),
		Tags:  n.Tags,
		Path:  n.Path,
		Value: n.ImportanceValue(),
	}
	if cc != nil {
		ln.CompactedBy, _ = cc.Compactor(n.ID)
		ln.Compacts = cc.CompactsCount(n.ID)
	}
	return ln
}

func runList(cmd *cobra.Command, args []string) error {
	tag, _ := cmd.Flags().GetString("tag")
	noteType, _ := cmd.Flags().GetString("type")
	showCompacted, _ := cmd.Flags().GetBool("show-compacted")
	asJSON, err := outputJSON(cmd)
	if err != nil {
		return err
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var notes []*note.Note
	if tag != "" {
		notes, err = s.NotesByTag(tag)
	} else {
		notes, err = s.ListNotes()
	}
	if err != nil {
		return err
	}

	var cc *compaction.Context
	if resolveCompaction(cmd) {
		if cc, err = s.Compaction(); err != nil {
			return err
		}
	}

	rows := make([]listedNote, 0, len(notes))
	for _, n := range notes {
		if noteType != "" && !strings.EqualFold(n.NoteType(), noteType) {
			continue
		}
		if cc != nil && !showCompacted && cc.IsCompacted(n.ID) {
			continue
		}
		rows = append(rows, noteSummary(n, cc))
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), rows)
	}
	w := cmd.OutOrStdout()
	for _, r := range rows {
		line := fmt.Sprintf("%s  [%s]  %s", r.ID, r.Type, r.Title)
		if r.Compacts > 0 {
			line += fmt.Sprintf("  (digest of %d)", r.Compacts)
		}
		if r.CompactedBy != "" {
			line += fmt.Sprintf("  (compacted by %s)", r.CompactedBy)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	asJSON, err := outputJSON(cmd)
	if err != nil {
		return err
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.GetNote(args[0])
	if err != nil {
		return err
	}

	var compactedBy string
	if resolveCompaction(cmd) {
		cc, err := s.Compaction()
		if err != nil {
			return err
		}
		compactedBy, _ = cc.Compactor(n.ID)
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), struct {
			*note.Note
			CompactedBy string `json:"compacted_by,omitempty"`
		}{n, compactedBy})
	}

	if compactedBy != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "note: %s is compacted by %s\n", n.ID, compactedBy)
	}
	data, err := n.Render()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
