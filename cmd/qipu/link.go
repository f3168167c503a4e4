package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mwaldstein/qipu-sub002/pkg/graph"
	"github.com/mwaldstein/qipu-sub002/pkg/index"
	"github.com/mwaldstein/qipu-sub002/pkg/store"
)

func newLinkCmd() *cobra.Command {
	linkCmd := &cobra.Command{
		Use:   "link",
		Short: "Manage and traverse links between notes",
	}

	addCmd := &cobra.Command{
		Use:   "add <from> <to>",
		Short: "Add a typed link",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE:  runLinkAdd,
	}
	addCmd.Flags().String("type", "related", "Link type")
	linkCmd.AddCommand(addCmd)

	removeCmd := &cobra.Command{
		Use:   "remove <from> <to>",
		Short: "Remove a typed link",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE:  runLinkRemove,
	}
	removeCmd.Flags().String("type", "related", "Link type")
	linkCmd.AddCommand(removeCmd)

	listCmd := &cobra.Command{
		Use:   "list <id>",
		Short: "List the direct links of a note",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE:  runLinkList,
	}
	addTraversalFlags(listCmd.Flags())
	linkCmd.AddCommand(listCmd)

	treeCmd := &cobra.Command{
		Use:   "tree <id>",
		Short: "Show the notes reachable from a note within the hop budget",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE:  runLinkTree,
	}
	addTraversalFlags(treeCmd.Flags())
	linkCmd.AddCommand(treeCmd)

	pathCmd := &cobra.Command{
		Use:   "path <from> <to>",
		Short: "Find the cheapest path between two notes",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE:  runLinkPath,
	}
	addTraversalFlags(pathCmd.Flags())
	linkCmd.AddCommand(pathCmd)

	return linkCmd
}

func addTraversalFlags(f *pflag.FlagSet) {
	f.String("direction", "both", "Edges to follow: out, in or both")
	f.Float64("max-hops", 0, "Hop cost budget (default from config)")
	f.StringSlice("type", nil, "Only follow these link types (repeatable)")
	f.StringSlice("exclude-type", nil, "Never follow these link types (repeatable)")
	f.Bool("typed-only", false, "Only follow frontmatter links")
	f.Bool("inline-only", false, "Only follow inline body links")
	f.Int("max-nodes", 0, "Stop after this many notes (0 = unlimited)")
	f.Int("max-edges", 0, "Stop after this many links (0 = unlimited)")
	f.Int("max-fanout", 0, "Follow at most this many links per note (0 = unlimited)")
	f.Int("min-value", 0, "Skip notes with a value below this")
	f.Bool("no-semantic-inversion", false, "Show inbound links with their stored type")
	f.Bool("ignore-value", false, "Do not penalise low-value notes")
	f.Bool("unweighted", false, "Count every link as one hop")
}

// traversalOptions builds graph options from the store defaults and the
// command flags.
func traversalOptions(cmd *cobra.Command, s *store.Store) (graph.Options, error) {
	opts := s.TraversalDefaults()
	f := cmd.Flags()

	dir, _ := f.GetString("direction")
	d, err := graph.ParseDirection(dir)
	if err != nil {
		return opts, usageError{err}
	}
	opts.Direction = d

	if f.Changed("max-hops") {
		hops, _ := f.GetFloat64("max-hops")
		opts.MaxHops = graph.HopCost(hops)
	}
	opts.TypeInclude, _ = f.GetStringSlice("type")
	opts.TypeExclude, _ = f.GetStringSlice("exclude-type")
	opts.TypedOnly, _ = f.GetBool("typed-only")
	opts.InlineOnly, _ = f.GetBool("inline-only")
	opts.MaxNodes, _ = f.GetInt("max-nodes")
	opts.MaxEdges, _ = f.GetInt("max-edges")
	opts.MaxFanout, _ = f.GetInt("max-fanout")
	opts.MinValue, _ = f.GetInt("min-value")
	if off, _ := f.GetBool("no-semantic-inversion"); off {
		opts.SemanticInversion = false
	}
	opts.IgnoreValue, _ = f.GetBool("ignore-value")
	opts.Unweighted, _ = f.GetBool("unweighted")

	if err := opts.Validate(); err != nil {
		return opts, usageError{err}
	}
	return opts, nil
}

func runLinkAdd(cmd *cobra.Command, args []string) error {
	return changeLink(cmd, args, true)
}

func runLinkRemove(cmd *cobra.Command, args []string) error {
	return changeLink(cmd, args, false)
}

func changeLink(cmd *cobra.Command, args []string, add bool) error {
	linkType, _ := cmd.Flags().GetString("type")
	asJSON, err := outputJSON(cmd)
	if err != nil {
		return err
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var changed bool
	if add {
		changed, err = s.AddLink(args[0], args[1], linkType)
	} else {
		changed, err = s.RemoveLink(args[0], args[1], linkType)
	}
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"from":    args[0],
			"to":      args[1],
			"type":    strings.ToLower(linkType),
			"changed": changed,
		})
	}
	w := cmd.OutOrStdout()
	switch {
	case add && changed:
		fmt.Fprintf(w, "Linked %s -[%s]-> %s\n", args[0], linkType, args[1])
	case add:
		fmt.Fprintf(w, "Link %s -[%s]-> %s already exists\n", args[0], linkType, args[1])
	case changed:
		fmt.Fprintf(w, "Removed %s -[%s]-> %s\n", args[0], linkType, args[1])
	default:
		fmt.Fprintf(w, "No %s link from %s to %s\n", linkType, args[0], args[1])
	}
	return nil
}

func runLinkList(cmd *cobra.Command, args []string) error {
	asJSON, err := outputJSON(cmd)
	if err != nil {
		return err
	}
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	opts, err := traversalOptions(cmd, s)
	if err != nil {
		return err
	}
	t, err := s.Traverser(resolveCompaction(cmd))
	if err != nil {
		return err
	}
	entries, err := t.Neighbors(args[0], opts)
	if err != nil {
		return err
	}

	if asJSON {
		if entries == nil {
			entries = []graph.LinkEntry{}
		}
		return writeJSON(cmd.OutOrStdout(), entries)
	}
	w := cmd.OutOrStdout()
	for _, e := range entries {
		arrow := "->"
		if e.Direction == "in" {
			arrow = "<-"
		}
		line := fmt.Sprintf("%s [%s] %s", arrow, e.Type, e.ID)
		if e.Title != "" {
			line += " " + e.Title
		} else {
			line += " (missing)"
		}
		if e.Source != index.SourceTyped {
			line += " (" + e.Source.String() + ")"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func runLinkTree(cmd *cobra.Command, args []string) error {
	asJSON, err := outputJSON(cmd)
	if err != nil {
		return err
	}
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	opts, err := traversalOptions(cmd, s)
	if err != nil {
		return err
	}
	t, err := s.Traverser(resolveCompaction(cmd))
	if err != nil {
		return err
	}
	res, err := t.Tree(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	renderTree(cmd.OutOrStdout(), res)
	return nil
}

// renderTree prints the spanning tree of res as an indented outline.
func renderTree(w io.Writer, res *graph.TreeResult) {
	titles := make(map[string]string, len(res.Notes))
	for _, n := range res.Notes {
		titles[n.ID] = n.Title
	}
	children := make(map[string][]graph.SpanningEdge)
	for _, e := range res.SpanningTree {
		children[e.From] = append(children[e.From], e)
	}

	fmt.Fprintf(w, "%s %s\n", res.Root, titles[res.Root])
	var walk func(id, indent string)
	walk = func(id, indent string) {
		kids := children[id]
		for i, e := range kids {
			branch, next := "├── ", "│   "
			if i == len(kids)-1 {
				branch, next = "└── ", "    "
			}
			fmt.Fprintf(w, "%s%s[%s] %s %s\n", indent, branch, e.Type, e.To, titles[e.To])
			walk(e.To, indent+next)
		}
	}
	walk(res.Root, "")

	if res.Truncated {
		fmt.Fprintf(w, "(truncated: %s)\n", res.TruncationReason)
	}
}

func runLinkPath(cmd *cobra.Command, args []string) error {
	asJSON, err := outputJSON(cmd)
	if err != nil {
		return err
	}
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	opts, err := traversalOptions(cmd, s)
	if err != nil {
		return err
	}
	t, err := s.Traverser(resolveCompaction(cmd))
	if err != nil {
		return err
	}
	res, err := t.Path(cmd.Context(), args[0], args[1], opts)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	w := cmd.OutOrStdout()
	if !res.Found {
		fmt.Fprintf(w, "No path from %s to %s\n", res.From, res.To)
		return nil
	}
	for i, n := range res.Notes {
		if i > 0 {
			l := res.Links[i-1]
			fmt.Fprintf(w, "  -[%s]->\n", l.Type)
		}
		fmt.Fprintf(w, "%s %s\n", n.ID, n.Title)
	}
	fmt.Fprintf(w, "(%d hops, cost %.2f)\n", res.Hops, float64(res.Cost))
	return nil
}
