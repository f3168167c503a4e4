// Package graph implements weighted and unweighted traversal over a note
// index.
//
// A Traverser is bound to an index snapshot, an ontology (inverse types and
// link costs) and, optionally, a compaction resolver. It answers three kinds
// of query:
//   - Tree: every note reachable from a root within a cost budget, plus the
//     links between them and a spanning tree
//   - Path: the cheapest route between two notes
//   - Neighbors: the one-hop link list of a note
//
// Traversal is deterministic. Neighbours are expanded in (link type,
// neighbour id) order, the weighted frontier breaks cost ties by id, and all
// output slices are sorted before they are returned.
//
// Four truncation limits compose independently: the hop-cost budget
// (MaxHops), a node cap, an emitted-edge cap and a per-node fan-out cap. The
// first limit that bites is reported in TruncationReason.
//
// Example:
//
//	tr := graph.NewTraverser(idx, ont, graph.WithCompaction(cc))
//	opts := graph.DefaultOptions()
//	opts.MaxHops = 2
//	res, err := tr.Tree(ctx, "qp-a1b2", opts)
//	if err != nil {
//		return err
//	}
//	for _, n := range res.Notes {
//		fmt.Printf("%.2f %s %s\n", n.Cost, n.ID, n.Title)
//	}
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mwaldstein/qipu-sub002/pkg/index"
)

// Errors returned by traversal.
var (
	ErrNodeNotFound   = errors.New("note not found")
	ErrInvalidOptions = errors.New("invalid traversal options")
)

// Direction selects which edges are followed from a node.
type Direction uint8

const (
	// Both follows outbound and inbound edges.
	Both Direction = iota
	// Out follows edges leaving the node.
	Out
	// In follows edges arriving at the node.
	In
)

func (d Direction) String() string {
	switch d {
	case Out:
		return "out"
	case In:
		return "in"
	default:
		return "both"
	}
}

// ParseDirection parses "out", "in" or "both".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "out":
		return Out, nil
	case "in":
		return In, nil
	case "both", "":
		return Both, nil
	}
	return Both, fmt.Errorf("%w: direction %q", ErrInvalidOptions, s)
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// TruncationReason names the limit that cut a traversal short.
type TruncationReason string

const (
	ReasonNone      TruncationReason = ""
	ReasonMaxHops   TruncationReason = "max_hops"
	ReasonMaxNodes  TruncationReason = "max_nodes"
	ReasonMaxEdges  TruncationReason = "max_edges"
	ReasonMaxFanout TruncationReason = "max_fanout"
	ReasonCancelled TruncationReason = "cancelled"
)

// Ontology is the type information traversal needs: inverses for semantic
// inversion and base costs for weighting.
type Ontology interface {
	Inverse(linkType string) string
	LinkCost(linkType string) float64
}

// Compaction resolves absorbed notes to their digests.
type Compaction interface {
	// Canon returns the canonical id for id.
	Canon(id string) string
	// Equivalents returns id together with every note it absorbs,
	// transitively.
	Equivalents(id string) []string
}

// Options control a traversal. The zero value of each limit means
// "unlimited".
type Options struct {
	Direction Direction
	// MaxHops is the cost budget. Nodes whose accumulated cost reaches the
	// budget are included but not expanded.
	MaxHops HopCost

	TypeInclude []string
	TypeExclude []string
	TypedOnly   bool
	InlineOnly  bool

	MaxNodes  int
	MaxEdges  int
	MaxFanout int

	// MinValue excludes notes whose value is below it. 0 disables the
	// filter.
	MinValue int

	// SemanticInversion presents inbound edges as virtual outbound edges of
	// the inverse type.
	SemanticInversion bool
	// IgnoreValue drops the target value penalty from edge costs.
	IgnoreValue bool
	// Unweighted switches to breadth-first search with unit edge costs.
	Unweighted bool
}

// DefaultOptions returns the standard traversal options: both directions,
// a budget of 3 and semantic inversion enabled.
func DefaultOptions() Options {
	return Options{
		Direction:         Both,
		MaxHops:           3,
		SemanticInversion: true,
	}
}

// Validate checks the options for contradictions.
func (o Options) Validate() error {
	switch {
	case o.TypedOnly && o.InlineOnly:
		return fmt.Errorf("%w: typed-only and inline-only are mutually exclusive", ErrInvalidOptions)
	case o.MaxHops < 0:
		return fmt.Errorf("%w: max hops must not be negative", ErrInvalidOptions)
	case o.MaxNodes < 0 || o.MaxEdges < 0 || o.MaxFanout < 0:
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidOptions)
	case o.MinValue < 0 || o.MinValue > 100:
		return fmt.Errorf("%w: min value must be between 0 and 100", ErrInvalidOptions)
	}
	return nil
}

func (o Options) costMode() CostMode {
	switch {
	case o.Unweighted:
		return CostUnweighted
	case o.IgnoreValue:
		return CostIgnoreValue
	default:
		return CostWeighted
	}
}

// allows reports whether an edge passes the source and type filters. The
// edge type is the effective type, after any inversion.
func (o Options) allows(e index.Edge) bool {
	if o.TypedOnly && e.Source != index.SourceTyped {
		return false
	}
	if o.InlineOnly && e.Source != index.SourceInline {
		return false
	}
	if len(o.TypeInclude) > 0 && !containsFold(o.TypeInclude, e.Type) {
		return false
	}
	return !containsFold(o.TypeExclude, e.Type)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// TreeNote is a note reached by a traversal.
type TreeNote struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Type  string   `json:"type"`
	Tags  []string `json:"tags,omitempty"`
	Path  string   `json:"path,omitempty"`
	Value int      `json:"value"`
	// Cost is the cheapest accumulated cost found from the root.
	Cost HopCost `json:"cost"`
	// Hops is the number of edges on that cheapest path.
	Hops int `json:"hops"`
	// Via is the absorbed id the note was first reached through, when
	// compaction redirected it to a digest.
	Via string `json:"via,omitempty"`
}

// TreeLink is an edge emitted by a traversal, with canonical endpoints.
type TreeLink struct {
	From    string           `json:"from"`
	To      string           `json:"to"`
	Type    string           `json:"type"`
	Source  index.LinkSource `json:"source"`
	Virtual bool             `json:"virtual,omitempty"`
	Via     string           `json:"via,omitempty"`
}

// SpanningEdge is the edge through which a note was first reached on its
// cheapest path.
type SpanningEdge struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Type string  `json:"type"`
	Cost HopCost `json:"cost"`
	Hops int     `json:"hops"`
}

// TreeResult is the outcome of Traverser.Tree.
type TreeResult struct {
	Root             string           `json:"root"`
	Direction        Direction        `json:"direction"`
	MaxHops          HopCost          `json:"max_hops"`
	Notes            []TreeNote       `json:"notes"`
	Links            []TreeLink       `json:"links"`
	SpanningTree     []SpanningEdge   `json:"spanning_tree"`
	Truncated        bool             `json:"truncated"`
	TruncationReason TruncationReason `json:"truncation_reason,omitempty"`
	// RootFiltered is set when the root itself failed the min-value filter.
	RootFiltered bool `json:"root_filtered,omitempty"`
}

// NoteIDs returns the ids of the result notes in result order.
func (r *TreeResult) NoteIDs() []string {
	ids := make([]string, len(r.Notes))
	for i, n := range r.Notes {
		ids[i] = n.ID
	}
	return ids
}

// PathResult is the outcome of Traverser.Path.
type PathResult struct {
	From      string     `json:"from"`
	To        string     `json:"to"`
	Direction Direction  `json:"direction"`
	Found     bool       `json:"found"`
	Notes     []TreeNote `json:"notes"`
	Links     []TreeLink `json:"links"`
	Hops      int        `json:"hops"`
	Cost      HopCost    `json:"cost"`
}

// LinkEntry is one row of a note's link list.
type LinkEntry struct {
	// Direction is "out" or "in" from the listed note's perspective.
	// Virtual inverted edges are listed as "out".
	Direction string           `json:"direction"`
	ID        string           `json:"id"`
	Title     string           `json:"title,omitempty"`
	Type      string           `json:"type"`
	Source    index.LinkSource `json:"source"`
	Virtual   bool             `json:"virtual,omitempty"`
	Via       string           `json:"via,omitempty"`
}
