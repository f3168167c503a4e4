// Package index builds the in-memory link graph that traversal runs on.
//
// An Index is a read-only snapshot: the set of notes (nodes) and the links
// between them (edges), with outbound and inbound lookup maps that keep
// edges in the order they were supplied. It is built once per command from
// the note corpus and discarded afterwards.
//
// Edges may point at ids that have no node. Such dangling references are
// kept as-is; lookups and traversal simply never reach them.
//
// Example:
//
//	idx := index.FromNotes(notes)
//	for _, e := range idx.Outbound("qp-a1b2") {
//		fmt.Println(e.From, e.Type, e.To)
//	}
package index

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mwaldstein/qipu-sub002/pkg/note"
)

// LinkSource records where a link was declared.
type LinkSource uint8

const (
	// SourceTyped links come from the frontmatter links list.
	SourceTyped LinkSource = iota
	// SourceInline links were found in the note body.
	SourceInline
)

func (s LinkSource) String() string {
	switch s {
	case SourceTyped:
		return "typed"
	case SourceInline:
		return "inline"
	}
	return fmt.Sprintf("LinkSource(%d)", uint8(s))
}

// ParseLinkSource parses "typed" or "inline".
func ParseLinkSource(s string) (LinkSource, error) {
	switch strings.ToLower(s) {
	case "typed":
		return SourceTyped, nil
	case "inline":
		return SourceInline, nil
	}
	return 0, fmt.Errorf("unknown link source %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s LinkSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *LinkSource) UnmarshalText(text []byte) error {
	v, err := ParseLinkSource(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Node is the graph view of a note.
type Node struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Type    string    `json:"type"`
	Tags    []string  `json:"tags,omitempty"`
	Value   int       `json:"value"`
	Path    string    `json:"path,omitempty"`
	Created time.Time `json:"created,omitempty"`
	Updated time.Time `json:"updated,omitempty"`
}

// Edge is a directed link between two notes.
type Edge struct {
	From   string     `json:"from"`
	To     string     `json:"to"`
	Type   string     `json:"type"`
	Source LinkSource `json:"source"`
	// Virtual marks an edge synthesised by semantic inversion rather than
	// authored in a note.
	Virtual bool `json:"virtual,omitempty"`
}

// Inverted returns the mirror image of e with the given type, marked
// virtual.
func (e Edge) Inverted(inverseType string) Edge {
	return Edge{
		From:    e.To,
		To:      e.From,
		Type:    inverseType,
		Source:  e.Source,
		Virtual: true,
	}
}

// Index is an immutable graph snapshot.
type Index struct {
	nodes      map[string]*Node
	edges      []Edge
	outbound   map[string][]int
	inbound    map[string][]int
	tags       map[string][]string
	unresolved map[string]struct{}
}

// Build creates an index from nodes and edges. A repeated node id replaces
// the earlier node. Edges are kept in the order given, including edges whose
// endpoints are unknown.
func Build(nodes []Node, edges []Edge) *Index {
	idx := &Index{
		nodes:      make(map[string]*Node, len(nodes)),
		edges:      make([]Edge, len(edges)),
		outbound:   make(map[string][]int),
		inbound:    make(map[string][]int),
		tags:       make(map[string][]string),
		unresolved: make(map[string]struct{}),
	}

	for i := range nodes {
		n := nodes[i]
		n.Tags = append([]string(nil), n.Tags...)
		idx.nodes[n.ID] = &n
	}

	for _, n := range idx.nodes {
		for _, tag := range n.Tags {
			idx.tags[tag] = append(idx.tags[tag], n.ID)
		}
	}
	for tag := range idx.tags {
		sort.Strings(idx.tags[tag])
	}

	copy(idx.edges, edges)
	for i, e := range idx.edges {
		idx.outbound[e.From] = append(idx.outbound[e.From], i)
		idx.inbound[e.To] = append(idx.inbound[e.To], i)
		if _, ok := idx.nodes[e.To]; !ok {
			idx.unresolved[e.To] = struct{}{}
		}
	}

	return idx
}

// FromNotes builds an index from parsed notes, deriving edges from each
// note's typed and inline links.
func FromNotes(notes []*note.Note) *Index {
	nodes := make([]Node, 0, len(notes))
	var edges []Edge
	for _, n := range notes {
		nodes = append(nodes, NodeFromNote(n))
		edges = append(edges, LinksFromNote(n)...)
	}
	return Build(nodes, edges)
}

// NodeFromNote converts a note into its graph node.
func NodeFromNote(n *note.Note) Node {
	node := Node{
		ID:    n.ID,
		Title: n.Title,
		Type:  n.NoteType(),
		Tags:  append([]string(nil), n.Tags...),
		Value: n.ImportanceValue(),
		Path:  n.Path,
	}
	if n.Created != nil {
		node.Created = *n.Created
	}
	if n.Updated != nil {
		node.Updated = *n.Updated
	}
	return node
}

// LinksFromNote derives the edges of a single note. Typed links come first
// in declaration order, then inline links typed "related". A (target, type)
// pair appears once, so a typed link shadows an identical inline one.
func LinksFromNote(n *note.Note) []Edge {
	type key struct{ to, typ string }
	seen := make(map[key]struct{})
	var edges []Edge

	add := func(to, typ string, src LinkSource) {
		to = strings.TrimSpace(to)
		typ = strings.ToLower(strings.TrimSpace(typ))
		if to == "" || typ == "" {
			return
		}
		k := key{to, typ}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		edges = append(edges, Edge{From: n.ID, To: to, Type: typ, Source: src})
	}

	for _, l := range n.Links {
		add(l.ID, l.Type, SourceTyped)
	}
	for _, id := range note.ExtractInlineLinks(n.Body) {
		add(id, "related", SourceInline)
	}
	return edges
}

// Node returns the node with the given id.
func (idx *Index) Node(id string) (Node, bool) {
	n, ok := idx.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Contains reports whether a node with this id exists.
func (idx *Index) Contains(id string) bool {
	_, ok := idx.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (idx *Index) Len() int { return len(idx.nodes) }

// IDs returns every node id, sorted.
func (idx *Index) IDs() []string {
	ids := make([]string, 0, len(idx.nodes))
	for id := range idx.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Nodes returns every node, sorted by id.
func (idx *Index) Nodes() []Node {
	out := make([]Node, 0, len(idx.nodes))
	for _, id := range idx.IDs() {
		out = append(out, *idx.nodes[id])
	}
	return out
}

// Edges returns every edge in insertion order.
func (idx *Index) Edges() []Edge {
	return append([]Edge(nil), idx.edges...)
}

// Outbound returns the edges leaving id, in insertion order. Unknown ids
// yield nil.
func (idx *Index) Outbound(id string) []Edge {
	return idx.collect(idx.outbound[id])
}

// Inbound returns the edges arriving at id, in insertion order. Unknown ids
// yield nil.
func (idx *Index) Inbound(id string) []Edge {
	return idx.collect(idx.inbound[id])
}

func (idx *Index) collect(positions []int) []Edge {
	if len(positions) == 0 {
		return nil
	}
	out := make([]Edge, len(positions))
	for i, p := range positions {
		out[i] = idx.edges[p]
	}
	return out
}

// Tagged returns the ids of nodes carrying tag, sorted.
func (idx *Index) Tagged(tag string) []string {
	return append([]string(nil), idx.tags[tag]...)
}

// Unresolved returns link targets that have no node, sorted.
func (idx *Index) Unresolved() []string {
	out := make([]string, 0, len(idx.unresolved))
	for id := range idx.unresolved {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
