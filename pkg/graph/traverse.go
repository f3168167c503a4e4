package graph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mwaldstein/qipu-sub002/pkg/index"
	"github.com/mwaldstein/qipu-sub002/pkg/ontology"
)

// Traverser runs queries against one index snapshot. It holds no mutable
// state between calls and is safe for concurrent use.
type Traverser struct {
	idx  *index.Index
	ont  Ontology
	comp Compaction
	log  *zap.Logger
}

// Option configures a Traverser.
type Option func(*Traverser)

// WithCompaction resolves absorbed notes to their digests during traversal.
func WithCompaction(c Compaction) Option {
	return func(t *Traverser) { t.comp = c }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(t *Traverser) {
		if l != nil {
			t.log = l
		}
	}
}

// NewTraverser binds a traverser to an index and ontology. A nil ontology
// means the standard one.
func NewTraverser(idx *index.Index, ont Ontology, opts ...Option) *Traverser {
	if ont == nil {
		ont = ontology.Default()
	}
	t := &Traverser{idx: idx, ont: ont, log: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Traverser) canon(id string) string {
	if t.comp == nil {
		return id
	}
	return t.comp.Canon(id)
}

// sources returns the raw ids whose edges belong to id: the note itself and,
// for a digest, everything it absorbs.
func (t *Traverser) sources(id string) []string {
	if t.comp == nil {
		return []string{id}
	}
	if eq := t.comp.Equivalents(id); len(eq) > 0 {
		return eq
	}
	return []string{id}
}

// effective applies semantic inversion to an inbound edge. Symmetric types
// keep the authored edge.
func (t *Traverser) effective(e index.Edge, opts *Options) index.Edge {
	if !opts.SemanticInversion {
		return e
	}
	inv := t.ont.Inverse(e.Type)
	if strings.EqualFold(inv, e.Type) {
		return e
	}
	return e.Inverted(inv)
}

// candidate is an edge leaving the node under expansion.
type candidate struct {
	edge     index.Edge
	neighbor string
}

func lessCandidate(a, b candidate) bool {
	switch {
	case a.edge.Type != b.edge.Type:
		return a.edge.Type < b.edge.Type
	case a.neighbor != b.neighbor:
		return a.neighbor < b.neighbor
	case a.edge.From != b.edge.From:
		return a.edge.From < b.edge.From
	case a.edge.To != b.edge.To:
		return a.edge.To < b.edge.To
	case a.edge.Source != b.edge.Source:
		return a.edge.Source < b.edge.Source
	}
	return !a.edge.Virtual && b.edge.Virtual
}

// candidates collects the filtered edges of id in expansion order.
func (t *Traverser) candidates(id string, opts *Options) []candidate {
	var out []candidate
	for _, src := range t.sources(id) {
		if opts.Direction != In {
			for _, e := range t.idx.Outbound(src) {
				if opts.allows(e) {
					out = append(out, candidate{edge: e, neighbor: e.To})
				}
			}
		}
		if opts.Direction != Out {
			for _, e := range t.idx.Inbound(src) {
				eff := t.effective(e, opts)
				if opts.allows(eff) {
					out = append(out, candidate{edge: eff, neighbor: e.From})
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return lessCandidate(out[i], out[j]) })
	return out
}

type visit struct {
	cost   HopCost
	hops   int
	parent string
	link   TreeLink
	via    string
}

type linkKey struct {
	from, to, typ string
	source        index.LinkSource
	virtual       bool
}

type walker struct {
	t         *Traverser
	opts      Options
	mode      CostMode
	front     frontier
	visits    map[string]*visit
	settled   map[string]bool
	links     []TreeLink
	seen      map[linkKey]struct{}
	truncated bool
	reason    TruncationReason
	expanded  int
}

func (t *Traverser) newWalker(opts Options) *walker {
	return &walker{
		t:       t,
		opts:    opts,
		mode:    opts.costMode(),
		front:   newFrontier(opts.Unweighted),
		visits:  make(map[string]*visit),
		settled: make(map[string]bool),
		seen:    make(map[linkKey]struct{}),
	}
}

func (w *walker) truncate(r TruncationReason) {
	w.truncated = true
	if w.reason == ReasonNone {
		w.reason = r
	}
}

func (w *walker) passesMin(id string) bool {
	if w.opts.MinValue <= 0 {
		return true
	}
	n, ok := w.t.idx.Node(id)
	return ok && n.Value >= w.opts.MinValue
}

func (w *walker) value(id string) int {
	if n, ok := w.t.idx.Node(id); ok {
		return n.Value
	}
	return 0
}

// run expands the graph from root until the frontier drains, the context
// is cancelled, or target (if non-empty) is settled.
func (w *walker) run(ctx context.Context, root, rootVia, target string) {
	w.visits[root] = &visit{via: rootVia}
	w.front.push(root, 0)

	for {
		if ctx.Err() != nil {
			w.truncate(ReasonCancelled)
			return
		}
		item, ok := w.front.pop()
		if !ok {
			return
		}
		v := w.visits[item.id]
		if w.settled[item.id] || item.cost > v.cost+costEpsilon {
			continue
		}
		w.settled[item.id] = true
		if item.id == target {
			return
		}

		cands := w.t.candidates(item.id, &w.opts)
		if float64(v.cost) >= float64(w.opts.MaxHops)-costEpsilon {
			if w.hasUnexpanded(cands) {
				w.truncate(ReasonMaxHops)
			}
			continue
		}

		w.expanded++
		if w.opts.MaxFanout > 0 && len(cands) > w.opts.MaxFanout {
			w.truncate(ReasonMaxFanout)
			cands = cands[:w.opts.MaxFanout]
		}
		for _, c := range cands {
			w.follow(item.id, v, c)
		}
	}
}

// hasUnexpanded reports whether a node cut off by the budget would have led
// anywhere new.
func (w *walker) hasUnexpanded(cands []candidate) bool {
	for _, c := range cands {
		if w.t.canon(c.edge.From) == w.t.canon(c.edge.To) {
			continue
		}
		nb := w.t.canon(c.neighbor)
		if !w.t.idx.Contains(nb) || w.visits[nb] != nil {
			continue
		}
		if w.passesMin(nb) {
			return true
		}
	}
	return false
}

func (w *walker) follow(cur string, v *visit, c candidate) {
	from, to := w.t.canon(c.edge.From), w.t.canon(c.edge.To)
	if from == to {
		return
	}
	nb := w.t.canon(c.neighbor)
	if !w.t.idx.Contains(nb) {
		return
	}
	known := w.visits[nb]
	if known == nil {
		if !w.passesMin(nb) {
			return
		}
		if w.opts.MaxNodes > 0 && len(w.visits) >= w.opts.MaxNodes {
			w.truncate(ReasonMaxNodes)
			return
		}
	}

	var via string
	if nb != c.neighbor {
		via = c.neighbor
	}
	link := TreeLink{
		From:    from,
		To:      to,
		Type:    c.edge.Type,
		Source:  c.edge.Source,
		Virtual: c.edge.Virtual,
		Via:     via,
	}
	key := linkKey{from, to, link.Type, link.Source, link.Virtual}
	if _, dup := w.seen[key]; !dup {
		if w.opts.MaxEdges > 0 && len(w.links) >= w.opts.MaxEdges {
			w.truncate(ReasonMaxEdges)
			return
		}
		w.seen[key] = struct{}{}
		w.links = append(w.links, link)
	}

	cost := v.cost + EdgeCost(c.edge.Type, w.value(nb), w.t.ont, w.mode)
	switch {
	case known == nil:
		w.visits[nb] = &visit{cost: cost, hops: v.hops + 1, parent: cur, link: link, via: via}
		w.front.push(nb, cost)
	case !w.settled[nb] && cost < known.cost-costEpsilon:
		known.cost, known.hops, known.parent, known.link, known.via = cost, v.hops+1, cur, link, via
		w.front.push(nb, cost)
	}
}

func (w *walker) note(id string) TreeNote {
	v := w.visits[id]
	tn := TreeNote{ID: id, Cost: v.cost, Hops: v.hops, Via: v.via}
	if n, ok := w.t.idx.Node(id); ok {
		tn.Title = n.Title
		tn.Type = n.Type
		tn.Tags = n.Tags
		tn.Path = n.Path
		tn.Value = n.Value
	}
	return tn
}

func costLess(a, b HopCost) (less, equal bool) {
	if math.Abs(float64(a-b)) <= costEpsilon {
		return false, true
	}
	return a < b, false
}

func (w *walker) sortedNotes() []TreeNote {
	notes := make([]TreeNote, 0, len(w.visits))
	for id := range w.visits {
		notes = append(notes, w.note(id))
	}
	sort.Slice(notes, func(i, j int) bool {
		if less, eq := costLess(notes[i].Cost, notes[j].Cost); !eq {
			return less
		}
		return notes[i].ID < notes[j].ID
	})
	return notes
}

func (w *walker) sortedLinks() []TreeLink {
	links := append([]TreeLink{}, w.links...)
	sort.Slice(links, func(i, j int) bool {
		a, b := links[i], links[j]
		switch {
		case a.From != b.From:
			return a.From < b.From
		case a.To != b.To:
			return a.To < b.To
		case a.Type != b.Type:
			return a.Type < b.Type
		case a.Source != b.Source:
			return a.Source < b.Source
		}
		return !a.Virtual && b.Virtual
	})
	return links
}

func (w *walker) spanningTree() []SpanningEdge {
	tree := make([]SpanningEdge, 0, len(w.visits))
	for id, v := range w.visits {
		if v.parent == "" {
			continue
		}
		tree = append(tree, SpanningEdge{From: v.parent, To: id, Type: v.link.Type, Cost: v.cost, Hops: v.hops})
	}
	sort.Slice(tree, func(i, j int) bool {
		a, b := tree[i], tree[j]
		switch {
		case a.Hops != b.Hops:
			return a.Hops < b.Hops
		case a.Type != b.Type:
			return a.Type < b.Type
		}
		return a.To < b.To
	})
	return tree
}

// resolveRoot canonicalises id and checks that it exists.
func (t *Traverser) resolveRoot(id string) (canonical, via string, err error) {
	canonical = t.canon(id)
	if !t.idx.Contains(canonical) {
		return "", "", fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if canonical != id {
		via = id
	}
	return canonical, via, nil
}

// Tree returns everything reachable from root within the options' limits.
// A root that fails the min-value filter gives an empty result with
// RootFiltered set.
func (t *Traverser) Tree(ctx context.Context, root string, opts Options) (*TreeResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	start, via, err := t.resolveRoot(root)
	if err != nil {
		return nil, err
	}

	res := &TreeResult{
		Root:         start,
		Direction:    opts.Direction,
		MaxHops:      opts.MaxHops,
		Notes:        []TreeNote{},
		Links:        []TreeLink{},
		SpanningTree: []SpanningEdge{},
	}

	w := t.newWalker(opts)
	if !w.passesMin(start) {
		res.RootFiltered = true
		return res, nil
	}

	w.run(ctx, start, via, "")

	res.Notes = w.sortedNotes()
	res.Links = w.sortedLinks()
	res.SpanningTree = w.spanningTree()
	res.Truncated = w.truncated
	res.TruncationReason = w.reason

	t.log.Debug("traversal complete",
		zap.String("root", start),
		zap.Stringer("direction", opts.Direction),
		zap.Bool("unweighted", opts.Unweighted),
		zap.Int("expanded", w.expanded),
		zap.Int("notes", len(res.Notes)),
		zap.Int("links", len(res.Links)),
		zap.String("truncation_reason", string(res.TruncationReason)),
	)
	return res, nil
}

// Path finds the cheapest route from one note to another using the same
// algorithm, filters and limits as Tree. Found is false when no route
// exists within the limits.
func (t *Traverser) Path(ctx context.Context, from, to string, opts Options) (*PathResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	src, via, err := t.resolveRoot(from)
	if err != nil {
		return nil, err
	}
	dst, _, err := t.resolveRoot(to)
	if err != nil {
		return nil, err
	}

	res := &PathResult{From: src, To: dst, Direction: opts.Direction, Notes: []TreeNote{}, Links: []TreeLink{}}

	w := t.newWalker(opts)
	if !w.passesMin(src) || !w.passesMin(dst) {
		return res, nil
	}
	w.run(ctx, src, via, dst)

	end := w.visits[dst]
	if end == nil {
		return res, nil
	}

	var chain []string
	for id := dst; ; id = w.visits[id].parent {
		chain = append(chain, id)
		if id == src {
			break
		}
	}
	for i := len(chain) - 1; i >= 0; i-- {
		id := chain[i]
		res.Notes = append(res.Notes, w.note(id))
		if id != src {
			res.Links = append(res.Links, w.visits[id].link)
		}
	}

	res.Found = true
	res.Hops = end.hops
	res.Cost = end.cost

	t.log.Debug("path search complete",
		zap.String("from", src),
		zap.String("to", dst),
		zap.Int("hops", res.Hops),
		zap.Float64("cost", float64(res.Cost)),
	)
	return res, nil
}

// Neighbors lists the direct links of a note. Direction, type and source
// filters, semantic inversion and min value apply as in Tree; the fan-out
// and hop limits do not. Dangling targets are listed without a title,
// unless a min value is set, which they never meet.
func (t *Traverser) Neighbors(id string, opts Options) ([]LinkEntry, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	self, _, err := t.resolveRoot(id)
	if err != nil {
		return nil, err
	}

	var entries []LinkEntry
	add := func(dir string, e index.Edge, raw string) {
		other := t.canon(raw)
		if other == self {
			return
		}
		entry := LinkEntry{
			Direction: dir,
			ID:        other,
			Type:      e.Type,
			Source:    e.Source,
			Virtual:   e.Virtual,
		}
		if other != raw {
			entry.Via = raw
		}
		n, ok := t.idx.Node(other)
		if opts.MinValue > 0 && (!ok || n.Value < opts.MinValue) {
			return
		}
		if ok {
			entry.Title = n.Title
		}
		entries = append(entries, entry)
	}

	for _, src := range t.sources(self) {
		if opts.Direction != In {
			for _, e := range t.idx.Outbound(src) {
				if opts.allows(e) {
					add("out", e, e.To)
				}
			}
		}
		if opts.Direction != Out {
			for _, e := range t.idx.Inbound(src) {
				eff := t.effective(e, &opts)
				if !opts.allows(eff) {
					continue
				}
				if eff.Virtual {
					add("out", eff, e.From)
				} else {
					add("in", eff, e.From)
				}
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.Direction != b.Direction:
			return a.Direction < b.Direction
		case a.Type != b.Type:
			return a.Type < b.Type
		case a.ID != b.ID:
			return a.ID < b.ID
		case a.Source != b.Source:
			return a.Source < b.Source
		}
		return !a.Virtual && b.Virtual
	})

	out := entries[:0]
	for i, e := range entries {
		if i > 0 {
			p := out[len(out)-1]
			if p.Direction == e.Direction && p.Type == e.Type && p.ID == e.ID {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}
