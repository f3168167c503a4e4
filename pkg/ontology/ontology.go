// Package ontology resolves the universe of note types and link types for a
// qipu store.
//
// An Ontology answers three questions for the rest of the system:
//   - Is a note type or link type valid in this store?
//   - What is the inverse of a link type? This drives semantic inversion
//     during traversal.
//   - What is the base traversal cost of a link type?
//
// Three resolution modes control how user-declared types combine with the
// built-in tables:
//   - default: built-in types only
//   - extended: built-in types plus custom types; custom entries win
//   - replacement: custom types only
//
// Example:
//
//	ont := ontology.New(ontology.Definition{
//		Mode: ontology.ModeExtended,
//		LinkTypes: map[string]ontology.LinkType{
//			"inspired-by": {Inverse: "inspired", Cost: ontology.Cost(0.8)},
//		},
//	})
//
//	ont.Inverse("supports")    // "supported-by"
//	ont.Inverse("inspired-by") // "inspired"
//	ont.LinkCost("part-of")    // 0.5
//
// An Ontology is immutable after construction and safe for concurrent use.
package ontology

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Errors returned by type validation.
var (
	ErrUnknownNoteType = errors.New("unknown note type")
	ErrUnknownLinkType = errors.New("unknown link type")
)

// Mode selects how custom types combine with the standard tables.
type Mode string

const (
	ModeDefault     Mode = "default"
	ModeExtended    Mode = "extended"
	ModeReplacement Mode = "replacement"
)

// ParseMode parses a mode string. The empty string is ModeDefault.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDefault:
		return ModeDefault, nil
	case ModeExtended:
		return ModeExtended, nil
	case ModeReplacement:
		return ModeReplacement, nil
	}
	return "", fmt.Errorf("invalid ontology mode %q (want default, extended or replacement)", s)
}

// Standard note types.
const (
	NoteFleeting   = "fleeting"
	NoteLiterature = "literature"
	NotePermanent  = "permanent"
	NoteMOC        = "moc"
)

// Frequently referenced link types.
const (
	LinkRelated  = "related"
	LinkSupports = "supports"
	LinkPartOf   = "part-of"
)

// DefaultLinkCost is the cost of any link type not found in a cost table.
const DefaultLinkCost = 1.0

var standardNoteTypes = []string{NoteFleeting, NoteLiterature, NotePermanent, NoteMOC}

var standardInverses = map[string]string{
	"related":         "related",
	"derived-from":    "derived-to",
	"derived-to":      "derived-from",
	"supports":        "supported-by",
	"supported-by":    "supports",
	"contradicts":     "contradicted-by",
	"contradicted-by": "contradicts",
	"part-of":         "has-part",
	"has-part":        "part-of",
	"answers":         "answered-by",
	"answered-by":     "answers",
	"refines":         "refined-by",
	"refined-by":      "refines",
	"same-as":         "same-as",
	"alias-of":        "has-alias",
	"has-alias":       "alias-of",
	"follows":         "precedes",
	"precedes":        "follows",
}

// Structural and identity links are cheaper to traverse than argumentative
// ones. Everything missing from this table costs DefaultLinkCost.
var standardCosts = map[string]float64{
	"part-of":   0.5,
	"has-part":  0.5,
	"follows":   0.5,
	"precedes":  0.5,
	"same-as":   0.5,
	"alias-of":  0.5,
	"has-alias": 0.5,
}

// StandardCost returns the built-in cost of a link type, ignoring any user
// configuration.
func StandardCost(linkType string) float64 {
	if c, ok := standardCosts[strings.ToLower(linkType)]; ok {
		return c
	}
	return DefaultLinkCost
}

// LinkType describes a custom link type.
type LinkType struct {
	// Inverse is the type presented for the reverse direction. Empty means
	// the standard table (or the inverse-<type> fallback) applies.
	Inverse string
	// Cost overrides the base traversal cost. Nil keeps the standard cost.
	Cost *float64
}

// Cost is a helper for building LinkType literals.
func Cost(c float64) *float64 { return &c }

// Definition is the user-facing ontology configuration.
type Definition struct {
	Mode      Mode
	NoteTypes []string
	LinkTypes map[string]LinkType
	// Legacy holds per-link-type overrides from the older graph.types
	// section. It is merged on top in every mode.
	Legacy map[string]LinkType
}

// Ontology is a resolved type universe.
type Ontology struct {
	mode      Mode
	noteTypes map[string]struct{}
	linkTypes map[string]struct{}
	inverses  map[string]string
	costs     map[string]float64
}

// Default returns the standard ontology.
func Default() *Ontology {
	return New(Definition{Mode: ModeDefault})
}

// New resolves a Definition into an Ontology.
func New(def Definition) *Ontology {
	o := &Ontology{
		mode:      def.Mode,
		noteTypes: make(map[string]struct{}),
		linkTypes: make(map[string]struct{}),
		inverses:  make(map[string]string),
		costs:     make(map[string]float64),
	}
	if o.mode == "" {
		o.mode = ModeDefault
	}

	if o.mode != ModeReplacement {
		for _, t := range standardNoteTypes {
			o.noteTypes[t] = struct{}{}
		}
		for t, inv := range standardInverses {
			o.linkTypes[t] = struct{}{}
			o.inverses[t] = inv
		}
	}

	if o.mode != ModeDefault {
		for _, t := range def.NoteTypes {
			o.noteTypes[strings.ToLower(t)] = struct{}{}
		}
		o.merge(def.LinkTypes)
	}
	o.merge(def.Legacy)

	return o
}

func (o *Ontology) merge(types map[string]LinkType) {
	// Sorted so that conflicting inverse declarations resolve the same way
	// on every run.
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		lt := types[name]
		key := strings.ToLower(name)
		o.linkTypes[key] = struct{}{}
		if lt.Inverse != "" {
			o.inverses[key] = strings.ToLower(lt.Inverse)
		}
		if lt.Cost != nil {
			o.costs[key] = *lt.Cost
		}
	}
}

// Mode returns the resolution mode this ontology was built with.
func (o *Ontology) Mode() Mode { return o.mode }

// Inverse returns the inverse of a link type. Symmetric types return
// themselves. Types with no known inverse map to "inverse-<type>", and a
// type of that shape maps back to its base.
func (o *Ontology) Inverse(linkType string) string {
	lt := strings.ToLower(linkType)
	if inv, ok := o.inverses[lt]; ok {
		return inv
	}
	if base, ok := strings.CutPrefix(lt, "inverse-"); ok && base != "" {
		return base
	}
	return "inverse-" + lt
}

// IsSymmetric reports whether a link type is its own inverse.
func (o *Ontology) IsSymmetric(linkType string) bool {
	return o.Inverse(linkType) == strings.ToLower(linkType)
}

// LinkCost returns the base traversal cost of a link type: the configured
// override, else the standard table, else DefaultLinkCost.
func (o *Ontology) LinkCost(linkType string) float64 {
	lt := strings.ToLower(linkType)
	if c, ok := o.costs[lt]; ok {
		return c
	}
	return StandardCost(lt)
}

// IsValidNoteType reports whether the note type exists in this ontology.
func (o *Ontology) IsValidNoteType(noteType string) bool {
	_, ok := o.noteTypes[strings.ToLower(noteType)]
	return ok
}

// IsValidLinkType reports whether the link type exists in this ontology.
func (o *Ontology) IsValidLinkType(linkType string) bool {
	_, ok := o.linkTypes[strings.ToLower(linkType)]
	return ok
}

// ValidateNoteType returns an error wrapping ErrUnknownNoteType when the
// note type is not part of this ontology.
func (o *Ontology) ValidateNoteType(noteType string) error {
	if o.IsValidNoteType(noteType) {
		return nil
	}
	return fmt.Errorf("%w: %q (valid types: %s)", ErrUnknownNoteType, noteType, strings.Join(o.NoteTypes(), ", "))
}

// ValidateLinkType returns an error wrapping ErrUnknownLinkType when the
// link type is not part of this ontology.
func (o *Ontology) ValidateLinkType(linkType string) error {
	if o.IsValidLinkType(linkType) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownLinkType, linkType)
}

// NoteTypes returns all valid note types, sorted.
func (o *Ontology) NoteTypes() []string {
	return sortedKeys(o.noteTypes)
}

// LinkTypes returns all valid link types, sorted.
func (o *Ontology) LinkTypes() []string {
	return sortedKeys(o.linkTypes)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
