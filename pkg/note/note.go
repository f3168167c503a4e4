// Package note models a qipu note: a markdown file with a YAML frontmatter
// header.
//
// A note on disk looks like:
//
//	---
//	id: qp-a1b2
//	title: Zettelkasten basics
//	type: permanent
//	tags: [method]
//	links:
//	  - type: supports
//	    id: qp-c3d4
//	value: 80
//	---
//
//	Body text with an inline [[qp-e5f6]] reference.
//
// Typed links live in the frontmatter; inline links are discovered in the
// body by ExtractInlineLinks. A digest note lists the ids it absorbs in
// Compacts.
package note

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Errors returned while parsing notes.
var (
	ErrMissingFrontmatter = errors.New("missing frontmatter")
	ErrMissingID          = errors.New("frontmatter has no id")
	ErrInvalidValue       = errors.New("value must be between 0 and 100")
)

// DefaultValue is the importance assigned to notes without an explicit value.
const DefaultValue = 50

// DefaultType is the note type assigned to notes without an explicit type.
const DefaultType = "fleeting"

const delimiter = "---"

// TypedLink is a link declared in frontmatter.
type TypedLink struct {
	Type string `yaml:"type" json:"type"`
	ID   string `yaml:"id" json:"id"`
}

// Source is a bibliographic reference attached to a note.
type Source struct {
	URL      string `yaml:"url" json:"url"`
	Title    string `yaml:"title,omitempty" json:"title,omitempty"`
	Accessed string `yaml:"accessed,omitempty" json:"accessed,omitempty"`
}

// Frontmatter is the structured header of a note.
type Frontmatter struct {
	ID          string         `yaml:"id" json:"id"`
	Title       string         `yaml:"title" json:"title"`
	Type        string         `yaml:"type,omitempty" json:"type,omitempty"`
	Created     *time.Time     `yaml:"created,omitempty" json:"created,omitempty"`
	Updated     *time.Time     `yaml:"updated,omitempty" json:"updated,omitempty"`
	Tags        []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
	Sources     []Source       `yaml:"sources,omitempty" json:"sources,omitempty"`
	Links       []TypedLink    `yaml:"links,omitempty" json:"links,omitempty"`
	Summary     string         `yaml:"summary,omitempty" json:"summary,omitempty"`
	Compacts    []string       `yaml:"compacts,omitempty" json:"compacts,omitempty"`
	Source      string         `yaml:"source,omitempty" json:"source,omitempty"`
	Author      string         `yaml:"author,omitempty" json:"author,omitempty"`
	GeneratedBy string         `yaml:"generated_by,omitempty" json:"generated_by,omitempty"`
	PromptHash  string         `yaml:"prompt_hash,omitempty" json:"prompt_hash,omitempty"`
	Verified    *bool          `yaml:"verified,omitempty" json:"verified,omitempty"`
	Value       *int           `yaml:"value,omitempty" json:"value,omitempty"`
	Custom      map[string]any `yaml:"custom,omitempty" json:"custom,omitempty"`
}

// Note is a parsed note file.
type Note struct {
	Frontmatter `json:"frontmatter"`
	Body        string `json:"body"`
	// Path is the file location relative to the store root. Empty for
	// notes that have not been written yet.
	Path string `json:"path,omitempty"`
}

// New returns a note with the given id and title, stamped with the current
// time.
func New(id, title string) *Note {
	now := time.Now().UTC().Truncate(time.Second)
	return &Note{
		Frontmatter: Frontmatter{
			ID:      id,
			Title:   title,
			Type:    DefaultType,
			Created: &now,
			Updated: &now,
		},
	}
}

// NoteType returns the note's type, falling back to DefaultType.
func (n *Note) NoteType() string {
	if n.Type == "" {
		return DefaultType
	}
	return n.Type
}

// ImportanceValue returns the note's value, falling back to DefaultValue.
func (n *Note) ImportanceValue() int {
	if n.Value == nil {
		return DefaultValue
	}
	return *n.Value
}

// SetValue sets the note's value after range checking it.
func (n *Note) SetValue(v int) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidValue, v)
	}
	n.Value = &v
	return nil
}

// IsDigest reports whether the note absorbs other notes.
func (n *Note) IsDigest() bool {
	return len(n.Compacts) > 0
}

// HasLink reports whether the note already declares a typed link of this
// type to the target.
func (n *Note) HasLink(linkType, target string) bool {
	for _, l := range n.Links {
		if l.ID == target && strings.EqualFold(l.Type, linkType) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the note.
func (n *Note) Clone() *Note {
	c := *n
	c.Tags = append([]string(nil), n.Tags...)
	c.Sources = append([]Source(nil), n.Sources...)
	c.Links = append([]TypedLink(nil), n.Links...)
	c.Compacts = append([]string(nil), n.Compacts...)
	if n.Created != nil {
		t := *n.Created
		c.Created = &t
	}
	if n.Updated != nil {
		t := *n.Updated
		c.Updated = &t
	}
	if n.Verified != nil {
		v := *n.Verified
		c.Verified = &v
	}
	if n.Value != nil {
		v := *n.Value
		c.Value = &v
	}
	if n.Custom != nil {
		c.Custom = make(map[string]any, len(n.Custom))
		for k, v := range n.Custom {
			c.Custom[k] = v
		}
	}
	return &c
}

// Parse decodes a note file. path is recorded on the returned note.
func Parse(data []byte, path string) (*Note, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, delimiter+"\n") {
		return nil, ErrMissingFrontmatter
	}
	rest := text[len(delimiter)+1:]

	var header, body string
	switch {
	case strings.HasPrefix(rest, delimiter+"\n"):
		body = rest[len(delimiter)+1:]
	case rest == delimiter:
	default:
		end := strings.Index(rest, "\n"+delimiter+"\n")
		if end < 0 {
			if !strings.HasSuffix(rest, "\n"+delimiter) {
				return nil, fmt.Errorf("%w: unterminated header", ErrMissingFrontmatter)
			}
			end = len(rest) - len(delimiter) - 1
			header = rest[:end]
		} else {
			header = rest[:end]
			body = rest[end+len(delimiter)+2:]
		}
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return nil, fmt.Errorf("decoding frontmatter: %w", err)
	}
	if strings.TrimSpace(fm.ID) == "" {
		return nil, ErrMissingID
	}
	if fm.Value != nil && (*fm.Value < 0 || *fm.Value > 100) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidValue, *fm.Value)
	}

	return &Note{
		Frontmatter: fm,
		Body:        strings.TrimPrefix(body, "\n"),
		Path:        path,
	}, nil
}

// Render encodes the note back into its file form.
func (n *Note) Render() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&n.Frontmatter); err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}

	buf.WriteString(delimiter + "\n")
	if n.Body != "" {
		buf.WriteByte('\n')
		buf.WriteString(n.Body)
	}
	return buf.Bytes(), nil
}
