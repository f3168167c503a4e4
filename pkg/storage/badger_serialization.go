// Package storage - Serialization helpers for BadgerDB.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/mwaldstein/qipu-sub002/pkg/index"
	"github.com/mwaldstein/qipu-sub002/pkg/note"
)

// storedNote is the on-disk form of a note. The body and path travel next
// to the frontmatter so a rebuilt index does not need the markdown file.
type storedNote struct {
	Frontmatter note.Frontmatter `json:"frontmatter"`
	Body        string           `json:"body,omitempty"`
	Path        string           `json:"path,omitempty"`
}

func encodeNote(n *note.Note) ([]byte, error) {
	data, err := json.Marshal(storedNote{Frontmatter: n.Frontmatter, Body: n.Body, Path: n.Path})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding note %s: %v", ErrInvalidData, n.ID, err)
	}
	return data, nil
}

func decodeNote(data []byte) (*note.Note, error) {
	var sn storedNote
	if err := json.Unmarshal(data, &sn); err != nil {
		return nil, fmt.Errorf("unmarshaling note: %w", err)
	}
	return &note.Note{Frontmatter: sn.Frontmatter, Body: sn.Body, Path: sn.Path}, nil
}

func encodeEdge(e index.Edge) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEdge(data []byte) (index.Edge, error) {
	var e index.Edge
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("unmarshaling edge: %w", err)
	}
	return e, nil
}
