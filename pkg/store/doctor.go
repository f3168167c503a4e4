package store

import (
	"fmt"
	"sort"

	"github.com/mwaldstein/qipu-sub002/pkg/compaction"
	"github.com/mwaldstein/qipu-sub002/pkg/index"
	"github.com/mwaldstein/qipu-sub002/pkg/note"
)

// Severity grades a doctor finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one doctor finding.
type Issue struct {
	Severity Severity `json:"severity"`
	Check    string   `json:"check"`
	NoteID   string   `json:"note_id,omitempty"`
	Message  string   `json:"message"`
}

// Report is the result of Doctor.
type Report struct {
	NotesChecked int     `json:"notes_checked"`
	Issues       []Issue `json:"issues"`
}

// HasErrors reports whether any issue has error severity.
func (r *Report) HasErrors() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Doctor checks the cached corpus for compaction violations, types
// unknown to the ontology, malformed ids and dangling links.
func (s *Store) Doctor() (*Report, error) {
	notes, err := s.engine.ListNotes()
	if err != nil {
		return nil, err
	}
	report := &Report{NotesChecked: len(notes), Issues: []Issue{}}

	for _, v := range compaction.Build(notes).Validate(notes) {
		report.Issues = append(report.Issues, Issue{
			Severity: SeverityError,
			Check:    "compaction",
			Message:  v,
		})
	}

	present := make(map[string]bool, len(notes))
	for _, n := range notes {
		present[n.ID] = true
	}

	for _, n := range notes {
		if err := note.ValidateID(n.ID); err != nil {
			report.Issues = append(report.Issues, Issue{
				Severity: SeverityWarning,
				Check:    "id",
				NoteID:   n.ID,
				Message:  err.Error(),
			})
		}
		if err := s.ont.ValidateNoteType(n.NoteType()); err != nil {
			report.Issues = append(report.Issues, Issue{
				Severity: SeverityWarning,
				Check:    "note-type",
				NoteID:   n.ID,
				Message:  err.Error(),
			})
		}
		for _, e := range index.LinksFromNote(n) {
			if e.Source == index.SourceTyped {
				if err := s.ont.ValidateLinkType(e.Type); err != nil {
					report.Issues = append(report.Issues, Issue{
						Severity: SeverityWarning,
						Check:    "link-type",
						NoteID:   n.ID,
						Message:  err.Error(),
					})
				}
			}
			if !present[e.To] {
				report.Issues = append(report.Issues, Issue{
					Severity: SeverityWarning,
					Check:    "dangling-link",
					NoteID:   n.ID,
					Message:  fmt.Sprintf("%s link to missing note %s", e.Type, e.To),
				})
			}
		}
	}

	sort.SliceStable(report.Issues, func(i, j int) bool {
		a, b := report.Issues[i], report.Issues[j]
		if a.Severity != b.Severity {
			return a.Severity == SeverityError
		}
		if a.Check != b.Check {
			return a.Check < b.Check
		}
		return a.NoteID < b.NoteID
	})
	return report, nil
}
