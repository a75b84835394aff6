package doctree

import "fmt"

// DiagnosticKind classifies a non-fatal problem found while indexing or
// scoring a document.
type DiagnosticKind string

const (
	KindMalformedOutline  DiagnosticKind = "malformed_outline"
	KindExtractionFailure DiagnosticKind = "extraction_failure"
	KindDuplicateTitle    DiagnosticKind = "duplicate_title"
	KindNoPredecessor     DiagnosticKind = "no_predecessor"
	KindSectionSkipped    DiagnosticKind = "section_skipped"
	KindComputationFailed DiagnosticKind = "computation_failed"
)

// Diagnostic records one non-fatal problem.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind" yaml:"kind"`
	Document string         `json:"document,omitempty" yaml:"document,omitempty"`
	Section  string         `json:"section,omitempty" yaml:"section,omitempty"`
	Message  string         `json:"message" yaml:"message"`
	Err      error          `json:"-" yaml:"-"`
}

func (d Diagnostic) String() string {
	if d.Section != "" {
		return fmt.Sprintf("%s: %s: %s", d.Kind, d.Section, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// Diagnostics is an ordered collection returned alongside results.
type Diagnostics []Diagnostic

// Add appends a diagnostic built from err.
func (ds *Diagnostics) Add(kind DiagnosticKind, section string, err error) {
	*ds = append(*ds, Diagnostic{Kind: kind, Section: section, Message: err.Error(), Err: err})
}

// Count returns how many diagnostics have the given kind.
func (ds Diagnostics) Count(kind DiagnosticKind) int {
	n := 0
	for _, d := range ds {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// WithDocument stamps every diagnostic with the document name.
func (ds Diagnostics) WithDocument(name string) Diagnostics {
	out := make(Diagnostics, len(ds))
	for i, d := range ds {
		d.Document = name
		out[i] = d
	}
	return out
}
