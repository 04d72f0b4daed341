// Package annotation provides the immutable decoded view over one server
// JSON row, its derived accessors, and the tombstone type produced by
// delete events.
package annotation

// Type classifies an annotation by its shape. See Record.Type.
type Type string

const (
	TypeAnnotation Type = "annotation"
	TypeReply      Type = "reply"
	TypePageNote   Type = "pagenote"
)

// Document carries the title, filename, and link list for one annotated
// document.
type Document struct {
	Title    string       `json:"title,omitempty"`
	Filename string       `json:"filename,omitempty"`
	Link     []DocumentLink `json:"link,omitempty"`
}

// DocumentLink is one entry in Document.Link.
type DocumentLink struct {
	Href string `json:"href"`
}

// SelectorKind distinguishes the four recognized selector shapes.
type SelectorKind string

const (
	SelectorTextQuote    SelectorKind = "TextQuoteSelector"
	SelectorTextPosition SelectorKind = "TextPositionSelector"
	SelectorFragment     SelectorKind = "FragmentSelector"
	SelectorSource       SelectorKind = "" // bare source, no selector body
)

// Selector is a machine-readable description of one anchor. Only the
// fields relevant to Kind are populated.
type Selector struct {
	Kind SelectorKind

	// TextQuoteSelector
	Prefix string
	Exact  string
	Suffix string

	// TextPositionSelector
	Start int
	End   int

	// FragmentSelector
	Value string
}

// Target is one anchor point within a document: a scope (the URIs it
// applies to) and zero or more selectors.
type Target struct {
	Source    string
	Selectors []Selector
}

// Record is an immutable decoded view over one server annotation row.
type Record struct {
	ID         string
	Group      string
	User       string
	Created    string // RFC-3339
	Updated    string // RFC-3339
	URI        string
	References []string // ancestor ids, root-first
	Tags       []string
	Text       string
	Document   Document
	Targets    []Target

	// Raw preserves the original decoded JSON row so re-serialization
	// (e.g. batch-file persistence) round-trips fields this view does
	// not model explicitly.
	Raw map[string]any
}

// Type classifies the record: reply iff References is non-empty;
// otherwise annotation iff any target carries a selector; otherwise
// pagenote.
func (r *Record) Type() Type {
	if len(r.References) > 0 {
		return TypeReply
	}
	for _, t := range r.Targets {
		if len(t.Selectors) > 0 {
			return TypeAnnotation
		}
	}
	return TypePageNote
}

// ParentID returns the direct parent id (the last element of References)
// and true, or "" and false if this record has no references.
func (r *Record) ParentID() (string, bool) {
	if len(r.References) == 0 {
		return "", false
	}
	return r.References[len(r.References)-1], true
}

// Tombstone is produced when the Subscriber receives a delete event. It
// drives eviction from the cache and the Annotation Index.
type Tombstone struct {
	ID      string
	Deleted bool
}
