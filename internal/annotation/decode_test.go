package annotation

import "testing"

func TestDecode(t *testing.T) {
	row := map[string]any{
		"id":      "abc123",
		"group":   "__world__",
		"user":    "acct:jane@hypothes.is",
		"created": "2024-01-01T00:00:00.000000+00:00",
		"updated": "2024-01-02T00:00:00.000000+00:00",
		"uri":     "https://example.com/article",
		"text":    "a note",
		"tags":    []any{" one ", "two", ""},
		"target": []any{
			map[string]any{
				"scope": []any{"https://example.com/article"},
				"selector": []any{
					map[string]any{
						"type":   "TextQuoteSelector",
						"prefix": "pre",
						"exact":  "exact text",
						"suffix": "suf",
					},
				},
			},
		},
		"document": map[string]any{
			"title": "An Article",
			"link": []any{
				map[string]any{"href": "https://example.com/article"},
			},
		},
	}

	rec, err := Decode(row)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if rec.ID != "abc123" {
		t.Errorf("ID = %q, want %q", rec.ID, "abc123")
	}
	if rec.Type() != TypeAnnotation {
		t.Errorf("Type() = %v, want %v", rec.Type(), TypeAnnotation)
	}
	if len(rec.Tags) != 2 || rec.Tags[0] != "one" || rec.Tags[1] != "two" {
		t.Errorf("Tags = %v, want trimmed non-empty [one two]", rec.Tags)
	}
	if len(rec.Targets) != 1 || len(rec.Targets[0].Selectors) != 1 {
		t.Fatalf("Targets = %+v, want 1 target with 1 selector", rec.Targets)
	}
	sel := rec.Targets[0].Selectors[0]
	if sel.Kind != SelectorTextQuote || sel.Exact != "exact text" {
		t.Errorf("selector = %+v, want TextQuoteSelector exact=%q", sel, "exact text")
	}
	if rec.Document.Title != "An Article" {
		t.Errorf("Document.Title = %q", rec.Document.Title)
	}
}

func TestDecodeNormalizesURI(t *testing.T) {
	row := map[string]any{
		"id":  "abc123",
		"uri": "https://via.hypothes.is/h/https://example.com/article?hypothesisAnnotationId=xyz",
	}

	rec, err := Decode(row)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := "https://example.com/article"
	if rec.URI != want {
		t.Errorf("URI = %q, want %q", rec.URI, want)
	}
}

func TestDecodeMissingID(t *testing.T) {
	_, err := Decode(map[string]any{"group": "g"})
	if err == nil {
		t.Fatal("Decode() with missing id should error")
	}
}

func TestDecodeReply(t *testing.T) {
	row := map[string]any{
		"id":         "reply-1",
		"references": []any{"root-id", "parent-id"},
	}
	rec, err := Decode(row)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if rec.Type() != TypeReply {
		t.Errorf("Type() = %v, want %v", rec.Type(), TypeReply)
	}
	parent, ok := rec.ParentID()
	if !ok || parent != "parent-id" {
		t.Errorf("ParentID() = %q, %v", parent, ok)
	}
}

func TestDecodeTombstone(t *testing.T) {
	ts, err := DecodeTombstone(map[string]any{"id": "x"})
	if err != nil {
		t.Fatalf("DecodeTombstone() error = %v", err)
	}
	if ts.ID != "x" || !ts.Deleted {
		t.Errorf("Tombstone = %+v", ts)
	}

	if _, err := DecodeTombstone(map[string]any{}); err == nil {
		t.Fatal("DecodeTombstone() with missing id should error")
	}
}
