package annotation

import (
	"fmt"
	"strings"
)

// getString safely extracts a string value from a decoded JSON map.
func getString(m map[string]any, k string) (string, bool) {
	if v, ok := m[k]; ok {
		if s, ok2 := v.(string); ok2 {
			return s, true
		}
	}
	return "", false
}

// getMap safely extracts a nested object from a decoded JSON map.
func getMap(m map[string]any, k string) (map[string]any, bool) {
	if v, ok := m[k]; ok {
		if mm, ok2 := v.(map[string]any); ok2 {
			return mm, true
		}
	}
	return nil, false
}

// getSlice safely extracts a JSON array from a decoded JSON map.
func getSlice(m map[string]any, k string) ([]any, bool) {
	if v, ok := m[k]; ok {
		if s, ok2 := v.([]any); ok2 {
			return s, true
		}
	}
	return nil, false
}

func getInt(m map[string]any, k string) (int, bool) {
	if v, ok := m[k]; ok {
		if f, ok2 := v.(float64); ok2 {
			return int(f), true
		}
	}
	return 0, false
}

// Decode builds a Record from one server JSON row (already unmarshalled
// into map[string]any, e.g. via json.Decoder with UseNumber disabled).
func Decode(row map[string]any) (*Record, error) {
	id, ok := getString(row, "id")
	if !ok || id == "" {
		return nil, fmt.Errorf("annotation row missing id")
	}

	r := &Record{
		ID:  id,
		Raw: row,
	}

	r.Group, _ = getString(row, "group")
	r.User, _ = getString(row, "user")
	r.Created, _ = getString(row, "created")
	r.Updated, _ = getString(row, "updated")
	r.Text, _ = getString(row, "text")

	if refs, ok := getSlice(row, "references"); ok {
		r.References = make([]string, 0, len(refs))
		for _, v := range refs {
			if s, ok := v.(string); ok {
				r.References = append(r.References, s)
			}
		}
	}

	if tags, ok := getSlice(row, "tags"); ok {
		r.Tags = make([]string, 0, len(tags))
		for _, v := range tags {
			if s, ok := v.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					r.Tags = append(r.Tags, trimmed)
				}
			}
		}
	}

	if doc, ok := getMap(row, "document"); ok {
		r.Document.Title, _ = getString(doc, "title")
		r.Document.Filename, _ = getString(doc, "filename")
		if links, ok := getSlice(doc, "link"); ok {
			for _, v := range links {
				if lm, ok := v.(map[string]any); ok {
					if href, ok := getString(lm, "href"); ok {
						r.Document.Link = append(r.Document.Link, DocumentLink{Href: href})
					}
				}
			}
		}
	}

	rawURI, _ := getString(row, "uri")
	r.URI = NormalizeURI(rawURI, r.Document)

	if targets, ok := getSlice(row, "target"); ok {
		for _, v := range targets {
			tm, ok := v.(map[string]any)
			if !ok {
				continue
			}
			r.Targets = append(r.Targets, decodeTarget(tm))
		}
	}

	return r, nil
}

func decodeTarget(tm map[string]any) Target {
	var t Target

	if scopes, ok := getSlice(tm, "scope"); ok && len(scopes) > 0 {
		if s, ok := scopes[0].(string); ok {
			t.Source = s
		}
	}
	if t.Source == "" {
		t.Source, _ = getString(tm, "source")
	}

	if selectors, ok := getSlice(tm, "selector"); ok {
		for _, sv := range selectors {
			sm, ok := sv.(map[string]any)
			if !ok {
				continue
			}
			t.Selectors = append(t.Selectors, decodeSelector(sm))
		}
	}

	return t
}

func decodeSelector(sm map[string]any) Selector {
	kind, _ := getString(sm, "type")
	sel := Selector{Kind: SelectorKind(kind)}

	switch sel.Kind {
	case SelectorTextQuote:
		sel.Prefix, _ = getString(sm, "prefix")
		sel.Exact, _ = getString(sm, "exact")
		sel.Suffix, _ = getString(sm, "suffix")
	case SelectorTextPosition:
		sel.Start, _ = getInt(sm, "start")
		sel.End, _ = getInt(sm, "end")
	case SelectorFragment:
		sel.Value, _ = getString(sm, "value")
	}

	return sel
}

// DecodeTombstone builds a Tombstone from a delete-event payload row,
// which carries only an id.
func DecodeTombstone(row map[string]any) (*Tombstone, error) {
	id, ok := getString(row, "id")
	if !ok || id == "" {
		return nil, fmt.Errorf("tombstone row missing id")
	}
	return &Tombstone{ID: id, Deleted: true}, nil
}
