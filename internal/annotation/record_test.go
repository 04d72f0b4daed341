package annotation

import "testing"

func TestRecordType(t *testing.T) {
	tests := []struct {
		name string
		r    Record
		want Type
	}{
		{
			name: "reply when references non-empty",
			r:    Record{References: []string{"root-id", "parent-id"}},
			want: TypeReply,
		},
		{
			name: "annotation when target has a selector",
			r: Record{
				Targets: []Target{{Selectors: []Selector{{Kind: SelectorTextQuote, Exact: "hi"}}}},
			},
			want: TypeAnnotation,
		},
		{
			name: "pagenote when target has no selector",
			r:    Record{Targets: []Target{{Source: "https://example.com"}}},
			want: TypePageNote,
		},
		{
			name: "pagenote with no targets at all",
			r:    Record{},
			want: TypePageNote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Type(); got != tt.want {
				t.Errorf("Type() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecordParentID(t *testing.T) {
	r := Record{References: []string{"root", "mid", "direct-parent"}}
	parent, ok := r.ParentID()
	if !ok || parent != "direct-parent" {
		t.Errorf("ParentID() = %q, %v, want %q, true", parent, ok, "direct-parent")
	}

	r2 := Record{}
	if _, ok := r2.ParentID(); ok {
		t.Errorf("ParentID() on record with no references should return false")
	}
}
