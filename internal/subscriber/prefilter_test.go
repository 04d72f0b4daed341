package subscriber

import "testing"

func TestPrefilterBuilderNonEmptyClausesOnly(t *testing.T) {
	f := NewPrefilterBuilder(MatchIncludeAny).
		WithActions(true, true, false).
		WithGroups("group-x").
		Build()

	if f.MatchPolicy != MatchIncludeAny {
		t.Errorf("MatchPolicy = %v", f.MatchPolicy)
	}
	if !f.Actions.Create || !f.Actions.Update || f.Actions.Delete {
		t.Errorf("Actions = %+v", f.Actions)
	}
	if len(f.Clauses) != 1 {
		t.Fatalf("Clauses = %+v, want exactly the groups clause", f.Clauses)
	}
	c := f.Clauses[0]
	if c.Field != FieldGroup || c.Operator != "one_of" || !c.CaseSensitive {
		t.Errorf("clause = %+v", c)
	}
	if len(c.Value) != 1 || c.Value[0] != "group-x" {
		t.Errorf("clause.Value = %v", c.Value)
	}
}

func TestPrefilterBuilderMultipleClauseOrder(t *testing.T) {
	f := NewPrefilterBuilder(MatchIncludeAll).
		WithTags("bio").
		WithGroups("group-x").
		WithURIs("https://example.com").
		Build()

	if len(f.Clauses) != 3 {
		t.Fatalf("Clauses = %+v, want 3", f.Clauses)
	}
	// Clauses are emitted in groups/users/uris/tags order regardless of
	// the order they were added to the builder.
	wantOrder := []ClauseField{FieldGroup, FieldURI, FieldTags}
	for i, field := range wantOrder {
		if f.Clauses[i].Field != field {
			t.Errorf("Clauses[%d].Field = %v, want %v", i, f.Clauses[i].Field, field)
		}
	}
}
