package memoizer

import "testing"

func TestMergeRowsDedupAndSort(t *testing.T) {
	existing := []Row{
		{"id": "a", "updated": "2024-01-01T00:00:00Z", "text": "old a"},
		{"id": "b", "updated": "2024-01-03T00:00:00Z"},
	}
	incoming := []Row{
		{"id": "a", "updated": "2024-01-04T00:00:00Z", "text": "new a"},
		{"id": "c", "updated": "2024-01-02T00:00:00Z"},
	}

	merged := mergeRows(existing, incoming)
	if len(merged) != 3 {
		t.Fatalf("len(merged) = %d, want 3", len(merged))
	}

	ids := make(map[string]bool)
	for _, r := range merged {
		if ids[r["id"].(string)] {
			t.Fatalf("duplicate id %v in merged result", r["id"])
		}
		ids[r["id"].(string)] = true
	}

	var prev string
	for _, r := range merged {
		u := r["updated"].(string)
		if prev != "" && u < prev {
			t.Fatalf("merged not sorted by updated ascending: %q before %q", prev, u)
		}
		prev = u
	}

	for _, r := range merged {
		if r["id"] == "a" && r["text"] != "new a" {
			t.Errorf("conflicting id should keep incoming row, got %+v", r)
		}
	}
}

func TestRemoveID(t *testing.T) {
	rows := []Row{
		{"id": "a"},
		{"id": "b"},
		{"id": "c"},
	}
	out := removeID(rows, "b")
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	for _, r := range out {
		if r["id"] == "b" {
			t.Fatal("id b still present after removeID")
		}
	}
}
