package paginator

import (
	"context"
	"testing"

	"github.com/hyposync/hyposync/internal/syncerr"
)

// fakeSearch serves rows from an in-memory table, paging by search_after
// on the "updated" field, mimicking the real REST search endpoint.
func fakeSearch(all []Row) SearchFunc {
	return func(_ context.Context, params Params) ([]Row, error) {
		limit := params.Limit
		if limit == 0 {
			limit = pageLimit
		}

		var page []Row
		for _, row := range all {
			updated := row["updated"].(string)
			if params.SearchAfter != "" {
				if params.Order == "desc" {
					if updated >= params.SearchAfter {
						continue
					}
				} else if updated <= params.SearchAfter {
					continue
				}
			}
			page = append(page, row)
			if len(page) >= limit {
				break
			}
		}
		return page, nil
	}
}

func makeRows(n int) []Row {
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		// zero-padded so lexicographic string compare matches numeric order
		rows[i] = Row{"id": i, "updated": padTimestamp(i)}
	}
	return rows
}

func padTimestamp(i int) string {
	digits := "0123456789"
	s := ""
	n := i
	for k := 0; k < 6; k++ {
		s = string(digits[n%10]) + s
		n /= 10
	}
	return "2024-01-01T00:00:" + s[:2] + "." + s[2:] + "Z"
}

func collect(it *Iterator) ([]Row, error) {
	var rows []Row
	for it.Next() {
		rows = append(rows, it.Row())
	}
	return rows, it.Err()
}

func TestIteratorAscendingStrictlyIncreasing(t *testing.T) {
	rows := makeRows(450)
	it := New(context.Background(), fakeSearch(rows), Params{Sort: "updated", Order: "asc"}, Options{})

	got, err := collect(it)
	if err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(got) != 450 {
		t.Fatalf("len(got) = %d, want 450", len(got))
	}
	var prev string
	for _, r := range got {
		u := r["updated"].(string)
		if prev != "" && u <= prev {
			t.Fatalf("updated not strictly increasing: %q then %q", prev, u)
		}
		prev = u
	}
}

func TestIteratorMaxResults(t *testing.T) {
	rows := makeRows(450)
	it := New(context.Background(), fakeSearch(rows), Params{Sort: "updated", Order: "asc"}, Options{MaxResults: 400})

	got, err := collect(it)
	if err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(got) != 400 {
		t.Fatalf("len(got) = %d, want 400", len(got))
	}
}

func TestIteratorStopAtExact(t *testing.T) {
	rows := makeRows(400)
	stopAt := rows[236]["updated"].(string)

	it := New(context.Background(), fakeSearch(rows), Params{Sort: "updated", Order: "asc"}, Options{StopAt: stopAt})

	got, err := collect(it)
	if err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(got) != 237 {
		t.Fatalf("len(got) = %d, want 237", len(got))
	}
	for _, r := range got {
		if r["updated"].(string) > stopAt {
			t.Fatalf("row with updated %q should have been stopped at", r["updated"])
		}
	}
}

func TestIteratorSearchAfterPlusStopAt(t *testing.T) {
	rows := makeRows(400)
	searchAfter := rows[99]["updated"].(string)
	stopAt := rows[100]["updated"].(string)

	it := New(context.Background(), fakeSearch(rows), Params{Sort: "updated", Order: "asc", SearchAfter: searchAfter}, Options{StopAt: stopAt})

	got, err := collect(it)
	if err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0]["id"] != rows[100]["id"] {
		t.Fatalf("got row %+v, want %+v", got[0], rows[100])
	}
}

func TestIteratorDescendingStopAt(t *testing.T) {
	rows := makeRows(10)
	// reverse for descending source order
	reversed := make([]Row, len(rows))
	for i, r := range rows {
		reversed[len(rows)-1-i] = r
	}
	stopAt := rows[3]["updated"].(string)

	it := New(context.Background(), fakeSearch(reversed), Params{Sort: "updated", Order: "desc"}, Options{StopAt: stopAt})

	got, err := collect(it)
	if err != nil {
		t.Fatalf("Err() = %v", err)
	}
	for _, r := range got {
		if r["updated"].(string) < stopAt {
			t.Fatalf("row with updated %q should have been stopped at (desc)", r["updated"])
		}
	}
	if len(got) != 7 {
		t.Fatalf("len(got) = %d, want 7", len(got))
	}
}

func TestIteratorWorldGroupRequiresUserOrMaxResults(t *testing.T) {
	it := New(context.Background(), fakeSearch(nil), Params{Group: "__world__"}, Options{})
	if it.Next() {
		t.Fatal("expected no rows")
	}
	if _, ok := it.Err().(*syncerr.UsageError); !ok {
		t.Fatalf("expected *syncerr.UsageError, got %T", it.Err())
	}
}

func TestIteratorWorldGroupAllowedWithUser(t *testing.T) {
	rows := makeRows(5)
	it := New(context.Background(), fakeSearch(rows), Params{Group: "__world__", User: "acct:jane@hypothes.is"}, Options{})
	got, err := collect(it)
	if err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len(got) = %d, want 5", len(got))
	}
}

func TestIteratorNonStringStopAtIsUsageError(t *testing.T) {
	it := New(context.Background(), fakeSearch(nil), Params{}, Options{StopAt: 42})
	if it.Next() {
		t.Fatal("expected no rows")
	}
	if _, ok := it.Err().(*syncerr.UsageError); !ok {
		t.Fatalf("expected *syncerr.UsageError, got %T: %v", it.Err(), it.Err())
	}
}

func TestIteratorEmptyPageTerminates(t *testing.T) {
	it := New(context.Background(), fakeSearch(nil), Params{}, Options{})
	if it.Next() {
		t.Fatal("expected no rows from empty source")
	}
	if it.Err() != nil {
		t.Fatalf("Err() = %v, want nil", it.Err())
	}
}
