package memoizer

import (
	"encoding/json"
	"sort"
)

// mergeRows combines existing with incoming, deduplicating by id. On a
// conflict the incoming row wins, consistent with server `updated`
// monotonicity (last-write-wins). The result is sorted by `updated`
// ascending.
func mergeRows(existing, incoming []Row) []Row {
	byID := make(map[string]Row, len(existing)+len(incoming))
	order := make([]string, 0, len(existing)+len(incoming))

	for _, row := range existing {
		id, _ := row["id"].(string)
		if id == "" {
			continue
		}
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = row
	}
	for _, row := range incoming {
		id, _ := row["id"].(string)
		if id == "" {
			continue
		}
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = row
	}

	merged := make([]Row, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}

	sort.Slice(merged, func(i, j int) bool {
		ui, _ := merged[i]["updated"].(string)
		uj, _ := merged[j]["updated"].(string)
		return ui < uj
	})
	return merged
}

// removeID returns rows with any entry whose id matches removed dropped.
func removeID(rows []Row, id string) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if rid, _ := row["id"].(string); rid == id {
			continue
		}
		out = append(out, row)
	}
	return out
}

func marshalRows(rows []Row) ([]byte, error) {
	return json.Marshal(rows)
}

func unmarshalRows(data []byte) ([]Row, error) {
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
