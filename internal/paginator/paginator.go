// Package paginator drives cursor-based REST search: bounded pagination
// over search_after, with max_results and stop_at termination.
package paginator

import (
	"context"

	"github.com/hyposync/hyposync/internal/syncerr"
)

// Row is one raw decoded search result row.
type Row = map[string]any

// SearchFunc performs one page fetch. It mirrors restclient.Client.Search
// without importing that package, so the paginator can be driven by any
// compatible client (including a test double).
type SearchFunc func(ctx context.Context, params Params) (rows []Row, err error)

// Params is the paginator's view of one page request.
type Params struct {
	Group       string
	User        string
	Sort        string // default "updated"
	Order       string // "asc" | "desc", default "asc"
	Limit       int
	SearchAfter string
}

// Options bounds a paginator run.
type Options struct {
	MaxResults int // 0 means unbounded
	StopAt     any // string or nil; non-string is a UsageError
}

const pageLimit = 200

// Iterator pulls rows one at a time from a bounded, cursor-driven search,
// in the style of bufio.Scanner: call Next() in a loop, read Row() while
// it returns true, and check Err() once the loop ends.
type Iterator struct {
	ctx     context.Context
	search  SearchFunc
	params  Params
	stopAt  string
	hasStop bool
	remain  int // -1 means unbounded
	asc     bool

	page    []Row
	pageIdx int
	current Row
	err     error
	done    bool
}

// New constructs an Iterator. It validates the __world__ + unconstrained
// search guard and the stop_at type, returning a *syncerr.UsageError
// immediately (via the Err() of the returned iterator) if either check
// fails — the iterator yields zero rows in that case.
func New(ctx context.Context, search SearchFunc, params Params, opts Options) *Iterator {
	it := &Iterator{
		ctx:    ctx,
		search: search,
		params: params,
		remain: -1,
		asc:    params.Order != "desc",
	}

	if params.Group == "__world__" && params.User == "" && opts.MaxResults == 0 {
		it.err = &syncerr.UsageError{Reason: "searches of group __world__ must be constrained by user unless max_results is set"}
		it.done = true
		return it
	}

	if opts.StopAt != nil {
		s, ok := opts.StopAt.(string)
		if !ok {
			it.err = &syncerr.UsageError{Reason: "stop_at must be a string"}
			it.done = true
			return it
		}
		it.stopAt = s
		it.hasStop = true
	}

	if opts.MaxResults > 0 {
		it.remain = opts.MaxResults
		if opts.MaxResults < pageLimit {
			it.params.Limit = opts.MaxResults
		}
	}
	if it.params.Limit == 0 {
		it.params.Limit = pageLimit
	}
	if it.params.Sort == "" {
		it.params.Sort = "updated"
	}

	return it
}

// Next advances the iterator. It returns false when the stream is
// exhausted (bound reached, stop_at crossed, or an empty page observed)
// or an error occurred; check Err() to distinguish the two.
func (it *Iterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	if it.remain == 0 {
		it.done = true
		return false
	}

	for it.pageIdx >= len(it.page) {
		if !it.fetchPage() {
			return false
		}
	}

	row := it.page[it.pageIdx]
	it.pageIdx++

	if it.hasStop {
		// Mirrors the reference client's dont_stop predicate: ascending
		// runs keep yielding while the sort value stays <= stop_at;
		// descending runs keep yielding while it stays >= stop_at. The
		// first row that breaks the predicate ends the stream and is
		// itself not yielded.
		sortVal, _ := row[it.params.Sort].(string)
		crossed := (it.asc && sortVal > it.stopAt) || (!it.asc && sortVal < it.stopAt)
		if crossed {
			it.done = true
			return false
		}
	}

	it.current = row
	if it.remain > 0 {
		it.remain--
	}
	return true
}

func (it *Iterator) fetchPage() bool {
	rows, err := it.search(it.ctx, it.params)
	if err != nil {
		it.err = err
		it.done = true
		return false
	}
	if len(rows) == 0 {
		it.done = true
		return false
	}

	it.page = rows
	it.pageIdx = 0

	last := rows[len(rows)-1]
	if sortVal, ok := last[it.params.Sort].(string); ok {
		it.params.SearchAfter = sortVal
	}

	return true
}

// Row returns the row most recently yielded by Next.
func (it *Iterator) Row() Row {
	return it.current
}

// Err returns the first error encountered, if any (including a
// *syncerr.UsageError raised during construction).
func (it *Iterator) Err() error {
	return it.err
}
