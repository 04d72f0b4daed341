// Package memoizer owns the on-disk annotation cache, the lock-folder
// protocol that lets multiple processes refresh it safely, and the merge
// and dedup rules applied on every refresh.
package memoizer

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/desertbit/timer"
	"github.com/rs/zerolog/log"

	"github.com/hyposync/hyposync/internal/paginator"
	"github.com/hyposync/hyposync/internal/syncerr"
)

// followerPollInterval is how often a follower checks whether the lock
// folder belonging to another claimant has disappeared.
const followerPollInterval = time.Second

// batchSize bounds how many rows accumulate in memory before being
// flushed to a batch file inside the lock folder.
const batchSize = 2000

// Search performs one page of the underlying REST search. It is the
// paginator.SearchFunc the Memoizer drives during refresh.
type Search func(ctx context.Context, params paginator.Params) ([]Row, error)

// Memoizer owns one group's cache file.
type Memoizer struct {
	group     string
	user      string // constrains __world__ searches; see spec §4.3
	cachePath string
	search    Search
	lock      *lockFolder

	mu sync.Mutex
}

// New constructs a Memoizer bound to a single group and cache file path.
// user is the authenticated username used to constrain refreshes of the
// __world__ group; it may be empty for any other group.
func New(group, user, cachePath string, search Search) *Memoizer {
	return &Memoizer{
		group:     group,
		user:      user,
		cachePath: cachePath,
		search:    search,
		lock:      newLockFolder(cachePath),
	}
}

// Load reads the cache file and validates that it belongs to this
// Memoizer's group, returning GroupMismatchError otherwise. It does not
// mutate the file.
func (m *Memoizer) Load() (records []Row, lastSyncUpdated string, err error) {
	c, err := readCacheFile(m.cachePath)
	if err != nil {
		return nil, "", err
	}
	if err := m.checkGroup(c.Rows); err != nil {
		return nil, "", err
	}
	return c.Rows, c.LastSyncUpdated, nil
}

func (m *Memoizer) checkGroup(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	group, _ := rows[0]["group"].(string)
	if group != m.group {
		return &syncerr.GroupMismatchError{Expected: m.group, Actual: group}
	}
	return nil
}

// GetAnnos loads the cache file and refreshes it against the live API in
// one step, returning the up-to-date record set.
func (m *Memoizer) GetAnnos(ctx context.Context) ([]Row, error) {
	records, lsu, err := m.Load()
	if err != nil {
		return nil, err
	}
	return m.Refresh(ctx, records, lsu)
}

// Refresh runs the crash-safe, multi-process refresh protocol: claim (or
// follow, or take over) the lock
// folder, drive the Paginator from the resume cursor, flush batch files
// as progress accumulates, then merge and persist.
func (m *Memoizer) Refresh(ctx context.Context, records []Row, since string) ([]Row, error) {
	if err := m.checkGroup(records); err != nil {
		return nil, err
	}

	claimed, err := m.lock.claim()
	if err != nil {
		return nil, err
	}
	if !claimed {
		return m.followAndReload(ctx, since)
	}

	return m.runClaimant(ctx, records, since)
}

// followAndReload is the follower branch: either the other holder is
// live (poll until the folder disappears, then reload), or it is dead
// (take over and become the claimant ourselves).
func (m *Memoizer) followAndReload(ctx context.Context, since string) ([]Row, error) {
	live, err := m.lock.holderIsLive()
	if err != nil {
		return nil, err
	}

	if !live {
		if err := m.lock.takeOver(); err != nil {
			return nil, err
		}
		records, _, err := m.Load()
		if err != nil {
			return nil, err
		}
		return m.runClaimant(ctx, records, since)
	}

	t := timer.NewTimer(followerPollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, &syncerr.Cancelled{}
		case <-t.C:
		}

		if _, err := os.Lstat(m.lock.dir); err != nil {
			// Folder gone: the claimant finished. Reload the cache and
			// return the rows newer than our original snapshot cursor.
			c, err := readCacheFile(m.cachePath)
			if err != nil {
				return nil, err
			}
			if err := m.checkGroup(c.Rows); err != nil {
				return nil, err
			}
			return rowsAfter(c.Rows, since), nil
		}

		t.Reset(followerPollInterval)
	}
}

// runClaimant drives the refresh once the caller holds the lock folder.
// It releases lock-pid on any error (leaving batch files for a
// successor) and fully releases the folder on success.
func (m *Memoizer) runClaimant(ctx context.Context, records []Row, since string) ([]Row, error) {
	resumeFrom, err := m.resumeCursor(since)
	if err != nil {
		m.lock.releaseLockPid()
		return nil, err
	}
	if resumeFrom != since {
		log.Info().Str("group", m.group).Str("resumeFrom", resumeFrom).Msg("resuming refresh from batch files left by a crashed predecessor")
	}

	it := paginator.New(ctx, func(ctx context.Context, p paginator.Params) ([]Row, error) {
		return m.search(ctx, p)
	}, paginator.Params{
		Group:       m.group,
		User:        m.user,
		Sort:        "updated",
		Order:       "asc",
		SearchAfter: resumeFrom,
	}, paginator.Options{})

	var batch []Row
	for it.Next() {
		batch = append(batch, it.Row())
		if len(batch) >= batchSize {
			if err := m.lock.writeBatchFile(batch); err != nil {
				m.lock.releaseLockPid()
				return nil, err
			}
			log.Debug().Str("group", m.group).Int("batched", len(batch)).Msg("flushed refresh batch")
			batch = batch[:0]
		}
	}
	if err := it.Err(); err != nil {
		m.lock.releaseLockPid()
		return nil, err
	}
	if len(batch) > 0 {
		if err := m.lock.writeBatchFile(batch); err != nil {
			m.lock.releaseLockPid()
			return nil, err
		}
	}

	merged, err := m.mergeBatchesInto(records)
	if err != nil {
		m.lock.releaseLockPid()
		return nil, err
	}

	if err := writeCacheFile(m.cachePath, merged); err != nil {
		m.lock.releaseLockPid()
		return nil, err
	}

	if err := m.lock.release(); err != nil {
		return nil, err
	}
	log.Info().Str("group", m.group).Int("records", len(merged)).Msg("refresh complete")
	return merged, nil
}

// resumeCursor resumes from the max of the caller's snapshot cursor and
// the greatest `updated` across any batch files already present in the
// lock folder, so a crashed predecessor's partial work is never
// refetched.
func (m *Memoizer) resumeCursor(since string) (string, error) {
	maxBatch, err := m.lock.maxBatchUpdated()
	if err != nil {
		return "", err
	}
	if maxBatch > since {
		return maxBatch, nil
	}
	return since, nil
}

func (m *Memoizer) mergeBatchesInto(records []Row) ([]Row, error) {
	names, err := m.lock.batchFiles()
	if err != nil {
		return nil, err
	}

	merged := records
	for _, name := range names {
		rows, err := m.lock.readBatchFile(name)
		if err != nil {
			return nil, err
		}
		merged = mergeRows(merged, rows)
	}
	return merged, nil
}

func rowsAfter(rows []Row, since string) []Row {
	var out []Row
	for _, row := range rows {
		if updated, _ := row["updated"].(string); updated > since {
			out = append(out, row)
		}
	}
	return out
}

// Add persists a newly created annotation.
func (m *Memoizer) Add(row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := readCacheFile(m.cachePath)
	if err != nil {
		return err
	}
	merged := mergeRows(c.Rows, []Row{row})
	return writeCacheFile(m.cachePath, merged)
}

// Update replaces the persisted row sharing the incoming row's id.
// Conflict resolution is trivial because server `updated` is monotone:
// the incoming row always wins.
func (m *Memoizer) Update(row Row) error {
	return m.Add(row)
}

// Delete removes a row by id and persists the result.
func (m *Memoizer) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := readCacheFile(m.cachePath)
	if err != nil {
		return err
	}
	remaining := removeID(c.Rows, id)
	return writeCacheFile(m.cachePath, remaining)
}

// RecordCount returns the number of rows currently persisted in the
// cache file, for status reporting. It does not refresh the cache.
func (m *Memoizer) RecordCount() (int, error) {
	c, err := readCacheFile(m.cachePath)
	if err != nil {
		return 0, err
	}
	return len(c.Rows), nil
}

// RefreshInProgress reports whether this group's lock folder is
// currently present, i.e. some process (this one or another) is in the
// middle of a refresh.
func (m *Memoizer) RefreshInProgress() bool {
	_, err := os.Lstat(m.lock.dir)
	return err == nil
}
