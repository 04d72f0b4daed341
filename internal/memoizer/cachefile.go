package memoizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Row is a raw decoded annotation JSON object, as persisted in the cache
// file and batch files.
type Row = map[string]any

// cacheContents is the on-disk shape written for a cache file: a pair
// (records, last_sync_updated). With no rows, lastSyncUpdated is
// written as an empty string.
type cacheContents struct {
	Rows            []Row
	LastSyncUpdated string
}

// readCacheFile loads a cache file, accepting both the current two-element
// form [[row...], "lsu"] and the legacy one-element form [row...] (no
// last_sync_updated). A missing file is not an error: it returns an empty
// cacheContents.
func readCacheFile(path string) (cacheContents, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cacheContents{}, nil
		}
		return cacheContents{}, fmt.Errorf("read cache file: %w", err)
	}
	if len(data) == 0 {
		return cacheContents{}, nil
	}

	// Two-element form: [[rows...], "lsu"]
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err == nil {
		var rows []Row
		if err := json.Unmarshal(pair[0], &rows); err != nil {
			return cacheContents{}, fmt.Errorf("decode cache rows: %w", err)
		}
		var lsu string
		if err := json.Unmarshal(pair[1], &lsu); err != nil {
			return cacheContents{}, fmt.Errorf("decode cache last_sync_updated: %w", err)
		}
		return cacheContents{Rows: rows, LastSyncUpdated: lsu}, nil
	}

	// Legacy one-element form: [row, row, ...]
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return cacheContents{}, fmt.Errorf("decode legacy cache file: %w", err)
	}
	lsu := ""
	if len(rows) > 0 {
		lsu, _ = rows[len(rows)-1]["updated"].(string)
	}
	return cacheContents{Rows: rows, LastSyncUpdated: lsu}, nil
}

// writeCacheFile persists rows in the two-element form only. It writes
// to a temp file in the same directory and renames it over path, so
// the cache file is rewritten atomically and a reader never observes a
// partially written file.
func writeCacheFile(path string, rows []Row) error {
	if rows == nil {
		// json.Marshal(nil []Row) encodes as null, not []; force an
		// empty array so round-tripping through readCacheFile is stable.
		rows = []Row{}
	}
	lsu := ""
	if len(rows) > 0 {
		lsu, _ = rows[len(rows)-1]["updated"].(string)
	}

	data, err := json.Marshal([]any{rows, lsu})
	if err != nil {
		return fmt.Errorf("encode cache file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}
