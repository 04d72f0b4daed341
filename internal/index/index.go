// Package index holds the in-memory Annotation Index: the by-id,
// by-tag, by-uri, and by-parent pools mutated by the handler pipeline as
// events arrive.
package index

import (
	"sync"

	"github.com/hyposync/hyposync/internal/annotation"
)

// Index is the in-memory object model over one synchronization session's
// annotations. It is safe for concurrent use; the Subscriber's single
// event loop and any foreground reader may touch it from different
// goroutines.
type Index struct {
	mu sync.RWMutex

	byID     map[string]*annotation.Record
	byTag    map[string]map[string]struct{} // tag -> set<id>
	byURI    map[string]map[string]struct{} // uri -> set<tag>
	byParent map[string]map[string]struct{} // parent id -> set<child id>
	orphans  map[string]map[string]struct{} // missing parent id -> set<child id>
}

// New constructs an empty Index.
func New() *Index {
	return &Index{
		byID:     make(map[string]*annotation.Record),
		byTag:    make(map[string]map[string]struct{}),
		byURI:    make(map[string]map[string]struct{}),
		byParent: make(map[string]map[string]struct{}),
		orphans:  make(map[string]map[string]struct{}),
	}
}

// Put inserts or replaces a record, rebuilding its tag, uri, and
// thread-edge entries. Replacement is a full overwrite: a record is
// mutated only by being Put again under the same id with a greater
// Updated.
func (idx *Index) Put(rec *annotation.Record) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.byID[rec.ID]; ok {
		idx.removeFromSecondaryLocked(existing)
	}

	idx.byID[rec.ID] = rec
	idx.addToSecondaryLocked(rec)
}

// Get returns the record for id, if present.
func (idx *Index) Get(id string) (*annotation.Record, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rec, ok := idx.byID[id]
	return rec, ok
}

// Delete evicts id from the index, including its secondary entries.
// Children that referenced id as a parent become orphans rather than
// being removed.
func (idx *Index) Delete(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rec, ok := idx.byID[id]
	if !ok {
		return
	}
	idx.removeFromSecondaryLocked(rec)
	delete(idx.byID, id)

	if children, ok := idx.byParent[id]; ok {
		if idx.orphans[id] == nil {
			idx.orphans[id] = make(map[string]struct{})
		}
		for child := range children {
			idx.orphans[id][child] = struct{}{}
		}
		delete(idx.byParent, id)
	}
}

// ByTag returns the ids of every record carrying tag.
func (idx *Index) ByTag(tag string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return setKeys(idx.byTag[tag])
}

// TagsForURI returns the tags observed on any record anchored to uri.
func (idx *Index) TagsForURI(uri string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return setKeys(idx.byURI[uri])
}

// Children returns the ids of records whose references chain ends at
// parentID.
func (idx *Index) Children(parentID string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return setKeys(idx.byParent[parentID])
}

// Orphans returns child ids awaiting a parent id that has not yet (or
// will never) arrive. Dangling references are tracked rather than
// rejected, per the reply-threading design.
func (idx *Index) Orphans(parentID string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return setKeys(idx.orphans[parentID])
}

// Len returns the number of records currently held.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}

// TagCount returns the number of distinct tags observed across every
// held record.
func (idx *Index) TagCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byTag)
}

// OrphanCount returns the number of child records currently waiting on
// a parent id that has not arrived.
func (idx *Index) OrphanCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := 0
	for _, children := range idx.orphans {
		n += len(children)
	}
	return n
}

// All returns a snapshot slice of every record currently held, in no
// particular order.
func (idx *Index) All() []*annotation.Record {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*annotation.Record, 0, len(idx.byID))
	for _, rec := range idx.byID {
		out = append(out, rec)
	}
	return out
}

func (idx *Index) addToSecondaryLocked(rec *annotation.Record) {
	for _, tag := range rec.Tags {
		if idx.byTag[tag] == nil {
			idx.byTag[tag] = make(map[string]struct{})
		}
		idx.byTag[tag][rec.ID] = struct{}{}

		if idx.byURI[rec.URI] == nil {
			idx.byURI[rec.URI] = make(map[string]struct{})
		}
		idx.byURI[rec.URI][tag] = struct{}{}
	}

	if parent, ok := rec.ParentID(); ok {
		if idx.byParent[parent] == nil {
			idx.byParent[parent] = make(map[string]struct{})
		}
		idx.byParent[parent][rec.ID] = struct{}{}
		if _, present := idx.byID[parent]; present {
			delete(idx.orphans[parent], rec.ID)
		} else {
			if idx.orphans[parent] == nil {
				idx.orphans[parent] = make(map[string]struct{})
			}
			idx.orphans[parent][rec.ID] = struct{}{}
		}
	}

	// This record's arrival resolves any children that were waiting on it.
	if waiting, ok := idx.orphans[rec.ID]; ok {
		if idx.byParent[rec.ID] == nil {
			idx.byParent[rec.ID] = make(map[string]struct{})
		}
		for child := range waiting {
			idx.byParent[rec.ID][child] = struct{}{}
		}
		delete(idx.orphans, rec.ID)
	}
}

func (idx *Index) removeFromSecondaryLocked(rec *annotation.Record) {
	for _, tag := range rec.Tags {
		delete(idx.byTag[tag], rec.ID)
		if len(idx.byTag[tag]) == 0 {
			delete(idx.byTag, tag)
		}

		// Drop tag from this uri unless another record on the same uri
		// still carries it.
		stillTagged := false
		for id := range idx.byTag[tag] {
			if other, ok := idx.byID[id]; ok && other.URI == rec.URI {
				stillTagged = true
				break
			}
		}
		if !stillTagged {
			delete(idx.byURI[rec.URI], tag)
			if len(idx.byURI[rec.URI]) == 0 {
				delete(idx.byURI, rec.URI)
			}
		}
	}
	if parent, ok := rec.ParentID(); ok {
		delete(idx.byParent[parent], rec.ID)
		if len(idx.byParent[parent]) == 0 {
			delete(idx.byParent, parent)
		}
		delete(idx.orphans[parent], rec.ID)
		if len(idx.orphans[parent]) == 0 {
			delete(idx.orphans, parent)
		}
	}
}

func setKeys(s map[string]struct{}) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}
