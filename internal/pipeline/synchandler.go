package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/hyposync/hyposync/internal/annotation"
	"github.com/hyposync/hyposync/internal/index"
)

// Persister is the subset of the Memoizer's point operations the sync
// handler needs; defined here so this package does not import memoizer
// directly.
type Persister interface {
	Add(row Row) error
	Update(row Row) error
	Delete(id string) error
}

// SyncHandler keeps the Annotation Index and the on-disk cache
// consistent with every decoded event: create appends and persists,
// update replaces and persists, delete evicts and persists.
type SyncHandler struct {
	idx       *index.Index
	persister Persister
}

// NewSyncHandler constructs the canonical sync handler.
func NewSyncHandler(idx *index.Index, persister Persister) *SyncHandler {
	return &SyncHandler{idx: idx, persister: persister}
}

// Handle implements Handler.
func (s *SyncHandler) Handle(ctx context.Context, ev Event) error {
	switch ev.Options.Action {
	case ActionCreate:
		return s.handleCreate(ev.Payload)
	case ActionUpdate:
		return s.handleUpdate(ev.Payload)
	case ActionDelete:
		return s.handleDelete(ev.Payload)
	default:
		log.Warn().Str("action", string(ev.Options.Action)).Msg("dropping event with unrecognized action")
		return nil
	}
}

func (s *SyncHandler) handleCreate(payload []Row) error {
	for _, row := range payload {
		rec, err := annotation.Decode(row)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed create payload")
			continue
		}
		s.idx.Put(rec)
		if err := s.persister.Add(row); err != nil {
			return &HandlerError{Code: ErrCodePersist, Message: "create " + rec.ID + ": " + err.Error()}
		}
	}
	return nil
}

func (s *SyncHandler) handleUpdate(payload []Row) error {
	for _, row := range payload {
		rec, err := annotation.Decode(row)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed update payload")
			continue
		}
		s.idx.Put(rec)
		if err := s.persister.Update(row); err != nil {
			return &HandlerError{Code: ErrCodePersist, Message: "update " + rec.ID + ": " + err.Error()}
		}
	}
	return nil
}

func (s *SyncHandler) handleDelete(payload []Row) error {
	for _, row := range payload {
		ts, err := annotation.DecodeTombstone(row)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed delete payload")
			continue
		}
		s.idx.Delete(ts.ID)
		if err := s.persister.Delete(ts.ID); err != nil {
			return &HandlerError{Code: ErrCodePersist, Message: "delete " + ts.ID + ": " + err.Error()}
		}
	}
	return nil
}
