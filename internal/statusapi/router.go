// Package statusapi exposes a small read-only HTTP surface for
// introspecting a running engine: connection state and index
// contents. It is off by default; cmd/hyposync only starts it when a
// status address is configured.
package statusapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/hyposync/hyposync/internal/index"
	"github.com/hyposync/hyposync/internal/subscriber"
)

// StateSource reports the Subscriber's current connection state.
type StateSource interface {
	State() subscriber.State
}

// CacheSource is the subset of the Memoizer's introspection surface the
// status handlers need; defined here so this package does not import
// memoizer directly.
type CacheSource interface {
	RecordCount() (int, error)
	RefreshInProgress() bool
}

// Server holds the dependencies status handlers read from. It never
// mutates any of them.
type Server struct {
	Subscriber StateSource
	Cache      CacheSource
	Index      *index.Index
	StartedAt  time.Time
}

type statusResp struct {
	State             string `json:"state"`
	UptimeSecs        int64  `json:"uptimeSeconds"`
	CacheRecordCount  int    `json:"cacheRecordCount"`
	RefreshInProgress bool   `json:"refreshInProgress"`
}

type indexStatsResp struct {
	RecordCount int `json:"recordCount"`
	TagCount    int `json:"tagCount"`
	OrphanCount int `json:"orphanCount"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode status response")
	}
}

// Status handles GET /status.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	state := subscriber.StateDisconnected
	if s.Subscriber != nil {
		state = s.Subscriber.State()
	}

	var cacheCount int
	var inProgress bool
	if s.Cache != nil {
		if n, err := s.Cache.RecordCount(); err != nil {
			log.Warn().Err(err).Msg("status: failed to read cache record count")
		} else {
			cacheCount = n
		}
		inProgress = s.Cache.RefreshInProgress()
	}

	writeJSON(w, http.StatusOK, statusResp{
		State:             string(state),
		UptimeSecs:        int64(time.Since(s.StartedAt).Seconds()),
		CacheRecordCount:  cacheCount,
		RefreshInProgress: inProgress,
	})
}

// IndexStats handles GET /index/stats.
func (s *Server) IndexStats(w http.ResponseWriter, r *http.Request) {
	var count, tags, orphans int
	if s.Index != nil {
		count = s.Index.Len()
		tags = s.Index.TagCount()
		orphans = s.Index.OrphanCount()
	}
	writeJSON(w, http.StatusOK, indexStatsResp{
		RecordCount: count,
		TagCount:    tags,
		OrphanCount: orphans,
	})
}

// Routes builds the status router. It is unauthenticated by design: it
// is meant to run on a loopback or otherwise private address, never
// the public stream endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet},
	}).Handler)

	r.Get("/status", s.Status)
	r.Get("/index/stats", s.IndexStats)

	return r
}
