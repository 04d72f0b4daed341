package subscriber

import "sync/atomic"

// session tracks the connection epoch across reconnects: every call to
// Next bumps the epoch, so code holding a stale epoch value (e.g. a
// goroutine reading from a connection that has since been replaced) can
// recognize it no longer owns the active connection.
type session struct {
	epoch    atomic.Int64
	clientID string
}

// Next starts a new connection epoch and returns it.
func (s *session) Next() int64 {
	return s.epoch.Add(1)
}

// Current returns the active epoch without advancing it.
func (s *session) Current() int64 {
	return s.epoch.Load()
}

// IsCurrent reports whether epoch is still the active one.
func (s *session) IsCurrent(epoch int64) bool {
	return s.epoch.Load() == epoch
}
