// Package subscriber implements the websocket client that maintains a
// filtered, reconnecting subscription to the Hypothes.is real-time
// stream and dispatches decoded events to a handler pipeline.
package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"

	"github.com/hyposync/hyposync/internal/pipeline"
	"github.com/hyposync/hyposync/internal/syncerr"
)

// State is one phase of the connection state machine: Disconnected →
// Connecting → Handshake → Filtering → Streaming → Disconnected.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateHandshake    State = "handshake"
	StateFiltering    State = "filtering"
	StateStreaming    State = "streaming"
)

const defaultWebsocketPath = "/ws"

// notification is the inbound frame schema for stream events.
type notification struct {
	Type    string          `json:"type"`
	Options struct {
		Action string `json:"action"`
	} `json:"options"`
	Payload []map[string]any `json:"payload"`
}

// clientIDFrame is the outbound handshake frame.
type clientIDFrame struct {
	MessageType string `json:"messageType"`
	Value       string `json:"value"`
}

// Subscriber owns one websocket connection and its reconnect loop.
type Subscriber struct {
	domain   string
	token    string
	pipeline *pipeline.Pipeline
	filter   Filter

	session session
	state   atomic.Value // State

	// endpointOverride lets tests point the Subscriber at a plain ws://
	// httptest.Server instead of deriving wss://{domain}/ws.
	endpointOverride string
}

// State returns the Subscriber's current connection state. Safe to
// call from any goroutine, including a status HTTP handler.
func (s *Subscriber) State() State {
	if v, ok := s.state.Load().(State); ok {
		return v
	}
	return StateDisconnected
}

func (s *Subscriber) setState(st State) {
	s.state.Store(st)
}

// Option configures a Subscriber.
type Option func(*Subscriber)

func WithDomain(domain string) Option {
	return func(s *Subscriber) { s.domain = domain }
}

// New constructs a Subscriber authenticated with token, dispatching
// decoded events through p and installing filter on every (re)connect.
func New(token string, p *pipeline.Pipeline, filter Filter, opts ...Option) *Subscriber {
	s := &Subscriber{
		domain:   "hypothes.is",
		token:    token,
		pipeline: p,
		filter:   filter,
	}
	s.setState(StateDisconnected)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Subscriber) endpoint() string {
	if s.endpointOverride != "" {
		return s.endpointOverride
	}
	return fmt.Sprintf("wss://%s%s", s.domain, defaultWebsocketPath)
}

// Run drives the connect/handshake/filter/stream loop until ctx is
// canceled. On any connection-closed or reset condition it returns to
// Connecting without backoff, preserving the subscription's client id
// across reconnects. It returns nil once ctx is canceled. Every other
// failure, including a failed dial or handshake write, is logged and
// followed by a reconnect; Run does not return an error for it.
func (s *Subscriber) Run(ctx context.Context) error {
	s.session.clientID = uuid.New().String()

	for {
		if ctx.Err() != nil {
			return nil
		}

		epoch := s.session.Next()
		if err := s.runOneConnection(ctx, epoch); err != nil {
			if _, ok := err.(*syncerr.Cancelled); ok {
				return nil
			}
			log.Warn().Err(err).Int64("epoch", epoch).Msg("subscriber connection ended, reconnecting")
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *Subscriber) runOneConnection(ctx context.Context, epoch int64) error {
	s.setState(StateConnecting)
	conn, _, err := websocket.Dial(ctx, s.endpoint(), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + s.token}},
	})
	if err != nil {
		s.setState(StateDisconnected)
		return &syncerr.TransportError{Cause: err}
	}
	defer conn.Close(websocket.StatusNormalClosure, "subscriber shutdown")

	s.setState(StateHandshake)
	if err := s.sendClientID(ctx, conn); err != nil {
		s.setState(StateDisconnected)
		return err
	}

	s.setState(StateFiltering)
	if err := s.sendFilter(ctx, conn); err != nil {
		s.setState(StateDisconnected)
		return err
	}

	s.setState(StateStreaming)
	err = s.stream(ctx, conn, epoch)
	s.setState(StateDisconnected)
	return err
}

func (s *Subscriber) sendClientID(ctx context.Context, conn *websocket.Conn) error {
	frame := clientIDFrame{MessageType: "client_id", Value: s.session.clientID}
	return writeJSON(ctx, conn, frame)
}

func (s *Subscriber) sendFilter(ctx context.Context, conn *websocket.Conn) error {
	return writeJSON(ctx, conn, s.filter)
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// stream reads frames until the connection closes or ctx is canceled.
// Reads happen on a background goroutine so the cancellation channel
// (ctx.Done) can be selected alongside recv without blocking on it
// directly, per the cooperative-cancellation requirement.
func (s *Subscriber) stream(ctx context.Context, conn *websocket.Conn, epoch int64) error {
	type readResult struct {
		data []byte
		err  error
	}
	frames := make(chan readResult)

	go func() {
		for {
			_, data, err := conn.Read(ctx)
			select {
			case frames <- readResult{data, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return &syncerr.Cancelled{}
		case res := <-frames:
			if res.err != nil {
				return &syncerr.TransportError{Cause: res.err}
			}
			if !s.session.IsCurrent(epoch) {
				// A newer connection has already taken over; drop this
				// frame rather than dispatch it out of order.
				continue
			}
			s.handleFrame(ctx, res.data)
		}
	}
}

func (s *Subscriber) handleFrame(ctx context.Context, data []byte) {
	var note notification
	if err := json.Unmarshal(data, &note); err != nil {
		log.Debug().Err(err).Msg("dropping malformed websocket frame")
		return
	}
	if note.Type != "annotation-notification" {
		log.Debug().Str("type", note.Type).Msg("dropping non-matching frame")
		return
	}

	payload := make([]pipeline.Row, 0, len(note.Payload))
	for _, row := range note.Payload {
		payload = append(payload, row)
	}

	ev := pipeline.Event{
		Options: pipeline.Options{Action: pipeline.Action(note.Options.Action)},
		Payload: payload,
	}
	if err := s.pipeline.Dispatch(ctx, ev); err != nil {
		log.Error().Err(err).Str("action", note.Options.Action).Msg("handler pipeline dispatch failed")
	}
}
