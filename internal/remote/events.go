// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// =============================================================================
// EVENTS
// =============================================================================

// Event types pushed by the backend.
const (
	EventMessages = "messages"
	EventKeywords = "keywords"
	EventImages   = "images"
)

// Event is one decoded server push.
type Event struct {
	Type string
	// Chat is set for messages and keywords events.
	Chat *ChatResponse
	// ReplaceKeywords is set when the event carried a keyword list.
	ReplaceKeywords bool
	// Image is set for images events.
	Image *ImageResult
}

// ParseEvent decodes a pushed frame. Unknown types decode with only Type set.
func ParseEvent(data []byte) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return Event{}, &MalformedResponseError{Op: "event", Reason: "frame is not a JSON object"}
	}
	var ev Event
	if err := json.Unmarshal(fields["type"], &ev.Type); err != nil {
		return Event{}, &MalformedResponseError{Op: "event", Reason: "missing type"}
	}

	_, hasKeywords := fields["keywords"]
	switch ev.Type {
	case EventMessages:
		chat, err := parseChatResponse(fields)
		if err != nil {
			return Event{}, err
		}
		ev.Chat = chat
		ev.ReplaceKeywords = hasKeywords
	case EventKeywords:
		if !hasKeywords {
			return Event{}, &MalformedResponseError{Op: "event", Reason: "missing keywords"}
		}
		fields["messages"] = json.RawMessage("[]")
		chat, err := parseChatResponse(fields)
		if err != nil {
			return Event{}, err
		}
		ev.Chat = chat
		ev.ReplaceKeywords = true
	case EventImages:
		img, err := parseImageResponse(fields)
		if err != nil {
			return Event{}, err
		}
		ev.Image = img
	}
	return ev, nil
}

// =============================================================================
// EVENT STREAM
// =============================================================================

// EventStream keeps a websocket to the backend open, reconnecting after a
// fixed delay whenever it drops.
type EventStream struct {
	url       string
	dialer    *websocket.Dialer
	reconnect time.Duration
	log       *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// DefaultReconnectDelay is the pause before redialing a dropped stream.
const DefaultReconnectDelay = time.Second

// NewEventStream returns a stream for the ws:// or wss:// URL.
func NewEventStream(wsURL string, log *zap.Logger) *EventStream {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventStream{
		url: wsURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		reconnect: DefaultReconnectDelay,
		log:       log,
	}
}

// EventsURL derives the websocket URL from the HTTP base URL.
func EventsURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + PathEvents
	return u.String(), nil
}

// Run connects and delivers events to handle until ctx ends. handle runs on
// the stream goroutine. Run returns ctx.Err().
func (s *EventStream) Run(ctx context.Context, handle func(Event)) error {
	for {
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.log.Debug("event stream dial failed", zap.String("url", s.url), zap.Error(err))
		} else {
			s.log.Info("event stream connected", zap.String("url", s.url))
			s.setConn(conn)
			s.readLoop(ctx, conn, handle)
			s.setConn(nil)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnect):
		}
	}
}

func (s *EventStream) readLoop(ctx context.Context, conn *websocket.Conn, handle func(Event)) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Debug("event stream closed", zap.Error(err))
			}
			return
		}
		ev, err := ParseEvent(data)
		if err != nil {
			s.log.Debug("event dropped", zap.Error(err))
			continue
		}
		handle(ev)
	}
}

func (s *EventStream) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// connected reports whether the stream currently has a socket.
func (s *EventStream) connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// send writes v as a JSON frame. It fails with ErrNotTransmitted while the
// stream is disconnected.
func (s *EventStream) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return &TransportError{Op: "event", NotTransmitted: true, Err: errors.New("event stream not connected")}
	}
	if err := s.conn.WriteJSON(v); err != nil {
		return &TransportError{Op: "event", Err: err}
	}
	return nil
}
