package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/joeycumines/go-longpoll"

	"github.com/corowire/corort/corolog"
)

// connEvent is one accepted-connection notification, fed to the
// long-poll endpoint's event channel by the echo and HTTP demo
// handlers.
type connEvent struct {
	Service string `json:"service"`
	ConnID  string `json:"conn_id"`
}

// longPollServer exposes recent connEvent values over GET /connections,
// using github.com/joeycumines/go-longpoll's Channel to batch whatever
// arrives within a short window. It is a plain net/http.Server rather
// than a corort httpserver.Server: Channel performs its own blocking
// select internally, and running that inside a coroutine's goroutine
// would block it without going through the scheduler's yield/resume
// handoff, stalling the whole worker (see DESIGN.md). Decoupling this
// endpoint from the coroutine scheduler entirely avoids that hazard.
type longPollServer struct {
	addr   string
	events <-chan connEvent
	logger *corolog.Logger
}

func newLongPollServer(addr string, events <-chan connEvent, logger *corolog.Logger) *longPollServer {
	return &longPollServer{addr: addr, events: events, logger: logger}
}

func (s *longPollServer) start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/connections", s.handleConnections)

	go func() {
		if err := http.ListenAndServe(s.addr, mux); err != nil {
			s.logger.Err("longpoll", err, "op", "listen", "addr", s.addr)
		}
	}()
	s.logger.Debug("corowired", "long-poll endpoint started", "addr", s.addr)
}

func (s *longPollServer) handleConnections(w http.ResponseWriter, r *http.Request) {
	var batch []connEvent

	cfg := &longpoll.ChannelConfig{
		MaxSize:        32,
		MinSize:        -1, // return on the first value (plus any already queued), or with none once PartialTimeout elapses
		PartialTimeout: 2 * time.Second,
	}

	err := longpoll.Channel(r.Context(), cfg, s.events, func(ev connEvent) error {
		batch = append(batch, ev)
		return nil
	})
	if err != nil && r.Context().Err() == nil {
		s.logger.Err("longpoll", err, "op", "channel")
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(batch)
}
