package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"potchain/core/types"
)

const wsWriteTimeout = 10 * time.Second

// handleEventStream upgrades to a websocket and forwards emitted events as
// JSON text frames. ?type= limits the stream to the comma separated event
// types and ?backlog=1 replays the recent events first.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, badRequest("event stream not configured"))
		return
	}
	filter := parseTypeFilter(r.URL.Query().Get("type"))
	replay := r.URL.Query().Get("backlog") == "1"

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter, replay); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			s.logger.Debug("event stream ended", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, filter map[string]struct{}, replay bool) error {
	updates, cancel := s.events.Subscribe()
	defer cancel()

	// Events emitted between Subscribe and Recent arrive on both paths.
	var replayed uint64
	if replay {
		for _, evt := range s.events.Recent() {
			if evt.Sequence > replayed {
				replayed = evt.Sequence
			}
			if !matches(filter, evt) {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if evt.Sequence <= replayed || !matches(filter, evt) {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func parseTypeFilter(raw string) map[string]struct{} {
	filter := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			filter[part] = struct{}{}
		}
	}
	return filter
}

func matches(filter map[string]struct{}, evt types.Event) bool {
	if len(filter) == 0 {
		return true
	}
	_, ok := filter[evt.Type]
	return ok
}
