package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"vitalis/pkg/requestcontext"
)

type eventStream struct {
	allowedOrigin string
	pingInterval  time.Duration
	pongWait      time.Duration
	writeWait     time.Duration
}

func defaultEventStream() eventStream {
	return eventStream{
		allowedOrigin: "*",
		pingInterval:  30 * time.Second,
		pongWait:      60 * time.Second,
		writeWait:     10 * time.Second,
	}
}

func (e eventStream) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return e.allowedOrigin == "*" || origin == "" || origin == e.allowedOrigin
		},
	}
}

// handleEvents streams change notifications until the client goes away.
// Messages are re-fetch hints; the subscription is released on disconnect.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	upgrader := h.events.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(ctx, "event stream upgrade failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return
	}
	defer conn.Close()

	changes, cancel := h.changes.Subscribe(ctx)
	defer cancel()

	// Reader loop only watches for close frames and pongs.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(h.events.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.events.pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.events.pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.events.writeWait))
			if err := conn.WriteJSON(change); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.events.writeWait)); err != nil {
				return
			}
		}
	}
}
