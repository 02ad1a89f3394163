package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/giygas/healthpost-api/interfaces"
	"github.com/giygas/healthpost-api/logging"
	"github.com/giygas/healthpost-api/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// ChangeEvent is one message of the change feed
type ChangeEvent struct {
	Path   string `json:"path"`
	Value  any    `json:"value"`
	Exists bool   `json:"exists"`
}

// Watch upgrades to a websocket and streams the value at ?path= every time
// it changes, starting with the current value. Events a slow client cannot
// take are dropped.
func (h *HTTPHandlerImpl) Watch(w http.ResponseWriter, r *http.Request) {
	path, err := store.CleanPath(r.URL.Query().Get("path"))
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if path == "" {
		h.RespondWithError(w, http.StatusBadRequest, "path is required")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		logging.Warn("Failed to upgrade change feed", "path", path, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	send := make(chan ChangeEvent, sendBuffer)

	push := func(ev ChangeEvent) {
		select {
		case send <- ev:
		default:
			logging.Warn("Change feed buffer full, dropping event", "path", ev.Path)
		}
	}

	// Subscribe before reading so no change is lost in between. Changes
	// wait on primed until the snapshot is queued ahead of them.
	var primed sync.Mutex
	primed.Lock()
	unsubscribe, err := h.store.Subscribe(ctx, path, func(c interfaces.Change) {
		primed.Lock()
		defer primed.Unlock()
		push(ChangeEvent{Path: c.Path, Value: c.Value, Exists: c.Exists})
	})
	if err != nil {
		primed.Unlock()
		logging.Error("Failed to subscribe change feed", "path", path, "error", err)
		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	v, ok, err := h.store.Read(ctx, path)
	if err != nil {
		primed.Unlock()
		unsubscribe()
		logging.Error("Failed to read watched path", "path", path, "error", err)
		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "read failed"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	push(ChangeEvent{Path: path, Value: v, Exists: ok})
	primed.Unlock()

	logging.Info("Change feed opened", "path", path, "remote_addr", r.RemoteAddr)
	go writePump(ctx, conn, send)
	go func() {
		readPump(conn)
		unsubscribe()
		cancel()
		logging.Info("Change feed closed", "path", path)
	}()
}

// checkOrigin accepts requests without an Origin header and origins listed
// in AllowedOrigins; "*" accepts everything.
func (h *HTTPHandlerImpl) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	// Same host is always fine
	return strings.EqualFold(u.Host, r.Host)
}

// readPump discards client messages and returns when the connection closes
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn("Change feed read error", "error", err)
			}
			return
		}
	}
}

// writePump sends events and pings until ctx is done or a write fails
func writePump(ctx context.Context, conn *websocket.Conn, send <-chan ChangeEvent) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case ev := <-send:
			b, err := json.Marshal(ev)
			if err != nil {
				logging.Error("Failed to marshal change event", "path", ev.Path, "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
