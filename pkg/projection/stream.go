package projection

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const streamWriteTimeout = 5 * time.Second

// StreamHandler serves the projection over a websocket. Every update is sent
// as one JSON text message holding the full state; the first message is the
// state at connect time.
func StreamHandler(store *Store, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		updates, cancel := store.Subscribe(4)
		defer cancel()

		// The reader only exists to notice the peer going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				return
			case <-r.Context().Done():
				return
			case st, ok := <-updates:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				if err := conn.WriteJSON(st); err != nil {
					logger.Debug("projection stream closed", "error", err)
					return
				}
			}
		}
	})
}
