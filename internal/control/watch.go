package control

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/roach88/mallet/internal/store"
	"github.com/roach88/mallet/internal/view"
)

// ChangeMessage is one store change pushed to watchers, with the affected
// rows re-projected.
type ChangeMessage struct {
	Connection string       `json:"connection"`
	Change     store.Change `json:"change"`
	Kind       string       `json:"kind"`
	Rows       []view.Row   `json:"rows"`
}

// Watch upgrades to a WebSocket and streams store changes of a connection.
// A watcher that falls behind misses changes; it can re-read the events.
func (s *Server) Watch(c echo.Context) error {
	conn, err := s.connection(c)
	if err != nil {
		return err
	}

	// subscribe first so nothing between the handshake and the loop is missed
	changes, cancel := conn.Store.Watch(s.WatchBuffer)

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		cancel()
		s.logger.Warn("websocket upgrade failed", "error", err)
		return err
	}

	done := make(chan struct{})

	// reader: detects the client going away
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("watch closed", "connection", conn.ID, "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(s.PingInterval)
	defer func() {
		ticker.Stop()
		cancel()
		ws.Close()
	}()

	for {
		select {
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			msg := ChangeMessage{
				Connection: conn.ID,
				Change:     change,
				Kind:       change.Kind.String(),
			}
			for i := change.First; i <= change.Last; i++ {
				row, err := view.Project(conn.Store, i)
				if err != nil {
					break
				}
				msg.Rows = append(msg.Rows, row)
			}
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			ws.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return nil
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}

		case <-done:
			return nil
		}
	}
}
