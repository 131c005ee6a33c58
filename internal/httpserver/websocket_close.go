package httpserver

import (
	"log/slog"

	"nhooyr.io/websocket"
)

// closeWebsocket ends a session with a normal closure. Failures only matter
// for debugging, the peer is usually gone already.
func closeWebsocket(logger *slog.Logger, conn *websocket.Conn) {
	if conn == nil {
		return
	}
	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil && logger != nil {
		logger.Debug("websocket close failed", "err", err)
	}
}
