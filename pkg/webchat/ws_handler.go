package webchat

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/topicchat/pkg/protocol"
)

const (
	maxFrameBytes     = 1 << 20
	closeFlushTimeout = 2 * time.Second
)

// NewWSHandler upgrades the request, registers the connection and runs its read
// loop until the peer goes away.
func NewWSHandler(registry *ConnectionRegistry, dispatcher *Dispatcher, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if registry == nil || dispatcher == nil {
			http.Error(w, "chat service not initialized", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error
			log.Debug().Err(err).Str("component", "webchat").Msg("ws upgrade failed")
			return
		}
		conn.SetReadLimit(maxFrameBytes)

		clientID, ctx := registry.Register(conn)
		defer registry.Unregister(clientID)
		wsLog := log.With().
			Str("component", "webchat").
			Str("remote", conn.RemoteAddr().String()).
			Str("client_id", clientID).
			Logger()

		registry.SendTo(clientID, protocol.Connected(clientID))

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				wsLog.Debug().Err(err).Msg("ws read loop end")
				return
			}
			if msgType != websocket.TextMessage {
				registry.SendTo(clientID, protocol.Error(protocol.CodeMalformedRequest, "only text frames are accepted", ""))
				continue
			}
			if err := dispatcher.Dispatch(ctx, clientID, data); err != nil {
				wsLog.Warn().Err(err).Msg("closing connection after dispatch failure")
				registry.WaitWriterDone(clientID, closeFlushTimeout)
				return
			}
		}
	}
}
