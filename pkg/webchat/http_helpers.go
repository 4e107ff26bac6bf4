package webchat

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/topicchat/pkg/agents"
	"github.com/go-go-golems/topicchat/pkg/metrics"
	"github.com/go-go-golems/topicchat/pkg/persistence/chatstore"
	"github.com/go-go-golems/topicchat/pkg/protocol"
)

const (
	maxBroadcastBody   = 8 * 1024
	defaultTranscripts = 50
	maxTranscripts     = 200
)

// requestLogger logs one line per request. The wrapped writer keeps Hijack
// available so websocket upgrades pass through.
func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				path := routePattern(r)
				metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
				metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
				logger.Debug().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Dur("latency", time.Since(start)).
					Str("request_id", chimw.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// routePattern keeps metric label cardinality bounded to the mounted routes.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type agentsResponse struct {
	Agents []agents.Descriptor `json:"agents"`
}

func NewAgentsHandler(catalog *agents.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if catalog == nil {
			http.Error(w, "agent catalog not initialized", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, agentsResponse{Agents: catalog.List()})
	}
}

type broadcastRequest struct {
	Message string `json:"message"`
	Title   string `json:"title,omitempty"`
	Level   string `json:"level,omitempty"`
}

type broadcastResponse struct {
	ID        string `json:"id"`
	Delivered int    `json:"delivered"`
}

// NewBroadcastHandler sends a notification frame to every connected client.
func NewBroadcastHandler(registry *ConnectionRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if registry == nil {
			http.Error(w, "connection registry not initialized", http.StatusServiceUnavailable)
			return
		}
		var body broadcastRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBroadcastBody))
		if err := dec.Decode(&body); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		body.Message = strings.TrimSpace(body.Message)
		if body.Message == "" {
			http.Error(w, "missing message", http.StatusBadRequest)
			return
		}
		n := protocol.NotificationPayload{
			ID:      uuid.NewString(),
			Message: body.Message,
			Title:   body.Title,
			Level:   body.Level,
		}
		delivered := registry.Broadcast(protocol.Notification(n))
		writeJSON(w, http.StatusAccepted, broadcastResponse{ID: n.ID, Delivered: delivered})
	}
}

type transcriptsResponse struct {
	Exchanges []chatstore.Exchange `json:"exchanges"`
}

// NewTranscriptsHandler lists archived exchanges, newest first. It accepts
// client_id, topic_id and limit query parameters.
func NewTranscriptsHandler(store chatstore.TranscriptStore) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if store == nil {
			http.Error(w, "transcript store not initialized", http.StatusServiceUnavailable)
			return
		}
		values := req.URL.Query()
		limit := defaultTranscripts
		if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(n, maxTranscripts)
		}
		exchanges, err := store.List(req.Context(), chatstore.ExchangeQuery{
			ClientID: strings.TrimSpace(values.Get("client_id")),
			TopicID:  strings.TrimSpace(values.Get("topic_id")),
			Limit:    limit,
		})
		if err != nil {
			log.Error().Err(err).Str("component", "webchat").Msg("list transcripts failed")
			http.Error(w, "failed to list transcripts", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, transcriptsResponse{Exchanges: exchanges})
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func NewHealthHandler(registry *ConnectionRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		n := 0
		if registry != nil {
			n = registry.Count()
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Connections: n})
	}
}
