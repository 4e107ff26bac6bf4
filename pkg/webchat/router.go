package webchat

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/topicchat/pkg/agents"
	"github.com/go-go-golems/topicchat/pkg/logging"
	"github.com/go-go-golems/topicchat/pkg/persistence/chatstore"
	"github.com/go-go-golems/topicchat/pkg/redisstream"
	"github.com/go-go-golems/topicchat/pkg/responder"
	"github.com/go-go-golems/topicchat/pkg/session"
)

//go:embed static/*
var staticFiles embed.FS

// RouterSettings are bound from flags, env and config file by the serve command.
type RouterSettings struct {
	Addr         string        `mapstructure:"addr"`
	TaskDelay    time.Duration `mapstructure:"task-delay"`
	TaskTimeout  time.Duration `mapstructure:"task-timeout"`
	Pacing       float64       `mapstructure:"pacing"`
	FragmentMode string        `mapstructure:"fragment-mode"`
	SendBuffer   int           `mapstructure:"send-buffer"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
	// TranscriptDB is a sqlite file path; empty keeps transcripts in memory.
	TranscriptDB string `mapstructure:"transcript-db"`

	Redis redisstream.Settings `mapstructure:",squash"`
}

func DefaultRouterSettings() RouterSettings {
	return RouterSettings{
		Addr:         ":8080",
		TaskDelay:    DefaultTaskDelay,
		TaskTimeout:  DefaultTaskTimeout,
		Pacing:       1,
		FragmentMode: responder.FragmentModeChar,
		SendBuffer:   defaultSendBuffer,
		WriteTimeout: defaultWriteTimeout,
		Redis:        redisstream.DefaultSettings(),
	}
}

// Router owns the chat core and the HTTP surface in front of it.
type Router struct {
	settings RouterSettings
	catalog  *agents.Catalog

	sessions    *session.Store
	registry    *ConnectionRegistry
	queues      *TopicQueues
	tasks       *BackgroundTaskRunner
	streamer    *Streamer
	dispatcher  *Dispatcher
	forwarder   *NotificationForwarder
	bus         *redisstream.Bus
	transcripts chatstore.TranscriptStore

	generator responder.Generator
	upgrader  websocket.Upgrader
	mux       chi.Router
}

// RouterOption configures optional dependencies for a Router.
type RouterOption func(*Router) error

// WithGenerator replaces the placeholder response generator.
func WithGenerator(g responder.Generator) RouterOption {
	return func(r *Router) error {
		if g == nil {
			return errors.New("generator is nil")
		}
		r.generator = g
		return nil
	}
}

func WithWebSocketUpgrader(u websocket.Upgrader) RouterOption {
	return func(r *Router) error {
		r.upgrader = u
		return nil
	}
}

// WithTranscriptStore overrides the store selected from settings.
func WithTranscriptStore(s chatstore.TranscriptStore) RouterOption {
	return func(r *Router) error {
		if s == nil {
			return errors.New("transcript store is nil")
		}
		r.transcripts = s
		return nil
	}
}

// WithBus overrides the bus built from the redis settings.
func WithBus(b *redisstream.Bus) RouterOption {
	return func(r *Router) error {
		if b == nil {
			return errors.New("bus is nil")
		}
		r.bus = b
		return nil
	}
}

func NewRouter(ctx context.Context, settings RouterSettings, catalog *agents.Catalog, opts ...RouterOption) (*Router, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	if catalog == nil {
		return nil, errors.New("agent catalog is nil")
	}
	r := &Router{
		settings: settings,
		catalog:  catalog,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	for _, o := range opts {
		if err := o(r); err != nil {
			return nil, err
		}
	}

	if r.generator == nil {
		fragmenter, err := responder.NewFragmenter(settings.FragmentMode)
		if err != nil {
			return nil, err
		}
		r.generator = responder.NewPlaceholder(fragmenter, settings.Pacing)
	}

	if r.transcripts == nil {
		store, err := openTranscriptStore(settings.TranscriptDB)
		if err != nil {
			return nil, err
		}
		r.transcripts = store
	}

	if r.bus == nil {
		if settings.Redis.Enabled {
			groupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := redisstream.EnsureGroupAtTail(groupCtx, settings.Redis.Addr, NotificationsTopic, settings.Redis.Group)
			cancel()
			if err != nil {
				log.Warn().Err(err).Str("component", "webchat").Msg("could not pre-create redis consumer group")
			}
		}
		bus, err := redisstream.BuildBus(settings.Redis, logging.NewWatermill(log.Logger))
		if err != nil {
			_ = r.transcripts.Close()
			return nil, errors.Wrap(err, "build notification bus")
		}
		r.bus = bus
	}

	r.sessions = session.NewStore(catalog)
	r.registry = NewConnectionRegistry(r.sessions,
		WithSendBuffer(settings.SendBuffer),
		WithWriteTimeout(settings.WriteTimeout),
	)
	r.queues = NewTopicQueues()

	tasks, err := NewBackgroundTaskRunner(r.bus.Publisher,
		WithTaskDelay(settings.TaskDelay),
		WithTaskTimeout(settings.TaskTimeout),
	)
	if err != nil {
		return nil, err
	}
	r.tasks = tasks

	r.streamer, err = NewStreamer(StreamerConfig{
		Sessions:    r.sessions,
		Generator:   r.generator,
		Tasks:       r.tasks,
		Transcripts: r.transcripts,
	})
	if err != nil {
		return nil, err
	}
	r.dispatcher, err = NewDispatcher(r.registry, r.streamer, r.queues)
	if err != nil {
		return nil, err
	}
	r.forwarder = NewNotificationForwarder(r.bus.Subscriber, r.registry, NotificationsTopic)

	r.mux = r.buildMux()
	return r, nil
}

func openTranscriptStore(path string) (chatstore.TranscriptStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return chatstore.NewInMemoryTranscriptStore(0), nil
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		_ = os.MkdirAll(dir, 0755)
	}
	dsn, err := chatstore.SQLiteDSNForFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "build transcript DSN")
	}
	store, err := chatstore.NewSQLiteTranscriptStore(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open transcript store")
	}
	log.Info().Str("component", "webchat").Str("path", path).Msg("transcript archive enabled")
	return store, nil
}

func (r *Router) buildMux() chi.Router {
	m := chi.NewRouter()
	m.Use(chimw.RequestID)
	m.Use(chimw.RealIP)
	m.Use(requestLogger(log.With().Str("component", "http").Logger()))
	m.Use(chimw.Recoverer)

	m.Handle("/metrics", promhttp.Handler())
	m.Get("/healthz", NewHealthHandler(r.registry))
	m.Get("/ws", NewWSHandler(r.registry, r.dispatcher, r.upgrader))

	m.Route("/api", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		api.Get("/agents", NewAgentsHandler(r.catalog))
		api.Post("/broadcast", NewBroadcastHandler(r.registry))
		api.Get("/transcripts", NewTranscriptsHandler(r.transcripts))
	})

	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Error().Err(err).Msg("static sub filesystem unavailable")
		return m
	}
	m.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.ServeFileFS(w, req, sub, "index.html")
	})
	return m
}

func (r *Router) Handler() http.Handler { return r.mux }

func (r *Router) Registry() *ConnectionRegistry { return r.registry }

func (r *Router) Sessions() *session.Store { return r.sessions }

func (r *Router) Forwarder() *NotificationForwarder { return r.forwarder }

// BuildHTTPServer constructs an http.Server using the configured address.
func (r *Router) BuildHTTPServer() (*http.Server, error) {
	addr := r.settings.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           r.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// Close drops every connection, then stops background work and closes stores.
func (r *Router) Close() error {
	r.registry.CloseAll()
	r.queues.Close()
	r.tasks.Close()
	var first error
	if err := r.bus.Close(); err != nil {
		first = errors.Wrap(err, "close bus")
	}
	if err := r.transcripts.Close(); err != nil && first == nil {
		first = errors.Wrap(err, "close transcript store")
	}
	return first
}
