package webchat

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/topicchat/pkg/agents"
)

const shutdownTimeout = 30 * time.Second

// Server drives the notification forwarder and HTTP server lifecycle.
type Server struct {
	router  *Router
	httpSrv *http.Server
}

func NewServer(ctx context.Context, settings RouterSettings, catalog *agents.Catalog, opts ...RouterOption) (*Server, error) {
	r, err := NewRouter(ctx, settings, catalog, opts...)
	if err != nil {
		return nil, err
	}
	httpSrv, err := r.BuildHTTPServer()
	if err != nil {
		_ = r.Close()
		return nil, errors.Wrap(err, "build http server")
	}
	return &Server{router: r, httpSrv: httpSrv}, nil
}

func (s *Server) Router() *Router { return s.router }

func (s *Server) HTTPServer() *http.Server { return s.httpSrv }

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	if s == nil || s.router == nil || s.httpSrv == nil {
		return errors.New("server is not initialized")
	}
	srvCtx, srvCancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer srvCancel()

	forward, err := s.router.Forwarder().Subscribe(srvCtx)
	if err != nil {
		_ = s.router.Close()
		return err
	}

	eg, egCtx := errgroup.WithContext(srvCtx)
	eg.Go(forward)

	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Msg("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		if err := s.router.Close(); err != nil {
			log.Error().Err(err).Msg("router close error")
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting topicchat server")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server listen error")
			srvCancel()
			return err
		}
		return nil
	})

	return eg.Wait()
}
