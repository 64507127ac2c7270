package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"
)

// Server serves the admin API, pprof and optionally Prometheus metrics. When
// admin.secret is set every route requires it.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates an admin server. metricsHandler may be nil.
func NewServer(handlers *AdminHandlers, metricsHandler http.Handler) *Server {
	mux := http.NewServeMux()

	// pprof and metrics sit behind the same PSK as /admin
	mux.Handle("/debug/pprof/", AuthMiddleware(http.HandlerFunc(pprof.Index)))
	mux.Handle("/debug/pprof/cmdline", AuthMiddleware(http.HandlerFunc(pprof.Cmdline)))
	mux.Handle("/debug/pprof/profile", AuthMiddleware(http.HandlerFunc(pprof.Profile)))
	mux.Handle("/debug/pprof/symbol", AuthMiddleware(http.HandlerFunc(pprof.Symbol)))
	mux.Handle("/debug/pprof/trace", AuthMiddleware(http.HandlerFunc(pprof.Trace)))

	if metricsHandler != nil {
		mux.Handle("/metrics", AuthMiddleware(metricsHandler))
		log.Info().Msg("Metrics endpoint enabled at /metrics")
	}

	RegisterRoutes(mux, handlers)

	return &Server{
		httpServer: &http.Server{
			Handler:           gzhttp.GzipHandler(mux),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on addr and serves in the background
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener

	log.Info().Str("address", listener.Addr().String()).Msg("Starting admin HTTP server")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Admin HTTP server failed")
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	log.Info().Msg("Stopping admin HTTP server")
	return s.httpServer.Shutdown(ctx)
}
