// Package channel holds the messaging-platform adapters and the HTTP server
// that exposes their webhooks.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"healthbot/internal/domain"
)

const (
	maxFormSize = 1 << 20 // 1MB
	maxBodySize = 1 << 20
)

var (
	_ domain.ChannelAdapter = (*WhatsApp)(nil)
	_ domain.ChannelAdapter = (*SMS)(nil)
	_ domain.ChannelAdapter = (*Telegram)(nil)
)

// Routes is anything that mounts handlers on the server mux.
type Routes interface {
	Register(mux *http.ServeMux)
}

type ServerConfig struct {
	Host   string
	Port   int
	Logger *slog.Logger
}

// Server is the single public HTTP listener: platform webhooks, the
// continuation callback, audio files and metrics.
type Server struct {
	addr   string
	mux    *http.ServeMux
	logger *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Port == 0 {
		cfg.Port = 5000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		mux:    http.NewServeMux(),
		logger: cfg.Logger,
	}
	s.mux.HandleFunc("GET /{$}", func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(rw, "healthbot is running")
	})
	return s
}

func (s *Server) Mount(routes ...Routes) {
	for _, r := range routes {
		r.Register(s.mux)
	}
}

func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("http server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}
