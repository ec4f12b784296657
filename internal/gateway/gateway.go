// ABOUTME: Gateway orchestrator that runs the HTTP server and wires handlers to services
// ABOUTME: Manages router setup, CORS, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/riverfrot/chatline/internal/config"
	"github.com/riverfrot/chatline/internal/conversation"
	"github.com/riverfrot/chatline/internal/stream"
	"github.com/riverfrot/chatline/internal/user"
)

// Gateway runs the chatline HTTP server.
type Gateway struct {
	config     *config.Config
	exchange   *conversation.Service
	dispatcher *stream.Dispatcher
	users      *user.Service
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a gateway. Pass nil logger for the default.
func New(cfg *config.Config, exchange *conversation.Service, dispatcher *stream.Dispatcher, users *user.Service, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		config:     cfg,
		exchange:   exchange,
		dispatcher: dispatcher,
		users:      users,
		logger:     logger.With("component", "gateway"),
	}
	g.httpServer = &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: g.Router(),
	}
	return g
}

// Router builds the HTTP route tree. Exposed separately so tests can drive
// it through httptest without binding a port.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(g.config.CORS.AllowedOrigins))

	r.Route("/chatbot", func(cb chi.Router) {
		cb.Post("/chat", g.handleChat)
		cb.Get("/chat/stream", g.handleChatStream)
		cb.Get("/chat/ws", g.handleChatWS)
		cb.Get("/sessions/{sessionID}/messages", g.handleSessionMessages)
		cb.Get("/health", g.handleHealth)
	})

	r.Route("/users", func(u chi.Router) {
		u.Post("/login", g.handleUserLogin)
		u.Get("/{userID}", g.handleGetUser)
	})

	return r
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (g *Gateway) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", g.config.Server.HTTPAddr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		g.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return g.httpServer.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// corsMiddleware applies the configured allowed origins. An empty list
// allows any origin, which suits local development.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (len(allowed) == 0 || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
