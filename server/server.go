// Package server exposes the HTTP surface: the media-stream WebSocket taken
// by the call platform, the incoming-call webhook, call state callbacks, and
// health plus metrics endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/room4-2/callbridge/config"
	"github.com/room4-2/callbridge/logging"
	"github.com/room4-2/callbridge/session"
)

type Server struct {
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	config         *config.Config
	calls          CallController
	log            *logging.Logger
}

// New builds the server. calls may be nil, in which case incoming calls are
// acknowledged but not answered; useful when the platform is configured to
// connect the media stream directly.
func New(cfg *config.Config, sessionManager *session.Manager, calls CallController, log *logging.Logger) *Server {
	s := &Server{
		sessionManager: sessionManager,
		config:         cfg,
		calls:          calls,
		log:            log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024, // 64KB for audio chunks
			WriteBufferSize: 64 * 1024, // 64KB for audio chunks
			// The call platform does not negotiate compression
			EnableCompression: false,
			CheckOrigin: func(r *http.Request) bool {
				// Platform connections carry no browser Origin header
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleMediaStream)
	mux.HandleFunc("/api/incomingCall", s.handleIncomingCall)
	mux.HandleFunc("/api/callbacks/", s.handleCallbacks)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
		// No ReadTimeout/WriteTimeout — these interfere with long-lived WebSocket connections.
		// The WebSocket layer handles its own timeouts via SetWriteDeadline/SetReadDeadline.
	}

	return s
}

// Start begins listening for connections
func (s *Server) Start() error {
	s.log.Info().Int("port", s.config.Port).Msg("server starting")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down server")
	s.sessionManager.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

// handleMediaStream adopts a platform media-stream connection and bridges it
// to a fresh voice-service session.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("media stream upgrade failed")
		return
	}

	// CreateSession owns the socket from here; it closes it on failure.
	callSession, err := s.sessionManager.CreateSession(r.Context(), conn)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create session")
		return
	}

	// Hold the handler open for the life of the call.
	<-callSession.CloseChan
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, s.sessionManager.GetActiveSessionCount())
}
