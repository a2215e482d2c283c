// Package server is the web application: a small HTTP API exposing the
// translation proxies and the WebRTC signaling relay.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/voxlate/voxlate/pkg/relay"
)

// Translator renders text into another language.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Synthesizer converts text to spoken audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Config configures a Server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// Translator backs /api/translate. Required.
	Translator Translator

	// Transcriber backs /api/transcribe. Required.
	Transcriber Transcriber

	// Synthesizer backs /api/speech. Required.
	Synthesizer Synthesizer

	// Relay backs /api/rtc-connect. Required.
	Relay *relay.Handler

	// Logger receives request diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the web application server.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a Server. It does not start listening.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: logger}
	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.Handler(),
		// Generous read timeout: transcription uploads carry audio blobs.
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	return s
}

// Handler returns the routed HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/translate", s.handleTranslate)
	mux.HandleFunc("/api/transcribe", s.handleTranscribe)
	mux.HandleFunc("/api/speech", s.handleSpeech)
	if s.cfg.Relay != nil {
		mux.Handle("/api/rtc-connect", s.cfg.Relay)
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	return s.logRequests(mux)
}

// ListenAndServe runs the server until Shutdown or a listen error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.cfg.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
