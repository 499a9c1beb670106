// Package control exposes a running job over HTTP: a JSON status endpoint,
// pause/resume/cancel commands and a websocket stream of hook events.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ytget/yt-audio/internal/model"
)

// Controls is the command surface of a job controller
type Controls interface {
	Pause() bool
	Resume() bool
	Cancel()
	CancelAfterCurrentItem()
	Phase() model.Phase
}

// Snapshotter provides the current job view
type Snapshotter interface {
	Snapshot() model.Snapshot
}

// CommandResult is the response body of the command endpoints
type CommandResult struct {
	Accepted bool        `json:"accepted"`
	Phase    model.Phase `json:"phase"`
}

// Server routes control requests to one job
type Server struct {
	router *chi.Mux
	ctl    Controls
	snap   Snapshotter
	hub    *Hub
	logger *slog.Logger
}

// NewServer wires the routes. hub may be nil to disable /events.
func NewServer(ctl Controls, snap Snapshotter, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router: chi.NewRouter(),
		ctl:    ctl,
		snap:   snap,
		hub:    hub,
		logger: logger,
	}
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.health)
	s.router.Get("/status", s.status)
	s.router.Post("/pause", s.pause)
	s.router.Post("/resume", s.resume)
	s.router.Post("/cancel", s.cancel)
	s.router.Post("/cancel-after-current", s.cancelAfterCurrent)
	if s.hub != nil {
		s.router.Get("/events", s.events)
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("control listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control server started", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if s.hub != nil {
		s.hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("control server shutdown failed", slog.Any("error", err))
		return srv.Close()
	}
	s.logger.Info("control server stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snap.Snapshot())
}

func (s *Server) pause(w http.ResponseWriter, _ *http.Request) {
	s.command(w, "pause", s.ctl.Pause())
}

func (s *Server) resume(w http.ResponseWriter, _ *http.Request) {
	s.command(w, "resume", s.ctl.Resume())
}

func (s *Server) cancel(w http.ResponseWriter, _ *http.Request) {
	s.ctl.Cancel()
	s.command(w, "cancel", true)
}

func (s *Server) cancelAfterCurrent(w http.ResponseWriter, _ *http.Request) {
	s.ctl.CancelAfterCurrentItem()
	s.command(w, "cancel-after-current", true)
}

// command answers 202 for accepted commands and 409 for refused ones
func (s *Server) command(w http.ResponseWriter, name string, accepted bool) {
	phase := s.ctl.Phase()
	s.logger.Info("control command", slog.String("command", name), slog.Bool("accepted", accepted), slog.String("phase", phase.String()))
	code := http.StatusAccepted
	if !accepted {
		code = http.StatusConflict
	}
	writeJSON(w, code, CommandResult{Accepted: accepted, Phase: phase})
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	snap := s.snap.Snapshot()
	s.hub.ServeWS(w, r, Event{Type: EventSnapshot, Snapshot: &snap})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
