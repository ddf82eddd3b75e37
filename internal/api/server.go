// Package api exposes the vehicle directory and the command façade over
// HTTP. Every route is a GET so the commander can be driven with curl or a
// browser.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"frc/internal/command"
	"frc/internal/fleet"
	"frc/internal/log"
)

// Version is reported by /about.
const Version = "0.2.2"

const shutdownGrace = 5 * time.Second

// Config holds configuration for the HTTP server.
type Config struct {
	IP      string
	Port    int
	Verbose bool      // Plain-text banners on the index routes.
	Curl    io.Writer // When set, every request is echoed as a curl line.
}

// Server serves the gateway routes.
type Server struct {
	dir    *fleet.Directory
	cmd    *command.Commander
	cfg    Config
	logger *log.Logger
	views  *views

	curlMu sync.Mutex
}

// NewServer creates a server over dir and cmd.
func NewServer(dir *fleet.Directory, cmd *command.Commander, cfg Config, logger *log.Logger) *Server {
	return &Server{
		dir:    dir,
		cmd:    cmd,
		cfg:    cfg,
		logger: logger.With("component", "api"),
		views:  loadViews(),
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.IP, strconv.Itoa(s.cfg.Port))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Flying Robot Commander listening", "addr", "http://"+srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

// Handler returns the router wrapped in the standard middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for the /show pages served from other origins.
	r.Use(corsMiddleware)

	r.Mount("/", s.Router())
	return r
}

// Router returns the routes without middleware, for embedding and tests.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	if s.cfg.Curl != nil {
		r.Use(s.curlMiddleware)
	}

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/about", s.handleAbout)

	r.Get("/aircraft/", s.handleAircraftAll)
	r.Get("/aircraft/{ac_id}", s.handleAircraft)
	r.Get("/aircraft/client/", s.handleAircraftClients)
	r.Get("/aircraft/client/add/{ac_id}", s.handleAircraftClientAdd)

	r.Get("/flightblock/noop/", s.handleFlightBlockNoop)
	r.Get("/flightblock/client/", s.handleFlightBlockClients)
	r.Get("/flightblock/client/add/{fb_id}", s.handleFlightBlockClientAdd)
	r.Get("/flightblock/{fb_id}", s.handleJumpToBlockAll)
	r.Get("/flightblock/{ac_id}/{fb_id}", s.handleJumpToBlock)

	r.Get("/waypoint/", s.handleWaypointIndex)
	r.Get("/waypoint/client/", s.handleWaypointClients)
	r.Get("/waypoint/client/add/{wp_id}", s.handleWaypointClientAdd)
	r.Get("/waypoint/{wp_id}/{lat}/{lon}/{alt}", s.handleMoveWaypointAll)
	r.Get("/waypoint/{ac_id}/{wp_id}/{lat}/{lon}/{alt}", s.handleMoveWaypoint)

	r.Get("/message/{ac_id}", s.handleMessageNames)
	r.Get("/message/{ac_id}/{name}", s.handleMessage)

	r.Get("/guidance/", s.handleGuidanceIndex)
	r.Get("/guidance/setmode/{value}", s.handleSetModeAll)
	r.Get("/guidance/setmode/{ac_id}/{value}", s.handleSetMode)
	r.Get("/guidance/{flag}/{x}/{y}/{z}/{yaw}", s.handleGuidedAll)
	r.Get("/guidance/{ac_id}/{flag}/{x}/{y}/{z}/{yaw}", s.handleGuided)

	r.Get("/show/flightblock/", s.handleShowFlightBlock)
	r.Get("/show/guided/", s.handleShowGuided)
	r.Get("/show/waypoint/", s.handleShowWaypoint)
	r.Get("/show/waypointhover/", s.handleShowWaypointHover)

	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}

// intParam parses an integer path parameter, writing a 400 on failure.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

// floatParam parses a numeric path parameter, writing a 400 on failure.
func floatParam(w http.ResponseWriter, r *http.Request, name string) (float64, bool) {
	v, err := strconv.ParseFloat(chi.URLParam(r, name), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}
