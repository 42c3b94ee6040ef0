package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-meter/internal/config"
	"github.com/oszuidwest/zwfm-meter/internal/server"
	"github.com/oszuidwest/zwfm-meter/internal/source"
	"github.com/oszuidwest/zwfm-meter/internal/station"
	"github.com/oszuidwest/zwfm-meter/internal/types"
)

var loginTmpl = template.Must(template.New("login").Parse(loginHTML))
var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

type pageData struct {
	Error     bool
	CSRFToken string
	Version   string
	Protocol  string
	Year      int
	Auth      bool
}

// Server is an HTTP server that provides the web interface for the meter.
type Server struct {
	config          *config.Config
	station         *station.Station
	sessions        *server.SessionManager
	commands        *server.CommandHandler
	version         *VersionChecker
	ffmpegAvailable bool
	devices         func() []types.AudioDevice
}

// NewServer returns a new Server for the given config and station.
func NewServer(cfg *config.Config, st *station.Station, ffmpegAvailable bool) *Server {
	version := NewVersionChecker()
	sessions := server.NewSessionManager(func() (string, string) {
		snap := cfg.Snapshot()
		return snap.WebUser, snap.WebPassword
	})

	return &Server{
		config:          cfg,
		station:         st,
		sessions:        sessions,
		commands:        server.NewCommandHandler(cfg, st, version.Info),
		version:         version,
		ffmpegAvailable: ffmpegAvailable,
		devices:         source.Devices,
	}
}

// handleWebSocket serves a client session of frames, status, events and commands.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	server.ServeClient(conn, s.commands, s.station, server.ClientOptions{
		Status: s.buildStatus,
	})
}

// buildStatus completes the station status with host and build information.
func (s *Server) buildStatus() types.WSStatusResponse {
	status := s.station.Status()
	status.FFmpegAvailable = s.ffmpegAvailable
	status.Devices = s.devices()
	status.Version = s.version.Info()
	return status
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	page := s.sessions.Middleware(true)
	api := s.sessions.Middleware(false)

	// Public routes (no auth required)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/style.css", s.handlePublicStatic)
	mux.HandleFunc("/favicon.svg", s.handlePublicStatic)

	// API routes accept a session cookie or basic auth
	mux.HandleFunc("/api/status", api(s.handleAPIStatus))
	mux.HandleFunc("/api/devices", api(s.handleAPIDevices))
	mux.HandleFunc("/api/events", api(s.handleAPIEvents))
	mux.HandleFunc("/api/meter", api(s.handleAPIMeter))
	mux.HandleFunc("/meter.png", api(s.handleMeterPNG))
	mux.HandleFunc("/ws", api(s.handleWebSocket))

	// Protected pages
	mux.HandleFunc("/", page(s.handleStatic))

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// staticFile is an embedded static file with content type and data.
type staticFile struct {
	contentType string
	content     string
	name        string
}

// staticFiles is a map from URL paths to static file definitions.
var staticFiles = map[string]staticFile{
	"/style.css":   {contentType: "text/css", content: styleCSS, name: "style.css"},
	"/app.js":      {contentType: "application/javascript", content: appJS, name: "app.js"},
	"/favicon.svg": {contentType: "image/svg+xml", content: faviconSVG, name: "favicon.svg"},
}

// serveStaticFile serves a static file by path and reports whether it was found.
func serveStaticFile(w http.ResponseWriter, path string) bool {
	file, ok := staticFiles[path]
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", file.contentType)
	if _, err := w.Write([]byte(file.content)); err != nil {
		slog.Error("failed to write static file", "file", file.name, "error", err)
	}
	return true
}

// handlePublicStatic handles requests for static files without authentication.
func (s *Server) handlePublicStatic(w http.ResponseWriter, r *http.Request) {
	if !serveStaticFile(w, r.URL.Path) {
		http.NotFound(w, r)
	}
}

// handleStatic serves the meter page and its script.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" || path == "/index.html" {
		s.renderPage(w, indexTmpl, pageData{})
		return
	}
	if serveStaticFile(w, path) {
		return
	}
	http.NotFound(w, r)
}

func (s *Server) renderPage(w http.ResponseWriter, tmpl *template.Template, data pageData) {
	data.Version = Version
	data.Protocol = server.Protocol
	data.Year = time.Now().Year()
	data.Auth = s.sessions.Enabled()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		slog.Error("failed to render page", "page", tmpl.Name(), "error", err)
	}
}

// handleLogin handles login page display and form submission.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.sessions.Authenticated(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	data := pageData{CSRFToken: s.sessions.CreateCSRFToken()}

	if r.Method == http.MethodPost {
		if !s.sessions.ValidateCSRFToken(r.FormValue("csrf_token")) {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if s.sessions.Login(w, r, r.FormValue("username"), r.FormValue("password")) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		slog.Warn("failed login attempt", "remote", r.RemoteAddr)
		data.Error = true
	}

	s.renderPage(w, loginTmpl, data)
}

// handleLogout handles user logout requests.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w, r)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// Start begins serving HTTP in the background and the version checker
// until ctx is done. The returned server is used for graceful shutdown.
func (s *Server) Start(ctx context.Context) *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.version.Run(ctx)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
