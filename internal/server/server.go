package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/skywatch-labs/skywatch/internal/handler"
	"github.com/skywatch-labs/skywatch/internal/metrics"
	"github.com/skywatch-labs/skywatch/internal/model"
	"github.com/skywatch-labs/skywatch/internal/openapi"
	"github.com/skywatch-labs/skywatch/internal/server/middleware"
	"github.com/skywatch-labs/skywatch/internal/service"
	"github.com/skywatch-labs/skywatch/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	Version         string
	Metrics         bool
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"https://www.test-cors.org"},
		Version:         "dev",
		Metrics:         true,
	}
}

// Server is the top-level HTTP server. It owns the Chi router, the store
// handle and the authentication service.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *store.Store
	authSvc    *service.AuthService
	routes     []route
	metrics    *metrics.Metrics
	httpServer *http.Server
	logger     *slog.Logger
}

// route pairs a documented endpoint with its handler.
type route struct {
	openapi.Route
	handler http.HandlerFunc
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, st *store.Store, authSvc *service.AuthService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		authSvc: authSvc,
		logger:  logger,
	}
	if cfg.Metrics {
		s.metrics = metrics.New(cfg.Version)
		s.metrics.RegisterDBStats(st.Stats)
	}
	s.routes = s.routeTable()
	s.setupRouter()
	return s
}

var (
	teacherOnly      = []model.Role{model.RoleTeacher}
	teacherUser      = []model.Role{model.RoleTeacher, model.RoleUser}
	teacherSensor    = []model.Role{model.RoleTeacher, model.RoleSensor}
	anyAuthenticated = []model.Role{model.RoleTeacher, model.RoleUser, model.RoleSensor}
)

// routeTable lists every API endpoint with its role allow-list. A nil Roles
// field marks a public route.
func (s *Server) routeTable() []route {
	auth := handler.NewAuthHandler(s.authSvc, s.logger)
	wx := handler.NewWeatherHandler(s.store, s.logger)

	return []route{
		{openapi.Route{Method: http.MethodPost, Pattern: "/auth/login", Tag: "auth", Summary: "Exchange credentials for an access token",
			Request: "LoginRequest", Response: "LoginResponse"}, auth.Login},
		{openapi.Route{Method: http.MethodPost, Pattern: "/auth/register", Tag: "auth", Summary: "Provision a new account",
			Roles: teacherOnly, Request: "RegisterRequest", Response: "PublicUser", Status: http.StatusCreated}, auth.Register},
		{openapi.Route{Method: http.MethodGet, Pattern: "/auth/me", Tag: "auth", Summary: "Describe the calling identity",
			Roles: anyAuthenticated, Response: "Identity"}, auth.Me},

		{openapi.Route{Method: http.MethodGet, Pattern: "/weathers", Tag: "weather", Summary: "List recent observations",
			Roles: teacherUser, Response: "[]Weather"}, wx.List},
		{openapi.Route{Method: http.MethodGet, Pattern: "/weathers/{id}", Tag: "weather", Summary: "Get an observation",
			Roles: teacherUser, Response: "Weather"}, wx.Get},
		{openapi.Route{Method: http.MethodGet, Pattern: "/weathersProjection/{id}", Tag: "weather", Summary: "Get precipitation and coordinates of an observation",
			Roles: teacherUser, Response: "WeatherProjection", Envelope: true}, wx.Projection},
		{openapi.Route{Method: http.MethodPost, Pattern: "/createWeathers", Tag: "weather", Summary: "Record an observation",
			Roles: teacherSensor, Request: "WeatherInput", Response: "Weather", Status: http.StatusCreated}, wx.Create},
		{openapi.Route{Method: http.MethodPost, Pattern: "/createMultipleWeathers", Tag: "weather", Summary: "Record a batch of observations",
			Roles: teacherSensor, Request: "[]WeatherInput", Response: "[]Weather", Envelope: true, Status: http.StatusCreated}, wx.CreateMany},
		{openapi.Route{Method: http.MethodPut, Pattern: "/replaceWeathers/{id}", Tag: "weather", Summary: "Replace an observation",
			Roles: teacherOnly, Request: "WeatherInput", Response: "Weather", Envelope: true}, wx.Replace},
		{openapi.Route{Method: http.MethodPatch, Pattern: "/updateWeathers/{id}", Tag: "weather", Summary: "Update fields of an observation",
			Roles: teacherOnly, Request: "WeatherPatch", Response: "Weather", Envelope: true}, wx.Update},
		{openapi.Route{Method: http.MethodPut, Pattern: "/replaceMultipleWeathers", Tag: "weather", Summary: "Replace a batch of observations",
			Roles: teacherOnly, Request: "[]Weather", Response: "[]Weather", Envelope: true}, wx.ReplaceMany},
		{openapi.Route{Method: http.MethodPatch, Pattern: "/updateMultipleWeathers", Tag: "weather", Summary: "Update fields of a batch of observations",
			Roles: teacherOnly, Request: "[]WeatherPatch", Response: "[]Weather", Envelope: true}, wx.UpdateMany},
		{openapi.Route{Method: http.MethodDelete, Pattern: "/deleteWeathers/{id}", Tag: "weather", Summary: "Delete an observation",
			Roles: teacherOnly, Response: "Weather", Envelope: true}, wx.Delete},
		{openapi.Route{Method: http.MethodDelete, Pattern: "/deleteMultipleWeathers", Tag: "weather", Summary: "Delete a batch of observations",
			Roles: teacherOnly, Request: "WeatherIDs", Envelope: true}, wx.DeleteMany},

		{openapi.Route{Method: http.MethodGet, Pattern: "/healthz", Tag: "system", Summary: "Liveness probe",
			Response: "Health"}, s.handleHealthz},
		{openapi.Route{Method: http.MethodGet, Pattern: "/readyz", Tag: "system", Summary: "Readiness probe",
			Response: "Health"}, s.handleReadyz},
	}
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(chimw.Compress(5))

	for _, rt := range s.routes {
		if rt.Roles == nil {
			r.Method(rt.Method, rt.Pattern, rt.handler)
			continue
		}
		r.With(middleware.Protect(s.authSvc, rt.Roles...)).Method(rt.Method, rt.Pattern, rt.handler)
	}

	// --- OpenAPI document (no auth required) ---
	r.Get("/openapi.json", s.handleOpenAPI)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the store answers a
// ping, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, httpStatus := "ok", http.StatusOK
	check := "ok"
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		status, httpStatus = "unavailable", http.StatusServiceUnavailable
		check = "error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": map[string]string{"database": check},
	})
}

// handleOpenAPI serves the document generated from the same route table
// that mounts the handlers.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	routes := make([]openapi.Route, len(s.routes))
	for i, rt := range s.routes {
		routes[i] = rt.Route
	}
	doc, err := openapi.Generate(openapi.Info{Title: "skywatch", Version: s.cfg.Version}, routes)
	if err != nil {
		s.logger.Error("generate openapi document", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to generate API document")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(model.ErrorResponse{Error: model.ErrorDetail{Code: code, Message: message}})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
