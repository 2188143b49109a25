package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/QQ7ita/littlenavmap/internal/auth"
	"github.com/QQ7ita/littlenavmap/internal/db"
	"github.com/QQ7ita/littlenavmap/internal/sim"
	"github.com/QQ7ita/littlenavmap/pkg/config"
	"github.com/QQ7ita/littlenavmap/pkg/geo"
	"github.com/QQ7ita/littlenavmap/pkg/online"
)

// server holds the HTTP server and its dependencies
type server struct {
	router  *chi.Mux
	cfg     *config.Config
	db      *db.DB
	authSvc *auth.Service
	ctl     *online.Controller
	feed    *sim.Feed
}

func newServer(cfg *config.Config, database *db.DB, authSvc *auth.Service, ctl *online.Controller, feed *sim.Feed) *server {
	s := &server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		db:      database,
		authSvc: authSvc,
		ctl:     ctl,
		feed:    feed,
	}
	s.setupRoutes()
	return s
}

func (s *server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/login", s.handleLogin)
		r.Get("/health", s.handleHealth)

		// Protected endpoints
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/status", s.handleStatus)
			r.Get("/aircraft", s.handleAircraft)
			r.Get("/aircraft/{id}", s.handleAircraftByID)
			r.Get("/servers", s.handleServers)
			r.Post("/sim/position", s.handleSimPosition)
			r.Delete("/sim/position", s.handleSimDisconnect)
		})
	})
}

// run serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (s *server) run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Auth middleware
func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing authorization header", http.StatusUnauthorized)
			return
		}

		// Extract token (format: "Bearer <token>")
		var token string
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		} else {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := s.authSvc.ValidateToken(token)
		if err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const usernameKey contextKey = "username"

// handleLogin authenticates a user and issues a token
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := s.authSvc.Authenticate(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"token":   token,
	})
}

// handleHealth is the unauthenticated liveness probe
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

// handleStatus reports the acquisition state and store statistics
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats(r.Context())
	if err != nil {
		log.Printf("Error reading store stats: %v", err)
		http.Error(w, "Failed to read status", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"network": s.ctl.Network(),
		"stage":   s.ctl.Stage().String(),
		"store":   stats,
	}
	if last := s.ctl.LastUpdate(); !last.IsZero() {
		resp["last_update"] = last.UTC().Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleAircraft returns the aircraft inside a bounding box. Query
// parameters north, south, west and east are degrees; min_alt and
// max_alt filter by altitude in feet; lazy=true reuses the cached
// result set without touching the database.
func (s *server) handleAircraft(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rect, err := parseRect(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	layer, err := parseLayer(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lazy := q.Get("lazy") == "true"

	aircraft, err := s.ctl.Aircraft(r.Context(), rect, layer, lazy)
	if err != nil {
		log.Printf("Error querying aircraft: %v", err)
		http.Error(w, "Failed to query aircraft", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(aircraft),
		"aircraft": aircraft,
	})
}

// handleAircraftByID returns one client record
func (s *server) handleAircraftByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid aircraft id", http.StatusBadRequest)
		return
	}

	ac, err := s.ctl.ClientByID(r.Context(), id)
	if err != nil {
		log.Printf("Error querying aircraft %d: %v", id, err)
		http.Error(w, "Failed to query aircraft", http.StatusInternalServerError)
		return
	}
	if ac == nil {
		http.Error(w, "Aircraft not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, ac)
}

// handleServers returns the stored network server list
func (s *server) handleServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.db.Servers(r.Context())
	if err != nil {
		log.Printf("Error querying servers: %v", err)
		http.Error(w, "Failed to query servers", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(servers),
		"servers": servers,
	})
}

// handleSimPosition updates the live simulator feed used for duplicate
// suppression in aircraft queries
func (s *server) handleSimPosition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Registration string               `json:"registration"`
		Lat          float64              `json:"lat"`
		Lon          float64              `json:"lon"`
		AI           []online.SimAircraft `json:"ai,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.feed.SetConnected(true)
	s.feed.SetUserAircraft(online.SimAircraft{
		Registration: req.Registration,
		Pos:          geo.Pos{Lat: req.Lat, Lon: req.Lon},
	})
	if req.AI != nil {
		s.feed.SetAIAircraft(req.AI)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

// handleSimDisconnect clears the simulator feed
func (s *server) handleSimDisconnect(w http.ResponseWriter, r *http.Request) {
	s.feed.SetConnected(false)
	s.feed.ClearUserAircraft()
	s.feed.SetAIAircraft(nil)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

func parseRect(q map[string][]string) (geo.Rect, error) {
	get := func(name string) (float64, error) {
		vs := q[name]
		if len(vs) == 0 || vs[0] == "" {
			return 0, errors.New("missing query parameter " + name)
		}
		return strconv.ParseFloat(vs[0], 64)
	}

	var rect geo.Rect
	var err error
	if rect.North, err = get("north"); err != nil {
		return rect, err
	}
	if rect.South, err = get("south"); err != nil {
		return rect, err
	}
	if rect.West, err = get("west"); err != nil {
		return rect, err
	}
	if rect.East, err = get("east"); err != nil {
		return rect, err
	}
	if rect.North < rect.South {
		return rect, errors.New("north must be greater than or equal to south")
	}
	return rect, nil
}

// parseLayer reads the optional min_alt/max_alt altitude band, in feet.
func parseLayer(q map[string][]string) (online.LayerParams, error) {
	var layer online.LayerParams
	var err error
	if vs := q["min_alt"]; len(vs) > 0 && vs[0] != "" {
		if layer.MinAltitudeFt, err = strconv.Atoi(vs[0]); err != nil {
			return layer, errors.New("invalid min_alt")
		}
	}
	if vs := q["max_alt"]; len(vs) > 0 && vs[0] != "" {
		if layer.MaxAltitudeFt, err = strconv.Atoi(vs[0]); err != nil {
			return layer, errors.New("invalid max_alt")
		}
	}
	return layer, nil
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
