package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/nyxsignal/oracle/internal/storage"
	"github.com/nyxsignal/oracle/pkg/utils/config"
	"github.com/nyxsignal/oracle/pkg/utils/logger"
)

// Server gère le serveur HTTP pour l'API (§4.10 API / Observability surface).
type Server struct {
	config     *config.APIConfig
	router     *mux.Router
	httpServer *http.Server
	logger     *logger.Logger
	store      storage.Store
}

// NewServer crée un nouveau serveur API
func NewServer(config *config.APIConfig, store storage.Store, logger *logger.Logger) *Server {
	router := mux.NewRouter()

	server := &Server{
		config: config,
		router: router,
		logger: logger,
		store:  store,
	}

	server.initializeRoutes()

	return server
}

// initializeRoutes configure toutes les routes de l'API
func (s *Server) initializeRoutes() {
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	s.router.HandleFunc("/healthz", s.HealthCheck).Methods("GET")
	s.router.HandleFunc("/signals/recent", s.RecentSignals).Methods("GET")
	s.router.HandleFunc("/regimes/recent", s.RecentRegimes).Methods("GET")

	s.router.Use(corsMiddleware.Handler)
	s.router.Use(s.loggingMiddleware)
}

// HealthCheck est un endpoint pour vérifier l'état du serveur
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// RecentSignals handles GET /signals/recent?minutes=N (§4.10).
func (s *Server) RecentSignals(w http.ResponseWriter, r *http.Request) {
	minutes := 60
	if v := r.URL.Query().Get("minutes"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			minutes = parsed
		}
	}

	signals, err := s.store.RecentSignals(r.Context(), minutes)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, signals)
}

// RecentRegimes handles GET /regimes/recent.
func (s *Server) RecentRegimes(w http.ResponseWriter, r *http.Request) {
	n := 50
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}

	regimes, err := s.store.RecentRegimes(r.Context(), n)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, regimes)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("api: encode response", err, nil)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Error("api: request failed", err, nil)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// loggingMiddleware enregistre les informations sur les requêtes HTTP
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Info("HTTP Request",
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
				"user_agent":  r.UserAgent(),
				"duration_ms": time.Since(start).Milliseconds(),
			},
		)
	})
}

// Start démarre le serveur HTTP
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(s.config.WriteTimeout) * time.Second,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.Info("Démarrage du serveur API", map[string]interface{}{
		"address": addr,
	})

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown arrête proprement le serveur HTTP
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Arrêt du serveur API", nil)

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}
