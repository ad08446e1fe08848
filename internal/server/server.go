package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"reading-leveler/internal/packaging"
	"reading-leveler/internal/pipeline"
	"reading-leveler/internal/workspace"
)

// Server exposes the quota, theme history and generation flow over HTTP.
type Server struct {
	registry *workspace.Registry
	pipeline *pipeline.Pipeline
	packager packaging.Packager
	origins  []string
}

func New(reg *workspace.Registry, p *pipeline.Pipeline, pack packaging.Packager, allowedOrigins []string) *Server {
	return &Server{registry: reg, pipeline: p, packager: pack, origins: allowedOrigins}
}

// Handler returns the full handler chain: CORS, request logging and routes.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(WorkspaceMiddleware(s.registry))

	api.HandleFunc("/usage", s.getUsage).Methods(http.MethodGet)
	api.HandleFunc("/usage/check", s.checkUsage).Methods(http.MethodGet)
	api.HandleFunc("/generate", s.generate).Methods(http.MethodPost)
	api.HandleFunc("/package", s.packageMaterials).Methods(http.MethodPost)
	api.HandleFunc("/themes", s.listThemes).Methods(http.MethodGet)
	api.HandleFunc("/themes", s.saveTheme).Methods(http.MethodPost)
	api.HandleFunc("/themes/{id:[0-9]+}", s.deleteTheme).Methods(http.MethodDelete)
	api.HandleFunc("/themes/{id:[0-9]+}/use", s.useTheme).Methods(http.MethodPost)
	api.HandleFunc("/drafts", s.touchDraft).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			HeaderClientID,
			HeaderRequestID,
		},
		ExposedHeaders: []string{
			"Content-Disposition",
			HeaderRequestID,
			HeaderUsage,
		},
		MaxAge: 300,
	})
	return c.Handler(router)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
