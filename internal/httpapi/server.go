// Package httpapi serves the admin UI and the mutation endpoints backed by
// the space service. Uploads flow through the blob store; capture timestamps
// come from EXIF data with the upload time as fallback. The core never
// defaults timestamps itself.
package httpapi

import (
	_ "embed"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"spacecore/internal/blob"
	"spacecore/internal/core"
)

//go:embed admin.html
var adminPage []byte

// Server holds the handler dependencies.
type Server struct {
	service *core.Service
	blobs   blob.Store
	logger  *zap.Logger
	clock   func() time.Time
}

// NewServer constructs a Server. A nil logger is replaced with a no-op
// logger.
func NewServer(service *core.Service, blobs blob.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		service: service,
		blobs:   blobs,
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Router assembles the chi router with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/api/spaces", s.handleListSpaces)
	r.Post("/create_space", s.handleCreateSpace)
	r.Post("/add_update", s.handleAddUpdate)
	r.Post("/mark_taken", s.handleMarkTaken)
	r.Post("/revert", s.handleRevert)
	r.Get("/img/*", s.handleImage)
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(adminPage)
}
