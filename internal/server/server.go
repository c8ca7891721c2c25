// Package server is the HTTP surface: a chi router over the connection
// manager, the item repository, the image store and the auth guard.
package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/koustreak/relicmart/internal/auth"
	"github.com/koustreak/relicmart/internal/connmgr"
	"github.com/koustreak/relicmart/internal/database"
	"github.com/koustreak/relicmart/internal/item"
	"github.com/koustreak/relicmart/internal/logger"
	"github.com/koustreak/relicmart/internal/metrics"
	"golang.org/x/time/rate"
)

// Manager is the part of *connmgr.Manager the handlers use.
type Manager interface {
	Active() *connmgr.State
	Reconfigure(ctx context.Context, cfg database.DbConfig) error
	Test(ctx context.Context, cfg database.DbConfig) error
	Status() connmgr.Status
	Inspect(ctx context.Context, missing func([]string) []string) (connmgr.Status, error)
}

// Items is the part of *item.Repository the handlers use.
type Items interface {
	List(ctx context.Context, opts item.ListOptions) ([]item.Item, int, error)
	Get(ctx context.Context, id int64) (item.Item, error)
	Create(ctx context.Context, f item.Fields) (item.Item, error)
	Update(ctx context.Context, id int64, f item.Fields) (item.Item, error)
	Delete(ctx context.Context, id int64) error
}

// Images is the part of *filestore.Images the upload handler uses.
type Images interface {
	Upload(ctx context.Context, itemID int64, r io.Reader, size int64) (string, error)
	Discard(ctx context.Context, link string)
	MaxBytes() int64
	Ping(ctx context.Context) error
}

// Options wires a Server. Images and Metrics may be nil.
type Options struct {
	Manager     Manager
	Items       Items
	Images      Images
	Auth        *auth.Authenticator
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
	CORSOrigins []string
	// DBLimit and DBBurst throttle POST /db/test and POST /db/config.
	DBLimit rate.Limit
	DBBurst int
}

// Server holds the handlers' dependencies.
type Server struct {
	mgr     Manager
	items   Items
	images  Images
	auth    *auth.Authenticator
	metrics *metrics.Metrics
	log     *logger.Logger
	origins []string
	limiter *rate.Limiter
}

// New builds a Server.
func New(opts Options) *Server {
	s := &Server{
		mgr:     opts.Manager,
		items:   opts.Items,
		images:  opts.Images,
		auth:    opts.Auth,
		metrics: opts.Metrics,
		log:     opts.Logger,
		origins: opts.CORSOrigins,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	if opts.DBLimit > 0 {
		burst := opts.DBBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(opts.DBLimit, burst)
	}
	return s
}

// Router returns the complete route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.log.Middleware)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Total-Count", "X-Request-Id"},
		MaxAge:         300,
	}))

	admin := s.auth.Middleware(writeError)

	r.Get("/healthz", s.handleHealth)
	r.Get("/rarities", s.handleRarities)
	r.Post("/auth/login", s.handleLogin)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/db", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Group(func(r chi.Router) {
			r.Use(admin, s.throttle)
			r.Post("/test", s.handleTest)
			r.Post("/config", s.handleConfigure)
		})
	})

	r.Route("/items", func(r chi.Router) {
		r.Use(s.requireActive)
		r.Get("/", s.handleListItems)
		r.Get("/{id}", s.handleGetItem)
		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Post("/", s.handleCreateItem)
			r.Put("/{id}", s.handleUpdateItem)
			r.Delete("/{id}", s.handleDeleteItem)
			r.Post("/{id}/image", s.handleUploadImage)
		})
	})

	return r
}

// HTTPServer wraps Router in an *http.Server listening on addr.
func (s *Server) HTTPServer(addr string, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
