package api

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/huddle/internal/api/middleware"
	"github.com/eldtechnologies/huddle/internal/handlers"
	"github.com/eldtechnologies/huddle/internal/store"
)

// Options carries the router's dependencies.
type Options struct {
	Logger             zerolog.Logger
	Handler            *handlers.Handler
	Mirror             *store.HistoryMirror // optional; enables rate limiting
	RateLimitWhitelist []string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(opts.Logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis; without it the HTTP surface runs open
	if opts.Mirror != nil {
		limiter := middleware.NewRateLimiter(opts.Mirror.Client(), opts.Logger, opts.RateLimitWhitelist)
		r.Use(limiter.Middleware)
	}

	// CORS - the client bundle may be served from elsewhere in development
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := opts.Handler

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Client bundle
	r.Get("/", serveLandingPage)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir()))))

	// The event channel
	r.Get("/ws", h.Connect)

	// Room lifecycle API
	r.Post("/api/create-room", h.CreateRoom)
	r.Post("/api/verify-room", h.VerifyRoom)

	// Operational endpoints
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	return r
}

// staticDir returns the path to static files directory.
func staticDir() string {
	// Check if running from app directory (production container)
	if _, err := os.Stat("/app/web/static"); err == nil {
		return "/app/web/static"
	}
	return "web/static"
}

// serveLandingPage serves the main landing page.
func serveLandingPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, staticDir()+"/index.html")
}
