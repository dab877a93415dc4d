/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in the request log
  2. Logger:     Structured request logging (zap, see requestLogger)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard

ROUTES (mounted at the root):
  /repasse/*    Close, list, preview and due report
  /clients/*    Client registry
  /returns/*    Yield records and CSV import
  /scenarios/*  Demo scenarios
  /healthz      Liveness + store ping

SECURITY NOTE:
  No authentication middleware. Put the service behind a gateway that
  authenticates operators.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/repasse-engine/logger"
)

// DefaultCORSOrigins are used when no origins are configured.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// RouterOptions tunes NewRouter.
type RouterOptions struct {
	CORSOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = DefaultCORSOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	// Repasse routes
	r.Route("/repasse", func(r chi.Router) {
		r.Get("/due", h.DueRepasses)
		r.Post("/close/{clientId}", h.CloseRepasse)
		r.Get("/{clientId}", h.ListRepasses)
		r.Get("/{clientId}/next", h.NextRepasse)
	})

	// Client routes
	r.Route("/clients", func(r chi.Router) {
		r.Get("/", h.ListClients)
		r.Post("/", h.CreateClient)
		r.Get("/{clientId}", h.GetClient)
		r.Put("/{clientId}", h.UpdateClient)
		r.Delete("/{clientId}", h.DeleteClient)
	})

	// Return routes
	r.Route("/returns", func(r chi.Router) {
		r.Post("/import/{clientId}", h.ImportReturns)
		r.Get("/{clientId}", h.ListReturns)
		r.Post("/{clientId}", h.CreateReturn)
		r.Put("/{clientId}/{date}", h.UpdateReturn)
		r.Delete("/{clientId}/{date}", h.DeleteReturn)
	})

	// Scenario routes
	r.Route("/scenarios", func(r chi.Router) {
		r.Get("/", h.ListScenarios)
		r.Get("/current", h.GetCurrentScenario)
		r.Post("/load", h.LoadScenario)
	})

	return r
}

// requestLogger logs one line per request through the service logger.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
