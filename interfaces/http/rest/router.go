package rest

import (
	"net/http"

	"particle-universe/application/commands/bus"
	querybus "particle-universe/application/queries/bus"
	"particle-universe/interfaces/http/rest/handlers"
	"particle-universe/interfaces/http/rest/middleware"
	pkgerrors "particle-universe/pkg/errors"
	"particle-universe/pkg/observability"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// OperatorRole may trigger ticks by hand
const OperatorRole = "operator"

// RouterConfig holds the transport switches of the router
type RouterConfig struct {
	EnableCORS     bool
	AllowedOrigins []string
	Debug          bool
}

// Router creates and configures the HTTP router
type Router struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	authn      *middleware.Authenticator
	collector  *observability.Collector
	cfg        RouterConfig
	logger     *zap.Logger
}

// NewRouter creates a new router instance. collector may be nil.
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	authn *middleware.Authenticator,
	collector *observability.Collector,
	cfg RouterConfig,
	logger *zap.Logger,
) *Router {
	return &Router{
		commandBus: commandBus,
		queryBus:   queryBus,
		authn:      authn,
		collector:  collector,
		cfg:        cfg,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() *chi.Mux {
	router := chi.NewRouter()
	errorHandler := pkgerrors.NewErrorHandler(rt.logger, rt.cfg.Debug)

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(errorHandler.Middleware)
	router.Use(middleware.Logger(rt.logger))
	if rt.collector != nil {
		router.Use(middleware.Metrics(rt.collector))
	}

	if rt.cfg.EnableCORS {
		origins := rt.cfg.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:3000"}
		}
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	if rt.collector != nil {
		router.Method(http.MethodGet, "/metrics", rt.collector.Handler())
	}

	particleHandler := handlers.NewParticleHandler(rt.commandBus, rt.queryBus, errorHandler, rt.logger)
	universeHandler := handlers.NewUniverseHandler(rt.commandBus, rt.queryBus, errorHandler, rt.logger)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authn.Middleware)

		r.Route("/particles", func(r chi.Router) {
			r.Post("/", particleHandler.Spawn)
			r.Get("/", particleHandler.List)
			r.Get("/{particleID}", particleHandler.Get)
			r.Patch("/{particleID}/state", particleHandler.UpdateState)
			r.Get("/{particleID}/neighbors", particleHandler.Neighbors)
		})

		r.Get("/users/{userID}/particle", particleHandler.GetByUser)
		r.Get("/me/particle", particleHandler.GetMine)

		r.Route("/universe", func(r chi.Router) {
			r.Get("/", universeHandler.GetState)
			r.With(middleware.RequireRole(OperatorRole)).Post("/ticks", universeHandler.TriggerTick)
		})

		r.Get("/interactions/preview", universeHandler.PreviewInteraction)
		r.Get("/compatibility", universeHandler.Compatibility)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
