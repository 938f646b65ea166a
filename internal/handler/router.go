package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	analysisHandler "github.com/mgarridoc/orienta/backend/internal/handler/analysis"
	insightHandler "github.com/mgarridoc/orienta/backend/internal/handler/insight"
	"github.com/mgarridoc/orienta/backend/internal/model/graph"
	analysisService "github.com/mgarridoc/orienta/backend/internal/service/analysis"
	insightService "github.com/mgarridoc/orienta/backend/internal/service/insight"
	"github.com/mgarridoc/orienta/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. orchestrator and insights
// may be nil when model credentials are missing; the affected endpoints
// then answer 503 instead of the whole process refusing to start.
func NewRouter(graphs graph.Store, orchestrator *analysisService.Orchestrator, insights *insightService.Controller) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Route("/api", func(api chi.Router) {
		analysisHandler.New(graphs, orchestrator).RegisterRoutes(api)

		if insights != nil {
			insightHandler.New(insights).RegisterRoutes(api)
		} else {
			api.Get("/completo/{subject}", func(w http.ResponseWriter, r *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "insight streaming unavailable")
			})
		}
	})

	return r
}
