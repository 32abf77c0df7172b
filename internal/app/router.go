package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/harbor-fin/harbor/internal/coa"
	"github.com/harbor-fin/harbor/internal/journal"
	"github.com/harbor-fin/harbor/internal/observability"
	"github.com/harbor-fin/harbor/internal/periods"
	"github.com/harbor-fin/harbor/internal/recon"
	"github.com/harbor-fin/harbor/internal/reports"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Config *Config
	Logger *slog.Logger

	AccountHandler *coa.Handler
	PeriodHandler  *periods.Handler
	JournalHandler *journal.Handler
	ReportHandler  *reports.Handler
	ReconHandler   *recon.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router for the ledger API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		if params.AccountHandler != nil {
			params.AccountHandler.Routes(r)
		}
		if params.PeriodHandler != nil {
			params.PeriodHandler.Routes(r)
		}
		if params.JournalHandler != nil {
			params.JournalHandler.Routes(r)
		}
		if params.ReportHandler != nil {
			params.ReportHandler.Routes(r)
		}
		if params.ReconHandler != nil {
			params.ReconHandler.Routes(r)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
