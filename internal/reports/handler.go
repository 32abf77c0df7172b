package reports

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harbor-fin/harbor/internal/platform/httpx"
)

// Handler serves read-only financial statements.
type Handler struct {
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the statement endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/reports/trial-balance", h.TrialBalance)
	r.Get("/reports/balance-sheet", h.BalanceSheet)
	r.Get("/reports/income-statement", h.IncomeStatement)
}

func dateParam(r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// TrialBalance reports per-account debit/credit columns as of a date.
func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, ok := dateParam(r, "as_of")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb.View())
}

// BalanceSheet reports the position statement as of a date.
func (h *Handler) BalanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, ok := dateParam(r, "as_of")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bs.View())
}

// IncomeStatement reports income and expense activity for a date range.
func (h *Handler) IncomeStatement(w http.ResponseWriter, r *http.Request) {
	from, okFrom := dateParam(r, "from")
	to, okTo := dateParam(r, "to")
	if !okFrom || !okTo {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from and to must be YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must not precede from")
		return
	}
	is, err := h.service.IncomeStatement(r.Context(), from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, is.View())
}
