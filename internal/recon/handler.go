package recon

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harbor-fin/harbor/internal/platform/httpx"
)

// Handler exposes bank reconciliation over JSON.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// Routes mounts the reconciliation endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/reconciliations", h.Start)
	r.Get("/reconciliations/{id}", h.Get)
	r.Post("/reconciliations/{id}/lines", h.ImportLines)
	r.Post("/reconciliations/{id}/match", h.Match)
	r.Post("/reconciliations/{id}/finalize", h.Finalize)
	r.Post("/reconciliations/{id}/abandon", h.Abandon)
}

type startRequest struct {
	BankAccountID    int64  `json:"bank_account_id" validate:"required"`
	Currency         string `json:"currency" validate:"required,len=3"`
	StatementStart   string `json:"statement_start" validate:"required,datetime=2006-01-02"`
	StatementEnd     string `json:"statement_end" validate:"required,datetime=2006-01-02"`
	StatementOpening string `json:"statement_opening" validate:"required"`
	StatementClosing string `json:"statement_closing" validate:"required"`
	ActorID          int64  `json:"actor_id" validate:"required"`
}

// Start opens a reconciliation run for a bank account.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	opening, err := decimal.NewFromString(req.StatementOpening)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid statement_opening")
		return
	}
	closing, err := decimal.NewFromString(req.StatementClosing)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid statement_closing")
		return
	}
	start, _ := time.Parse("2006-01-02", req.StatementStart)
	end, _ := time.Parse("2006-01-02", req.StatementEnd)
	rec, err := h.service.Start(r.Context(), StartInput{
		BankAccountID:    req.BankAccountID,
		Currency:         req.Currency,
		StatementStart:   start.UTC(),
		StatementEnd:     end.UTC(),
		StatementOpening: opening,
		StatementClosing: closing,
		ActorID:          req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

type importLineRequest struct {
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description"`
	ExternalRef string `json:"external_ref"`
}

type importLinesRequest struct {
	Lines []importLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// ImportLines attaches parsed statement lines to a run.
func (h *Handler) ImportLines(w http.ResponseWriter, r *http.Request) {
	id, ok := reconID(w, r)
	if !ok {
		return
	}
	var req importLinesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		amount, err := decimal.NewFromString(l.Amount)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid line amount")
			return
		}
		date, _ := time.Parse("2006-01-02", l.Date)
		lines = append(lines, LineInput{
			Date:        date.UTC(),
			Amount:      amount,
			Description: l.Description,
			ExternalRef: l.ExternalRef,
		})
	}
	rec, err := h.service.ImportLines(r.Context(), id, lines)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

// Match runs the automatic matcher over unmatched lines.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	id, ok := reconID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Match(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

type actorRequest struct {
	ActorID int64 `json:"actor_id" validate:"required"`
}

// Finalize computes the variance and settles the run outcome.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	h.outcome(w, r, h.service.Finalize)
}

// Abandon terminalizes a run without balancing it.
func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	h.outcome(w, r, h.service.Abandon)
}

func (h *Handler) outcome(w http.ResponseWriter, r *http.Request,
	run func(ctx context.Context, id uuid.UUID, actorID int64) (Reconciliation, error)) {
	id, ok := reconID(w, r)
	if !ok {
		return
	}
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rec, err := run(r.Context(), id, req.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

// Get loads a reconciliation with its lines.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := reconID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func reconID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reconciliation id")
		return uuid.Nil, false
	}
	return id, true
}
