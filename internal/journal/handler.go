package journal

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/harbor-fin/harbor/internal/coa"
	"github.com/harbor-fin/harbor/internal/platform/httpx"
)

// Handler exposes entry lifecycle operations over JSON.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// Routes mounts the journal endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/entries", h.List)
	r.Post("/entries", h.CreateDraft)
	r.Get("/entries/{id}", h.Get)
	r.Post("/entries/{id}/submit", h.Submit)
	r.Post("/entries/{id}/approve", h.Approve)
	r.Post("/entries/{id}/reject", h.Reject)
	r.Post("/entries/{id}/post", h.Post)
	r.Post("/entries/{id}/reverse", h.Reverse)
	r.Post("/entries/{id}/clone", h.Clone)
}

type lineRequest struct {
	AccountID int64  `json:"account_id" validate:"required"`
	Side      string `json:"side" validate:"required,oneof=DEBIT CREDIT"`
	Amount    string `json:"amount" validate:"required"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

type createDraftRequest struct {
	EntryDate   string        `json:"entry_date" validate:"required"`
	Description string        `json:"description"`
	Currency    string        `json:"currency" validate:"required,len=3"`
	ActorID     int64         `json:"actor_id" validate:"required"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

// CreateDraft accepts a draft entry.
func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entryDate, err := time.Parse("2006-01-02", req.EntryDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entry_date must be YYYY-MM-DD")
		return
	}
	in := CreateDraftInput{
		EntryDate:   entryDate,
		Description: req.Description,
		Currency:    req.Currency,
		ActorID:     req.ActorID,
	}
	for _, line := range req.Lines {
		amount, err := decimal.NewFromString(line.Amount)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line amount must be decimal")
			return
		}
		in.Lines = append(in.Lines, LineInput{
			AccountID: line.AccountID,
			Side:      coa.Side(line.Side),
			Amount:    amount,
			Currency:  line.Currency,
			Reference: line.Reference,
		})
	}
	entry, err := h.service.CreateDraft(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type transitionRequest struct {
	ActorID int64  `json:"actor_id" validate:"required"`
	Reason  string `json:"reason"`
}

func (h *Handler) entryID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request,
	run func(id, actor int64, reason string) (Entry, error)) {
	id, ok := h.entryID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := run(id, req.ActorID, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

// Submit moves a draft into review.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, func(id, actor int64, _ string) (Entry, error) {
		return h.service.Submit(r.Context(), id, actor)
	})
}

// Approve clears an entry for posting.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, func(id, actor int64, _ string) (Entry, error) {
		return h.service.Approve(r.Context(), id, actor)
	})
}

// Reject terminates an entry under review.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, func(id, actor int64, reason string) (Entry, error) {
		return h.service.Reject(r.Context(), id, actor, reason)
	})
}

// Post commits an approved entry to the ledger.
func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, func(id, actor int64, _ string) (Entry, error) {
		return h.service.Post(r.Context(), id, actor)
	})
}

// Reverse drafts the negation of a posted entry.
func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, func(id, actor int64, _ string) (Entry, error) {
		return h.service.Reverse(r.Context(), id, actor)
	})
}

// Clone copies a rejected entry into a fresh draft.
func (h *Handler) Clone(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, func(id, actor int64, _ string) (Entry, error) {
		return h.service.CloneRejected(r.Context(), id, actor)
	})
}

// Get loads one entry with lines.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entryID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

// List returns entries newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}
