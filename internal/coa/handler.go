package coa

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/harbor-fin/harbor/internal/platform/httpx"
)

// Handler exposes the registry over JSON. Auth and tenancy sit in front of
// it, outside the engine.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// Routes mounts the registry endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/accounts", h.List)
	r.Post("/accounts", h.Create)
	r.Get("/accounts/{code}", h.Get)
	r.Post("/accounts/{code}/deactivate", h.Deactivate)
	r.Post("/accounts/{code}/reactivate", h.Reactivate)
}

type createAccountRequest struct {
	Code           string `json:"code" validate:"required"`
	Name           string `json:"name" validate:"required"`
	Classification string `json:"classification" validate:"required,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE"`
	ParentCode     string `json:"parent_code"`
	Currency       string `json:"currency" validate:"required,len=3"`
	ActorID        int64  `json:"actor_id" validate:"required"`
}

// Create registers a new account.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CreateAccountInput{
		Code:           req.Code,
		Name:           req.Name,
		Classification: Classification(req.Classification),
		ParentCode:     req.ParentCode,
		Currency:       req.Currency,
		ActorID:        req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

// Get resolves one account by code.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Resolve(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

// List returns the full chart.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

type actorRequest struct {
	ActorID int64 `json:"actor_id" validate:"required"`
}

// Deactivate retires an account from posting.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// Reactivate returns an account to service.
func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	code := chi.URLParam(r, "code")
	var (
		account Account
		err     error
	)
	if active {
		account, err = h.service.Reactivate(r.Context(), code, req.ActorID)
	} else {
		account, err = h.service.Deactivate(r.Context(), code, req.ActorID)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}
