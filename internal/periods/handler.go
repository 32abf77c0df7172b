package periods

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/harbor-fin/harbor/internal/platform/httpx"
)

// Handler exposes fiscal period lifecycle over JSON.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// Routes mounts the period endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/fiscal-years", h.OpenYear)
	r.Get("/fiscal-years/{year}", h.ListYear)
	r.Post("/periods/{id}/close", h.Close)
	r.Post("/periods/{id}/reopen", h.Reopen)
	r.Post("/periods/{id}/clear-halt", h.ClearHalt)
}

type openYearRequest struct {
	Year    int   `json:"year" validate:"required,min=1900,max=9999"`
	ActorID int64 `json:"actor_id" validate:"required"`
}

// OpenYear creates the year's twelve periods.
func (h *Handler) OpenYear(w http.ResponseWriter, r *http.Request) {
	var req openYearRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.OpenYear(r.Context(), req.Year, req.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

// ListYear lists the year's periods in order.
func (h *Handler) ListYear(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid year")
		return
	}
	periods, err := h.service.ListYear(r.Context(), year)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, periods)
}

type actorRequest struct {
	ActorID int64 `json:"actor_id" validate:"required"`
}

func (h *Handler) periodAction(w http.ResponseWriter, r *http.Request,
	run func(id, actor int64) (any, error)) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid period id")
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
	out, err := run(id, req.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

// Close closes a period in date order.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	h.periodAction(w, r, func(id, actor int64) (any, error) {
		return h.service.Close(r.Context(), id, actor)
	})
}

// Reopen is the administrative escape hatch.
func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.periodAction(w, r, func(id, actor int64) (any, error) {
		return h.service.Reopen(r.Context(), id, actor)
	})
}

// ClearHalt releases a period halted by the integrity scan.
func (h *Handler) ClearHalt(w http.ResponseWriter, r *http.Request) {
	h.periodAction(w, r, func(id, actor int64) (any, error) {
		if err := h.service.ClearHalt(r.Context(), id, actor); err != nil {
			return nil, err
		}
		return map[string]any{"period_id": id, "halted": false}, nil
	})
}
