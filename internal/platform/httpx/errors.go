package httpx

import (
	"errors"
	"net/http"

	"github.com/harbor-fin/harbor/internal/shared"
)

// RespondError maps classified domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	switch shared.ClassOf(err) {
	case shared.ClassValidation:
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case shared.ClassState:
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case shared.ClassGate:
		Problem(w, http.StatusConflict, "Blocked By Gate", err.Error())
	case shared.ClassConflict:
		Problem(w, http.StatusServiceUnavailable, "Concurrent Update", err.Error())
	case shared.ClassIntegrity:
		Problem(w, http.StatusInternalServerError, "Ledger Integrity", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
