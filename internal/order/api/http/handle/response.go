package handle

import (
	"encoding/json"
	"errors"
	"net/http"

	"restaurant-system/internal/order/app/core"
	"restaurant-system/internal/xpkg/auth"
	xerrors "restaurant-system/internal/xpkg/errors"
	"restaurant-system/internal/xpkg/logger"

	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

const publishWarning = "saved, but the event could not be published; downstream processing is delayed"

// jsonResponse writes the given data as a JSON-encoded HTTP response with the given status code.
func jsonResponse(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// JSONError writes an error response as JSON with the specified HTTP status code.
func JSONError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
		"code":  code,
	})
}

// statusOf maps the service error taxonomy to HTTP.
func statusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrMaxConcurentExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func serviceError(w http.ResponseWriter, mylog logger.Logger, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		mylog.Error("Request failed", err)
		JSONError(w, code, errors.New("internal error"))
		return
	}
	JSONError(w, code, err)
}

// publishFailed reports whether err only says the committed write could
// not be announced on the bus.
func publishFailed(err error) bool {
	return errors.Is(err, xerrors.ErrPublish)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return core.Validationf("failed to parse JSON: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, core.Validationf("invalid id %q", raw)
	}
	return id, nil
}

func actorOf(r *http.Request) (auth.Actor, error) {
	a, ok := auth.ActorFromContext(r.Context())
	if !ok {
		return auth.Actor{}, core.ErrUnauthenticated
	}
	return a, nil
}
