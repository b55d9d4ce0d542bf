package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/coopenergy/platform/internal/errors"
)

type successBody struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
}

type errorBody struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

type errorDetail struct {
	Code    errors.Code            `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return errors.BadRequest("request body is required", err)
		}
		return errors.BadRequest("invalid request body: "+err.Error(), err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successBody{Success: true, Data: data, Message: message})
}

func writeServiceError(w http.ResponseWriter, svcErr *errors.ServiceError, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{
		Code:    svcErr.Code,
		Message: message,
		Details: svcErr.Details,
	}})
}

// writeError classifies err and writes the failure envelope. Internal
// messages are only exposed in debug mode.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := errors.FromError(err)
	message := svcErr.Message
	entry := h.log.WithFields(logrus.Fields{
		"request_id": requestIDFrom(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
		"code":       svcErr.Code,
	})
	if svcErr.Code == errors.CodeInternal {
		entry.WithError(err).Error("request failed")
		if h.debug {
			message = err.Error()
		}
	} else {
		entry.Debug(svcErr.Error())
	}
	if svcErr.Code == errors.CodeLockTimeout {
		w.Header().Set("Retry-After", "1")
	}
	writeServiceError(w, svcErr, message)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
