// Package httputil holds the shared HTTP plumbing: response envelopes,
// error mapping, and the middleware chain pieces.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/clinica-online/accounts/internal/pkg/ctxlog"
	"github.com/go-playground/validator/v10"
)

// Success writes a {"data": ...} envelope.
func Success(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// Error writes an {"error": {"message": ...}} envelope.
func Error(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"message": message},
	}); err != nil {
		slog.Error("encode error response", "error", err)
	}
}

// Text writes a plain-text response.
func Text(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("write response", "error", err)
	}
}

// JSON writes an unenveloped JSON response.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// ValidationError writes a 400 with per-field details when err is a
// validator.ValidationErrors, otherwise with err.Error() as the detail.
func ValidationError(w http.ResponseWriter, err error) {
	var details interface{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fieldErrors := make([]map[string]string, 0, len(verrs))
		for _, e := range verrs {
			fieldErrors = append(fieldErrors, map[string]string{
				"field":   e.Field(),
				"message": e.Tag(),
			})
		}
		details = fieldErrors
	} else {
		details = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	if encErr := json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": "validation error",
			"details": details,
		},
	}); encErr != nil {
		slog.Error("encode validation error response", "error", encErr)
	}
}

// ErrorMapping binds a domain error to an HTTP status.
type ErrorMapping struct {
	Error  error
	Status int
	// Message overrides err.Error() when non-empty.
	Message string
}

// HandleError resolves a service error through the mapping table. An
// unmapped error is logged and answered with 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			Error(w, m.Status, msg)
			return
		}
	}
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
