package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"souqmarket/admin"
	"souqmarket/catalog"
	"souqmarket/farmer"
	"souqmarket/moderation"
	"souqmarket/order"
)

var errBadJSON = errors.New("invalid JSON body")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warnw("encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP statuses. Unclassified errors are
// logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		log.Errorw("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "Request body too large"
	case errors.Is(err, errBadJSON):
		return http.StatusBadRequest, "Invalid JSON"
	case errors.Is(err, order.ErrEmptyCart):
		return http.StatusBadRequest, "Empty cart"
	case errors.Is(err, order.ErrNoValidItems):
		return http.StatusBadRequest, "No valid items"
	case errors.Is(err, order.ErrInvalidInput),
		errors.Is(err, farmer.ErrInvalidInput),
		errors.Is(err, catalog.ErrInvalidInput):
		return http.StatusBadRequest, inputMessage(err)
	case errors.Is(err, farmer.ErrUnauthorized),
		errors.Is(err, admin.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, moderation.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, farmer.ErrNotFound),
		errors.Is(err, moderation.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, farmer.ErrDuplicatePhone):
		return http.StatusConflict, "Phone already used"
	case errors.Is(err, moderation.ErrInvalidTransition):
		return http.StatusConflict, "Invalid status transition"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timeout"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

// inputMessage strips the package prefix from a validation error so the
// detail can be shown to clients.
func inputMessage(err error) string {
	for _, sentinel := range []error{order.ErrInvalidInput, farmer.ErrInvalidInput, catalog.ErrInvalidInput} {
		prefix := sentinel.Error() + ": "
		if msg := err.Error(); len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}
	return "Invalid fields"
}

// decodeJSON reads the request body into dst. An empty body leaves dst at its
// zero value so that field validation reports what is missing.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return errBadJSON
	}
	return nil
}
