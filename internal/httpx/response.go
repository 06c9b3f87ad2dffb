// Package httpx holds the JSON response conventions and middleware shared by
// every resource handler.
package httpx

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"libracatalog/internal/apperror"
	"libracatalog/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type errorBody struct {
	Error   string                `json:"error"`
	Details []apperror.FieldError `json:"details,omitempty"`
}

type statusBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Responder writes JSON bodies. Internal error text is exposed only when
// Development is set.
type Responder struct {
	logger      *slog.Logger
	development bool
}

func NewResponder(logger *slog.Logger, development bool) *Responder {
	return &Responder{logger: logger, development: development}
}

func (rs *Responder) JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rs.logger.Error("failed to encode response", "error", err)
	}
}

// Created answers 201 with the new identity under idField, e.g. "book_id".
func (rs *Responder) Created(w http.ResponseWriter, message, idField string, id int64) {
	rs.JSON(w, http.StatusCreated, map[string]any{"message": message, idField: id})
}

// Message answers 200 with {"message": message}.
func (rs *Responder) Message(w http.ResponseWriter, message string) {
	rs.JSON(w, http.StatusOK, map[string]string{"message": message})
}

// Error maps a classified error onto a status code and body. Validation and
// conflict share 400.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperror.As(err)
	switch ae.Kind {
	case apperror.KindValidation, apperror.KindConflict:
		rs.JSON(w, http.StatusBadRequest, errorBody{Error: ae.Message, Details: ae.Details})
	case apperror.KindNotFound:
		rs.JSON(w, http.StatusNotFound, errorBody{Error: ae.Message})
	default:
		rs.logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", observability.RequestID(r.Context()),
		)
		body := statusBody{Status: "error", Message: "Something went wrong!"}
		if rs.development {
			body.Error = err.Error()
		}
		rs.JSON(w, http.StatusInternalServerError, body)
	}
}

// RouteNotFound answers unmatched routes and methods.
func (rs *Responder) RouteNotFound(w http.ResponseWriter, r *http.Request) {
	rs.JSON(w, http.StatusNotFound, statusBody{
		Status:  "error",
		Message: "Route not found",
		Path:    r.URL.RequestURI(),
	})
}

// IDParam parses the {id} URL parameter. Identities are positive integers;
// anything else cannot name an entity, so it is reported as not found.
func IDParam(r *http.Request, entity string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NotFound(entity)
	}
	return id, nil
}
