package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"binroute/internal/engine"
	"binroute/internal/store"
	"binroute/internal/vrp"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps domain errors to problem responses: constraint and
// validation failures are client errors, contention is 409, missing runs
// are 404, everything else is a 500.
func writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
	var ce *vrp.ConstraintError
	switch {
	case errors.As(err, &ce):
		writeProblem(w, http.StatusUnprocessableEntity, "Constraint violation", ce.Error(), r.URL.Path)
	case errors.Is(err, vrp.ErrTooManyAlternatives):
		writeProblem(w, http.StatusBadRequest, "Too many alternatives", err.Error(), r.URL.Path)
	case errors.Is(err, engine.ErrResourceBusy):
		writeProblem(w, http.StatusConflict, "Resource busy", err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, title, err.Error(), r.URL.Path)
	}
}
