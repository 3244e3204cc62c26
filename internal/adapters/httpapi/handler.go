// Package httpapi serves the family forest over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"familytree/internal/core"
	"familytree/pkg/domain"
)

const (
	treePath   = "/api/v1/tree"
	peoplePath = "/api/v1/people/"
)

// Forest is the service surface used by the handler.
type Forest interface {
	Ready() bool
	Generation() uint64
	TreeView() domain.TreeView
	Person(id string) (domain.Person, bool)
	Move(ctx context.Context, id string, dir domain.Direction) error
}

// Handler provides HTTP access to the tree and sibling moves.
type Handler struct {
	Forest  Forest
	Metrics http.Handler
}

// NewHandler constructs a handler over f. metrics may be nil.
func NewHandler(f Forest, metrics http.Handler) *Handler {
	return &Handler{Forest: f, Metrics: metrics}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/metrics":
		if h.Metrics == nil {
			http.NotFound(w, r)
			return
		}
		h.Metrics.ServeHTTP(w, r)
	case h.Forest == nil:
		writeError(w, http.StatusInternalServerError, "forest not configured")
	case path == treePath:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleTree(w)
	case strings.HasPrefix(path, peoplePath):
		h.handlePerson(w, r, strings.TrimPrefix(path, peoplePath))
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleTree(w http.ResponseWriter) {
	if !h.Forest.Ready() {
		writeError(w, http.StatusServiceUnavailable, core.ErrNotReady.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generation": h.Forest.Generation(),
		"tree":       h.Forest.TreeView(),
	})
}

func (h *Handler) handlePerson(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	id := segments[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "person not found")
		return
	}
	switch {
	case len(segments) == 1:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		p, ok := h.Forest.Person(id)
		if !ok {
			writeError(w, http.StatusNotFound, "person not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"person": p})
	case len(segments) == 2 && segments[1] == "move":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleMove(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "person endpoint not found")
	}
}

func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request, id string) {
	dir, err := domain.ParseDirection(r.URL.Query().Get("dir"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Forest.Move(r.Context(), id, dir); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	// The forest is rebuilt from the store push, so the new order is not
	// visible to this request yet.
	writeJSON(w, http.StatusAccepted, map[string]any{"person": id, "direction": string(dir)})
}

func statusFor(err error) int {
	var violation domain.RuleViolationError
	switch {
	case errors.Is(err, core.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUnknownPerson):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoSibling):
		return http.StatusConflict
	case errors.As(err, &violation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
