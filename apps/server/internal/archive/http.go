package archive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rapport-lite/apps/server/internal/auth"
	"rapport-lite/chronicle"
)

type HTTPHandler struct {
	auth    auth.Service
	archive Service
}

type errorResponse struct {
	Error string `json:"error"`
}

// upsertAuthoredTapeRequest accepts either a raw event list or a whole
// generated tape; when both are present the tape wins.
type upsertAuthoredTapeRequest struct {
	Events  []EventItem         `json:"events,omitempty"`
	Tape    *chronicle.WireTape `json:"tape,omitempty"`
	Summary map[string]any      `json:"summary,omitempty"`
}

func NewHTTPHandler(authService auth.Service, archiveService Service) *HTTPHandler {
	return &HTTPHandler{
		auth:    authService,
		archive: archiveService,
	}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/archive/live/recent", h.handleRecent(SourceLive))
	mux.HandleFunc("/api/archive/authored/recent", h.handleRecent(SourceAuthored))
	mux.HandleFunc("/api/archive/live/tapes/", h.handleTapes(SourceLive))
	mux.HandleFunc("/api/archive/authored/tapes/", h.handleTapes(SourceAuthored))
}

func (h *HTTPHandler) handleRecent(source Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		userID, ok := h.resolveUserID(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}

		limit := parseLimit(r.URL.Query().Get("limit"))
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		items, err := h.archive.ListRecent(ctx, userID, source, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "query recent tapes failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"items": items,
		})
	}
}

func (h *HTTPHandler) handleTapes(source Source) http.HandlerFunc {
	prefix := "/api/archive/" + string(source) + "/tapes/"
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := h.resolveUserID(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}

		path := strings.TrimPrefix(r.URL.Path, prefix)
		path = strings.TrimSpace(path)
		if path == "" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		parts := strings.Split(path, "/")
		tapeID := strings.TrimSpace(parts[0])
		if tapeID == "" {
			writeError(w, http.StatusBadRequest, "missing tape id")
			return
		}

		if len(parts) == 1 {
			if source == SourceAuthored && r.Method == http.MethodPost {
				h.handleUpsertAuthoredTape(w, r, userID, tapeID)
				return
			}
			if r.Method != http.MethodGet {
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			h.handleGetTape(w, r, userID, source, tapeID)
			return
		}

		if len(parts) == 2 && parts[1] == "save" {
			switch r.Method {
			case http.MethodPost:
				h.handleSetSaved(w, r, userID, source, tapeID, true)
			case http.MethodDelete:
				h.handleSetSaved(w, r, userID, source, tapeID, false)
			default:
				writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			}
			return
		}

		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *HTTPHandler) handleGetTape(w http.ResponseWriter, r *http.Request, userID uint64, source Source, tapeID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	events, err := h.archive.GetTapeEvents(ctx, userID, source, tapeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "tape not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "query tape events failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tape_id": tapeID,
		"source":  source,
		"events":  events,
	})
}

func (h *HTTPHandler) handleSetSaved(w http.ResponseWriter, r *http.Request, userID uint64, source Source, tapeID string, saved bool) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	err := h.archive.SetSaved(ctx, userID, source, tapeID, saved)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "tape not found")
		case errors.Is(err, ErrSavedLimitReach):
			writeError(w, http.StatusConflict, "saved tape limit reached")
		default:
			writeError(w, http.StatusInternalServerError, "update save state failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tape_id":  tapeID,
		"source":   source,
		"is_saved": saved,
	})
}

func (h *HTTPHandler) handleUpsertAuthoredTape(w http.ResponseWriter, r *http.Request, userID uint64, tapeID string) {
	var req upsertAuthoredTapeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	events := req.Events
	summary := req.Summary
	if req.Tape != nil {
		events = EventsFromWireTape(req.Tape)
		if summary == nil {
			summary = map[string]any{}
		}
		if _, ok := summary["title"]; !ok && req.Tape.Title != "" {
			summary["title"] = req.Tape.Title
		}
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, "missing events")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()
	if err := h.archive.UpsertAuthoredTape(ctx, userID, tapeID, events, summary); err != nil {
		writeError(w, http.StatusInternalServerError, "upsert authored tape failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tape_id": tapeID,
		"source":  SourceAuthored,
		"saved":   true,
	})
}

func (h *HTTPHandler) resolveUserID(r *http.Request) (uint64, bool) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return 0, false
	}
	userID, _, ok := h.auth.ResolveSession(token)
	if !ok {
		return 0, false
	}
	return userID, true
}

func parseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 20
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 20
	}
	if n > 100 {
		return 100
	}
	return n
}

func bearerToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
