package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/joescharf/ait/internal/classify"
	"github.com/joescharf/ait/internal/models"
	"github.com/joescharf/ait/internal/store"
	"github.com/joescharf/ait/internal/tracker"
)

// Server provides the REST API handlers.
type Server struct {
	tracker   *tracker.Tracker
	suggester classify.Suggester
}

// NewServer creates a new API server. A nil suggester falls back to keyword
// classification.
func NewServer(t *tracker.Tracker, suggester classify.Suggester) *Server {
	if suggester == nil {
		suggester = classify.Heuristic{}
	}
	return &Server{
		tracker:   t,
		suggester: suggester,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/issues", s.listIssues)
	mux.HandleFunc("POST /api/v1/issues", s.createIssue)
	mux.HandleFunc("GET /api/v1/issues/peek", s.peekNextIssue)
	mux.HandleFunc("POST /api/v1/issues/next", s.selectNextToWork)
	mux.HandleFunc("GET /api/v1/issues/{id}", s.getIssue)
	mux.HandleFunc("POST /api/v1/issues/{id}/return", s.returnIssue)
	mux.HandleFunc("POST /api/v1/issues/{id}/complete", s.completeIssue)
	mux.HandleFunc("POST /api/v1/issues/{id}/close", s.closeIssue)

	mux.HandleFunc("POST /api/v1/reviews/next", s.selectNextToReview)

	mux.HandleFunc("GET /api/v1/classifications/suggest", s.suggestClassification)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeTrackerError maps tracker and store errors to HTTP status codes.
func writeTrackerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tracker.ErrAlreadyClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tracker.ErrAmbiguousID), errors.Is(err, tracker.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		if errors.Is(err, store.ErrIO) {
			slog.Error("issue store write failed", "error", err)
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeBody decodes a JSON request body into v. An empty body leaves v as is.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter tracker.ListFilter

	if raw := q.Get("status"); raw != "" {
		st, err := models.ParseIssueStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = st
	}
	if raw := q.Get("classification"); raw != "" {
		c, err := models.ParseClassification(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Classification = c
	}
	for key, target := range map[string]*int{"skip": &filter.Skip, "take": &filter.Take} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, key+" must be a non-negative integer")
			return
		}
		*target = n
	}

	writeJSON(w, http.StatusOK, s.tracker.ListIssues(filter))
}

type createIssueRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Classification string `json:"classification"`
	Agent          string `json:"agent"`
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Agent = strings.TrimSpace(req.Agent)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Agent == "" {
		writeError(w, http.StatusBadRequest, "agent is required")
		return
	}

	var class models.Classification
	if req.Classification != "" {
		c, err := models.ParseClassification(req.Classification)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		class = c
	} else {
		c, err := s.suggester.Suggest(r.Context(), req.Title, req.Description)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		class = c
	}

	issue, err := s.tracker.CreateIssue(r.Context(), req.Title, req.Description, class, req.Agent)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.tracker.GetIssue(r.PathValue("id"))
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// peekNextIssue accepts repeated or comma-separated classification params.
func (s *Server) peekNextIssue(w http.ResponseWriter, r *http.Request) {
	var order []models.Classification
	for _, v := range r.URL.Query()["classification"] {
		for _, raw := range strings.Split(v, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			c, err := models.ParseClassification(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			order = append(order, c)
		}
	}
	if len(order) == 0 {
		order = models.Classifications
	}

	issue := s.tracker.PeekNextIssue(order)
	if issue == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

type selectRequest struct {
	Agent          string `json:"agent"`
	Classification string `json:"classification"`
}

func (s *Server) selectNextToWork(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Agent) == "" {
		writeError(w, http.StatusBadRequest, "agent is required")
		return
	}
	var class models.Classification
	if req.Classification != "" {
		c, err := models.ParseClassification(req.Classification)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		class = c
	}

	issue, err := s.tracker.SelectNextToWork(r.Context(), req.Agent, class)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	if issue == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) selectNextToReview(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Agent) == "" {
		writeError(w, http.StatusBadRequest, "agent is required")
		return
	}

	issue, err := s.tracker.SelectNextToReview(r.Context(), req.Agent)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	if issue == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

type commentRequest struct {
	Comment    string `json:"comment"`
	Agent      string `json:"agent"`
	Resolution string `json:"resolution,omitempty"`
}

func (s *Server) decodeComment(w http.ResponseWriter, r *http.Request) (commentRequest, bool) {
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return req, false
	}
	if strings.TrimSpace(req.Agent) == "" {
		writeError(w, http.StatusBadRequest, "agent is required")
		return req, false
	}
	return req, true
}

func (s *Server) returnIssue(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeComment(w, r)
	if !ok {
		return
	}
	issue, err := s.tracker.ReturnIssue(r.Context(), r.PathValue("id"), req.Comment, req.Agent)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) completeIssue(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeComment(w, r)
	if !ok {
		return
	}
	issue, err := s.tracker.CompleteIssue(r.Context(), r.PathValue("id"), req.Comment, req.Agent)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) closeIssue(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeComment(w, r)
	if !ok {
		return
	}
	resolution, err := models.ParseIssueStatus(req.Resolution)
	if err != nil || !resolution.IsTerminal() {
		writeError(w, http.StatusBadRequest, "resolution must be closed or rejected")
		return
	}
	issue, err := s.tracker.CloseIssue(r.Context(), r.PathValue("id"), resolution, req.Comment, req.Agent)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// --- Classification ---

func (s *Server) suggestClassification(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.URL.Query().Get("title"))
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	c, err := s.suggester.Suggest(r.Context(), title, r.URL.Query().Get("description"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"classification": string(c)})
}
