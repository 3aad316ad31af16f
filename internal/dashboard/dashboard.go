// Package dashboard serves a read-only HTML view of the issue tracker and a
// health endpoint.
package dashboard

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joescharf/ait/internal/models"
	"github.com/joescharf/ait/internal/tracker"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// RefreshSeconds is how often the page reloads itself.
const RefreshSeconds = 30

const filterAll = "all"

var funcs = template.FuncMap{
	"label": func(v any) string { return strings.ReplaceAll(fmt.Sprint(v), "_", " ") },
	"when":  func(t time.Time) string { return t.Local().Format(time.DateTime) },
}

var pageTmpl = template.Must(template.New("index.html.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/index.html.tmpl"))

// Handler serves the dashboard.
type Handler struct {
	tracker *tracker.Tracker
	mux     *http.ServeMux
}

// New returns a dashboard handler for t.
func New(t *tracker.Tracker) (*Handler, error) {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}

	h := &Handler{tracker: t, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /{$}", h.index)
	h.mux.HandleFunc("GET /health", h.health)
	h.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type filterLink struct {
	Value  string
	Count  int
	Active bool
}

type pageData struct {
	Issues         []*models.Issue
	Filter         string
	Filters        []filterLink
	Policy         tracker.SelectionPolicy
	RefreshSeconds int
}

// index renders the issue table. An unknown status filter shows everything.
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	filter := filterAll
	var lf tracker.ListFilter
	if st, err := models.ParseIssueStatus(r.URL.Query().Get("status")); err == nil {
		lf.Status = st
		filter = string(st)
	}

	issues := h.tracker.ListIssues(lf)
	counts := h.tracker.Counts()

	total := 0
	links := make([]filterLink, 0, len(models.IssueStatuses)+1)
	for _, st := range models.IssueStatuses {
		total += counts[st]
		links = append(links, filterLink{Value: string(st), Count: counts[st], Active: filter == string(st)})
	}
	links = append([]filterLink{{Value: filterAll, Count: total, Active: filter == filterAll}}, links...)

	var buf bytes.Buffer
	err := pageTmpl.Execute(&buf, pageData{
		Issues:         issues,
		Filter:         filter,
		Filters:        links,
		Policy:         h.tracker.Policy(),
		RefreshSeconds: RefreshSeconds,
	})
	if err != nil {
		slog.Error("render dashboard", "error", err)
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"issueCount": h.tracker.Len(),
	})
}
