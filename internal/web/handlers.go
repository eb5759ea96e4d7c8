package web

import (
	"database/sql"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/testsmith/internal/config"
	"github.com/hpungsan/testsmith/internal/errors"
	"github.com/hpungsan/testsmith/internal/generation"
	"github.com/hpungsan/testsmith/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	renderer *Renderer
}

// HandleList handles GET /generations: list recorded generations.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	status := r.URL.Query().Get("status")

	result, err := ops.List(r.Context(), h.db, ops.ListInput{
		Kind:   kind,
		Status: generation.Status(status),
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data := ListPageData{
		PageData: PageData{
			Title:   "Generations",
			Version: h.renderer.version,
			Nav:     "generations",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
		Kind:       kind,
		Status:     status,
	}

	// Filter changes swap only the table rows.
	if r.Header.Get("HX-Target") == "rows" {
		h.renderer.renderBlock(w, http.StatusOK, "list", "list-rows", data)
		return
	}

	h.renderer.renderPage(w, r, "list", data)
}

// HandleDetail handles GET /generations/{id}: view one generation with its code.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("generation ID is required"))
		return
	}

	g, err := ops.Fetch(r.Context(), h.db, ops.FetchInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, g)
		return
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData: PageData{
			Title:   displayName(&g.Generation),
			Version: h.renderer.version,
			Nav:     "generations",
		},
		Generation:   &g.Generation,
		RenderedHTML: renderCode(g.CodeText),
	})
}

// HandleDelete handles DELETE /generations/{id}: remove a generation from history.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("generation ID is required"))
		return
	}

	result, err := ops.Delete(r.Context(), h.db, ops.DeleteInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/generations")
		w.WriteHeader(http.StatusOK)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, result)
		return
	}

	// 303 so the follow-up request is a GET.
	http.Redirect(w, r, "/generations", http.StatusSeeOther)
}

// HandlePurge handles POST /generations/purge: permanently delete old generations.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	input := ops.PurgeInput{Kind: r.FormValue("kind")}
	if days := r.FormValue("older_than_days"); days != "" {
		d, err := strconv.Atoi(days)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("older_than_days must be an integer"))
			return
		}
		input.OlderThanDays = d
	}

	result, err := ops.Purge(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: return HTML fragment
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<div class="purge-result">` + template.HTMLEscapeString(result.Message) + `</div>`))
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/generations", http.StatusFound)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// displayName returns the target file name when the code was written,
// otherwise the prompt.
func displayName(g *generation.Generation) string {
	if g.TargetPath != nil && *g.TargetPath != "" {
		p := *g.TargetPath
		if i := strings.LastIndexAny(p, `/\`); i >= 0 {
			return p[i+1:]
		}
		return p
	}
	if p := strings.TrimSpace(g.Prompt); p != "" {
		if r := []rune(p); len(r) > 60 {
			return string(r[:60]) + "..."
		}
		return p
	}
	return shortID(g.ID)
}
