package web

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hpungsan/testsmith/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// shutdownGrace bounds how long in-flight requests may run after the
// command is interrupted.
const shutdownGrace = 5 * time.Second

// NewServer builds the history browser listening on bind:port.
func NewServer(db *sql.DB, cfg *config.Config, version, bind string, port int) (*http.Server, error) {
	pages, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("web templates: %w", err)
	}
	assets, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("web assets: %w", err)
	}

	h := &Handlers{db: db, cfg: cfg, renderer: NewRenderer(pages, version)}
	return &http.Server{
		Addr:              net.JoinHostPort(bind, strconv.Itoa(port)),
		Handler:           securityHeaders(routes(h, assets)),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// routes maps the generation history pages. The root redirects to the list.
func routes(h *Handlers, assets fs.FS) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/generations", http.StatusFound)
	})
	mux.HandleFunc("GET /generations", h.HandleList)
	mux.HandleFunc("POST /generations/purge", h.HandlePurge)
	mux.HandleFunc("GET /generations/{id}", h.HandleDetail)
	mux.HandleFunc("DELETE /generations/{id}", h.HandleDelete)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(assets)))
	return mux
}

// securityHeaders locks pages to same-origin scripts and styles.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		hdr.Set("X-Content-Type-Options", "nosniff")
		hdr.Set("X-Frame-Options", "DENY")
		hdr.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	log.Printf("testsmith history at http://%s/generations", srv.Addr)
	if exposed(srv.Addr) {
		log.Printf("warning: %s listens on every interface; generated tests are visible to the network", srv.Addr)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Println("stopping history server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// exposed reports whether addr binds a wildcard host.
func exposed(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsUnspecified()
}
