package web

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewServer creates the HTTP server for the leadcap web UI and JSON API.
func NewServer(database *sql.DB, cfg *config.Config, orch *pipeline.Orchestrator, version, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           NewHandler(database, cfg, orch, version),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewHandler builds the routed handler, wrapped with security headers.
func NewHandler(database *sql.DB, cfg *config.Config, orch *pipeline.Orchestrator, version string) http.Handler {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		log.Fatalf("failed to create template sub-FS: %v", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("failed to create static sub-FS: %v", err)
	}

	h := &Handlers{
		db:       database,
		cfg:      cfg,
		orch:     orch,
		images:   db.NewImages(database),
		renderer: NewRenderer(templateSub, version),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/leads", http.StatusFound)
	})

	mux.HandleFunc("GET /leads", h.HandleList)
	mux.HandleFunc("GET /leads/{id}", h.HandleDetail)
	mux.HandleFunc("POST /leads/{id}/edit", h.HandleUpdate)
	mux.HandleFunc("POST /leads/{id}/delete", h.HandleDelete)
	mux.HandleFunc("POST /leads/{id}/append", h.HandleAppendArm)
	mux.HandleFunc("POST /append/cancel", h.HandleAppendCancel)

	mux.HandleFunc("POST /capture/text", h.HandleCaptureText)
	mux.HandleFunc("POST /capture/{kind}", h.HandleCaptureFile)
	mux.HandleFunc("POST /undo", h.HandleUndo)

	mux.HandleFunc("GET /queue", h.HandleQueue)
	mux.HandleFunc("POST /queue/drain", h.HandleDrain)
	mux.HandleFunc("POST /queue/clear", h.HandleQueueClear)
	mux.HandleFunc("POST /queue/{id}/retry", h.HandleRetry)

	mux.HandleFunc("POST /export", h.HandleExport)
	mux.HandleFunc("GET /cards/{ref}", h.HandleCardImage)
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return securityHeaders(mux)
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// Run serves until SIGINT/SIGTERM or ctx is done, then shuts down gracefully
// and waits for background drains to finish.
func Run(ctx context.Context, srv *http.Server, drainer *pipeline.Drainer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Printf("leadcap UI running at http://%s", srv.Addr)

	if strings.HasPrefix(srv.Addr, "0.0.0.0:") || strings.HasPrefix(srv.Addr, ":") || strings.Contains(srv.Addr, "::") {
		log.Printf("WARNING: Server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if drainer != nil {
			drainer.Wait()
		}
		return err
	}
}
