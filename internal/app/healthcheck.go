package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/specialistvlad/passgrid/internal/ctxlog"
)

// inflightEntry is one element of the /inflight response.
type inflightEntry struct {
	Document string `json:"document"`
	Pass     string `json:"pass"`
}

func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(app.ctx)
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// inflightHandler lists the passes currently submitted to the worker pool.
func (app *App) inflightHandler(w http.ResponseWriter, r *http.Request) {
	entries := []inflightEntry{}
	if app.orch != nil {
		for _, n := range app.orch.InFlight() {
			entries = append(entries, inflightEntry{Document: n.Document(), Pass: string(n.Key().Pass)})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Document != entries[j].Document {
			return entries[i].Document < entries[j].Document
		}
		return entries[i].Pass < entries[j].Pass
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		ctxlog.FromContext(app.ctx).Error("Failed to encode in-flight passes.", "error", err)
	}
}

// roundsHandler reports the outcome of every recorded round, oldest first.
func (app *App) roundsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(app.History()); err != nil {
		ctxlog.FromContext(app.ctx).Error("Failed to encode round history.", "error", err)
	}
}

func (app *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", app.healthHandler)
	mux.HandleFunc("GET /inflight", app.inflightHandler)
	mux.HandleFunc("GET /rounds", app.roundsHandler)
	return mux
}

// healthCheckServer initializes and runs the health check HTTP server.
func (app *App) healthCheckServer() {
	logger := ctxlog.FromContext(app.ctx)
	if app.config.HealthcheckPort <= 0 {
		logger.Debug("Health check server not started: disabled")
		return
	}

	addr := fmt.Sprintf(":%d", app.config.HealthcheckPort)
	app.httpServer = &http.Server{
		Addr:              addr,
		Handler:           app.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
}

func (app *App) closeHealthCheckServer() error {
	logger := ctxlog.FromContext(app.ctx)
	if app.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(app.ctx), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := app.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}
	app.httpServer = nil
	return nil
}
