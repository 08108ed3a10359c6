// Package main implements the service catalog API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/service-catalog/engine/catalog"
	"github.com/WessleyAI/service-catalog/engine/domain"
	"github.com/WessleyAI/service-catalog/engine/rag"
	"github.com/WessleyAI/service-catalog/pkg/bootstrap"
	"github.com/WessleyAI/service-catalog/pkg/config"
	"github.com/WessleyAI/service-catalog/pkg/mid"
)

// maxBodyBytes caps import and retrieval request bodies.
const maxBodyBytes = 32 << 20

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	// --- NATS request/reply (optional) ---
	nc, err := bootstrap.ConnectNATS(cfg.Server.NATSURL, logger)
	if err != nil {
		return err
	}
	if nc != nil {
		defer nc.Drain()
		if err := serveNATS(nc, app, logger); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      newHandler(app.Importer, app.RAG, app.Stats, app.Metrics.Handler(), cfg.Server.CORSOrigin, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // large imports embed entry by entry
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func serveNATS(nc *nats.Conn, app *bootstrap.App, logger *slog.Logger) error {
	if _, err := catalog.StartConsumer(nc, app.Importer, logger); err != nil {
		return err
	}
	if _, err := rag.StartResponder(nc, app.RAG); err != nil {
		return err
	}
	logger.Info("nats handlers registered",
		"subjects", []string{catalog.ImportSubject, catalog.ResetSubject, rag.RetrieveSubject})
	return nil
}

// catalogService is the importer as seen by the handlers.
type catalogService interface {
	Import(ctx context.Context, entries []domain.Entry) (catalog.ImportResult, error)
	Reset(ctx context.Context) catalog.ResetResult
}

// retriever is the retrieval engine as seen by the handlers.
type retriever interface {
	RetrieveKnowledge(ctx context.Context, c *domain.Context) *domain.Context
}

type statsFunc func(ctx context.Context) (bootstrap.Stats, error)

func newHandler(imp catalogService, ret retriever, stats statsFunc, metricsHandler http.Handler, corsOrigin string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("POST /api/v1/service-catalog/import", handleImport(imp, logger))
	mux.HandleFunc("DELETE /api/v1/service-catalog/reset", handleReset(imp))
	mux.HandleFunc("GET /api/v1/service-catalog/stats", handleStats(stats, logger))
	mux.HandleFunc("POST /api/v1/rag/retrieve", handleRetrieve(ret))

	return mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.CORS(corsOrigin),
		mid.OTel("service-catalog-api"),
		mid.MaxBody(maxBodyBytes),
	)
}

// --- Handlers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleImport(imp catalogService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable request body")
			return
		}
		entries, err := domain.DecodeEntries(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := imp.Import(r.Context(), entries)
		if err != nil {
			logger.Error("import failed", "err", err, "request_id", mid.RequestIDFrom(r.Context()))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleReset(imp catalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := imp.Reset(r.Context())
		status := http.StatusOK
		if !res.OK() {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, res)
	}
}

func handleRetrieve(ret retriever) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c domain.Context
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		writeJSON(w, http.StatusOK, ret.RetrieveKnowledge(r.Context(), &c))
	}
}

func handleStats(stats statsFunc, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := stats(r.Context())
		if err != nil {
			logger.Error("stats failed", "err", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
