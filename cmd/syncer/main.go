// Package main provides the HTTP entrypoint that runs one outbox sync batch per request.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jnst/booking-sync/internal/app"
	"github.com/jnst/booking-sync/internal/config"
	"github.com/jnst/booking-sync/internal/logger"
	"github.com/jnst/booking-sync/internal/service"
)

const (
	contentTypeJSON        = "Content-Type"
	applicationJSON        = "application/json"
	failedToEncodeResponse = "failed to encode response"
	exitCode               = 1
)

// SyncResponse is the body of a successful sync invocation.
type SyncResponse struct {
	Message string `json:"message"`
	Total   int    `json:"total"`
	Success int    `json:"success"`
	Failure int    `json:"failure"`
}

// CleanupResponse is the body of a successful cleanup invocation.
type CleanupResponse struct {
	Message    string `json:"message"`
	Deleted    int64  `json:"deleted"`
	CutoffDate string `json:"cutoffDate"`
}

// ErrorResponse is returned with status 500.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SyncServer handles sync and cleanup invocations.
type SyncServer struct {
	syncService    service.SyncService
	cleanupService service.CleanupService
}

// NewSyncServer creates a new sync server instance.
func NewSyncServer(syncService service.SyncService, cleanupService service.CleanupService) *SyncServer {
	return &SyncServer{
		syncService:    syncService,
		cleanupService: cleanupService,
	}
}

// Sync handles POST /sync: one batch per request, no body required.
func (s *SyncServer) Sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// a started batch runs to completion even if the caller goes away
	summary, err := s.syncService.RunBatch(context.WithoutCancel(r.Context()))
	if err != nil {
		slog.Error("sync batch failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})

		return
	}

	message := "sync completed"
	if summary.Total == 0 {
		message = "no pending events"
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		Message: message,
		Total:   summary.Total,
		Success: summary.Success,
		Failure: summary.Failure,
	})
}

// Cleanup handles POST /cleanup.
func (s *SyncServer) Cleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.cleanupService.Cleanup(context.WithoutCancel(r.Context()))
	if err != nil {
		slog.Error("cleanup failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, CleanupResponse{
		Message:    "cleanup completed",
		Deleted:    result.Deleted,
		CutoffDate: result.Cutoff.Format(time.RFC3339),
	})
}

// HealthCheck handles GET /health endpoint for service health check.
func (*SyncServer) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Routes registers the server's handlers on a new mux.
func (s *SyncServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/sync", s.Sync)
	mux.HandleFunc("/cleanup", s.Cleanup)
	mux.HandleFunc("/health", s.HealthCheck)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(contentTypeJSON, applicationJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error(failedToEncodeResponse, slog.String("error", err.Error()))
	}
}

func main() {
	// 環境変数読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	// ログ設定
	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(loggerInstance)

	// 依存関係注入
	application, err := app.New(context.Background(), cfg, loggerInstance)
	if err != nil {
		slog.Error("failed to initialize sync engine", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer application.Close()

	server := NewSyncServer(application.Sync, application.Cleanup)

	// サーバー起動
	port := cfg.Port

	slog.Info("starting sync server", slog.String("service", "syncer"), slog.String("port", port))

	if err := http.ListenAndServe(":"+port, server.Routes()); err != nil {
		slog.Error("failed to start server", slog.String("error", err.Error()))
		return
	}
}
