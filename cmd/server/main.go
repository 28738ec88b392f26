package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/taxfiler/kyc-ocr-service/api"
	"github.com/taxfiler/kyc-ocr-service/internal/cache"
	"github.com/taxfiler/kyc-ocr-service/internal/config"
	"github.com/taxfiler/kyc-ocr-service/internal/db"
	"github.com/taxfiler/kyc-ocr-service/internal/kyc"
	"github.com/taxfiler/kyc-ocr-service/internal/logger"
	"github.com/taxfiler/kyc-ocr-service/internal/models"
	"github.com/taxfiler/kyc-ocr-service/internal/ocr"
	"github.com/taxfiler/kyc-ocr-service/internal/ocr/tesseract"
	"github.com/taxfiler/kyc-ocr-service/internal/services"
	"github.com/taxfiler/kyc-ocr-service/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := api.Dependencies{}

	// Initialize database connection pool
	var store services.CaseStore
	if err := db.Init(ctx); err != nil {
		if !errors.Is(err, db.ErrNoDatabase) {
			slog.Warn("Database not available", "error", err)
		}
		slog.Warn("Running without persistence: cases are kept in memory")
		store = db.NewMemoryStore()
	} else {
		defer db.Close()
		pg := db.NewPostgresStore(db.Pool)
		store = pg
		deps.Database = pg
	}

	// Initialize MinIO storage
	var objects *storage.MinioService
	if objects, err = storage.NewMinioFromEnv(ctx); err != nil {
		objects = nil
		if !errors.Is(err, storage.ErrNoObjectStore) {
			slog.Warn("MinIO storage not available", "error", err)
		}
		slog.Warn("Uploaded images will be stored inline")
	} else {
		slog.Info("MinIO storage initialized", "bucket", objects.Bucket())
		deps.Storage = objects
		deps.Presigner = objects
	}

	// Optional OCR cache
	var textCache ocr.TextCache
	if cfg.Cache.RedisAddr != "" {
		rc, err := cache.NewRedisTextCache(ctx, cfg.Cache.RedisAddr, time.Duration(cfg.Cache.TTLMinutes)*time.Minute)
		if err != nil {
			slog.Warn("Redis cache not available", "error", err)
		} else {
			defer rc.Close()
			textCache = rc
			deps.Cache = rc
		}
	}

	engine, err := buildOCREngine(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize OCR engine: %v", err)
	}
	if closer, ok := engine.(io.Closer); ok {
		defer closer.Close()
	}
	deps.Engine = engine

	// Verification pipeline
	var fetcher storage.ObjectFetcher
	if objects != nil {
		fetcher = objects
	}
	resolver := storage.NewSourceResolver(fetcher, time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second, cfg.Fetch.MaxBytes)
	verifier := services.NewVerifier(resolver, ocr.Cached(engine, textCache), kyc.NewScorer(cfg.Verification), languages(cfg.OCR.Language)).
		WithVariables(cfg.OCR.Variables)
	workflow := services.NewWorkflow(store, cfg.Workflow.RequiredDocuments, cfg.Workflow.AutoAdvance)
	runner := services.NewRunner(verifier, store, services.NewReconciler(cfg.Verification.CrossDocumentThreshold), workflow)

	var uploader services.ObjectUploader
	if objects != nil {
		uploader = objects
	}
	caseService := services.NewCaseService(store, runner, workflow, uploader)

	handler := api.NewHandler(cfg, caseService, verifier, deps)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting KYC OCR Service", "version", api.Version, "addr", addr)
	slog.Info("Configuration",
		"ocr_engine", engine.Name(),
		"database", deps.Database != nil,
		"storage", deps.Storage != nil,
		"cache", deps.Cache != nil,
		"auth", !cfg.Auth.Disabled,
		"auto_advance", cfg.Workflow.AutoAdvance,
	)
	log.Printf("Endpoints:")
	log.Printf("  POST  http://%s/api/verify                               - Verify an image against a client", addr)
	log.Printf("  POST  http://%s/api/cases                                - Register a case", addr)
	log.Printf("  GET   http://%s/api/cases/{id}                           - Get case with documents", addr)
	log.Printf("  PATCH http://%s/api/cases/{id}/status                    - Move case to a kanban stage", addr)
	log.Printf("  GET   http://%s/api/cases/{id}/readiness                 - Required-document checklist", addr)
	log.Printf("  POST  http://%s/api/cases/{id}/documents                 - Upload document (async verification)", addr)
	log.Printf("  GET   http://%s/api/cases/{id}/documents                 - List documents", addr)
	log.Printf("  POST  http://%s/api/cases/{id}/documents/{name}/verify   - Re-run verification", addr)
	log.Printf("  GET   http://%s/api/cases/{id}/documents/{name}/logs     - Verification log trail", addr)
	log.Printf("  GET   http://%s/api/cases/{id}/documents/{name}/image    - Document image", addr)
	log.Printf("  GET   http://%s/health                                   - Health check", addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		slog.Error("Background verifications interrupted", "error", err)
	}
}

// buildOCREngine creates the engine named by ocr.engine
func buildOCREngine(ctx context.Context, cfg *models.Config) (ocr.Engine, error) {
	switch strings.ToLower(cfg.OCR.Engine) {
	case "tesseract":
		var pre *ocr.Preprocessor
		if cfg.OCR.Preprocess {
			pre = ocr.NewPreprocessor(0)
		}
		return tesseract.New(cfg.OCR.Language, pre), nil
	case "openai":
		if cfg.AI.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai engine requires OPENAI_API_KEY")
		}
		return ocr.NewOpenAIVisionEngine(cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.BaseURL, cfg.AI.OpenAI.Model), nil
	case "gemini":
		if cfg.AI.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini engine requires GEMINI_API_KEY")
		}
		return ocr.NewGeminiVisionEngine(ctx, cfg.AI.Gemini.APIKey, cfg.AI.Gemini.Model)
	default:
		return nil, fmt.Errorf("unknown OCR engine %q (use tesseract, openai or gemini)", cfg.OCR.Engine)
	}
}

// languages splits a tesseract-style "eng+hin" language setting
func languages(setting string) []string {
	var langs []string
	for _, l := range strings.Split(setting, "+") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}
