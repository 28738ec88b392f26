package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/taxfiler/kyc-ocr-service/internal/auth"
	"github.com/taxfiler/kyc-ocr-service/internal/db"
	"github.com/taxfiler/kyc-ocr-service/internal/logger"
	"github.com/taxfiler/kyc-ocr-service/internal/models"
	"github.com/taxfiler/kyc-ocr-service/internal/ocr"
	"github.com/taxfiler/kyc-ocr-service/internal/services"
	"github.com/taxfiler/kyc-ocr-service/internal/storage"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	Version       = "1.0.0"
)

// Pinger is a dependency that can report its reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Presigner issues temporary URLs for stored document images
type Presigner interface {
	PresignedURL(ctx context.Context, ref string) (string, error)
}

// Dependencies are the collaborators reported by /health. A nil member is
// reported as not configured.
type Dependencies struct {
	Engine    ocr.Engine
	Database  Pinger
	Storage   Pinger
	Cache     Pinger
	Presigner Presigner
}

// Handler handles HTTP requests for document verification and filing cases
type Handler struct {
	config   *models.Config
	cases    *services.CaseService
	verifier services.DocumentVerifier
	deps     Dependencies
	validate *validator.Validate
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, cases *services.CaseService, verifier services.DocumentVerifier, deps Dependencies) *Handler {
	return &Handler{
		config:   config,
		cases:    cases,
		verifier: verifier,
		deps:     deps,
		validate: validator.New(),
	}
}

// SetupRoutes configures the HTTP routes. Everything under /api requires a
// bearer token unless auth is disabled in configuration.
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()
	// document names may contain "/" (e.g. "GST Return (Monthly/Annually)")
	router.UseEncodedPath()
	router.Use(RequestID, RequestLogger, Recovery)

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	if !h.config.Auth.Disabled {
		api.Use(auth.Middleware(h.config.Auth.JWTSecret))
	}

	// One-off verification
	api.HandleFunc("/verify", h.Verify).Methods("POST")

	// Cases
	api.HandleFunc("/cases", h.CreateCase).Methods("POST")
	api.HandleFunc("/cases/{id}", h.GetCase).Methods("GET")
	api.HandleFunc("/cases/{id}/status", h.UpdateCaseStatus).Methods("PATCH")
	api.HandleFunc("/cases/{id}/readiness", h.GetReadiness).Methods("GET")

	// Documents
	api.HandleFunc("/cases/{id}/documents", h.UploadDocument).Methods("POST")
	api.HandleFunc("/cases/{id}/documents", h.ListDocuments).Methods("GET")
	api.HandleFunc("/cases/{id}/documents/{name}/verify", h.ReverifyDocument).Methods("POST")
	api.HandleFunc("/cases/{id}/documents/{name}/logs", h.GetDocumentLogs).Methods("GET")
	api.HandleFunc("/cases/{id}/documents/{name}/image", h.GetDocumentImage).Methods("GET")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Memory    MemoryStats   `json:"memory"`
	OCR       ServiceStatus `json:"ocr"`
	Database  ServiceStatus `json:"database"`
	Storage   ServiceStatus `json:"storage"`
	Cache     ServiceStatus `json:"cache"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health reports process stats and dependency status. Only the OCR engine
// is critical; database, storage and cache have degraded fallbacks.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		OCR:      h.checkEngine(),
		Database: checkPinger(ctx, h.deps.Database, "PostgreSQL", "using in-memory store"),
		Storage:  checkPinger(ctx, h.deps.Storage, "MinIO S3", "storage not configured"),
		Cache:    checkPinger(ctx, h.deps.Cache, "Redis", "cache not configured"),
	}

	status := http.StatusOK
	if !response.OCR.Available {
		response.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// checkEngine verifies the OCR engine is configured, and for tesseract that
// the binary is installed
func (h *Handler) checkEngine() ServiceStatus {
	if h.deps.Engine == nil {
		return ServiceStatus{Available: false, Error: "no OCR engine configured"}
	}
	name := h.deps.Engine.Name()
	if name != "tesseract" {
		return ServiceStatus{Available: true, Version: name}
	}

	output, err := exec.Command("tesseract", "--version").CombinedOutput()
	if err != nil {
		return ServiceStatus{
			Available: false,
			Error:     "tesseract not found or not executable",
		}
	}

	version := "unknown"
	if lines := strings.Split(string(output), "\n"); len(lines) > 0 {
		version = strings.TrimSpace(lines[0])
	}
	return ServiceStatus{Available: true, Version: version}
}

func checkPinger(ctx context.Context, p Pinger, version, missing string) ServiceStatus {
	if p == nil {
		return ServiceStatus{Available: false, Error: missing}
	}
	if err := p.Ping(ctx); err != nil {
		return ServiceStatus{Available: false, Version: version, Error: err.Error()}
	}
	return ServiceStatus{Available: true, Version: version}
}

// VerifyRequest is the body of a one-off verification
type VerifyRequest struct {
	ImageSource string `json:"imageSource" validate:"required"`
	ClientID    string `json:"clientId"`
	ClientName  string `json:"clientName" validate:"max=200"`
}

// Verify runs a verification synchronously and returns the result. The
// image comes either as a JSON imageSource or as a multipart "file".
// A failed verification is still a 200: the outcome is in the body.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req VerifyRequest
	if isMultipart(r) {
		up, err := readUpload(w, r)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		req = VerifyRequest{
			ImageSource: dataURI(up.ContentType, up.Data),
			ClientID:    r.FormValue("clientId"),
			ClientName:  r.FormValue("clientName"),
		}
	} else if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.sendError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	start := time.Now()
	result := h.verifier.Verify(r.Context(), req.ImageSource, models.ClientProfile{
		ID:   req.ClientID,
		Name: req.ClientName,
	})
	logger.Info(r.Context(), "[API] verification completed",
		"status", result.Status,
		"engine", result.Engine,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	writeJSON(w, http.StatusOK, result)
}

// CreateCaseRequest registers a filing case
type CreateCaseRequest struct {
	ID         string `json:"id" validate:"omitempty,max=64"`
	ClientID   string `json:"clientId"`
	ClientName string `json:"clientName" validate:"required,max=200"`
	Name       string `json:"name"`
	Category   string `json:"category" validate:"required"`
}

// CreateCase handles POST /api/cases
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req CreateCaseRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.sendError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	c, err := h.cases.CreateCase(r.Context(), services.NewCase{
		ID:         req.ID,
		ClientID:   req.ClientID,
		ClientName: req.ClientName,
		Name:       req.Name,
		Category:   req.Category,
	})
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// GetCase handles GET /api/cases/{id}
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	c, err := h.cases.GetCase(r.Context(), pathVar(r, "id"))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateStatusRequest moves a case to another kanban stage
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateCaseStatus handles PATCH /api/cases/{id}/status
func (h *Handler) UpdateCaseStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req UpdateStatusRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.sendError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	id := pathVar(r, "id")
	if err := h.cases.SetStatus(r.Context(), id, models.CaseStatus(req.Status)); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	c, err := h.cases.GetCase(r.Context(), id)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetReadiness handles GET /api/cases/{id}/readiness
func (h *Handler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	readiness, err := h.cases.Readiness(r.Context(), pathVar(r, "id"))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readiness)
}

// DocumentRequest attaches a document by reference
type DocumentRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Type string `json:"type" validate:"omitempty,oneof=file url"`
	URL  string `json:"url" validate:"required"`
}

// UploadDocument handles POST /api/cases/{id}/documents. It accepts a
// multipart upload ("file" or "image" plus "name") or a JSON reference, and
// answers 202 with the pending document while verification runs.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var upload services.NewUpload
	if isMultipart(r) {
		up, err := readUpload(w, r)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		name := strings.TrimSpace(r.FormValue("name"))
		if name == "" {
			h.sendError(w, http.StatusBadRequest, "name is required")
			return
		}
		upload = services.NewUpload{
			Name:        name,
			Type:        models.DocumentKindFile,
			Data:        up.Data,
			ContentType: up.ContentType,
		}
	} else {
		var req DocumentRequest
		if !h.decodeJSON(w, r, &req) {
			return
		}
		if err := h.validate.Struct(req); err != nil {
			h.sendError(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		upload = services.NewUpload{Name: strings.TrimSpace(req.Name), Type: req.Type, URL: req.URL}
	}

	doc, err := h.cases.AddDocument(r.Context(), pathVar(r, "id"), upload)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

// ListDocuments handles GET /api/cases/{id}/documents
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	c, err := h.cases.GetCase(r.Context(), pathVar(r, "id"))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caseId":    c.ID,
		"documents": c.Documents,
		"count":     len(c.Documents),
	})
}

// ReverifyDocument handles POST /api/cases/{id}/documents/{name}/verify
func (h *Handler) ReverifyDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	doc, err := h.cases.Reverify(r.Context(), pathVar(r, "id"), pathVar(r, "name"))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

// GetDocumentLogs handles GET /api/cases/{id}/documents/{name}/logs
func (h *Handler) GetDocumentLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	name := pathVar(r, "name")
	logs, err := h.cases.Logs(r.Context(), pathVar(r, "id"), name)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	if logs == nil {
		logs = []models.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name": name,
		"logs": logs,
	})
}

// GetDocumentImage serves the image of a document: inline images (data URI or
// raw base64) are decoded and written, stored and http(s) images are
// redirected to.
func (h *Handler) GetDocumentImage(w http.ResponseWriter, r *http.Request) {
	c, err := h.cases.GetCase(r.Context(), pathVar(r, "id"))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		h.sendServiceError(w, r, err)
		return
	}
	doc, ok := c.Document(pathVar(r, "name"))
	if !ok || doc.URL == "" {
		w.Header().Set("Content-Type", "application/json")
		h.sendError(w, http.StatusNotFound, "image not found")
		return
	}

	switch {
	case storage.IsInline(doc.URL):
		data, contentType, err := storage.DecodeInline(doc.URL)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			h.sendServiceError(w, r, err)
			return
		}
		if contentType == "" {
			contentType = ocr.MimeType(data)
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "private, max-age=3600")
		w.Write(data)

	case strings.HasPrefix(doc.URL, storage.ObjectScheme):
		if h.deps.Presigner == nil {
			w.Header().Set("Content-Type", "application/json")
			h.sendError(w, http.StatusServiceUnavailable, "storage not available")
			return
		}
		u, err := h.deps.Presigner.PresignedURL(r.Context(), doc.URL)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			h.sendServiceError(w, r, err)
			return
		}
		http.Redirect(w, r, u, http.StatusFound)

	default:
		http.Redirect(w, r, strings.TrimSpace(doc.URL), http.StatusFound)
	}
}

type uploadedFile struct {
	Data        []byte
	ContentType string
}

// readUpload reads the "file" (or "image") part of a multipart form
func readUpload(w http.ResponseWriter, r *http.Request) (uploadedFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		return uploadedFile{}, errors.New("File too large or invalid form data")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("image")
		if err != nil {
			return uploadedFile{}, errors.New("No file provided (use 'file' or 'image' field)")
		}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return uploadedFile{}, errors.New("Failed to read file")
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ocr.MimeType(data)
	}
	return uploadedFile{Data: data, ContentType: contentType}, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func dataURI(contentType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
}

// pathVar returns a decoded route variable. Routes match on the encoded
// path, so variables arrive escaped.
func pathVar(r *http.Request, key string) string {
	raw := mux.Vars(r)[key]
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed '%s' validation", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

// sendServiceError maps errors from the case service to status codes
func (h *Handler) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		h.sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrConflict):
		h.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, storage.ErrInvalidSource),
		errors.Is(err, storage.ErrEmptySource):
		h.sendError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error(r.Context(), "[API] request failed", "path", r.URL.Path, "error", err)
		h.sendError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("[API] failed to write response", "error", err)
	}
}
