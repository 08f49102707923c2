// Package server exposes the document ingestion and query pipelines over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vedicpedia/ragserver/pkg/blob"
	"github.com/vedicpedia/ragserver/pkg/config"
	"github.com/vedicpedia/ragserver/pkg/pipeline"
)

// presignExpiry is how long proxy download links stay valid.
const presignExpiry = time.Hour

// Server is the HTTP front for the RAG service.
type Server struct {
	cfg       config.ServerConfig
	ingestion *pipeline.Ingestion
	query     *pipeline.Query
	blobs     blob.Store
	router    chi.Router
	http      *http.Server
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, ingestion *pipeline.Ingestion, query *pipeline.Query, blobs blob.Store) *Server {
	s := &Server{
		cfg:       cfg,
		ingestion: ingestion,
		query:     query,
		blobs:     blobs,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))
	r.Use(instrument)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Post("/process-pdfs", s.handleProcessPDFs)
	r.Post("/query", s.handleQuery)
	r.Post("/api/proxy/download", s.handleProxyDownload)
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.ShutdownTimeout)*time.Second)
	defer cancel()

	slog.Info("shutting down http server")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to Vedic Pedia AI API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProcessPDFs accepts a multipart upload of one or more files under
// the "files" field and returns a per-file result list.
func (s *Server) handleProcessPDFs(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	defer r.MultipartForm.RemoveAll()

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "No files provided")
		return
	}

	for _, part := range parts {
		if !strings.HasSuffix(strings.ToLower(part.Filename), ".pdf") {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("File %s is not a PDF", part.Filename))
			return
		}
	}

	files := make([]pipeline.FileInput, 0, len(parts))
	for _, part := range parts {
		f, err := part.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read file %s", part.Filename))
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read file %s", part.Filename))
			return
		}
		files = append(files, pipeline.FileInput{Filename: part.Filename, Content: content})
	}

	results := s.ingestion.ProcessFiles(r.Context(), files)
	writeJSON(w, http.StatusOK, results)
}

type queryRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result := s.query.Answer(r.Context(), req.Query)
	writeJSON(w, http.StatusOK, result)
}

type proxyDownloadRequest struct {
	Key      string `json:"s3_key"`
	Filename string `json:"filename"`
}

// handleProxyDownload fetches a stored document through a time-limited
// signed URL and streams it back as an attachment. Upstream failures map to
// the upstream status code.
func (s *Server) handleProxyDownload(w http.ResponseWriter, r *http.Request) {
	var req proxyDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "s3_key is required")
		return
	}

	url, err := s.blobs.PresignedGetURL(r.Context(), req.Key, presignExpiry, req.Filename)
	if err != nil {
		slog.Error("failed to presign download", "key", req.Key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create download link")
		return
	}

	upstream, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create download request")
		return
	}
	resp, err := http.DefaultClient.Do(upstream)
	if err != nil {
		slog.Error("failed to fetch document", "key", req.Key, "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch document")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		writeError(w, resp.StatusCode, "failed to fetch document")
		return
	}

	filename := req.Filename
	if filename == "" {
		filename = path.Base(req.Key)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.Warn("download stream interrupted", "key", req.Key, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
