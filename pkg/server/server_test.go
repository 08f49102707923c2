package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vedicpedia/ragserver/pkg/blob"
	"github.com/vedicpedia/ragserver/pkg/config"
	"github.com/vedicpedia/ragserver/pkg/extract"
	"github.com/vedicpedia/ragserver/pkg/llms"
	"github.com/vedicpedia/ragserver/pkg/metadata"
	"github.com/vedicpedia/ragserver/pkg/pipeline"
	"github.com/vedicpedia/ragserver/pkg/vector"
)

// In-memory stubs for wiring the pipelines under test.

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	// presignBase, when set, points presigned URLs at a test server.
	presignBase string
}

func (s *memBlobs) Upload(ctx context.Context, key string, r io.Reader, size int64, ct string) error {
	data, _ := io.ReadAll(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memBlobs) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.objects[key])), nil
}

func (s *memBlobs) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memBlobs) PresignedGetURL(ctx context.Context, key string, expiry time.Duration, filename string) (string, error) {
	base := s.presignBase
	if base == "" {
		base = "https://signed.example.com"
	}
	return base + "/" + key, nil
}

func (s *memBlobs) PublicURL(key string) string {
	return "https://docs.example.com/" + key
}

type memMeta struct {
	mu      sync.Mutex
	records map[string]*metadata.DocumentRecord
	nextID  int
}

func (s *memMeta) Insert(ctx context.Context, rec *metadata.DocumentRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("doc%d", s.nextID)
	cp := *rec
	cp.ID = id
	s.records[id] = &cp
	return id, nil
}

func (s *memMeta) Get(ctx context.Context, id string) (*metadata.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memMeta) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	return nil
}

func (s *memMeta) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *memMeta) Close(ctx context.Context) error { return nil }

type memVectors struct {
	matches []vector.Match
}

func (p *memVectors) EnsureCollection(ctx context.Context, dim int) error        { return nil }
func (p *memVectors) Upsert(ctx context.Context, vectors []vector.Vector) error  { return nil }
func (p *memVectors) DeleteByIDs(ctx context.Context, ids []string) error        { return nil }
func (p *memVectors) Close() error                                               { return nil }

func (p *memVectors) Search(ctx context.Context, query []float32, topK int) ([]vector.Match, error) {
	return p.matches, nil
}

type memEmbedder struct{}

func (memEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (memEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (memEmbedder) Dimension() int { return 3 }
func (memEmbedder) Model() string  { return "mem" }

type memLLM struct{ text string }

func (l memLLM) Name() string { return "mem" }
func (l memLLM) Generate(ctx context.Context, prompt string) llms.Response {
	return llms.Response{Text: l.text}
}

func newTestServer(matches []vector.Match) (*Server, *memBlobs) {
	blobs := &memBlobs{objects: make(map[string][]byte)}
	meta := &memMeta{records: make(map[string]*metadata.DocumentRecord)}
	vectors := &memVectors{matches: matches}

	ingestCfg := config.IngestConfig{}
	ingestCfg.SetDefaults()
	queryCfg := config.QueryConfig{}
	queryCfg.SetDefaults()
	serverCfg := config.ServerConfig{}
	serverCfg.SetDefaults()

	ingestion := pipeline.NewIngestion(blobs, meta, vectors, memEmbedder{}, extract.NewRegistry(), ingestCfg, "uploads")
	query := pipeline.NewQuery(vectors, memEmbedder{}, memLLM{text: "an answer"}, blobs, nil, queryCfg)

	return New(serverCfg, ingestion, query, blobs), blobs
}

var _ blob.Store = (*memBlobs)(nil)
var _ metadata.Store = (*memMeta)(nil)
var _ vector.Provider = (*memVectors)(nil)

func TestRootAndHealth(t *testing.T) {
	srv, _ := newTestServer(nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["message"] != "Welcome to Vedic Pedia AI API" {
		t.Errorf("unexpected welcome message %q", body["message"])
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected health status %d", rec.Code)
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("unexpected health body %v", body)
	}
}

func multipartUpload(t *testing.T, filenames map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range filenames {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(content)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestProcessPDFsRejectsNonPDFExtension(t *testing.T) {
	srv, _ := newTestServer(nil)

	body, contentType := multipartUpload(t, map[string][]byte{"notes.docx": []byte("content")})
	req := httptest.NewRequest(http.MethodPost, "/process-pdfs", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["detail"] != "File notes.docx is not a PDF" {
		t.Errorf("unexpected detail: %q", resp["detail"])
	}
}

func TestProcessPDFsNoFiles(t *testing.T) {
	srv, _ := newTestServer(nil)

	body, contentType := multipartUpload(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/process-pdfs", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestProcessPDFsPerFileResults(t *testing.T) {
	srv, _ := newTestServer(nil)

	// A .pdf name with non-PDF bytes passes the extension pre-check but
	// fails content validation inside the pipeline.
	body, contentType := multipartUpload(t, map[string][]byte{
		"fake.pdf": {0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'},
	})
	req := httptest.NewRequest(http.MethodPost, "/process-pdfs", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with per-file results, got %d", rec.Code)
	}

	var results []pipeline.FileResult
	if err := json.NewDecoder(rec.Body).Decode(&results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Success {
		t.Error("expected failure for disguised non-PDF content")
	}
	if results[0].Error != "Unsupported or invalid file type" {
		t.Errorf("unexpected error: %q", results[0].Error)
	}
}

func TestQueryEndpoint(t *testing.T) {
	matches := []vector.Match{{
		ID:    "doc1_0",
		Score: 0.9,
		Metadata: map[string]string{
			vector.MetaText:       "indexed content",
			vector.MetaDocumentID: "doc1",
			vector.MetaFilename:   "paper.pdf",
			vector.MetaBlobKey:    "uploads/abc/paper.pdf",
		},
	}}
	srv, _ := newTestServer(matches)

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"what is indexed?"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var result pipeline.QueryResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Errorf("expected success, got %+v", result)
	}
	if result.Answer != "an answer" {
		t.Errorf("unexpected answer: %q", result.Answer)
	}
	if len(result.Sources) != 1 || result.Sources[0].DocumentID != "doc1" {
		t.Errorf("unexpected sources: %+v", result.Sources)
	}
	if result.Sources[0].BlobURL != "https://docs.example.com/uploads/abc/paper.pdf" {
		t.Errorf("unexpected source url: %q", result.Sources[0].BlobURL)
	}
}

func TestQueryEndpointEmptyQuery(t *testing.T) {
	srv, _ := newTestServer(nil)

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"  "}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty query, got %d", rec.Code)
	}
}

func TestProxyDownloadStreams(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/uploads/a/f.pdf" {
			t.Errorf("unexpected upstream path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-bytes"))
	}))
	defer upstream.Close()

	srv, blobs := newTestServer(nil)
	blobs.presignBase = upstream.URL

	req := httptest.NewRequest(http.MethodPost, "/api/proxy/download",
		strings.NewReader(`{"s3_key":"uploads/a/f.pdf","filename":"f.pdf"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="f.pdf"` {
		t.Errorf("unexpected content disposition %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Errorf("unexpected content type %q", got)
	}
	if rec.Body.String() != "%PDF-bytes" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestProxyDownloadUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer upstream.Close()

	srv, blobs := newTestServer(nil)
	blobs.presignBase = upstream.URL

	req := httptest.NewRequest(http.MethodPost, "/api/proxy/download",
		strings.NewReader(`{"s3_key":"uploads/gone.pdf","filename":"gone.pdf"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected upstream 404 to propagate, got %d", rec.Code)
	}
}

func TestProxyDownloadMissingKey(t *testing.T) {
	srv, _ := newTestServer(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/proxy/download", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
