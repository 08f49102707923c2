package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/vedicpedia/ragserver/pkg/blob"
	"github.com/vedicpedia/ragserver/pkg/llms"
	"github.com/vedicpedia/ragserver/pkg/metadata"
	"github.com/vedicpedia/ragserver/pkg/vector"
)

// fakeBlobStore keeps objects in memory and records deletions.
type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	failUp  bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (s *fakeBlobStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if s.failUp {
		return fmt.Errorf("upload refused")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *fakeBlobStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (s *fakeBlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeBlobStore) PresignedGetURL(ctx context.Context, key string, expiry time.Duration, filename string) (string, error) {
	return "https://signed.example.com/" + key, nil
}

func (s *fakeBlobStore) PublicURL(key string) string {
	return "https://docs.example.com/" + key
}

func (s *fakeBlobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

var _ blob.Store = (*fakeBlobStore)(nil)

// fakeMetaStore keeps document records in memory.
type fakeMetaStore struct {
	mu      sync.Mutex
	records map[string]*metadata.DocumentRecord
	nextID  int
	deleted []string
	failIns bool
}

func newFakeMetaStore() *fakeMetaStore {
	return &fakeMetaStore{records: make(map[string]*metadata.DocumentRecord)}
}

func (s *fakeMetaStore) Insert(ctx context.Context, rec *metadata.DocumentRecord) (string, error) {
	if s.failIns {
		return "", fmt.Errorf("insert refused")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("doc%d", s.nextID)
	cp := *rec
	cp.ID = id
	s.records[id] = &cp
	return id, nil
}

func (s *fakeMetaStore) Get(ctx context.Context, id string) (*metadata.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeMetaStore) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return metadata.ErrNotFound
	}
	if v, ok := fields["status"].(string); ok {
		rec.Status = v
	}
	if v, ok := fields["document_count"].(int); ok {
		rec.DocumentCount = v
	}
	if v, ok := fields["chunk_count"].(int); ok {
		rec.ChunkCount = v
	}
	return nil
}

func (s *fakeMetaStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeMetaStore) Close(ctx context.Context) error { return nil }

var _ metadata.Store = (*fakeMetaStore)(nil)

// fakeVectorProvider records upserts and can fail from a given call onward.
type fakeVectorProvider struct {
	mu           sync.Mutex
	stored       map[string]vector.Vector
	upsertCalls  int
	failFromCall int // 0 = never fail
	deletedIDs   []string
	searchResult []vector.Match
	searchErr    error
}

func newFakeVectorProvider() *fakeVectorProvider {
	return &fakeVectorProvider{stored: make(map[string]vector.Vector)}
}

func (p *fakeVectorProvider) EnsureCollection(ctx context.Context, dimension int) error { return nil }

func (p *fakeVectorProvider) Upsert(ctx context.Context, vectors []vector.Vector) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upsertCalls++
	if p.failFromCall > 0 && p.upsertCalls >= p.failFromCall {
		return fmt.Errorf("index write refused")
	}
	for _, v := range vectors {
		p.stored[v.ID] = v
	}
	return nil
}

func (p *fakeVectorProvider) Search(ctx context.Context, query []float32, topK int) ([]vector.Match, error) {
	if p.searchErr != nil {
		return nil, p.searchErr
	}
	if len(p.searchResult) > topK {
		return p.searchResult[:topK], nil
	}
	return p.searchResult, nil
}

func (p *fakeVectorProvider) DeleteByIDs(ctx context.Context, ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		delete(p.stored, id)
	}
	p.deletedIDs = append(p.deletedIDs, ids...)
	return nil
}

func (p *fakeVectorProvider) Close() error { return nil }

func (p *fakeVectorProvider) storedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stored)
}

var _ vector.Provider = (*fakeVectorProvider)(nil)

// fakeEmbedder returns fixed-size deterministic vectors.
type fakeEmbedder struct {
	dim  int
	fail bool
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, fmt.Errorf("embedding refused")
	}
	vec := make([]float32, e.dim)
	for i := range vec {
		vec[i] = float32(len(text)%7) / 7
	}
	return vec, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *fakeEmbedder) Dimension() int { return e.dim }
func (e *fakeEmbedder) Model() string  { return "fake-embedder" }

// fakeLLM returns a fixed response.
type fakeLLM struct {
	resp       llms.Response
	lastPrompt string
}

func (l *fakeLLM) Name() string { return "fake" }

func (l *fakeLLM) Generate(ctx context.Context, prompt string) llms.Response {
	l.lastPrompt = prompt
	return l.resp
}
