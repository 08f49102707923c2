package vector

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/vedicpedia/ragserver/pkg/config"
)

// ChromemProvider implements Provider on the embedded chromem-go store.
// Useful for local development and tests, no external service needed.
type ChromemProvider struct {
	db         *chromem.DB
	collection string

	mu  sync.Mutex
	col *chromem.Collection
}

// NewChromemProvider creates an embedded vector store. With an empty path
// the store is purely in-memory.
func NewChromemProvider(cfg config.ChromemConfig) (*ChromemProvider, error) {
	var db *chromem.DB
	var err error
	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}
	return &ChromemProvider{db: db, collection: cfg.Collection}, nil
}

// noEmbed guards against chromem computing embeddings itself; all vectors
// arrive precomputed.
func noEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embeddings must be precomputed")
}

func (p *ChromemProvider) EnsureCollection(ctx context.Context, dimension int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.col != nil {
		return nil
	}
	col, err := p.db.GetOrCreateCollection(p.collection, nil, noEmbed)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	p.col = col
	return nil
}

func (p *ChromemProvider) getCollection(ctx context.Context) (*chromem.Collection, error) {
	if err := p.EnsureCollection(ctx, 0); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.col, nil
}

func (p *ChromemProvider) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	col, err := p.getCollection(ctx)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(vectors))
	for _, v := range vectors {
		content := v.Metadata[MetaText]
		if content == "" {
			content = v.ID
		}
		docs = append(docs, chromem.Document{
			ID:        v.ID,
			Content:   content,
			Metadata:  v.Metadata,
			Embedding: v.Values,
		})
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

func (p *ChromemProvider) Search(ctx context.Context, query []float32, topK int) ([]Match, error) {
	col, err := p.getCollection(ctx)
	if err != nil {
		return nil, err
	}

	// chromem rejects queries asking for more results than stored documents.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := col.QueryEmbedding(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		})
	}
	return matches, nil
}

func (p *ChromemProvider) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := p.getCollection(ctx)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func (p *ChromemProvider) Close() error {
	return nil
}

var _ Provider = (*ChromemProvider)(nil)
