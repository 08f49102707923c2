// Package vector abstracts the vector index backends used for retrieval.
package vector

import (
	"context"
	"fmt"
)

// Metadata keys stored with every vector. Filename and blob key are
// denormalized so citations never need a metadata store lookup.
const (
	MetaText       = "text"
	MetaDocumentID = "document_id"
	MetaFilename   = "filename"
	MetaBlobKey    = "blob_key"
	MetaPage       = "page"
	MetaChunkIndex = "chunk_index"
)

// Vector is one embedded chunk ready for indexing.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]string
}

// Match is a retrieval hit.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// Provider is the vector index interface used by the pipelines.
type Provider interface {
	// EnsureCollection creates the index/collection if missing, with the
	// given vector dimension. Safe to call concurrently and repeatedly.
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert writes vectors, replacing any with the same ID.
	Upsert(ctx context.Context, vectors []Vector) error

	// Search returns the topK nearest matches for the query vector,
	// ordered by descending similarity.
	Search(ctx context.Context, query []float32, topK int) ([]Match, error)

	// DeleteByIDs removes vectors by ID. Missing IDs are ignored.
	DeleteByIDs(ctx context.Context, ids []string) error

	// Close releases backend resources.
	Close() error
}

// VectorID builds the deterministic index ID for a document chunk, so
// reprocessing a document overwrites its previous vectors.
func VectorID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentID, chunkIndex)
}
