// Package metadata tracks uploaded documents and their processing state.
package metadata

import (
	"context"
	"errors"
	"time"
)

// Processing states for a document record.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// ErrNotFound is returned when a document record does not exist.
var ErrNotFound = errors.New("document not found")

// DocumentRecord is the persisted metadata for one uploaded document.
type DocumentRecord struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	Filename      string    `bson:"filename" json:"filename"`
	BlobKey       string    `bson:"blob_key" json:"blob_key"`
	FileType      string    `bson:"file_type" json:"file_type"`
	Status        string    `bson:"status" json:"status"`
	UploadTime    time.Time `bson:"upload_time" json:"upload_time"`
	DocumentCount int       `bson:"document_count,omitempty" json:"document_count,omitempty"`
	ChunkCount    int       `bson:"chunk_count,omitempty" json:"chunk_count,omitempty"`
}

// Store persists document records.
type Store interface {
	// Insert stores a new record and returns its generated ID.
	Insert(ctx context.Context, rec *DocumentRecord) (string, error)

	// Get fetches a record by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*DocumentRecord, error)

	// Update applies the given field updates to a record.
	Update(ctx context.Context, id string, fields map[string]interface{}) error

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
