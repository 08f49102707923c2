// Package blob stores uploaded source documents in an S3-compatible
// object store and resolves their externally visible URLs.
package blob

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the object storage interface used by the ingestion pipeline.
type Store interface {
	// Upload writes the object and returns nil on success.
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Download streams the object. The caller must close the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// PresignedGetURL returns a time-limited download URL for the object.
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration, filename string) (string, error)

	// PublicURL returns the stable external URL for the object.
	PublicURL(key string) string
}

// ObjectKey builds the storage key for an uploaded file. Each upload gets a
// fresh UUID segment so files with identical names never collide.
func ObjectKey(folder, filename string) string {
	return path.Join(folder, uuid.NewString(), path.Base(filename))
}

// RenderURL fills a URL template containing {bucket} and {key} placeholders.
func RenderURL(template, bucket, key string) string {
	s := strings.ReplaceAll(template, "{bucket}", bucket)
	return strings.ReplaceAll(s, "{key}", key)
}
