// Package pipeline implements document ingestion and query answering.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vedicpedia/ragserver/pkg/blob"
	"github.com/vedicpedia/ragserver/pkg/chunker"
	"github.com/vedicpedia/ragserver/pkg/config"
	"github.com/vedicpedia/ragserver/pkg/embedder"
	"github.com/vedicpedia/ragserver/pkg/extract"
	"github.com/vedicpedia/ragserver/pkg/metadata"
	"github.com/vedicpedia/ragserver/pkg/metrics"
	"github.com/vedicpedia/ragserver/pkg/vector"
)

// Error strings surfaced in per-file results.
const (
	errUnsupportedFileType = "Unsupported or invalid file type"
	errLoadDocuments       = "Failed to load documents"
	errProcessDocuments    = "Failed to process documents"
)

// acceptedMimeTypes are the content types ingestion allows. Validation is
// content-based; the filename extension is not trusted.
var acceptedMimeTypes = []string{"application/pdf", "text/plain"}

// extendedMimeTypes are additionally accepted when ingest.extended_types is on.
var extendedMimeTypes = []string{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// FileInput is one uploaded file handed to the ingestion pipeline.
type FileInput struct {
	Filename string
	Content  []byte
}

// FileResult reports the outcome of processing one file.
type FileResult struct {
	Success       bool   `json:"success"`
	DocumentID    string `json:"document_id,omitempty"`
	BlobKey       string `json:"s3_key,omitempty"`
	Vectorized    bool   `json:"vectorized"`
	DocumentCount int    `json:"document_count,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Ingestion runs the document processing pipeline: validate, stage, upload,
// record, extract, chunk, embed, index, finalize.
type Ingestion struct {
	blobs     blob.Store
	meta      metadata.Store
	vectors   vector.Provider
	embedder  embedder.Embedder
	extractor *extract.Registry
	splitter  *chunker.RecursiveChunker
	cfg       config.IngestConfig
	accepted  []string
	folder    string
}

// NewIngestion wires the ingestion pipeline.
func NewIngestion(
	blobs blob.Store,
	meta metadata.Store,
	vectors vector.Provider,
	emb embedder.Embedder,
	extractor *extract.Registry,
	cfg config.IngestConfig,
	folder string,
) *Ingestion {
	accepted := acceptedMimeTypes
	if cfg.ExtendedTypes {
		accepted = append(append([]string{}, accepted...), extendedMimeTypes...)
	}
	return &Ingestion{
		blobs:     blobs,
		meta:      meta,
		vectors:   vectors,
		embedder:  emb,
		extractor: extractor,
		splitter:  chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		cfg:       cfg,
		accepted:  accepted,
		folder:    folder,
	}
}

// Bootstrap ensures the vector collection exists, discovering the embedding
// dimension from the model when needed.
func (p *Ingestion) Bootstrap(ctx context.Context) error {
	dim, err := embedder.DiscoverDimension(ctx, p.embedder)
	if err != nil {
		return fmt.Errorf("failed to discover embedding dimension: %w", err)
	}
	slog.Info("embedding model dimension discovered", "model", p.embedder.Model(), "dimension", dim)

	if err := p.vectors.EnsureCollection(ctx, dim); err != nil {
		return fmt.Errorf("failed to ensure vector collection: %w", err)
	}
	return nil
}

// ProcessFiles processes files concurrently, bounded by the configured
// worker count. Each file succeeds or fails independently; results are
// returned in input order.
func (p *Ingestion) ProcessFiles(ctx context.Context, files []FileInput) []FileResult {
	results := make([]FileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i, f := range files {
		g.Go(func() error {
			results[i] = p.ProcessFile(gctx, f)
			return nil
		})
	}
	// Workers never return errors; per-file failures live in results.
	_ = g.Wait()

	return results
}

// ProcessFile runs the full pipeline for one file. Failures after the blob
// upload trigger compensation: the blob, the metadata record and any written
// vectors are removed, best effort.
func (p *Ingestion) ProcessFile(ctx context.Context, f FileInput) FileResult {
	start := time.Now()
	log := slog.With("filename", f.Filename)

	mime := mimetype.Detect(f.Content)
	if !p.mimeAccepted(mime) {
		log.Warn("rejected upload with unsupported content type", "mime", mime.String())
		metrics.DocumentsProcessed.WithLabelValues(metadata.StatusFailed).Inc()
		return FileResult{Success: false, Error: errUnsupportedFileType}
	}

	stagedPath, err := p.stage(f)
	if err != nil {
		log.Error("failed to stage file", "error", err)
		metrics.DocumentsProcessed.WithLabelValues(metadata.StatusFailed).Inc()
		return FileResult{Success: false, Error: err.Error()}
	}
	defer func() {
		if err := os.Remove(stagedPath); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove staged file", "path", stagedPath, "error", err)
		}
	}()

	key := blob.ObjectKey(p.folder, f.Filename)
	if err := p.blobs.Upload(ctx, key, bytes.NewReader(f.Content), int64(len(f.Content)), mime.String()); err != nil {
		log.Error("failed to upload file", "error", err)
		metrics.DocumentsProcessed.WithLabelValues(metadata.StatusFailed).Inc()
		return FileResult{Success: false, Error: err.Error()}
	}

	docID, err := p.meta.Insert(ctx, &metadata.DocumentRecord{
		Filename:   f.Filename,
		BlobKey:    key,
		FileType:   mime.String(),
		Status:     metadata.StatusPending,
		UploadTime: time.Now().UTC(),
	})
	if err != nil {
		log.Error("failed to insert document record", "error", err)
		p.deleteBlobQuietly(ctx, key)
		metrics.DocumentsProcessed.WithLabelValues(metadata.StatusFailed).Inc()
		return FileResult{Success: false, Error: err.Error()}
	}
	log = log.With("document_id", docID)

	segments, err := p.extractor.Extract(ctx, stagedPath, mime.String())
	if err != nil {
		log.Warn("no documents loaded from file", "error", err)
		p.compensate(ctx, docID, key, nil)
		metrics.DocumentsProcessed.WithLabelValues(metadata.StatusFailed).Inc()
		return FileResult{
			Success:    false,
			DocumentID: docID,
			BlobKey:    key,
			Vectorized: false,
			Error:      errLoadDocuments,
		}
	}

	vectors, err := p.buildVectors(ctx, segments, docID, f.Filename, key)
	if err == nil {
		err = p.upsertAll(ctx, vectors)
	}
	if err != nil {
		log.Error("failed to index document", "error", err)
		p.compensate(ctx, docID, key, vectorIDs(vectors))
		metrics.DocumentsProcessed.WithLabelValues(metadata.StatusFailed).Inc()
		return FileResult{
			Success:    false,
			DocumentID: docID,
			BlobKey:    key,
			Vectorized: false,
			Error:      errProcessDocuments,
		}
	}

	if err := p.meta.Update(ctx, docID, map[string]interface{}{
		"status":         metadata.StatusProcessed,
		"document_count": len(segments),
		"chunk_count":    len(vectors),
	}); err != nil {
		log.Error("failed to finalize document record", "error", err)
		p.compensate(ctx, docID, key, vectorIDs(vectors))
		metrics.DocumentsProcessed.WithLabelValues(metadata.StatusFailed).Inc()
		return FileResult{
			Success:    false,
			DocumentID: docID,
			BlobKey:    key,
			Vectorized: false,
			Error:      err.Error(),
		}
	}

	metrics.DocumentsProcessed.WithLabelValues(metadata.StatusProcessed).Inc()
	metrics.ChunksIndexed.Add(float64(len(vectors)))
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	log.Info("document processed",
		"segments", len(segments), "chunks", len(vectors), "elapsed", time.Since(start))

	return FileResult{
		Success:       true,
		DocumentID:    docID,
		BlobKey:       key,
		Vectorized:    true,
		DocumentCount: len(segments),
	}
}

// stage writes the upload to the staging directory under a unique name.
func (p *Ingestion) stage(f FileInput) (string, error) {
	name := fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(f.Filename))
	path := filepath.Join(p.cfg.StagingDir, name)
	if err := os.WriteFile(path, f.Content, 0o600); err != nil {
		return "", fmt.Errorf("failed to stage file: %w", err)
	}
	return path, nil
}

// buildVectors chunks the segments and embeds every chunk. Chunk indexes are
// global across segments so vector IDs stay deterministic per document. The
// filename and blob key are denormalized into every vector so the query side
// can cite documents from chunk metadata alone.
func (p *Ingestion) buildVectors(ctx context.Context, segments []extract.Segment, docID, filename, blobKey string) ([]vector.Vector, error) {
	type pending struct {
		text string
		page int
	}

	var chunks []pending
	for _, seg := range segments {
		for _, text := range p.splitter.Split(seg.Text) {
			chunks = append(chunks, pending{text: text, page: seg.Page})
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document produced no chunks")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.text
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	vectors := make([]vector.Vector, len(chunks))
	for i, c := range chunks {
		vectors[i] = vector.Vector{
			ID:     vector.VectorID(docID, i),
			Values: embeddings[i],
			Metadata: map[string]string{
				vector.MetaText:       c.text,
				vector.MetaDocumentID: docID,
				vector.MetaFilename:   filename,
				vector.MetaBlobKey:    blobKey,
				vector.MetaPage:       strconv.Itoa(c.page),
				vector.MetaChunkIndex: strconv.Itoa(i),
			},
		}
	}
	return vectors, nil
}

// upsertAll writes vectors in concurrent batches. Indexing is all or
// nothing: any batch failure fails the whole document.
func (p *Ingestion) upsertAll(ctx context.Context, vectors []vector.Vector) error {
	batchSize := p.cfg.UpsertBatchSize
	if batchSize <= 0 {
		batchSize = 200
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for start := 0; start < len(vectors); start += batchSize {
		end := start + batchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		batch := vectors[start:end]
		g.Go(func() error {
			return p.vectors.Upsert(gctx, batch)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("batch upsert failed: %w", err)
	}
	return nil
}

// compensate undoes partial ingestion state. All deletions are best effort:
// failures are logged and swallowed so the original error stays visible.
func (p *Ingestion) compensate(ctx context.Context, docID, key string, ids []string) {
	if len(ids) > 0 {
		if err := p.vectors.DeleteByIDs(ctx, ids); err != nil {
			slog.Error("cleanup: failed to delete vectors", "document_id", docID, "error", err)
		}
	}
	p.deleteBlobQuietly(ctx, key)
	if err := p.meta.Delete(ctx, docID); err != nil {
		slog.Error("cleanup: failed to delete document record", "document_id", docID, "error", err)
	}
}

func (p *Ingestion) deleteBlobQuietly(ctx context.Context, key string) {
	if err := p.blobs.Delete(ctx, key); err != nil {
		slog.Error("cleanup: failed to delete blob", "key", key, "error", err)
	}
}

func vectorIDs(vectors []vector.Vector) []string {
	ids := make([]string, len(vectors))
	for i, v := range vectors {
		ids[i] = v.ID
	}
	return ids
}

func (p *Ingestion) mimeAccepted(mime *mimetype.MIME) bool {
	for _, accepted := range p.accepted {
		if mime.Is(accepted) {
			return true
		}
	}
	return false
}
