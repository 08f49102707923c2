package vector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vedicpedia/ragserver/pkg/config"
)

// PineconeProvider implements Provider on a Pinecone serverless index.
type PineconeProvider struct {
	client    *pinecone.Client
	indexName string
	cloud     string
	region    string

	mu   sync.Mutex
	conn *pinecone.IndexConnection
}

// NewPineconeProvider creates a Pinecone-backed provider.
func NewPineconeProvider(cfg config.PineconeConfig) (*PineconeProvider, error) {
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}
	return &PineconeProvider{
		client:    client,
		indexName: cfg.IndexName,
		cloud:     cfg.Cloud,
		region:    cfg.Region,
	}, nil
}

// EnsureCollection creates the serverless index when missing and waits for
// it to become ready.
func (p *PineconeProvider) EnsureCollection(ctx context.Context, dimension int) error {
	idx, err := p.client.DescribeIndex(ctx, p.indexName)
	if err == nil && idx != nil {
		return nil
	}

	slog.Info("creating pinecone index", "index", p.indexName, "dimension", dimension)

	_, err = p.client.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      p.indexName,
		Dimension: int32(dimension),
		Metric:    pinecone.Cosine,
		Cloud:     pineconeCloud(p.cloud),
		Region:    p.region,
	})
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to create pinecone index: %w", err)
	}

	// Index creation is asynchronous; poll until ready.
	for {
		idx, err := p.client.DescribeIndex(ctx, p.indexName)
		if err == nil && idx != nil && idx.Status != nil && idx.Status.Ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for pinecone index: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
}

func (p *PineconeProvider) connection(ctx context.Context) (*pinecone.IndexConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return p.conn, nil
	}

	idx, err := p.client.DescribeIndex(ctx, p.indexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe pinecone index %q: %w", p.indexName, err)
	}

	conn, err := p.client.Index(pinecone.NewIndexConnParams{Host: idx.Host})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pinecone index: %w", err)
	}
	p.conn = conn
	return conn, nil
}

func (p *PineconeProvider) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	conn, err := p.connection(ctx)
	if err != nil {
		return err
	}

	pcVectors := make([]*pinecone.Vector, 0, len(vectors))
	for _, v := range vectors {
		meta, err := metadataStruct(v.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", v.ID, err)
		}
		pcVectors = append(pcVectors, &pinecone.Vector{
			Id:       v.ID,
			Values:   v.Values,
			Metadata: meta,
		})
	}

	if _, err := conn.UpsertVectors(ctx, pcVectors); err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

func (p *PineconeProvider) Search(ctx context.Context, query []float32, topK int) ([]Match, error) {
	conn, err := p.connection(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          query,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone query failed: %w", err)
	}

	matches := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		matches = append(matches, Match{
			ID:       m.Vector.Id,
			Score:    m.Score,
			Metadata: structMetadata(m.Vector.Metadata),
		})
	}
	return matches, nil
}

func (p *PineconeProvider) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	conn, err := p.connection(ctx)
	if err != nil {
		return err
	}
	if err := conn.DeleteVectorsById(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

func (p *PineconeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

func pineconeCloud(cloud string) pinecone.Cloud {
	switch strings.ToLower(cloud) {
	case "gcp":
		return pinecone.Gcp
	case "azure":
		return pinecone.Azure
	default:
		return pinecone.Aws
	}
}

func metadataStruct(meta map[string]string) (*structpb.Struct, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	fields := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		fields[k] = v
	}
	return structpb.NewStruct(fields)
}

func structMetadata(s *structpb.Struct) map[string]string {
	if s == nil {
		return nil
	}
	meta := make(map[string]string, len(s.Fields))
	for k, v := range s.Fields {
		meta[k] = v.GetStringValue()
	}
	return meta
}

var _ Provider = (*PineconeProvider)(nil)
