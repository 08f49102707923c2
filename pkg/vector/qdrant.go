package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/vedicpedia/ragserver/pkg/config"
)

// metaVectorID carries the logical vector ID inside the Qdrant payload.
// Qdrant point IDs must be UUIDs or integers, so logical IDs are mapped to
// deterministic UUIDs and preserved here.
const metaVectorID = "vector_id"

// QdrantProvider implements Provider on a Qdrant collection.
type QdrantProvider struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantProvider creates a Qdrant-backed provider.
func NewQdrantProvider(cfg config.QdrantConfig) (*QdrantProvider, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &QdrantProvider{client: client, collection: cfg.Collection}, nil
}

// pointID maps a logical vector ID to a stable Qdrant point UUID.
func pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (p *QdrantProvider) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := p.client.CollectionExists(ctx, p.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: p.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		// A concurrent caller may have created it first.
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (p *QdrantProvider) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(vectors))
	for _, v := range vectors {
		payload := make(map[string]*qdrant.Value, len(v.Metadata)+1)
		for key, value := range v.Metadata {
			val, err := qdrant.NewValue(value)
			if err != nil {
				return fmt.Errorf("failed to convert metadata value for key %s: %w", key, err)
			}
			payload[key] = val
		}
		idVal, err := qdrant.NewValue(v.ID)
		if err != nil {
			return fmt.Errorf("failed to convert vector id: %w", err)
		}
		payload[metaVectorID] = idVal

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(v.ID)),
			Vectors: qdrant.NewVectors(v.Values...),
			Payload: payload,
		})
	}

	if _, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: p.collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

func (p *QdrantProvider) Search(ctx context.Context, query []float32, topK int) ([]Match, error) {
	resp, err := p.client.GetPointsClient().Search(ctx, &qdrant.SearchPoints{
		CollectionName: p.collection,
		Vector:         query,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, point := range resp.Result {
		meta := make(map[string]string, len(point.Payload))
		for key, value := range point.Payload {
			if sv, ok := value.Kind.(*qdrant.Value_StringValue); ok {
				meta[key] = sv.StringValue
			}
		}

		id := meta[metaVectorID]
		if id == "" && point.Id != nil {
			if u, ok := point.Id.PointIdOptions.(*qdrant.PointId_Uuid); ok {
				id = u.Uuid
			}
		}
		delete(meta, metaVectorID)

		matches = append(matches, Match{
			ID:       id,
			Score:    point.Score,
			Metadata: meta,
		})
	}
	return matches, nil
}

func (p *QdrantProvider) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Uuid{Uuid: pointID(id)},
		})
	}

	_, err := p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: p.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

var _ Provider = (*QdrantProvider)(nil)
