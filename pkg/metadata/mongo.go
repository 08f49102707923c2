package metadata

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vedicpedia/ragserver/pkg/config"
)

// MongoStore implements Store backed by a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg config.MetadataConfig) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Timeout)*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// mongoDoc mirrors DocumentRecord with a native ObjectID primary key.
type mongoDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Filename      string             `bson:"filename"`
	BlobKey       string             `bson:"blob_key"`
	FileType      string             `bson:"file_type"`
	Status        string             `bson:"status"`
	UploadTime    primitive.DateTime `bson:"upload_time"`
	DocumentCount int                `bson:"document_count,omitempty"`
	ChunkCount    int                `bson:"chunk_count,omitempty"`
}

func (s *MongoStore) Insert(ctx context.Context, rec *DocumentRecord) (string, error) {
	doc := mongoDoc{
		Filename:      rec.Filename,
		BlobKey:       rec.BlobKey,
		FileType:      rec.FileType,
		Status:        rec.Status,
		UploadTime:    primitive.NewDateTimeFromTime(rec.UploadTime),
		DocumentCount: rec.DocumentCount,
		ChunkCount:    rec.ChunkCount,
	}

	res, err := s.collection.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to insert document record: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*DocumentRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid document id %q: %w", id, err)
	}

	var doc mongoDoc
	err = s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document record: %w", err)
	}

	return &DocumentRecord{
		ID:            doc.ID.Hex(),
		Filename:      doc.Filename,
		BlobKey:       doc.BlobKey,
		FileType:      doc.FileType,
		Status:        doc.Status,
		UploadTime:    doc.UploadTime.Time(),
		DocumentCount: doc.DocumentCount,
		ChunkCount:    doc.ChunkCount,
	}, nil
}

func (s *MongoStore) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", id, err)
	}

	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}

	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update document record: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", id, err)
	}
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
