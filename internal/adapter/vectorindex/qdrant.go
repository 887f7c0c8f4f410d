// Package vectorindex adapts Qdrant to the query core's
// ports.VectorIndex interface. Adapted from internal/kb/vectorstore.go
// (VectorStore), trimmed to the read-side Search contract the core
// depends on; collection auto-creation and the chunk-ID-to-UUID
// scheme are kept since Qdrant requires UUID point IDs.
package vectorindex

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"

	"github.com/hybridrag/queryengine/internal/query/model"
)

const (
	DefaultHost           = "localhost"
	DefaultPort           = 6334
	DefaultCollectionName = "queryengine_kb"
	DefaultDimension      = 768
)

var chunkIDNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// chunkIDToUUID converts a chunk ID string to a deterministic UUIDv5 so
// string chunk IDs can be used internally while Qdrant requires UUIDs.
func chunkIDToUUID(chunkID string) string {
	hash := sha256.Sum256([]byte(chunkID))
	return uuid.NewSHA1(chunkIDNamespace, hash[:]).String()
}

// Config configures the Qdrant-backed vector index.
type Config struct {
	Host           string
	Port           int
	CollectionName string
	Dimension      int
}

// Adapter performs nearest-neighbour search over a Qdrant collection.
type Adapter struct {
	client         *qdrant.Client
	collectionName string
	dimension      uint64
	logger         zerolog.Logger

	mu    sync.Mutex
	ready bool
}

// New builds an Adapter.
func New(cfg Config, logger zerolog.Logger) (*Adapter, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.CollectionName == "" {
		cfg.CollectionName = DefaultCollectionName
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: cfg.Host, Port: cfg.Port})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Adapter{
		client:         client,
		collectionName: cfg.CollectionName,
		dimension:      uint64(cfg.Dimension),
		logger:         logger.With().Str("component", "vectorindex").Logger(),
	}, nil
}

func (a *Adapter) ensureCollection(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return nil
	}

	collections, err := a.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, c := range collections {
		if c == a.collectionName {
			a.ready = true
			return nil
		}
	}

	a.logger.Info().Str("collection", a.collectionName).Msg("creating collection")
	err = a.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: a.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     a.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	a.ready = true
	return nil
}

// Upsert stores a chunk's embedding and retrievable text. Exercised by
// indexing tooling outside the query path proper.
func (a *Adapter) Upsert(ctx context.Context, source model.Source, vector []float32) error {
	if err := a.ensureCollection(ctx); err != nil {
		return err
	}

	payload := map[string]any{
		"chunk_id":      source.ChunkID,
		"document_id":   source.DocumentID,
		"document_name": source.DocumentName,
		"text":          source.Text,
	}
	for k, v := range source.Metadata {
		payload[k] = v
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(chunkIDToUUID(source.ChunkID)),
		Vectors: qdrant.NewVectors(vector...),
		Payload: qdrant.NewValueMap(payload),
	}

	_, err := a.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: a.collectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

// Search implements ports.VectorIndex.
func (a *Adapter) Search(ctx context.Context, vector []float32, topK int) ([]model.Source, error) {
	if err := a.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}

	result, err := a.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: a.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	sources := make([]model.Source, 0, len(result))
	for _, point := range result {
		src := model.Source{Score: float64(point.Score)}
		payload := point.Payload
		if payload == nil {
			sources = append(sources, src)
			continue
		}
		if v, ok := payload["chunk_id"]; ok {
			src.ChunkID = v.GetStringValue()
		}
		if v, ok := payload["document_id"]; ok {
			src.DocumentID = v.GetStringValue()
		}
		if v, ok := payload["document_name"]; ok {
			src.DocumentName = v.GetStringValue()
		}
		if v, ok := payload["text"]; ok {
			src.Text = v.GetStringValue()
		}
		sources = append(sources, src)
	}
	return sources, nil
}
