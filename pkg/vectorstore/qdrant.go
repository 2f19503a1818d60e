package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

type qdrantProvider struct {
	client     *qdrant.Client
	collection string
	embedder   Embedder
}

func newQdrantProvider(cfg Config, embedder Embedder) (Provider, error) {
	port := cfg.Port
	if port == 0 {
		port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.EnableTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: creating qdrant client for %s:%d: %w", cfg.Host, port, err)
	}
	return &qdrantProvider{client: client, collection: cfg.Collection, embedder: embedder}, nil
}

func (p *qdrantProvider) ensureCollection(ctx context.Context, vectorSize uint64) error {
	exists, err := p.client.CollectionExists(ctx, p.collection)
	if err != nil {
		return fmt.Errorf("vectorstore: qdrant collection check failed: %w", err)
	}
	if exists {
		return nil
	}
	return p.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: p.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (p *qdrantProvider) Upsert(ctx context.Context, id, content string, metadata map[string]any) error {
	vector, err := p.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("vectorstore: embedding document: %w", err)
	}
	if err := p.ensureCollection(ctx, uint64(len(vector))); err != nil {
		return err
	}

	payload := make(map[string]*qdrant.Value, len(metadata)+1)
	payload["content"] = qdrant.NewValueString(content)
	for k, v := range metadata {
		val, err := qdrant.NewValue(v)
		if err != nil {
			continue
		}
		payload[k] = val
	}

	_, err = p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: p.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(vector...),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: qdrant upsert: %w", err)
	}
	return nil
}

func (p *qdrantProvider) Query(ctx context.Context, text string, topK int, language string) ([]Hit, error) {
	vector, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embedding query: %w", err)
	}

	result, err := p.client.GetPointsClient().Search(ctx, &qdrant.SearchPoints{
		CollectionName: p.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: qdrant search: %w", err)
	}

	hits := make([]Hit, 0, len(result.Result))
	for _, point := range result.Result {
		metadata := make(map[string]any)
		content := ""
		for key, value := range point.Payload {
			switch v := value.Kind.(type) {
			case *qdrant.Value_StringValue:
				if key == "content" {
					content = v.StringValue
				} else {
					metadata[key] = v.StringValue
				}
			case *qdrant.Value_IntegerValue:
				metadata[key] = v.IntegerValue
			case *qdrant.Value_DoubleValue:
				metadata[key] = v.DoubleValue
			case *qdrant.Value_BoolValue:
				metadata[key] = v.BoolValue
			case *qdrant.Value_ListValue:
				items := make([]interface{}, 0, len(v.ListValue.GetValues()))
				for _, item := range v.ListValue.GetValues() {
					if s, ok := item.GetKind().(*qdrant.Value_StringValue); ok {
						items = append(items, s.StringValue)
					}
				}
				metadata[key] = items
			}
		}
		hits = append(hits, Hit{
			Content:  content,
			Source:   sourceFromMetadata(point.Id, metadata),
			Score:    point.Score,
			Metadata: metadata,
		})
	}
	return hits, nil
}

func sourceFromMetadata(id *qdrant.PointId, metadata map[string]any) string {
	if s, ok := metadata["source"].(string); ok && s != "" {
		return s
	}
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	}
	return ""
}
