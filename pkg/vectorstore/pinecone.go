package vectorstore

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

type pineconeProvider struct {
	client    *pinecone.Client
	indexName string
	embedder  Embedder
}

func newPineconeProvider(cfg Config, embedder Embedder) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vectorstore: pinecone backend requires an api key")
	}
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey, Host: cfg.Host})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: creating pinecone client: %w", err)
	}
	indexName := cfg.Collection
	if indexName == "" {
		indexName = "default"
	}
	return &pineconeProvider{client: client, indexName: indexName, embedder: embedder}, nil
}

func (p *pineconeProvider) indexConn(ctx context.Context) (*pinecone.IndexConnection, error) {
	index, err := p.client.DescribeIndex(ctx, p.indexName)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: describing pinecone index %s: %w", p.indexName, err)
	}
	conn, err := p.client.Index(pinecone.NewIndexConnParams{Host: index.Host})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connecting to pinecone index %s: %w", p.indexName, err)
	}
	return conn, nil
}

func (p *pineconeProvider) Upsert(ctx context.Context, id, content string, metadata map[string]any) error {
	vector, err := p.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("vectorstore: embedding document: %w", err)
	}
	conn, err := p.indexConn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	withContent := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		withContent[k] = v
	}
	withContent["content"] = content

	meta, err := structpb.NewStruct(withContent)
	if err != nil {
		return fmt.Errorf("vectorstore: converting metadata: %w", err)
	}

	_, err = conn.UpsertVectors(ctx, []*pinecone.Vector{{Id: id, Values: vector, Metadata: meta}})
	if err != nil {
		return fmt.Errorf("vectorstore: pinecone upsert: %w", err)
	}
	return nil
}

func (p *pineconeProvider) Query(ctx context.Context, text string, topK int, language string) ([]Hit, error) {
	vector, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embedding query: %w", err)
	}
	conn, err := p.indexConn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: pinecone query: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		if match.Vector == nil {
			continue
		}
		metadata := make(map[string]any)
		content := ""
		if match.Vector.Metadata != nil {
			for k, v := range match.Vector.Metadata.AsMap() {
				if k == "content" {
					if s, ok := v.(string); ok {
						content = s
					}
					continue
				}
				metadata[k] = v
			}
		}
		source := match.Vector.Id
		if s, ok := metadata["source"].(string); ok && s != "" {
			source = s
		}
		hits = append(hits, Hit{Content: content, Source: source, Score: match.Score, Metadata: metadata})
	}
	return hits, nil
}
