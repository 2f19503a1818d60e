package vectorstore

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"
)

// chromemProvider is the embedded/local backend: no network hop, data lives
// in-process and optionally persists to cfg.PersistPath.
type chromemProvider struct {
	collection *chromem.Collection
	embedder   Embedder
}

func newChromemProvider(cfg Config, embedder Embedder) (Provider, error) {
	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
	} else {
		db = chromem.NewDB()
	}
	if err != nil {
		return nil, fmt.Errorf("vectorstore: opening chromem db at %s: %w", cfg.PersistPath, err)
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: creating chromem collection %s: %w", cfg.Collection, err)
	}
	return &chromemProvider{collection: collection, embedder: embedder}, nil
}

func (p *chromemProvider) Upsert(ctx context.Context, id, content string, metadata map[string]any) error {
	strMeta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		strMeta[k] = fmt.Sprintf("%v", v)
	}
	return p.collection.AddDocument(ctx, chromem.Document{ID: id, Content: content, Metadata: strMeta})
}

func (p *chromemProvider) Query(ctx context.Context, text string, topK int, language string) ([]Hit, error) {
	n := topK
	if count := p.collection.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}
	results, err := p.collection.Query(ctx, text, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: chromem query: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		metadata := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		source := r.ID
		if s, ok := r.Metadata["source"]; ok && s != "" {
			source = s
		}
		hits = append(hits, Hit{Content: r.Content, Source: source, Score: r.Similarity, Metadata: metadata})
	}
	return hits, nil
}
