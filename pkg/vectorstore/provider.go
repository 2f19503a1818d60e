// Package vectorstore backs the Vector Search and Graph Query tools with a
// single Provider abstraction over multiple vector-database backends.
package vectorstore

import (
	"context"
	"fmt"
)

// Hit is one scored result out of a vector search.
type Hit struct {
	Content  string
	Source   string
	Score    float32
	Metadata map[string]any
}

// Provider answers vector-similarity queries over a fixed collection.
// Query takes raw text rather than a vector so the caller never needs to
// know which embedding model a given backend was built with.
type Provider interface {
	Query(ctx context.Context, text string, topK int, language string) ([]Hit, error)
	Upsert(ctx context.Context, id, content string, metadata map[string]any) error
}

// Embedder turns text into the float32 vector a Provider's backend indexes
// on. Each backend is handed one at construction time.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config selects and configures one backend. Field names and defaulting
// mirror hector's config.VectorStoreConfig.
type Config struct {
	Type        string // "qdrant", "pinecone", "chromem"
	Host        string
	Port        int
	APIKey      string
	EnableTLS   bool
	Collection  string
	PersistPath string // chromem only
	Compress    bool   // chromem only
}

// New constructs the Provider named by cfg.Type.
func New(cfg Config, embedder Embedder) (Provider, error) {
	if cfg.Collection == "" {
		cfg.Collection = "default"
	}
	switch cfg.Type {
	case "qdrant":
		return newQdrantProvider(cfg, embedder)
	case "pinecone":
		return newPineconeProvider(cfg, embedder)
	case "chromem", "":
		return newChromemProvider(cfg, embedder)
	default:
		return nil, fmt.Errorf("vectorstore: unsupported backend type %q", cfg.Type)
	}
}
