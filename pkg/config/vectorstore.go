package config

import (
	"fmt"

	"github.com/kbagents/orchestrator/pkg/vectorstore"
)

// VectorStoreConfig configures a named vectorstore.Provider backend,
// adapted from hector's VectorStoreConfig (pkg/config/rag.go) onto
// vectorstore.Config's narrower field set (§11.3 names three backends,
// not hector's five).
type VectorStoreConfig struct {
	Type        string `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"description=qdrant/pinecone/chromem"`
	Host        string `yaml:"host,omitempty" json:"host,omitempty"`
	Port        int    `yaml:"port,omitempty" json:"port,omitempty"`
	APIKey      string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	EnableTLS   bool   `yaml:"enable_tls,omitempty" json:"enable_tls,omitempty"`
	Collection  string `yaml:"collection,omitempty" json:"collection,omitempty"`
	PersistPath string `yaml:"persist_path,omitempty" json:"persist_path,omitempty"`
	Compress    bool   `yaml:"compress,omitempty" json:"compress,omitempty"`

	// Embedder names the embedder config (below) used to turn query text
	// into vectors for this store.
	Embedder string `yaml:"embedder,omitempty" json:"embedder,omitempty"`
}

func (c *VectorStoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem"
	}
	if c.Collection == "" {
		c.Collection = "default"
	}
}

func (c *VectorStoreConfig) Validate() error {
	switch c.Type {
	case "qdrant", "pinecone", "chromem":
	default:
		return fmt.Errorf("invalid vector store type %q (valid: qdrant, pinecone, chromem)", c.Type)
	}
	if c.Type != "chromem" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for vector store type %q", c.Type)
	}
	return nil
}

func (c *VectorStoreConfig) ToVectorStoreConfig() vectorstore.Config {
	return vectorstore.Config{
		Type:        c.Type,
		Host:        c.Host,
		Port:        c.Port,
		APIKey:      c.APIKey,
		EnableTLS:   c.EnableTLS,
		Collection:  c.Collection,
		PersistPath: c.PersistPath,
		Compress:    c.Compress,
	}
}

// EmbedderConfig configures the embedding backend a VectorStoreConfig
// defers to, adapted from hector's EmbedderProviderConfig.
type EmbedderConfig struct {
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"description=openai"`
	Model    string `yaml:"model,omitempty" json:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
}

func (c *EmbedderConfig) Validate() error {
	if c.Provider != "openai" {
		return fmt.Errorf("unsupported embedder provider %q", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required for embedder provider %q", c.Provider)
	}
	return nil
}

func (c *EmbedderConfig) ToEmbedderConfig() vectorstore.EmbedderConfig {
	return vectorstore.EmbedderConfig{
		Model:  c.Model,
		APIKey: c.APIKey,
		Host:   c.BaseURL,
	}
}
