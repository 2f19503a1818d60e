package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMConfig_SetDefaults_PicksModelPerProvider(t *testing.T) {
	c := &LLMConfig{Provider: "openai", APIKey: "sk-test"}
	c.SetDefaults()
	assert.Equal(t, "gpt-4o", c.Model)
	assert.Equal(t, 0.7, c.Temperature)
	assert.Equal(t, 4096, c.MaxTokens)
}

func TestLLMConfig_Validate_OllamaDoesNotRequireAPIKey(t *testing.T) {
	c := &LLMConfig{Provider: "ollama"}
	c.SetDefaults()
	assert.NoError(t, c.Validate())
}

func TestLLMConfig_Validate_RejectsMissingAPIKey(t *testing.T) {
	c := &LLMConfig{Provider: "anthropic"}
	c.SetDefaults()
	c.APIKey = ""
	err := c.Validate()
	require.Error(t, err)
}

func TestVectorStoreConfig_DefaultsToChromem(t *testing.T) {
	c := &VectorStoreConfig{}
	c.SetDefaults()
	assert.Equal(t, "chromem", c.Type)
	assert.Equal(t, "default", c.Collection)
	assert.NoError(t, c.Validate())
}

func TestVectorStoreConfig_ManagedBackendRequiresAPIKey(t *testing.T) {
	c := &VectorStoreConfig{Type: "qdrant"}
	c.SetDefaults()
	err := c.Validate()
	require.Error(t, err)
}

func TestStorageConfig_SQLiteDefaultsToLocalFile(t *testing.T) {
	c := &StorageConfig{}
	c.SetDefaults()
	assert.Equal(t, "sqlite", c.Driver)
	assert.Equal(t, "orchestrator.db", c.Database)
	assert.Equal(t, "sqlite3", c.DriverName())
}

func TestStorageConfig_PostgresDSN(t *testing.T) {
	c := &StorageConfig{Driver: "postgres", Host: "db", Database: "orch", Username: "u", Password: "p"}
	c.SetDefaults()
	assert.Equal(t, "postgres", c.DriverName())
	assert.Contains(t, c.DSN(), "host=db")
	assert.Contains(t, c.DSN(), "dbname=orch")
}

func TestStorageConfig_Validate_RejectsBadDriver(t *testing.T) {
	c := &StorageConfig{Driver: "mysql", Database: "x"}
	err := c.Validate()
	require.Error(t, err)
}

func TestServerConfig_SetDefaults(t *testing.T) {
	c := &ServerConfig{}
	c.SetDefaults()
	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, "0.0.0.0", c.Host)
	assert.Equal(t, "0.0.0.0:8080", c.Address())
	assert.NotNil(t, c.CORS)
}

func TestServerConfig_Validate_RejectsTLSWithoutFiles(t *testing.T) {
	enabled := true
	c := &ServerConfig{TLS: &TLSConfig{Enabled: &enabled}}
	c.SetDefaults()
	err := c.Validate()
	require.Error(t, err)
}

func TestToolsConfig_SetDefaults(t *testing.T) {
	c := &ToolsConfig{}
	c.SetDefaults()
	assert.Equal(t, 30, c.WebFetch.TimeoutSeconds)
	assert.Equal(t, 300, c.Shell.TimeoutSeconds)
	assert.Equal(t, 15, c.IMS.TimeoutSeconds)
	assert.Equal(t, 5, c.VectorSearch.DefaultTopK)
}
