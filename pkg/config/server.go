package config

import "fmt"

// ServerConfig configures the HTTP/SSE transport (§11.1), adapted from
// hector's ServerConfig (pkg/config/server.go) trimmed to this spec's
// transport surface: HTTP/SSE only, no grpc/json-rpc duality and no
// A2A-specific Tasks/Sessions/Memory/Checkpoint sections.
type ServerConfig struct {
	Host string      `yaml:"host,omitempty" json:"host,omitempty"`
	Port int         `yaml:"port,omitempty" json:"port,omitempty"`
	TLS  *TLSConfig  `yaml:"tls,omitempty" json:"tls,omitempty"`
	CORS *CORSConfig `yaml:"cors,omitempty" json:"cors,omitempty"`

	// Auth configures bearer-token authentication via lestrrat-go/jwx/v2
	// (§11.1), reusing hector's AuthConfig (auth.go) unchanged.
	Auth *AuthConfig `yaml:"auth,omitempty" json:"auth,omitempty"`

	// SSEKeepAliveSeconds is the interval at which the streaming endpoint
	// emits a comment-only keep-alive event.
	SSEKeepAliveSeconds int `yaml:"sse_keepalive_seconds,omitempty" json:"sse_keepalive_seconds,omitempty"`
}

// TLSConfig configures server-side TLS.
type TLSConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	CertFile string `yaml:"cert_file,omitempty" json:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty" json:"key_file,omitempty"`
}

// CORSConfig configures cross-origin access.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty"`
	AllowedMethods   []string `yaml:"allowed_methods,omitempty" json:"allowed_methods,omitempty"`
	AllowedHeaders   []string `yaml:"allowed_headers,omitempty" json:"allowed_headers,omitempty"`
	AllowCredentials *bool    `yaml:"allow_credentials,omitempty" json:"allow_credentials,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.CORS == nil {
		c.CORS = &CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}
	}
	if c.SSEKeepAliveSeconds == 0 {
		c.SSEKeepAliveSeconds = 15
	}
	if c.Auth != nil {
		c.Auth.SetDefaults()
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.TLS != nil && c.TLS.Enabled != nil && *c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when tls is enabled")
		}
	}
	if c.Auth != nil {
		if err := c.Auth.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Address is the host:port the HTTP server listens on.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
