package config

import "time"

// ToolsConfig configures the tool implementations in pkg/tools, replacing
// hector's arbitrary named-tools map (pkg/config/tool.go) with a fixed set
// matching the External Interfaces table (§6): every agent kind draws from
// this same set via the Tool Registry, so there is nothing left to name.
type ToolsConfig struct {
	WebFetch      WebFetchToolConfig      `yaml:"web_fetch,omitempty" json:"web_fetch,omitempty"`
	Shell         ShellToolConfig         `yaml:"shell,omitempty" json:"shell,omitempty"`
	IMS           IMSToolConfig           `yaml:"ims,omitempty" json:"ims,omitempty"`
	DocumentStore DocumentStoreToolConfig `yaml:"document_store,omitempty" json:"document_store,omitempty"`
	VectorSearch  SearchToolDefaults      `yaml:"vector_search,omitempty" json:"vector_search,omitempty"`
	GraphQuery    SearchToolDefaults      `yaml:"graph_query,omitempty" json:"graph_query,omitempty"`
	MCP           []MCPToolConfig         `yaml:"mcp,omitempty" json:"mcp,omitempty"`
	ShellPlugin   ShellPluginConfig       `yaml:"shell_plugin,omitempty" json:"shell_plugin,omitempty"`
}

func (c *ToolsConfig) SetDefaults() {
	c.WebFetch.SetDefaults()
	c.Shell.SetDefaults()
	c.IMS.SetDefaults()
	c.VectorSearch.SetDefaults()
	c.GraphQuery.SetDefaults()
	for i := range c.MCP {
		c.MCP[i].SetDefaults()
	}
	c.ShellPlugin.SetDefaults()
}

// MCPToolConfig names one external MCP (Model Context Protocol) server whose
// tools are proxied into the Tool Registry under a single registry entry,
// for tools this deployment does not implement in-process.
type MCPToolConfig struct {
	Name           string   `yaml:"name" json:"name"`
	Command        string   `yaml:"command" json:"command"`
	Args           []string `yaml:"args,omitempty" json:"args,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

func (c *MCPToolConfig) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
}

func (c *MCPToolConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ShellPluginConfig swaps the in-process shell tool for an out-of-process
// executor reached over go-plugin's net/rpc transport, for deployments that
// want to run the Shell/Code tool family in a separately relinkable,
// sandboxable binary.
type ShellPluginConfig struct {
	Enabled        bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Path           string `yaml:"path,omitempty" json:"path,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

func (c *ShellPluginConfig) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 300
	}
}

func (c *ShellPluginConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SearchToolDefaults caps how many hits vector_search/graph_query return
// by default.
type SearchToolDefaults struct {
	DefaultTopK int `yaml:"default_top_k,omitempty" json:"default_top_k,omitempty"`
}

func (c *SearchToolDefaults) SetDefaults() {
	if c.DefaultTopK == 0 {
		c.DefaultTopK = 5
	}
}

// WebFetchToolConfig restricts which URLs web_fetch may reach.
type WebFetchToolConfig struct {
	TimeoutSeconds  int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	MaxRetries      int      `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	MaxResponseSize int64    `yaml:"max_response_size,omitempty" json:"max_response_size,omitempty"`
	AllowedDomains  []string `yaml:"allowed_domains,omitempty" json:"allowed_domains,omitempty"`
	DeniedDomains   []string `yaml:"denied_domains,omitempty" json:"denied_domains,omitempty"`
	AllowRedirects  bool     `yaml:"allow_redirects,omitempty" json:"allow_redirects,omitempty"`
	MaxRedirects    int      `yaml:"max_redirects,omitempty" json:"max_redirects,omitempty"`
}

func (c *WebFetchToolConfig) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	if c.MaxResponseSize == 0 {
		c.MaxResponseSize = 10 * 1024 * 1024
	}
	if c.MaxRedirects == 0 {
		c.MaxRedirects = 10
	}
}

func (c *WebFetchToolConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ShellToolConfig overlays additional denied commands/patterns onto the
// package's built-in defaults. This is a second enforcement layer behind
// the Permission Manager's own Code-agent glob rules.
type ShellToolConfig struct {
	TimeoutSeconds      int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	WorkingDir          string   `yaml:"working_dir,omitempty" json:"working_dir,omitempty"`
	ExtraDeniedCommands []string `yaml:"extra_denied_commands,omitempty" json:"extra_denied_commands,omitempty"`
}

func (c *ShellToolConfig) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 300
	}
}

func (c *ShellToolConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IMSToolConfig configures the issue-tracker REST client.
type IMSToolConfig struct {
	BaseURL        string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey         string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	MaxRetries     int    `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

func (c *IMSToolConfig) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 15
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
}

func (c *IMSToolConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DocumentStoreToolConfig points document_read at a local directory
// holding uploaded documents, keyed by document id = file name.
type DocumentStoreToolConfig struct {
	RootDir string `yaml:"root_dir,omitempty" json:"root_dir,omitempty"`
}
