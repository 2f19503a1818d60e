package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kbagents/orchestrator/pkg/httpclient"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// WebFetchArgs are the LLM-facing parameters for web_fetch.
type WebFetchArgs struct {
	URL         string `json:"url" jsonschema:"required,description=The URL to fetch"`
	ExtractText bool   `json:"extract_text,omitempty" jsonschema:"description=Strip HTML tags and return visible text only"`
	MaxLength   int    `json:"max_length,omitempty" jsonschema:"description=Maximum characters of content to return,default=10000"`
}

// WebFetchConfig restricts which URLs web_fetch may reach, grounded on
// webtool.WebRequestConfig's domain allow/deny lists and redirect policy.
type WebFetchConfig struct {
	Timeout         time.Duration
	MaxRetries      int
	MaxResponseSize int64
	AllowedDomains  []string
	DeniedDomains   []string
	AllowRedirects  bool
	MaxRedirects    int
	UserAgent       string
}

type WebFetch struct {
	cfg    WebFetchConfig
	client *httpclient.Client
}

func NewWebFetch(cfg WebFetchConfig) *WebFetch {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxResponseSize == 0 {
		cfg.MaxResponseSize = 10 * 1024 * 1024
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "orchestrator/1.0"
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 10
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !cfg.AllowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}

	return &WebFetch{
		cfg:    cfg,
		client: httpclient.New(httpclient.WithHTTPClient(httpClient), httpclient.WithMaxRetries(cfg.MaxRetries)),
	}
}

func (t *WebFetch) Name() string          { return "web_fetch" }
func (t *WebFetch) Description() string   { return "Fetch the contents of a web page." }
func (t *WebFetch) ArgsType() any          { return &WebFetchArgs{} }
func (t *WebFetch) RequiredArgs() []string { return []string{"url"} }

func (t *WebFetch) Execute(ctx context.Context, agentCtx *types.AgentContext, args map[string]any) (types.ToolResult, error) {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return types.ToolResult{Success: false, Error: "url is required"}, nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("invalid url: %s", err)}, nil
	}
	if err := validateDomain(t.cfg, parsed.Host); err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}

	extractText, _ := args["extract_text"].(bool)
	maxLength := 10000
	if v, ok := args["max_length"].(int); ok && v > 0 {
		maxLength = v
	} else if v, ok := args["max_length"].(float64); ok && v > 0 {
		maxLength = int(v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}
	req.Header.Set("User-Agent", t.cfg.UserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("fetch failed: %s", err)}, nil
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, t.cfg.MaxResponseSize+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return types.ToolResult{Success: false, Error: err.Error()}, nil
	}
	if int64(len(raw)) > t.cfg.MaxResponseSize {
		return types.ToolResult{Success: false, Error: "response exceeds maximum size"}, nil
	}

	content := string(raw)
	contentType := resp.Header.Get("Content-Type")
	if extractText && strings.Contains(contentType, "html") {
		content = stripHTML(content)
	}
	content = truncate(content, maxLength)

	return types.ToolResult{
		Success: true,
		Output:  content,
		Metadata: map[string]any{
			"sources":      []string{rawURL},
			"content_type": contentType,
			"status_code":  resp.StatusCode,
		},
	}, nil
}

func validateDomain(cfg WebFetchConfig, host string) error {
	if len(cfg.AllowedDomains) == 0 && len(cfg.DeniedDomains) == 0 {
		return nil
	}
	for _, denied := range cfg.DeniedDomains {
		if matchesDomain(host, denied) {
			return fmt.Errorf("domain not allowed: %s (matches deny rule: %s)", host, denied)
		}
	}
	if len(cfg.AllowedDomains) > 0 {
		for _, allowed := range cfg.AllowedDomains {
			if matchesDomain(host, allowed) {
				return nil
			}
		}
		return fmt.Errorf("domain not allowed: %s (not in allowed list)", host)
	}
	return nil
}

func matchesDomain(host, pattern string) bool {
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	if host == pattern {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}
	return false
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

func stripHTML(html string) string {
	text := htmlTagPattern.ReplaceAllString(html, " ")
	return strings.Join(strings.Fields(text), " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
