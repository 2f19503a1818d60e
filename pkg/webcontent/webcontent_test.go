package webcontent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostOf(t *testing.T) {
	assert.Equal(t, "example.com", hostOf("https://example.com/path?q=1"))
	assert.Equal(t, "example.com", hostOf("http://example.com:8080/path"))
	assert.Equal(t, "sub.example.com", hostOf("https://sub.example.com"))
}

func TestMatchesDomain(t *testing.T) {
	assert.True(t, matchesDomain("example.com", "example.com"))
	assert.True(t, matchesDomain("docs.example.com", "*.example.com"))
	assert.False(t, matchesDomain("evil.com", "*.example.com"))
}

func TestValidateDomain_DeniedTakesPrecedence(t *testing.T) {
	cfg := Config{AllowedDomains: []string{"*.example.com"}, DeniedDomains: []string{"blocked.example.com"}}
	err := validateDomain(cfg, "https://blocked.example.com/page")
	assert.Error(t, err)
}

func TestValidateDomain_AllowListRejectsUnlisted(t *testing.T) {
	cfg := Config{AllowedDomains: []string{"docs.example.com"}}
	err := validateDomain(cfg, "https://other.com/page")
	assert.Error(t, err)

	err = validateDomain(cfg, "https://docs.example.com/page")
	assert.NoError(t, err)
}

func TestStripHTML(t *testing.T) {
	out := stripHTML("<html><body><p>Hello   <b>world</b></p></body></html>")
	assert.Equal(t, "Hello world", out)
}
