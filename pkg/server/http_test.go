package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbagents/orchestrator/pkg/config"
	"github.com/kbagents/orchestrator/pkg/orchestration/agentexec"
	"github.com/kbagents/orchestrator/pkg/orchestration/agentregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/dag"
	"github.com/kbagents/orchestrator/pkg/orchestration/evaluator"
	"github.com/kbagents/orchestrator/pkg/orchestration/orchestrator"
	"github.com/kbagents/orchestrator/pkg/orchestration/parallel"
	"github.com/kbagents/orchestrator/pkg/orchestration/permission"
	"github.com/kbagents/orchestrator/pkg/orchestration/toolregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// stubChatClient returns a fixed final answer with no tool calls, enough to
// drive the Reason-Act loop to completion in one turn.
type stubChatClient struct{ answer string }

func (s stubChatClient) Chat(_ context.Context, _ []types.AgentMessage, _ []toolregistry.Definition) (types.AgentMessage, error) {
	return types.AgentMessage{Role: types.RoleAssistant, Content: s.answer, Timestamp: time.Now()}, nil
}

func newTestOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	tools := toolregistry.New(nil)
	agents := agentregistry.New(tools)
	perms := permission.New()
	executor := agentexec.New(agents, tools, perms, stubChatClient{answer: "the answer"}, nil)
	dagBuilder := dag.New(nil, false)
	parallelExe := parallel.New(executor, nil)
	eval := evaluator.New(nil)

	return orchestrator.New(agents, tools, perms, executor, nil, dagBuilder, parallelExe, eval, nil, nil, nil, nil, nil, nil)
}

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()
	cfg := &config.ServerConfig{}
	cfg.SetDefaults()
	return NewHTTPServer(cfg, newTestOrchestrator(t), nil, nil, nil)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleClassify_KeywordPath(t *testing.T) {
	s := newTestServer(t)
	body := strings.NewReader(`{"task": "explain how this works"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/classify", body)
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp classifyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, types.AgentRAG, resp.AgentKind)
	assert.Equal(t, "keyword", resp.Method)
}

func TestHandleClassify_RejectsEmptyTask(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/classify", strings.NewReader(`{"task": ""}`))
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleListAgentKinds(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/agents", nil)
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var agents []*agentregistry.Agent
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &agents))
	assert.Len(t, agents, len(types.AllAgentKinds))
}

func TestHandleListTools_ReturnsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleExecute_RunsSingleAgent(t *testing.T) {
	s := newTestServer(t)
	payload := `{"task": "explain this document", "agent_kind": "rag"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/agents/execute", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp orchestrator.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "the answer", resp.Answer)
	assert.True(t, resp.Success)
}

func TestHandleStream_EmitsSSEFrames(t *testing.T) {
	s := newTestServer(t)
	payload := `{"task": "explain this document", "agent_kind": "rag"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/agents/stream", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

	scanner := bufio.NewScanner(rr.Body)
	sawDone := false
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event: done") {
			sawDone = true
		}
	}
	assert.True(t, sawDone, "expected a final 'done' SSE event")
}

func TestCORSMiddleware_SetsPermissiveDefault(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
