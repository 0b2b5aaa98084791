package command

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/acp-runtime/internal/config"
	"github.com/shaharia-lab/acp-runtime/internal/logging"
	"github.com/shaharia-lab/acp-runtime/internal/pipeline"
	"github.com/shaharia-lab/acp-runtime/internal/registry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	loader, err := config.NewLoader("")
	require.NoError(t, err)
	log := logging.New(logging.Config{Level: "error", Format: "json"})
	reg := registry.New(registry.WithStaleAfter(time.Minute))
	orch := pipeline.New()
	return New(loader.Current(), log, reg, orch)
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegistryRegisterListDiscoverGet(t *testing.T) {
	s := newTestServer(t)

	registerBody := registryRegisterRequest{
		AgentCard: registry.Card{
			AgentCard: a2a.AgentCard{
				Name:               "coder",
				ProtocolVersion:    "0.3.0",
				Capabilities:       a2a.AgentCapabilities{Streaming: true},
				PreferredTransport: "JSONRPC",
				Skills: []a2a.AgentSkill{
					{ID: "fix-bugs", Name: "Fix Bugs", Tags: []string{"coding"}},
				},
			},
		},
	}
	rec := doJSON(t, s.Router(), http.MethodPost, "/api/v1/registry/agents", registerBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var registered registryRegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))
	assert.Equal(t, "coder", registered.ID)

	rec = doJSON(t, s.Router(), http.MethodGet, "/api/v1/registry/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cards []registry.Card
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cards))
	require.Len(t, cards, 1)
	assert.Equal(t, "coder", cards[0].Name)

	discoverBody := map[string]any{"Tags": []string{"coding"}}
	rec = doJSON(t, s.Router(), http.MethodPost, "/api/v1/registry/discover", discoverBody)
	require.Equal(t, http.StatusOK, rec.Code)
	var found []registry.Card
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found, 1)

	rec = doJSON(t, s.Router(), http.MethodGet, "/api/v1/registry/agents/coder", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got registryGetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Card)
	assert.Equal(t, "coder", got.Card.Name)

	rec = doJSON(t, s.Router(), http.MethodGet, "/api/v1/registry/agents/nope", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var missing registryGetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &missing))
	assert.Nil(t, missing.Card)
}

func TestPipelineDefineExecuteGetStatus(t *testing.T) {
	s := newTestServer(t)
	s.pipe.RegisterCallable("double", func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		var n int
		require.NoError(t, json.Unmarshal(input, &n))
		return json.Marshal(n * 2)
	})

	defineBody := pipelineDefineRequest{
		Name: "doubler",
		Stages: []pipeline.Stage{
			{Name: "stage1", Kind: pipeline.NativeCallable, Callable: "double"},
		},
	}
	rec := doJSON(t, s.Router(), http.MethodPost, "/api/v1/pipelines", defineBody)
	require.Equal(t, http.StatusOK, rec.Code)
	var defined pipelineDefineResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defined))
	require.NotEmpty(t, defined.PipelineID)

	execBody := pipelineExecuteRequest{InitialInput: json.RawMessage(`21`)}
	rec = doJSON(t, s.Router(), http.MethodPost, "/api/v1/pipelines/"+defined.PipelineID+"/execute", execBody)
	require.Equal(t, http.StatusOK, rec.Code)
	var executed pipelineExecuteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &executed))
	require.NotEmpty(t, executed.ExecutionID)

	var exec pipeline.Execution
	require.Eventually(t, func() bool {
		rec := doJSON(t, s.Router(), http.MethodGet, "/api/v1/pipelines/executions/"+executed.ExecutionID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
		return exec.Status == pipeline.Completed
	}, time.Second, 5*time.Millisecond)

	require.Len(t, exec.Results, 1)
	assert.JSONEq(t, "42", string(exec.Results[0].Output))

	rec = doJSON(t, s.Router(), http.MethodGet, "/api/v1/pipelines", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var defs []pipeline.Definition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defs))
	require.Len(t, defs, 1)
}

func TestPipelineExecuteUnknownPipelineFails(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodPost, "/api/v1/pipelines/nope/execute", pipelineExecuteRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var apiErr apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "pipeline_not_found", apiErr.Tag)
}

func TestExecutorRoutesOnUnknownSessionReturn404(t *testing.T) {
	s := newTestServer(t)
	for _, route := range []struct {
		method, path string
	}{
		{http.MethodPost, "/api/v1/executors/nope/execute"},
		{http.MethodPost, "/api/v1/executors/nope/permission"},
		{http.MethodPost, "/api/v1/executors/nope/stop"},
		{http.MethodGet, "/api/v1/executors/nope/state"},
		{http.MethodGet, "/api/v1/executors/nope/running"},
	} {
		rec := doJSON(t, s.Router(), route.method, route.path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, route.path)
	}
}

func TestEventsWebSocketDeliversPublishedEnvelope(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.run(ctx)

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		s.hub.mu.RLock()
		n := len(s.hub.clients)
		s.hub.mu.RUnlock()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	s.hub.publish("pipeline:progress", pipeline.Progress{ExecutionID: "e1", Status: "pipeline-started"})

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "pipeline:progress", env.Topic)
}
