package streamparser

import (
	"bytes"
	"testing"

	"github.com/shaharia-lab/acp-runtime/internal/streamevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedScenarioA(t *testing.T) {
	p := New()
	lines := `{"type":"system","subtype":"init","session_id":"S1"}
{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hi"}]}}
{"type":"result","subtype":"success","result":"hi","is_error":false}
`
	events := p.Feed([]byte(lines))
	require.Len(t, events, 3)
	assert.Equal(t, streamevents.KindSystem, events[0].Kind)
	assert.Equal(t, "S1", events[0].System.SessionID)
	assert.Equal(t, streamevents.KindAssistant, events[1].Kind)
	assert.Equal(t, "hi", events[1].Assistant.Text)
	assert.Equal(t, streamevents.KindResult, events[2].Kind)
	assert.False(t, events[2].Result.IsError)
}

func TestFeedScenarioE_Resync(t *testing.T) {
	p := New()
	stream := `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"partial"}]}}
{not valid json}
{"type":"result","is_error":false,"result":"done"}
`
	events := p.Feed([]byte(stream))
	require.Len(t, events, 3)
	assert.Equal(t, streamevents.KindAssistant, events[0].Kind)
	assert.Equal(t, streamevents.KindError, events[1].Kind)
	assert.Equal(t, streamevents.KindResult, events[2].Kind)
	assert.Equal(t, "done", events[2].Result.Output)
}

func TestFeedToolUseAndToolResult(t *testing.T) {
	p := New()
	stream := `{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"T1","name":"Write","input":{"path":"/etc/hosts"}}]}}
{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"T1","content":"requires approval","is_error":true}]}}
`
	events := p.Feed([]byte(stream))
	require.Len(t, events, 2)
	require.Equal(t, streamevents.KindToolUse, events[0].Kind)
	assert.Equal(t, "Write", events[0].ToolUse.Name)
	require.Equal(t, streamevents.KindToolResult, events[1].Kind)
	assert.True(t, events[1].ToolResult.IsError)
	assert.Equal(t, "requires approval", events[1].ToolResult.Content)
}

func TestFeedHandlesChunkedPartialLines(t *testing.T) {
	p := New()
	full := `{"type":"result","subtype":"success","result":"ok","is_error":false}` + "\n"
	mid := len(full) / 2

	first := p.Feed([]byte(full[:mid]))
	assert.Empty(t, first)

	second := p.Feed([]byte(full[mid:]))
	require.Len(t, second, 1)
	assert.Equal(t, "ok", second[0].Result.Output)
}

func TestFeedOversizedLineProducesErrorAndResyncs(t *testing.T) {
	p := New()
	oversized := bytes.Repeat([]byte("a"), MaxLineBytes+10)
	stream := append(oversized, '\n')
	stream = append(stream, []byte(`{"type":"result","is_error":false,"result":"done"}`+"\n")...)

	events := p.Feed(stream)
	require.Len(t, events, 2)
	assert.Equal(t, streamevents.KindError, events[0].Kind)
	assert.Equal(t, streamevents.KindResult, events[1].Kind)
	assert.Equal(t, "done", events[1].Result.Output)
}

func TestFeedUnknownTypeDoesNotHaltParsing(t *testing.T) {
	p := New()
	stream := `{"type":"rate_limit_event","data":{}}
{"type":"result","is_error":false,"result":"fine"}
`
	events := p.Feed([]byte(stream))
	require.Len(t, events, 2)
	assert.Equal(t, streamevents.KindError, events[0].Kind)
	assert.Equal(t, streamevents.KindResult, events[1].Kind)
}
