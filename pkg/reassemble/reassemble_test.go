package reassemble

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseEvent(data string) string {
	return "data: " + data + "\n\n"
}

// TestScenario1OpenAIStreaming encodes spec.md's literal Scenario 1: five
// events, the fourth a content delta of "Hello", the fifth the [DONE]
// terminator; one FlowCompleted, content == "Hello", chunk_count == 4.
func TestScenario1OpenAIStreaming(t *testing.T) {
	m := New(DialectOpenAI, DefaultLimits)

	events := []string{
		`{"choices":[{"delta":{"role":"assistant"},"finish_reason":null}]}`,
		`{"choices":[{"delta":{},"finish_reason":null}]}`,
		`{"choices":[{"delta":{},"finish_reason":null}]}`,
		`{"choices":[{"delta":{"content":"Hello"},"finish_reason":null}]}`,
	}
	stream := ""
	for _, e := range events {
		stream += sseEvent(e)
	}
	stream += sseEvent("[DONE]")

	var terminated bool
	var allDeltas []Delta
	for _, chunk := range splitIntoArbitraryChunks(stream) {
		deltas, term, err := m.Feed([]byte(chunk))
		require.NoError(t, err)
		allDeltas = append(allDeltas, deltas...)
		if term {
			terminated = true
		}
	}
	require.True(t, terminated)

	resp := m.Seal()
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, 4, resp.Stream.ChunkCount)

	var contentDeltas int
	for _, d := range allDeltas {
		if d.Kind == DeltaContent {
			contentDeltas++
			assert.Equal(t, "Hello", d.Text)
		}
	}
	assert.Equal(t, 1, contentDeltas)
}

// TestScenario1UsageOverwritesFromFinalEvent checks the final usage event
// is what the sealed Response reports.
func TestScenario1UsageOverwritesFromFinalEvent(t *testing.T) {
	m := New(DialectOpenAI, DefaultLimits)
	stream := sseEvent(`{"choices":[{"delta":{"content":"a"},"finish_reason":null}]}`) +
		sseEvent(`{"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`) +
		sseEvent("[DONE]")

	_, _, err := m.Feed([]byte(stream))
	require.NoError(t, err)

	resp := m.Seal()
	require.NotNil(t, resp.Usage.TotalTokens)
	assert.EqualValues(t, 4, *resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.StopReason)
}

// TestScenario2AnthropicToolUse encodes spec.md's literal Scenario 2: a
// message_start, a content_block_start for a tool_use block, three
// input_json_delta fragments, content_block_stop, message_stop. Expect
// one tool call with arguments {"x":1} and matching ParsedArguments.
func TestScenario2AnthropicToolUse(t *testing.T) {
	m := New(DialectAnthropic, DefaultLimits)

	events := []string{
		`{"type":"message_start","message":{"role":"assistant","usage":{"input_tokens":10}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"call_1","name":"lookup"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"x\""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":":1"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"}"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":5}}`,
		`{"type":"message_stop"}`,
	}
	stream := ""
	for _, e := range events {
		stream += sseEvent(e)
	}

	var terminated bool
	for _, chunk := range splitIntoArbitraryChunks(stream) {
		_, term, err := m.Feed([]byte(chunk))
		require.NoError(t, err)
		if term {
			terminated = true
		}
	}
	require.True(t, terminated)

	resp := m.Seal()
	require.Len(t, resp.ToolCalls, 1)
	tc := resp.ToolCalls[0]
	assert.Equal(t, "call_1", tc.ID)
	assert.Equal(t, "lookup", tc.FunctionName)
	assert.JSONEq(t, `{"x":1}`, tc.Arguments)
	require.NotNil(t, tc.ParsedArguments)
	assert.EqualValues(t, 1, tc.ParsedArguments["x"])
	assert.Equal(t, "tool_use", resp.StopReason)
}

func TestMalformedEventIsSkippedAndCountedNotFatal(t *testing.T) {
	m := New(DialectOpenAI, DefaultLimits)
	stream := sseEvent(`{not-json`) +
		sseEvent(`{"choices":[{"delta":{"content":"ok"},"finish_reason":null}]}`) +
		sseEvent("[DONE]")

	_, terminated, err := m.Feed([]byte(stream))
	require.NoError(t, err)
	assert.True(t, terminated)
	assert.Equal(t, 1, m.ParseErrorCount())

	resp := m.Seal()
	assert.Equal(t, "ok", resp.Content)
}

func TestResponseBodyCapExceededTruncatesAndTerminates(t *testing.T) {
	limits := Limits{MaxResponseBytes: 10}
	m := New(DialectOpenAI, limits)

	stream := sseEvent(`{"choices":[{"delta":{"content":"this is way more than ten bytes"},"finish_reason":null}]}`)
	_, terminated, err := m.Feed([]byte(stream))
	require.NoError(t, err)
	assert.True(t, terminated)

	resp := m.Seal()
	assert.True(t, strings.Contains(resp.Content, truncationMarker))
}

func TestAnthropicThinkingDeltaAccumulates(t *testing.T) {
	m := New(DialectAnthropic, DefaultLimits)
	events := []string{
		`{"type":"message_start","message":{"role":"assistant","usage":{"input_tokens":1}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"thinking"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"step one. "}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"step two."}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"answer"}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"message_stop"}`,
	}
	stream := ""
	for _, e := range events {
		stream += sseEvent(e)
	}
	_, terminated, err := m.Feed([]byte(stream))
	require.NoError(t, err)
	assert.True(t, terminated)

	resp := m.Seal()
	require.NotNil(t, resp.Thinking)
	assert.Equal(t, "step one. step two.", resp.Thinking.Text)
	assert.Equal(t, "answer", resp.Content)
}

func TestGeminiFunctionCallAndUsage(t *testing.T) {
	m := New(DialectGemini, DefaultLimits)
	stream := sseEvent(`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"search","args":{"q":"go"}}}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":3,"totalTokenCount":5}}`)

	_, _, err := m.Feed([]byte(stream))
	require.NoError(t, err)

	resp := m.Seal()
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "search", resp.ToolCalls[0].FunctionName)
	assert.Equal(t, "STOP", resp.StopReason)
	require.NotNil(t, resp.Usage.TotalTokens)
	assert.EqualValues(t, 5, *resp.Usage.TotalTokens)
}

func TestPassthroughAccumulatesRawBytes(t *testing.T) {
	m := New(DialectUnknown, DefaultLimits)
	deltas, terminated, err := m.Feed([]byte("raw chunk one"))
	require.NoError(t, err)
	assert.False(t, terminated)
	require.Len(t, deltas, 1)

	resp := m.Seal()
	assert.Equal(t, "raw chunk one", resp.Content)
}

// splitIntoArbitraryChunks breaks s into uneven pieces to exercise
// buffering across Feed calls that don't align with event boundaries.
func splitIntoArbitraryChunks(s string) []string {
	if len(s) < 3 {
		return []string{s}
	}
	third := len(s) / 3
	return []string{s[:third], s[third : 2*third], s[2*third:]}
}
