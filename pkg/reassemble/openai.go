package reassemble

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/flowtap/flowcore/pkg/flow"
)

// openAIChunk mirrors the subset of the OpenAI chat-completions streaming
// schema the reassembler reads (spec.md §4.2).
type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

type openAIMachine struct {
	limits      Limits
	scanner     eventScanner
	content     boundedBuffer
	toolCalls   []flow.ToolCall
	toolIndex   map[int]int // delta index -> toolCalls slice position
	stopReason  string
	usage       flow.Usage
	chunkCount  int
	timing      *chunkTiming
	parseErrors int
	terminated  bool
	started     time.Time
}

func newOpenAIMachine(limits Limits) Machine {
	now := time.Now()
	return &openAIMachine{
		limits:    limits,
		content:   boundedBuffer{limit: limits.MaxResponseBytes},
		toolIndex: make(map[int]int),
		timing:    newChunkTiming(now),
		started:   now,
	}
}

func (m *openAIMachine) Feed(chunk []byte) ([]Delta, bool, error) {
	var deltas []Delta
	for _, ev := range m.scanner.feed(chunk) {
		data := strings.TrimSpace(ev.Data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			m.terminated = true
			return deltas, true, nil
		}

		m.chunkCount++
		m.timing.Observe(time.Now())

		var parsed openAIChunk
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			m.parseErrors++
			continue
		}

		if parsed.Usage != nil {
			in, out, tot := parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, parsed.Usage.TotalTokens
			m.usage = flow.Usage{InputTokens: &in, OutputTokens: &out, TotalTokens: &tot}
		}

		for _, choice := range parsed.Choices {
			if choice.Delta.Role != "" {
				deltas = append(deltas, Delta{Kind: DeltaRole, Text: choice.Delta.Role})
			}
			if choice.Delta.Content != "" {
				m.content.Append(choice.Delta.Content)
				deltas = append(deltas, Delta{Kind: DeltaContent, Text: choice.Delta.Content})
				if m.content.Exceeded() {
					m.terminated = true
					return deltas, true, nil
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				pos, ok := m.toolIndex[tc.Index]
				if !ok {
					pos = len(m.toolCalls)
					m.toolIndex[tc.Index] = pos
					m.toolCalls = append(m.toolCalls, flow.ToolCall{Type: flow.ToolCallFunction})
				}
				if tc.ID != "" {
					m.toolCalls[pos].ID = tc.ID
				}
				if tc.Function.Name != "" {
					m.toolCalls[pos].FunctionName = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					m.toolCalls[pos].Arguments += tc.Function.Arguments
					deltas = append(deltas, Delta{Kind: DeltaToolArgs, Text: tc.Function.Arguments, Index: tc.Index})
				}
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				m.stopReason = *choice.FinishReason
			}
		}
	}
	return deltas, m.terminated, nil
}

func (m *openAIMachine) Seal() *flow.Response {
	for i := range m.toolCalls {
		finalizeToolCallArguments(&m.toolCalls[i])
	}
	m.usage.Reconcile()
	now := time.Now()
	return &flow.Response{
		Content:    m.content.String(),
		ToolCalls:  m.toolCalls,
		Usage:      m.usage,
		StopReason: m.stopReason,
		StartedAt:  m.started,
		EndedAt:    &now,
		Stream: &flow.StreamInfo{
			ChunkCount:          m.chunkCount,
			FirstChunkLatencyMs: m.timing.FirstChunkLatencyMs(),
			MeanInterChunkMs:    m.timing.MeanInterChunkMs(),
		},
	}
}

func (m *openAIMachine) ParseErrorCount() int { return m.parseErrors }

// finalizeToolCallArguments attempts to decode the accumulated argument
// string now that all fragments have arrived; a malformed result is left
// as raw Arguments with ParsedArguments nil (spec.md §4.2's skip-and-
// continue policy extends to this terminal decode).
func finalizeToolCallArguments(tc *flow.ToolCall) {
	if tc.Arguments == "" {
		return
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &parsed); err == nil {
		tc.ParsedArguments = parsed
	}
}
