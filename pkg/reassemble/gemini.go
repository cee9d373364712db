package reassemble

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/flowtap/flowcore/pkg/flow"
)

// geminiChunk mirrors the subset of the Gemini generateContent SSE
// schema the reassembler reads (spec.md §4.2). Gemini has no tool-call
// index field; each functionCall part is appended as a new ToolCall in
// arrival order.
type geminiChunk struct {
	Candidates []struct {
		Content struct {
			Role  string `json:"role"`
			Parts []struct {
				Text         string `json:"text"`
				Thought      bool   `json:"thought"`
				FunctionCall *struct {
					Name string         `json:"name"`
					Args map[string]any `json:"args"`
				} `json:"functionCall"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		TotalTokenCount      int64 `json:"totalTokenCount"`
		ThoughtsTokenCount   int64 `json:"thoughtsTokenCount"`
	} `json:"usageMetadata"`
}

type geminiMachine struct {
	limits      Limits
	scanner     eventScanner
	content     boundedBuffer
	thinking    boundedBuffer
	haveThink   bool
	toolCalls   []flow.ToolCall
	role        string
	sawRole     bool
	stopReason  string
	usage       flow.Usage
	chunkCount  int
	timing      *chunkTiming
	parseErrors int
	terminated  bool
	started     time.Time
}

func newGeminiMachine(limits Limits) Machine {
	now := time.Now()
	return &geminiMachine{
		limits:   limits,
		content:  boundedBuffer{limit: limits.MaxResponseBytes},
		thinking: boundedBuffer{limit: limits.MaxResponseBytes},
		timing:   newChunkTiming(now),
		started:  now,
	}
}

func (m *geminiMachine) Feed(chunk []byte) ([]Delta, bool, error) {
	var deltas []Delta
	for _, ev := range m.scanner.feed(chunk) {
		data := strings.TrimSpace(ev.Data)
		if data == "" || data == "[DONE]" {
			if data == "[DONE]" {
				m.terminated = true
				return deltas, true, nil
			}
			continue
		}

		var parsed geminiChunk
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			m.parseErrors++
			continue
		}

		m.chunkCount++
		m.timing.Observe(time.Now())

		if parsed.UsageMetadata != nil {
			in, out, tot := parsed.UsageMetadata.PromptTokenCount, parsed.UsageMetadata.CandidatesTokenCount, parsed.UsageMetadata.TotalTokenCount
			m.usage.InputTokens = &in
			m.usage.OutputTokens = &out
			m.usage.TotalTokens = &tot
			if parsed.UsageMetadata.ThoughtsTokenCount != 0 {
				tt := parsed.UsageMetadata.ThoughtsTokenCount
				m.usage.ThinkingTokens = &tt
			}
		}

		for _, cand := range parsed.Candidates {
			if cand.Content.Role != "" && !m.sawRole {
				m.role = cand.Content.Role
				m.sawRole = true
				deltas = append(deltas, Delta{Kind: DeltaRole, Text: m.role})
			}
			for _, part := range cand.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					args, _ := json.Marshal(part.FunctionCall.Args)
					tc := flow.ToolCall{
						Type:            flow.ToolCallFunction,
						FunctionName:    part.FunctionCall.Name,
						Arguments:       string(args),
						ParsedArguments: part.FunctionCall.Args,
					}
					m.toolCalls = append(m.toolCalls, tc)
					deltas = append(deltas, Delta{Kind: DeltaToolArgs, Text: string(args), Index: len(m.toolCalls) - 1})
				case part.Thought:
					m.thinking.Append(part.Text)
					m.haveThink = true
					deltas = append(deltas, Delta{Kind: DeltaThinking, Text: part.Text})
				case part.Text != "":
					m.content.Append(part.Text)
					deltas = append(deltas, Delta{Kind: DeltaContent, Text: part.Text})
					if m.content.Exceeded() {
						m.terminated = true
						return deltas, true, nil
					}
				}
			}
			if cand.FinishReason != "" {
				m.stopReason = cand.FinishReason
			}
		}
	}
	return deltas, m.terminated, nil
}

func (m *geminiMachine) Seal() *flow.Response {
	m.usage.Reconcile()
	now := time.Now()
	resp := &flow.Response{
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
	if m.haveThink {
		resp.Thinking = &flow.Thinking{Text: m.thinking.String()}
	}
	return resp
}

func (m *geminiMachine) ParseErrorCount() int { return m.parseErrors }
