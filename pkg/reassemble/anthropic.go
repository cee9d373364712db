package reassemble

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/flowtap/flowcore/pkg/flow"
)

// anthropicEvent mirrors the union of Anthropic Messages streaming event
// bodies the reassembler reads. The event's wire "type" field picks
// which of these fields are populated (spec.md §4.2).
type anthropicEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Message struct {
		Role  string `json:"role"`
		Usage struct {
			InputTokens              int64  `json:"input_tokens"`
			CacheCreationInputTokens *int64 `json:"cache_creation_input_tokens"`
			CacheReadInputTokens     *int64 `json:"cache_read_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	ContentBlock struct {
		Type  string `json:"type"`
		ID    string `json:"id"`
		Name  string `json:"name"`
		Text  string `json:"text"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		Thinking    string `json:"thinking"`
		Signature   string `json:"signature"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
	ErrorBody *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type anthropicBlock struct {
	kind      string // "text", "tool_use", "thinking"
	toolID    string
	toolName  string
	args      strings.Builder
}

type anthropicMachine struct {
	limits      Limits
	scanner     eventScanner
	content     boundedBuffer
	thinking    boundedBuffer
	thinkingSig string
	haveThink   bool
	blocks      map[int]*anthropicBlock
	toolCalls   []flow.ToolCall
	role        string
	stopReason  string
	usage       flow.Usage
	chunkCount  int
	timing      *chunkTiming
	parseErrors int
	terminated  bool
	failed      bool
	started     time.Time
}

func newAnthropicMachine(limits Limits) Machine {
	now := time.Now()
	return &anthropicMachine{
		limits:  limits,
		content: boundedBuffer{limit: limits.MaxResponseBytes},
		thinking: boundedBuffer{limit: limits.MaxResponseBytes},
		blocks:  make(map[int]*anthropicBlock),
		timing:  newChunkTiming(now),
		started: now,
	}
}

func (m *anthropicMachine) Feed(chunk []byte) ([]Delta, bool, error) {
	var deltas []Delta
	for _, ev := range m.scanner.feed(chunk) {
		data := strings.TrimSpace(ev.Data)
		if data == "" {
			continue
		}

		var parsed anthropicEvent
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			m.parseErrors++
			continue
		}

		m.chunkCount++
		m.timing.Observe(time.Now())

		switch parsed.Type {
		case "ping":
			// keepalive, no state change

		case "message_start":
			m.role = parsed.Message.Role
			in := parsed.Message.Usage.InputTokens
			m.usage.InputTokens = &in
			m.usage.CacheReadTokens = parsed.Message.Usage.CacheReadInputTokens
			m.usage.CacheWriteTokens = parsed.Message.Usage.CacheCreationInputTokens
			if m.role != "" {
				deltas = append(deltas, Delta{Kind: DeltaRole, Text: m.role})
			}

		case "content_block_start":
			b := &anthropicBlock{kind: parsed.ContentBlock.Type}
			if b.kind == "tool_use" {
				b.toolID = parsed.ContentBlock.ID
				b.toolName = parsed.ContentBlock.Name
			}
			m.blocks[parsed.Index] = b

		case "content_block_delta":
			b := m.blocks[parsed.Index]
			if b == nil {
				break
			}
			switch parsed.Delta.Type {
			case "text_delta":
				m.content.Append(parsed.Delta.Text)
				deltas = append(deltas, Delta{Kind: DeltaContent, Text: parsed.Delta.Text})
				if m.content.Exceeded() {
					m.failed = true
					m.terminated = true
					return deltas, true, nil
				}
			case "input_json_delta":
				b.args.WriteString(parsed.Delta.PartialJSON)
				deltas = append(deltas, Delta{Kind: DeltaToolArgs, Text: parsed.Delta.PartialJSON, Index: parsed.Index})
			case "thinking_delta":
				m.thinking.Append(parsed.Delta.Thinking)
				m.haveThink = true
				deltas = append(deltas, Delta{Kind: DeltaThinking, Text: parsed.Delta.Thinking})
			case "signature_delta":
				m.thinkingSig = parsed.Delta.Signature
			}

		case "content_block_stop":
			b := m.blocks[parsed.Index]
			if b != nil && b.kind == "tool_use" {
				args := b.args.String()
				tc := flow.ToolCall{
					ID:           b.toolID,
					Type:         flow.ToolCallFunction,
					FunctionName: b.toolName,
					Arguments:    args,
				}
				finalizeToolCallArguments(&tc)
				m.toolCalls = append(m.toolCalls, tc)
			}
			delete(m.blocks, parsed.Index)

		case "message_delta":
			if parsed.Delta.StopReason != "" {
				m.stopReason = parsed.Delta.StopReason
			}
			if parsed.Usage.OutputTokens != 0 {
				out := parsed.Usage.OutputTokens
				m.usage.OutputTokens = &out
			}

		case "message_stop":
			m.terminated = true
			return deltas, true, nil

		case "error":
			m.failed = true
			if parsed.ErrorBody != nil {
				m.stopReason = parsed.ErrorBody.Type
			}
			m.terminated = true
			return deltas, true, nil
		}
	}
	return deltas, m.terminated, nil
}

func (m *anthropicMachine) Seal() *flow.Response {
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
		resp.Thinking = &flow.Thinking{Text: m.thinking.String(), Signature: m.thinkingSig}
	}
	return resp
}

func (m *anthropicMachine) ParseErrorCount() int { return m.parseErrors }
