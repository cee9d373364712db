package flow

import "time"

// ToolCallKind is the provider-facing call type of a ToolCall.
type ToolCallKind string

const (
	ToolCallFunction ToolCallKind = "function"
)

// ToolCall is one tool invocation requested by the model, reconstructed
// by the Stream Reassembler from incremental argument fragments (or
// received whole, for unary responses).
type ToolCall struct {
	ID               string         `json:"id"`
	Type             ToolCallKind   `json:"type"`
	FunctionName     string         `json:"functionName"`
	Arguments        string         `json:"arguments"`
	ParsedArguments  map[string]any `json:"parsedArguments,omitempty"`
}

// Thinking carries a model's extended-reasoning block, when the
// provider surfaces one (Anthropic thinking, Gemini thought parts).
type Thinking struct {
	Text       string `json:"text"`
	TokenCount *int64 `json:"tokenCount,omitempty"`
	Signature  string `json:"signature,omitempty"`
}

// Usage is the token-accounting block of a Response. Total always
// equals input + output; any thinking tokens are an additional,
// separately reported field (spec.md §9 open question).
type Usage struct {
	InputTokens      *int64 `json:"inputTokens,omitempty"`
	OutputTokens     *int64 `json:"outputTokens,omitempty"`
	CacheReadTokens  *int64 `json:"cacheReadTokens,omitempty"`
	CacheWriteTokens *int64 `json:"cacheWriteTokens,omitempty"`
	ThinkingTokens   *int64 `json:"thinkingTokens,omitempty"`
	TotalTokens      *int64 `json:"totalTokens,omitempty"`
}

// Reconcile recomputes TotalTokens from InputTokens+OutputTokens
// whenever both are present, per the Flow invariant in spec.md §3.
func (u *Usage) Reconcile() {
	if u.InputTokens != nil && u.OutputTokens != nil {
		total := *u.InputTokens + *u.OutputTokens
		u.TotalTokens = &total
	}
}

// StreamInfo summarizes a streamed Response's delivery characteristics.
type StreamInfo struct {
	ChunkCount            int      `json:"chunkCount"`
	FirstChunkLatencyMs   *int64   `json:"firstChunkLatencyMs,omitempty"`
	MeanInterChunkMs      *float64 `json:"meanInterChunkMs,omitempty"`
	RawChunks             []string `json:"rawChunks,omitempty"`
}

// Response is the Response a Flow optionally owns.
type Response struct {
	StatusCode   int          `json:"statusCode"`
	StatusText   string       `json:"statusText,omitempty"`
	Headers      []HeaderPair `json:"headers"`
	RawBody      any          `json:"rawBody,omitempty"`
	Content      string       `json:"content"`
	Thinking     *Thinking    `json:"thinking,omitempty"`
	ToolCalls    []ToolCall   `json:"toolCalls,omitempty"`
	Usage        Usage        `json:"usage"`
	StopReason   string       `json:"stopReason,omitempty"`
	ByteSize     int64        `json:"byteSize"`
	StartedAt    time.Time    `json:"startedAt"`
	EndedAt      *time.Time   `json:"endedAt,omitempty"`
	Stream       *StreamInfo  `json:"stream,omitempty"`
}
