package flow

import "time"

// HeaderPair is one ordered header entry. A slice of pairs (rather than
// a map) preserves wire order and allows repeated header names.
type HeaderPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Role is the speaker of a normalized message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPartKind discriminates the union MessageContent.Parts carries.
type ContentPartKind string

const (
	PartText     ContentPartKind = "text"
	PartImageRef ContentPartKind = "image_ref"
	PartAudioRef ContentPartKind = "audio_ref"
	PartFileRef  ContentPartKind = "file_ref"
)

// MediaRef is a handle to a binary part stored in a side-blob store the
// core does not mutate. Only a reference and optional thumbnail
// reference are retained; no inline base64 payload is carried.
type MediaRef struct {
	Handle       string  `json:"handle"`
	ThumbnailRef *string `json:"thumbnailRef,omitempty"`
	MimeType     string  `json:"mimeType,omitempty"`
}

// ContentPart is one element of a multi-part MessageContent.
type ContentPart struct {
	Kind  ContentPartKind `json:"kind"`
	Text  string          `json:"text,omitempty"`
	Media *MediaRef       `json:"media,omitempty"`
}

// MessageContent is either plain text or an ordered list of parts.
// Exactly one of Text or Parts is populated.
type MessageContent struct {
	Text  string        `json:"text,omitempty"`
	Parts []ContentPart `json:"parts,omitempty"`
}

// PlainText returns the content flattened to a single string, used by
// full-text search and the `~b` family of filter predicates.
func (c MessageContent) PlainText() string {
	if c.Text != "" || len(c.Parts) == 0 {
		return c.Text
	}
	var out string
	for _, p := range c.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

// ToolCallRef is a tool invocation embedded in a normalized message
// (as opposed to ToolCall on a Response, which is the model's
// output).
type ToolCallRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResultRef carries the result of a tool invocation fed back to the
// model in a subsequent message.
type ToolResultRef struct {
	ToolCallID string `json:"toolCallId"`
	Content    string `json:"content"`
	IsError    bool   `json:"isError,omitempty"`
}

// Message is one normalized conversational turn.
type Message struct {
	Role       Role            `json:"role"`
	Content    MessageContent  `json:"content"`
	ToolCalls  []ToolCallRef   `json:"toolCalls,omitempty"`
	ToolResult *ToolResultRef  `json:"toolResult,omitempty"`
	Name       string          `json:"name,omitempty"`
}

// ToolDefinition describes one tool the request made available to the
// model.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// Parameters is the generation-parameters block of a Request.
type Parameters struct {
	Temperature *float64          `json:"temperature,omitempty"`
	TopP        *float64          `json:"topP,omitempty"`
	MaxTokens   *int64            `json:"maxTokens,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	Stream      bool              `json:"stream"`
	Extras      map[string]any    `json:"extras,omitempty"`
}

// Request is the single Request a Flow owns.
type Request struct {
	Method        string           `json:"method"`
	Path          string           `json:"path"`
	Headers       []HeaderPair     `json:"headers"`
	RawBody       any              `json:"rawBody,omitempty"`
	Messages      []Message        `json:"messages"`
	System        string           `json:"system,omitempty"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	Model         string           `json:"model"`
	OriginalModel string           `json:"originalModel,omitempty"`
	Params        Parameters       `json:"params"`
	ByteSize      int64            `json:"byteSize"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// PlainText concatenates the text of every message, used by the `~bq`
// (request-only) filter predicate and by content previews.
func (r Request) PlainText() string {
	var out string
	for _, m := range r.Messages {
		out += m.Content.PlainText()
	}
	return out
}

var sensitiveHeaderNames = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"cookie":        true,
	"proxy-authorization": true,
}

// MaskedHeaders returns Headers with sensitive values replaced, for
// export. At-rest data (Request.Headers itself) is never mutated.
func (r Request) MaskedHeaders() []HeaderPair {
	out := make([]HeaderPair, len(r.Headers))
	for i, h := range r.Headers {
		out[i] = h
		if sensitiveHeaderNames[lower(h.Name)] {
			out[i].Value = "***"
		}
	}
	return out
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
