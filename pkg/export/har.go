package export

import (
	"encoding/json"
	"time"

	"github.com/flowtap/flowcore/pkg/flow"
)

// harHeader mirrors HAR 1.2's {name,value} header shape.
type harHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type harRequest struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []harHeader `json:"headers"`
	QueryString []any       `json:"queryString"`
	BodySize    int64       `json:"bodySize"`
	PostData    *harContent `json:"postData,omitempty"`
}

type harResponse struct {
	Status      int         `json:"status"`
	StatusText  string      `json:"statusText"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []harHeader `json:"headers"`
	Content     harContent  `json:"content"`
	RedirectURL string      `json:"redirectURL"`
	HeadersSize int         `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
}

type harContent struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
}

type harTimings struct {
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

// harLLMExtension is the custom `_llm` block spec.md §4.10 calls for.
type harLLMExtension struct {
	FlowID       string `json:"flowId"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  *int64 `json:"inputTokens,omitempty"`
	OutputTokens *int64 `json:"outputTokens,omitempty"`
	TotalTokens  *int64 `json:"totalTokens,omitempty"`
	HasToolCalls bool   `json:"hasToolCalls"`
	HasThinking  bool   `json:"hasThinking"`
}

type harEntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         harRequest  `json:"request"`
	Response        harResponse `json:"response"`
	Cache           struct{}    `json:"cache"`
	Timings         harTimings  `json:"timings"`
	LLM             harLLMExtension `json:"_llm"`
}

type harLog struct {
	Version string     `json:"version"`
	Creator harCreator `json:"creator"`
	Entries []harEntry `json:"entries"`
}

type harCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type harFile struct {
	Log harLog `json:"log"`
}

func exportHAR(flows []*flow.Flow) ([]byte, error) {
	entries := make([]harEntry, 0, len(flows))
	for _, f := range flows {
		entries = append(entries, toHAREntry(f))
	}
	doc := harFile{Log: harLog{
		Version: "1.2",
		Creator: harCreator{Name: "flowcore", Version: "1"},
		Entries: entries,
	}}
	return json.MarshalIndent(doc, "", "  ")
}

func toHAREntry(f *flow.Flow) harEntry {
	reqHeaders := make([]harHeader, len(f.Request.Headers))
	for i, h := range f.Request.MaskedHeaders() {
		reqHeaders[i] = harHeader{Name: h.Name, Value: h.Value}
	}

	entry := harEntry{
		StartedDateTime: f.Timestamps.Created.Format(time.RFC3339Nano),
		Request: harRequest{
			Method:      firstNonEmpty(f.Request.Method, "POST"),
			URL:         f.Request.Path,
			HTTPVersion: "HTTP/1.1",
			Headers:     reqHeaders,
			BodySize:    f.Request.ByteSize,
			PostData:    &harContent{Size: f.Request.ByteSize, MimeType: "application/json", Text: f.Request.PlainText()},
		},
		LLM: harLLMExtension{
			FlowID:       f.ID.String(),
			Provider:     f.Metadata.Provider,
			Model:        f.Request.Model,
			HasToolCalls: f.Response != nil && len(f.Response.ToolCalls) > 0,
			HasThinking:  f.Response != nil && f.Response.Thinking != nil,
		},
	}

	if f.Timestamps.DurationMs != nil {
		entry.Time = float64(*f.Timestamps.DurationMs)
		entry.Timings.Wait = float64(*f.Timestamps.DurationMs)
	}

	if f.Response != nil {
		respHeaders := make([]harHeader, len(f.Response.Headers))
		for i, h := range f.Response.Headers {
			respHeaders[i] = harHeader{Name: h.Name, Value: h.Value}
		}
		entry.Response = harResponse{
			Status:      f.Response.StatusCode,
			StatusText:  f.Response.StatusText,
			HTTPVersion: "HTTP/1.1",
			Headers:     respHeaders,
			Content:     harContent{Size: int64(len(f.Response.Content)), MimeType: "text/event-stream", Text: f.Response.Content},
			BodySize:    f.Response.ByteSize,
		}
		entry.LLM.InputTokens = f.Response.Usage.InputTokens
		entry.LLM.OutputTokens = f.Response.Usage.OutputTokens
		entry.LLM.TotalTokens = f.Response.Usage.TotalTokens
	} else {
		entry.Response = harResponse{HTTPVersion: "HTTP/1.1", Headers: []harHeader{}}
	}

	return entry
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
