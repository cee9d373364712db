package export

import (
	"fmt"
	"strings"

	"github.com/flowtap/flowcore/pkg/flow"
)

func exportMarkdown(flows []*flow.Flow) ([]byte, error) {
	var b strings.Builder
	for i, f := range flows {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		writeFlowMarkdown(&b, f)
	}
	return []byte(b.String()), nil
}

func writeFlowMarkdown(b *strings.Builder, f *flow.Flow) {
	fmt.Fprintf(b, "# Flow %s\n\n", f.ID.String())

	b.WriteString("## Metadata\n\n")
	fmt.Fprintf(b, "- Provider: %s\n", f.Metadata.Provider)
	fmt.Fprintf(b, "- Model: %s\n", f.Request.Model)
	fmt.Fprintf(b, "- State: %s\n", f.State)
	fmt.Fprintf(b, "- Created: %s\n", f.Timestamps.Created.Format("2006-01-02T15:04:05Z07:00"))
	if f.Timestamps.DurationMs != nil {
		fmt.Fprintf(b, "- Duration: %dms\n", *f.Timestamps.DurationMs)
	}
	b.WriteString("\n")

	if f.Request.System != "" {
		b.WriteString("## System Prompt\n\n")
		fmt.Fprintf(b, "```\n%s\n```\n\n", f.Request.System)
	}

	if len(f.Request.Messages) > 0 {
		b.WriteString("## Messages\n\n")
		for _, m := range f.Request.Messages {
			fmt.Fprintf(b, "**%s**: %s\n\n", m.Role, escapeMarkdown(m.Content.PlainText()))
		}
	}

	if f.Response != nil {
		b.WriteString("## Response\n\n")
		fmt.Fprintf(b, "%s\n\n", escapeMarkdown(f.Response.Content))

		if f.Response.Thinking != nil {
			b.WriteString("<details><summary>Thinking</summary>\n\n")
			fmt.Fprintf(b, "%s\n\n", escapeMarkdown(f.Response.Thinking.Text))
			b.WriteString("</details>\n\n")
		}

		if len(f.Response.ToolCalls) > 0 {
			b.WriteString("## Tool Calls\n\n")
			for _, tc := range f.Response.ToolCalls {
				fmt.Fprintf(b, "- `%s(%s)`\n", tc.FunctionName, tc.Arguments)
			}
			b.WriteString("\n")
		}

		b.WriteString("## Usage\n\n")
		fmt.Fprintf(b, "- Input tokens: %s\n", ptrInt64String(f.Response.Usage.InputTokens))
		fmt.Fprintf(b, "- Output tokens: %s\n", ptrInt64String(f.Response.Usage.OutputTokens))
		fmt.Fprintf(b, "- Total tokens: %s\n", ptrInt64String(f.Response.Usage.TotalTokens))
	}

	if f.Error != nil {
		b.WriteString("## Error\n\n")
		fmt.Fprintf(b, "- Kind: %s\n", f.Error.Kind)
		fmt.Fprintf(b, "- Message: %s\n", f.Error.Message)
	}
}
