package export

import (
	"encoding/csv"
	"encoding/json"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/flowtap/flowcore/pkg/flowconfig"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlow(t *testing.T) *flow.Flow {
	t.Helper()
	entropy := rand.New(rand.NewSource(1))
	id, err := ulid.New(uint64(time.Now().UnixMilli()), entropy)
	require.NoError(t, err)
	f := flow.New(id, flow.Request{
		Model:    "gpt-4",
		System:   "be helpful",
		Messages: []flow.Message{{Role: flow.RoleUser, Content: flow.MessageContent{Text: "hi there"}}},
	}, time.Now())
	f.Metadata.Provider = "openai"
	f.State = flow.StateCompleted
	total := int64(30)
	in, out := int64(10), int64(20)
	f.Response = &flow.Response{Content: "hello back", Usage: flow.Usage{InputTokens: &in, OutputTokens: &out, TotalTokens: &total}}
	return f
}

func TestExportJSONRoundTrips(t *testing.T) {
	f := newFlow(t)
	res, err := Export([]*flow.Flow{f}, Options{Format: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)

	var decoded []flow.Flow
	require.NoError(t, json.Unmarshal(res.ExportData, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, f.ID, decoded[0].ID)
	assert.Equal(t, "hello back", decoded[0].Response.Content)
}

func TestExportJSONLOneObjectPerLine(t *testing.T) {
	flows := []*flow.Flow{newFlow(t), newFlow(t)}
	res, err := Export(flows, Options{Format: FormatJSONL})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(res.ExportData), "\n"), "\n")
	assert.Len(t, lines, 2)
	for _, line := range lines {
		var f flow.Flow
		assert.NoError(t, json.Unmarshal([]byte(line), &f))
	}
}

func TestExportCSVHasHeaderAndOneRowPerFlow(t *testing.T) {
	flows := []*flow.Flow{newFlow(t)}
	res, err := Export(flows, Options{Format: FormatCSV})
	require.NoError(t, err)

	r := csv.NewReader(strings.NewReader(string(res.ExportData)))
	rows, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "openai", rows[1][1])
}

func TestExportHARProducesWellFormedEntryWithLLMExtension(t *testing.T) {
	f := newFlow(t)
	res, err := Export([]*flow.Flow{f}, Options{Format: FormatHAR})
	require.NoError(t, err)

	var doc harFile
	require.NoError(t, json.Unmarshal(res.ExportData, &doc))
	require.Len(t, doc.Log.Entries, 1)
	entry := doc.Log.Entries[0]
	assert.Equal(t, "1.2", doc.Log.Version)
	assert.Equal(t, f.ID.String(), entry.LLM.FlowID)
	assert.Equal(t, "openai", entry.LLM.Provider)
	assert.Equal(t, int64(30), *entry.LLM.TotalTokens)
}

func TestExportMarkdownIncludesMetadataAndMessages(t *testing.T) {
	f := newFlow(t)
	res, err := Export([]*flow.Flow{f}, Options{Format: FormatMarkdown})
	require.NoError(t, err)
	out := string(res.ExportData)
	assert.Contains(t, out, "## Metadata")
	assert.Contains(t, out, "be helpful")
	assert.Contains(t, out, "hi there")
	assert.Contains(t, out, "hello back")
}

func TestRedactionAppliesToExportedBlobNotSource(t *testing.T) {
	f := newFlow(t)
	f.Request.Messages[0].Content.Text = "my api key is sk-abc123"

	rules := []flowconfig.RedactionRule{{Name: "api-key", Regex: `sk-[a-zA-Z0-9]+`, Replacement: "***", Target: flowconfig.TargetAll}}
	res, err := Export([]*flow.Flow{f}, Options{Format: FormatJSON, RedactionRules: rules})
	require.NoError(t, err)
	assert.NotContains(t, string(res.ExportData), "sk-abc123")

	// Source Flow is untouched.
	assert.Equal(t, "my api key is sk-abc123", f.Request.Messages[0].Content.Text)
}
