package reassemble

import (
	"time"

	"github.com/flowtap/flowcore/pkg/flow"
)

// passthroughMachine handles an unrecognized or non-streaming dialect:
// bytes are accumulated verbatim as Content with no event parsing, so an
// unknown provider still produces a usable (if shallow) Flow rather than
// failing capture outright (spec.md §4.2's Unknown-dialect fallback).
type passthroughMachine struct {
	content    boundedBuffer
	chunkCount int
	timing     *chunkTiming
	started    time.Time
}

func newPassthroughMachine(limits Limits) Machine {
	now := time.Now()
	return &passthroughMachine{
		content: boundedBuffer{limit: limits.MaxResponseBytes},
		timing:  newChunkTiming(now),
		started: now,
	}
}

func (m *passthroughMachine) Feed(chunk []byte) ([]Delta, bool, error) {
	if len(chunk) == 0 {
		return nil, false, nil
	}
	m.chunkCount++
	m.timing.Observe(time.Now())
	m.content.Append(string(chunk))
	d := Delta{Kind: DeltaContent, Text: string(chunk)}
	return []Delta{d}, m.content.Exceeded(), nil
}

func (m *passthroughMachine) Seal() *flow.Response {
	now := time.Now()
	return &flow.Response{
		Content:   m.content.String(),
		StartedAt: m.started,
		EndedAt:   &now,
		Stream: &flow.StreamInfo{
			ChunkCount:          m.chunkCount,
			FirstChunkLatencyMs: m.timing.FirstChunkLatencyMs(),
			MeanInterChunkMs:    m.timing.MeanInterChunkMs(),
		},
	}
}

func (m *passthroughMachine) ParseErrorCount() int { return 0 }
