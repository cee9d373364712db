package query

import (
	"context"
	"time"

	"github.com/flowtap/flowcore/pkg/filter"
	"github.com/flowtap/flowcore/pkg/flow"
)

// TimeRange bounds a stats query to [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// FlowStats is the aggregate summary of get_flow_stats (spec.md §4.7).
type FlowStats struct {
	Total             int            `json:"total"`
	Successful        int            `json:"successful"`
	Failed            int            `json:"failed"`
	SuccessRate       float64        `json:"successRate"`
	AvgLatencyMs      float64        `json:"avgLatencyMs"`
	MinLatencyMs      int64          `json:"minLatencyMs"`
	MaxLatencyMs      int64          `json:"maxLatencyMs"`
	TotalInputTokens  int64          `json:"totalInputTokens"`
	TotalOutputTokens int64          `json:"totalOutputTokens"`
	AvgInputTokens    float64        `json:"avgInputTokens"`
	AvgOutputTokens   float64        `json:"avgOutputTokens"`
	ByProvider        map[string]int `json:"byProvider"`
	ByModel           map[string]int `json:"byModel"`
	ByState           map[string]int `json:"byState"`
}

// Stats aggregates matched Flows, optionally scoped to timeRange.
func (s *Service) Stats(ctx context.Context, expr *filter.Expr, timeRange *TimeRange) (FlowStats, error) {
	matched, err := s.matchAll(ctx, expr)
	if err != nil {
		return FlowStats{}, err
	}
	matched = filterByTimeRange(matched, timeRange)
	return computeStats(matched), nil
}

func filterByTimeRange(flows []*flow.Flow, tr *TimeRange) []*flow.Flow {
	if tr == nil {
		return flows
	}
	var out []*flow.Flow
	for _, f := range flows {
		c := f.Timestamps.Created
		if !c.Before(tr.Start) && c.Before(tr.End) {
			out = append(out, f)
		}
	}
	return out
}

func computeStats(flows []*flow.Flow) FlowStats {
	st := FlowStats{
		ByProvider: make(map[string]int),
		ByModel:    make(map[string]int),
		ByState:    make(map[string]int),
	}
	var latencySum, latencyCount int64
	minLatency, maxLatency := int64(-1), int64(-1)

	for _, f := range flows {
		st.Total++
		st.ByProvider[f.Metadata.Provider]++
		st.ByModel[f.Request.Model]++
		st.ByState[string(f.State)]++

		switch f.State {
		case flow.StateCompleted:
			st.Successful++
		case flow.StateFailed:
			st.Failed++
		}

		if f.Timestamps.DurationMs != nil {
			d := *f.Timestamps.DurationMs
			latencySum += d
			latencyCount++
			if minLatency < 0 || d < minLatency {
				minLatency = d
			}
			if d > maxLatency {
				maxLatency = d
			}
		}
		if f.Response != nil {
			if f.Response.Usage.InputTokens != nil {
				st.TotalInputTokens += *f.Response.Usage.InputTokens
			}
			if f.Response.Usage.OutputTokens != nil {
				st.TotalOutputTokens += *f.Response.Usage.OutputTokens
			}
		}
	}

	if st.Total > 0 {
		st.SuccessRate = float64(st.Successful) / float64(st.Total)
		st.AvgInputTokens = float64(st.TotalInputTokens) / float64(st.Total)
		st.AvgOutputTokens = float64(st.TotalOutputTokens) / float64(st.Total)
	}
	if latencyCount > 0 {
		st.AvgLatencyMs = float64(latencySum) / float64(latencyCount)
	}
	if minLatency >= 0 {
		st.MinLatencyMs = minLatency
	}
	if maxLatency >= 0 {
		st.MaxLatencyMs = maxLatency
	}
	return st
}
