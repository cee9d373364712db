package query

import (
	"context"
	"strconv"
	"time"

	"github.com/flowtap/flowcore/pkg/filter"
	"github.com/flowtap/flowcore/pkg/flow"
)

// DefaultBuckets is the bucket count get_enhanced_stats uses when the
// caller doesn't specify one (spec.md §4.7).
const DefaultBuckets = 24

// TrendPoint is one bucket of the time-bucketed trend series.
type TrendPoint struct {
	BucketStart int64 `json:"bucketStart"` // unix millis
	Count       int   `json:"count"`
	ErrorCount  int   `json:"errorCount"`
	AvgLatency  float64 `json:"avgLatency"`
}

// Histogram is a named count-per-bucket distribution.
type Histogram struct {
	BucketLabels []string `json:"bucketLabels"`
	Counts       []int    `json:"counts"`
}

// EnhancedStats adds trend and distribution data to FlowStats.
type EnhancedStats struct {
	FlowStats
	Trend             []TrendPoint     `json:"trend"`
	LatencyHistogram  Histogram        `json:"latencyHistogram"`
	TokenHistogram    Histogram        `json:"tokenHistogram"`
	ErrorKindHistogram map[string]int  `json:"errorKindHistogram"`
}

var latencyBucketBounds = []int64{100, 500, 1000, 5000, 10000, 30000}
var tokenBucketBounds = []int64{100, 500, 1000, 5000, 20000}

// EnhancedStats aggregates matched Flows within timeRange into bucket
// count time-bucketed trend series and histogram distributions.
func (s *Service) EnhancedStats(ctx context.Context, expr *filter.Expr, timeRange TimeRange, bucketCount int) (EnhancedStats, error) {
	if bucketCount <= 0 {
		bucketCount = DefaultBuckets
	}
	matched, err := s.matchAll(ctx, expr)
	if err != nil {
		return EnhancedStats{}, err
	}
	matched = filterByTimeRange(matched, &timeRange)

	es := EnhancedStats{
		FlowStats:          computeStats(matched),
		ErrorKindHistogram: make(map[string]int),
	}
	es.Trend = computeTrend(matched, timeRange, bucketCount)
	es.LatencyHistogram = computeLatencyHistogram(matched)
	es.TokenHistogram = computeTokenHistogram(matched)
	for _, f := range matched {
		if f.Error != nil {
			es.ErrorKindHistogram[string(f.Error.Kind)]++
		}
	}
	return es, nil
}

func computeTrend(flows []*flow.Flow, tr TimeRange, bucketCount int) []TrendPoint {
	span := tr.End.Sub(tr.Start)
	if span <= 0 || bucketCount <= 0 {
		return nil
	}
	bucketWidth := span / time.Duration(bucketCount)
	points := make([]TrendPoint, bucketCount)
	sums := make([]int64, bucketCount)
	counts := make([]int64, bucketCount)
	for i := range points {
		points[i].BucketStart = tr.Start.Add(time.Duration(i) * bucketWidth).UnixMilli()
	}
	for _, f := range flows {
		idx := int(f.Timestamps.Created.Sub(tr.Start) / bucketWidth)
		if idx < 0 {
			idx = 0
		}
		if idx >= bucketCount {
			idx = bucketCount - 1
		}
		points[idx].Count++
		if f.State == flow.StateFailed {
			points[idx].ErrorCount++
		}
		if f.Timestamps.DurationMs != nil {
			sums[idx] += *f.Timestamps.DurationMs
			counts[idx]++
		}
	}
	for i := range points {
		if counts[i] > 0 {
			points[i].AvgLatency = float64(sums[i]) / float64(counts[i])
		}
	}
	return points
}

func computeLatencyHistogram(flows []*flow.Flow) Histogram {
	h := bucketedHistogram(latencyBucketBounds, "ms", func(f *flow.Flow) (int64, bool) {
		if f.Timestamps.DurationMs == nil {
			return 0, false
		}
		return *f.Timestamps.DurationMs, true
	}, flows)
	return h
}

func computeTokenHistogram(flows []*flow.Flow) Histogram {
	return bucketedHistogram(tokenBucketBounds, "tok", func(f *flow.Flow) (int64, bool) {
		if f.Response == nil || f.Response.Usage.TotalTokens == nil {
			return 0, false
		}
		return *f.Response.Usage.TotalTokens, true
	}, flows)
}

func bucketedHistogram(bounds []int64, unit string, value func(*flow.Flow) (int64, bool), flows []*flow.Flow) Histogram {
	labels := make([]string, len(bounds)+1)
	for i, b := range bounds {
		if i == 0 {
			labels[i] = "<" + strconv.FormatInt(b, 10) + unit
		} else {
			labels[i] = strconv.FormatInt(bounds[i-1], 10) + "-" + strconv.FormatInt(b, 10) + unit
		}
	}
	labels[len(bounds)] = ">=" + strconv.FormatInt(bounds[len(bounds)-1], 10) + unit

	counts := make([]int, len(bounds)+1)
	for _, f := range flows {
		v, ok := value(f)
		if !ok {
			continue
		}
		idx := len(bounds)
		for i, b := range bounds {
			if v < b {
				idx = i
				break
			}
		}
		counts[idx]++
	}
	return Histogram{BucketLabels: labels, Counts: counts}
}
