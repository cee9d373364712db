package query

import (
	"encoding/json"
	"reflect"
	"strconv"

	"github.com/flowtap/flowcore/pkg/flow"
)

// DiffKind discriminates one structural diff item.
type DiffKind string

const (
	DiffAdded     DiffKind = "Added"
	DiffRemoved   DiffKind = "Removed"
	DiffModified  DiffKind = "Modified"
	DiffUnchanged DiffKind = "Unchanged"
)

// DiffItem is one path-scoped comparison result.
type DiffItem struct {
	Path       string   `json:"path"`
	Kind       DiffKind `json:"kind"`
	LeftValue  any      `json:"leftValue,omitempty"`
	RightValue any      `json:"rightValue,omitempty"`
}

// DiffConfig toggles which paths diff() ignores.
type DiffConfig struct {
	IgnoreTimestamps bool
	IgnoreIDs        bool
	IgnoredPaths     []string
}

// DiffResult is the structural comparison of two Flows (spec.md §4.7).
type DiffResult struct {
	RequestDiffs  []DiffItem `json:"requestDiffs"`
	ResponseDiffs []DiffItem `json:"responseDiffs"`
	MetadataDiffs []DiffItem `json:"metadataDiffs"`
	MessageDiffs  []DiffItem `json:"messageDiffs"`
	TokenDiff     DiffItem   `json:"tokenDiff"`
}

// Diff structurally compares left and right.
func (s *Service) Diff(left, right *flow.Flow, cfg DiffConfig) DiffResult {
	ignored := make(map[string]bool, len(cfg.IgnoredPaths))
	for _, p := range cfg.IgnoredPaths {
		ignored[p] = true
	}

	leftReq := toMap(left.Request)
	rightReq := toMap(right.Request)
	leftResp := toMap(left.Response)
	rightResp := toMap(right.Response)
	leftMeta := toMap(left.Metadata)
	rightMeta := toMap(right.Metadata)

	if cfg.IgnoreTimestamps {
		delete(leftReq, "createdAt")
		delete(rightReq, "createdAt")
		delete(leftResp, "startedAt")
		delete(rightResp, "startedAt")
		delete(leftResp, "endedAt")
		delete(rightResp, "endedAt")
	}

	result := DiffResult{
		RequestDiffs:  diffMaps("request", leftReq, rightReq, ignored),
		ResponseDiffs: diffMaps("response", leftResp, rightResp, ignored),
		MetadataDiffs: diffMaps("metadata", leftMeta, rightMeta, ignored),
		MessageDiffs:  diffMessages(left.Request.Messages, right.Request.Messages),
	}

	lt, rt := usageTotal(left), usageTotal(right)
	result.TokenDiff = DiffItem{Path: "response.usage.totalTokens", Kind: kindFor(lt, rt), LeftValue: lt, RightValue: rt}

	return result
}

func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func diffMaps(prefix string, left, right map[string]any, ignored map[string]bool) []DiffItem {
	keys := make(map[string]bool)
	for k := range left {
		keys[k] = true
	}
	for k := range right {
		keys[k] = true
	}
	var out []DiffItem
	for k := range keys {
		path := prefix + "." + k
		if ignored[path] {
			continue
		}
		lv, lok := left[k]
		rv, rok := right[k]
		switch {
		case lok && !rok:
			out = append(out, DiffItem{Path: path, Kind: DiffRemoved, LeftValue: lv})
		case !lok && rok:
			out = append(out, DiffItem{Path: path, Kind: DiffAdded, RightValue: rv})
		case !reflect.DeepEqual(lv, rv):
			out = append(out, DiffItem{Path: path, Kind: DiffModified, LeftValue: lv, RightValue: rv})
		default:
			out = append(out, DiffItem{Path: path, Kind: DiffUnchanged, LeftValue: lv, RightValue: rv})
		}
	}
	return out
}

func diffMessages(left, right []flow.Message) []DiffItem {
	max := len(left)
	if len(right) > max {
		max = len(right)
	}
	var out []DiffItem
	for i := 0; i < max; i++ {
		path := "messages[" + strconv.Itoa(i) + "]"
		switch {
		case i >= len(left):
			out = append(out, DiffItem{Path: path, Kind: DiffAdded, RightValue: right[i]})
		case i >= len(right):
			out = append(out, DiffItem{Path: path, Kind: DiffRemoved, LeftValue: left[i]})
		case !reflect.DeepEqual(left[i], right[i]):
			out = append(out, DiffItem{Path: path, Kind: DiffModified, LeftValue: left[i], RightValue: right[i]})
		default:
			out = append(out, DiffItem{Path: path, Kind: DiffUnchanged, LeftValue: left[i], RightValue: right[i]})
		}
	}
	return out
}

func kindFor(l, r *int64) DiffKind {
	switch {
	case l == nil && r == nil:
		return DiffUnchanged
	case l == nil:
		return DiffAdded
	case r == nil:
		return DiffRemoved
	case *l != *r:
		return DiffModified
	default:
		return DiffUnchanged
	}
}
