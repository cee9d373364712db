package flow

import "time"

// ClientInfo identifies the client that issued the captured request.
type ClientInfo struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	SDK       string `json:"sdk,omitempty"`
	SDKVersion string `json:"sdkVersion,omitempty"`
}

// RoutingInfo records how the proxy's alias resolver mapped this
// request onto an upstream provider/model. The core consumes this as an
// opaque value supplied at capture time; it does not perform routing.
type RoutingInfo struct {
	OriginalModel  string `json:"originalModel,omitempty"`
	ResolvedModel  string `json:"resolvedModel,omitempty"`
	RoutedProvider string `json:"routedProvider,omitempty"`
	MatchedRuleID  string `json:"matchedRuleId,omitempty"`
}

// Metadata is the Metadata block a Flow owns.
type Metadata struct {
	Provider             string            `json:"provider"`
	CredentialID         string            `json:"credentialId,omitempty"`
	CredentialDisplay    string            `json:"credentialDisplay,omitempty"`
	RetryCount           int               `json:"retryCount"`
	Client               ClientInfo        `json:"client"`
	Routing              RoutingInfo       `json:"routing"`
	InjectedParameters   map[string]any    `json:"injectedParameters,omitempty"`
	ContextUsagePercent  *float64          `json:"contextUsagePercent,omitempty"`
}

// Timestamps is the Timestamps block a Flow owns. All fields except
// Created are optional until the relevant transition has occurred.
type Timestamps struct {
	Created        time.Time  `json:"created"`
	RequestStart   *time.Time `json:"requestStart,omitempty"`
	RequestEnd     *time.Time `json:"requestEnd,omitempty"`
	ResponseStart  *time.Time `json:"responseStart,omitempty"`
	ResponseEnd    *time.Time `json:"responseEnd,omitempty"`
	DurationMs     *int64     `json:"durationMs,omitempty"`
	TTFBMs         *int64     `json:"ttfbMs,omitempty"`
}

// Annotations is the only block that may change once a Flow is
// terminal.
type Annotations struct {
	Starred bool     `json:"starred"`
	Marker  string   `json:"marker,omitempty"`
	Comment string   `json:"comment,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// HasTag reports whether a is tagged with the given value, case-sensitive
// exact match per the `~tag` filter predicate.
func (a Annotations) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
