// Package flowconfig holds the operator-supplied configuration that
// spec.md §9 leaves as "decide at implementation time" items: memory
// store size, on-disk retention, body caps, sampling, exclusion lists,
// redaction rules, threshold rules, and event-bus sizing. A file is
// loaded once at startup and may be hot-reloaded via fsnotify.
package flowconfig

import "time"

// RedactionTarget names which part of a Flow a RedactionRule applies to.
type RedactionTarget string

const (
	TargetRequestHeaders  RedactionTarget = "request_headers"
	TargetRequestBody     RedactionTarget = "request_body"
	TargetResponseHeaders RedactionTarget = "response_headers"
	TargetResponseBody    RedactionTarget = "response_body"
	TargetAll             RedactionTarget = "all"
)

// RedactionRule is one named regex-replace rule applied at export time
// only (spec.md §4.10); Flows on disk and in memory are never mutated.
type RedactionRule struct {
	Name        string          `yaml:"name"`
	Regex       string          `yaml:"regex"`
	Replacement string          `yaml:"replacement"`
	Target      RedactionTarget `yaml:"target"`
}

// ThresholdRules mirrors pkg/threshold.Rules in the on-disk shape; the
// daemon converts it after load.
type ThresholdRules struct {
	LatencyLimitMs int64 `yaml:"latencyLimitMs"`
	TotalLimit     int64 `yaml:"totalTokenLimit"`
	InputLimit     int64 `yaml:"inputTokenLimit"`
	OutputLimit    int64 `yaml:"outputTokenLimit"`
}

// Capture governs what the four capture hooks record and how
// aggressively they sample.
type Capture struct {
	MaxRequestBodyBytes  int64   `yaml:"maxRequestBodyBytes"`
	MaxResponseBodyBytes int64   `yaml:"maxResponseBodyBytes"`
	PersistRawChunks     bool    `yaml:"persistRawChunks"`
	SampleRate           float64 `yaml:"sampleRate"`
	ExcludedModels       []string `yaml:"excludedModels"`
	ExcludedPaths        []string `yaml:"excludedPaths"`
}

// Storage governs the memory hot-store and the on-disk shard tree.
type Storage struct {
	MemoryStoreSize  int    `yaml:"memoryStoreSize"`
	RetentionDays    int    `yaml:"retentionDays"`
	Root             string `yaml:"root"`
	MaxShardFileSize int64  `yaml:"maxShardFileSize"`
	WriteQueueSize   int    `yaml:"writeQueueSize"`
}

// EventBus governs per-subscriber buffering.
type EventBus struct {
	SubscriberCapacity int `yaml:"subscriberCapacity"`
}

// Telemetry governs whether Flow-pipeline spans are exported to an
// OTLP/HTTP collector. Disabled by default; spec.md treats tracing as
// an operator opt-in, not an always-on cost.
type Telemetry struct {
	Enabled       bool              `yaml:"enabled"`
	RecordContent bool              `yaml:"recordContent"`
	ServiceName   string            `yaml:"serviceName"`
	OTLPEndpoint  string            `yaml:"otlpEndpoint"`
	Insecure      bool              `yaml:"insecure"`
	Headers       map[string]string `yaml:"headers"`
}

// Config is the full on-disk shape. Zero-value fields are filled from
// Default() before use; Load always merges parsed content over a
// Default() base so a partial file is valid.
type Config struct {
	Capture        Capture         `yaml:"capture"`
	Storage        Storage         `yaml:"storage"`
	EventBus       EventBus        `yaml:"eventBus"`
	Thresholds     ThresholdRules  `yaml:"thresholds"`
	RedactionRules []RedactionRule `yaml:"redactionRules"`
	Telemetry      Telemetry       `yaml:"telemetry"`
}

// Default returns the configuration spec.md §9 describes as the
// resolved posture for every open question it leaves unguessed.
func Default() Config {
	return Config{
		Capture: Capture{
			MaxRequestBodyBytes:  1 << 20,  // 1 MiB
			MaxResponseBodyBytes: 10 << 20, // 10 MiB
			PersistRawChunks:     false,
			SampleRate:           1.0,
		},
		Storage: Storage{
			MemoryStoreSize:  1000,
			RetentionDays:    7,
			Root:             "./flowdata",
			MaxShardFileSize: 64 << 20, // 64 MiB
			WriteQueueSize:   1024,
		},
		EventBus: EventBus{
			SubscriberCapacity: 1024,
		},
		Telemetry: Telemetry{
			Enabled:     false,
			ServiceName: "flowcore",
		},
	}
}

// ReloadInterval is the fsnotify debounce window: rapid successive
// writes (editors that truncate-then-write) collapse into one reload.
const ReloadInterval = 250 * time.Millisecond
