package flowconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and parses the YAML file at path, merging it over
// Default() so that a partial config file only overrides the fields it
// names. A missing file is not an error; Default() is returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("flowconfig: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("flowconfig: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("flowconfig: %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects configuration values that would make the rest of
// the system misbehave rather than merely degrade.
func (c Config) Validate() error {
	if c.Capture.SampleRate < 0 || c.Capture.SampleRate > 1 {
		return fmt.Errorf("capture.sampleRate must be in [0,1], got %v", c.Capture.SampleRate)
	}
	if c.Storage.MemoryStoreSize < 0 {
		return fmt.Errorf("storage.memoryStoreSize must be >= 0")
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("storage.retentionDays must be >= 0")
	}
	if c.EventBus.SubscriberCapacity <= 0 {
		return fmt.Errorf("eventBus.subscriberCapacity must be > 0")
	}
	for _, r := range c.RedactionRules {
		if r.Regex == "" {
			return fmt.Errorf("redaction rule %q: regex must not be empty", r.Name)
		}
	}
	return nil
}
