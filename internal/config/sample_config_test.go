package config

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// The embedded sample is what new users get; it has to parse and
// validate as-is.
func TestSampleConfigParses(t *testing.T) {
	sample := GetSampleConfig()
	if sample == "" {
		t.Fatal("embedded sample config is empty")
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(sample), cfg); err != nil {
		t.Fatalf("sample config is not valid YAML: %v", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("sample config should validate: %v", err)
	}
}

// Every documented setting should appear in the sample so users can
// discover it without reading source.
func TestSampleConfigDocumentsAllSettings(t *testing.T) {
	sample := GetSampleConfig()
	for _, key := range []string{
		"key:", "secret:", "timeout:", "max_retries:",
		"default_filter:", "output_format:",
		"undo_capacity:", "show_completed:",
		"enabled:", "retention_days:",
	} {
		if !strings.Contains(sample, key) {
			t.Errorf("sample config missing %q", key)
		}
	}
}
