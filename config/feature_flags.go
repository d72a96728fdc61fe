package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Feature names.
const (
	FeatureSubjectReset = "session.subject_reset"
	FeatureImportInbox  = "import.inbox"
	FeatureHTTPAPI      = "api.http"
	FeatureMetrics      = "observability.metrics"
	FeatureEventBridge  = "events.redis_bridge"
	FeatureEventLog     = "events.audit_log"
)

// Feature describes a single switchable capability.
type Feature struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Enabled     bool   `yaml:"enabled"`
}

// FeatureFlags holds runtime feature toggles. Safe for concurrent use.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// LoadFeatureFlags builds flags from defaults, then file values, then
// FEATURE_<NAME> environment variables.
func LoadFeatureFlags(fromFile map[string]bool) *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()

	for name, enabled := range fromFile {
		if f, ok := ff.features[name]; ok {
			f.Enabled = enabled
		}
	}

	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	defaults := []Feature{
		{
			Name:        FeatureSubjectReset,
			Description: "Reset the session pool and current student when the scheduled subject changes",
			Enabled:     true,
		},
		{
			Name:        FeatureImportInbox,
			Description: "Watch the inbox directory and import dropped roster and schedule files",
			Enabled:     false,
		},
		{
			Name:        FeatureHTTPAPI,
			Description: "Serve the JSON API",
			Enabled:     true,
		},
		{
			Name:        FeatureMetrics,
			Description: "Expose Prometheus metrics",
			Enabled:     true,
		},
		{
			Name:        FeatureEventBridge,
			Description: "Fan classroom events out to other instances over Redis",
			Enabled:     false,
		},
		{
			Name:        FeatureEventLog,
			Description: "Append every classroom event to the PostgreSQL event log",
			Enabled:     true,
		},
	}

	for i := range defaults {
		f := defaults[i]
		ff.features[f.Name] = &f
	}
}

func (ff *FeatureFlags) loadFromEnvironment() {
	for name, f := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			f.Enabled = b
		}
	}
}

// featureNameToEnvKey maps "session.subject_reset" to FEATURE_SESSION_SUBJECT_RESET.
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether the feature is on. Unknown features are off.
func (ff *FeatureFlags) IsEnabled(name string) bool {
	if ff == nil {
		return false
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[name]
	return ok && f.Enabled
}

// Set switches a feature on or off.
func (ff *FeatureFlags) Set(name string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[name]
	if !ok {
		return &FeatureFlagError{Feature: name, Message: "feature not found"}
	}
	f.Enabled = enabled
	return nil
}

// All returns a copy of every feature sorted by name.
func (ff *FeatureFlags) All() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Feature string
	Message string
}

func (e *FeatureFlagError) Error() string {
	return fmt.Sprintf("feature flag %s: %s", e.Feature, e.Message)
}
