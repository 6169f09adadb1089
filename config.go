package xacml

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Bounded reference depths (core spec 5.10, 5.12); both default to 10.
const (
	DefaultMaxVariableRefDepth = 10
	DefaultMaxPolicyRefDepth   = 10
)

// Config is the engine bootstrap configuration. It selects the root policy,
// the standard-environment attribute source and the limits; extension
// registries are wired programmatically.
type Config struct {
	RootPolicyID      string `json:"root_policy_id" yaml:"root_policy_id"`
	RootPolicyVersion string `json:"root_policy_version,omitempty" yaml:"root_policy_version,omitempty"`

	MaxVariableRefDepth int `json:"max_variable_ref_depth" yaml:"max_variable_ref_depth"`
	MaxPolicyRefDepth   int `json:"max_policy_ref_depth" yaml:"max_policy_ref_depth"`

	StrictAttributeIssuerMatch bool   `json:"strict_attribute_issuer_match" yaml:"strict_attribute_issuer_match"`
	EnvironmentSource          string `json:"environment_source" yaml:"environment_source"` // pdp-only | request-else-pdp | request-only
	XPathEnabled               bool   `json:"xpath_enabled" yaml:"xpath_enabled"`
	MultipleDecision           bool   `json:"multiple_decision" yaml:"multiple_decision"`

	DecisionCache DecisionCacheConfig `json:"decision_cache" yaml:"decision_cache"`
}

// DecisionCacheConfig sizes the optional decision cache.
type DecisionCacheConfig struct {
	Enabled             bool  `json:"enabled" yaml:"enabled"`
	TTLMillis           int64 `json:"ttl_ms" yaml:"ttl_ms"`
	RistrettoNumCounter int64 `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost    int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer     int64 `json:"ristretto_buffer" yaml:"ristretto_buffer"`
}

// ConfigLoader loads configuration from YAML or JSON.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader { return &ConfigLoader{} }

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MaxVariableRefDepth <= 0 {
		c.MaxVariableRefDepth = DefaultMaxVariableRefDepth
	}
	if c.MaxPolicyRefDepth <= 0 {
		c.MaxPolicyRefDepth = DefaultMaxPolicyRefDepth
	}
	if c.EnvironmentSource == "" {
		c.EnvironmentSource = "request-else-pdp"
	}
}

func (c *Config) Validate() error {
	if c.RootPolicyID == "" {
		return fmt.Errorf("config: root_policy_id is required")
	}
	switch c.EnvironmentSource {
	case "pdp-only", "request-else-pdp", "request-only":
	default:
		return fmt.Errorf("config: unknown environment_source %q", c.EnvironmentSource)
	}
	return nil
}

func (c *Config) environmentSource() EnvironmentSource {
	switch c.EnvironmentSource {
	case "pdp-only":
		return PDPOnly
	case "request-only":
		return RequestOnly
	default:
		return RequestElsePDP
	}
}

// NewPDPFromConfig assembles a PDP over a policy provider using the
// configuration, wiring the decision cache and preprocessor variants.
func NewPDPFromConfig(cfg *Config, provider PolicyProvider, opts ...PDPOption) (*PDP, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	resolver, err := NewRootPolicyResolver(provider, cfg.RootPolicyID, cfg.RootPolicyVersion)
	if err != nil {
		return nil, err
	}
	base := []PDPOption{
		WithStrictAttributeIssuerMatch(cfg.StrictAttributeIssuerMatch),
		WithEnvironmentSource(cfg.environmentSource()),
		WithMaxVariableRefDepth(cfg.MaxVariableRefDepth),
		WithMaxPolicyRefDepth(cfg.MaxPolicyRefDepth),
	}
	if cfg.MultipleDecision {
		base = append(base, WithRequestPreprocessor(NewMultipleDecisionPreprocessor(PreprocessorCapabilities{
			PolicyIdListSupported: true,
		})))
	}
	if cfg.DecisionCache.Enabled {
		cache, cerr := NewRistrettoDecisionCache(RistrettoDecisionCacheConfig{
			NumCounters: cfg.DecisionCache.RistrettoNumCounter,
			MaxCost:     cfg.DecisionCache.RistrettoMaxCost,
			BufferItems: cfg.DecisionCache.RistrettoBuffer,
			TTL:         time.Duration(cfg.DecisionCache.TTLMillis) * time.Millisecond,
		})
		if cerr != nil {
			return nil, cerr
		}
		base = append(base, WithDecisionCache(cache))
	}
	return NewPDP(resolver, append(base, opts...)...)
}
