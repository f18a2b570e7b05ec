package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Integrations is the optional YAML file declaring extra LLM providers and
// live exchanges. ${VAR} references are expanded from the environment
// before parsing so secrets stay out of the file.
type Integrations struct {
	Providers []ProviderEntry `yaml:"providers"`
	Exchanges []ExchangeEntry `yaml:"exchanges"`
}

// ProviderEntry overrides a built-in LLM provider or adds a new
// OpenAI-compatible one.
type ProviderEntry struct {
	Name         string            `yaml:"name"`
	BaseURL      string            `yaml:"base_url"`
	APIKey       string            `yaml:"api_key"`
	DefaultModel string            `yaml:"default_model"`
	Headers      map[string]string `yaml:"headers"`
}

// ExchangeEntry declares a live exchange endpoint.
type ExchangeEntry struct {
	Name            string  `yaml:"name"`
	BaseURL         string  `yaml:"base_url"`
	APIKey          string  `yaml:"api_key"`
	APISecret       string  `yaml:"api_secret"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
}

// LoadIntegrations reads and validates the integrations file at path.
func LoadIntegrations(path string) (*Integrations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read integrations file: %w", err)
	}
	return ParseIntegrations(data)
}

// ParseIntegrations expands environment variables in data and decodes it.
func ParseIntegrations(data []byte) (*Integrations, error) {
	expanded := os.ExpandEnv(string(data))

	var in Integrations
	if err := yaml.Unmarshal([]byte(expanded), &in); err != nil {
		return nil, fmt.Errorf("parse integrations yaml: %w", err)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &in, nil
}

// Validate checks names are present and unique and normalizes them to
// lower case.
func (in *Integrations) Validate() error {
	seen := make(map[string]bool, len(in.Providers))
	for i := range in.Providers {
		p := &in.Providers[i]
		p.Name = strings.ToLower(strings.TrimSpace(p.Name))
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("providers[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
	}

	seen = make(map[string]bool, len(in.Exchanges))
	for i := range in.Exchanges {
		e := &in.Exchanges[i]
		e.Name = strings.ToLower(strings.TrimSpace(e.Name))
		if e.Name == "" {
			return fmt.Errorf("exchanges[%d]: name is required", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("exchanges[%d]: duplicate name %q", i, e.Name)
		}
		if e.BaseURL != "" && !strings.HasPrefix(e.BaseURL, "https://") && !strings.HasPrefix(e.BaseURL, "http://") {
			return fmt.Errorf("exchanges[%d]: base_url must be an http(s) URL", i)
		}
		if e.RateLimitPerSec < 0 {
			return fmt.Errorf("exchanges[%d]: rate_limit_per_sec must not be negative", i)
		}
		seen[e.Name] = true
	}
	return nil
}
