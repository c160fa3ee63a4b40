// Package config loads agentmesh's process-level configuration: which LLM
// provider backs new agents, where its logs go, and the defaults applied to
// every skillconfig.Document that doesn't override them. YAML is parsed the
// way the rest of this codebase resolves nested documents — $include
// directives and $VAR/${VAR} environment interpolation — and .env files are
// loaded with godotenv before the process environment is read.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Config is agentmesh's top-level configuration document.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Logging LoggingConfig `yaml:"logging"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LLMConfig selects and configures the LLM provider new agents use.
type LLMConfig struct {
	// Provider is "anthropic", "openai", or "mock".
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// LoggingConfig configures the structured logger every Orchestrator and
// Runtime is built with.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	// Directory is the configured log directory. Nothing reads it: the CLI's
	// logger does not write to a file there, whatever its value.
	Directory string `yaml:"directory"`
	JSON      bool   `yaml:"json"`
}

// RuntimeConfig holds runtime settings for a run. MaxIterations fills in the
// root agent's template when its document sets no max_iterations; subagent
// templates are not filled in. ParseRetries applies to every agent of the
// runtime (a skillconfig.Document has no parse_retries field).
type RuntimeConfig struct {
	MaxIterations int `yaml:"max_iterations"`
	ParseRetries  int `yaml:"parse_retries"`
}

// MetricsConfig configures the Prometheus /metrics HTTP exposition.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

const includeKey = "$include"

// Load reads path (and any $include documents it references), expands
// ${VAR}-style references against the process environment, and decodes the
// result into a Config. It does not load .env files; call LoadDotEnv first
// if the configuration or its environment references should see them.
func Load(path string) (*Config, error) {
	raw, err := loadRaw(path, map[string]bool{})
	if err != nil {
		return nil, err
	}
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("config: re-serialize merged document: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("config: %s: expected a single YAML document", path)
	}
	return &cfg, nil
}

// LoadDotEnv loads a .env file into the process environment if path exists.
// A missing file is not an error; agentmesh's environment may be supplied
// entirely by the host process instead.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func loadRaw(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path %q: %w", path, err)
	}
	if seen[absPath] {
		return nil, fmt.Errorf("config: include cycle at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", absPath, err)
	}
	expanded := os.ExpandEnv(string(data))

	raw, err := parseDocument([]byte(expanded), absPath)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", absPath, err)
	}

	includes, err := extractIncludes(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", absPath, err)
	}

	merged := map[string]any{}
	baseDir := filepath.Dir(absPath)
	for _, inc := range includes {
		incPath := inc
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(baseDir, inc)
		}
		incRaw, err := loadRaw(incPath, seen)
		if err != nil {
			return nil, err
		}
		merged = mergeMaps(merged, incRaw)
	}
	return mergeMaps(merged, raw), nil
}

// parseDocument decodes data as JSON5 when pathHint ends in .json/.json5,
// and as YAML otherwise, matching the format the rest of this codebase
// allows for any nested document.
func parseDocument(data []byte, pathHint string) (map[string]any, error) {
	ext := strings.ToLower(filepath.Ext(pathHint))
	var raw map[string]any
	if ext == ".json" || ext == ".json5" {
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func extractIncludes(raw map[string]any) ([]string, error) {
	val, ok := raw[includeKey]
	if !ok {
		return nil, nil
	}
	delete(raw, includeKey)

	switch typed := val.(type) {
	case string:
		return []string{typed}, nil
	case []any:
		paths := make([]string, 0, len(typed))
		for _, entry := range typed {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be a string or list of strings", includeKey)
			}
			paths = append(paths, s)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("%s must be a string or list of strings", includeKey)
	}
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

// Validate reports any configuration errors Load can't catch structurally.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai", "mock", "":
	default:
		return fmt.Errorf("config: unknown llm.provider %q", c.LLM.Provider)
	}
	if c.LLM.Provider != "mock" && c.LLM.Provider != "" && strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("config: llm.api_key is required for provider %q", c.LLM.Provider)
	}
	return nil
}
