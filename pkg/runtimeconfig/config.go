// Package runtimeconfig loads and hot-reloads the recognized options of
// §6: YAML on disk, ${VAR} / ${VAR:-default} environment expansion, and an
// fsnotify-driven watch that reloads on write. Grounded on the teacher's
// pkg/config/env.go (environment expansion regexes, godotenv .env
// loading) and pkg/config/provider/file.go (the fsnotify watch-and-debounce
// loop) — generalized from Hector's koanf-backed, many-section config tree
// (LLMs, tools, agents, databases, vector stores...) down to the seven
// options §6 actually enumerates for this engine.
package runtimeconfig

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/queryflowhq/queryflow/pkg/graph"
	"github.com/queryflowhq/queryflow/pkg/transport"
)

// WorkflowConfig covers workflow.* (§6, §4.I).
type WorkflowConfig struct {
	NodeTimeoutSeconds     int `yaml:"node_timeout_seconds"`
	OverallDeadlineSeconds int `yaml:"overall_deadline_seconds"`
	MaxIterations          int `yaml:"max_iterations"`
}

// ConsolidatorConfig covers consolidator.* (§6, §4.H).
type ConsolidatorConfig struct {
	LLMRowCap int `yaml:"llm_row_cap"`
}

// RouterConfig covers router.* (§6, §4.G).
type RouterConfig struct {
	UnknownNodePolicy string `yaml:"unknown_node_policy"`
}

// TransportConfig covers transport.* (§6, §4.J).
type TransportConfig struct {
	IdlePingSeconds int   `yaml:"idle_ping_seconds"`
	MaxFrameBytes   int64 `yaml:"max_frame_bytes"`
}

// Config is every recognized option in §6.
type Config struct {
	Workflow     WorkflowConfig     `yaml:"workflow"`
	Consolidator ConsolidatorConfig `yaml:"consolidator"`
	Router       RouterConfig       `yaml:"router"`
	Transport    TransportConfig    `yaml:"transport"`
}

// Defaults returns §6's documented default values.
func Defaults() *Config {
	return &Config{
		Workflow: WorkflowConfig{
			NodeTimeoutSeconds:     60,
			OverallDeadlineSeconds: 300,
			MaxIterations:          10,
		},
		Consolidator: ConsolidatorConfig{LLMRowCap: 500},
		Router:       RouterConfig{UnknownNodePolicy: "end"},
		Transport: TransportConfig{
			IdlePingSeconds: 30,
			MaxFrameBytes:   1 << 20,
		},
	}
}

// Validate rejects a config with an out-of-range or unrecognized option.
func (c *Config) Validate() error {
	if c.Workflow.NodeTimeoutSeconds <= 0 {
		return fmt.Errorf("runtimeconfig: workflow.node_timeout_seconds must be positive")
	}
	if c.Workflow.OverallDeadlineSeconds <= 0 {
		return fmt.Errorf("runtimeconfig: workflow.overall_deadline_seconds must be positive")
	}
	if c.Workflow.MaxIterations <= 0 {
		return fmt.Errorf("runtimeconfig: workflow.max_iterations must be positive")
	}
	if c.Consolidator.LLMRowCap <= 0 {
		return fmt.Errorf("runtimeconfig: consolidator.llm_row_cap must be positive")
	}
	switch c.Router.UnknownNodePolicy {
	case "end", "error":
	default:
		return fmt.Errorf("runtimeconfig: router.unknown_node_policy must be 'end' or 'error', got %q", c.Router.UnknownNodePolicy)
	}
	if c.Transport.IdlePingSeconds <= 0 {
		return fmt.Errorf("runtimeconfig: transport.idle_ping_seconds must be positive")
	}
	if c.Transport.MaxFrameBytes <= 0 {
		return fmt.Errorf("runtimeconfig: transport.max_frame_bytes must be positive")
	}
	return nil
}

// GraphOptions adapts Workflow into the options the compiled graph runs
// with.
func (c *Config) GraphOptions() graph.Options {
	return graph.Options{
		NodeTimeout:       secondsToDuration(c.Workflow.NodeTimeoutSeconds),
		OverallDeadline:   secondsToDuration(c.Workflow.OverallDeadlineSeconds),
		MaxIterations:     c.Workflow.MaxIterations,
		UnknownNodePolicy: c.Router.UnknownNodePolicy,
	}
}

// ChatOptions adapts Transport into the options the chat server runs
// with.
func (c *Config) ChatOptions() transport.ChatOptions {
	return transport.ChatOptions{
		IdlePingSeconds: c.Transport.IdlePingSeconds,
		MaxFrameBytes:   c.Transport.MaxFrameBytes,
	}
}

// LoadEnvFiles loads .env.local then .env into the process environment,
// local taking precedence, matching the teacher's override order. A
// missing file is not an error.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("runtimeconfig: loading %s: %w", file, err)
		}
	}
	return nil
}

// Load reads path, expands ${VAR} / ${VAR:-default} references against the
// process environment, unmarshals onto Defaults() (so any option the file
// omits keeps its documented default), and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runtimeconfig: reading %s: %w", path, err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("runtimeconfig: parsing yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func secondsToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}

var (
	envWithDefault = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`)
	envBraced      = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
)

// expandEnvVars resolves ${VAR} and ${VAR:-default} references against the
// process environment, leaving the literal text alone when nothing in the
// input looks like a reference.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envWithDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envWithDefault.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(parts[1]); ok && val != "" {
			return val
		}
		return parts[2]
	})

	s = envBraced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envBraced.FindStringSubmatch(match)
		return os.Getenv(parts[1])
	})

	return s
}
