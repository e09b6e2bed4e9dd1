package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service settings loaded from ordercopilot.yml.
type Config struct {
	LLM     LLMConfig     `yaml:"llm,omitempty"`
	Agents  AgentsConfig  `yaml:"agents,omitempty"`
	Chat    ChatConfig    `yaml:"chat,omitempty"`
	Tracker TrackerConfig `yaml:"tracker,omitempty"`
	Session SessionConfig `yaml:"session,omitempty"`
	MCP     MCPConfig     `yaml:"mcp,omitempty"`
	Log     LogConfig     `yaml:"log,omitempty"`
}

// LLMConfig selects the hosted model and its retry policy.
type LLMConfig struct {
	APIKey          string      `yaml:"apiKey,omitempty"`
	Model           string      `yaml:"model,omitempty"`
	SupervisorModel string      `yaml:"supervisorModel,omitempty"`
	MaxSteps        int         `yaml:"maxSteps,omitempty"`
	Retry           RetryConfig `yaml:"retry,omitempty"`
}

// RetryConfig mirrors the HTTP retry options applied to model calls.
type RetryConfig struct {
	Attempts     int           `yaml:"attempts,omitempty"`
	InitialDelay time.Duration `yaml:"initialDelay,omitempty"`
	MaxDelay     time.Duration `yaml:"maxDelay,omitempty"`
	ExpBase      float64       `yaml:"expBase,omitempty"`
	StatusCodes  []int         `yaml:"statusCodes,omitempty"`
}

// AgentsConfig lists where each agent listens and where peers reach it.
type AgentsConfig struct {
	Orchestrator Endpoint `yaml:"orchestrator,omitempty"`
	Catalog      Endpoint `yaml:"catalog,omitempty"`
	Compliance   Endpoint `yaml:"compliance,omitempty"`
	Supervisor   Endpoint `yaml:"supervisor,omitempty"`
	ProbeTimeout time.Duration `yaml:"probeTimeout,omitempty"`
}

// Endpoint is a listen address plus the public base URL of an A2A agent.
type Endpoint struct {
	Addr    string `yaml:"addr,omitempty"`
	BaseURL string `yaml:"baseURL,omitempty"`
}

// ChatConfig configures the HTTP chat front end.
type ChatConfig struct {
	Addr      string  `yaml:"addr,omitempty"`
	RateLimit float64 `yaml:"rateLimit,omitempty"`
	Burst     int     `yaml:"burst,omitempty"`
}

// TrackerConfig configures the long-running operation tracker.
type TrackerConfig struct {
	Delay         time.Duration `yaml:"delay,omitempty"`
	TTL           time.Duration `yaml:"ttl,omitempty"`
	SweepInterval time.Duration `yaml:"sweepInterval,omitempty"`
}

// SessionConfig selects where chat history lives.
type SessionConfig struct {
	Backend  string        `yaml:"backend,omitempty"` // "memory" or "redis"
	RedisURL string        `yaml:"redisURL,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
	MaxTurns int           `yaml:"maxTurns,omitempty"`
}

// MCPConfig configures the MCP tool server.
type MCPConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	NotesDir string `yaml:"notesDir,omitempty"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string   `yaml:"level,omitempty"`
	Format      string   `yaml:"format,omitempty"` // "json" or "console"
	OutputPaths []string `yaml:"outputPaths,omitempty"`
}

// Session backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// FileNames are the config file names Load looks for, in order.
var FileNames = []string{"ordercopilot.yml", "ordercopilot.yaml"}

// Load reads ordercopilot.yml or ordercopilot.yaml from dir, fills in
// defaults, and applies environment overrides. A missing file is not an
// error; the defaults are used instead.
func Load(dir string) (*Config, error) {
	cfg := &Config{}
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		break
	}

	cfg.ApplyDefaults()
	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with every default applied and no file or
// environment input.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	setString(&c.LLM.Model, "gemini-2.5-flash-lite")
	setString(&c.LLM.SupervisorModel, "gemini-2.5-pro")
	setInt(&c.LLM.MaxSteps, 8)
	setInt(&c.LLM.Retry.Attempts, 5)
	setDuration(&c.LLM.Retry.InitialDelay, time.Second)
	setDuration(&c.LLM.Retry.MaxDelay, time.Minute)
	if c.LLM.Retry.ExpBase == 0 {
		c.LLM.Retry.ExpBase = 7
	}
	if len(c.LLM.Retry.StatusCodes) == 0 {
		c.LLM.Retry.StatusCodes = []int{429, 500, 503, 504}
	}

	defaultEndpoint(&c.Agents.Orchestrator, 8003)
	defaultEndpoint(&c.Agents.Catalog, 8001)
	defaultEndpoint(&c.Agents.Compliance, 8002)
	defaultEndpoint(&c.Agents.Supervisor, 8005)
	setDuration(&c.Agents.ProbeTimeout, 500*time.Millisecond)

	setString(&c.Chat.Addr, ":8080")
	if c.Chat.RateLimit == 0 {
		c.Chat.RateLimit = 5
	}
	setInt(&c.Chat.Burst, 10)

	setDuration(&c.Tracker.Delay, 3*time.Second)
	setDuration(&c.Tracker.TTL, 10*time.Minute)
	setDuration(&c.Tracker.SweepInterval, time.Minute)

	setString(&c.Session.Backend, BackendMemory)
	setDuration(&c.Session.TTL, 24*time.Hour)
	setInt(&c.Session.MaxTurns, 20)

	setString(&c.MCP.Addr, ":8090")

	setString(&c.Log.Level, "info")
	setString(&c.Log.Format, "json")
	if len(c.Log.OutputPaths) == 0 {
		c.Log.OutputPaths = []string{"stderr"}
	}
}

// ApplyEnv overrides settings from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("GOOGLE_API_KEY"); ok && v != "" {
		c.LLM.APIKey = v
	}
	if v, ok := lookup("CATALOG_BASE_URL"); ok && v != "" {
		c.Agents.Catalog.BaseURL = v
	}
	if v, ok := lookup("COMPLIANCE_BASE_URL"); ok && v != "" {
		c.Agents.Compliance.BaseURL = v
	}
	if v, ok := lookup("ORCHESTRATOR_BASE_URL"); ok && v != "" {
		c.Agents.Orchestrator.BaseURL = v
	}
	if v, ok := lookup("REDIS_URL"); ok && v != "" {
		c.Session.Backend = BackendRedis
		c.Session.RedisURL = v
	}
	if v, ok := lookup("ORDERCOPILOT_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Tracker.Delay < 0 {
		errs = append(errs, fmt.Errorf("tracker.delay must not be negative, got %s", c.Tracker.Delay))
	}
	if c.Tracker.TTL < 0 {
		errs = append(errs, fmt.Errorf("tracker.ttl must not be negative, got %s", c.Tracker.TTL))
	}
	switch c.Session.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Session.RedisURL == "" {
			errs = append(errs, errors.New("session.redisURL is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend %q is not one of memory, redis", c.Session.Backend))
	}
	if c.LLM.Retry.Attempts < 1 {
		errs = append(errs, fmt.Errorf("llm.retry.attempts must be at least 1, got %d", c.LLM.Retry.Attempts))
	}
	if c.Chat.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("chat.rateLimit must not be negative, got %v", c.Chat.RateLimit))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func defaultEndpoint(e *Endpoint, port int) {
	setString(&e.Addr, fmt.Sprintf(":%d", port))
	setString(&e.BaseURL, fmt.Sprintf("http://localhost:%d", port))
}

func setString(p *string, v string) {
	if *p == "" {
		*p = v
	}
}

func setInt(p *int, v int) {
	if *p == 0 {
		*p = v
	}
}

func setDuration(p *time.Duration, v time.Duration) {
	if *p == 0 {
		*p = v
	}
}
