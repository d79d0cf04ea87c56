// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Agent() AgentConfig
	Retrieval() RetrievalConfig
	Planner() PlannerConfig
	Runtime() RuntimeConfig
	Store() StoreConfig

	// Run overrides applied from CLI flags.
	SetAgentLanguage(schemas.Language)
	SetAgentOperator(schemas.OperatorType)
	SetAgentModelVersion(schemas.ModelVersion)
	SetAgentMaxLoopCount(int)
	SetRuntimeReplayFile(string)
}

// Config is the root configuration object. Fields are exported so viper can
// unmarshal them; callers should prefer the Interface getters.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	AgentCfg     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	RetrievalCfg RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	PlannerCfg   PlannerConfig   `mapstructure:"planner" yaml:"planner"`
	RuntimeCfg   RuntimeConfig   `mapstructure:"runtime" yaml:"runtime"`
	StoreCfg     StoreConfig     `mapstructure:"store" yaml:"store"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Agent() AgentConfig         { return c.AgentCfg }
func (c *Config) Retrieval() RetrievalConfig { return c.RetrievalCfg }
func (c *Config) Planner() PlannerConfig     { return c.PlannerCfg }
func (c *Config) Runtime() RuntimeConfig     { return c.RuntimeCfg }
func (c *Config) Store() StoreConfig         { return c.StoreCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetAgentLanguage(l schemas.Language)         { c.AgentCfg.Language = l }
func (c *Config) SetAgentOperator(o schemas.OperatorType)     { c.AgentCfg.Operator = o }
func (c *Config) SetAgentModelVersion(v schemas.ModelVersion) { c.AgentCfg.ModelVersion = v }
func (c *Config) SetAgentMaxLoopCount(n int)                  { c.AgentCfg.MaxLoopCount = n }
func (c *Config) SetRuntimeReplayFile(p string)               { c.RuntimeCfg.ReplayFile = p }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// AgentConfig holds the run configuration handed to the loop controller.
type AgentConfig struct {
	Language     schemas.Language     `mapstructure:"language" yaml:"language"`
	Operator     schemas.OperatorType `mapstructure:"operator" yaml:"operator"`
	ModelVersion schemas.ModelVersion `mapstructure:"model_version" yaml:"model_version"`
	MaxLoopCount int                  `mapstructure:"max_loop_count" yaml:"max_loop_count"`
	// LoopInterval is the pause the runtime takes between iterations.
	LoopInterval time.Duration        `mapstructure:"loop_interval" yaml:"loop_interval"`
	Retry        schemas.RetryBudgets `mapstructure:"retry" yaml:"retry"`
	// EventBuffer is the channel capacity of each state subscriber.
	EventBuffer int `mapstructure:"event_buffer" yaml:"event_buffer"`
}

// RetrievalConfig configures the knowledge retrieval subprocess.
type RetrievalConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Command string        `mapstructure:"command" yaml:"command"`
	Args    []string      `mapstructure:"args" yaml:"args"`
	TopK    int           `mapstructure:"top_k" yaml:"top_k"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// PlannerConfig configures master plan generation.
type PlannerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// ItemCharLimit caps each retrieved passage quoted into the planning prompt.
	ItemCharLimit int `mapstructure:"item_char_limit" yaml:"item_char_limit"`
	// RequestsPerMinute throttles planning calls per client. Zero disables throttling.
	RequestsPerMinute float64        `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Model             LLMModelConfig `mapstructure:"model" yaml:"model"`
}

// RuntimeConfig selects the agent runtime driven by the CLI.
type RuntimeConfig struct {
	// ReplayFile is a recorded step script (YAML or JSON).
	ReplayFile string `mapstructure:"replay_file" yaml:"replay_file"`
}

// StoreBackend names a history persistence backend.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StoreSQLite   StoreBackend = "sqlite"
	StorePostgres StoreBackend = "postgres"
)

// StoreConfig selects where session histories are persisted.
type StoreConfig struct {
	Backend    StoreBackend   `mapstructure:"backend" yaml:"backend"`
	SQLitePath string         `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	Postgres   PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds the connection details for a PostgreSQL database.
type PostgresConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
	// ProviderOllama is served through its OpenAI compatible endpoint.
	ProviderOllama LLMProvider = "ollama"
)

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "cua")
	v.SetDefault("logger.log_file", "cua.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Agent --
	v.SetDefault("agent.language", string(schemas.LanguageEnglish))
	v.SetDefault("agent.operator", string(schemas.OperatorComputer))
	v.SetDefault("agent.model_version", string(schemas.ModelV1_0))
	v.SetDefault("agent.max_loop_count", 100)
	v.SetDefault("agent.loop_interval", "0s")
	v.SetDefault("agent.retry.model", 5)
	v.SetDefault("agent.retry.screenshot", 5)
	v.SetDefault("agent.retry.execute", 1)
	v.SetDefault("agent.event_buffer", 64)

	// -- Retrieval --
	v.SetDefault("retrieval.enabled", true)
	v.SetDefault("retrieval.command", "python3")
	v.SetDefault("retrieval.args", []string{"rag/query.py"})
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.timeout", "30s")

	// -- Planner --
	v.SetDefault("planner.enabled", true)
	v.SetDefault("planner.item_char_limit", 500)
	v.SetDefault("planner.requests_per_minute", 30)
	v.SetDefault("planner.model.provider", string(ProviderOpenAI))
	v.SetDefault("planner.model.model", "gpt-4o-mini")
	v.SetDefault("planner.model.api_timeout", "60s")
	v.SetDefault("planner.model.temperature", 0.1)
	v.SetDefault("planner.model.max_tokens", 1000)

	// -- Store --
	v.SetDefault("store.backend", string(StoreSQLite))
	v.SetDefault("store.sqlite_path", "cua_history.db")
	v.SetDefault("store.postgres.max_conns", 4)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("planner.model.api_key", "CUA_PLANNER_API_KEY")
	v.BindEnv("store.postgres.url", "CUA_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Fall back to the provider's conventional key variable.
	if cfg.PlannerCfg.Enabled && cfg.PlannerCfg.Model.APIKey == "" {
		switch cfg.PlannerCfg.Model.Provider {
		case ProviderOpenAI:
			cfg.PlannerCfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderAnthropic:
			cfg.PlannerCfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case ProviderGemini:
			cfg.PlannerCfg.Model.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.RetrievalCfg.Validate(); err != nil {
		return fmt.Errorf("retrieval configuration invalid: %w", err)
	}
	if err := c.PlannerCfg.Validate(); err != nil {
		return fmt.Errorf("planner configuration invalid: %w", err)
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the run configuration.
func (a *AgentConfig) Validate() error {
	if a.MaxLoopCount <= 0 {
		return fmt.Errorf("agent.max_loop_count must be a positive integer")
	}
	if a.Retry.Model < 0 || a.Retry.Screenshot < 0 || a.Retry.Execute < 0 {
		return fmt.Errorf("agent.retry budgets must not be negative")
	}
	switch a.Operator {
	case schemas.OperatorComputer, schemas.OperatorBrowser:
	default:
		return fmt.Errorf("agent.operator must be one of computer, browser (got %q)", a.Operator)
	}
	if a.LoopInterval < 0 {
		return fmt.Errorf("agent.loop_interval must not be negative")
	}
	return nil
}

// Validate checks the retrieval settings.
func (r *RetrievalConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.Command == "" {
		return fmt.Errorf("retrieval.command is required when retrieval is enabled")
	}
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be a positive integer")
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("retrieval.timeout must be a positive duration")
	}
	return nil
}

// Validate checks the planner settings.
func (p *PlannerConfig) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.ItemCharLimit <= 0 {
		return fmt.Errorf("planner.item_char_limit must be a positive integer")
	}
	if p.RequestsPerMinute < 0 {
		return fmt.Errorf("planner.requests_per_minute must not be negative")
	}
	return p.Model.Validate()
}

// Validate checks a single model definition.
func (m *LLMModelConfig) Validate() error {
	switch m.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderOllama:
	default:
		return fmt.Errorf("unsupported llm provider %q", m.Provider)
	}
	if m.Model == "" {
		return fmt.Errorf("model name is required")
	}
	if m.Temperature < 0 || m.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if m.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	return nil
}

// Validate checks the persistence settings.
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case StoreMemory:
	case StoreSQLite:
		if s.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case StorePostgres:
		if s.Postgres.URL == "" {
			return fmt.Errorf("store.postgres.url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, sqlite, postgres (got %q)", s.Backend)
	}
	return nil
}
