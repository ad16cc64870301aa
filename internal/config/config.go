package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Notion        NotionConfig        `yaml:"notion" mapstructure:"notion"`
	CourtListener CourtListenerConfig `yaml:"courtlistener" mapstructure:"courtlistener"`
	GovInfo       GovInfoConfig       `yaml:"govinfo" mapstructure:"govinfo"`
	Anthropic     AnthropicConfig     `yaml:"anthropic" mapstructure:"anthropic"`
	Research      ResearchConfig      `yaml:"research" mapstructure:"research"`
	Graph         GraphConfig         `yaml:"graph" mapstructure:"graph"`
	Claims        ClaimsConfig        `yaml:"claims" mapstructure:"claims"`
	Authority     AuthorityConfig     `yaml:"authority" mapstructure:"authority"`
	Workflow      WorkflowConfig      `yaml:"workflow" mapstructure:"workflow"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the knowledge graph backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// NotionConfig holds Notion API credentials and the cause-of-action element
// registry database id.
type NotionConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	ElementDB string `yaml:"element_db" mapstructure:"element_db"`
}

// CourtListenerConfig holds CourtListener API settings.
type CourtListenerConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	PageSize int    `yaml:"page_size" mapstructure:"page_size"`
}

// GovInfoConfig holds GovInfo API settings.
type GovInfoConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	PageSize int    `yaml:"page_size" mapstructure:"page_size"`
}

// AnthropicConfig holds Anthropic API settings for the drafting agent.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ResearchConfig tunes the provider chain executor.
type ResearchConfig struct {
	ProviderTimeoutSecs     int     `yaml:"provider_timeout_secs" mapstructure:"provider_timeout_secs"`
	RequestsPerSecond       float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst                   int     `yaml:"burst" mapstructure:"burst"`
	CacheTTLHours           int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitCooldownSecs     int     `yaml:"circuit_cooldown_secs" mapstructure:"circuit_cooldown_secs"`
}

// GraphConfig tunes confidence handling in the knowledge graph.
type GraphConfig struct {
	FoundationalBoost float64 `yaml:"foundational_boost" mapstructure:"foundational_boost"`
	DecayFloor        float64 `yaml:"decay_floor" mapstructure:"decay_floor"`
}

// ClaimsConfig tunes cause-of-action detection.
type ClaimsConfig struct {
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// AuthorityConfig locates the jurisdiction hierarchy definition.
type AuthorityConfig struct {
	HierarchyFile string `yaml:"hierarchy_file" mapstructure:"hierarchy_file"`
}

// WorkflowConfig tunes the session orchestrator.
type WorkflowConfig struct {
	MaxRetries            int      `yaml:"max_retries" mapstructure:"max_retries"`
	CapabilityConcurrency int      `yaml:"capability_concurrency" mapstructure:"capability_concurrency"`
	ApprovalPhases        []string `yaml:"approval_phases" mapstructure:"approval_phases"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MATTERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "matterflow.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("courtlistener.base_url", "https://www.courtlistener.com/api/rest/v4")
	v.SetDefault("courtlistener.page_size", 20)
	v.SetDefault("govinfo.base_url", "https://api.govinfo.gov")
	v.SetDefault("govinfo.page_size", 20)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("research.provider_timeout_secs", 10)
	v.SetDefault("research.requests_per_second", 1.0)
	v.SetDefault("research.burst", 2)
	v.SetDefault("research.cache_ttl_hours", 24)
	v.SetDefault("research.circuit_failure_threshold", 5)
	v.SetDefault("research.circuit_cooldown_secs", 60)
	v.SetDefault("graph.foundational_boost", 0.2)
	v.SetDefault("graph.decay_floor", 0.1)
	v.SetDefault("claims.min_confidence", 0.25)
	v.SetDefault("workflow.max_retries", 3)
	v.SetDefault("workflow.capability_concurrency", 2)
	v.SetDefault("workflow.approval_phases", []string{"outline", "review"})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given mode. Modes
// map to command entry points: "run" and "serve" drive full sessions,
// "research" runs the provider chain only, "registry" syncs the element
// registry from Notion.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case "memory":
	default:
		problems = append(problems, "store.driver must be sqlite, postgres, or memory")
	}

	if c.Research.RequestsPerSecond <= 0 {
		problems = append(problems, "research.requests_per_second must be > 0")
	}
	if c.Graph.FoundationalBoost < 0 || c.Graph.FoundationalBoost > 1 {
		problems = append(problems, "graph.foundational_boost must be between 0 and 1")
	}
	if c.Graph.DecayFloor < 0 || c.Graph.DecayFloor > 1 {
		problems = append(problems, "graph.decay_floor must be between 0 and 1")
	}
	if c.Claims.MinConfidence < 0 || c.Claims.MinConfidence > 1 {
		problems = append(problems, "claims.min_confidence must be between 0 and 1")
	}
	if c.Workflow.MaxRetries < 1 || c.Workflow.MaxRetries > 10 {
		problems = append(problems, "workflow.max_retries must be between 1 and 10")
	}
	if c.Workflow.CapabilityConcurrency < 1 || c.Workflow.CapabilityConcurrency > 16 {
		problems = append(problems, "workflow.capability_concurrency must be between 1 and 16")
	}

	switch mode {
	case "run", "serve":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "research":
		if c.CourtListener.Token == "" && c.GovInfo.Key == "" {
			problems = append(problems, "at least one of courtlistener.token or govinfo.key is required")
		}
	case "registry":
		if c.Notion.Token == "" {
			problems = append(problems, "notion.token is required")
		}
		if c.Notion.ElementDB == "" {
			problems = append(problems, "notion.element_db is required")
		}
	case "graph", "causes":
	default:
		problems = append(problems, "unknown mode "+mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
