package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the agents and the engine.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Agents  []AgentConfig `yaml:"agents"`
	Clients ClientsConfig `yaml:"clients"`
	Mongo   MongoConfig   `yaml:"mongo"`
	Logging LoggingConfig `yaml:"logging"`
	Rules   RulesConfig   `yaml:"rules"`
	Cache   CacheConfig   `yaml:"cache"`
}

// ServerConfig controls the engine listener and the operational endpoints.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	OpsAddress      string        `yaml:"opsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`

	// AgentWriteTimeout bounds a whole notification batch, which agents
	// process one file at a time.
	AgentWriteTimeout time.Duration `yaml:"agentWriteTimeout"`
}

// EngineConfig tunes correlation evaluation.
type EngineConfig struct {
	Window        time.Duration `yaml:"window"`
	Serialize     bool          `yaml:"serialize"`
	LockTTL       time.Duration `yaml:"lockTTL"`
	UploadTimeout time.Duration `yaml:"uploadTimeout"`
}

// Filter kinds accepted in AgentFilterConfig.Kind.
const (
	FilterAcceptAll = "accept_all"
	FilterAllowList = "allow_list"
	FilterOnly      = "only"
)

// Forward modes accepted in AgentConfig.Forward.
const (
	ForwardRaw      = "raw"
	ForwardEnvelope = "envelope"
)

// AgentConfig describes one notification agent instance.
type AgentConfig struct {
	Name         string            `yaml:"name"`
	Address      string            `yaml:"address"`
	AdvertiseURL string            `yaml:"advertiseURL"`
	Categories   []string          `yaml:"categories"`
	Filter       AgentFilterConfig `yaml:"filter"`
	Forward      string            `yaml:"forward"`
}

// AgentFilterConfig selects the relevance predicate of an agent.
type AgentFilterConfig struct {
	Kind      string   `yaml:"kind"`
	Anomalies []string `yaml:"anomalies"`
}

// ClientsConfig groups outbound integrations.
type ClientsConfig struct {
	FileReporting FileReportingConfig `yaml:"fileReporting"`
	Engine        EngineClientConfig  `yaml:"engine"`
}

// FileReportingConfig configures access to the file data reporting service.
type FileReportingConfig struct {
	BaseURL           string        `yaml:"baseURL"`
	SubscriptionsPath string        `yaml:"subscriptionsPath"`
	FilesPath         string        `yaml:"filesPath"`
	Timeout           time.Duration `yaml:"timeout"`
	Retry             RetryConfig   `yaml:"retry"`
}

// RetryConfig bounds the subscription retry loop.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"maxAttempts"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
}

// EngineClientConfig configures how agents reach the correlation engine.
type EngineClientConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// MongoConfig configures the event store.
type MongoConfig struct {
	URI        string        `yaml:"uri"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RulesConfig points at an optional rule table replacing the built-in one.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls the shared correlation window lock. An empty Addr keeps
// the lock in process.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	LockKey      string        `yaml:"lockKey"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("HERMES_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects agent definitions the process could not start.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Agents))
	for i, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agents[%d]: name required", i)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("agents[%d]: duplicate name %q", i, a.Name)
		}
		seen[a.Name] = struct{}{}
		if a.Address == "" {
			return fmt.Errorf("agent %s: address required", a.Name)
		}
		if len(a.Categories) == 0 {
			return fmt.Errorf("agent %s: at least one category required", a.Name)
		}
		switch a.Filter.Kind {
		case "", FilterAcceptAll:
		case FilterAllowList:
			if len(a.Filter.Anomalies) == 0 {
				return fmt.Errorf("agent %s: allow_list filter needs anomalies", a.Name)
			}
		case FilterOnly:
			if len(a.Filter.Anomalies) != 1 {
				return fmt.Errorf("agent %s: only filter needs exactly one anomaly", a.Name)
			}
		default:
			return fmt.Errorf("agent %s: unknown filter kind %q", a.Name, a.Filter.Kind)
		}
		switch a.Forward {
		case "", ForwardRaw, ForwardEnvelope:
		default:
			return fmt.Errorf("agent %s: unknown forward mode %q", a.Name, a.Forward)
		}
	}
	if c.Engine.Window <= 0 {
		return fmt.Errorf("engine.window must be positive")
	}
	return nil
}

// Agent returns the named agent definition.
func (c *Config) Agent(name string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentConfig{}, false
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:           ":8081",
			MetricsAddress:    ":2112",
			OpsAddress:        ":50051",
			GracefulTimeout:   10 * time.Second,
			AgentWriteTimeout: 5 * time.Minute,
		},
		Engine: EngineConfig{
			Window:        60 * time.Minute,
			Serialize:     true,
			LockTTL:       10 * time.Second,
			UploadTimeout: 5 * time.Second,
		},
		Agents: defaultAgents(),
		Clients: ClientsConfig{
			FileReporting: FileReportingConfig{
				BaseURL:           "http://localhost:8080",
				SubscriptionsPath: "/fileDataReportingMnS/v1/subscriptions/",
				FilesPath:         "/fileDataReportingMnS/v1/files",
				Timeout:           5 * time.Second,
				Retry: RetryConfig{
					MaxAttempts:     5,
					InitialInterval: 500 * time.Millisecond,
					MaxInterval:     10 * time.Second,
				},
			},
			Engine: EngineClientConfig{
				URL:     "http://localhost:8081/receive_shared_data",
				Timeout: 5 * time.Second,
			},
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "anomaly_data",
			Collection: "anomalies",
			Timeout:    5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			LockKey:      "hermes:correlation-window",
		},
	}
}

func defaultAgents() []AgentConfig {
	return []AgentConfig{
		{
			Name:         "backend-advisor",
			Address:      ":5555",
			AdvertiseURL: "http://localhost:5555",
			Categories:   []string{"Analytics", "Proprietary"},
			Filter: AgentFilterConfig{
				Kind: FilterAllowList,
				Anomalies: []string{
					"UNEXPECTED_LONG_LIVE_FLOWS",
					"SUSPICION_OF_DDOS_ATTACK",
					"UNEXPECTED_LARGE_RATE_FLOWS",
				},
			},
			Forward: ForwardRaw,
		},
		{
			Name:         "user-monitor",
			Address:      ":5556",
			AdvertiseURL: "http://localhost:5556",
			Categories:   []string{"Performance"},
			Filter:       AgentFilterConfig{Kind: FilterAcceptAll},
			Forward:      ForwardEnvelope,
		},
		{
			Name:         "physical-layer-inspector",
			Address:      ":5557",
			AdvertiseURL: "http://localhost:5557",
			Categories:   []string{"Trace"},
			Filter: AgentFilterConfig{
				Kind:      FilterOnly,
				Anomalies: []string{"UNEXPECTED_RADIO_LINK_FAILURES"},
			},
			Forward: ForwardRaw,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HERMES_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("HERMES_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("HERMES_OPS_ADDRESS"); v != "" {
		cfg.Server.OpsAddress = v
	}
	if v := os.Getenv("HERMES_AGENT_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.AgentWriteTimeout = d
		}
	}
	if v := os.Getenv("HERMES_ENGINE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.Window = d
		}
	}
	if v := os.Getenv("HERMES_ENGINE_SERIALIZE"); v != "" {
		cfg.Engine.Serialize = parseBool(v)
	}
	if v := os.Getenv("HERMES_FILE_REPORTING_URL"); v != "" {
		cfg.Clients.FileReporting.BaseURL = v
	}
	if v := os.Getenv("HERMES_ENGINE_URL"); v != "" {
		cfg.Clients.Engine.URL = v
	}
	if v := os.Getenv("HERMES_MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("HERMES_MONGO_DATABASE"); v != "" {
		cfg.Mongo.Database = v
	}
	if v := os.Getenv("HERMES_MONGO_COLLECTION"); v != "" {
		cfg.Mongo.Collection = v
	}
	if v := os.Getenv("HERMES_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HERMES_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("HERMES_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("HERMES_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("HERMES_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("HERMES_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("HERMES_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("HERMES_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("HERMES_CACHE_TLS"); parseBool(v) {
		cfg.Cache.TLS = true
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
