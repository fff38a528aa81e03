// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Default sources for the WebBizz article benchmark.
const (
	DefaultCorpusSource   = "https://raw.githubusercontent.com/okareo-ai/okareo-python-sdk/main/examples/webbizz_10_articles.jsonl"
	DefaultScenarioSource = "https://raw.githubusercontent.com/okareo-ai/okareo-python-sdk/main/examples/webbizz_retrieval_questions.jsonl"
)

// Config holds all application configuration.
type Config struct {
	// Corpus and scenario sources
	Corpus CorpusConfig `yaml:"corpus"`

	// Retrieval backend configuration
	Backend BackendConfig `yaml:"backend"`

	// Qdrant configuration
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Embedding provider configuration
	Embed EmbedConfig `yaml:"embed"`

	// Evaluation configuration
	Eval EvalConfig `yaml:"eval"`

	// Labeler rules, in priority order
	Labeler LabelerConfig `yaml:"labeler"`

	// Report configuration
	Report ReportConfig `yaml:"report"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Operational metrics configuration
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// HTTP server configuration (serve command)
	Server ServerConfig `yaml:"server"`
}

// CorpusConfig holds the corpus and scenario sources (file paths or http(s) URLs).
type CorpusConfig struct {
	Source         string        `envconfig:"RICE_EVAL_CORPUS" yaml:"source"`
	ScenarioSource string        `envconfig:"RICE_EVAL_SCENARIOS" yaml:"scenario_source"`
	FetchTimeout   time.Duration `envconfig:"RICE_EVAL_FETCH_TIMEOUT" yaml:"fetch_timeout"`
}

// BackendConfig selects and tunes the retrieval backend.
type BackendConfig struct {
	Type         string  `envconfig:"RICE_EVAL_BACKEND" yaml:"type"`
	Collection   string  `envconfig:"RICE_EVAL_COLLECTION" yaml:"collection"`
	DenseWeight  float64 `envconfig:"RICE_EVAL_DENSE_WEIGHT" yaml:"dense_weight"`
	SparseWeight float64 `envconfig:"RICE_EVAL_SPARSE_WEIGHT" yaml:"sparse_weight"`
	IndexBatch   int     `envconfig:"RICE_EVAL_INDEX_BATCH" yaml:"index_batch"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host             string        `envconfig:"QDRANT_HOST" yaml:"host"`
	Port             int           `envconfig:"QDRANT_PORT" yaml:"port"`
	APIKey           string        `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	UseTLS           bool          `envconfig:"QDRANT_USE_TLS" yaml:"use_tls"`
	CollectionPrefix string        `envconfig:"QDRANT_COLLECTION_PREFIX" yaml:"collection_prefix"`
	Timeout          time.Duration `envconfig:"QDRANT_TIMEOUT" yaml:"timeout"`
}

// EmbedConfig holds embedding provider settings.
type EmbedConfig struct {
	Provider  string `envconfig:"RICE_EVAL_EMBED_PROVIDER" yaml:"provider"`
	Model     string `envconfig:"RICE_EVAL_EMBED_MODEL" yaml:"model"`
	BaseURL   string `envconfig:"RICE_EVAL_EMBED_URL" yaml:"base_url"` // e.g. http://localhost:11434/v1 for Ollama
	APIKey    string `envconfig:"OPENAI_API_KEY" yaml:"api_key"`
	Dim       int    `envconfig:"RICE_EVAL_EMBED_DIM" yaml:"dim"`
	BatchSize int    `envconfig:"RICE_EVAL_EMBED_BATCH_SIZE" yaml:"batch_size"`
	CacheSize int    `envconfig:"RICE_EVAL_EMBED_CACHE_SIZE" yaml:"cache_size"` // 0 = no cache
}

// EvalConfig holds evaluation settings.
type EvalConfig struct {
	Cutoffs      []int         `envconfig:"RICE_EVAL_CUTOFFS" yaml:"cutoffs"`
	Workers      int           `envconfig:"RICE_EVAL_WORKERS" yaml:"workers"`
	QueryTimeout time.Duration `envconfig:"RICE_EVAL_QUERY_TIMEOUT" yaml:"query_timeout"`
	RateLimit    float64       `envconfig:"RICE_EVAL_RATE_LIMIT" yaml:"rate_limit"` // queries per second, 0 = unlimited
}

// LabelerConfig holds the keyword rules used to label documents.
// No rules selects the built-in rule table.
type LabelerConfig struct {
	Rules []LabelRule `yaml:"rules"`
}

// LabelRule maps keywords to a category name.
type LabelRule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// ReportConfig holds report rendering and persistence settings.
type ReportConfig struct {
	Format   string        `envconfig:"RICE_EVAL_REPORT_FORMAT" yaml:"format"`
	RedisURL string        `envconfig:"RICE_EVAL_REDIS_URL" yaml:"redis_url"` // empty = history disabled
	TTL      time.Duration `envconfig:"RICE_EVAL_HISTORY_TTL" yaml:"ttl"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"RICE_EVAL_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"RICE_EVAL_KAFKA_BROKERS" yaml:"kafka_brokers"`
	Topic        string `envconfig:"RICE_EVAL_BUS_TOPIC" yaml:"topic"`
	EventLog     string `envconfig:"RICE_EVAL_EVENT_LOG" yaml:"event_log"` // file bus only
}

// MetricsConfig holds operational metrics settings.
type MetricsConfig struct {
	Textfile string `envconfig:"RICE_EVAL_METRICS_FILE" yaml:"textfile"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"RICE_EVAL_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"RICE_EVAL_LOG_FORMAT" yaml:"format"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string  `envconfig:"RICE_EVAL_HOST" yaml:"host"`
	Port      int     `envconfig:"RICE_EVAL_PORT" yaml:"port"`
	RateLimit float64 `envconfig:"RICE_EVAL_SERVER_RATE_LIMIT" yaml:"rate_limit"` // evaluate requests per second per client, 0 = unlimited
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// Default returns a configuration holding only the defaults.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	cfg.Corpus = CorpusConfig{
		Source:         DefaultCorpusSource,
		ScenarioSource: DefaultScenarioSource,
		FetchTimeout:   30 * time.Second,
	}

	cfg.Backend = BackendConfig{
		Type:         "memory",
		Collection:   "retrieval_test",
		DenseWeight:  0.5,
		SparseWeight: 0.5,
		IndexBatch:   32,
	}

	cfg.Qdrant = QdrantConfig{
		Host:             "localhost",
		Port:             6334,
		CollectionPrefix: "eval_",
		Timeout:          30 * time.Second,
	}

	cfg.Embed = EmbedConfig{
		Provider:  "hash",
		Model:     "text-embedding-3-small",
		Dim:       384,
		BatchSize: 32,
		CacheSize: 10000,
	}

	cfg.Eval = EvalConfig{
		Cutoffs:      []int{1, 2, 3, 4, 5},
		Workers:      1,
		QueryTimeout: 30 * time.Second,
	}

	cfg.Report = ReportConfig{
		Format: "text",
		TTL:    30 * 24 * time.Hour,
	}

	cfg.Bus = BusConfig{
		Type:  "none",
		Topic: "eval.run.completed",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Server = ServerConfig{
		Host:      "0.0.0.0",
		Port:      8090,
		RateLimit: 1,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Corpus.Source == "" {
		errs = append(errs, "corpus source is required")
	}
	if c.Corpus.ScenarioSource == "" {
		errs = append(errs, "scenario source is required")
	}

	validBackends := map[string]bool{"memory": true, "lexical": true, "hybrid": true, "qdrant": true}
	if !validBackends[c.Backend.Type] {
		errs = append(errs, fmt.Sprintf("invalid backend: %s (must be memory, lexical, hybrid, or qdrant)", c.Backend.Type))
	}

	if c.Backend.DenseWeight < 0 || c.Backend.DenseWeight > 1 {
		errs = append(errs, "dense_weight must be between 0 and 1")
	}
	if c.Backend.SparseWeight < 0 || c.Backend.SparseWeight > 1 {
		errs = append(errs, "sparse_weight must be between 0 and 1")
	}
	if c.Backend.DenseWeight == 0 && c.Backend.SparseWeight == 0 {
		errs = append(errs, "dense_weight and sparse_weight must not both be 0")
	}
	if c.Backend.IndexBatch < 1 {
		errs = append(errs, "index_batch must be positive")
	}

	if c.Backend.Type == "qdrant" {
		if c.Backend.Collection == "" {
			errs = append(errs, "collection is required for the qdrant backend")
		}
		if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
			errs = append(errs, "qdrant port must be between 1 and 65535")
		}
	}

	validProviders := map[string]bool{"hash": true, "openai": true}
	if !validProviders[c.Embed.Provider] {
		errs = append(errs, fmt.Sprintf("invalid embed provider: %s (must be hash or openai)", c.Embed.Provider))
	}
	if c.Embed.Provider == "hash" && c.Embed.Dim < 1 {
		errs = append(errs, "embed dim must be positive")
	}
	if c.Embed.Provider == "openai" && c.Embed.APIKey == "" && c.Embed.BaseURL == "" {
		errs = append(errs, "openai embed provider needs an api key or a base url")
	}
	if c.Embed.BatchSize < 1 {
		errs = append(errs, "embed batch_size must be positive")
	}
	if c.Embed.CacheSize < 0 {
		errs = append(errs, "embed cache_size must not be negative")
	}

	if len(c.Eval.Cutoffs) == 0 {
		errs = append(errs, "at least one cutoff is required")
	}
	for _, k := range c.Eval.Cutoffs {
		if k < 1 {
			errs = append(errs, fmt.Sprintf("cutoff %d must be at least 1", k))
		}
	}
	if c.Eval.Workers < 1 {
		errs = append(errs, "workers must be positive")
	}
	if c.Eval.QueryTimeout < 0 {
		errs = append(errs, "query_timeout must not be negative")
	}
	if c.Eval.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	for i, r := range c.Labeler.Rules {
		if r.Category == "" {
			errs = append(errs, fmt.Sprintf("labeler rule %d has no category", i))
		}
		if len(r.Keywords) == 0 {
			errs = append(errs, fmt.Sprintf("labeler rule %d has no keywords", i))
		}
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Report.Format] {
		errs = append(errs, fmt.Sprintf("invalid report format: %s (must be text or json)", c.Report.Format))
	}

	// The in-process bus has no subscribers outside the process, so it is not
	// a configurable sink.
	validBusTypes := map[string]bool{"none": true, "kafka": true, "file": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be none, kafka, or file)", c.Bus.Type))
	}
	if c.Bus.Type == "file" && c.Bus.EventLog == "" {
		errs = append(errs, "event_log is required for the file bus")
	}
	if c.Bus.Type == "kafka" && c.Bus.KafkaBrokers == "" {
		errs = append(errs, "kafka_brokers is required for the kafka bus")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server rate_limit must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// KafkaBrokerList splits the comma separated broker list.
func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.Bus.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
