package config

import (
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-harvest/internal/harvest"
	"github.com/sells-group/lead-harvest/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Harvest   HarvestConfig   `yaml:"harvest" mapstructure:"harvest"`
	Locations LocationsConfig `yaml:"locations" mapstructure:"locations"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// GoogleConfig holds Places API settings.
type GoogleConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// HarvestConfig configures the search pipeline.
type HarvestConfig struct {
	MaxRetries           int      `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBaseSecs      float64  `yaml:"backoff_base_secs" mapstructure:"backoff_base_secs"`
	RateLimitBackoffSecs float64  `yaml:"rate_limit_backoff_secs" mapstructure:"rate_limit_backoff_secs"`
	MaxBackoffSecs       float64  `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
	MaxConcurrency       int      `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	RequestsPerSecond    int      `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	LimiterMode          string   `yaml:"limiter_mode" mapstructure:"limiter_mode"`
	PageDelayMS          int      `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	MaxPages             int      `yaml:"max_pages" mapstructure:"max_pages"`
	Prescreen            bool     `yaml:"prescreen" mapstructure:"prescreen"`
	Exclusions           []string `yaml:"exclusions" mapstructure:"exclusions"`
	Keywords             []string `yaml:"keywords" mapstructure:"keywords"`
	RulesFile            string   `yaml:"rules_file" mapstructure:"rules_file"`
}

// LocationsConfig configures the city dataset.
type LocationsConfig struct {
	DatasetPath   string `yaml:"dataset_path" mapstructure:"dataset_path"`
	DatasetURL    string `yaml:"dataset_url" mapstructure:"dataset_url"`
	CacheDir      string `yaml:"cache_dir" mapstructure:"cache_dir"`
	MinPopulation int    `yaml:"min_population" mapstructure:"min_population"`
	PerState      int    `yaml:"per_state" mapstructure:"per_state"`
}

// OutputConfig configures file sinks.
type OutputConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// NotionConfig holds Notion API credentials and the lead database ID.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MetricsConfig configures the metrics listener of the harvest command.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
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
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("google.key", "LEADS_GOOGLE_KEY", "GOOGLE_PLACES_API_KEY")
	_ = v.BindEnv("anthropic.key", "LEADS_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("notion.token", "LEADS_NOTION_TOKEN", "NOTION_TOKEN")

	// Defaults
	v.SetDefault("google.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("google.timeout_secs", 10)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 256)
	v.SetDefault("harvest.max_retries", 3)
	v.SetDefault("harvest.backoff_base_secs", 2.0)
	v.SetDefault("harvest.rate_limit_backoff_secs", 2.0)
	v.SetDefault("harvest.max_backoff_secs", 60.0)
	v.SetDefault("harvest.max_concurrency", harvest.DefaultMaxConcurrency)
	v.SetDefault("harvest.requests_per_second", 10)
	v.SetDefault("harvest.limiter_mode", "window")
	v.SetDefault("harvest.page_delay_ms", int(harvest.DefaultPageDelay/time.Millisecond))
	v.SetDefault("harvest.max_pages", harvest.DefaultMaxPages)
	v.SetDefault("harvest.exclusions", DefaultExclusions)
	v.SetDefault("locations.dataset_url", "https://download.geonames.org/export/dump/cities15000.zip")
	v.SetDefault("locations.cache_dir", "/tmp/lead-harvest")
	v.SetDefault("locations.min_population", 10000)
	v.SetDefault("locations.per_state", 100)
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.formats", []string{"csv"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leads.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// DefaultExclusions are national chains rejected as excluded_chain.
var DefaultExclusions = []string{
	"Home Depot",
	"Lowe's",
	"Walmart",
	"Target",
	"Costco",
	"Menards",
	"Ace Hardware",
	"True Value",
}

// Validation modes, one per command that loads configuration.
const (
	ModeHarvest   = "harvest"
	ModeLocations = "locations"
	ModeRuns      = "runs"
	ModeServe     = "serve"
)

var validLimiterModes = []string{"window", "bucket"}

// Validate reports configuration errors that must stop startup.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case ModeHarvest:
		problems = append(problems, c.validateHarvest()...)
		problems = append(problems, c.validateLocations()...)
	case ModeLocations:
		problems = append(problems, c.validateLocations()...)
	case ModeRuns:
	case ModeServe:
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateHarvest() []string {
	var problems []string
	h := c.Harvest
	if c.Google.Key == "" {
		problems = append(problems, "google.key is required (set GOOGLE_PLACES_API_KEY)")
	}
	if h.MaxRetries < 1 {
		problems = append(problems, "harvest.max_retries must be >= 1")
	}
	if h.MaxConcurrency < 1 || h.MaxConcurrency > 100 {
		problems = append(problems, "harvest.max_concurrency must be between 1 and 100")
	}
	if h.RequestsPerSecond < 1 {
		problems = append(problems, "harvest.requests_per_second must be >= 1")
	}
	if !slices.Contains(validLimiterModes, h.LimiterMode) {
		problems = append(problems, "harvest.limiter_mode must be window or bucket")
	}
	if h.BackoffBaseSecs < 0 || h.RateLimitBackoffSecs < 0 || h.MaxBackoffSecs < 0 {
		problems = append(problems, "harvest backoff values must be >= 0")
	}
	for _, f := range c.Output.Formats {
		if f != "csv" && f != "xlsx" {
			problems = append(problems, "output.formats: unknown format "+f)
		}
	}
	if (c.Notion.Token == "") != (c.Notion.LeadDB == "") {
		problems = append(problems, "notion.token and notion.lead_db must be set together")
	}
	return problems
}

func (c *Config) validateLocations() []string {
	var problems []string
	if c.Locations.DatasetPath == "" && c.Locations.DatasetURL == "" {
		problems = append(problems, "locations.dataset_path or locations.dataset_url is required")
	}
	if c.Locations.PerState < 1 {
		problems = append(problems, "locations.per_state must be >= 1")
	}
	if c.Locations.MinPopulation < 0 {
		problems = append(problems, "locations.min_population must be >= 0")
	}
	return problems
}

// PageDelay returns the inter-page delay. Zero selects the default and
// values below the provider minimum are raised to it.
func (h HarvestConfig) PageDelay() time.Duration {
	d := time.Duration(h.PageDelayMS) * time.Millisecond
	switch {
	case d <= 0:
		return harvest.DefaultPageDelay
	case d < harvest.MinPageDelay:
		return harvest.MinPageDelay
	default:
		return d
	}
}

// Retry returns the retry policy for upstream calls.
func (h HarvestConfig) Retry() resilience.RetryConfig {
	return resilience.FromRetryConfig(h.MaxRetries, h.BackoffBaseSecs, h.RateLimitBackoffSecs, h.MaxBackoffSecs)
}

// RunConfig converts the harvest section into orchestrator settings.
func (h HarvestConfig) RunConfig(rules harvest.Rules) harvest.Config {
	return harvest.Config{
		MaxConcurrency: h.MaxConcurrency,
		PageDelay:      h.PageDelay(),
		MaxPages:       h.MaxPages,
		Prescreen:      h.Prescreen,
		Rules:          rules,
	}
}

// RulesFile is the YAML document that extends the configured rules.
type RulesFile struct {
	Exclusions []string `yaml:"exclusions"`
	Keywords   []string `yaml:"keywords"`
}

// LoadRules merges the configured exclusions and keywords with the rules
// file, when one is set.
func (h HarvestConfig) LoadRules() (harvest.Rules, error) {
	rules := harvest.Rules{
		Exclusions: append([]string(nil), h.Exclusions...),
		Keywords:   append([]string(nil), h.Keywords...),
	}
	if h.RulesFile == "" {
		return rules, nil
	}

	data, err := os.ReadFile(h.RulesFile)
	if err != nil {
		return rules, eris.Wrapf(err, "config: read rules file %s", h.RulesFile)
	}
	var rf RulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return rules, eris.Wrapf(err, "config: parse rules file %s", h.RulesFile)
	}
	rules.Exclusions = append(rules.Exclusions, rf.Exclusions...)
	rules.Keywords = append(rules.Keywords, rf.Keywords...)
	return rules, nil
}

// InitLogger initializes the global zap logger. debug forces the debug level.
func InitLogger(cfg LogConfig, debug bool) error {
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
	if debug {
		level = zapcore.DebugLevel
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
