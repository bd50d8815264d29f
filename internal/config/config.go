package config

import (
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "PROSPECT_SCANNER_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	chatGPTAPIKeyEnv  = "CHATGPT_API_KEY"
	chatGPTModelEnv   = "CHATGPT_MODEL"
	enrichmentKeyEnv  = "ENRICHMENT_API_KEY"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
)

// Enrichment providers.
const (
	ProviderNone    = "none"
	ProviderChatGPT = "chatgpt"
	ProviderML      = "ml"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Source        SourceConfig       `yaml:"source"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Discovery     DiscoveryConfig    `yaml:"discovery"`
	Enrichment    EnrichmentConfig   `yaml:"enrichment"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Profiles      ProfilesConfig     `yaml:"profiles"`
}

// LoggingConfig selects verbosity and output format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes the prospect store. postgres:// DSNs use Postgres,
// anything else is treated as a SQLite path.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig defines how often serve mode runs the pipeline.
type SchedulerConfig struct {
	Interval     time.Duration  `yaml:"interval"`
	Timezone     string         `yaml:"timezone"`
	ServiceTypes []string       `yaml:"serviceTypes"`
	location     *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// SourceConfig groups settings for the text source.
type SourceConfig struct {
	Default              string            `yaml:"default"`
	BaseURL              string            `yaml:"baseUrl"`
	Routes               map[string]string `yaml:"routes"`
	MinInterval          time.Duration     `yaml:"minInterval"`
	PageSize             int               `yaml:"pageSize"`
	MaxAttempts          int               `yaml:"maxAttempts"`
	BaseBackoff          time.Duration     `yaml:"baseBackoff"`
	RequestTimeout       time.Duration     `yaml:"requestTimeout"`
	Fallback             bool              `yaml:"fallback"`
	FallbackPerPartition int               `yaml:"fallbackPerPartition"`
	Comments             CommentsConfig    `yaml:"comments"`
}

// CommentsConfig bounds how much of each comment tree is fetched.
type CommentsConfig struct {
	MaxTop               int `yaml:"maxTop"`
	MaxRepliesPerComment int `yaml:"maxRepliesPerComment"`
	MaxDepth             int `yaml:"maxDepth"`
}

// PipelineConfig tunes the qualification run.
type PipelineConfig struct {
	Concurrency          int           `yaml:"concurrency"`
	MaxItemsPerPartition int           `yaml:"maxItemsPerPartition"`
	RunTimeout           time.Duration `yaml:"runTimeout"`
	DigestSize           int           `yaml:"digestSize"`
}

// DiscoveryConfig controls how many partitions a run adds on top of the
// profile list, found through community search.
type DiscoveryConfig struct {
	Enabled        bool          `yaml:"enabled"`
	MaxPartitions  int           `yaml:"maxPartitions"`
	MaxKeywords    int           `yaml:"maxKeywords"`
	MinSubscribers int           `yaml:"minSubscribers"`
	CacheSize      int           `yaml:"cacheSize"`
	CacheTTL       time.Duration `yaml:"cacheTtl"`
}

// EnrichmentConfig selects and bounds the metered enrichment service.
type EnrichmentConfig struct {
	Provider             string        `yaml:"provider"`
	Budget               int           `yaml:"budget"`
	EligibilityThreshold float64       `yaml:"eligibilityThreshold"`
	Concurrency          int           `yaml:"concurrency"`
	CallTimeout          time.Duration `yaml:"callTimeout"`
	ChatGPT              ChatGPTConfig `yaml:"chatgpt"`
	ML                   MLConfig      `yaml:"ml"`
	Cache                CacheConfig   `yaml:"cache"`

	// budgetSet records an explicit budget in the file, so budget: 0
	// can disable calls.
	budgetSet bool
}

// UnmarshalYAML notes whether budget was present in the document.
func (e *EnrichmentConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain EnrichmentConfig
	if err := node.Decode((*plain)(e)); err != nil {
		return err
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "budget" {
			e.budgetSet = true
		}
	}
	return nil
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// MLConfig describes the HTTP scoring service.
type MLConfig struct {
	InferenceURL string        `yaml:"inferenceUrl"`
	APIKey       string        `yaml:"apiKey"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CacheConfig sizes the enrichment result cache.
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIBase  string `yaml:"apiBase"`
}

// MetricsConfig controls the Prometheus endpoint of serve mode.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// ProfilesConfig points at a service profile file; empty means built-in.
type ProfilesConfig struct {
	Path string `yaml:"path"`
}

// Load reads YAML configuration named by PROSPECT_SCANNER_CONFIG (if present)
// and applies environment overrides.
func Load() Config {
	return LoadFrom(os.Getenv(configPathEnv))
}

// LoadFrom is Load with an explicit file path.
func LoadFrom(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			slog.Warn("config: cannot read file, falling back to defaults", "path", path, "error", err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				slog.Warn("config: cannot parse file, falling back to defaults", "path", path, "error", err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.Enrichment.ChatGPT.APIKey = v
	}

	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.Enrichment.ChatGPT.Model = v
	}

	if v := os.Getenv(enrichmentKeyEnv); v != "" {
		c.Enrichment.ML.APIKey = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.Warn("config: unknown timezone, reverting to default", "timezone", tz, "default", defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Scheduler.Interval > 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}
	if len(override.Scheduler.ServiceTypes) > 0 {
		base.Scheduler.ServiceTypes = override.Scheduler.ServiceTypes
	}

	base.Source = mergeSource(base.Source, override.Source)
	base.Pipeline = mergePipeline(base.Pipeline, override.Pipeline)
	base.Discovery = mergeDiscovery(base.Discovery, override.Discovery)
	base.Enrichment = mergeEnrichment(base.Enrichment, override.Enrichment)

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}
	if override.Notifications.Telegram.APIBase != "" {
		base.Notifications.Telegram.APIBase = override.Notifications.Telegram.APIBase
	}

	if override.Metrics.Addr != "" {
		base.Metrics.Addr = override.Metrics.Addr
	}
	if override.Metrics.Path != "" {
		base.Metrics.Path = override.Metrics.Path
	}

	if override.Profiles.Path != "" {
		base.Profiles.Path = override.Profiles.Path
	}

	return base
}

func mergeSource(base, override SourceConfig) SourceConfig {
	if override.Default != "" {
		base.Default = override.Default
	}
	if override.BaseURL != "" {
		base.BaseURL = override.BaseURL
	}
	if len(override.Routes) > 0 {
		base.Routes = override.Routes
	}
	if override.MinInterval > 0 {
		base.MinInterval = override.MinInterval
	}
	if override.PageSize > 0 {
		base.PageSize = override.PageSize
	}
	if override.MaxAttempts > 0 {
		base.MaxAttempts = override.MaxAttempts
	}
	if override.BaseBackoff > 0 {
		base.BaseBackoff = override.BaseBackoff
	}
	if override.RequestTimeout > 0 {
		base.RequestTimeout = override.RequestTimeout
	}
	if override.Fallback {
		base.Fallback = true
	}
	if override.FallbackPerPartition > 0 {
		base.FallbackPerPartition = override.FallbackPerPartition
	}
	if override.Comments.MaxTop > 0 {
		base.Comments.MaxTop = override.Comments.MaxTop
	}
	if override.Comments.MaxRepliesPerComment > 0 {
		base.Comments.MaxRepliesPerComment = override.Comments.MaxRepliesPerComment
	}
	if override.Comments.MaxDepth > 0 {
		base.Comments.MaxDepth = override.Comments.MaxDepth
	}
	return base
}

func mergePipeline(base, override PipelineConfig) PipelineConfig {
	if override.Concurrency > 0 {
		base.Concurrency = override.Concurrency
	}
	if override.MaxItemsPerPartition > 0 {
		base.MaxItemsPerPartition = override.MaxItemsPerPartition
	}
	if override.RunTimeout > 0 {
		base.RunTimeout = override.RunTimeout
	}
	if override.DigestSize > 0 {
		base.DigestSize = override.DigestSize
	}
	return base
}

func mergeDiscovery(base, override DiscoveryConfig) DiscoveryConfig {
	if override.Enabled {
		base.Enabled = true
	}
	if override.MaxPartitions > 0 {
		base.MaxPartitions = override.MaxPartitions
	}
	if override.MaxKeywords > 0 {
		base.MaxKeywords = override.MaxKeywords
	}
	if override.MinSubscribers > 0 {
		base.MinSubscribers = override.MinSubscribers
	}
	if override.CacheSize > 0 {
		base.CacheSize = override.CacheSize
	}
	if override.CacheTTL > 0 {
		base.CacheTTL = override.CacheTTL
	}
	return base
}

func mergeEnrichment(base, override EnrichmentConfig) EnrichmentConfig {
	if override.Provider != "" {
		base.Provider = override.Provider
	}
	if override.budgetSet || override.Budget > 0 {
		base.Budget = max(override.Budget, 0)
	}
	if override.EligibilityThreshold > 0 {
		base.EligibilityThreshold = override.EligibilityThreshold
	}
	if override.Concurrency > 0 {
		base.Concurrency = override.Concurrency
	}
	if override.CallTimeout > 0 {
		base.CallTimeout = override.CallTimeout
	}

	if override.ChatGPT.Endpoint != "" {
		base.ChatGPT.Endpoint = override.ChatGPT.Endpoint
	}
	if override.ChatGPT.Model != "" {
		base.ChatGPT.Model = override.ChatGPT.Model
	}
	if override.ChatGPT.APIKey != "" {
		base.ChatGPT.APIKey = override.ChatGPT.APIKey
	}
	if override.ChatGPT.SystemPrompt != "" {
		base.ChatGPT.SystemPrompt = override.ChatGPT.SystemPrompt
	}
	if override.ChatGPT.Timeout > 0 {
		base.ChatGPT.Timeout = override.ChatGPT.Timeout
	}

	if override.ML.InferenceURL != "" {
		base.ML.InferenceURL = override.ML.InferenceURL
	}
	if override.ML.APIKey != "" {
		base.ML.APIKey = override.ML.APIKey
	}
	if override.ML.Timeout > 0 {
		base.ML.Timeout = override.ML.Timeout
	}

	if override.Cache.Size > 0 {
		base.Cache.Size = override.Cache.Size
	}
	if override.Cache.TTL > 0 {
		base.Cache.TTL = override.Cache.TTL
	}
	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{DSN: "prospects.db"},
		Scheduler: SchedulerConfig{
			Interval:     time.Hour,
			Timezone:     defaultTimezone,
			ServiceTypes: []string{"drone_services"},
			location:     tz,
		},
		Source: SourceConfig{
			Default:              "html",
			BaseURL:              "https://old.reddit.com",
			MinInterval:          100 * time.Millisecond,
			PageSize:             25,
			MaxAttempts:          3,
			BaseBackoff:          500 * time.Millisecond,
			RequestTimeout:       15 * time.Second,
			FallbackPerPartition: 5,
			Comments:             CommentsConfig{MaxTop: 25, MaxRepliesPerComment: 5, MaxDepth: 3},
		},
		Pipeline: PipelineConfig{
			Concurrency:          8,
			MaxItemsPerPartition: 100,
			RunTimeout:           10 * time.Minute,
			DigestSize:           10,
		},
		Discovery: DiscoveryConfig{
			MaxPartitions:  5,
			MaxKeywords:    5,
			MinSubscribers: 500,
			CacheSize:      64,
			CacheTTL:       7 * 24 * time.Hour,
		},
		Enrichment: EnrichmentConfig{
			Provider:             ProviderNone,
			Budget:               5,
			EligibilityThreshold: 85,
			Concurrency:          4,
			CallTimeout:          10 * time.Second,
			ChatGPT: ChatGPTConfig{
				Endpoint:     "https://api.openai.com/v1/chat/completions",
				Model:        "gpt-4o-mini",
				SystemPrompt: "You rate how likely a post author is to hire a paid service provider soon.",
				Timeout:      20 * time.Second,
			},
			ML:    MLConfig{InferenceURL: "", Timeout: 15 * time.Second},
			Cache: CacheConfig{Size: 1024, TTL: 24 * time.Hour},
		},
		Metrics: MetricsConfig{Addr: ":9090", Path: "/metrics"},
	}
}
