package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hive-corporation/threatpulse/internal/adapter/resilient"
	"github.com/hive-corporation/threatpulse/internal/core/service"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

type Config struct {
	Server     ServerConfig
	Logger     LoggerConfig
	Database   DatabaseConfig
	Feed       FeedConfig
	NATS       NATSConfig
	Redis      RedisConfig
	WebSocket  WebSocketConfig
	Slack      SlackConfig
	Discord    DiscordConfig
	Campaign   CampaignConfig
	Resilience ResilienceConfig
	Dispatcher DispatcherConfig
	Escalation EscalationConfig
}

// ServerConfig is the configuration for the REST, WebSocket and gRPC listeners
type ServerConfig struct {
	HTTPPort       string        `env:"HTTP_PORT" envDefault:"8080"`
	GRPCPort       string        `env:"GRPC_PORT" envDefault:"50051"`
	ReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout    time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	AllowedOrigins []string      `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
}

// LoggerConfig is the configuration for the logger
type LoggerConfig struct {
	Level        string `env:"LOGGER_LEVEL" envDefault:"info"`
	Mode         string `env:"LOGGER_MODE" envDefault:"production"`
	Encoding     string `env:"LOGGER_ENCODING" envDefault:"json"`
	ColorEnabled bool   `env:"LOGGER_COLOR_ENABLED" envDefault:"false"`
}

// DatabaseConfig selects persistence. Without a URL everything stays in memory.
type DatabaseConfig struct {
	URL          string        `env:"DATABASE_URL"`
	HydrateSince time.Duration `env:"HYDRATE_SINCE" envDefault:"24h"`
	HydrateLimit int           `env:"HYDRATE_LIMIT" envDefault:"500"`
}

type FeedConfig struct {
	PollInterval time.Duration `env:"FEED_POLL_INTERVAL" envDefault:"30s"`
	SourcesFile  string        `env:"FEED_SOURCES_FILE" envDefault:"sources.yaml"`
}

type NATSConfig struct {
	URL     string `env:"NATS_URL"`
	Subject string `env:"NATS_SUBJECT" envDefault:"threatpulse.feed"`
	Queue   string `env:"NATS_QUEUE"`
}

// RedisConfig is the configuration for the Redis pub/sub feed
type RedisConfig struct {
	Addr     string   `env:"REDIS_ADDR"`
	Password string   `env:"REDIS_PASSWORD"`
	DB       int      `env:"REDIS_DB" envDefault:"0"`
	Channels []string `env:"REDIS_CHANNELS" envSeparator:"," envDefault:"threatpulse:feed:*"`
}

// WebSocketConfig is the upstream real-time feed, not the dashboard hub
type WebSocketConfig struct {
	URL            string        `env:"FEED_WS_URL"`
	ReconnectDelay time.Duration `env:"FEED_WS_RECONNECT_DELAY" envDefault:"5s"`
}

type SlackConfig struct {
	BotToken    string `env:"SLACK_BOT_TOKEN"`
	Channel     string `env:"SLACK_CHANNEL_ID"`
	MentionTeam string `env:"SLACK_MENTION_TEAM"`
}

// DiscordConfig is the configuration for Discord webhook notifications
type DiscordConfig struct {
	WebhookURL string `env:"DISCORD_WEBHOOK_URL"`
	Username   string `env:"DISCORD_USERNAME" envDefault:"threatpulse"`
}

type CampaignConfig struct {
	URL   string `env:"CAMPAIGN_URL"`
	Token string `env:"CAMPAIGN_TOKEN"`
}

// ResilienceConfig tunes every outbound HTTP client
type ResilienceConfig struct {
	Timeout              time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"10s"`
	EnableCircuitBreaker bool          `env:"CIRCUIT_BREAKER_ENABLED" envDefault:"true"`
	MaxFailures          uint32        `env:"CIRCUIT_BREAKER_MAX_FAILURES" envDefault:"5"`
	CircuitTimeout       time.Duration `env:"CIRCUIT_BREAKER_TIMEOUT" envDefault:"30s"`
	MaxRetries           int           `env:"HTTP_CLIENT_MAX_RETRIES" envDefault:"3"`
	InitialInterval      time.Duration `env:"HTTP_CLIENT_RETRY_INITIAL" envDefault:"500ms"`
	MaxInterval          time.Duration `env:"HTTP_CLIENT_RETRY_MAX" envDefault:"5s"`
}

type DispatcherConfig struct {
	Enabled            bool          `env:"NOTIFICATIONS_ENABLED" envDefault:"true"`
	ExcerptLength      int           `env:"NOTIFICATION_EXCERPT_LENGTH" envDefault:"100"`
	MaxDesktopPerBurst int           `env:"NOTIFICATION_MAX_DESKTOP_PER_BURST" envDefault:"5"`
	AudioInterval      time.Duration `env:"NOTIFICATION_AUDIO_INTERVAL" envDefault:"2s"`
	DesktopQueueSize   int           `env:"NOTIFICATION_DESKTOP_QUEUE" envDefault:"100"`
	DesktopTimeout     time.Duration `env:"NOTIFICATION_DESKTOP_TIMEOUT" envDefault:"10s"`
}

type EscalationConfig struct {
	ActivationTimeout time.Duration `env:"ESCALATION_ACTIVATION_TIMEOUT" envDefault:"30s"`
	NoticeCacheSize   int           `env:"ESCALATION_NOTICE_CACHE_SIZE" envDefault:"1024"`
	RestoreLimit      int           `env:"ESCALATION_RESTORE_LIMIT" envDefault:"200"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Feed.PollInterval <= 0 {
		return fmt.Errorf("FEED_POLL_INTERVAL must be positive, got %s", c.Feed.PollInterval)
	}
	if c.Dispatcher.ExcerptLength <= 0 {
		return fmt.Errorf("NOTIFICATION_EXCERPT_LENGTH must be positive, got %d", c.Dispatcher.ExcerptLength)
	}
	if c.Dispatcher.MaxDesktopPerBurst < 0 {
		return fmt.Errorf("NOTIFICATION_MAX_DESKTOP_PER_BURST must not be negative, got %d", c.Dispatcher.MaxDesktopPerBurst)
	}
	if (c.Slack.BotToken == "") != (c.Slack.Channel == "") {
		return errors.New("SLACK_BOT_TOKEN and SLACK_CHANNEL_ID must be set together")
	}
	return nil
}

func (c LoggerConfig) Zap() log.ZapConfig {
	return log.ZapConfig{
		Level:        c.Level,
		Mode:         c.Mode,
		Encoding:     c.Encoding,
		ColorEnabled: c.ColorEnabled,
	}
}

func (c ResilienceConfig) Client() resilient.Config {
	return resilient.Config{
		Timeout:              c.Timeout,
		EnableCircuitBreaker: c.EnableCircuitBreaker,
		MaxFailures:          c.MaxFailures,
		CircuitTimeout:       c.CircuitTimeout,
		MaxRetries:           c.MaxRetries,
		InitialInterval:      c.InitialInterval,
		MaxInterval:          c.MaxInterval,
	}
}

func (c DispatcherConfig) Service() service.DispatcherConfig {
	return service.DispatcherConfig{
		ExcerptLength:      c.ExcerptLength,
		MaxDesktopPerBurst: c.MaxDesktopPerBurst,
		AudioInterval:      c.AudioInterval,
	}
}

func (c EscalationConfig) Service() service.EscalationConfig {
	return service.EscalationConfig{
		ActivationTimeout: c.ActivationTimeout,
		NoticeCacheSize:   c.NoticeCacheSize,
	}
}

// Source is one polled HTTP feed.
type Source struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Format  string `yaml:"format"`
	APIKey  string `yaml:"api_key"`
	Enabled *bool  `yaml:"enabled"`
}

func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the poll source list. A missing file yields no sources.
// api_key values are expanded from the environment, so the file can say
// api_key: ${VENDOR_API_KEY}.
func LoadSources(path string) ([]Source, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var sources []Source
	seen := make(map[string]bool)
	for i, s := range file.Sources {
		if s.Name == "" || s.URL == "" {
			return nil, fmt.Errorf("%s: source %d needs a name and a url", path, i)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("%s: duplicate source name %q", path, s.Name)
		}
		seen[s.Name] = true
		switch s.Format {
		case "":
			s.Format = "json"
		case "json", "csv":
		default:
			return nil, fmt.Errorf("%s: source %q has unknown format %q", path, s.Name, s.Format)
		}
		if !s.IsEnabled() {
			continue
		}
		s.APIKey = os.ExpandEnv(s.APIKey)
		sources = append(sources, s)
	}
	return sources, nil
}
