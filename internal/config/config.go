package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	Worker     WorkerConfig     `yaml:"worker"`
	Threads    ThreadsConfig    `yaml:"threads"`
	Instagram  InstagramConfig  `yaml:"instagram"`
	Download   DownloadConfig   `yaml:"download"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Whisper    WhisperConfig    `yaml:"whisper"`
	Grok       GrokConfig       `yaml:"grok"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Publish    PublishConfig    `yaml:"publish"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Dedup      DedupConfig      `yaml:"dedup"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"9847"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT" default:"json"` // json | text
}

// StorageConfig holds filesystem storage configuration.
type StorageConfig struct {
	TempPath string `yaml:"temp_path" envconfig:"STORAGE_TEMP_PATH" default:"/data/temp"`
}

// DatabaseConfig holds sqlite configuration.
type DatabaseConfig struct {
	Path string `yaml:"path" envconfig:"DATABASE_PATH" default:"/data/threadgrabba.db"`
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count        int           `yaml:"count" envconfig:"WORKER_COUNT" default:"2"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"WORKER_POLL_INTERVAL" default:"2s"`
}

// ThreadsConfig holds extraction configuration.
type ThreadsConfig struct {
	APIBaseURL         string        `yaml:"api_base_url" envconfig:"THREADS_API_BASE_URL" default:"https://i.instagram.com"`
	WebBaseURL         string        `yaml:"web_base_url" envconfig:"THREADS_WEB_BASE_URL" default:"https://www.threads.net"`
	CookiesPath        string        `yaml:"cookies_path" envconfig:"THREADS_COOKIES_PATH" default:"/data/cookies.txt"`
	CookiesPassphrase  string        `yaml:"cookies_passphrase" envconfig:"THREADS_COOKIES_PASSPHRASE"`
	Timeout            time.Duration `yaml:"timeout" envconfig:"THREADS_TIMEOUT" default:"30s"`
	FetchReplies       bool          `yaml:"fetch_replies" envconfig:"THREADS_FETCH_REPLIES" default:"false"`
	MaxReplies         int           `yaml:"max_replies" envconfig:"THREADS_MAX_REPLIES" default:"20"`
	PreferRicherThread bool          `yaml:"prefer_richer_thread" envconfig:"THREADS_PREFER_RICHER_THREAD" default:"false"`
}

// InstagramConfig holds reel extraction configuration.
type InstagramConfig struct {
	WebBaseURL string        `yaml:"web_base_url" envconfig:"INSTAGRAM_WEB_BASE_URL" default:"https://www.instagram.com"`
	YtDlpPath  string        `yaml:"ytdlp_path" envconfig:"INSTAGRAM_YTDLP_PATH" default:"yt-dlp"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"INSTAGRAM_TIMEOUT" default:"60s"`
}

// DownloadConfig holds media download configuration.
type DownloadConfig struct {
	ImageTimeout       time.Duration `yaml:"image_timeout" envconfig:"DOWNLOAD_IMAGE_TIMEOUT" default:"30s"`
	VideoTimeout       time.Duration `yaml:"video_timeout" envconfig:"DOWNLOAD_VIDEO_TIMEOUT" default:"60s"`
	ReadTimeout        time.Duration `yaml:"read_timeout" envconfig:"DOWNLOAD_READ_TIMEOUT" default:"30s"`
	MaxAttempts        int           `yaml:"max_attempts" envconfig:"DOWNLOAD_MAX_ATTEMPTS" default:"3"`
	RetryDelay         time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"2s"`
	MaxRetryDelay      time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY" default:"10s"`
	UserAgent          string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
	ActivityLogPath    string        `yaml:"activity_log_path" envconfig:"DOWNLOAD_ACTIVITY_LOG" default:"/data/download_log.jsonl"`
	ActivityLogEntries int           `yaml:"activity_log_entries" envconfig:"DOWNLOAD_ACTIVITY_LOG_ENTRIES" default:"1000"`
}

// AnalysisConfig holds visual analysis configuration.
type AnalysisConfig struct {
	Enabled     bool `yaml:"enabled" envconfig:"ANALYSIS_ENABLED" default:"true"`
	Concurrency int  `yaml:"concurrency" envconfig:"ANALYSIS_CONCURRENCY" default:"3"`
}

// WhisperConfig holds transcription configuration.
type WhisperConfig struct {
	APIKey   string        `yaml:"api_key" envconfig:"WHISPER_API_KEY"`
	BaseURL  string        `yaml:"base_url" envconfig:"WHISPER_BASE_URL" default:"https://api.openai.com/v1"`
	Model    string        `yaml:"model" envconfig:"WHISPER_MODEL" default:"whisper-1"`
	Language string        `yaml:"language" envconfig:"WHISPER_LANGUAGE"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"WHISPER_TIMEOUT" default:"5m"`
}

// GrokConfig holds Grok AI configuration.
type GrokConfig struct {
	APIKey      string        `yaml:"api_key" envconfig:"GROK_API_KEY"`
	BaseURL     string        `yaml:"base_url" envconfig:"GROK_BASE_URL" default:"https://api.x.ai/v1"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"GROK_TIMEOUT" default:"60s"`
	Model       string        `yaml:"model" envconfig:"GROK_MODEL" default:"grok-3-mini"`
	VisionModel string        `yaml:"vision_model" envconfig:"GROK_VISION_MODEL" default:"grok-2-vision-1212"`
}

// SummarizerConfig selects and configures the summary backend.
type SummarizerConfig struct {
	Backend  string        `yaml:"backend" envconfig:"SUMMARIZER_BACKEND" default:"grok"` // grok | openai | gemini | cli
	Fallback string        `yaml:"fallback" envconfig:"SUMMARIZER_FALLBACK" default:"grok"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"SUMMARIZER_TIMEOUT" default:"2m"`

	OpenAIKey     string `yaml:"openai_api_key" envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `yaml:"openai_base_url" envconfig:"OPENAI_BASE_URL"`
	OpenAIModel   string `yaml:"openai_model" envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	GeminiKey   string `yaml:"gemini_api_key" envconfig:"GEMINI_API_KEY"`
	GeminiModel string `yaml:"gemini_model" envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`

	CLIPath  string `yaml:"cli_path" envconfig:"SUMMARIZER_CLI_PATH" default:"claude"`
	CLIModel string `yaml:"cli_model" envconfig:"SUMMARIZER_CLI_MODEL"`
}

// PublishConfig holds note publishing configuration.
type PublishConfig struct {
	OutputDir  string `yaml:"output_dir" envconfig:"PUBLISH_OUTPUT_DIR" default:"/data/notes"`
	RenderHTML bool   `yaml:"render_html" envconfig:"PUBLISH_RENDER_HTML" default:"true"`
	KeepMedia  bool   `yaml:"keep_media" envconfig:"PUBLISH_KEEP_MEDIA" default:"true"`
}

// SchedulerConfig holds failed-task retry configuration.
type SchedulerConfig struct {
	Interval   time.Duration `yaml:"interval" envconfig:"RETRY_INTERVAL" default:"1h"`
	MaxRetries int           `yaml:"max_retries" envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
}

// TelegramConfig holds chat front-end configuration.
type TelegramConfig struct {
	Token          string  `yaml:"token" envconfig:"TELEGRAM_BOT_TOKEN"`
	AllowedChatIDs []int64 `yaml:"allowed_chat_ids" envconfig:"TELEGRAM_ALLOWED_CHAT_IDS"`
	Debug          bool    `yaml:"debug" envconfig:"TELEGRAM_DEBUG" default:"false"`
}

// Enabled reports whether the bot should run.
func (c *TelegramConfig) Enabled() bool {
	return c.Token != ""
}

// DedupConfig holds the recent-request filter configuration.
type DedupConfig struct {
	Capacity       int           `yaml:"capacity" envconfig:"DEDUP_CAPACITY" default:"1000"`
	ValkeyAddr     string        `yaml:"valkey_addr" envconfig:"DEDUP_VALKEY_ADDR"`
	ValkeyPassword string        `yaml:"valkey_password" envconfig:"DEDUP_VALKEY_PASSWORD"`
	TTL            time.Duration `yaml:"ttl" envconfig:"DEDUP_TTL" default:"24h"`
}

// LoadEnvFile loads KEY=value pairs from a .env file into the process
// environment. Variables already set are left alone. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads configuration from defaults, environment variables and an
// optional YAML file, in that order of increasing precedence.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Defaults and environment
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// YAML file overrides whatever it sets
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

var summarizerBackends = map[string]bool{"grok": true, "openai": true, "gemini": true, "cli": true}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" && !c.Telegram.Enabled() {
		return fmt.Errorf("API_KEY or TELEGRAM_BOT_TOKEN is required")
	}
	if !summarizerBackends[c.Summarizer.Backend] {
		return fmt.Errorf("unknown SUMMARIZER_BACKEND %q", c.Summarizer.Backend)
	}
	if c.Summarizer.Fallback != "" && !summarizerBackends[c.Summarizer.Fallback] {
		return fmt.Errorf("unknown SUMMARIZER_FALLBACK %q", c.Summarizer.Fallback)
	}
	if c.usesBackend("grok") && c.Grok.APIKey == "" {
		return fmt.Errorf("GROK_API_KEY is required for the grok summarizer")
	}
	if c.usesBackend("openai") && c.Summarizer.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for the openai summarizer")
	}
	if c.usesBackend("gemini") && c.Summarizer.GeminiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required for the gemini summarizer")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.Publish.OutputDir == "" {
		return fmt.Errorf("PUBLISH_OUTPUT_DIR is required")
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if c.Scheduler.MaxRetries < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Scheduler.Interval < time.Second {
		return fmt.Errorf("RETRY_INTERVAL must be at least 1s")
	}
	if c.Analysis.Concurrency < 1 {
		return fmt.Errorf("ANALYSIS_CONCURRENCY must be at least 1")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.Log.Format)
	}
	return nil
}

func (c *Config) usesBackend(name string) bool {
	return c.Summarizer.Backend == name || c.Summarizer.Fallback == name
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
