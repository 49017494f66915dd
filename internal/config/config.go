package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	GoPhish  GoPhishConfig  `yaml:"gophish"`
	Campaign CampaignConfig `yaml:"campaign"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Extract  ExtractConfig  `yaml:"extract"`
	Notify   NotifyConfig   `yaml:"notify"`
	Results  ResultsConfig  `yaml:"results"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
}

// LoggingConfig controls log verbosity and PII handling
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// RedactEnabled reports whether email redaction is on (default true).
func (c LoggingConfig) RedactEnabled() bool {
	if c.RedactPII == nil {
		return true
	}
	return *c.RedactPII
}

// GoPhishConfig holds campaign service API configuration
type GoPhishConfig struct {
	BaseURL        string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	VerifySSL      *bool  `yaml:"verify_ssl"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c GoPhishConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SSLVerification reports whether upstream TLS certificates are checked
// (default true; self-hosted GoPhish often runs on a self-signed cert).
func (c GoPhishConfig) SSLVerification() bool {
	if c.VerifySSL == nil {
		return true
	}
	return *c.VerifySSL
}

// CampaignConfig describes one recurring exercise
type CampaignConfig struct {
	NamePrefix        string `yaml:"name_prefix"`
	TargetsCSV        string `yaml:"targets_csv"`
	SMTPProfile       string `yaml:"smtp_profile"`
	Template          string `yaml:"template"`
	LandingPage       string `yaml:"landing_page"`
	URL               string `yaml:"url"`
	TimeoutHours      float64 `yaml:"timeout_hours"`
	SendWarningEmails *bool  `yaml:"send_warning_emails"`
}

// Timeout returns the overall monitoring deadline as a duration
func (c CampaignConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutHours * float64(time.Hour))
}

// WarningsEnabled reports whether affected users get a warning email (default true).
func (c CampaignConfig) WarningsEnabled() bool {
	if c.SendWarningEmails == nil {
		return true
	}
	return *c.SendWarningEmails
}

// MonitorConfig holds completion-monitor tuning
type MonitorConfig struct {
	CheckIntervalMinutes    int `yaml:"check_interval_minutes"`
	QuietPeriodMinutes      int `yaml:"quiet_period_minutes"`
	NoActivityTimeoutMinutes int `yaml:"no_activity_timeout_minutes"`
}

// CheckInterval returns the poll cadence as a duration
func (c MonitorConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMinutes) * time.Minute
}

// QuietPeriod returns the sustained-activity quiet window as a duration
func (c MonitorConfig) QuietPeriod() time.Duration {
	return time.Duration(c.QuietPeriodMinutes) * time.Minute
}

// NoActivityTimeout returns the fully-delivered/no-activity window as a duration
func (c MonitorConfig) NoActivityTimeout() time.Duration {
	return time.Duration(c.NoActivityTimeoutMinutes) * time.Minute
}

// ExtractConfig holds extraction pipeline tuning
type ExtractConfig struct {
	// ExtraPhrases extends the built-in phrase → event-kind table for
	// timeline classification without touching control flow.
	ExtraPhrases map[string]string `yaml:"extra_phrases"`
}

// NotifyConfig holds warning-email delivery configuration
type NotifyConfig struct {
	Transport        string        `yaml:"transport"` // "mailgun" or "smtp"
	SenderEmail      string        `yaml:"sender_email"`
	SenderName       string        `yaml:"sender_name"`
	Subject          string        `yaml:"subject"`
	TextTemplatePath string        `yaml:"text_template"`
	HTMLTemplatePath string        `yaml:"html_template"`
	SendDelaySeconds int           `yaml:"send_delay_seconds"`
	Mailgun          MailgunConfig `yaml:"mailgun"`
	SMTP             SMTPConfig    `yaml:"smtp"`
}

// SendDelay returns the pause between successive notification sends
func (c NotifyConfig) SendDelay() time.Duration {
	return time.Duration(c.SendDelaySeconds) * time.Second
}

// MailgunConfig holds Mailgun API configuration
type MailgunConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Domain         string `yaml:"domain"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c MailgunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SMTPConfig holds submission server credentials for the SMTP transport
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Addr returns host:port for dialing
func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ResultsConfig holds result sink configuration
type ResultsConfig struct {
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`
}

// S3Config holds optional S3 archival settings for result files
type S3Config struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`
}

// ServerConfig holds the optional status API configuration
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// DatabaseConfig holds the optional run-history database settings
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the optional run-lock Redis settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.GoPhish.TimeoutSeconds == 0 {
		cfg.GoPhish.TimeoutSeconds = 60
	}
	if cfg.Campaign.NamePrefix == "" {
		cfg.Campaign.NamePrefix = "Security Awareness"
	}
	if cfg.Campaign.TimeoutHours == 0 {
		cfg.Campaign.TimeoutHours = 24
	}
	if cfg.Monitor.CheckIntervalMinutes == 0 {
		cfg.Monitor.CheckIntervalMinutes = 10
	}
	if cfg.Monitor.QuietPeriodMinutes == 0 {
		cfg.Monitor.QuietPeriodMinutes = 30
	}
	if cfg.Monitor.NoActivityTimeoutMinutes == 0 {
		cfg.Monitor.NoActivityTimeoutMinutes = 60
	}
	if cfg.Notify.Transport == "" {
		cfg.Notify.Transport = "mailgun"
	}
	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = "Security awareness notice"
	}
	if cfg.Notify.SendDelaySeconds == 0 {
		cfg.Notify.SendDelaySeconds = 2
	}
	if cfg.Notify.Mailgun.BaseURL == "" {
		cfg.Notify.Mailgun.BaseURL = "https://api.mailgun.net"
	}
	if cfg.Notify.Mailgun.TimeoutSeconds == 0 {
		cfg.Notify.Mailgun.TimeoutSeconds = 30
	}
	if cfg.Notify.SMTP.Port == 0 {
		cfg.Notify.SMTP.Port = 587
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "."
	}
	if cfg.Results.S3.Region == "" {
		cfg.Results.S3.Region = "us-east-1"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on a scheduler host.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("GOPHISH_URL"); v != "" {
		cfg.GoPhish.BaseURL = v
	}
	if v := os.Getenv("GOPHISH_API_KEY"); v != "" {
		cfg.GoPhish.APIKey = v
	}
	if v := os.Getenv("MAILGUN_API_KEY"); v != "" {
		cfg.Notify.Mailgun.APIKey = v
	}
	if v := os.Getenv("MAILGUN_BASE_URL"); v != "" {
		cfg.Notify.Mailgun.BaseURL = v
	}
	if v := os.Getenv("MAILGUN_DOMAIN"); v != "" {
		cfg.Notify.Mailgun.Domain = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Notify.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Notify.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		cfg.Notify.SMTP.Password = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}

	return cfg, nil
}

// Validate checks the fields without which the exercise cannot start.
// These are fatal configuration failures: core logic must not be entered.
func (c *Config) Validate() error {
	if c.GoPhish.BaseURL == "" {
		return fmt.Errorf("gophish.url is required")
	}
	if c.GoPhish.APIKey == "" {
		return fmt.Errorf("gophish.api_key is required (set GOPHISH_API_KEY)")
	}
	if c.Campaign.TimeoutHours <= 0 {
		return fmt.Errorf("campaign.timeout_hours must be > 0, got %v", c.Campaign.TimeoutHours)
	}
	return nil
}
