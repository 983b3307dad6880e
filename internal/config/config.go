// Package config provides environment-variable-first configuration loading
// with optional YAML file and .env fallbacks for the contact relay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// defaultMaxBodyBytes is 64 KiB, far above the largest valid submission.
const defaultMaxBodyBytes = 64 << 10

// Config holds the complete application configuration. It is built once at
// process start and never mutated afterwards.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Contact   ContactConfig   `yaml:"contact"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Resend    ResendConfig    `yaml:"resend"`
	SparkPost SparkPostConfig `yaml:"sparkpost"`
	Mailgun   MailgunConfig   `yaml:"mailgun"`
	SES       SESConfig       `yaml:"ses"`
	Graph     GraphConfig     `yaml:"graph"`
	TLS       TLSConfig       `yaml:"tls"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP listener configuration.
type ServerConfig struct {
	Listen         string        `yaml:"listen"`
	Path           string        `yaml:"path"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// ContactConfig holds the addresses and wording used for outbound mail.
type ContactConfig struct {
	// From is the sender address for both messages.
	From string `yaml:"from"`
	// To is the site owner's address. Required.
	To                  string   `yaml:"to"`
	Cc                  []string `yaml:"cc"`
	SiteName            string   `yaml:"site_name"`
	HoneypotField       string   `yaml:"honeypot_field"`
	DefaultSubject      string   `yaml:"default_subject"`
	ConfirmationSubject string   `yaml:"confirmation_subject"`
}

// DeliveryConfig controls provider selection and per-call limits.
type DeliveryConfig struct {
	// Primary and Fallback name providers explicitly. When empty, providers
	// are picked from whichever credentials are present.
	Primary        string        `yaml:"primary"`
	Fallback       string        `yaml:"fallback"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Timeout        time.Duration `yaml:"timeout"`
}

// SMTPConfig holds authenticated relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ResendConfig holds Resend API credentials.
type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

// SparkPostConfig holds SparkPost API credentials.
type SparkPostConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// MailgunConfig holds Mailgun API credentials.
type MailgunConfig struct {
	APIKey  string `yaml:"api_key"`
	Domain  string `yaml:"domain"`
	APIBase string `yaml:"api_base"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// TLSConfig holds TLS certificate file paths for the HTTP listener.
type TLSConfig struct {
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	SelfSigned bool   `yaml:"self_signed"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigurationError reports a missing or invalid configuration value. It
// points at an operator problem, never at the client.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	cfg.applyEnvVars()
	cfg.fitWriteTimeout()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Defaults only fill what the file left empty.
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()
	cfg.fitWriteTimeout()

	return cfg, nil
}

// LoadEnvFile exports the variables of a .env file into the process
// environment without overriding variables that are already set. A missing
// default file is not an error; a missing explicit file is.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// RequireRecipients returns a ConfigurationError when the owner or sender
// address is missing. There is deliberately no built-in default address.
func (c *Config) RequireRecipients() error {
	if c.Contact.To == "" {
		return &ConfigurationError{Field: "contact.to", Reason: "is required"}
	}
	if c.Contact.From == "" {
		return &ConfigurationError{Field: "contact.from", Reason: "is required"}
	}
	return nil
}

// SMTPConfigured returns true if a relay host is set.
func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Host != ""
}

// ResendConfigured returns true if a Resend API key is set.
func (c *Config) ResendConfigured() bool {
	return c.Resend.APIKey != ""
}

// SparkPostConfigured returns true if a SparkPost API key is set.
func (c *Config) SparkPostConfigured() bool {
	return c.SparkPost.APIKey != ""
}

// MailgunConfigured returns true if both Mailgun key and domain are set.
func (c *Config) MailgunConfigured() bool {
	return c.Mailgun.APIKey != "" && c.Mailgun.Domain != ""
}

// SESConfigured returns true if an SES region is set. Credentials may come
// from the default AWS chain.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != ""
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// TLSEnabled returns true if the HTTP listener should serve TLS.
func (c *Config) TLSEnabled() bool {
	return c.TLS.SelfSigned || (c.TLS.CertFile != "" && c.TLS.KeyFile != "")
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Listen:       ":8080",
			Path:         "/api/contact",
			MaxBodyBytes: defaultMaxBodyBytes,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Contact: ContactConfig{
			SiteName:            "Portfolio",
			HoneypotField:       "website",
			DefaultSubject:      "Portfolio Contact Form",
			ConfirmationSubject: "Thanks for your message",
		},
		Delivery: DeliveryConfig{
			ConnectTimeout: 10 * time.Second,
			Timeout:        20 * time.Second,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		SparkPost: SparkPostConfig{
			BaseURL: "https://api.sparkpost.com/api/v1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyDefaults fills every zero-valued field with its default.
func (c *Config) applyDefaults() error {
	if err := mergo.Merge(c, defaults()); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	return nil
}

// writeTimeoutMargin covers decoding and composing around the provider calls.
const writeTimeoutMargin = 10 * time.Second

// fitWriteTimeout raises the server write timeout so one submission's
// worst case (primary, fallback, then confirmation, each bounded by the
// delivery timeout) still finishes before the response deadline.
func (c *Config) fitWriteTimeout() {
	if minimum := 3*c.Delivery.Timeout + writeTimeoutMargin; c.Server.WriteTimeout < minimum {
		c.Server.WriteTimeout = minimum
	}
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	setString(&c.Server.Listen, "HTTP_LISTEN")
	setString(&c.Server.Path, "HTTP_PATH")
	setList(&c.Server.AllowedOrigins, "CORS_ALLOWED_ORIGINS")
	if v := os.Getenv("HTTP_MAX_BODY_BYTES"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Server.MaxBodyBytes = size
		}
	}

	setString(&c.Contact.From, "CONTACT_FROM")
	setString(&c.Contact.To, "CONTACT_TO")
	setList(&c.Contact.Cc, "CONTACT_CC")
	setString(&c.Contact.SiteName, "CONTACT_SITE_NAME")
	setString(&c.Contact.HoneypotField, "CONTACT_HONEYPOT_FIELD")
	setString(&c.Contact.DefaultSubject, "CONTACT_DEFAULT_SUBJECT")
	setString(&c.Contact.ConfirmationSubject, "CONTACT_CONFIRMATION_SUBJECT")

	if v := os.Getenv("DELIVERY_PRIMARY"); v != "" {
		c.Delivery.Primary = strings.ToLower(v)
	}
	if v := os.Getenv("DELIVERY_FALLBACK"); v != "" {
		c.Delivery.Fallback = strings.ToLower(v)
	}
	setDuration(&c.Delivery.ConnectTimeout, "DELIVERY_CONNECT_TIMEOUT")
	setDuration(&c.Delivery.Timeout, "DELIVERY_TIMEOUT")

	setString(&c.SMTP.Host, "SMTP_HOST")
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = port
		}
	}
	setString(&c.SMTP.Username, "SMTP_USERNAME")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")

	setString(&c.Resend.APIKey, "RESEND_API_KEY")

	setString(&c.SparkPost.APIKey, "SPARKPOST_API_KEY")
	setString(&c.SparkPost.BaseURL, "SPARKPOST_BASE_URL")

	setString(&c.Mailgun.APIKey, "MAILGUN_API_KEY")
	setString(&c.Mailgun.Domain, "MAILGUN_DOMAIN")
	setString(&c.Mailgun.APIBase, "MAILGUN_API_BASE")

	setString(&c.SES.Region, "SES_REGION")
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")

	setString(&c.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&c.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")
	setString(&c.Graph.Sender, "GRAPH_SENDER")

	setString(&c.TLS.CertFile, "TLS_CERT_FILE")
	setString(&c.TLS.KeyFile, "TLS_KEY_FILE")
	if v := os.Getenv("TLS_SELF_SIGNED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.TLS.SelfSigned = b
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// setList parses a comma-separated list, dropping empty entries.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
