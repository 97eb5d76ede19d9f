package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/ratelimit"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	AuthServiceURL string        `env:"AUTH_SERVICE_URL,required=true"`
	AuthLogin      string        `env:"AUTH_LOGIN,required=true"`
	AuthPassword   string        `env:"AUTH_PASSWORD,required=true"`
	TokenTTL       time.Duration `env:"TOKEN_TTL,default=29m"`

	BrokerMaxConnections int           `env:"BROKER_MAX_CONNECTIONS,default=10"`
	BatchSize            int           `env:"BATCH_SIZE,default=1000"`
	PollTimeout          time.Duration `env:"POLL_TIMEOUT,default=1s"`
	FormerInterval       time.Duration `env:"FORMER_INTERVAL,default=2s"`
	SenderInterval       time.Duration `env:"SENDER_INTERVAL,default=5s"`

	SMTPEnabled  bool   `env:"SMTP_ENABLED,default=false"`
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=465"`
	SMTPLogin    string `env:"SMTP_LOGIN"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPSecurity string `env:"SMTP_SECURITY,default=tls"`

	SendRateLimitPerSec  int `env:"SEND_RATE_LIMIT_PER_SEC,default=100"`
	EmailRateLimitPerSec int `env:"EMAIL_RATE_LIMIT_PER_SEC"`
	SMSRateLimitPerSec   int `env:"SMS_RATE_LIMIT_PER_SEC"`
	PushRateLimitPerSec  int `env:"PUSH_RATE_LIMIT_PER_SEC"`

	APIPort        int    `env:"API_PORT,default=8080"`
	MetricsPort    int    `env:"METRICS_PORT,default=9090"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`
	GenerateEvents bool   `env:"GENERATE_EVENTS,default=false"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.BrokerMaxConnections < 1 || c.BrokerMaxConnections > 10 {
		return fmt.Errorf("BROKER_MAX_CONNECTIONS must be between 1 and 10, got %d", c.BrokerMaxConnections)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.PollTimeout <= 0 || c.FormerInterval <= 0 || c.SenderInterval <= 0 {
		return fmt.Errorf("POLL_TIMEOUT, FORMER_INTERVAL and SENDER_INTERVAL must be positive")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}

	if c.SendRateLimitPerSec <= 0 {
		return fmt.Errorf("SEND_RATE_LIMIT_PER_SEC must be positive, got %d", c.SendRateLimitPerSec)
	}
	if c.EmailRateLimitPerSec < 0 || c.SMSRateLimitPerSec < 0 || c.PushRateLimitPerSec < 0 {
		return fmt.Errorf("per-channel rate limits must not be negative")
	}

	c.SMTPSecurity = strings.ToLower(strings.TrimSpace(c.SMTPSecurity))
	switch c.SMTPSecurity {
	case "tls", "starttls", "none":
	default:
		return fmt.Errorf("SMTP_SECURITY must be one of tls, starttls, none, got %q", c.SMTPSecurity)
	}
	if c.SMTPEnabled && (c.SMTPHost == "" || c.SMTPFrom == "") {
		return fmt.Errorf("SMTP_HOST and SMTP_FROM are required when SMTP_ENABLED is set")
	}
	return nil
}

// SendLimits maps the rate limit settings onto per-channel caps. An unset
// channel limit falls back to SEND_RATE_LIMIT_PER_SEC.
func (c *Config) SendLimits() ratelimit.Limits {
	return ratelimit.Limits{
		Default: c.SendRateLimitPerSec,
		PerChannel: map[domain.Channel]int{
			domain.ChannelEmail: c.EmailRateLimitPerSec,
			domain.ChannelSMS:   c.SMSRateLimitPerSec,
			domain.ChannelPush:  c.PushRateLimitPerSec,
		},
	}
}
