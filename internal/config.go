package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"http_server" envPrefix:"HTTP_"`
	Database     DatabaseConfig     `mapstructure:"database" envPrefix:"DATABASE_"`
	Security     SecurityConfig     `mapstructure:"security" envPrefix:"SECURITY_"`
	Logging      LoggingConfig      `mapstructure:"logging" envPrefix:"LOG_"`
	Payment      PaymentConfig      `mapstructure:"payment" envPrefix:"PAYMENT_"`
	Storage      StorageConfig      `mapstructure:"storage" envPrefix:"STORAGE_"`
	Notification NotificationConfig `mapstructure:"notification" envPrefix:"NOTIFICATION_"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" env:"PORT" envDefault:"8080" validate:"min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url" env:"BASE_URL" validate:"omitempty,url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins" env:"ALLOWED_ORIGINS"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" env:"READ_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" env:"IDLE_TIMEOUT" envDefault:"60s"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"15s"`
}

type DatabaseConfig struct {
	Source          string        `mapstructure:"source" env:"SOURCE" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" env:"MAX_OPEN_CONNS" envDefault:"25" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" env:"MAX_IDLE_CONNS" envDefault:"5" validate:"min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME" envDefault:"5m"`
}

type SecurityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" env:"JWT_SECRET" validate:"required,min=32"`
	JWTIssuer string `mapstructure:"jwt_issuer" env:"JWT_ISSUER"`
	AdminRole string `mapstructure:"admin_role" env:"ADMIN_ROLE" envDefault:"admin"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" env:"LEVEL" envDefault:"info" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" env:"FORMAT" envDefault:"json" validate:"omitempty,oneof=json text"`
}

type PaymentConfig struct {
	Currency         string        `mapstructure:"currency" env:"CURRENCY" envDefault:"usd" validate:"omitempty,len=3"`
	PendingTTL       time.Duration `mapstructure:"pending_ttl" env:"PENDING_TTL" envDefault:"30m"`
	ExpiredRetention time.Duration `mapstructure:"expired_retention" env:"EXPIRED_RETENTION" envDefault:"720h"`
	SweepSchedule    string        `mapstructure:"sweep_schedule" env:"SWEEP_SCHEDULE" envDefault:"@every 5m"`
	Stripe           StripeConfig  `mapstructure:"stripe" envPrefix:"STRIPE_"`
	Khalti           KhaltiConfig  `mapstructure:"khalti" envPrefix:"KHALTI_"`
}

type StripeConfig struct {
	SecretKey        string        `mapstructure:"secret_key" env:"SECRET_KEY"`
	WebhookSecret    string        `mapstructure:"webhook_secret" env:"WEBHOOK_SECRET"`
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance" env:"WEBHOOK_TOLERANCE" envDefault:"5m"`
}

type KhaltiConfig struct {
	BaseURL    string        `mapstructure:"base_url" env:"BASE_URL" envDefault:"https://a.khalti.com/api/v2" validate:"omitempty,url"`
	SecretKey  string        `mapstructure:"secret_key" env:"SECRET_KEY"`
	ReturnURL  string        `mapstructure:"return_url" env:"RETURN_URL" validate:"omitempty,url"`
	WebsiteURL string        `mapstructure:"website_url" env:"WEBSITE_URL" validate:"omitempty,url"`
	Timeout    time.Duration `mapstructure:"timeout" env:"TIMEOUT" envDefault:"15s"`
	NPRRate    float64       `mapstructure:"npr_rate" env:"NPR_RATE" envDefault:"133" validate:"gte=0"`
}

type StorageConfig struct {
	Bucket        string        `mapstructure:"bucket" env:"BUCKET"`
	Region        string        `mapstructure:"region" env:"REGION"`
	Endpoint      string        `mapstructure:"endpoint" env:"ENDPOINT" validate:"omitempty,url"`
	ProofPrefix   string        `mapstructure:"proof_prefix" env:"PROOF_PREFIX" envDefault:"payment-proofs"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry" env:"PRESIGN_EXPIRY" envDefault:"15m"`
}

type NotificationConfig struct {
	Enabled  bool   `mapstructure:"enabled" env:"ENABLED"`
	SMTPHost string `mapstructure:"smtp_host" env:"SMTP_HOST"`
	SMTPPort int    `mapstructure:"smtp_port" env:"SMTP_PORT" envDefault:"587"`
	Username string `mapstructure:"username" env:"USERNAME"`
	Password string `mapstructure:"password" env:"PASSWORD"`
	From     string `mapstructure:"from" env:"FROM" validate:"omitempty,email"`
}

// LoadConfigFromEnv builds the config from process environment, reading a
// local .env first when one exists.
func LoadConfigFromEnv() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *PaymentConfig) Validate() error {
	if c.PendingTTL <= 0 {
		return errors.New("pending_ttl must be positive")
	}
	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		return errors.New("stripe webhook_secret is required when stripe is enabled")
	}
	if c.Khalti.SecretKey != "" && c.Khalti.ReturnURL == "" {
		return errors.New("khalti return_url is required when khalti is enabled")
	}
	return nil
}

// StripeEnabled reports whether card checkout is configured.
func (c *PaymentConfig) StripeEnabled() bool {
	return c.Stripe.SecretKey != ""
}

func (c *PaymentConfig) KhaltiEnabled() bool {
	return c.Khalti.SecretKey != ""
}
