package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration required by the API process.
// All values must come from env (or a .env file loaded by main).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Plivo    PlivoConfig
	OpenAI   OpenAIConfig
	Realtime RealtimeConfig
	Rates    RatesConfig
	Calls    CallsConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable origin used in carrier callbacks.
	PublicBaseURL string
}

// DBConfig is optional. With no DB_HOST the process keeps state in memory.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

func (c DBConfig) Enabled() bool { return c.Host != "" }

// RedisConfig is optional. Without it session locks and parked finalizations stay in process.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool { return c.Host != "" }

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// API keys exchanged for tokens, one per role. Empty disables the role.
	AdminAPIKey    string
	OperatorAPIKey string
	ViewerAPIKey   string
}

type PlivoConfig struct {
	AuthID     string
	AuthToken  string
	FromNumber string
	BaseURL    string
}

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	SummaryModel string
}

type RealtimeConfig struct {
	URL                string
	Model              string
	Voice              string
	TranscriptionModel string
}

// RatesConfig overrides individual list prices. Unset fields keep the defaults.
type RatesConfig struct {
	STTPerMinute        decimal.NullDecimal
	LLMInputPerMillion  decimal.NullDecimal
	LLMOutputPerMillion decimal.NullDecimal
	TTSPerThousandChars decimal.NullDecimal
	TelephonyPerMinute  decimal.NullDecimal
}

type CallsConfig struct {
	HospitalName    string
	DefaultQuestion string

	// SummaryFailurePolicy is fallback or flag.
	SummaryFailurePolicy string
	SummaryTimeout       time.Duration
	FinalizeTimeout      time.Duration
	SessionLockTTL       time.Duration
}

func Load() (Config, error) {
	c := Config{}
	env := &envParser{}

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = env.intVar("APP_PORT", 8000)
	c.App.PublicBaseURL = strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = env.intVar("DB_PORT", 5432)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = env.intVar("REDIS_PORT", 6379)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB = env.intVar("REDIS_DB", 0)

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = env.durationVar("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = env.durationVar("JWT_REFRESH_TTL")
	c.Auth.AdminAPIKey = os.Getenv("ADMIN_API_KEY")
	c.Auth.OperatorAPIKey = os.Getenv("OPERATOR_API_KEY")
	c.Auth.ViewerAPIKey = os.Getenv("VIEWER_API_KEY")

	c.Plivo.AuthID = strings.TrimSpace(os.Getenv("PLIVO_AUTH_ID"))
	c.Plivo.AuthToken = os.Getenv("PLIVO_AUTH_TOKEN")
	c.Plivo.FromNumber = strings.TrimSpace(os.Getenv("PLIVO_FROM_NUMBER"))
	c.Plivo.BaseURL = strings.TrimSpace(os.Getenv("PLIVO_BASE_URL"))

	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	c.OpenAI.SummaryModel = strings.TrimSpace(os.Getenv("OPENAI_SUMMARY_MODEL"))

	c.Realtime.URL = strings.TrimSpace(os.Getenv("REALTIME_URL"))
	c.Realtime.Model = strings.TrimSpace(os.Getenv("REALTIME_MODEL"))
	c.Realtime.Voice = strings.TrimSpace(os.Getenv("REALTIME_VOICE"))
	c.Realtime.TranscriptionModel = strings.TrimSpace(os.Getenv("REALTIME_TRANSCRIPTION_MODEL"))

	c.Rates.STTPerMinute = env.decimalVar("RATE_STT_PER_MINUTE")
	c.Rates.LLMInputPerMillion = env.decimalVar("RATE_LLM_INPUT_PER_MILLION")
	c.Rates.LLMOutputPerMillion = env.decimalVar("RATE_LLM_OUTPUT_PER_MILLION")
	c.Rates.TTSPerThousandChars = env.decimalVar("RATE_TTS_PER_THOUSAND_CHARS")
	c.Rates.TelephonyPerMinute = env.decimalVar("RATE_TELEPHONY_PER_MINUTE")

	c.Calls.HospitalName = strings.TrimSpace(os.Getenv("HOSPITAL_NAME"))
	c.Calls.DefaultQuestion = strings.TrimSpace(os.Getenv("DEFAULT_QUESTION"))
	c.Calls.SummaryFailurePolicy = strings.TrimSpace(os.Getenv("SUMMARY_FAILURE_POLICY"))
	c.Calls.SummaryTimeout = env.durationVar("SUMMARY_TIMEOUT")
	c.Calls.FinalizeTimeout = env.durationVar("FINALIZE_TIMEOUT")
	c.Calls.SessionLockTTL = env.durationVar("SESSION_LOCK_TTL")

	if err := joinErrors(env.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	} else if u, err := url.Parse(c.App.PublicBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute http(s) URL, got %q", c.App.PublicBaseURL))
	} else if c.IsProduction() && u.Scheme != "https" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL must use https in production"))
	}

	if c.DB.Enabled() {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	} else if c.IsProduction() {
		errs = append(errs, errors.New("DB_HOST is required in production"))
	}

	if c.Redis.Enabled() {
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
		if c.Redis.DB < 0 {
			errs = append(errs, fmt.Errorf("REDIS_DB must not be negative, got %d", c.Redis.DB))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}
	if c.Auth.AdminAPIKey == "" && c.Auth.OperatorAPIKey == "" && c.Auth.ViewerAPIKey == "" {
		errs = append(errs, errors.New("at least one of ADMIN_API_KEY, OPERATOR_API_KEY, VIEWER_API_KEY is required"))
	}

	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}

	for name, v := range map[string]decimal.NullDecimal{
		"RATE_STT_PER_MINUTE":         c.Rates.STTPerMinute,
		"RATE_LLM_INPUT_PER_MILLION":  c.Rates.LLMInputPerMillion,
		"RATE_LLM_OUTPUT_PER_MILLION": c.Rates.LLMOutputPerMillion,
		"RATE_TTS_PER_THOUSAND_CHARS": c.Rates.TTSPerThousandChars,
		"RATE_TELEPHONY_PER_MINUTE":   c.Rates.TelephonyPerMinute,
	} {
		if v.Valid && v.Decimal.IsNegative() {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}

	if c.Calls.HospitalName == "" {
		c.Calls.HospitalName = "the hospital"
	}
	if c.Calls.SummaryFailurePolicy == "" {
		c.Calls.SummaryFailurePolicy = "fallback"
	}
	if c.Calls.SummaryFailurePolicy != "fallback" && c.Calls.SummaryFailurePolicy != "flag" {
		errs = append(errs, fmt.Errorf("SUMMARY_FAILURE_POLICY must be fallback or flag, got %q", c.Calls.SummaryFailurePolicy))
	}
	if c.Calls.FinalizeTimeout <= 0 {
		c.Calls.FinalizeTimeout = 30 * time.Second
	}
	if c.Calls.SummaryTimeout <= 0 {
		c.Calls.SummaryTimeout = 20 * time.Second
	}
	if c.Calls.SessionLockTTL <= 0 {
		c.Calls.SessionLockTTL = 2 * time.Hour
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func optionalInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s, got %q", key, v)
	}
	return d, nil
}

func optionalDecimal(key string) (decimal.NullDecimal, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%s must be a decimal number, got %q", key, v)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

// envParser collects parse failures so Load can report them together.
type envParser struct {
	errs []error
}

func (p *envParser) intVar(key string, def int) int {
	n, err := optionalInt(key, def)
	if err != nil {
		p.errs = append(p.errs, err)
	}
	return n
}

func (p *envParser) durationVar(key string) time.Duration {
	d, err := optionalDuration(key)
	if err != nil {
		p.errs = append(p.errs, err)
	}
	return d
}

func (p *envParser) decimalVar(key string) decimal.NullDecimal {
	d, err := optionalDecimal(key)
	if err != nil {
		p.errs = append(p.errs, err)
	}
	return d
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
