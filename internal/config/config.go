package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Shared secret for the schedule-messages endpoint
	ScheduleAuthCode string

	// Outbound email (SendGrid)
	SendGridAPIKey    string
	SenderEmail       string
	SenderDisplayName string
	OperatorEmail     string

	// URL shortening (short.io)
	ShortIOAPIKey string
	ShortIODomain string

	// Links embedded in reminder emails
	SiteBaseURL string

	// Anti-brute-force delay on unresolved identifiers; applies equally to
	// absent and inactive ones.
	NotFoundDelay time.Duration

	// Scheduling window: no earlier than MinLead from now (provider cutoff
	// for scheduled sends), no later than MaxHorizon (provider limit).
	ScheduleMinLead    time.Duration
	ScheduleMaxHorizon time.Duration

	// Optional in-process cron spec for the scheduler; empty disables it
	// and an external trigger drives the endpoint instead.
	ScheduleCron string

	// Wrap retire+insert of a submission in one transaction instead of the
	// compensating-update emulation.
	TransactionalSubmit bool

	// Server
	Port        string
	CORSOrigins string
	Environment string
	SentryDSN   string
}

func Load() *Config {
	// .env values never override real environment variables.
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "experimenter_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		ScheduleAuthCode: getEnv("SCHEDULE_AUTH_CODE", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SenderEmail:       getEnv("SENDER_EMAIL", "experiments@tryexperimenter.com"),
		SenderDisplayName: getEnv("SENDER_DISPLAY_NAME", "Experimenter"),
		OperatorEmail:     getEnv("OPERATOR_EMAIL", "tristan@tryexperimenter.com"),

		ShortIOAPIKey: getEnv("SHORT_IO_API_KEY", ""),
		ShortIODomain: getEnv("SHORT_IO_DOMAIN", "link.tryexperimenter.com"),

		SiteBaseURL: getEnv("SITE_BASE_URL", "https://tryexperimenter.com"),

		NotFoundDelay:      parseDuration(getEnv("NOT_FOUND_DELAY", "3s"), 3*time.Second),
		ScheduleMinLead:    parseDuration(getEnv("SCHEDULE_MIN_LEAD", "30m"), 30*time.Minute),
		ScheduleMaxHorizon: parseDuration(getEnv("SCHEDULE_MAX_HORIZON", "72h"), 72*time.Hour),
		ScheduleCron:       getEnv("SCHEDULE_CRON", ""),

		TransactionalSubmit: parseBool(getEnv("TRANSACTIONAL_SUBMIT", "true")),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		Environment: getEnv("APP_ENV", "development"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}
