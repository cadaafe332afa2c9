package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBDriver   string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Redis (optional, empty host disables it)
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// JWT
	JWTSecret         string
	JWTSecretExplicit bool
	JWTExpireHours    int

	// API
	APIPort        int
	LogLevel       string
	LogDevelopment bool
	// AdminUsername/AdminPassword seed the first admin account.
	AdminUsername string
	AdminPassword string
	// SecretsKey (hex, 32 bytes) encrypts the stored router password.
	SecretsKey string

	// Reconciliation
	QuotaCheckInterval   time.Duration
	UsageAccounting      bool
	RenewalPeriodDays    int
	RenewPollAttempts    int
	RenewPollDelay       time.Duration
	RouterTimeout        time.Duration
	RouterStatusCacheTTL time.Duration

	// Warnings collected while loading, logged once the logger exists.
	Warnings []string
}

// generateSecureSecret generates a cryptographically secure random secret
func generateSecureSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return hex.EncodeToString([]byte(os.Getenv("HOSTNAME") + strconv.Itoa(length)))
	}
	return hex.EncodeToString(bytes)
}

// Load reads the environment, after applying a .env file from the working
// directory if one exists. Real environment variables win over .env entries.
func Load() *Config {
	_ = godotenv.Load()

	var warnings []string

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateSecureSecret(32)
		warnings = append(warnings, "JWT_SECRET not set - generated random secret. Sessions will not persist across restarts.")
	}

	driver := getEnv("DB_DRIVER", "postgres")
	dbPassword := getEnv("DB_PASSWORD", "")
	if dbPassword == "" && driver != "memory" {
		warnings = append(warnings, "DB_PASSWORD not set - this is insecure for production!")
	}

	adminPassword := getEnv("ADMIN_PASSWORD", "")
	if adminPassword == "" {
		adminPassword = "admin123"
		warnings = append(warnings, "ADMIN_PASSWORD not set - the seeded admin uses the default password, change it after first login!")
	}

	secretsKey := getEnv("SECRETS_KEY", "")
	if secretsKey == "" {
		warnings = append(warnings, "SECRETS_KEY not set - the router password is stored unencrypted.")
	}

	quotaInterval, ok := getEnvPositiveDuration("QUOTA_CHECK_INTERVAL", 5*time.Minute)
	if !ok {
		warnings = append(warnings, "QUOTA_CHECK_INTERVAL must be positive - using 5m.")
	}
	statusTTL, ok := getEnvPositiveDuration("ROUTER_STATUS_CACHE_TTL", 15*time.Second)
	if !ok {
		warnings = append(warnings, "ROUTER_STATUS_CACHE_TTL must be positive - using 15s.")
	}

	redisHost := getEnv("REDIS_HOST", "")
	redisPassword := getEnv("REDIS_PASSWORD", "")
	if redisHost != "" && redisPassword == "" {
		warnings = append(warnings, "REDIS_PASSWORD not set - Redis is not secured!")
	}

	return &Config{
		DBDriver:   driver,
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "ispanel"),
		DBPassword: dbPassword,
		DBName:     getEnv("DB_NAME", "ispanel"),

		RedisHost:     redisHost,
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: redisPassword,

		JWTSecret:         jwtSecret,
		JWTSecretExplicit: os.Getenv("JWT_SECRET") != "",
		JWTExpireHours:    getEnvInt("JWT_EXPIRE_HOURS", 24),

		APIPort:        getEnvInt("API_PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogDevelopment: getEnvBool("LOG_DEVELOPMENT", false),
		AdminUsername:  getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:  adminPassword,
		SecretsKey:     secretsKey,

		QuotaCheckInterval:   quotaInterval,
		UsageAccounting:      getEnvBool("USAGE_ACCOUNTING", true),
		RenewalPeriodDays:    getEnvInt("RENEWAL_PERIOD_DAYS", 30),
		RenewPollAttempts:    getEnvInt("RENEW_POLL_ATTEMPTS", 6),
		RenewPollDelay:       getEnvDuration("RENEW_POLL_DELAY", 500*time.Millisecond),
		RouterTimeout:        getEnvDuration("ROUTER_TIMEOUT", 10*time.Second),
		RouterStatusCacheTTL: statusTTL,

		Warnings: warnings,
	}
}

// RenewalPeriod is the expiry extension applied on renew.
func (c *Config) RenewalPeriod() time.Duration {
	return time.Duration(c.RenewalPeriodDays) * 24 * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") or bare seconds ("30").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvPositiveDuration is getEnvDuration for intervals that must be above
// zero. ok is false when a non-positive value was replaced by the default.
func getEnvPositiveDuration(key string, defaultValue time.Duration) (time.Duration, bool) {
	d := getEnvDuration(key, defaultValue)
	if d <= 0 {
		return defaultValue, false
	}
	return d, true
}
