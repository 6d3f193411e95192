package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDICTIFY_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICTIFY_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Operator ──
	setStr(&cfg.Operator.PrivateKey, "PREDICTIFY_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "PREDICTIFY_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "PREDICTIFY_OPERATOR_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDICTIFY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDICTIFY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDICTIFY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDICTIFY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDICTIFY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDICTIFY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDICTIFY_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDICTIFY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDICTIFY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDICTIFY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDICTIFY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTIFY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTIFY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTIFY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTIFY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTIFY_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PREDICTIFY_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PREDICTIFY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICTIFY_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICTIFY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICTIFY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICTIFY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICTIFY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICTIFY_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "PREDICTIFY_ORACLE_BASE_URL")
	setDuration(&cfg.Oracle.MaxAge, "PREDICTIFY_ORACLE_MAX_AGE")

	// ── Engine ──
	setDuration(&cfg.Engine.ArchiveRetention, "PREDICTIFY_ENGINE_ARCHIVE_RETENTION")
	setDuration(&cfg.Engine.ArchiveInterval, "PREDICTIFY_ENGINE_ARCHIVE_INTERVAL")
	setInt(&cfg.Engine.RateLimit, "PREDICTIFY_ENGINE_RATE_LIMIT")
	setDuration(&cfg.Engine.RateWindow, "PREDICTIFY_ENGINE_RATE_WINDOW")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PREDICTIFY_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PREDICTIFY_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICTIFY_SERVER_CORS_ORIGINS")
	setBool(&cfg.Server.AuthEnabled, "PREDICTIFY_SERVER_AUTH_ENABLED")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDICTIFY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDICTIFY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDICTIFY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDICTIFY_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDICTIFY_MODE")
	setStr(&cfg.LogLevel, "PREDICTIFY_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
