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
// built-in defaults, applies MGLASS_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known MGLASS_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "MGLASS_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.SafeAddress, "MGLASS_WALLET_SAFE_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "MGLASS_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "MGLASS_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "MGLASS_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "MGLASS_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "MGLASS_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "MGLASS_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "MGLASS_POLYMARKET_SIGNATURE_TYPE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MGLASS_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MGLASS_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MGLASS_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MGLASS_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MGLASS_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MGLASS_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MGLASS_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MGLASS_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MGLASS_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MGLASS_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MGLASS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MGLASS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MGLASS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MGLASS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MGLASS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MGLASS_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MGLASS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MGLASS_S3_REGION")
	setStr(&cfg.S3.Bucket, "MGLASS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MGLASS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MGLASS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MGLASS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MGLASS_S3_FORCE_PATH_STYLE")

	// ── Book ──
	setDuration(&cfg.Book.PollInterval, "MGLASS_BOOK_POLL_INTERVAL")
	setDuration(&cfg.Book.MaxStale, "MGLASS_BOOK_MAX_STALE")
	setInt(&cfg.Book.DepthLimit, "MGLASS_BOOK_DEPTH_LIMIT")
	setInt(&cfg.Book.SpreadAlertCents, "MGLASS_BOOK_SPREAD_ALERT_CENTS")
	setDuration(&cfg.Book.SnapshotTTL, "MGLASS_BOOK_SNAPSHOT_TTL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "MGLASS_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "MGLASS_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "MGLASS_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MGLASS_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MGLASS_SERVER_PORT")
	setStr(&cfg.Server.APIToken, "MGLASS_SERVER_API_TOKEN")
	setStringSlice(&cfg.Server.CORSOrigins, "MGLASS_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "MGLASS_SERVER_RATE_LIMIT_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MGLASS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MGLASS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MGLASS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MGLASS_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MGLASS_MODE")
	setStr(&cfg.LogLevel, "MGLASS_LOG_LEVEL")
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
