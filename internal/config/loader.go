package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PARIMUTUEL_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known PARIMUTUEL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "PARIMUTUEL_DATABASE_DSN")
	setStr(&cfg.Database.Host, "PARIMUTUEL_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PARIMUTUEL_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PARIMUTUEL_DATABASE_NAME")
	setStr(&cfg.Database.User, "PARIMUTUEL_DATABASE_USER")
	setStr(&cfg.Database.Password, "PARIMUTUEL_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PARIMUTUEL_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "PARIMUTUEL_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PARIMUTUEL_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PARIMUTUEL_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PARIMUTUEL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PARIMUTUEL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PARIMUTUEL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PARIMUTUEL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PARIMUTUEL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PARIMUTUEL_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PARIMUTUEL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PARIMUTUEL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PARIMUTUEL_S3_REGION")
	setStr(&cfg.S3.Bucket, "PARIMUTUEL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PARIMUTUEL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PARIMUTUEL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PARIMUTUEL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PARIMUTUEL_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "PARIMUTUEL_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.ApiKey, "PARIMUTUEL_ORACLE_API_KEY")

	// ── Server ──
	setInt(&cfg.Server.Port, "PARIMUTUEL_SERVER_PORT")
	setStr(&cfg.Server.ApiKey, "PARIMUTUEL_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "PARIMUTUEL_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "PARIMUTUEL_LOG_LEVEL")
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
