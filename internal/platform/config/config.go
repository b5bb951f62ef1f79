package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/moneywise/bank_sync/internal/utils"
	"github.com/spf13/viper"
)

// Config holds application configuration. Everything the engine needs at
// runtime is supplied here at process start, never hardcoded.
type Config struct {
	DatabaseURL   string
	Port          string
	IsProduction  bool
	EnableDBCheck bool

	// Control API auth
	JWTSecret         string
	JWTExpiryDuration time.Duration
	JWTIssuer         string

	// Reference provider integration
	FinbridgeBaseURL       string
	FinbridgeClientID      string
	FinbridgeClientSecret  string
	FinbridgeWebhookSecret string

	// Token vault key material: version -> 32-byte key, hex encoded.
	VaultKeys          map[int]string
	VaultActiveVersion int

	// Per-tier sync budgets (syncs per day). Zero or negative means unlimited.
	FreeTierDailySyncs    int64
	PremiumTierDailySyncs int64

	// Sync engine tuning
	InitialLookbackMonths int
	SyncWorkerCount       int
	SyncQueueSize         int
	SyncDeadline          time.Duration
	SyncRetryMax          int
	SyncRetryBaseDelay    time.Duration
	SchedulerInterval     time.Duration

	// Webhook ingress IP rate limit, ulule/limiter formatted (e.g. "120-M").
	WebhookRateLimit string
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("ENABLE_DB_CHECK", false)
	viper.SetDefault("JWT_SECRET", "a-very-secret-key-should-be-longer-and-random")
	viper.SetDefault("JWT_EXPIRY_DURATION", "1h")
	viper.SetDefault("JWT_ISSUER", "bank-sync-engine")
	viper.SetDefault("FINBRIDGE_BASE_URL", "https://sandbox.finbridge.example.com")
	viper.SetDefault("FINBRIDGE_CLIENT_ID", "")
	viper.SetDefault("FINBRIDGE_CLIENT_SECRET", "")
	viper.SetDefault("FINBRIDGE_WEBHOOK_SECRET", "")
	viper.SetDefault("VAULT_KEYS", "")
	viper.SetDefault("VAULT_ACTIVE_KEY_VERSION", 1)
	viper.SetDefault("FREE_TIER_DAILY_SYNCS", 4)
	viper.SetDefault("PREMIUM_TIER_DAILY_SYNCS", 48)
	viper.SetDefault("INITIAL_LOOKBACK_MONTHS", 24)
	viper.SetDefault("SYNC_WORKER_COUNT", 4)
	viper.SetDefault("SYNC_QUEUE_SIZE", 256)
	viper.SetDefault("SYNC_DEADLINE", "10m")
	viper.SetDefault("SYNC_RETRY_MAX", 3)
	viper.SetDefault("SYNC_RETRY_BASE_DELAY", "2s")
	viper.SetDefault("SCHEDULER_INTERVAL", "24h")
	viper.SetDefault("WEBHOOK_RATE_LIMIT", "120-M")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")
	cfg.EnableDBCheck = viper.GetBool("ENABLE_DB_CHECK")

	cfg.JWTSecret = viper.GetString("JWT_SECRET")
	if cfg.JWTSecret == "a-very-secret-key-should-be-longer-and-random" {
		generated, rndErr := utils.GenerateSecureRandomString(32)
		if rndErr != nil {
			return nil, fmt.Errorf("failed to generate ephemeral JWT secret: %w", rndErr)
		}
		cfg.JWTSecret = generated
		log.Println("Warning: JWT_SECRET not set. Generated an ephemeral secret; issued tokens will not survive a restart.")
	}

	jwtExpiryStr := viper.GetString("JWT_EXPIRY_DURATION")
	jwtExpiry, err := time.ParseDuration(jwtExpiryStr)
	if err != nil {
		jwtExpiry = time.Hour
		log.Printf("Warning: Invalid value for JWT_EXPIRY_DURATION ('%s'). Defaulting to %s.\n", jwtExpiryStr, jwtExpiry)
	}
	cfg.JWTExpiryDuration = jwtExpiry
	cfg.JWTIssuer = viper.GetString("JWT_ISSUER")

	cfg.FinbridgeBaseURL = viper.GetString("FINBRIDGE_BASE_URL")
	cfg.FinbridgeClientID = viper.GetString("FINBRIDGE_CLIENT_ID")
	cfg.FinbridgeClientSecret = viper.GetString("FINBRIDGE_CLIENT_SECRET")
	cfg.FinbridgeWebhookSecret = viper.GetString("FINBRIDGE_WEBHOOK_SECRET")
	if cfg.FinbridgeClientID == "" || cfg.FinbridgeClientSecret == "" {
		log.Println("Warning: FINBRIDGE_CLIENT_ID/FINBRIDGE_CLIENT_SECRET not set. Finbridge provider will not function.")
	}
	if cfg.FinbridgeWebhookSecret == "" {
		log.Println("Warning: FINBRIDGE_WEBHOOK_SECRET not set. Finbridge webhooks will be rejected.")
	}

	keys, err := parseVaultKeys(viper.GetString("VAULT_KEYS"))
	if err != nil {
		return nil, fmt.Errorf("invalid VAULT_KEYS: %w", err)
	}
	cfg.VaultKeys = keys
	cfg.VaultActiveVersion = viper.GetInt("VAULT_ACTIVE_KEY_VERSION")
	if len(cfg.VaultKeys) == 0 {
		log.Println("Warning: VAULT_KEYS not set. Credential vault will not function.")
	} else if _, ok := cfg.VaultKeys[cfg.VaultActiveVersion]; !ok {
		return nil, fmt.Errorf("VAULT_ACTIVE_KEY_VERSION %d has no key material", cfg.VaultActiveVersion)
	}

	cfg.FreeTierDailySyncs = viper.GetInt64("FREE_TIER_DAILY_SYNCS")
	cfg.PremiumTierDailySyncs = viper.GetInt64("PREMIUM_TIER_DAILY_SYNCS")

	cfg.InitialLookbackMonths = viper.GetInt("INITIAL_LOOKBACK_MONTHS")
	cfg.SyncWorkerCount = viper.GetInt("SYNC_WORKER_COUNT")
	cfg.SyncQueueSize = viper.GetInt("SYNC_QUEUE_SIZE")
	cfg.SyncRetryMax = viper.GetInt("SYNC_RETRY_MAX")
	cfg.SyncDeadline = viper.GetDuration("SYNC_DEADLINE")
	cfg.SyncRetryBaseDelay = viper.GetDuration("SYNC_RETRY_BASE_DELAY")
	cfg.SchedulerInterval = viper.GetDuration("SCHEDULER_INTERVAL")
	cfg.WebhookRateLimit = viper.GetString("WEBHOOK_RATE_LIMIT")

	return cfg, nil
}

// parseVaultKeys parses "1:<hex>,2:<hex>" into a version->hex map.
func parseVaultKeys(raw string) (map[int]string, error) {
	keys := make(map[int]string)
	if strings.TrimSpace(raw) == "" {
		return keys, nil
	}
	for _, part := range strings.Split(raw, ",") {
		version, material, found := strings.Cut(strings.TrimSpace(part), ":")
		if !found {
			return nil, fmt.Errorf("entry %q is not version:hexkey", part)
		}
		v, err := strconv.Atoi(version)
		if err != nil {
			return nil, fmt.Errorf("entry %q has non-numeric version", part)
		}
		keys[v] = material
	}
	return keys, nil
}
