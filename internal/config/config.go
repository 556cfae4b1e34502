package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"

	"github.com/opensandbox/canvas/internal/logging"
)

// Config holds all configuration for the canvas server.
type Config struct {
	Port      int
	APIKey    string
	LogLevel  string
	LogFormat string // "json" or "console"

	// MetricsAddr, when set, serves /metrics on its own listener as well.
	MetricsAddr string

	// PublicURL is the externally reachable base URL; blob and preview URLs
	// are built from it.
	PublicURL string

	// Project store: "postgres", "sqlite" or "memory".
	StoreDriver string
	DatabaseURL string // PostgreSQL connection string
	DataDir     string // Local data directory for the SQLite database

	// Auth
	JWTSecret       string        // Shared secret for preview JWTs
	PreviewTokenTTL time.Duration // Lifetime of preview tokens

	// NATS JetStream for compile events; empty disables publishing.
	NATSURL string

	// Redis snapshot cache; empty disables caching.
	RedisURL string
	CacheTTL time.Duration

	// Snapshot archives: "s3", "azure" or "" (disabled).
	ArchiveBackend    string
	S3Endpoint        string
	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3ForcePathStyle  bool
	AzureAccountURL   string // e.g. "https://<account>.blob.core.windows.net/"
	AzureContainer    string

	// CDN used for bare package imports.
	CDNBaseURL  string
	CDNVersions map[string]string

	// Sessions idle longer than this are saved and evicted.
	IdleTimeout time.Duration
	// Dirty sessions are saved this often; zero disables autosave.
	AutosaveInterval time.Duration

	// Segment write key; empty disables product analytics.
	SegmentWriteKey string

	// AWS Secrets Manager: a JSON object with keys matching env var names.
	// Env vars take precedence over secret values.
	SecretsARN string

	// Azure Key Vault: secret names map to env vars with '-' read as '_'.
	// Env vars take precedence over vault values.
	KeyVaultURL string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file (CANVAS_ENV_FILE, default ".env") is read first if present.
// Then, if CANVAS_SECRETS_ARN or CANVAS_KEYVAULT_URL is set, those secrets are
// applied to the environment without overriding values already set.
func Load() (*Config, error) {
	envFile := envOrDefault("CANVAS_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if arn := os.Getenv("CANVAS_SECRETS_ARN"); arn != "" {
		if err := loadSecretsManager(arn); err != nil {
			return nil, fmt.Errorf("failed to load secrets from %s: %w", arn, err)
		}
	}
	if vault := os.Getenv("CANVAS_KEYVAULT_URL"); vault != "" {
		if err := loadKeyVault(vault); err != nil {
			return nil, fmt.Errorf("failed to load secrets from %s: %w", vault, err)
		}
	}

	cfg := &Config{
		Port:      8080,
		APIKey:    os.Getenv("CANVAS_API_KEY"),
		LogLevel:  envOrDefault("CANVAS_LOG_LEVEL", "info"),
		LogFormat: envOrDefault("CANVAS_LOG_FORMAT", "json"),

		MetricsAddr: os.Getenv("CANVAS_METRICS_ADDR"),

		StoreDriver: envOrDefault("CANVAS_STORE", "memory"),
		DatabaseURL: envOrDefault("CANVAS_DATABASE_URL", os.Getenv("DATABASE_URL")),
		DataDir:     envOrDefault("CANVAS_DATA_DIR", "./data"),

		JWTSecret:       os.Getenv("CANVAS_JWT_SECRET"),
		PreviewTokenTTL: time.Duration(envOrDefaultInt("CANVAS_PREVIEW_TOKEN_TTL_SEC", 3600)) * time.Second,

		NATSURL: os.Getenv("CANVAS_NATS_URL"),

		RedisURL: os.Getenv("CANVAS_REDIS_URL"),
		CacheTTL: time.Duration(envOrDefaultInt("CANVAS_CACHE_TTL_SEC", 1800)) * time.Second,

		ArchiveBackend:    os.Getenv("CANVAS_ARCHIVE_BACKEND"),
		S3Endpoint:        os.Getenv("CANVAS_S3_ENDPOINT"),
		S3Bucket:          os.Getenv("CANVAS_S3_BUCKET"),
		S3Region:          envOrDefault("CANVAS_S3_REGION", "us-east-1"),
		S3AccessKeyID:     os.Getenv("CANVAS_S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("CANVAS_S3_SECRET_ACCESS_KEY"),
		S3ForcePathStyle:  os.Getenv("CANVAS_S3_FORCE_PATH_STYLE") == "true",
		AzureAccountURL:   os.Getenv("CANVAS_AZURE_ACCOUNT_URL"),
		AzureContainer:    envOrDefault("CANVAS_AZURE_CONTAINER", "canvas-archives"),

		CDNBaseURL:  envOrDefault("CANVAS_CDN_BASE_URL", "https://esm.sh/"),
		CDNVersions: parseVersions(envOrDefault("CANVAS_CDN_VERSIONS", "react=19,react-dom=19")),

		IdleTimeout:      time.Duration(envOrDefaultInt("CANVAS_IDLE_TIMEOUT_SEC", 900)) * time.Second,
		AutosaveInterval: time.Duration(envOrDefaultInt("CANVAS_AUTOSAVE_INTERVAL_SEC", 60)) * time.Second,

		SegmentWriteKey: os.Getenv("CANVAS_SEGMENT_WRITE_KEY"),

		SecretsARN:  os.Getenv("CANVAS_SECRETS_ARN"),
		KeyVaultURL: os.Getenv("CANVAS_KEYVAULT_URL"),
	}

	if portStr := os.Getenv("CANVAS_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid CANVAS_PORT %q: %w", portStr, err)
		}
		cfg.Port = port
	}
	cfg.PublicURL = strings.TrimSuffix(envOrDefault("CANVAS_PUBLIC_URL", fmt.Sprintf("http://localhost:%d", cfg.Port)), "/")

	switch cfg.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("CANVAS_STORE=postgres requires CANVAS_DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("invalid CANVAS_STORE %q", cfg.StoreDriver)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// parseVersions reads "react=19,react-dom=19" into a pin map.
func parseVersions(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		name, version, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && name != "" && version != "" {
			out[name] = version
		}
	}
	return out
}

// setMissing sets env vars that are not already set and reports how many
// were applied.
func setMissing(values map[string]string) int {
	applied := 0
	for key, value := range values {
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
			applied++
		}
	}
	return applied
}

// loadSecretsManager fetches a JSON secret from AWS Secrets Manager and sets
// any values as environment variables (only if not already set, so explicit
// env vars always win). Uses the default AWS credential chain.
func loadSecretsManager(arn string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Extract region from ARN: arn:aws:secretsmanager:REGION:ACCOUNT:secret:NAME
	var opts []func(*awsconfig.LoadOptions) error
	if parts := strings.Split(arn, ":"); len(parts) >= 4 && parts[3] != "" {
		opts = append(opts, awsconfig.WithRegion(parts[3]))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg)
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &arn,
	})
	if err != nil {
		return fmt.Errorf("GetSecretValue: %w", err)
	}
	if result.SecretString == nil {
		return fmt.Errorf("secret %s has no string value", arn)
	}

	var secrets map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &secrets); err != nil {
		return fmt.Errorf("parse secret JSON: %w", err)
	}

	applied := setMissing(secrets)
	logging.S().Infof("config: loaded %d secrets from Secrets Manager (%d keys in secret, env overrides take precedence)", applied, len(secrets))
	return nil
}

// loadKeyVault reads every enabled secret in an Azure Key Vault. Vault names
// cannot contain '_', so CANVAS-JWT-SECRET sets CANVAS_JWT_SECRET.
func loadKeyVault(vaultURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return fmt.Errorf("azure credential: %w", err)
	}
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return fmt.Errorf("key vault client: %w", err)
	}

	secrets := make(map[string]string)
	pager := client.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list secrets: %w", err)
		}
		for _, props := range page.Value {
			if props.ID == nil || (props.Attributes != nil && props.Attributes.Enabled != nil && !*props.Attributes.Enabled) {
				continue
			}
			name := props.ID.Name()
			resp, err := client.GetSecret(ctx, name, "", nil)
			if err != nil {
				return fmt.Errorf("get secret %s: %w", name, err)
			}
			if resp.Value != nil {
				secrets[envName(name)] = *resp.Value
			}
		}
	}

	applied := setMissing(secrets)
	logging.S().Infof("config: loaded %d secrets from Key Vault (%d in vault, env overrides take precedence)", applied, len(secrets))
	return nil
}

func envName(secretName string) string {
	return strings.ToUpper(strings.ReplaceAll(secretName, "-", "_"))
}
