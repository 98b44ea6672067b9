package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, overridable with CONFIG_PATH.
var ConfigPath = envOr("CONFIG_PATH", "config.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	StoreBackend string `yaml:"storeBackend"`
	DatabaseURL  string `yaml:"databaseURL"`

	StorageBackend string `yaml:"storageBackend"`
	DataDir        string `yaml:"dataDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	RedisAddr             string `yaml:"redisAddr"`
	RedisPassword         string `yaml:"redisPassword"`
	DispatchMode          string `yaml:"dispatchMode"`
	QueueName             string `yaml:"queueName"`
	QueueGroup            string `yaml:"queueGroup"`
	QueueConcurrency      int    `yaml:"queueConcurrency"`
	QueueMaxRetries       int    `yaml:"queueMaxRetries"`
	QueueClaimIdleSeconds int    `yaml:"queueClaimIdleSeconds"`

	GenerationProvider       string `yaml:"generationProvider"`
	GenerationModel          string `yaml:"generationModel"`
	GenerationMaxTokens      int    `yaml:"generationMaxTokens"`
	GenerationTimeoutSeconds int    `yaml:"generationTimeoutSeconds"`
	AnthropicAPIKey          string `yaml:"anthropicApiKey"`
	AnthropicBaseURL         string `yaml:"anthropicBaseURL"`
	OpenAICompatBaseURL      string `yaml:"openaiCompatBaseURL"`
	OpenAICompatAPIKey       string `yaml:"openaiCompatApiKey"`
	GeminiAPIKey             string `yaml:"geminiApiKey"`
	OllamaBaseURL            string `yaml:"ollamaBaseURL"`

	MaxPromptRows         int      `yaml:"maxPromptRows"`
	MaxOverviewHTMLChars  int      `yaml:"maxOverviewHTMLChars"`
	OverviewMaxKPIs       int      `yaml:"overviewMaxKPIs"`
	OverviewMaxHighlights int      `yaml:"overviewMaxHighlights"`
	OverviewSections      []string `yaml:"overviewSections"`
	ReportLanguage        string   `yaml:"reportLanguage"`

	JWTPrivateKeyPath      string `yaml:"jwtPrivateKeyPath"`
	JWTPublicKeyPath       string `yaml:"jwtPublicKeyPath"`
	JWTVerifyPublicKeys    string `yaml:"jwtVerifyPublicKeys"`
	JWTKeyID               string `yaml:"jwtKeyId"`
	JWTIssuer              string `yaml:"jwtIssuer"`
	JWTAudience            string `yaml:"jwtAudience"`
	JWTLeeway              string `yaml:"jwtLeeway"`
	SessionTTLSeconds      int    `yaml:"sessionTTLSeconds"`
	BootstrapAdminEmail    string `yaml:"bootstrapAdminEmail"`
	BootstrapAdminPassword string `yaml:"bootstrapAdminPassword"`

	GenerateRateLimitPerMinute int `yaml:"generateRateLimitPerMinute"`
	LoginRateLimitPerMinute    int `yaml:"loginRateLimitPerMinute"`

	MaxUploadBytes    int64    `yaml:"maxUploadBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`
	CORSOrigins       []string `yaml:"corsOrigins"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.StoreBackend, "REPORT_STORE_BACKEND")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.StorageBackend, "REPORT_STORAGE_BACKEND")
	setString(&cfg.DataDir, "REPORT_DATA_DIR")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	setBool(&cfg.MinioUseSSL, "MINIO_USE_SSL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.DispatchMode, "REPORT_DISPATCH_MODE")
	setString(&cfg.QueueName, "REPORT_QUEUE_NAME")
	setString(&cfg.QueueGroup, "REPORT_QUEUE_GROUP")
	setInt(&cfg.QueueConcurrency, "REPORT_QUEUE_CONCURRENCY")
	setInt(&cfg.QueueMaxRetries, "REPORT_QUEUE_MAX_RETRIES")
	setInt(&cfg.QueueClaimIdleSeconds, "REPORT_QUEUE_CLAIM_IDLE_SECONDS")
	setString(&cfg.GenerationProvider, "GENERATION_PROVIDER")
	setString(&cfg.GenerationModel, "GENERATION_MODEL")
	setInt(&cfg.GenerationMaxTokens, "GENERATION_MAX_TOKENS")
	setInt(&cfg.GenerationTimeoutSeconds, "GENERATION_TIMEOUT_SECONDS")
	setString(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.AnthropicBaseURL, "ANTHROPIC_BASE_URL")
	setString(&cfg.OpenAICompatBaseURL, "OPENAI_COMPAT_BASE_URL")
	setString(&cfg.OpenAICompatAPIKey, "OPENAI_COMPAT_API_KEY")
	setString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.OllamaBaseURL, "OLLAMA_BASE_URL")
	setInt(&cfg.MaxPromptRows, "REPORT_MAX_PROMPT_ROWS")
	setInt(&cfg.MaxOverviewHTMLChars, "REPORT_MAX_OVERVIEW_HTML_CHARS")
	setString(&cfg.JWTPrivateKeyPath, "JWT_PRIVATE_KEY_PATH")
	setString(&cfg.JWTPublicKeyPath, "JWT_PUBLIC_KEY_PATH")
	setString(&cfg.JWTVerifyPublicKeys, "JWT_VERIFY_PUBLIC_KEYS")
	setString(&cfg.JWTKeyID, "JWT_KEY_ID")
	setString(&cfg.JWTIssuer, "JWT_ISSUER")
	setString(&cfg.JWTAudience, "JWT_AUDIENCE")
	setString(&cfg.JWTLeeway, "JWT_LEEWAY")
	setInt(&cfg.SessionTTLSeconds, "SESSION_TTL_SECONDS")
	setString(&cfg.BootstrapAdminEmail, "BOOTSTRAP_ADMIN_EMAIL")
	setString(&cfg.BootstrapAdminPassword, "BOOTSTRAP_ADMIN_PASSWORD")
	setInt(&cfg.GenerateRateLimitPerMinute, "REPORT_GENERATE_RATE_LIMIT_PER_MINUTE")
	setInt(&cfg.LoginRateLimitPerMinute, "REPORT_LOGIN_RATE_LIMIT_PER_MINUTE")
	if v := os.Getenv("REPORT_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("REPORT_ALLOWED_EXTENSIONS"); v != "" {
		cfg.AllowedExtensions = splitCSV(v)
	}
	if v := os.Getenv("REPORT_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("REPORT_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "postgres"
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = "minio"
	}
	if cfg.DispatchMode == "" {
		cfg.DispatchMode = "inline"
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "sinapsis:report:jobs"
	}
	if cfg.GenerationProvider == "" {
		cfg.GenerationProvider = "anthropic"
	}
	if cfg.GenerationTimeoutSeconds == 0 {
		cfg.GenerationTimeoutSeconds = 300
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.StoreBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
		}
	case "memory":
	default:
		return fmt.Errorf("config: storeBackend must be postgres or memory, got %q", cfg.StoreBackend)
	}
	switch cfg.StorageBackend {
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint and minioBucket are required for storageBackend=minio")
		}
	case "file":
		if strings.TrimSpace(cfg.DataDir) == "" {
			return errors.New("config: dataDir is required for storageBackend=file")
		}
	default:
		return fmt.Errorf("config: storageBackend must be minio or file, got %q", cfg.StorageBackend)
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for rate limiting and session revocation")
	}
	switch cfg.DispatchMode {
	case "inline", "queue":
	default:
		return fmt.Errorf("config: dispatchMode must be inline or queue, got %q", cfg.DispatchMode)
	}
	if cfg.QueueConcurrency < 0 || cfg.QueueMaxRetries < 0 || cfg.QueueClaimIdleSeconds < 0 {
		return errors.New("config: queue settings must be >= 0")
	}
	switch cfg.GenerationProvider {
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return errors.New("config: anthropicApiKey is required (set in config.yaml or ANTHROPIC_API_KEY)")
		}
	case "openai-compat":
		if strings.TrimSpace(cfg.OpenAICompatBaseURL) == "" {
			return errors.New("config: openaiCompatBaseURL is required for generationProvider=openai-compat")
		}
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return errors.New("config: geminiApiKey is required for generationProvider=gemini")
		}
	case "ollama":
		if strings.TrimSpace(cfg.OllamaBaseURL) == "" {
			return errors.New("config: ollamaBaseURL is required for generationProvider=ollama")
		}
	default:
		return fmt.Errorf("config: unknown generationProvider %q", cfg.GenerationProvider)
	}
	if cfg.GenerationMaxTokens < 0 || cfg.GenerationTimeoutSeconds < 0 {
		return errors.New("config: generation limits must be >= 0")
	}
	if cfg.MaxPromptRows < 0 || cfg.MaxOverviewHTMLChars < 0 || cfg.OverviewMaxKPIs < 0 || cfg.OverviewMaxHighlights < 0 {
		return errors.New("config: prompt policy values must be >= 0")
	}
	if strings.TrimSpace(cfg.JWTPrivateKeyPath) == "" || strings.TrimSpace(cfg.JWTPublicKeyPath) == "" {
		return errors.New("config: sessions require jwtPrivateKeyPath + jwtPublicKeyPath")
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return err
	}
	if _, err := ParseVerifyKeyFiles(cfg.JWTVerifyPublicKeys); err != nil {
		return err
	}
	if cfg.SessionTTLSeconds < 0 {
		return errors.New("config: sessionTTLSeconds must be >= 0")
	}
	if (cfg.BootstrapAdminEmail == "") != (cfg.BootstrapAdminPassword == "") {
		return errors.New("config: bootstrapAdminEmail and bootstrapAdminPassword must be set together")
	}
	if cfg.GenerateRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	return nil
}

// SessionTTL returns the configured session lifetime, zero meaning default.
func (c FileConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// GenerationTimeout bounds one provider call.
func (c FileConfig) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

// QueueClaimIdle is how long a delivered job may stay unacknowledged before
// another worker takes it over. Unset, it outlasts a full generation.
func (c FileConfig) QueueClaimIdle() time.Duration {
	if c.QueueClaimIdleSeconds > 0 {
		return time.Duration(c.QueueClaimIdleSeconds) * time.Second
	}
	return c.GenerationTimeout() + time.Minute
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

// ParseVerifyKeyFiles parses "kid=path,kid=path" entries for retired
// signing keys that still verify sessions.
func ParseVerifyKeyFiles(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kid, path, ok := strings.Cut(pair, "=")
		kid, path = strings.TrimSpace(kid), strings.TrimSpace(path)
		if !ok || kid == "" || path == "" {
			return nil, fmt.Errorf("config: invalid jwtVerifyPublicKeys entry %q", pair)
		}
		out[kid] = path
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
