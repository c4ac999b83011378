package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	CORS       CORSConfig
	Telemetry  TelemetryConfig
	Analyzer   AnalyzerConfig
	Completion CompletionConfig
	Extractor  ExtractorConfig
	QA         QAConfig
	Pipeline   PipelineConfig
	Storage    StorageConfig
	S3         S3Config
	Store      StoreConfig
	Redis      RedisConfig
	DB         DBConfig
	Retry      RetryConfig
	Prompts    PromptsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// TelemetryConfig holds OpenTelemetry exporter settings. An empty endpoint disables export.
type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// AnalyzerConfig holds settings for the document-analysis (OCR) service.
type AnalyzerConfig struct {
	Provider     string        `mapstructure:"provider"`
	Endpoint     string        `mapstructure:"endpoint"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	APIVersion   string        `mapstructure:"api_version"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	TimeoutSecs  int           `mapstructure:"timeout_secs"`
}

// ProviderConfig holds settings for a single completion provider.
type ProviderConfig struct {
	Provider    string `mapstructure:"provider"`
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model"`
	APIVersion  string `mapstructure:"api_version"`
	TimeoutSecs int    `mapstructure:"timeout_secs"`
}

// CompletionConfig holds completion service settings with multi-provider support.
type CompletionConfig struct {
	// Flat fields, populated from the AZURE_OPENAI_* variables as well.
	Provider    string `mapstructure:"provider"`
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model"`
	APIVersion  string `mapstructure:"api_version"`
	TimeoutSecs int    `mapstructure:"timeout_secs"`

	Primary   ProviderConfig `mapstructure:"primary"`
	Secondary ProviderConfig `mapstructure:"secondary"`
	Tertiary  ProviderConfig `mapstructure:"tertiary"`
}

// PrimaryConfig returns the primary provider config, falling back to the flat fields.
func (c *CompletionConfig) PrimaryConfig() *ProviderConfig {
	if c.Primary.Provider != "" {
		return &c.Primary
	}
	return &ProviderConfig{
		Provider:    c.Provider,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		APIVersion:  c.APIVersion,
		TimeoutSecs: c.TimeoutSecs,
	}
}

// SecondaryConfig returns the secondary provider config, or nil if not configured.
func (c *CompletionConfig) SecondaryConfig() *ProviderConfig {
	if c.Secondary.Provider != "" {
		return &c.Secondary
	}
	return nil
}

// TertiaryConfig returns the tertiary provider config, or nil if not configured.
func (c *CompletionConfig) TertiaryConfig() *ProviderConfig {
	if c.Tertiary.Provider != "" {
		return &c.Tertiary
	}
	return nil
}

// Providers returns the configured providers in fallback order.
func (c *CompletionConfig) Providers() []*ProviderConfig {
	out := []*ProviderConfig{c.PrimaryConfig()}
	if s := c.SecondaryConfig(); s != nil {
		out = append(out, s)
	}
	if t := c.TertiaryConfig(); t != nil {
		out = append(out, t)
	}
	return out
}

// ExtractorConfig holds structured extraction settings.
type ExtractorConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	MaxTokens   int `mapstructure:"max_tokens"`
}

// QAConfig holds question answering settings.
type QAConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// PipelineConfig bounds the extraction pipeline.
type PipelineConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxFileSizeMB int64         `mapstructure:"max_file_size_mb"`
}

// StorageConfig selects where normalized artifacts are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Addr returns the host:port address of the Redis server.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RetryConfig bounds retries of upstream calls.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed"`
}

// PromptsConfig points at an optional directory overriding the embedded prompt templates.
type PromptsConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load reads configuration from environment variables with the CLAIMSQA_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLAIMSQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.environment", "development")

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	v.SetDefault("cors.allowed_origins", "*")

	v.SetDefault("telemetry.service_name", "claimsqa")
	v.SetDefault("telemetry.otlp_endpoint", "")

	// Analyzer defaults
	v.SetDefault("analyzer.provider", "azure")
	v.SetDefault("analyzer.endpoint", "")
	v.SetDefault("analyzer.api_key", "")
	v.SetDefault("analyzer.model", "prebuilt-read")
	v.SetDefault("analyzer.api_version", "2024-11-30")
	v.SetDefault("analyzer.poll_interval", "1s")
	v.SetDefault("analyzer.timeout_secs", 120)

	// Completion defaults (flat)
	v.SetDefault("completion.provider", "azure_openai")
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.base_url", "")
	v.SetDefault("completion.model", "")
	v.SetDefault("completion.api_version", "2024-10-21")
	v.SetDefault("completion.timeout_secs", 180)

	// Completion primary/secondary/tertiary defaults
	for _, tier := range []string{"primary", "secondary", "tertiary"} {
		v.SetDefault("completion."+tier+".provider", "")
		v.SetDefault("completion."+tier+".api_key", "")
		v.SetDefault("completion."+tier+".base_url", "")
		v.SetDefault("completion."+tier+".model", "")
		v.SetDefault("completion."+tier+".api_version", "")
		v.SetDefault("completion."+tier+".timeout_secs", 180)
	}

	v.SetDefault("extractor.max_attempts", 2)
	v.SetDefault("extractor.max_tokens", 16384)

	v.SetDefault("qa.temperature", 0.7)
	v.SetDefault("qa.max_tokens", 1024)

	v.SetDefault("pipeline.max_concurrent", 8)
	v.SetDefault("pipeline.timeout", "10m")
	v.SetDefault("pipeline.max_file_size_mb", 50)

	// Artifact storage defaults
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "artifacts")
	v.SetDefault("storage.key_prefix", "")

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "claimsqa-artifacts")
	v.SetDefault("s3.endpoint", "")

	v.SetDefault("store.backend", "memory")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "claimsqa:")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "claimsqa")
	v.SetDefault("db.password", "claimsqa_secret")
	v.SetDefault("db.name", "claimsqa_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_interval", "500ms")
	v.SetDefault("retry.max_interval", "10s")
	v.SetDefault("retry.max_elapsed", "2m")

	v.SetDefault("prompts.dir", "")

	// Bind environment variables explicitly for nested keys. A key may be
	// bound to several names; the first one set wins.
	envBindings := map[string][]string{
		"server.port":               {"CLAIMSQA_SERVER_PORT"},
		"server.read_timeout":       {"CLAIMSQA_SERVER_READ_TIMEOUT"},
		"server.write_timeout":      {"CLAIMSQA_SERVER_WRITE_TIMEOUT"},
		"server.environment":        {"CLAIMSQA_SERVER_ENVIRONMENT"},
		"log.level":                 {"CLAIMSQA_LOG_LEVEL"},
		"log.format":                {"CLAIMSQA_LOG_FORMAT"},
		"cors.allowed_origins":      {"CLAIMSQA_CORS_ALLOWED_ORIGINS"},
		"telemetry.service_name":    {"CLAIMSQA_TELEMETRY_SERVICE_NAME"},
		"telemetry.otlp_endpoint":   {"CLAIMSQA_TELEMETRY_OTLP_ENDPOINT"},
		"analyzer.provider":         {"CLAIMSQA_ANALYZER_PROVIDER"},
		"analyzer.endpoint":         {"CLAIMSQA_ANALYZER_ENDPOINT", "DOCUMENTINTELLIGENCE_ENDPOINT"},
		"analyzer.api_key":          {"CLAIMSQA_ANALYZER_API_KEY", "DOCUMENTINTELLIGENCE_API_KEY"},
		"analyzer.model":            {"CLAIMSQA_ANALYZER_MODEL"},
		"analyzer.api_version":      {"CLAIMSQA_ANALYZER_API_VERSION"},
		"analyzer.poll_interval":    {"CLAIMSQA_ANALYZER_POLL_INTERVAL"},
		"analyzer.timeout_secs":     {"CLAIMSQA_ANALYZER_TIMEOUT_SECS"},
		"completion.provider":       {"CLAIMSQA_COMPLETION_PROVIDER"},
		"completion.api_key":        {"CLAIMSQA_COMPLETION_API_KEY", "AZURE_OPENAI_API_KEY"},
		"completion.base_url":       {"CLAIMSQA_COMPLETION_BASE_URL", "AZURE_OPENAI_BASE_URL"},
		"completion.model":          {"CLAIMSQA_COMPLETION_MODEL", "AZURE_OPENAI_DEPLOYMENT_NAME"},
		"completion.api_version":    {"CLAIMSQA_COMPLETION_API_VERSION", "AZURE_OPENAI_API_VERSION"},
		"completion.timeout_secs":   {"CLAIMSQA_COMPLETION_TIMEOUT_SECS"},
		"extractor.max_attempts":    {"CLAIMSQA_EXTRACTOR_MAX_ATTEMPTS"},
		"extractor.max_tokens":      {"CLAIMSQA_EXTRACTOR_MAX_TOKENS"},
		"qa.temperature":            {"CLAIMSQA_QA_TEMPERATURE"},
		"qa.max_tokens":             {"CLAIMSQA_QA_MAX_TOKENS"},
		"pipeline.max_concurrent":   {"CLAIMSQA_PIPELINE_MAX_CONCURRENT"},
		"pipeline.timeout":          {"CLAIMSQA_PIPELINE_TIMEOUT"},
		"pipeline.max_file_size_mb": {"CLAIMSQA_PIPELINE_MAX_FILE_SIZE_MB"},
		"storage.backend":           {"CLAIMSQA_STORAGE_BACKEND"},
		"storage.local_dir":         {"CLAIMSQA_STORAGE_LOCAL_DIR"},
		"storage.key_prefix":        {"CLAIMSQA_STORAGE_KEY_PREFIX"},
		"s3.region":                 {"CLAIMSQA_S3_REGION"},
		"s3.bucket":                 {"CLAIMSQA_S3_BUCKET"},
		"s3.endpoint":               {"CLAIMSQA_S3_ENDPOINT"},
		"s3.access_key":             {"CLAIMSQA_S3_ACCESS_KEY"},
		"s3.secret_key":             {"CLAIMSQA_S3_SECRET_KEY"},
		"store.backend":             {"CLAIMSQA_STORE_BACKEND"},
		"redis.host":                {"CLAIMSQA_REDIS_HOST"},
		"redis.port":                {"CLAIMSQA_REDIS_PORT"},
		"redis.password":            {"CLAIMSQA_REDIS_PASSWORD"},
		"redis.db":                  {"CLAIMSQA_REDIS_DB"},
		"redis.key_prefix":          {"CLAIMSQA_REDIS_KEY_PREFIX"},
		"db.host":                   {"CLAIMSQA_DB_HOST"},
		"db.port":                   {"CLAIMSQA_DB_PORT"},
		"db.user":                   {"CLAIMSQA_DB_USER"},
		"db.password":               {"CLAIMSQA_DB_PASSWORD"},
		"db.name":                   {"CLAIMSQA_DB_NAME"},
		"db.sslmode":                {"CLAIMSQA_DB_SSLMODE"},
		"db.max_open":               {"CLAIMSQA_DB_MAX_OPEN"},
		"db.max_idle":               {"CLAIMSQA_DB_MAX_IDLE"},
		"retry.max_attempts":        {"CLAIMSQA_RETRY_MAX_ATTEMPTS"},
		"retry.initial_interval":    {"CLAIMSQA_RETRY_INITIAL_INTERVAL"},
		"retry.max_interval":        {"CLAIMSQA_RETRY_MAX_INTERVAL"},
		"retry.max_elapsed":         {"CLAIMSQA_RETRY_MAX_ELAPSED"},
		"prompts.dir":               {"CLAIMSQA_PROMPTS_DIR"},
	}
	for _, tier := range []string{"primary", "secondary", "tertiary"} {
		for _, field := range []string{"provider", "api_key", "base_url", "model", "api_version", "timeout_secs"} {
			key := "completion." + tier + "." + field
			envBindings[key] = []string{"CLAIMSQA_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		}
	}
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		_ = v.BindEnv(args...)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if CLAIMSQA_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("CLAIMSQA_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
	}
	cfg.Telemetry = TelemetryConfig{
		ServiceName:  v.GetString("telemetry.service_name"),
		OTLPEndpoint: v.GetString("telemetry.otlp_endpoint"),
	}
	cfg.Analyzer = AnalyzerConfig{
		Provider:     v.GetString("analyzer.provider"),
		Endpoint:     v.GetString("analyzer.endpoint"),
		APIKey:       v.GetString("analyzer.api_key"),
		Model:        v.GetString("analyzer.model"),
		APIVersion:   v.GetString("analyzer.api_version"),
		PollInterval: v.GetDuration("analyzer.poll_interval"),
		TimeoutSecs:  v.GetInt("analyzer.timeout_secs"),
	}

	cfg.Completion = CompletionConfig{
		Provider:    v.GetString("completion.provider"),
		APIKey:      v.GetString("completion.api_key"),
		BaseURL:     v.GetString("completion.base_url"),
		Model:       v.GetString("completion.model"),
		APIVersion:  v.GetString("completion.api_version"),
		TimeoutSecs: v.GetInt("completion.timeout_secs"),
		Primary:     providerConfig(v, "completion.primary"),
		Secondary:   providerConfig(v, "completion.secondary"),
		Tertiary:    providerConfig(v, "completion.tertiary"),
	}

	cfg.Extractor = ExtractorConfig{
		MaxAttempts: v.GetInt("extractor.max_attempts"),
		MaxTokens:   v.GetInt("extractor.max_tokens"),
	}
	cfg.QA = QAConfig{
		Temperature: v.GetFloat64("qa.temperature"),
		MaxTokens:   v.GetInt("qa.max_tokens"),
	}
	cfg.Pipeline = PipelineConfig{
		MaxConcurrent: v.GetInt("pipeline.max_concurrent"),
		Timeout:       v.GetDuration("pipeline.timeout"),
		MaxFileSizeMB: v.GetInt64("pipeline.max_file_size_mb"),
	}
	cfg.Storage = StorageConfig{
		Backend:   v.GetString("storage.backend"),
		LocalDir:  v.GetString("storage.local_dir"),
		KeyPrefix: v.GetString("storage.key_prefix"),
	}
	cfg.S3 = S3Config{
		Region:    v.GetString("s3.region"),
		Bucket:    v.GetString("s3.bucket"),
		Endpoint:  v.GetString("s3.endpoint"),
		AccessKey: v.GetString("s3.access_key"),
		SecretKey: v.GetString("s3.secret_key"),
	}
	cfg.Store = StoreConfig{
		Backend: v.GetString("store.backend"),
	}
	cfg.Redis = RedisConfig{
		Host:      v.GetString("redis.host"),
		Port:      v.GetInt("redis.port"),
		Password:  v.GetString("redis.password"),
		DB:        v.GetInt("redis.db"),
		KeyPrefix: v.GetString("redis.key_prefix"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.Retry = RetryConfig{
		MaxAttempts:     v.GetInt("retry.max_attempts"),
		InitialInterval: v.GetDuration("retry.initial_interval"),
		MaxInterval:     v.GetDuration("retry.max_interval"),
		MaxElapsed:      v.GetDuration("retry.max_elapsed"),
	}
	cfg.Prompts = PromptsConfig{
		Dir: v.GetString("prompts.dir"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}
	switch c.Storage.Backend {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
	if c.Extractor.MaxAttempts < 1 {
		return fmt.Errorf("extractor.max_attempts must be at least 1, got %d", c.Extractor.MaxAttempts)
	}
	if c.Pipeline.MaxConcurrent < 1 {
		return fmt.Errorf("pipeline.max_concurrent must be at least 1, got %d", c.Pipeline.MaxConcurrent)
	}
	return nil
}

func providerConfig(v *viper.Viper, prefix string) ProviderConfig {
	return ProviderConfig{
		Provider:    v.GetString(prefix + ".provider"),
		APIKey:      v.GetString(prefix + ".api_key"),
		BaseURL:     v.GetString(prefix + ".base_url"),
		Model:       v.GetString(prefix + ".model"),
		APIVersion:  v.GetString(prefix + ".api_version"),
		TimeoutSecs: v.GetInt(prefix + ".timeout_secs"),
	}
}

// splitList parses a comma-separated string, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
