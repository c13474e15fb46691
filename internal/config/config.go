package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	AI            AIConfig
	Executor      ExecutorConfig
	Output        OutputConfig
	Report        ReportConfig
	ObjectStore   ObjectStoreConfig
	Ledger        LedgerConfig
	Metrics       MetricsConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type AIConfig struct {
	Provider            string
	BaseURL             string
	APIKey              string
	Model               string
	Timeout             time.Duration
	RetryMax            int
	ClassifyTemperature float64
	CodegenTemperature  float64
	SummaryTemperature  float64
	SummaryMaxTokens    int
}

type ExecutorConfig struct {
	MaxRetries     int
	AttemptTimeout time.Duration
	MemoryLimit    string
	Threads        int
}

type OutputConfig struct {
	Dir string
}

type ReportConfig struct {
	PreviewRows    int
	RenderPDF      bool
	BrowserPath    string
	InstallBrowser bool
}

type ObjectStoreConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type LedgerConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type MetricsConfig struct {
	TextfilePath string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("DATAQ_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid DATAQ_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "DATAQ_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "DATAQ_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "DATAQ_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "DATAQ_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "DATAQ_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyDuration(lookup, "DATAQ_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyInt(lookup, "DATAQ_AI_RETRY_MAX", &cfg.AI.RetryMax) },
		func() error { return applyFloat(lookup, "DATAQ_AI_CLASSIFY_TEMPERATURE", &cfg.AI.ClassifyTemperature) },
		func() error { return applyFloat(lookup, "DATAQ_AI_CODEGEN_TEMPERATURE", &cfg.AI.CodegenTemperature) },
		func() error { return applyFloat(lookup, "DATAQ_AI_SUMMARY_TEMPERATURE", &cfg.AI.SummaryTemperature) },
		func() error { return applyInt(lookup, "DATAQ_AI_SUMMARY_MAX_TOKENS", &cfg.AI.SummaryMaxTokens) },
		func() error { return applyInt(lookup, "DATAQ_EXECUTOR_MAX_RETRIES", &cfg.Executor.MaxRetries) },
		func() error { return applyDuration(lookup, "DATAQ_EXECUTOR_ATTEMPT_TIMEOUT", &cfg.Executor.AttemptTimeout) },
		func() error { return applyString(lookup, "DATAQ_EXECUTOR_MEMORY_LIMIT", &cfg.Executor.MemoryLimit) },
		func() error { return applyInt(lookup, "DATAQ_EXECUTOR_THREADS", &cfg.Executor.Threads) },
		func() error { return applyString(lookup, "DATAQ_OUTPUT_DIR", &cfg.Output.Dir) },
		func() error { return applyInt(lookup, "DATAQ_REPORT_PREVIEW_ROWS", &cfg.Report.PreviewRows) },
		func() error { return applyBool(lookup, "DATAQ_REPORT_RENDER_PDF", &cfg.Report.RenderPDF) },
		func() error { return applyString(lookup, "DATAQ_REPORT_BROWSER_PATH", &cfg.Report.BrowserPath) },
		func() error { return applyBool(lookup, "DATAQ_REPORT_INSTALL_BROWSER", &cfg.Report.InstallBrowser) },
		func() error { return applyBool(lookup, "DATAQ_OBJECTSTORE_ENABLED", &cfg.ObjectStore.Enabled) },
		func() error { return applyString(lookup, "DATAQ_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "DATAQ_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "DATAQ_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "DATAQ_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "DATAQ_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "DATAQ_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "DATAQ_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error { return applyBool(lookup, "DATAQ_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket) },
		func() error { return applyString(lookup, "DATAQ_LEDGER_DSN", &cfg.Ledger.DSN) },
		func() error { return applyInt(lookup, "DATAQ_LEDGER_MAX_OPEN_CONNS", &cfg.Ledger.MaxOpenConns) },
		func() error { return applyInt(lookup, "DATAQ_LEDGER_MAX_IDLE_CONNS", &cfg.Ledger.MaxIdleConns) },
		func() error { return applyDuration(lookup, "DATAQ_LEDGER_CONN_MAX_IDLE_TIME", &cfg.Ledger.ConnMaxIdleTime) },
		func() error { return applyDuration(lookup, "DATAQ_LEDGER_CONN_MAX_LIFETIME", &cfg.Ledger.ConnMaxLifetime) },
		func() error { return applyString(lookup, "DATAQ_METRICS_TEXTFILE", &cfg.Metrics.TextfilePath) },
		func() error { return applyBool(lookup, "DATAQ_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "DATAQ_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	switch c.AI.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("invalid DATAQ_AI_PROVIDER: %q", c.AI.Provider)
	}
	if c.Executor.MaxRetries < 0 {
		return fmt.Errorf("executor max retries must be >= 0")
	}
	if c.Report.PreviewRows <= 0 {
		return fmt.Errorf("report preview rows must be > 0")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output dir is required")
	}
	if c.ObjectStore.Enabled && c.ObjectStore.Bucket == "" {
		return fmt.Errorf("object store bucket is required when the object store is enabled")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "dataq"},
		AI: AIConfig{
			Provider:            ProviderOllama,
			BaseURL:             "http://127.0.0.1:11434",
			Model:               "deepseek-r1:32b",
			Timeout:             5 * time.Minute,
			RetryMax:            2,
			ClassifyTemperature: 0.0,
			CodegenTemperature:  0.3,
			SummaryTemperature:  0.2,
			SummaryMaxTokens:    1024,
		},
		Executor: ExecutorConfig{
			MaxRetries:     2,
			AttemptTimeout: 60 * time.Second,
			MemoryLimit:    "1GB",
			Threads:        2,
		},
		Output: OutputConfig{
			Dir: ".",
		},
		Report: ReportConfig{
			PreviewRows:    5,
			RenderPDF:      true,
			InstallBrowser: false,
		},
		ObjectStore: ObjectStoreConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "dataq",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Ledger: LedgerConfig{
			DSN:             "",
			MaxOpenConns:    4,
			MaxIdleConns:    4,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelInfo,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Report.RenderPDF = false
		cfg.Executor.AttemptTimeout = 10 * time.Second
	case ProfileProd:
		cfg.Observability.LogJSON = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
