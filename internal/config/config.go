package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"meshapi/internal/mesh"
)

// DefaultMaxUploadBytes caps request bodies at 16 MiB.
const DefaultMaxUploadBytes int64 = 16 << 20

// Storage backends.
const (
	BackendLocal = "local"
	BackendMinIO = "minio"
)

// HTTPConfig holds listener and routing settings.
type HTTPConfig struct {
	Port           string `toml:"port"`
	APIPrefix      string `toml:"api_prefix"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
	CORSOrigins    string `toml:"cors_origins"` // comma separated, "*" allows any origin
}

// GatewayConfig holds the mesh gateway settings.
type GatewayConfig struct {
	UploadDir      string   `toml:"upload_dir"`
	AllowedFormats []string `toml:"allowed_formats"`
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	UseSSL    bool   `toml:"use_ssl"`
}

// StorageConfig selects where artifacts live.
type StorageConfig struct {
	Backend string      `toml:"backend"`
	MinIO   MinIOConfig `toml:"minio"`
}

// DatabaseConfig holds PostgreSQL settings for the optional model index.
type DatabaseConfig struct {
	Host               string `toml:"host"`
	Port               string `toml:"port"`
	User               string `toml:"user"`
	Password           string `toml:"password"`
	Name               string `toml:"name"`
	SSLMode            string `toml:"sslmode"`
	MaxOpenConns       int    `toml:"max_open_conns"`
	MaxIdleConns       int    `toml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `toml:"conn_max_lifetime_sec"`
}

// Enabled reports whether a database host is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// LogConfig controls the application logger.
type LogConfig struct {
	Format string `toml:"format"` // json or text
	Level  string `toml:"level"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
	Protocol    string `toml:"protocol"` // grpc or http/protobuf
	Sampler     string `toml:"sampler"`
	SamplerArg  string `toml:"sampler_arg"`
}

// AppConfig is the centralized configuration struct for the application.
type AppConfig struct {
	AppHost  string         `toml:"app_host"`
	HTTP     HTTPConfig     `toml:"http"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Storage  StorageConfig  `toml:"storage"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Tracing  TracingConfig  `toml:"tracing"`
}

// Default returns the configuration used when neither a file nor the environment say otherwise.
func Default() *AppConfig {
	return &AppConfig{
		AppHost: "localhost:8080",
		HTTP: HTTPConfig{
			Port:           "8080",
			APIPrefix:      "/api",
			MaxUploadBytes: DefaultMaxUploadBytes,
			CORSOrigins:    "*",
		},
		Gateway: GatewayConfig{
			UploadDir:      filepath.Join(os.TempDir(), "meshapi_uploads"),
			AllowedFormats: []string{"stl", "obj"},
		},
		Storage: StorageConfig{Backend: BackendLocal},
		Database: DatabaseConfig{
			Port:               "5432",
			SSLMode:            "disable",
			MaxOpenConns:       10,
			MaxIdleConns:       5,
			ConnMaxLifetimeSec: 300,
		},
		Log: LogConfig{Format: "json", Level: "info"},
		Tracing: TracingConfig{
			ServiceName: "meshapi",
			Protocol:    "grpc",
			Sampler:     "parentbased_traceidratio",
			SamplerArg:  "1.0",
		},
	}
}

// Load builds the configuration from defaults, then the TOML file named by CONFIG_FILE
// (if any), then environment variables. A .env file can be auto-loaded by importing
// _ "github.com/joho/godotenv/autoload"; real environment variables take precedence.
func Load() (*AppConfig, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg.AppHost = getEnv("APP_HOST", cfg.AppHost)
	cfg.HTTP.Port = getEnv("PORT", cfg.HTTP.Port)
	if v, ok := os.LookupEnv("API_PREFIX"); ok {
		cfg.HTTP.APIPrefix = v
	}
	cfg.HTTP.APIPrefix = normalizePrefix(cfg.HTTP.APIPrefix)
	cfg.HTTP.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", cfg.HTTP.MaxUploadBytes)
	cfg.HTTP.CORSOrigins = strings.TrimSpace(getEnv("CORS_ALLOW_ORIGINS", cfg.HTTP.CORSOrigins))

	cfg.Gateway.UploadDir = getEnv("UPLOAD_DIR", cfg.Gateway.UploadDir)
	cfg.Gateway.AllowedFormats = normalizeFormats(getEnvList("ALLOWED_FORMATS", cfg.Gateway.AllowedFormats))

	cfg.Storage.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", cfg.Storage.Backend))
	m := &cfg.Storage.MinIO
	m.Endpoint = getEnv("MINIO_ENDPOINT", m.Endpoint)
	m.AccessKey = getEnv("MINIO_ACCESS_KEY", m.AccessKey)
	m.SecretKey = getEnv("MINIO_SECRET_KEY", m.SecretKey)
	m.Bucket = getEnv("MINIO_BUCKET", m.Bucket)
	m.Prefix = getEnv("MINIO_PREFIX", m.Prefix)
	m.UseSSL = getEnvBool("MINIO_USE_SSL", m.UseSSL)

	d := &cfg.Database
	d.Host = getEnv("DB_HOST", d.Host)
	d.Port = getEnv("DB_PORT", d.Port)
	d.User = getEnv("DB_USER", d.User)
	d.Password = getEnv("DB_PASSWORD", d.Password)
	d.Name = getEnv("DB_NAME", d.Name)
	d.SSLMode = getEnv("DB_SSLMODE", d.SSLMode)
	d.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", d.MaxOpenConns)
	d.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", d.MaxIdleConns)
	d.ConnMaxLifetimeSec = getEnvInt("DB_CONN_MAX_LIFETIME_SEC", d.ConnMaxLifetimeSec)

	cfg.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", cfg.Log.Format))
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	tr := &cfg.Tracing
	tr.Enabled = getEnvBool("OTEL_TRACING_ENABLED", tr.Enabled) && !getEnvBool("OTEL_SDK_DISABLED", false)
	tr.ServiceName = getEnv("OTEL_SERVICE_NAME", tr.ServiceName)
	tr.Protocol = getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", tr.Protocol)
	tr.Sampler = getEnv("OTEL_TRACES_SAMPLER", tr.Sampler)
	tr.SamplerArg = getEnv("OTEL_TRACES_SAMPLER_ARG", tr.SamplerArg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings the server cannot start without.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.HTTP.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload bytes must be positive"))
	}
	if len(c.Gateway.AllowedFormats) == 0 {
		errs = append(errs, errors.New("at least one allowed format is required"))
	}
	for _, f := range c.Gateway.AllowedFormats {
		if !mesh.Supports(f) {
			errs = append(errs, fmt.Errorf("allowed format %q has no mesh codec", f))
		}
	}
	if err := validateOrigins(c.HTTP.CORSOrigins); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Gateway.UploadDir == "" {
			errs = append(errs, errors.New("upload dir is required for the local backend"))
		}
	case BackendMinIO:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	return errors.Join(errs...)
}

// validateOrigins accepts "*" or a comma separated list of scheme://host origins.
func validateOrigins(origins string) error {
	if origins == "*" {
		return nil
	}
	if origins == "" {
		return errors.New("cors origins must not be empty")
	}
	for _, o := range strings.Split(origins, ",") {
		o = strings.TrimSpace(o)
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") {
			return fmt.Errorf("invalid cors origin %q", o)
		}
	}
	return nil
}

func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

func normalizeFormats(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, f := range in {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvList splits a comma separated value.
func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return strings.Split(v, ",")
}
