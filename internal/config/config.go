// Package config loads runtime configuration from an optional `.env.<env>`
// file and RESOURCESYNC_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable consulted.
const EnvPrefix = "RESOURCESYNC"

// Config is the full runtime configuration.
type Config struct {
	Storage StorageConfig
	Blob    BlobConfig
	Log     LogConfig
	Metrics MetricsConfig
	// SchemaPath points at an HCL relation configuration; empty selects the built-in schema.
	SchemaPath string
}

// StorageConfig selects the document store driver.
type StorageConfig struct {
	Driver      string // memory|sqlite|postgres
	SQLitePath  string
	PostgresDSN string
}

// BlobConfig selects the attachment blob driver.
type BlobConfig struct {
	Driver    string // fs|s3|memory
	FSRoot    string
	FSBaseURL string
	S3        S3Config
}

// S3Config holds S3 / MinIO connection parameters.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string // debug|info|warn|error
	Format string // text|json
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string
}

// findProjectRoot walks up from the working directory to the nearest go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// New builds a viper instance for env (dev, test, prod). The `.env.<env>` file
// is searched in the project root and the working directory; it is optional.
// Environment variables take precedence over the file.
func New(env string) *viper.Viper {
	if env == "" {
		env = "dev"
	}
	v := viper.New()
	v.SetConfigName(".env." + env)
	v.SetConfigType("env")
	if root, err := findProjectRoot(); err == nil {
		v.AddConfigPath(root)
	}
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("STORAGE_DRIVER", "memory")
	v.SetDefault("SQLITE_PATH", "./resourcesync.db")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("BLOB_DRIVER", "fs")
	v.SetDefault("BLOB_FS_ROOT", "./blobdata")
	v.SetDefault("BLOB_FS_BASE_URL", "")
	v.SetDefault("BLOB_S3_REGION", "us-east-1")
	v.SetDefault("BLOB_S3_PATH_STYLE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("METRICS_ADDR", "")
	v.SetDefault("SCHEMA_PATH", "")
}

// Load reads the configuration for env.
func Load(env string) (Config, error) {
	return FromViper(New(env))
}

// FromViper materializes and validates a Config from v.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Storage: StorageConfig{
			Driver:      strings.ToLower(v.GetString("STORAGE_DRIVER")),
			SQLitePath:  v.GetString("SQLITE_PATH"),
			PostgresDSN: v.GetString("POSTGRES_DSN"),
		},
		Blob: BlobConfig{
			Driver:    strings.ToLower(v.GetString("BLOB_DRIVER")),
			FSRoot:    v.GetString("BLOB_FS_ROOT"),
			FSBaseURL: v.GetString("BLOB_FS_BASE_URL"),
			S3: S3Config{
				Bucket:          v.GetString("BLOB_S3_BUCKET"),
				Region:          v.GetString("BLOB_S3_REGION"),
				Endpoint:        v.GetString("BLOB_S3_ENDPOINT"),
				AccessKeyID:     v.GetString("BLOB_S3_ACCESS_KEY_ID"),
				SecretAccessKey: v.GetString("BLOB_S3_SECRET_ACCESS_KEY"),
				SessionToken:    v.GetString("BLOB_S3_SESSION_TOKEN"),
				PathStyle:       v.GetBool("BLOB_S3_PATH_STYLE"),
			},
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		Metrics:    MetricsConfig{Addr: v.GetString("METRICS_ADDR")},
		SchemaPath: v.GetString("SCHEMA_PATH"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and incomplete driver settings.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%s_POSTGRES_DSN is required for the postgres driver", EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("%s_BLOB_S3_BUCKET is required for the s3 driver", EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
