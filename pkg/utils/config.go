package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	JWTIssuer   string        `yaml:"jwt_issuer"`
	JWTDuration time.Duration `yaml:"jwt_duration"`
}

type ServerConfig struct {
	HTTPAddr      string `yaml:"http_addr"`
	GRPCAddr      string `yaml:"grpc_addr"`
	SyncAddr      string `yaml:"sync_addr"`
	ThumbnailAddr string `yaml:"thumbnail_addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// Config is built once at startup and handed to every component.
type Config struct {
	Server       ServerConfig  `yaml:"server"`
	Auth         AuthConfig    `yaml:"auth"`
	Log          LogConfig     `yaml:"log"`
	Store        string        `yaml:"store"` // "sqlite" or "memory"
	DBPath       string        `yaml:"db_path"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	MaxElements  int           `yaml:"max_elements"`
	ThumbnailDir string        `yaml:"thumbnail_dir"`
	SeedSandbox  bool          `yaml:"seed_sandbox"`
}

func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return Config{
		Server: ServerConfig{
			HTTPAddr:      ":8080",
			GRPCAddr:      ":9090",
			SyncAddr:      ":7070",
			ThumbnailAddr: ":9091",
		},
		Auth: AuthConfig{
			// dev default (change for production)
			JWTSecret:   "dev-secret-change-me",
			JWTIssuer:   "chronozoom",
			JWTDuration: 24 * time.Hour,
		},
		Log:          LogConfig{Level: "info"},
		Store:        "sqlite",
		DBPath:       filepath.Join(home, ".chronozoom", "data.db"),
		CacheTTL:     5 * time.Minute,
		MaxElements:  2000,
		ThumbnailDir: filepath.Join(home, ".chronozoom", "thumbnails"),
		SeedSandbox:  true,
	}
}

// LoadConfig starts from DefaultConfig, overlays the YAML file named by
// CHRONOZOOM_CONFIG (if any) and then the CHRONOZOOM_* environment.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CHRONOZOOM_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("CHRONOZOOM_HTTP_ADDR", &cfg.Server.HTTPAddr)
	str("CHRONOZOOM_GRPC_ADDR", &cfg.Server.GRPCAddr)
	str("CHRONOZOOM_SYNC_ADDR", &cfg.Server.SyncAddr)
	str("CHRONOZOOM_THUMBNAIL_ADDR", &cfg.Server.ThumbnailAddr)
	str("CHRONOZOOM_JWT_SECRET", &cfg.Auth.JWTSecret)
	str("CHRONOZOOM_JWT_ISSUER", &cfg.Auth.JWTIssuer)
	str("CHRONOZOOM_LOG_LEVEL", &cfg.Log.Level)
	str("CHRONOZOOM_LOG_PATH", &cfg.Log.Path)
	str("CHRONOZOOM_STORE", &cfg.Store)
	str("CHRONOZOOM_DB_PATH", &cfg.DBPath)
	str("CHRONOZOOM_THUMBNAIL_DIR", &cfg.ThumbnailDir)

	if v := getenv("CHRONOZOOM_JWT_TTL_HOURS"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			return fmt.Errorf("CHRONOZOOM_JWT_TTL_HOURS: invalid value %q", v)
		}
		cfg.Auth.JWTDuration = time.Duration(hours) * time.Hour
	}
	if v := getenv("CHRONOZOOM_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("CHRONOZOOM_CACHE_TTL: invalid duration %q", v)
		}
		cfg.CacheTTL = d
	}
	if v := getenv("CHRONOZOOM_MAX_ELEMENTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("CHRONOZOOM_MAX_ELEMENTS: invalid value %q", v)
		}
		cfg.MaxElements = n
	}
	if v := getenv("CHRONOZOOM_SEED_SANDBOX"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CHRONOZOOM_SEED_SANDBOX: invalid value %q", v)
		}
		cfg.SeedSandbox = b
	}
	switch cfg.Store {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("CHRONOZOOM_STORE: unknown store %q", cfg.Store)
	}
	return nil
}
