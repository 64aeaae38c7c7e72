package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Port           int
	DBPath         string
	StoreCodec     string
	CORSOrigins    []string
	MaxUploadBytes int64
	Version        string
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Port:           8080,
		DBPath:         "econometric-lab.db",
		StoreCodec:     "zstd",
		CORSOrigins:    []string{"*"},
		MaxUploadBytes: 32 << 20,
	}
}

// Load reads envFile into the process environment, without overriding
// variables that are already set, and overlays the environment on the
// defaults. A missing envFile is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
			log.Printf("No env file at %s, using environment only", envFile)
		}
	}
	return FromEnv(Default())
}

// FromEnv overlays PORT, DB_PATH, STORE_CODEC, CORS_ORIGINS and
// MAX_UPLOAD_MB on cfg.
func FromEnv(cfg Config) (Config, error) {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return cfg, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("STORE_CODEC"); v != "" {
		cfg.StoreCodec = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.CORSOrigins = origins
		}
	}
	if v := os.Getenv("MAX_UPLOAD_MB"); v != "" {
		mb, err := strconv.ParseInt(v, 10, 64)
		if err != nil || mb <= 0 {
			return cfg, fmt.Errorf("invalid MAX_UPLOAD_MB %q", v)
		}
		cfg.MaxUploadBytes = mb << 20
	}
	return cfg, nil
}
