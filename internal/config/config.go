// Package config loads the recognized options of §6's configuration
// table from an optional JSON file, then applies REICHAT_*-prefixed
// environment variable overrides — the same os.Getenv-with-fallback
// pattern the teacher's server/main.go uses for REDIS_ADDR and
// DATABASE_URL, generalized across the whole option set.
package config

import (
	"encoding/json"
	"os"
	"strconv"
)

// Config holds every recognized option from §6's table, plus the
// supplemental databaseURL option backing SPEC_FULL.md's ClientStore.
type Config struct {
	Title        string `json:"title"`
	CanvasWidth  int    `json:"canvasWidth"`
	CanvasHeight int    `json:"canvasHeight"`
	LayerCount   int    `json:"layerCount"`

	MaxPaintLogCount int `json:"maxPaintLogCount"` // reserved, no effect (§1 non-goals)
	MaxChatLogCount  int `json:"maxChatLogCount"`  // reserved, no effect

	DataDir        string `json:"dataDir"`
	DataFilePrefix string `json:"dataFilePrefix"`

	RedisHost      string `json:"redisHost"`
	RedisPort      int    `json:"redisPort"`
	RedisPassword  string `json:"redisPassword"`
	RedisKeyPrefix string `json:"redisKeyPrefix"`

	ClientDir     string `json:"clientDir"`
	ClientVersion string `json:"clientVersion"`

	ForwardedHeaderType string `json:"forwardedHeaderType"`

	// DatabaseURL enables the supplemental Postgres-backed ClientStore
	// (SPEC_FULL.md §4.8) when non-empty.
	DatabaseURL string `json:"databaseURL"`

	// ListenAddr is the HTTP/websocket listen address. Not part of §6's
	// table (that describes recognized *room* options); every server
	// needs one regardless.
	ListenAddr string `json:"listenAddr"`
}

// Default returns the documented defaults from §6: title "PaintChat",
// 1920x1080 canvas, 3 layers, no persistence, no broker, no static client
// serving.
func Default() Config {
	return Config{
		Title:         "PaintChat",
		CanvasWidth:   1920,
		CanvasHeight:  1080,
		LayerCount:    3,
		ListenAddr:    ":8080",
		ClientVersion: "0",
	}
}

// Load reads path (if non-empty) as JSON over the defaults, then applies
// REICHAT_*-prefixed environment overrides, and returns the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str(&cfg.Title, "REICHAT_TITLE")
	intv(&cfg.CanvasWidth, "REICHAT_CANVAS_WIDTH")
	intv(&cfg.CanvasHeight, "REICHAT_CANVAS_HEIGHT")
	intv(&cfg.LayerCount, "REICHAT_LAYER_COUNT")
	str(&cfg.DataDir, "REICHAT_DATA_DIR")
	str(&cfg.DataFilePrefix, "REICHAT_DATA_FILE_PREFIX")
	str(&cfg.RedisHost, "REICHAT_REDIS_HOST")
	intv(&cfg.RedisPort, "REICHAT_REDIS_PORT")
	str(&cfg.RedisPassword, "REICHAT_REDIS_PASSWORD")
	str(&cfg.RedisKeyPrefix, "REICHAT_REDIS_KEY_PREFIX")
	str(&cfg.ClientDir, "REICHAT_CLIENT_DIR")
	str(&cfg.ClientVersion, "REICHAT_CLIENT_VERSION")
	str(&cfg.ForwardedHeaderType, "REICHAT_FORWARDED_HEADER_TYPE")
	str(&cfg.DatabaseURL, "REICHAT_DATABASE_URL")
	str(&cfg.ListenAddr, "REICHAT_LISTEN_ADDR")
}

func str(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok {
		*dst = v
	}
}

func intv(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// FSPersistenceEnabled reports whether dataDir/dataFilePrefix are
// configured and not null/"/dev/null", per §6, and broker mode is not
// enabled (BrokerEnabled takes precedence).
func (c Config) FSPersistenceEnabled() bool {
	return !c.BrokerEnabled() && c.DataDir != "" && c.DataDir != "null" && c.DataDir != "/dev/null"
}

// BrokerEnabled reports whether a Redis host is configured, per §6. When
// true, filesystem persistence is disabled regardless of DataDir.
func (c Config) BrokerEnabled() bool {
	return c.RedisHost != ""
}

// TrustForwardedFor reports whether the XFF forwarded-header convention is
// recognized for this config, per §6 (any other value silently falls back
// to the peer address).
func (c Config) TrustForwardedFor() bool {
	return c.ForwardedHeaderType == "XFF"
}
