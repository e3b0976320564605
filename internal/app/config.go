package app

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shelfscan/shelfscan/internal/analyzer"
	"github.com/shelfscan/shelfscan/internal/discovery"
	"github.com/shelfscan/shelfscan/internal/genai"
	"github.com/shelfscan/shelfscan/internal/session"
	"github.com/shelfscan/shelfscan/internal/webclient"
)

// Config is the runtime configuration for the orchestrator and everything
// under it. All the estimation policy knobs (bucket caps, truncation limits,
// pacing) live in the nested component configs.
type Config struct {
	// DataDir is the base path for the record database and screenshots.
	DataDir string

	// PageCacheSize bounds the scraped-page LRU.
	PageCacheSize int

	WebClientCfg webclient.Config
	DiscoveryCfg discovery.Config
	AnalyzerCfg  analyzer.Config
	GenAICfg     genai.Config

	// AuthTokens maps bearer tokens to users for the static auth provider.
	AuthTokens map[string]session.User
}

// DefaultConfig returns a Config populated with development defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:       "~/.local/share/shelfscan",
		PageCacheSize: 128,
		WebClientCfg:  webclient.DefaultConfig(),
		DiscoveryCfg:  discovery.DefaultConfig(),
		AnalyzerCfg:   analyzer.DefaultConfig(),
		GenAICfg:      genai.DefaultConfig(),
	}
}

// FromEnv overlays SHELFSCAN_* environment variables on the defaults.
func FromEnv() *Config {
	cfg := DefaultConfig()

	cfg.DataDir = getEnv("SHELFSCAN_DATA_DIR", cfg.DataDir)
	cfg.PageCacheSize = getEnvInt("SHELFSCAN_PAGE_CACHE", cfg.PageCacheSize)

	cfg.WebClientCfg.Backend = getEnv("SHELFSCAN_WEBCLIENT", cfg.WebClientCfg.Backend)
	cfg.WebClientCfg.Timeout = getEnvDuration("SHELFSCAN_HTTP_TIMEOUT", cfg.WebClientCfg.Timeout)

	cfg.AnalyzerCfg.PageInterval = getEnvDuration("SHELFSCAN_PAGE_INTERVAL", cfg.AnalyzerCfg.PageInterval)

	cfg.GenAICfg.APIKey = getEnv("OPENAI_API_KEY", cfg.GenAICfg.APIKey)
	cfg.GenAICfg.BaseURL = getEnv("SHELFSCAN_MODEL_BASE_URL", cfg.GenAICfg.BaseURL)
	cfg.GenAICfg.Model = getEnv("SHELFSCAN_MODEL", cfg.GenAICfg.Model)
	cfg.GenAICfg.VisionModel = getEnv("SHELFSCAN_VISION_MODEL", cfg.GenAICfg.VisionModel)

	// SHELFSCAN_AUTH_TOKEN grants a single static token mapped to a single
	// user; multi-user deployments provide their own AuthProvider.
	if token := os.Getenv("SHELFSCAN_AUTH_TOKEN"); token != "" {
		cfg.AuthTokens = map[string]session.User{
			token: {ID: getEnv("SHELFSCAN_AUTH_USER", "default"), Name: "Default user"},
		}
	}

	return cfg
}

// ExpandDataDir resolves a leading ~ in DataDir.
func (c *Config) ExpandDataDir() error {
	if len(c.DataDir) > 0 && c.DataDir[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		c.DataDir = filepath.Join(home, c.DataDir[1:])
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
