package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env            string
	HTTPAddr       string
	SSHAddr        string
	SSHHostKey     string
	CORSOrigin     string
	StaticDir      string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	LeaderboardMax int

	GlobalReadTimeout   time.Duration
	GlobalProbeTimeout  time.Duration
	GlobalProbeInterval time.Duration
	FrameInterval       time.Duration

	WSReadLimit    int64
	WSPingInterval time.Duration
}

func Load() (*Config, error) {
	env := getenv("ENV", "development")

	// Load .env.{ENV} first, then .env as fallback
	loadEnvFile(".env." + env)
	loadEnvFile(".env")

	cfg := &Config{
		Env:            env,
		HTTPAddr:       getenv("HTTP_ADDR", ":3002"),
		SSHAddr:        getenv("SSH_ADDR", ":2222"),
		SSHHostKey:     getenv("SSH_HOST_KEY", ".ssh/spacedog_ed25519"),
		CORSOrigin:     getenv("CORS_ORIGIN", "*"),
		StaticDir:      getenv("STATIC_DIR", "dist"),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		RedisAddr:      getenv("REDIS_ADDR", ""),
		RedisPassword:  getenv("REDIS_PASSWORD", ""),
		RedisDB:        getenvInt("REDIS_DB", 0),
		LeaderboardMax: getenvInt("LEADERBOARD_SIZE", 10),

		GlobalReadTimeout:   time.Duration(getenvInt("GLOBAL_READ_TIMEOUT_MS", 10000)) * time.Millisecond,
		GlobalProbeTimeout:  time.Duration(getenvInt("GLOBAL_PROBE_TIMEOUT_MS", 5000)) * time.Millisecond,
		GlobalProbeInterval: time.Duration(getenvInt("GLOBAL_PROBE_INTERVAL_SEC", 30)) * time.Second,
		FrameInterval:       time.Duration(getenvInt("FRAME_INTERVAL_MS", 16)) * time.Millisecond,

		WSReadLimit:    int64(getenvInt("WS_READ_LIMIT", 4096)),
		WSPingInterval: time.Duration(getenvInt("WS_PING_INTERVAL_SEC", 30)) * time.Second,
	}

	if cfg.LeaderboardMax <= 0 {
		return nil, fmt.Errorf("LEADERBOARD_SIZE must be positive")
	}
	if cfg.GlobalReadTimeout <= 0 || cfg.GlobalProbeTimeout <= 0 || cfg.GlobalProbeInterval <= 0 {
		return nil, fmt.Errorf("global store timeouts must be positive")
	}
	if cfg.FrameInterval <= 0 {
		return nil, fmt.Errorf("FRAME_INTERVAL_MS must be positive")
	}

	return cfg, nil
}

// GlobalEnabled reports whether a global score store is configured.
func (c *Config) GlobalEnabled() bool { return c.DatabaseURL != "" }

// RedisEnabled reports whether profile data and the leaderboard live in Redis.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// loadEnvFile parses a KEY=VALUE file and sets any keys not already present in os env.
func loadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		val = strings.Trim(val, `"'`)
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, val)
		}
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
