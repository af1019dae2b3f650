package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig holds all configuration for the crashd API server.
type ServerConfig struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
}

type HTTPConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// QueueConfig configures the worker-facing task queue surface. Basic auth
// is optional; when both values are empty the endpoints are open, matching
// trusted-network deployments.
type QueueConfig struct {
	BasicAuthUser     string
	BasicAuthPassword string
}

// WorkerConfig holds all configuration for the symbolication worker.
type WorkerConfig struct {
	ServerURL         string
	BasicAuthUser     string
	BasicAuthPassword string
	ToolPath          string
	ToolArgs          []string
	ToolTimeout       time.Duration
	RequestTimeout    time.Duration
	PollInterval      time.Duration // 0 = run one cycle and exit
	WorkDir           string
}

// LoadServer reads server configuration from environment variables and
// returns a validated config. Returns an error with a descriptive message
// if any required value is missing or invalid.
func LoadServer() (*ServerConfig, error) {
	cfg := &ServerConfig{
		HTTP: HTTPConfig{
			Port: envInt("CRASHD_PORT", 8080),
			Env:  envString("CRASHD_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			BasicAuthUser:     os.Getenv("CRASHD_QUEUE_USER"),
			BasicAuthPassword: os.Getenv("CRASHD_QUEUE_PASSWORD"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if (c.Queue.BasicAuthUser == "") != (c.Queue.BasicAuthPassword == "") {
		return fmt.Errorf("CRASHD_QUEUE_USER and CRASHD_QUEUE_PASSWORD must be set together")
	}
	return nil
}

// LoadWorker reads worker configuration from environment variables and
// returns a validated config.
func LoadWorker() (*WorkerConfig, error) {
	cfg := &WorkerConfig{
		ServerURL:         os.Getenv("CRASHD_SERVER_URL"),
		BasicAuthUser:     os.Getenv("CRASHD_QUEUE_USER"),
		BasicAuthPassword: os.Getenv("CRASHD_QUEUE_PASSWORD"),
		ToolPath:          os.Getenv("CRASHD_SYMBOLICATOR_PATH"),
		ToolArgs:          envList("CRASHD_SYMBOLICATOR_ARGS"),
		ToolTimeout:       envDuration("CRASHD_SYMBOLICATOR_TIMEOUT", 2*time.Minute),
		RequestTimeout:    envDuration("CRASHD_REQUEST_TIMEOUT", 30*time.Second),
		PollInterval:      envDuration("CRASHD_WORKER_POLL_INTERVAL", 0),
		WorkDir:           envString("CRASHD_WORKER_DIR", os.TempDir()),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *WorkerConfig) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("CRASHD_SERVER_URL is required")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("CRASHD_SERVER_URL must start with http:// or https://, got %q", c.ServerURL)
	}
	if c.ToolPath == "" {
		return fmt.Errorf("CRASHD_SYMBOLICATOR_PATH is required")
	}
	if (c.BasicAuthUser == "") != (c.BasicAuthPassword == "") {
		return fmt.Errorf("CRASHD_QUEUE_USER and CRASHD_QUEUE_PASSWORD must be set together")
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, " ")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
