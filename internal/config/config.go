package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the retrieval API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Stores    StoresConfig    `yaml:"stores"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Index     IndexConfig     `yaml:"index"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StoresConfig holds the named vector stores and names the default one.
type StoresConfig struct {
	Default          string        `yaml:"default"`
	ReadinessTimeout int           `yaml:"readiness_timeout_sec"`
	Backends         []StoreConfig `yaml:"backends"`
}

// StoreConfig describes one named vector store.
type StoreConfig struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"` // redis, qdrant

	// redis driver
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`

	// qdrant driver
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
}

// IndexConfig holds HNSW index settings for the redis driver.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
}

// ChunkingConfig holds text splitting settings.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Stores.ReadinessTimeout <= 0 {
		c.Stores.ReadinessTimeout = 10
	}
	for i := range c.Stores.Backends {
		if c.Stores.Backends[i].Driver == "" {
			c.Stores.Backends[i].Driver = "redis"
		}
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Chunking.ChunkSize <= 0 {
		c.Chunking.ChunkSize = 800
	}
	if c.Chunking.ChunkOverlap < 0 {
		c.Chunking.ChunkOverlap = 100
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 128
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Stores.Backends) == 0 {
		return fmt.Errorf("stores.backends is required")
	}
	if c.Stores.Default == "" {
		return fmt.Errorf("stores.default is required")
	}

	seen := make(map[string]struct{}, len(c.Stores.Backends))
	for _, s := range c.Stores.Backends {
		if s.Name == "" {
			return fmt.Errorf("stores.backends entries must have a name")
		}
		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("duplicate store name %q", s.Name)
		}
		seen[s.Name] = struct{}{}

		switch s.Driver {
		case "redis":
			if len(s.Addrs) == 0 {
				return fmt.Errorf("store %q: addrs is required for the redis driver", s.Name)
			}
		case "qdrant":
			if s.Addr == "" {
				return fmt.Errorf("store %q: addr is required for the qdrant driver", s.Name)
			}
		default:
			return fmt.Errorf("store %q: unknown driver %q", s.Name, s.Driver)
		}
	}

	if _, ok := seen[c.Stores.Default]; !ok {
		return fmt.Errorf("stores.default %q does not match any configured store", c.Stores.Default)
	}

	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
