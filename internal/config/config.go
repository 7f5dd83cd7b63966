package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all pipeline configuration settings
type Config struct {
	// Queue ledger storage
	Queue QueueConfig `yaml:"queue"`

	// Article store (read-only)
	Articles ArticlesConfig `yaml:"articles"`

	// Graph store
	Graph GraphConfig `yaml:"graph"`

	// Entity extractor
	Extractor ExtractorConfig `yaml:"extractor"`

	// Worker/dispatcher settings
	Sync SyncConfig `yaml:"sync"`
}

type QueueConfig struct {
	Driver string `yaml:"driver"` // "sqlite3", "pgx"
	DSN    string `yaml:"dsn"`
}

// ArticlesConfig points at the publishing database. It is always a
// separate connection from the queue and the graph: the pipeline must
// never share a transaction scope with article publishing.
type ArticlesConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type GraphConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type ExtractorConfig struct {
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second
}

type SyncConfig struct {
	Enabled      bool          `yaml:"enabled"` // static kill-switch default
	PollInterval time.Duration `yaml:"poll_interval"`
	MergeTimeout time.Duration `yaml:"merge_timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	AliasPath    string        `yaml:"alias_path"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Queue: QueueConfig{
			Driver: "sqlite3",
			DSN:    filepath.Join(homeDir, ".newsgraph", "queue.db"),
		},
		Articles: ArticlesConfig{
			Driver: "sqlite3",
			DSN:    filepath.Join(homeDir, ".newsgraph", "news.db"),
		},
		Graph: GraphConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Extractor: ExtractorConfig{
			Model:     "gpt-4o-mini",
			Timeout:   30 * time.Second,
			RateLimit: 1,
		},
		Sync: SyncConfig{
			Enabled:      true,
			PollInterval: 10 * time.Second,
			MergeTimeout: 60 * time.Second,
			MaxRetries:   3,
			AliasPath:    "configs/aliases.yaml",
		},
	}
}

// Load loads configuration from file with environment overrides
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("queue", cfg.Queue)
	v.SetDefault("articles", cfg.Articles)
	v.SetDefault("graph", cfg.Graph)
	v.SetDefault("extractor", cfg.Extractor)
	v.SetDefault("sync", cfg.Sync)

	v.SetEnvPrefix("NEWSGRAPH")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".newsgraph")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".newsgraph"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".newsgraph", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	// Queue configuration
	if driver := os.Getenv("QUEUE_DRIVER"); driver != "" {
		cfg.Queue.Driver = driver
	}
	if dsn := os.Getenv("QUEUE_DSN"); dsn != "" {
		cfg.Queue.DSN = expandPath(dsn)
	}

	// Article store configuration
	if driver := os.Getenv("ARTICLES_DRIVER"); driver != "" {
		cfg.Articles.Driver = driver
	}
	if dsn := os.Getenv("ARTICLES_DSN"); dsn != "" {
		cfg.Articles.DSN = expandPath(dsn)
	}

	// Graph store configuration
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Graph.URI = uri
	}
	if user := os.Getenv("NEO4J_USERNAME"); user != "" {
		cfg.Graph.Username = user
	}
	if password := os.Getenv("NEO4J_PASSWORD"); password != "" {
		cfg.Graph.Password = password
	}
	if database := os.Getenv("NEO4J_DATABASE"); database != "" {
		cfg.Graph.Database = database
	}

	// Extractor configuration
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Extractor.APIKey = key
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.Extractor.Model = model
	}
	if timeout := os.Getenv("EXTRACTION_TIMEOUT_SECONDS"); timeout != "" {
		if seconds, err := strconv.Atoi(timeout); err == nil {
			cfg.Extractor.Timeout = time.Duration(seconds) * time.Second
		}
	}

	// Sync configuration
	if enabled := os.Getenv("SYNC_ENABLED"); enabled != "" {
		cfg.Sync.Enabled = enabled == "true"
	}
	if interval := os.Getenv("SYNC_POLL_INTERVAL_SECONDS"); interval != "" {
		if seconds, err := strconv.Atoi(interval); err == nil {
			cfg.Sync.PollInterval = time.Duration(seconds) * time.Second
		}
	}
	if timeout := os.Getenv("MERGE_TIMEOUT_SECONDS"); timeout != "" {
		if seconds, err := strconv.Atoi(timeout); err == nil {
			cfg.Sync.MergeTimeout = time.Duration(seconds) * time.Second
		}
	}
	if retries := os.Getenv("SYNC_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			cfg.Sync.MaxRetries = n
		}
	}
	if path := os.Getenv("ALIAS_TABLE_PATH"); path != "" {
		cfg.Sync.AliasPath = expandPath(path)
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
