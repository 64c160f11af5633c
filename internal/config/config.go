package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete File Compass configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Chunk      ChunkConfig      `yaml:"chunk" json:"chunk"`
	Query      QueryConfig      `yaml:"query" json:"query"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig configures which paths the scanner includes and excludes.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
	// DataDir overrides the resolved data directory (default:
	// $COMPASS_DATA_DIR or ~/.file-compass/<project-hash>).
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// ChunkConfig configures chunk sizing thresholds shared by all chunker
// strategies (AST, heading, sliding-window).
type ChunkConfig struct {
	MaxTokens    int `yaml:"max_tokens" json:"max_tokens"`
	OverlapRatio int `yaml:"overlap_ratio_pct" json:"overlap_ratio_pct"`
	MinTokens    int `yaml:"min_tokens" json:"min_tokens"`
}

// QueryConfig configures the query executor.
type QueryConfig struct {
	// OverfetchMultiplier is how many candidates the vector index returns
	// for every requested result, before metadata filtering narrows them.
	OverfetchMultiplier int `yaml:"overfetch_multiplier" json:"overfetch_multiplier"`
	MaxResults          int `yaml:"max_results" json:"max_results"`
}

// EmbeddingsConfig configures the embedding service client.
type EmbeddingsConfig struct {
	Endpoint   string        `yaml:"endpoint" json:"endpoint"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// IndexConfig configures the HNSW vector index and build concurrency.
type IndexConfig struct {
	Workers       int    `yaml:"workers" json:"workers"`
	M             int    `yaml:"hnsw_m" json:"hnsw_m"`
	EfSearch      int    `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// ServerConfig configures the MCP server transport.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// defaultExcludePatterns are always excluded from scans.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Chunk: ChunkConfig{
			MaxTokens:    512,
			OverlapRatio: 15,
			MinTokens:    100,
		},
		Query: QueryConfig{
			OverfetchMultiplier: 3,
			MaxResults:          20,
		},
		Embeddings: EmbeddingsConfig{
			Endpoint:   "http://localhost:11434/api/embed",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			BatchSize:  32,
			Timeout:    30 * time.Second,
		},
		Index: IndexConfig{
			Workers:       runtime.NumCPU(),
			M:             16,
			EfSearch:      20,
			WatchDebounce: "500ms",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file,
// following the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/file-compass/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/file-compass/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "file-compass", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "file-compass", "config.yaml")
	}
	return filepath.Join(home, ".config", "file-compass", "config.yaml")
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load resolves configuration for the project rooted at dir, applying
// layers in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/file-compass/config.yaml)
//  3. Project config (.compass.yaml in dir)
//  4. Environment variables (COMPASS_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .compass.yaml or .compass.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".compass.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".compass.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}

	if other.Chunk.MaxTokens != 0 {
		c.Chunk.MaxTokens = other.Chunk.MaxTokens
	}
	if other.Chunk.OverlapRatio != 0 {
		c.Chunk.OverlapRatio = other.Chunk.OverlapRatio
	}
	if other.Chunk.MinTokens != 0 {
		c.Chunk.MinTokens = other.Chunk.MinTokens
	}

	if other.Query.OverfetchMultiplier != 0 {
		c.Query.OverfetchMultiplier = other.Query.OverfetchMultiplier
	}
	if other.Query.MaxResults != 0 {
		c.Query.MaxResults = other.Query.MaxResults
	}

	if other.Embeddings.Endpoint != "" {
		c.Embeddings.Endpoint = other.Embeddings.Endpoint
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}

	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}
	if other.Index.M != 0 {
		c.Index.M = other.Index.M
	}
	if other.Index.EfSearch != 0 {
		c.Index.EfSearch = other.Index.EfSearch
	}
	if other.Index.WatchDebounce != "" {
		c.Index.WatchDebounce = other.Index.WatchDebounce
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies COMPASS_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("COMPASS_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("COMPASS_EMBEDDINGS_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("COMPASS_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("COMPASS_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("COMPASS_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("COMPASS_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Query.MaxResults = n
		}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Chunk.MaxTokens <= 0 {
		return fmt.Errorf("chunk.max_tokens must be positive, got %d", c.Chunk.MaxTokens)
	}
	if c.Chunk.MinTokens < 0 {
		return fmt.Errorf("chunk.min_tokens must be non-negative, got %d", c.Chunk.MinTokens)
	}
	if c.Query.MaxResults < 0 {
		return fmt.Errorf("query.max_results must be non-negative, got %d", c.Query.MaxResults)
	}
	if c.Query.OverfetchMultiplier < 1 {
		return fmt.Errorf("query.overfetch_multiplier must be at least 1, got %d", c.Query.OverfetchMultiplier)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// FindProjectRoot walks up from startDir looking for a .git directory or
// .compass.yaml/.yml file, returning startDir itself if neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".compass.yaml")) ||
			fileExists(filepath.Join(currentDir, ".compass.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// ResolveDataDir returns the directory where File Compass stores its
// metadata database, vector index, quick index, and Merkle state for the
// project rooted at root.
//
// Precedence:
//  1. COMPASS_DATA_DIR environment variable, used verbatim.
//  2. cfg.Paths.DataDir, if set in the project/user config.
//  3. ~/.file-compass/<project-hash>, where project-hash is the first 16
//     hex characters of the SHA-256 digest of root's absolute path. Keeping
//     index data outside the project tree means a read-only checkout never
//     needs a write-access carve-out for it.
func ResolveDataDir(cfg *Config, root string) (string, error) {
	if v := os.Getenv("COMPASS_DATA_DIR"); v != "" {
		return v, nil
	}
	if cfg != nil && cfg.Paths.DataDir != "" {
		return cfg.Paths.DataDir, nil
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}

	return filepath.Join(home, ".file-compass", projectHash(absRoot)), nil
}

// projectHash derives a stable, filesystem-safe directory name from a
// project's absolute path.
func projectHash(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])[:16]
}

// EnsureDataDir creates dataDir (and any parents) if it does not exist.
func EnsureDataDir(dataDir string) error {
	return os.MkdirAll(dataDir, 0o755)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
