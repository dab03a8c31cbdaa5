// Package config loads amanmem configuration from defaults, the user config
// file, the project .amanmem.yaml and AMANMEM_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfigFile is the per-project config file name.
const ProjectConfigFile = ".amanmem.yaml"

// DataDirName is the default data directory, relative to the project root.
const DataDirName = ".amanmem"

// Config is the complete amanmem configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Project    ProjectConfig    `yaml:"project" json:"project"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Docs       DocsConfig       `yaml:"docs" json:"docs"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// ProjectConfig identifies the project and where its data lives.
type ProjectConfig struct {
	// Name is the default project for every operation.
	Name string `yaml:"name,omitempty" json:"name"`
	// Path is the project root. Filled by Load when empty.
	Path string `yaml:"path,omitempty" json:"path"`
	// DataDir holds memory.db and vectors/. Relative paths resolve against Path.
	DataDir string `yaml:"data_dir,omitempty" json:"data_dir"`
}

// SearchConfig tunes retrieval.
type SearchConfig struct {
	// VectorWeight is w in combined = v*w + k*(1-w).
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	// OverfetchMultiplier widens vector retrieval before project filtering.
	OverfetchMultiplier int `yaml:"overfetch_multiplier" json:"overfetch_multiplier"`
	// KeywordBackend is "sqlite" (FTS5) or "bleve".
	KeywordBackend     string  `yaml:"keyword_backend" json:"keyword_backend"`
	DefaultLimit       int     `yaml:"default_limit" json:"default_limit"`
	DefaultTable       string  `yaml:"default_table" json:"default_table"`
	DuplicateThreshold float64 `yaml:"duplicate_threshold" json:"duplicate_threshold"`
	AnalyzerCacheSize  int     `yaml:"analyzer_cache_size" json:"analyzer_cache_size"`
}

// EmbeddingsConfig selects the embedding model.
type EmbeddingsConfig struct {
	// ModelKey names the model; built-in keys are static-384, static-768
	// and nomic-embed-text. Other keys are defined by Provider/Model/Dimensions.
	ModelKey   string `yaml:"model_key" json:"model_key"`
	Provider   string `yaml:"provider,omitempty" json:"provider"`
	Model      string `yaml:"model,omitempty" json:"model"`
	Dimensions int    `yaml:"dimensions,omitempty" json:"dimensions"`
	OllamaHost string `yaml:"ollama_host,omitempty" json:"ollama_host"`
	// CacheSize bounds the embedding LRU. 0 disables caching.
	CacheSize  int  `yaml:"cache_size" json:"cache_size"`
	PullModels bool `yaml:"pull_models" json:"pull_models"`
}

// StorageConfig tunes SQLite.
type StorageConfig struct {
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// DocsConfig lists documentation sources for the doc indexer.
type DocsConfig struct {
	Dirs          []string `yaml:"dirs" json:"dirs"`
	WatchDebounce string   `yaml:"watch_debounce" json:"watch_debounce"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			VectorWeight:        0.5,
			OverfetchMultiplier: 2,
			KeywordBackend:      "sqlite",
			DefaultLimit:        10,
			DefaultTable:        "documentation",
			DuplicateThreshold:  0.7,
			AnalyzerCacheSize:   512,
		},
		Embeddings: EmbeddingsConfig{
			ModelKey:   "static-384",
			OllamaHost: "http://localhost:11434",
			CacheSize:  1000,
			PullModels: true,
		},
		Storage: StorageConfig{
			SQLiteCacheMB: 16,
		},
		Docs: DocsConfig{
			WatchDebounce: "500ms",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns $XDG_CONFIG_HOME/amanmem/config.yaml,
// falling back to ~/.config/amanmem/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanmem", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "amanmem", "config.yaml")
}

// Load resolves configuration for the project containing dir.
// Precedence: defaults < user config < project config < environment.
func Load(dir string) (*Config, error) {
	root, err := FindProjectRoot(dir)
	if err != nil {
		return nil, err
	}

	cfg := NewConfig()

	if path := GetUserConfigPath(); path != "" && fileExists(path) {
		user, err := readYAML(path)
		if err != nil {
			return nil, fmt.Errorf("user config: %w", err)
		}
		cfg.mergeWith(user)
	}

	for _, name := range []string{ProjectConfigFile, ".amanmem.yml"} {
		path := filepath.Join(root, name)
		if !fileExists(path) {
			continue
		}
		project, err := readYAML(path)
		if err != nil {
			return nil, fmt.Errorf("project config: %w", err)
		}
		cfg.mergeWith(project)
		break
	}

	cfg.applyEnvOverrides()
	cfg.resolveProject(root)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &c, nil
}

// mergeWith copies every non-zero field of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Project.Name != "" {
		c.Project.Name = other.Project.Name
	}
	if other.Project.Path != "" {
		c.Project.Path = other.Project.Path
	}
	if other.Project.DataDir != "" {
		c.Project.DataDir = other.Project.DataDir
	}

	// vector_weight 0 is meaningful but indistinguishable from unset in YAML;
	// use AMANMEM_VECTOR_WEIGHT=0 for pure keyword fusion.
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.OverfetchMultiplier != 0 {
		c.Search.OverfetchMultiplier = other.Search.OverfetchMultiplier
	}
	if other.Search.KeywordBackend != "" {
		c.Search.KeywordBackend = other.Search.KeywordBackend
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.DefaultTable != "" {
		c.Search.DefaultTable = other.Search.DefaultTable
	}
	if other.Search.DuplicateThreshold != 0 {
		c.Search.DuplicateThreshold = other.Search.DuplicateThreshold
	}
	if other.Search.AnalyzerCacheSize != 0 {
		c.Search.AnalyzerCacheSize = other.Search.AnalyzerCacheSize
	}

	if other.Embeddings.ModelKey != "" {
		c.Embeddings.ModelKey = other.Embeddings.ModelKey
	}
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Storage.SQLiteCacheMB != 0 {
		c.Storage.SQLiteCacheMB = other.Storage.SQLiteCacheMB
	}

	if len(other.Docs.Dirs) > 0 {
		c.Docs.Dirs = other.Docs.Dirs
	}
	if other.Docs.WatchDebounce != "" {
		c.Docs.WatchDebounce = other.Docs.WatchDebounce
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies AMANMEM_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMANMEM_PROJECT"); v != "" {
		c.Project.Name = v
	}
	if v := os.Getenv("AMANMEM_DATA_DIR"); v != "" {
		c.Project.DataDir = v
	}
	if v := os.Getenv("AMANMEM_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("AMANMEM_OVERFETCH"); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m > 0 {
			c.Search.OverfetchMultiplier = m
		}
	}
	if v := os.Getenv("AMANMEM_KEYWORD_BACKEND"); v != "" {
		c.Search.KeywordBackend = v
	}
	if v := os.Getenv("AMANMEM_MODEL_KEY"); v != "" {
		c.Embeddings.ModelKey = v
	}
	if v := os.Getenv("AMANMEM_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("AMANMEM_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("AMANMEM_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("AMANMEM_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// resolveProject fills project name, path and data dir from the root.
func (c *Config) resolveProject(root string) {
	if c.Project.Path == "" {
		c.Project.Path = root
	}
	if c.Project.Name == "" {
		c.Project.Name = filepath.Base(c.Project.Path)
	}
	if c.Project.DataDir == "" {
		c.Project.DataDir = DataDirName
	}
	if !filepath.IsAbs(c.Project.DataDir) {
		c.Project.DataDir = filepath.Join(c.Project.Path, c.Project.DataDir)
	}
	if len(c.Docs.Dirs) == 0 {
		c.Docs.Dirs = DiscoverDocsDirs(c.Project.Path)
	}
}

// DatabasePath is the StructuredStore file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Project.DataDir, "memory.db")
}

// VectorDir holds one persisted graph per table.
func (c *Config) VectorDir() string {
	return filepath.Join(c.Project.DataDir, "vectors")
}

// KeywordDir holds bleve indexes when keyword_backend is bleve.
func (c *Config) KeywordDir() string {
	return filepath.Join(c.Project.DataDir, "keyword")
}

// WatchDebounce parses docs.watch_debounce, defaulting to 500ms.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Docs.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// FindProjectRoot walks up from startDir looking for .git or a project
// config file. Without either, startDir itself is the root.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	current := absDir
	for {
		if dirExists(filepath.Join(current, ".git")) ||
			fileExists(filepath.Join(current, ProjectConfigFile)) ||
			fileExists(filepath.Join(current, ".amanmem.yml")) {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

// DiscoverDocsDirs finds documentation sources relative to dir.
func DiscoverDocsDirs(dir string) []string {
	var found []string
	for _, d := range []string{"docs", "doc"} {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}
	for _, f := range []string{"README.md", "readme.md", "README.markdown"} {
		if fileExists(filepath.Join(dir, f)) {
			found = append(found, f)
			break
		}
	}
	return found
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("search.vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}
	if c.Search.OverfetchMultiplier < 1 {
		return fmt.Errorf("search.overfetch_multiplier must be at least 1, got %d", c.Search.OverfetchMultiplier)
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.DuplicateThreshold < 0 || c.Search.DuplicateThreshold > 1 {
		return fmt.Errorf("search.duplicate_threshold must be between 0 and 1, got %f", c.Search.DuplicateThreshold)
	}

	switch strings.ToLower(c.Search.KeywordBackend) {
	case "sqlite", "bleve":
	default:
		return fmt.Errorf("search.keyword_backend must be 'sqlite' or 'bleve', got %s", c.Search.KeywordBackend)
	}

	if c.Embeddings.ModelKey == "" {
		return fmt.Errorf("embeddings.model_key must not be empty")
	}
	if p := strings.ToLower(c.Embeddings.Provider); p != "" && p != "static" && p != "ollama" {
		return fmt.Errorf("embeddings.provider must be 'static', 'ollama' or empty, got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}

	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
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
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
