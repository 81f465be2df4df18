package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete NeuralFS engine configuration.
type Config struct {
	Version            int                `yaml:"version" json:"version"`
	MonitoredDirectories []string         `yaml:"monitored_directories" json:"monitored_directories"`
	Paths              PathsConfig        `yaml:"paths" json:"paths"`
	Search             SearchConfig       `yaml:"search" json:"search"`
	Embeddings         EmbeddingsConfig   `yaml:"embeddings" json:"embeddings"`
	Cloud              CloudConfig        `yaml:"cloud" json:"cloud"`
	Performance        PerformanceConfig  `yaml:"performance" json:"performance"`
	Privacy            PrivacyConfig      `yaml:"privacy" json:"privacy"`
	UI                 UIConfig           `yaml:"ui" json:"ui"`
	Server             ServerConfig       `yaml:"server" json:"server"`
	Sessions           SessionsConfig     `yaml:"sessions" json:"sessions"`
	Compaction         CompactionConfig   `yaml:"compaction" json:"compaction"`
	Watchdog           WatchdogConfig     `yaml:"watchdog" json:"watchdog"`
}

// PathsConfig configures which paths the indexer includes and excludes,
// independent of MonitoredDirectories which selects entire trees to watch.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// SearchConfig configures the hybrid search engine.
// Weights are query-type-dependent at query time; these are the defaults
// used for the "mixed" query type and as a fallback when classification
// is disabled.
type SearchConfig struct {
	// BM25Weight is the default sparse-retrieval weight (0.0-1.0).
	BM25Weight float64 `yaml:"bm25_weight" json:"bm25_weight"`

	// SemanticWeight is the default dense-retrieval weight (0.0-1.0).
	// Must sum to 1.0 with BM25Weight.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// FilenameMatchBoost multiplies the score of results whose filename
	// matches the query. Default: 1.5.
	FilenameMatchBoost float64 `yaml:"filename_match_boost" json:"filename_match_boost"`

	// ExactMatchBoost multiplies the score of exact content matches.
	// Default: 2.0.
	ExactMatchBoost float64 `yaml:"exact_match_boost" json:"exact_match_boost"`

	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxResults   int `yaml:"max_results" json:"max_results"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider             string        `yaml:"provider" json:"provider"`
	Model                string        `yaml:"model" json:"model"`
	Dimensions           int           `yaml:"dimensions" json:"dimensions"`
	BatchSize            int           `yaml:"batch_size" json:"batch_size"`
	ModelDownloadTimeout time.Duration `yaml:"model_download_timeout" json:"model_download_timeout"`

	// MLXEndpoint is the MLX server endpoint on Apple Silicon.
	MLXEndpoint string `yaml:"mlx_endpoint" json:"mlx_endpoint"`
	MLXModel    string `yaml:"mlx_model" json:"mlx_model"`

	// OllamaHost is the local Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// MemoryBudgetMB bounds the resident model set before LRU eviction
	// kicks in.
	MemoryBudgetMB int `yaml:"memory_budget_mb" json:"memory_budget_mb"`
}

// CloudConfig configures optional remote inference.
type CloudConfig struct {
	// Enabled opts into remote dispatch. Disabled engines run local-only.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Endpoint is the remote inference API base URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// APIKey authenticates to the remote endpoint. Never logged.
	APIKey string `yaml:"api_key" json:"-"`
	// Provider selects the remote backend adapter (e.g. "openai", "anthropic").
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	// MonthlyCostLimit is the hard USD ceiling enforced by the cost tracker.
	// Default: 10.0.
	MonthlyCostLimit float64 `yaml:"monthly_cost_limit" json:"monthly_cost_limit"`
	// RequestsPerMinute bounds the token-bucket rate limiter.
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	// TimeoutMS is the per-request dispatch timeout. Default: 500.
	TimeoutMS int `yaml:"timeout_ms" json:"timeout_ms"`
}

// PerformanceConfig configures resource budgets for indexing and inference.
type PerformanceConfig struct {
	MaxFiles         int    `yaml:"max_files" json:"max_files"`
	IndexingThreads  int    `yaml:"indexing_threads" json:"indexing_threads"`
	WatchDebounce    string `yaml:"watch_debounce" json:"watch_debounce"`
	CacheSize        int    `yaml:"cache_size" json:"cache_size"`
	MaxVRAMMB        int    `yaml:"max_vram_mb" json:"max_vram_mb"`
	EmbeddingBatchSize int  `yaml:"embedding_batch_size" json:"embedding_batch_size"`
	EnableCUDA       bool   `yaml:"enable_cuda" json:"enable_cuda"`
	// FastInferenceMode prefers the local model even when cloud is enabled,
	// only escalating on low local confidence.
	FastInferenceMode bool `yaml:"fast_inference_mode" json:"fast_inference_mode"`
	SQLiteCacheMB     int  `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// PrivacyConfig configures data handling boundaries: remote-prompt
// anonymization and the sensitive-tag lexicon.
type PrivacyConfig struct {
	// PrivacyMode forces anonymization on every remote dispatch regardless
	// of per-request opt-out.
	PrivacyMode         bool     `yaml:"privacy_mode" json:"privacy_mode"`
	ExcludedDirectories []string `yaml:"excluded_directories" json:"excluded_directories"`
	ExcludedPatterns    []string `yaml:"excluded_patterns" json:"excluded_patterns"`
	// SensitiveTags is the configurable lexicon of tag names that are
	// never auto-confirmed.
	SensitiveTags []string `yaml:"sensitive_tags" json:"sensitive_tags"`
	Telemetry     bool     `yaml:"telemetry" json:"telemetry"`
}

// UIConfig configures the terminal progress view and asset stream
// rendering defaults. There is no GUI in this process; the desktop shell
// consumes these values over the command surface.
type UIConfig struct {
	Theme             string `yaml:"theme" json:"theme"`
	Language          string `yaml:"language" json:"language"`
	EnableAnimations  bool   `yaml:"enable_animations" json:"enable_animations"`
	ShowExtensions    bool   `yaml:"show_extensions" json:"show_extensions"`
	DefaultView       string `yaml:"default_view" json:"default_view"`
	ThumbnailSize     string `yaml:"thumbnail_size" json:"thumbnail_size"`
}

// ServerConfig configures the command router / MCP server and asset stream.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	Port      int    `yaml:"port" json:"port"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	// AssetStreamPort is the loopback-only HTTP asset server port.
	AssetStreamPort int `yaml:"asset_stream_port" json:"asset_stream_port"`
}

// SessionsConfig configures session tracking for relation inference.
type SessionsConfig struct {
	StoragePath string `yaml:"storage_path" json:"storage_path"`
	AutoSave    bool   `yaml:"auto_save" json:"auto_save"`
	MaxSessions int    `yaml:"max_sessions" json:"max_sessions"`
	// TimeoutMinutes closes an idle session.
	TimeoutMinutes int `yaml:"timeout_minutes" json:"timeout_minutes"`
}

// CompactionConfig configures background maintenance of the vector index
// (HNSW tombstone reclamation) and BM25 segment merging.
type CompactionConfig struct {
	Enabled         bool    `yaml:"enabled" json:"enabled"`
	OrphanThreshold float64 `yaml:"orphan_threshold" json:"orphan_threshold"`
	MinOrphanCount  int     `yaml:"min_orphan_count" json:"min_orphan_count"`
	IdleTimeout     string  `yaml:"idle_timeout" json:"idle_timeout"`
	Cooldown        string  `yaml:"cooldown" json:"cooldown"`
}

// WatchdogConfig configures the out-of-process supervisor.
type WatchdogConfig struct {
	HeartbeatIntervalMS int `yaml:"heartbeat_interval_ms" json:"heartbeat_interval_ms"`
	HeartbeatTimeoutSecs int `yaml:"heartbeat_timeout_secs" json:"heartbeat_timeout_secs"`
	MaxRestartAttempts   int `yaml:"max_restart_attempts" json:"max_restart_attempts"`
	RestartCooldownSecs  int `yaml:"restart_cooldown_secs" json:"restart_cooldown_secs"`
}

// defaultExcludePatterns are always excluded from indexing.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/.neuralfs/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.tmp",
	"**/*.swp",
}

// defaultSensitiveTags are never auto-confirmed by the tag store. The
// lexicon is configurable data, not hardcoded logic; these are only the
// starting set.
var defaultSensitiveTags = []string{
	"financial", "medical", "password", "credential", "tax", "contract",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version:              1,
		MonitoredDirectories: []string{},
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Search: SearchConfig{
			BM25Weight:          0.4,
			SemanticWeight:      0.6,
			FilenameMatchBoost:  1.5,
			ExactMatchBoost:     2.0,
			ChunkSize:           1500,
			ChunkOverlap:        200,
			MaxResults:          20,
		},
		Embeddings: EmbeddingsConfig{
			Provider:             "",
			Model:                "qwen3-embedding:8b",
			Dimensions:           0,
			BatchSize:            32,
			ModelDownloadTimeout: 10 * time.Minute,
			MLXEndpoint:          "",
			MLXModel:             "",
			OllamaHost:           "",
			MemoryBudgetMB:       2048,
		},
		Cloud: CloudConfig{
			Enabled:           false,
			Endpoint:          "",
			APIKey:            "",
			Provider:          "",
			Model:             "",
			MonthlyCostLimit:  10.0,
			RequestsPerMinute: 20,
			TimeoutMS:         500,
		},
		Performance: PerformanceConfig{
			MaxFiles:           100000,
			IndexingThreads:    runtime.NumCPU(),
			WatchDebounce:      "200ms",
			CacheSize:          1000,
			MaxVRAMMB:          4096,
			EmbeddingBatchSize: 32,
			EnableCUDA:         false,
			FastInferenceMode:  true,
			SQLiteCacheMB:      64,
		},
		Privacy: PrivacyConfig{
			PrivacyMode:         false,
			ExcludedDirectories: nil,
			ExcludedPatterns:    nil,
			SensitiveTags:       defaultSensitiveTags,
			Telemetry:           false,
		},
		UI: UIConfig{
			Theme:            "dark",
			Language:         "zh-CN",
			EnableAnimations: true,
			ShowExtensions:   true,
			DefaultView:      "grid",
			ThumbnailSize:    "medium",
		},
		Server: ServerConfig{
			Transport:       "stdio",
			Port:            8765,
			LogLevel:        "info",
			AssetStreamPort: 47291,
		},
		Sessions: SessionsConfig{
			StoragePath:    defaultSessionsPath(),
			AutoSave:       true,
			MaxSessions:    20,
			TimeoutMinutes: 30,
		},
		Watchdog: WatchdogConfig{
			HeartbeatIntervalMS:  1000,
			HeartbeatTimeoutSecs: 5,
			MaxRestartAttempts:   3,
			RestartCooldownSecs:  10,
		},
		Compaction: CompactionConfig{
			Enabled:         true,
			OrphanThreshold: 0.2,
			MinOrphanCount:  100,
			IdleTimeout:     "30s",
			Cooldown:        "1h",
		},
	}
}

// defaultSessionsPath returns the default session storage path.
func defaultSessionsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".neuralfs", "sessions")
	}
	return filepath.Join(home, ".neuralfs", "sessions")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/neuralfs/config.yaml (if set)
//   - ~/.config/neuralfs/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "neuralfs", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "neuralfs", "config.yaml")
	}
	return filepath.Join(home, ".config", "neuralfs", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
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

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// Load loads configuration from the specified directory, applying
// configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/neuralfs/config.yaml)
//  3. Project config (.neuralfs.yaml in the monitored directory)
//  4. Environment variables (NEURALFS_*)
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

// loadFromFile attempts to load configuration from .neuralfs.yaml or .neuralfs.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".neuralfs.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".neuralfs.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
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
	if len(other.MonitoredDirectories) > 0 {
		c.MonitoredDirectories = other.MonitoredDirectories
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.FilenameMatchBoost != 0 {
		c.Search.FilenameMatchBoost = other.Search.FilenameMatchBoost
	}
	if other.Search.ExactMatchBoost != 0 {
		c.Search.ExactMatchBoost = other.Search.ExactMatchBoost
	}
	if other.Search.ChunkSize != 0 {
		c.Search.ChunkSize = other.Search.ChunkSize
	}
	if other.Search.ChunkOverlap != 0 {
		c.Search.ChunkOverlap = other.Search.ChunkOverlap
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
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
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.MLXEndpoint != "" {
		c.Embeddings.MLXEndpoint = other.Embeddings.MLXEndpoint
	}
	if other.Embeddings.MLXModel != "" {
		c.Embeddings.MLXModel = other.Embeddings.MLXModel
	}
	if other.Embeddings.MemoryBudgetMB != 0 {
		c.Embeddings.MemoryBudgetMB = other.Embeddings.MemoryBudgetMB
	}

	// Cloud: Enabled is boolean, merge whenever any cloud field was set.
	if other.Cloud.Enabled || other.Cloud.Endpoint != "" || other.Cloud.APIKey != "" {
		c.Cloud.Enabled = other.Cloud.Enabled
	}
	if other.Cloud.Endpoint != "" {
		c.Cloud.Endpoint = other.Cloud.Endpoint
	}
	if other.Cloud.APIKey != "" {
		c.Cloud.APIKey = other.Cloud.APIKey
	}
	if other.Cloud.Provider != "" {
		c.Cloud.Provider = other.Cloud.Provider
	}
	if other.Cloud.Model != "" {
		c.Cloud.Model = other.Cloud.Model
	}
	if other.Cloud.MonthlyCostLimit != 0 {
		c.Cloud.MonthlyCostLimit = other.Cloud.MonthlyCostLimit
	}
	if other.Cloud.RequestsPerMinute != 0 {
		c.Cloud.RequestsPerMinute = other.Cloud.RequestsPerMinute
	}
	if other.Cloud.TimeoutMS != 0 {
		c.Cloud.TimeoutMS = other.Cloud.TimeoutMS
	}

	if other.Performance.MaxFiles != 0 {
		c.Performance.MaxFiles = other.Performance.MaxFiles
	}
	if other.Performance.IndexingThreads != 0 {
		c.Performance.IndexingThreads = other.Performance.IndexingThreads
	}
	if other.Performance.WatchDebounce != "" {
		c.Performance.WatchDebounce = other.Performance.WatchDebounce
	}
	if other.Performance.CacheSize != 0 {
		c.Performance.CacheSize = other.Performance.CacheSize
	}
	if other.Performance.MaxVRAMMB != 0 {
		c.Performance.MaxVRAMMB = other.Performance.MaxVRAMMB
	}
	if other.Performance.EmbeddingBatchSize != 0 {
		c.Performance.EmbeddingBatchSize = other.Performance.EmbeddingBatchSize
	}
	if other.Performance.EnableCUDA {
		c.Performance.EnableCUDA = other.Performance.EnableCUDA
	}
	if other.Performance.SQLiteCacheMB != 0 {
		c.Performance.SQLiteCacheMB = other.Performance.SQLiteCacheMB
	}

	if other.Privacy.PrivacyMode {
		c.Privacy.PrivacyMode = other.Privacy.PrivacyMode
	}
	if len(other.Privacy.ExcludedDirectories) > 0 {
		c.Privacy.ExcludedDirectories = other.Privacy.ExcludedDirectories
	}
	if len(other.Privacy.ExcludedPatterns) > 0 {
		c.Privacy.ExcludedPatterns = other.Privacy.ExcludedPatterns
	}
	if len(other.Privacy.SensitiveTags) > 0 {
		c.Privacy.SensitiveTags = other.Privacy.SensitiveTags
	}
	if other.Privacy.Telemetry {
		c.Privacy.Telemetry = other.Privacy.Telemetry
	}

	if other.UI.Theme != "" {
		c.UI.Theme = other.UI.Theme
	}
	if other.UI.Language != "" {
		c.UI.Language = other.UI.Language
	}
	if other.UI.DefaultView != "" {
		c.UI.DefaultView = other.UI.DefaultView
	}
	if other.UI.ThumbnailSize != "" {
		c.UI.ThumbnailSize = other.UI.ThumbnailSize
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.AssetStreamPort != 0 {
		c.Server.AssetStreamPort = other.Server.AssetStreamPort
	}

	if other.Sessions.StoragePath != "" {
		c.Sessions.StoragePath = other.Sessions.StoragePath
	}
	if other.Sessions.StoragePath != "" {
		c.Sessions.AutoSave = other.Sessions.AutoSave
	}
	if other.Sessions.MaxSessions > 0 {
		c.Sessions.MaxSessions = other.Sessions.MaxSessions
	}
	if other.Sessions.TimeoutMinutes > 0 {
		c.Sessions.TimeoutMinutes = other.Sessions.TimeoutMinutes
	}

	if other.Compaction.OrphanThreshold != 0 || other.Compaction.MinOrphanCount != 0 ||
		other.Compaction.IdleTimeout != "" || other.Compaction.Cooldown != "" {
		c.Compaction.Enabled = other.Compaction.Enabled
	}
	if other.Compaction.OrphanThreshold != 0 {
		c.Compaction.OrphanThreshold = other.Compaction.OrphanThreshold
	}
	if other.Compaction.MinOrphanCount != 0 {
		c.Compaction.MinOrphanCount = other.Compaction.MinOrphanCount
	}
	if other.Compaction.IdleTimeout != "" {
		c.Compaction.IdleTimeout = other.Compaction.IdleTimeout
	}
	if other.Compaction.Cooldown != "" {
		c.Compaction.Cooldown = other.Compaction.Cooldown
	}

	if other.Watchdog.HeartbeatIntervalMS > 0 {
		c.Watchdog.HeartbeatIntervalMS = other.Watchdog.HeartbeatIntervalMS
	}
	if other.Watchdog.HeartbeatTimeoutSecs > 0 {
		c.Watchdog.HeartbeatTimeoutSecs = other.Watchdog.HeartbeatTimeoutSecs
	}
	if other.Watchdog.MaxRestartAttempts > 0 {
		c.Watchdog.MaxRestartAttempts = other.Watchdog.MaxRestartAttempts
	}
	if other.Watchdog.RestartCooldownSecs > 0 {
		c.Watchdog.RestartCooldownSecs = other.Watchdog.RestartCooldownSecs
	}
}

// applyEnvOverrides applies NEURALFS_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NEURALFS_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("NEURALFS_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}

	if v := os.Getenv("NEURALFS_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("NEURALFS_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("NEURALFS_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("NEURALFS_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("NEURALFS_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}

	if v := os.Getenv("NEURALFS_CLOUD_ENABLED"); v != "" {
		c.Cloud.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("NEURALFS_CLOUD_API_KEY"); v != "" {
		c.Cloud.APIKey = v
	}
	if v := os.Getenv("NEURALFS_CLOUD_MONTHLY_COST_LIMIT"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 {
			c.Cloud.MonthlyCostLimit = f
		}
	}

	if v := os.Getenv("NEURALFS_COMPACTION_ENABLED"); v != "" {
		c.Compaction.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("NEURALFS_PRIVACY_MODE"); v != "" {
		c.Privacy.PrivacyMode = strings.ToLower(v) == "true" || v == "1"
	}
}

// parseFloat64 parses a string to float64.
func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return fmt.Errorf("bm25_weight must be between 0 and 1, got %f", c.Search.BM25Weight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if sum := c.Search.BM25Weight + c.Search.SemanticWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("bm25_weight + semantic_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Search.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be non-negative, got %d", c.Search.ChunkSize)
	}

	if c.Embeddings.Provider != "" {
		validProviders := map[string]bool{"ollama": true, "mlx": true, "static": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'ollama', 'mlx', 'static', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	if c.Cloud.Enabled && c.Cloud.Endpoint == "" {
		return fmt.Errorf("cloud.endpoint must be set when cloud.enabled is true")
	}
	if c.Cloud.MonthlyCostLimit < 0 {
		return fmt.Errorf("cloud.monthly_cost_limit must be non-negative, got %f", c.Cloud.MonthlyCostLimit)
	}

	if c.Watchdog.MaxRestartAttempts < 0 {
		return fmt.Errorf("watchdog.max_restart_attempts must be non-negative, got %d", c.Watchdog.MaxRestartAttempts)
	}
	if c.Watchdog.HeartbeatIntervalMS <= 0 {
		return fmt.Errorf("watchdog.heartbeat_interval_ms must be positive, got %d", c.Watchdog.HeartbeatIntervalMS)
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

// WriteJSON writes the configuration snapshot the data directory carries
// as config.json. The api_key field is excluded by its json tag, so the
// snapshot never persists the credential outside the YAML source file.
func (c *Config) WriteJSON(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config snapshot: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// FindProjectRoot finds the project root by walking up from startDir looking
// for a .git directory or a .neuralfs.yaml/.yml file. Falls back to the
// absolute form of startDir if neither marker is found before the
// filesystem root.
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
		if fileExists(filepath.Join(currentDir, ".neuralfs.yaml")) ||
			fileExists(filepath.Join(currentDir, ".neuralfs.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}
