// Package config provides configuration loading and structs for the MindLink server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Drive     DriveConfig     `yaml:"drive"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Vector    VectorConfig    `yaml:"vector"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Edit      EditConfig      `yaml:"edit"`
	Auth      AuthConfig      `yaml:"auth"`
	Progress  ProgressConfig  `yaml:"progress"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds paths for database and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// DriveConfig selects where the knowledge-base documents live.
// Provider is "google" (service account) or "local" (a directory tree).
type DriveConfig struct {
	Provider        string   `yaml:"provider"`
	CredentialsFile string   `yaml:"credentials_file"`
	RootFolderID    string   `yaml:"root_folder_id"`
	RootName        string   `yaml:"root_name"`
	LocalRoot       string   `yaml:"local_root"`
	Watch           bool     `yaml:"watch"`
	Extensions      []string `yaml:"extensions"`
}

// EmbeddingConfig holds embedder settings. Provider is "openai", "genai" or "mock".
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	CacheSize  int    `yaml:"cache_size"`
}

// LLMConfig holds chat model settings. Provider is "openai", "genai" or "static".
type LLMConfig struct {
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	APIKey          string  `yaml:"api_key"`
	BaseURL         string  `yaml:"base_url"`
	Temperature     float32 `yaml:"temperature"`
	MaxHistoryTurns int     `yaml:"max_history_turns"`
	// CondenseQuestions rewrites follow-ups into standalone questions before retrieval.
	CondenseQuestions bool `yaml:"condense_questions"`
}

// VectorConfig selects the vector index backend. Backend is "memory" or "pgvector".
type VectorConfig struct {
	Backend     string `yaml:"backend"`
	PostgresDSN string `yaml:"postgres_dsn"`
	Table       string `yaml:"table"`
}

// RetrievalConfig holds chunking and hybrid search settings.
type RetrievalConfig struct {
	ChunkSize      int      `yaml:"chunk_size"`
	ChunkOverlap   int      `yaml:"chunk_overlap"`
	Separators     []string `yaml:"separators"`
	TopK           int      `yaml:"top_k"`
	SemanticWeight float64  `yaml:"semantic_weight"`
	KeywordWeight  float64  `yaml:"keyword_weight"`
}

// EditConfig controls who may apply document edits.
type EditConfig struct {
	Enabled      *bool    `yaml:"enabled"`
	AllowedRoles []string `yaml:"allowed_roles"`
}

// EnabledOrDefault reports whether document edits are enabled; defaults to true when unset.
func (e *EditConfig) EnabledOrDefault() bool {
	if e.Enabled != nil {
		return *e.Enabled
	}
	return true
}

// AuthConfig holds session and e-mail verification settings.
type AuthConfig struct {
	SessionTTL      time.Duration `yaml:"session_ttl"`
	CookieName      string        `yaml:"cookie_name"`
	SecureCookie    bool          `yaml:"secure_cookie"`
	CodeTTL         time.Duration `yaml:"code_ttl"`
	BcryptCost      int           `yaml:"bcrypt_cost"`
	RequireVerified *bool         `yaml:"require_verified"`
	Mailer          string        `yaml:"mailer"`
	SMTP            SMTPConfig    `yaml:"smtp"`
}

// RequireVerifiedOrDefault reports whether login requires a verified e-mail; defaults to true.
func (a *AuthConfig) RequireVerifiedOrDefault() bool {
	if a.RequireVerified != nil {
		return *a.RequireVerified
	}
	return true
}

// SMTPConfig holds outgoing mail settings for verification codes.
type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ProgressConfig holds the inactivity check settings.
type ProgressConfig struct {
	InactivityDays  int `yaml:"inactivity_days"`
	InactivityScore int `yaml:"inactivity_score"`
}

// Load reads and parses the config file at path, applies environment overrides and defaults,
// and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnvOverrides(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	if cfg.Drive.CredentialsFile != "" {
		cfg.Drive.CredentialsFile = expandPath(cfg.Drive.CredentialsFile, configDir)
	}
	if cfg.Drive.LocalRoot != "" {
		cfg.Drive.LocalRoot = expandPath(cfg.Drive.LocalRoot, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnvOverrides fills secrets and deployment-specific values from the environment.
// Environment values win over the file.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.LLM.Provider == "" || cfg.LLM.Provider == "openai" {
			cfg.LLM.APIKey = v
		}
		if cfg.Embedding.Provider == "" || cfg.Embedding.Provider == "openai" {
			cfg.Embedding.APIKey = v
		}
	}
	gemini := os.Getenv("GEMINI_API_KEY")
	if gemini == "" {
		gemini = os.Getenv("GOOGLE_API_KEY")
	}
	if gemini != "" {
		if cfg.LLM.Provider == "genai" {
			cfg.LLM.APIKey = gemini
		}
		if cfg.Embedding.Provider == "genai" {
			cfg.Embedding.APIKey = gemini
		}
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Vector.PostgresDSN = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
		cfg.Drive.CredentialsFile = v
	}
	if v := os.Getenv("MINDLINK_DRIVE_FOLDER_ID"); v != "" {
		cfg.Drive.RootFolderID = v
	}
	if v := os.Getenv("MINDLINK_SMTP_PASSWORD"); v != "" {
		cfg.Auth.SMTP.Password = v
	}
}

// Validate rejects unknown providers and inconsistent settings.
func (c *Config) Validate() error {
	switch c.Drive.Provider {
	case "google":
		if c.Drive.RootFolderID == "" {
			return fmt.Errorf("drive.root_folder_id is required for the google provider")
		}
	case "local":
		if c.Drive.LocalRoot == "" {
			return fmt.Errorf("drive.local_root is required for the local provider")
		}
	default:
		return fmt.Errorf("unknown drive provider %q", c.Drive.Provider)
	}
	switch c.Embedding.Provider {
	case "openai", "genai", "mock":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.LLM.Provider {
	case "openai", "genai", "static":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Vector.Backend {
	case "memory":
	case "pgvector":
		if c.Vector.PostgresDSN == "" {
			return fmt.Errorf("vector.postgres_dsn is required for the pgvector backend")
		}
	default:
		return fmt.Errorf("unknown vector backend %q", c.Vector.Backend)
	}
	switch c.Auth.Mailer {
	case "log", "smtp":
	default:
		return fmt.Errorf("unknown mailer %q", c.Auth.Mailer)
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Retrieval.ChunkOverlap, c.Retrieval.ChunkSize)
	}
	if c.Progress.InactivityScore < 1 || c.Progress.InactivityScore > 5 {
		return fmt.Errorf("progress.inactivity_score must be between 1 and 5")
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
