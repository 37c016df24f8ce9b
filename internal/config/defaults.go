package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 5 * time.Minute
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/mindlink/data/db/mindlink.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/mindlink/data/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/mindlink/data/indices/vectors"
	}
	if cfg.Drive.Provider == "" {
		cfg.Drive.Provider = "google"
	}
	if cfg.Drive.RootName == "" {
		cfg.Drive.RootName = "empresa"
	}
	if cfg.Drive.Extensions == nil {
		cfg.Drive.Extensions = []string{".pdf", ".docx", ".xlsx"}
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "genai":
			cfg.Embedding.Model = "text-embedding-004"
		default:
			cfg.Embedding.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case "genai":
			cfg.Embedding.Dimensions = 768
		case "mock":
			cfg.Embedding.Dimensions = 384
		default:
			cfg.Embedding.Dimensions = 1536
		}
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case "genai":
			cfg.LLM.Model = "gemini-2.0-flash"
		default:
			cfg.LLM.Model = "gpt-4o"
		}
	}
	if cfg.LLM.MaxHistoryTurns == 0 {
		cfg.LLM.MaxHistoryTurns = 10
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "memory"
	}
	if cfg.Vector.Table == "" {
		cfg.Vector.Table = "kb_vectors"
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 1500
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = 100
	}
	if cfg.Retrieval.Separators == nil {
		cfg.Retrieval.Separators = []string{"\n\n", "\n", " ", ""}
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 50
	}
	if cfg.Retrieval.SemanticWeight == 0 && cfg.Retrieval.KeywordWeight == 0 {
		cfg.Retrieval.SemanticWeight = 0.7
		cfg.Retrieval.KeywordWeight = 0.3
	}
	if cfg.Edit.AllowedRoles == nil {
		cfg.Edit.AllowedRoles = []string{"admin", "monitor"}
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 14 * 24 * time.Hour
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "mindlink_session"
	}
	if cfg.Auth.CodeTTL == 0 {
		cfg.Auth.CodeTTL = 15 * time.Minute
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = 10
	}
	if cfg.Auth.Mailer == "" {
		cfg.Auth.Mailer = "log"
	}
	if cfg.Auth.SMTP.Port == 0 {
		cfg.Auth.SMTP.Port = 587
	}
	if cfg.Auth.SMTP.Timeout == 0 {
		cfg.Auth.SMTP.Timeout = 10 * time.Second
	}
	if cfg.Progress.InactivityDays == 0 {
		cfg.Progress.InactivityDays = 7
	}
	if cfg.Progress.InactivityScore == 0 {
		cfg.Progress.InactivityScore = 1
	}
}
