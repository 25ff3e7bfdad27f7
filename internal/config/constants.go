package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 10000
	defaultEnv        = "development"

	defaultMongoDatabase = "wsic"
	defaultMongoTimeout  = 10 * time.Second

	defaultCheckerApp     = "topic-checker"
	defaultGeneratorApp   = "topic-generator"
	defaultCheckerTimeout = 2 * time.Minute
	defaultGenTimeout     = 15 * time.Minute
	defaultMaxTokens      = 2048

	defaultEmbeddingModel      = "text-embedding-3-small"
	defaultEmbeddingDimensions = 768
	defaultEmbeddingTimeout    = 30 * time.Second

	defaultDedupWindow    = 10 * time.Minute
	defaultStaleAfter     = 30 * time.Minute
	defaultRetention      = 7 * 24 * time.Hour
	defaultReplayTTL      = 10 * time.Minute
	defaultFallbackUserID = "system"

	defaultAuditHost    = "127.0.0.1"
	defaultAuditPort    = 3306
	defaultAuditUser    = "root"
	defaultAuditName    = "wsic_audit"
	defaultAuditCharset = "utf8mb4"

	BackendADK = "adk"
	BackendLLM = "llm"
)
