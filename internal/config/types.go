package config

import "time"

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int              `yaml:"port"`
	Env            string           `yaml:"env"` // "development" | "production"
	Mongo          MongoConfig      `yaml:"mongo"`
	RedisURL       string           `yaml:"redis_url"`
	Agents         AgentsConfig     `yaml:"agents"`
	Embedding      EmbeddingConfig  `yaml:"embedding"`
	QStash         QStashConfig     `yaml:"qstash"`
	Audit          AuditConfig      `yaml:"audit"`
	Generation     GenerationConfig `yaml:"generation"`
	AllowedOrigins []string         `yaml:"allowed_origins"`
	Paths          RuntimePaths     `yaml:"paths"`
}

type MongoConfig struct {
	URI      string        `yaml:"uri"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
}

type AgentsConfig struct {
	Checker   AgentConfig `yaml:"checker"`
	Generator AgentConfig `yaml:"generator"`
}

// AgentConfig selects how an agent is reached. Backend "adk" drives a remote
// agent runtime through its session protocol; "llm" prompts a model provider
// directly.
type AgentConfig struct {
	Backend          string        `yaml:"backend"`
	BaseURL          string        `yaml:"base_url"`
	AppName          string        `yaml:"app_name"`
	Timeout          time.Duration `yaml:"timeout"`
	Provider         LLMProvider   `yaml:"provider"`
	SystemPrompt     string        `yaml:"system_prompt"`
	SystemPromptFile string        `yaml:"system_prompt_file"`
}

type LLMProvider struct {
	Type            string `yaml:"type"` // "openai" | "anthropic"
	APIKey          string `yaml:"api_key"`
	Endpoint        string `yaml:"endpoint"`
	Model           string `yaml:"model"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

type EmbeddingConfig struct {
	APIKey     string        `yaml:"api_key"`
	Endpoint   string        `yaml:"endpoint"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

type QStashConfig struct {
	CurrentSigningKey string `yaml:"current_signing_key"`
	NextSigningKey    string `yaml:"next_signing_key"`
	// BaseURL, when set, is matched against the signed destination URL.
	BaseURL string `yaml:"base_url"`
}

type AuditConfig struct {
	DSN      string            `yaml:"dsn"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Name     string            `yaml:"name"`
	Charset  string            `yaml:"charset"`
	Params   map[string]string `yaml:"params"`
	Enable   bool              `yaml:"enable"`
}

type GenerationConfig struct {
	DedupWindow    time.Duration `yaml:"dedup_window"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	Retention      time.Duration `yaml:"retention"`
	ReplayTTL      time.Duration `yaml:"replay_ttl"`
	FallbackUserID string        `yaml:"fallback_user_id"`
}

type RuntimePaths struct {
	Logs string `yaml:"logs"`
}
