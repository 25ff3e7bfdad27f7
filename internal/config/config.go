package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingMongoURI is returned when no document store connection is configured.
var ErrMissingMongoURI = errors.New("mongo.uri is required")

// Load reads the YAML config at configPath, applies defaults and environment
// overrides, and validates the result. A missing file is not an error when
// the environment supplies what is required.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := defaultAppConfig()
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultConfigPath:
	default:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	applyEnvOverrides(&cfg, os.LookupEnv)
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Mongo: MongoConfig{
			Database: defaultMongoDatabase,
			Timeout:  defaultMongoTimeout,
		},
		Agents: AgentsConfig{
			Checker: AgentConfig{
				Backend: BackendADK,
				AppName: defaultCheckerApp,
				Timeout: defaultCheckerTimeout,
			},
			Generator: AgentConfig{
				Backend: BackendADK,
				AppName: defaultGeneratorApp,
				Timeout: defaultGenTimeout,
			},
		},
		Embedding: EmbeddingConfig{
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
			Timeout:    defaultEmbeddingTimeout,
		},
		Audit: AuditConfig{
			Host:    defaultAuditHost,
			Port:    defaultAuditPort,
			User:    defaultAuditUser,
			Name:    defaultAuditName,
			Charset: defaultAuditCharset,
		},
		Generation: GenerationConfig{
			DedupWindow:    defaultDedupWindow,
			StaleAfter:     defaultStaleAfter,
			Retention:      defaultRetention,
			ReplayTTL:      defaultReplayTTL,
			FallbackUserID: defaultFallbackUserID,
		},
	}
}

type lookupFunc func(string) (string, bool)

func applyEnvOverrides(cfg *AppConfig, lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup("PORT"); ok {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Port = port
		}
	}
	str("APP_ENV", &cfg.Env)
	str("MONGO_URI", &cfg.Mongo.URI)
	str("MONGO_DATABASE", &cfg.Mongo.Database)
	str("REDIS_URL", &cfg.RedisURL)
	str("TOPIC_CHECKER_BASE_URL", &cfg.Agents.Checker.BaseURL)
	str("TOPIC_GENERATOR_BASE_URL", &cfg.Agents.Generator.BaseURL)
	str("OPENAI_API_KEY", &cfg.Embedding.APIKey)
	str("QSTASH_CURRENT_SIGNING_KEY", &cfg.QStash.CurrentSigningKey)
	str("QSTASH_NEXT_SIGNING_KEY", &cfg.QStash.NextSigningKey)
	if v, ok := lookup("AUDIT_DSN"); ok && strings.TrimSpace(v) != "" {
		cfg.Audit.DSN = strings.TrimSpace(v)
		cfg.Audit.Enable = true
	}
}

func normalize(cfg *AppConfig) {
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.Mongo.URI = strings.TrimSpace(cfg.Mongo.URI)
	if strings.TrimSpace(cfg.Mongo.Database) == "" {
		cfg.Mongo.Database = defaultMongoDatabase
	}
	if cfg.Mongo.Timeout <= 0 {
		cfg.Mongo.Timeout = defaultMongoTimeout
	}
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.Agents.Checker = normalizeAgent(cfg.Agents.Checker, defaultCheckerApp, defaultCheckerTimeout)
	cfg.Agents.Generator = normalizeAgent(cfg.Agents.Generator, defaultGeneratorApp, defaultGenTimeout)
	if strings.TrimSpace(cfg.Embedding.Model) == "" {
		cfg.Embedding.Model = defaultEmbeddingModel
	}
	if cfg.Embedding.Dimensions <= 0 {
		cfg.Embedding.Dimensions = defaultEmbeddingDimensions
	}
	if cfg.Embedding.Timeout <= 0 {
		cfg.Embedding.Timeout = defaultEmbeddingTimeout
	}
	if cfg.Generation.DedupWindow <= 0 {
		cfg.Generation.DedupWindow = defaultDedupWindow
	}
	if cfg.Generation.StaleAfter <= 0 {
		cfg.Generation.StaleAfter = defaultStaleAfter
	}
	if cfg.Generation.Retention <= 0 {
		cfg.Generation.Retention = defaultRetention
	}
	if cfg.Generation.ReplayTTL <= 0 {
		cfg.Generation.ReplayTTL = defaultReplayTTL
	}
	if strings.TrimSpace(cfg.Generation.FallbackUserID) == "" {
		cfg.Generation.FallbackUserID = defaultFallbackUserID
	}
	cfg.AllowedOrigins = normalizeOrigins(cfg.AllowedOrigins)
	cfg.Paths.Logs = strings.TrimSpace(cfg.Paths.Logs)
}

func normalizeAgent(a AgentConfig, app string, timeout time.Duration) AgentConfig {
	a.Backend = strings.ToLower(strings.TrimSpace(a.Backend))
	if a.Backend == "" {
		a.Backend = BackendADK
	}
	a.BaseURL = strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
	if strings.TrimSpace(a.AppName) == "" {
		a.AppName = app
	}
	if a.Timeout <= 0 {
		a.Timeout = timeout
	}
	if a.Provider.MaxOutputTokens <= 0 {
		a.Provider.MaxOutputTokens = defaultMaxTokens
	}
	a.Provider.Type = strings.ToLower(strings.TrimSpace(a.Provider.Type))
	return a
}

// Validate reports the first configuration problem that prevents startup.
func (c *AppConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	if c.Mongo.URI == "" {
		return ErrMissingMongoURI
	}
	for name, a := range map[string]AgentConfig{"checker": c.Agents.Checker, "generator": c.Agents.Generator} {
		switch a.Backend {
		case BackendADK:
			if a.BaseURL == "" {
				return fmt.Errorf("agents.%s.base_url is required for backend %q", name, BackendADK)
			}
		case BackendLLM:
			if strings.TrimSpace(a.Provider.APIKey) == "" {
				return fmt.Errorf("agents.%s.provider.api_key is required for backend %q", name, BackendLLM)
			}
		default:
			return fmt.Errorf("agents.%s.backend %q is not supported", name, a.Backend)
		}
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("invalid embedding.dimensions %d", c.Embedding.Dimensions)
	}
	return nil
}

// ResolveSystemPrompt returns the inline prompt, or the contents of
// SystemPromptFile when no inline prompt is set.
func (a AgentConfig) ResolveSystemPrompt() (string, error) {
	if p := strings.TrimSpace(a.SystemPrompt); p != "" {
		return p, nil
	}
	file := strings.TrimSpace(a.SystemPromptFile)
	if file == "" {
		return "", nil
	}
	content, err := os.ReadFile(ResolveRuntimePath(file, ""))
	if err != nil {
		return "", fmt.Errorf("read system prompt %q: %w", file, err)
	}
	return strings.TrimSpace(string(content)), nil
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	trimmed := strings.ToLower(strings.TrimSpace(env))
	if trimmed == "" {
		return defaultEnv
	}
	return trimmed
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

func (c *AppConfig) LogDir() string {
	if c == nil {
		return ResolveRuntimePath("", "logs")
	}
	return ResolveRuntimePath(c.Paths.Logs, "logs")
}

// AuditEnabled reports whether generation runs are recorded to MySQL.
func (c *AppConfig) AuditEnabled() bool {
	return c.Audit.Enable || strings.TrimSpace(c.Audit.DSN) != ""
}
