package agent

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"strings"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	"github.com/wsic/generator/internal/config"
	"github.com/wsic/generator/internal/pkg/metrics"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
)

// LLMRunner prompts a model provider directly instead of going through an
// agent runtime. The system prompt carries the agent instructions and the
// message is sent as the user turn.
type LLMRunner struct {
	name         string
	model        jetapi.LanguageModel
	systemPrompt string
	maxTokens    int
	timeout      time.Duration
	metrics      *metrics.Metrics
}

// NewLLMRunner builds a runner named name from an agent configuration.
func NewLLMRunner(name string, cfg config.AgentConfig, m *metrics.Metrics) (*LLMRunner, error) {
	model, err := buildLanguageModel(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}
	prompt, err := cfg.ResolveSystemPrompt()
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}
	return &LLMRunner{
		name:         name,
		model:        model,
		systemPrompt: prompt,
		maxTokens:    cfg.Provider.MaxOutputTokens,
		timeout:      cfg.Timeout,
		metrics:      m,
	}, nil
}

func (r *LLMRunner) Name() string { return r.name }

func (r *LLMRunner) Run(ctx context.Context, userID, message string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := jetai.GenerateText(
		ctx,
		buildPromptMessages(r.systemPrompt, message),
		jetai.WithModel(r.model),
		jetai.WithMaxOutputTokens(r.maxTokens),
	)
	r.metrics.ObserveAgentCall(r.name, "generate", time.Since(start))
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", r.name, err)
	}
	return extractText(resp)
}

func buildPromptMessages(systemPrompt, prompt string) []jetapi.Message {
	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})
	return messages
}

func extractText(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", ErrNoModelResponse
	}
	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, ok := block.(*jetapi.TextBlock)
		if !ok || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}
	text := full.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrNoModelResponse
	}
	return text, nil
}

func buildLanguageModel(provider config.LLMProvider) (jetapi.LanguageModel, error) {
	apiKey := strings.TrimSpace(provider.APIKey)
	if apiKey == "" {
		return nil, errors.New("provider api key is empty")
	}
	modelID := strings.TrimSpace(provider.Model)
	endpoint := strings.TrimSpace(provider.Endpoint)

	switch provider.Type {
	case "anthropic":
		if modelID == "" {
			modelID = "claude-haiku-4-5-20251001"
		}
		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(0),
		}
		if endpoint != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
		}
		client := anthropicclient.NewClient(opts...)
		return jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client)), nil
	case "", "openai", "openai-compatible":
		if modelID == "" {
			modelID = "gpt-4o-mini"
		}
		opts := []openaioption.RequestOption{
			openaioption.WithAPIKey(apiKey),
			openaioption.WithMaxRetries(0),
		}
		if normalized := NormalizeOpenAIBaseURL(endpoint); normalized != "" {
			opts = append(opts, openaioption.WithBaseURL(normalized))
		}
		client := openaiclient.NewClient(opts...)
		return jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client)), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", provider.Type)
	}
}

// NormalizeOpenAIBaseURL appends /v1 to an OpenAI-compatible endpoint when
// the path does not already end with it.
func NormalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}
	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}
