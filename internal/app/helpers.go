package app

import (
	"fmt"
	"time"

	"github.com/wsic/generator/internal/config"
	"github.com/wsic/generator/internal/modules/agent"
	"github.com/wsic/generator/internal/pkg/metrics"
	"go.uber.org/zap"
)

// buildRunner selects the agent backend configured for cfg.
func buildRunner(cfg config.AgentConfig, logger *zap.Logger, m *metrics.Metrics) (agent.Runner, error) {
	switch cfg.Backend {
	case config.BackendADK:
		client := agent.NewSessionClient(cfg.BaseURL, cfg.AppName, cfg.Timeout)
		return agent.NewSessionRunner(client, logger, m), nil
	case config.BackendLLM:
		r, err := agent.NewLLMRunner(cfg.AppName, cfg, m)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("agent %s: unsupported backend %q", cfg.AppName, cfg.Backend)
	}
}

func humanizeDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Truncate(time.Second).String()
	}
	if d < time.Hour {
		return d.Truncate(time.Minute).String()
	}
	if d < 24*time.Hour {
		return d.Truncate(time.Hour).String()
	}
	return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
}
