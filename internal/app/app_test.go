package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wsic/generator/internal/config"
	"github.com/wsic/generator/internal/modules/agent"
)

func TestMatchOriginPattern(t *testing.T) {
	tests := []struct {
		pattern, origin string
		want            bool
	}{
		{"app.wsic.dev", "https://app.wsic.dev", true},
		{"*.wsic.dev", "https://admin.wsic.dev", true},
		{"*.wsic.dev", "https://wsic.dev.evil.com", false},
		{"localhost:*", "http://localhost:5173", true},
		{"localhost:*", "http://localhost.evil.com", false},
		{"app.wsic.dev", "https://other.dev", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, matchOriginPattern(tt.pattern, extractOriginHost(tt.origin)))
		})
	}
}

func TestCorsConfigRestrictsOriginsOutsideDev(t *testing.T) {
	cfg := &config.AppConfig{Env: "production", AllowedOrigins: []string{"*.wsic.dev"}}
	c := corsConfig(cfg)
	assert.True(t, c.AllowOriginFunc("https://app.wsic.dev"))
	assert.False(t, c.AllowOriginFunc("https://example.com"))

	cfg.Env = "development"
	assert.True(t, corsConfig(cfg).AllowOriginFunc("https://example.com"))
}

func TestBuildRunner(t *testing.T) {
	r, err := buildRunner(config.AgentConfig{
		Backend: config.BackendADK,
		BaseURL: "http://checker:8000",
		AppName: "topic-checker",
		Timeout: time.Minute,
	}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &agent.SessionRunner{}, r)
	assert.Equal(t, "topic-checker", r.Name())

	_, err = buildRunner(config.AgentConfig{Backend: "grpc", AppName: "topic-checker"}, nil, nil)
	assert.ErrorContains(t, err, `unsupported backend "grpc"`)
}

func TestHumanizeDuration(t *testing.T) {
	assert.Equal(t, "45s", humanizeDuration(45*time.Second+300*time.Millisecond))
	assert.Equal(t, "30m0s", humanizeDuration(30*time.Minute+10*time.Second))
	assert.Equal(t, "7d", humanizeDuration(7*24*time.Hour))
}
