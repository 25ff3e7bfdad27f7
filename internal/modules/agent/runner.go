// Package agent drives the topic checker and topic generator agents and
// returns their raw textual replies.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wsic/generator/internal/pkg/metrics"
	"go.uber.org/zap"
)

// Runner sends one message to an agent on behalf of userID and returns the
// agent's final textual reply.
type Runner interface {
	Name() string
	Run(ctx context.Context, userID, message string) (string, error)
}

const sessionCleanupTimeout = 10 * time.Second

// SessionRunner runs an agent hosted in a remote agent runtime. Each call
// opens a fresh session and closes it afterwards.
type SessionRunner struct {
	client  *SessionClient
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewSessionRunner wraps client. metrics may be nil.
func NewSessionRunner(client *SessionClient, logger *zap.Logger, m *metrics.Metrics) *SessionRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRunner{
		client:  client,
		logger:  logger.Named("SessionRunner").With(zap.String("app", client.AppName())),
		metrics: m,
		now:     time.Now,
	}
}

func (r *SessionRunner) Name() string { return r.client.AppName() }

func (r *SessionRunner) Run(ctx context.Context, userID, message string) (string, error) {
	sessionID := NewSessionID(userID, r.now())

	start := time.Now()
	if err := r.client.CreateSession(ctx, userID, sessionID); err != nil {
		return "", err
	}
	r.metrics.ObserveAgentCall(r.Name(), "create_session", time.Since(start))

	start = time.Now()
	events, runErr := r.client.Run(ctx, userID, sessionID, message)
	r.metrics.ObserveAgentCall(r.Name(), "run", time.Since(start))

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCleanupTimeout)
	if err := r.client.DeleteSession(cleanupCtx, userID, sessionID); err != nil {
		r.logger.Warn("failed to delete agent session",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	cancel()

	if runErr != nil {
		return "", runErr
	}
	return ExtractModelResponse(events)
}

// NewSessionID returns a session id unique per user and call.
func NewSessionID(userID string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("session_%s_%d_%s", userID, now.Unix(), suffix)
}
