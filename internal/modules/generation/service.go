// Package generation sequences the topic checker, the topic generator and
// the insertion workflow behind the scheduler-facing endpoints.
package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wsic/generator/internal/models"
	"github.com/wsic/generator/internal/modules/agent"
	"github.com/wsic/generator/internal/modules/insertion"
	"github.com/wsic/generator/internal/modules/notify"
	"github.com/wsic/generator/internal/pkg/aijson"
	"github.com/wsic/generator/internal/pkg/metrics"
	"github.com/wsic/generator/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

const taskType = "generate_topic"

var (
	// ErrInvalidTopic marks a topic the checker rejected.
	ErrInvalidTopic = errors.New("topic is invalid")
	// ErrInProgress is returned while an identical request is still running.
	ErrInProgress = errors.New("an identical generation request is still running")
	// ErrUndecodable is returned when an agent reply holds no JSON.
	ErrUndecodable = errors.New("invalid JSON response from model")
)

// InvalidTopicError carries the checker verdict.
type InvalidTopicError struct {
	Check *CheckResult
}

func (e *InvalidTopicError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidTopic, e.Check.Reason)
}

func (e *InvalidTopicError) Unwrap() error { return ErrInvalidTopic }

// RetryableError is a generation failure the scheduler should redeliver.
// Body is returned to the caller as is.
type RetryableError struct {
	Reason string
	Body   any
}

func (e *RetryableError) Error() string { return e.Reason }

// CheckResult is the checker verdict.
type CheckResult struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Valid reports whether the checker accepted the topic.
func (c *CheckResult) Valid() bool { return !strings.EqualFold(c.Status, "INVALID") }

// Request is one generation request after input validation.
type Request struct {
	Topic              string `json:"topic"`
	Difficulty         string `json:"difficulty"`
	UserID             string `json:"user_id"`
	PublishImmediately bool   `json:"publish_immediately"`
}

// Result is returned for a successful generation and replayed for
// duplicates.
type Result struct {
	Success  bool                `json:"success"`
	TopicID  *string             `json:"topic_id"`
	Message  string              `json:"message"`
	Metadata *insertion.Metadata `json:"metadata"`
	Content  any                 `json:"content,omitempty"`

	Replayed bool   `json:"-"`
	TaskID   string `json:"-"`
}

// Inserter persists a decoded payload.
type Inserter interface {
	Insert(ctx context.Context, p *insertion.ContentPayload) insertion.Result
}

// Tracker records generation requests for deduplication.
type Tracker interface {
	Claim(ctx context.Context, taskType string, payload interface{}, dedupKey string) (*taskqueue.Task, bool, error)
	Complete(ctx context.Context, id string, result interface{}) error
	Fail(ctx context.Context, id string, errMsg string) error
	GetByID(ctx context.Context, id string) (*taskqueue.Task, error)
	List(ctx context.Context, page, size int, status *taskqueue.TaskStatus) ([]*taskqueue.Task, int64, error)
}

type Options struct {
	Checker     agent.Runner
	Generator   agent.Runner
	Inserter    Inserter
	Notifier    *notify.Notifier
	Tracker     Tracker
	DedupWindow time.Duration
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

type Service struct {
	checker     agent.Runner
	generator   agent.Runner
	inserter    Inserter
	notifier    *notify.Notifier
	tracker     Tracker
	dedupWindow time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		checker:     opts.Checker,
		generator:   opts.Generator,
		inserter:    opts.Inserter,
		notifier:    opts.Notifier,
		tracker:     opts.Tracker,
		dedupWindow: opts.DedupWindow,
		metrics:     opts.Metrics,
		logger:      logger.Named("GenerationService"),
		now:         time.Now,
	}
}

// Tracker exposes the request tracker, nil when tracking is disabled.
func (s *Service) Tracker() Tracker { return s.tracker }

// CheckTopic asks the checker agent whether topic is worth generating.
func (s *Service) CheckTopic(ctx context.Context, topic, userID string) (*CheckResult, error) {
	message, _ := json.Marshal(map[string]string{"topic": topic, "user_id": userID})
	reply, err := s.checker.Run(ctx, userID, string(message))
	if err != nil {
		return nil, fmt.Errorf("check topic: %w", err)
	}

	parsed, _ := aijson.Decode(reply)
	if _, ok := parsed.(map[string]any); !ok {
		s.metrics.ObserveDecode("failed")
		s.logger.Warn("checker reply is not a JSON object", zap.String("reply", aijson.Preview(reply, 500)))
		return nil, ErrUndecodable
	}
	s.metrics.ObserveDecode("ok")

	var check CheckResult
	if err := aijson.Remarshal(parsed, &check); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	check.Status = strings.ToUpper(strings.TrimSpace(check.Status))
	if check.Status == "" {
		s.logger.Warn("checker reply has no status", zap.String("reply", aijson.Preview(reply, 500)))
		return nil, ErrUndecodable
	}
	return &check, nil
}

// GenerateTopic checks, generates and inserts one topic.
func (s *Service) GenerateTopic(ctx context.Context, req Request) (*Result, error) {
	task, replay, err := s.claim(ctx, req)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return replay, nil
	}

	result, err := s.generate(ctx, req)
	s.settle(ctx, task, result, err)
	if result != nil && task != nil {
		result.TaskID = task.ID
	}
	return result, err
}

func (s *Service) generate(ctx context.Context, req Request) (*Result, error) {
	check, err := s.CheckTopic(ctx, req.Topic, req.UserID)
	if err != nil {
		return nil, err
	}
	if !check.Valid() {
		s.logger.Info("topic rejected",
			zap.String("topic", req.Topic),
			zap.String("user_id", req.UserID),
			zap.String("reason", check.Reason),
		)
		s.notifyBadTopic(ctx, req, check)
		return nil, &InvalidTopicError{Check: check}
	}

	message, _ := json.Marshal(req)
	reply, err := s.generator.Run(ctx, req.UserID, string(message))
	if err != nil {
		return nil, fmt.Errorf("generate topic: %w", err)
	}

	parsed, retry := aijson.Decode(reply)
	if parsed == nil {
		s.metrics.ObserveDecode("failed")
		s.logger.Warn("generator reply holds no JSON", zap.String("reply", aijson.Preview(reply, 500)))
		return nil, ErrUndecodable
	}
	if retry {
		s.metrics.ObserveDecode("retry")
		return nil, &RetryableError{Reason: failureMessage(parsed), Body: parsed}
	}
	s.metrics.ObserveDecode("ok")

	var payload insertion.ContentPayload
	if err := aijson.Remarshal(parsed, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	applyDefaults(&payload, req)

	res := s.inserter.Insert(context.WithoutCancel(ctx), &payload)
	if !res.Success {
		return nil, &RetryableError{Reason: res.Message, Body: res}
	}
	return &Result{
		Success:  true,
		TopicID:  res.TopicID,
		Message:  res.Message,
		Metadata: res.Metadata,
		Content:  parsed,
	}, nil
}

func (s *Service) claim(ctx context.Context, req Request) (*taskqueue.Task, *Result, error) {
	if s.tracker == nil {
		return nil, nil, nil
	}
	key := IdempotencyKey(req.Topic, req.UserID, req.Difficulty, s.now(), s.dedupWindow)
	task, created, err := s.tracker.Claim(ctx, taskType, req, key)
	if err != nil {
		s.logger.Warn("request tracking unavailable, generating untracked", zap.Error(err))
		return nil, nil, nil
	}
	if created {
		return task, nil, nil
	}

	switch task.Status {
	case taskqueue.TaskCompleted:
		var replay Result
		if err := json.Unmarshal(task.Result, &replay); err != nil {
			return nil, nil, fmt.Errorf("decode stored result of task %s: %w", task.ID, err)
		}
		replay.Replayed = true
		replay.TaskID = task.ID
		return nil, &replay, nil
	default:
		return nil, nil, ErrInProgress
	}
}

func (s *Service) settle(ctx context.Context, task *taskqueue.Task, result *Result, cause error) {
	if task == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var err error
	if cause != nil {
		err = s.tracker.Fail(ctx, task.ID, cause.Error())
	} else {
		err = s.tracker.Complete(ctx, task.ID, result)
	}
	if err != nil {
		s.logger.Warn("update request tracker failed", zap.String("task_id", task.ID), zap.Error(err))
	}
}

func (s *Service) notifyBadTopic(ctx context.Context, req Request, check *CheckResult) {
	if s.notifier == nil {
		return
	}
	_, err := s.notifier.Send(ctx, models.NotificationBadTopic, &models.NotificationModel{
		UserID:  req.UserID,
		Title:   "Invalid Topic!",
		Message: check.Reason,
		Data: map[string]any{
			"topic":  req.Topic,
			"reason": check.Reason,
		},
	})
	if err != nil {
		s.logger.Warn("bad topic notification failed", zap.String("user_id", req.UserID), zap.Error(err))
	}
}

func applyDefaults(p *insertion.ContentPayload, req Request) {
	if strings.TrimSpace(p.Topic) == "" {
		p.Topic = req.Topic
	}
	if strings.TrimSpace(p.Difficulty) == "" {
		p.Difficulty = req.Difficulty
	}
	if strings.TrimSpace(p.CreatedBy) == "" {
		p.CreatedBy = req.UserID
	}
	if p.PublishImmediately == nil {
		p.PublishImmediately = insertion.BoolFlag(req.PublishImmediately)
	}
}

func failureMessage(parsed any) string {
	if m, ok := parsed.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return "Error occurred while generating topic"
}

// IdempotencyKey identifies requests for the same topic, user and difficulty
// within one dedup window.
func IdempotencyKey(topic, userID, difficulty string, now time.Time, window time.Duration) string {
	var bucket int64
	if window > 0 {
		bucket = now.UnixNano() / int64(window)
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		strings.ToLower(strings.TrimSpace(topic)),
		userID,
		difficulty,
		strconv.FormatInt(bucket, 10),
	}, "|")))
	return hex.EncodeToString(sum[:])
}
