// Package taskqueue tracks generation requests in Redis so that redelivered
// or duplicated requests can be detected while one is in flight and replayed
// once it has completed.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	redisc "github.com/wsic/generator/internal/pkg/redis"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// ErrTaskNotFound is returned when a task id is unknown or expired.
var ErrTaskNotFound = errors.New("task not found")

// Task is one tracked generation request.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    TaskStatus      `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	DedupKey  string          `json:"dedup_key,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Finished reports whether the task reached a terminal status.
func (t *Task) Finished() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

const (
	keyPrefix   = "wsic:task:"
	keyIndex    = "wsic:tasks:index"  // sorted set: score=created_at, member=task_id
	keyDedupSet = "wsic:tasks:dedup:" // hash: dedup_key -> "task_id|claimed_at_ms"
	taskTTL     = 7 * 24 * time.Hour

	// claimGrace bounds the window between binding a dedup key and writing
	// the holder's record. A holder without a record inside it is in flight.
	claimGrace = 30 * time.Second
)

// releaseDedup deletes a dedup entry only while it is still bound to the
// given task id.
var releaseDedup = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if v and string.sub(v, 1, string.len(ARGV[2]) + 1) == ARGV[2] .. '|' then
	return redis.call('HDEL', KEYS[1], ARGV[1])
end
return 0
`)

func dedupValue(taskID string, claimedAt time.Time) string {
	return taskID + "|" + strconv.FormatInt(claimedAt.UnixMilli(), 10)
}

func parseDedupValue(v string) (string, time.Time) {
	id, ms, ok := strings.Cut(v, "|")
	if !ok {
		return v, time.Time{}
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return id, time.Time{}
	}
	return id, time.UnixMilli(n)
}

type holderVerdict int

const (
	holderLive holderVerdict = iota
	holderPending
	holderStale
)

// judgeHolder decides what a failed claim does with the current key holder.
// holder is nil when its record is missing.
func judgeHolder(holder *Task, claimedAt, now time.Time) holderVerdict {
	if holder != nil {
		if holder.Status == TaskFailed {
			return holderStale
		}
		return holderLive
	}
	if !claimedAt.IsZero() && now.Sub(claimedAt) < claimGrace {
		return holderPending
	}
	return holderStale
}

// Service manages the Redis-backed task records.
type Service struct {
	rc  *redisc.Client
	now func() time.Time
}

func NewService(rc *redisc.Client) *Service {
	return &Service{rc: rc, now: time.Now}
}

func (s *Service) taskKey(id string) string { return keyPrefix + id }

// Claim registers a running task for dedupKey. When another live task already
// holds the key it is returned with created=false; a holder whose record is
// not written yet counts as running for claimGrace. Failed holders and
// holders whose record expired release the key and the claim is retried.
func (s *Service) Claim(ctx context.Context, taskType string, payload interface{}, dedupKey string) (*Task, bool, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	task := &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Payload:   payloadBytes,
		Status:    TaskRunning,
		DedupKey:  dedupKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if dedupKey == "" {
		return task, true, s.store(ctx, task)
	}

	dedupHash := keyDedupSet + taskType
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.rc.Raw().HSetNX(ctx, dedupHash, dedupKey, dedupValue(task.ID, now)).Result()
		if err != nil {
			return nil, false, err
		}
		if ok {
			s.rc.Raw().Expire(ctx, dedupHash, taskTTL)
			if err := s.store(ctx, task); err != nil {
				s.release(ctx, dedupHash, dedupKey, task.ID)
				return nil, false, err
			}
			return task, true, nil
		}

		bound, err := s.rc.Raw().HGet(ctx, dedupHash, dedupKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		holderID, claimedAt := parseDedupValue(bound)
		holder, err := s.GetByID(ctx, holderID)
		if err != nil && !errors.Is(err, ErrTaskNotFound) {
			return nil, false, err
		}
		switch judgeHolder(holder, claimedAt, s.now()) {
		case holderLive:
			return holder, false, nil
		case holderPending:
			return &Task{
				ID:        holderID,
				Type:      taskType,
				Status:    TaskRunning,
				DedupKey:  dedupKey,
				CreatedAt: claimedAt,
				UpdatedAt: claimedAt,
			}, false, nil
		}
		s.release(ctx, dedupHash, dedupKey, holderID)
	}
	return nil, false, fmt.Errorf("dedup key %s is contended", dedupKey)
}

func (s *Service) release(ctx context.Context, dedupHash, dedupKey, taskID string) {
	releaseDedup.Run(ctx, s.rc.Raw(), []string{dedupHash}, dedupKey, taskID)
}

func (s *Service) store(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, taskTTL)
	pipe.ZAdd(ctx, keyIndex, redis.Z{
		Score:  float64(task.CreatedAt.UnixMilli()),
		Member: task.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// GetByID retrieves a task by its ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	if id == "" {
		return nil, ErrTaskNotFound
	}
	data, err := s.rc.Raw().Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Complete stores result on a task. The dedup key stays bound so later
// duplicates are answered from the stored result.
func (s *Service) Complete(ctx context.Context, id string, result interface{}) error {
	return s.updateStatus(ctx, id, TaskCompleted, result, "")
}

// Fail marks a task failed and releases its dedup key.
func (s *Service) Fail(ctx context.Context, id string, errMsg string) error {
	return s.updateStatus(ctx, id, TaskFailed, nil, errMsg)
}

func (s *Service) updateStatus(ctx context.Context, id string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	task.Status = status
	task.UpdatedAt = s.now()
	task.Error = errMsg
	if result != nil {
		if task.Result, err = json.Marshal(result); err != nil {
			return err
		}
	}

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(id), data, taskTTL)
	if status == TaskFailed && task.DedupKey != "" {
		releaseDedup.Eval(ctx, pipe, []string{keyDedupSet + task.Type}, task.DedupKey, id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// List returns tasks matching an optional status, newest first.
func (s *Service) List(ctx context.Context, page, size int, status *TaskStatus) ([]*Task, int64, error) {
	ids, err := s.rc.Raw().ZRevRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}

	var tasks []*Task
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if status != nil && task.Status != *status {
			continue
		}
		tasks = append(tasks, task)
	}

	pageItems, total := Page(tasks, page, size)
	return pageItems, total, nil
}

// Page slices items for a 1-based page number.
func Page[T any](items []T, page, size int) ([]T, int64) {
	total := int64(len(items))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}, total
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], total
}

// FailStale marks running tasks last updated before the cutoff as failed,
// freeing their dedup keys. It returns how many tasks were failed.
func (s *Service) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := s.rc.Raw().ZRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-olderThan)
	failed := 0
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if err != nil || task.Status != TaskRunning || !task.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.Fail(ctx, id, "generation did not finish in time"); err != nil {
			return failed, err
		}
		failed++
	}
	return failed, nil
}

// DeleteFinished removes completed and failed tasks created before the cutoff,
// plus index entries whose record already expired.
func (s *Service) DeleteFinished(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.rc.Raw().ZRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	removed := 0
	pipe := s.rc.Raw().TxPipeline()
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if errors.Is(err, ErrTaskNotFound) {
			pipe.ZRem(ctx, keyIndex, id)
			continue
		}
		if err != nil || !task.Finished() || !task.CreatedAt.Before(before) {
			continue
		}
		pipe.Del(ctx, s.taskKey(id))
		pipe.ZRem(ctx, keyIndex, id)
		if task.DedupKey != "" {
			releaseDedup.Eval(ctx, pipe, []string{keyDedupSet + task.Type}, task.DedupKey, id)
		}
		removed++
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return removed, nil
}
