package taskqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	got, total := Page(items, 1, 2)
	assert.Equal(t, []int{1, 2}, got)
	assert.EqualValues(t, 5, total)

	got, _ = Page(items, 3, 2)
	assert.Equal(t, []int{5}, got)

	got, _ = Page(items, 4, 2)
	assert.Empty(t, got)

	got, _ = Page(items, 0, 0)
	assert.Equal(t, items, got)
}

func TestTaskFinished(t *testing.T) {
	assert.False(t, (&Task{Status: TaskRunning}).Finished())
	assert.True(t, (&Task{Status: TaskCompleted}).Finished())
	assert.True(t, (&Task{Status: TaskFailed}).Finished())
}

func TestDedupValueRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, claimedAt := parseDedupValue(dedupValue("task-1", at))
	assert.Equal(t, "task-1", id)
	assert.True(t, at.Equal(claimedAt))

	id, claimedAt = parseDedupValue("legacy-id")
	assert.Equal(t, "legacy-id", id)
	assert.True(t, claimedAt.IsZero())
}

func TestJudgeHolder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		holder    *Task
		claimedAt time.Time
		want      holderVerdict
	}{
		{"running holder", &Task{Status: TaskRunning}, now.Add(-time.Hour), holderLive},
		{"completed holder", &Task{Status: TaskCompleted}, now.Add(-time.Hour), holderLive},
		{"failed holder", &Task{Status: TaskFailed}, now, holderStale},
		{"record not written yet", nil, now.Add(-2 * time.Second), holderPending},
		{"record missing past grace", nil, now.Add(-claimGrace), holderStale},
		{"record missing without claim time", nil, time.Time{}, holderStale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, judgeHolder(tt.holder, tt.claimedAt, now))
		})
	}
}
