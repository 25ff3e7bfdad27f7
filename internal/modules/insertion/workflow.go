// Package insertion persists a generated topic as one all-or-nothing unit:
// topic, embedding, ordered blocks and publication, undone in reverse when a
// later step fails.
package insertion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wsic/generator/internal/models"
	"github.com/wsic/generator/internal/modules/embedding"
	"github.com/wsic/generator/internal/modules/notify"
	"github.com/wsic/generator/internal/pkg/metrics"
	"go.uber.org/zap"
)

// ErrMissingStore is the terminal validation failure when no document store
// is wired.
var ErrMissingStore = errors.New("document store is not configured")

// Store is the set of document operations the workflow consumes.
type Store interface {
	CategoryLister
	notify.Registry

	CreateTopic(ctx context.Context, topic *models.TopicModel) (string, error)
	PublishTopic(ctx context.Context, topicID string) error
	DeleteTopic(ctx context.Context, topicID string) error
	CreateEmbedding(ctx context.Context, e *models.EmbeddingModel) (string, error)
	DeleteEmbedding(ctx context.Context, id string) error
	CreateBlock(ctx context.Context, b *models.BlockModel) (string, error)
	DeleteBlock(ctx context.Context, id string) error
	ListBlocksByTopic(ctx context.Context, topicID string) ([]models.BlockModel, error)
	ListEmbeddingsByTopic(ctx context.Context, topicID string) ([]models.EmbeddingModel, error)
}

// Recorder receives one audit row per Insert call.
type Recorder interface {
	Record(ctx context.Context, run *models.GenerationRunModel) error
}

// State is the position of one Insert call in its lifecycle.
type State int

const (
	StateNotStarted State = iota
	StateTopicCreated
	StateResourcesCreated
	StatePublished
	StateNotificationSent
	StateDone
	StateError
	StateRolledBack
)

var stateNames = [...]string{
	"not_started", "topic_created", "resources_created", "published",
	"notification_sent", "done", "error", "rolled_back",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Metadata summarises a successful insertion.
type Metadata struct {
	WordCount             int  `json:"word_count"`
	EstimatedReadTime     int  `json:"estimated_read_time"`
	ExerciseCount         int  `json:"exercise_count"`
	InformationBlockCount int  `json:"information_block_count"`
	Published             bool `json:"published"`
}

// Result is the only thing Insert reports. TopicID and Metadata are nil
// whenever Success is false.
type Result struct {
	Success  bool      `json:"success"`
	TopicID  *string   `json:"topic_id"`
	Message  string    `json:"message"`
	Metadata *Metadata `json:"metadata"`

	State State `json:"-"`
}

type Options struct {
	Store      Store
	Embedder   embedding.Embedder
	Dimensions int
	Notifier   *notify.Notifier
	Recorder   Recorder
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

type Workflow struct {
	store      Store
	embedder   embedding.Embedder
	dimensions int
	notifier   *notify.Notifier
	recorder   Recorder
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func New(opts Options) *Workflow {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil && opts.Store != nil {
		notifier = notify.New(opts.Store, nil, "", logger)
	}
	dims := opts.Dimensions
	if dims <= 0 && opts.Embedder != nil {
		dims = opts.Embedder.Dimensions()
	}
	return &Workflow{
		store:      opts.Store,
		embedder:   opts.Embedder,
		dimensions: dims,
		notifier:   notifier,
		recorder:   opts.Recorder,
		metrics:    opts.Metrics,
		logger:     logger.Named("InsertionWorkflow"),
		now:        time.Now,
	}
}

// run carries the mutable state of a single Insert call.
type run struct {
	payload   *ContentPayload
	title     string
	diff      string
	createdBy string
	publish   bool
	counters  Counters
	planned   []plannedBlock
	category  string

	state         State
	topicID       string
	undo          undoStack
	blocksCreated int
	compensated   int
	compFailures  int
	started       time.Time
}

// InsertRaw decodes raw generator output and inserts it.
func (w *Workflow) InsertRaw(ctx context.Context, raw []byte) Result {
	var payload ContentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		r := &run{started: w.now(), title: defaultTopicTitle, diff: models.DifficultyBeginner}
		return w.finishFailed(ctx, r, fmt.Errorf("invalid JSON in agent output: %w", err))
	}
	return w.Insert(ctx, &payload)
}

// Insert persists p. It never returns an error: every failure is reported
// through Result after compensation has run.
func (w *Workflow) Insert(ctx context.Context, p *ContentPayload) (result Result) {
	r := &run{
		payload:   p,
		title:     topicTitle(p),
		diff:      difficulty(p),
		createdBy: p.CreatedBy,
		publish:   p.publish(),
		counters:  Count(p),
		planned:   planBlocks(p),
		started:   w.now(),
	}

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("insertion panicked: %v", rec)
			w.logger.Error("insertion panicked",
				zap.String("topic_id", r.topicID),
				zap.String("state", r.state.String()),
				zap.Any("panic", rec),
			)
			if r.topicID != "" {
				w.compensateByQuery(ctx, r)
			}
			result = w.finishFailed(ctx, r, err)
		}
	}()

	if w.store == nil {
		return w.finishFailed(ctx, r, ErrMissingStore)
	}

	r.category = w.resolveCategory(ctx, p)

	topicID, err := w.store.CreateTopic(ctx, w.buildTopic(r))
	if err != nil {
		return w.finishFailed(ctx, r, fmt.Errorf("create topic: %w", err))
	}
	r.topicID = topicID
	r.undo.push(KindTopic, topicID, func(ctx context.Context) error {
		return w.store.DeleteTopic(ctx, topicID)
	})
	w.transition(r, StateTopicCreated)

	if err := w.createResources(ctx, r); err != nil {
		return w.rollback(ctx, r, err)
	}
	w.transition(r, StateResourcesCreated)

	if r.publish {
		if err := w.store.PublishTopic(ctx, topicID); err != nil {
			return w.rollback(ctx, r, fmt.Errorf("publish topic: %w", err))
		}
		w.transition(r, StatePublished)
	}

	typ, err := w.notifier.ResolveType(ctx, models.NotificationTopicGenerated)
	if err != nil {
		w.logger.Error("notification type lookup failed after insert, sweeping topic",
			zap.String("topic_id", topicID),
			zap.Error(err),
		)
		w.compensateByQuery(ctx, r)
		return w.finishFailed(ctx, r, err)
	}
	w.notifySuccess(ctx, r, typ)
	w.transition(r, StateNotificationSent)

	return w.finishOK(ctx, r)
}

func (w *Workflow) resolveCategory(ctx context.Context, p *ContentPayload) string {
	var candidate string
	if p.CategoryTagsDescription != nil {
		candidate = p.CategoryTagsDescription.SelectedCategory
	}
	categoryID, err := ResolveCategory(ctx, w.store, candidate)
	if err != nil {
		w.logger.Warn("category lookup failed, leaving topic uncategorised", zap.Error(err))
		return ""
	}
	return categoryID
}

func (w *Workflow) buildTopic(r *run) *models.TopicModel {
	p := r.payload
	prompt, _ := json.Marshal(map[string]string{"topic": r.title, "difficulty": r.diff})
	now := w.now().UnixMilli()

	topic := &models.TopicModel{
		Title:             r.title,
		Description:       describe(p),
		Slug:              Slugify(r.title),
		Difficulty:        r.diff,
		EstimatedReadTime: r.counters.EstimatedReadTime,
		IsAIGenerated:     true,
		GenerationPrompt:  string(prompt),
		Metadata: models.TopicMetadata{
			WordCount:     r.counters.WordCount,
			ReadingLevel:  r.diff,
			EstimatedTime: r.counters.EstimatedReadTime,
			ExerciseCount: r.counters.Exercises,
		},
		CategoryID: r.category,
		CreatedBy:  r.createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if p.RealWorldImpact != nil && len(p.RealWorldImpact.SourceURLs) > 0 {
		topic.Sources = p.RealWorldImpact.SourceURLs
	}
	if p.Thumbnail != nil {
		topic.ImageURL = p.Thumbnail.ThumbnailURL
	}
	if ctd := p.CategoryTagsDescription; ctd != nil {
		topic.TagIDs = ProcessTags(ctd.GeneratedTags)
		if len(topic.TagIDs) == 0 {
			topic.TagIDs = nil
		}
	}
	return topic
}

func (w *Workflow) createResources(ctx context.Context, r *run) error {
	if brief := r.payload.briefText(); brief != "" {
		e := &models.EmbeddingModel{
			TopicID:     r.topicID,
			Embedding:   w.embed(ctx, r, brief),
			ContentType: "research_brief",
			Difficulty:  r.diff,
			CategoryID:  r.category,
			CreatedAt:   w.now().UnixMilli(),
		}
		id, err := w.store.CreateEmbedding(ctx, e)
		if err != nil {
			return fmt.Errorf("create embedding: %w", err)
		}
		r.undo.push(KindEmbedding, id, func(ctx context.Context) error {
			return w.store.DeleteEmbedding(ctx, id)
		})
	}

	for _, pb := range r.planned {
		block := pb.Block
		block.TopicID = r.topicID
		block.CreatedAt = w.now().UnixMilli()
		id, err := w.store.CreateBlock(ctx, &block)
		if err != nil {
			return fmt.Errorf("create %s block (order %d): %w", pb.Step, block.Order, err)
		}
		r.blocksCreated++
		r.undo.push(KindBlock, id, func(ctx context.Context) error {
			return w.store.DeleteBlock(ctx, id)
		})
	}
	return nil
}

func (w *Workflow) embed(ctx context.Context, r *run, text string) []float64 {
	if w.embedder == nil {
		return embedding.Zero(w.dimensions)
	}
	vec, err := w.embedder.Embed(ctx, text)
	if err != nil {
		w.logger.Warn("embedding failed, storing zero vector",
			zap.String("topic_id", r.topicID),
			zap.Error(err),
		)
		return embedding.Zero(w.dimensions)
	}
	return vec
}

func (w *Workflow) transition(r *run, next State) {
	w.logger.Debug("insertion state",
		zap.String("topic_id", r.topicID),
		zap.String("from", r.state.String()),
		zap.String("to", next.String()),
	)
	r.state = next
}

// rollback handles a failure after the topic exists: undo the tracked
// resources, then report.
func (w *Workflow) rollback(ctx context.Context, r *run, cause error) Result {
	w.transition(r, StateError)
	w.logger.Error("insertion failed, compensating",
		zap.String("topic_id", r.topicID),
		zap.Int("tracked", r.undo.len()),
		zap.Error(cause),
	)
	w.compensateKnown(ctx, r)
	return w.finishFailed(ctx, r, cause)
}

// compensateKnown deletes every resource this call recorded, newest first.
func (w *Workflow) compensateKnown(ctx context.Context, r *run) {
	ctx = context.WithoutCancel(ctx)
	r.undo.unwind(ctx, func(kind, id string, err error) {
		w.reportDelete(r, kind, id, err)
	})
	w.transition(r, StateRolledBack)
}

// compensateByQuery rediscovers the topic's children from the store and
// deletes them before the topic itself.
func (w *Workflow) compensateByQuery(ctx context.Context, r *run) {
	ctx = context.WithoutCancel(ctx)
	topicID := r.topicID

	blocks, err := w.store.ListBlocksByTopic(ctx, topicID)
	if err != nil {
		w.logger.Warn("list blocks for sweep failed", zap.String("topic_id", topicID), zap.Error(err))
	}
	for _, b := range blocks {
		w.reportDelete(r, KindBlock, b.ID.Hex(), w.store.DeleteBlock(ctx, b.ID.Hex()))
	}

	embeddings, err := w.store.ListEmbeddingsByTopic(ctx, topicID)
	if err != nil {
		w.logger.Warn("list embeddings for sweep failed", zap.String("topic_id", topicID), zap.Error(err))
	}
	for _, e := range embeddings {
		w.reportDelete(r, KindEmbedding, e.ID.Hex(), w.store.DeleteEmbedding(ctx, e.ID.Hex()))
	}

	w.reportDelete(r, KindTopic, topicID, w.store.DeleteTopic(ctx, topicID))
	r.undo = undoStack{}
	w.transition(r, StateRolledBack)
}

func (w *Workflow) reportDelete(r *run, kind, id string, err error) {
	w.metrics.ObserveCompensation(kind, err == nil)
	if err == nil {
		r.compensated++
		w.logger.Info("compensated", zap.String("kind", kind), zap.String("id", id), zap.String("topic_id", r.topicID))
		return
	}
	r.compFailures++
	fields := []zap.Field{zap.String("kind", kind), zap.String("id", id), zap.String("topic_id", r.topicID), zap.Error(err)}
	if kind == KindTopic {
		w.logger.Warn("topic could not be deleted and may be orphaned", fields...)
		return
	}
	w.logger.Warn("compensating delete failed", fields...)
}

func (w *Workflow) notifySuccess(ctx context.Context, r *run, typ *models.NotificationTypeModel) {
	if typ == nil {
		w.logger.Warn("notification type not registered", zap.String("key", models.NotificationTopicGenerated))
		return
	}
	_, err := w.notifier.Deliver(ctx, typ, &models.NotificationModel{
		UserID:  r.createdBy,
		Title:   "Topic Generated Successfully",
		Message: fmt.Sprintf("Your topic '%s' has been generated and is ready to explore!", r.title),
		Data: map[string]any{
			"topicId": r.topicID,
			"metadata": map[string]any{
				"topic_title":    r.title,
				"difficulty":     r.diff,
				"word_count":     r.counters.WordCount,
				"exercise_count": r.counters.Exercises,
				"published":      r.publish,
			},
		},
	})
	if err != nil {
		w.logger.Warn("success notification failed", zap.String("topic_id", r.topicID), zap.Error(err))
	}
}

func (w *Workflow) notifyFailure(ctx context.Context, r *run, cause error) {
	if r.createdBy == "" || w.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	typ, err := w.notifier.ResolveType(ctx, models.NotificationError)
	if err != nil {
		w.logger.Warn("error notification type lookup failed", zap.Error(err))
		return
	}
	if typ == nil {
		return
	}
	_, err = w.notifier.Deliver(ctx, typ, &models.NotificationModel{
		UserID:  r.createdBy,
		Title:   "Topic Generation Failed",
		Message: fmt.Sprintf("We could not generate your topic '%s'. Please try again.", r.title),
		Data: map[string]any{
			"topic_title": r.title,
			"error":       cause.Error(),
		},
	})
	if err != nil {
		w.logger.Warn("failure notification failed", zap.Error(err))
	}
}

func (w *Workflow) finishFailed(ctx context.Context, r *run, cause error) Result {
	if r.state != StateRolledBack {
		r.state = StateError
	}
	w.notifyFailure(ctx, r, cause)

	outcome := models.RunOutcomeFailed
	if r.topicID != "" {
		outcome = models.RunOutcomeRolledBack
	}
	w.metrics.ObserveInsertion(outcome)
	w.record(ctx, r, outcome, "", cause)

	return Result{
		Success: false,
		Message: fmt.Sprintf("Error inserting topic: %v", cause),
		State:   r.state,
	}
}

func (w *Workflow) finishOK(ctx context.Context, r *run) Result {
	w.transition(r, StateDone)
	w.metrics.ObserveInsertion(models.RunOutcomeInserted)
	w.record(ctx, r, models.RunOutcomeInserted, r.topicID, nil)

	topicID := r.topicID
	w.logger.Info("topic inserted",
		zap.String("topic_id", topicID),
		zap.String("title", r.title),
		zap.Int("blocks", r.blocksCreated),
		zap.Bool("published", r.publish),
	)
	return Result{
		Success: true,
		TopicID: &topicID,
		Message: fmt.Sprintf("Successfully inserted topic '%s' with ID: %s", r.title, topicID),
		Metadata: &Metadata{
			WordCount:             r.counters.WordCount,
			EstimatedReadTime:     r.counters.EstimatedReadTime,
			ExerciseCount:         r.counters.Exercises,
			InformationBlockCount: r.counters.InformationBlocks,
			Published:             r.publish,
		},
		State: r.state,
	}
}

func (w *Workflow) record(ctx context.Context, r *run, outcome, topicID string, cause error) {
	if w.recorder == nil {
		return
	}
	row := &models.GenerationRunModel{
		TopicTitle:       r.title,
		Difficulty:       r.diff,
		CreatedBy:        r.createdBy,
		Outcome:          outcome,
		TopicID:          topicID,
		BlockCount:       r.blocksCreated,
		ExerciseCount:    r.counters.Exercises,
		WordCount:        r.counters.WordCount,
		Published:        outcome == models.RunOutcomeInserted && r.publish,
		CompensatedCount: r.compensated,
		CompensateErrors: r.compFailures,
		DurationMS:       w.now().Sub(r.started).Milliseconds(),
	}
	if cause != nil {
		row.Error = cause.Error()
	}
	if err := w.recorder.Record(context.WithoutCancel(ctx), row); err != nil {
		w.logger.Warn("audit record failed", zap.Error(err))
	}
}
