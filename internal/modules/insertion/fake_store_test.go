package insertion

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/wsic/generator/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errInjected = errors.New("injected failure")

// fakeStore keeps documents in memory. failAt maps an operation name to the
// 1-based call number that fails; failAlways fails every call.
type fakeStore struct {
	mu sync.Mutex

	topics        map[string]models.TopicModel
	embeddings    map[string]models.EmbeddingModel
	blocks        map[string]models.BlockModel
	notifications []models.NotificationModel
	categories    []models.CategoryModel
	types         []models.NotificationTypeModel
	published     map[string]bool

	calls      map[string]int
	failAt     map[string]int
	failAlways map[string]bool
	log        []string
	panicOn    string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		topics:     map[string]models.TopicModel{},
		embeddings: map[string]models.EmbeddingModel{},
		blocks:     map[string]models.BlockModel{},
		published:  map[string]bool{},
		calls:      map[string]int{},
		failAt:     map[string]int{},
		failAlways: map[string]bool{},
		types: []models.NotificationTypeModel{
			{ID: primitive.NewObjectID(), Key: models.NotificationTopicGenerated},
			{ID: primitive.NewObjectID(), Key: models.NotificationError},
		},
	}
}

func (f *fakeStore) hit(op string) error {
	f.calls[op]++
	if op == f.panicOn {
		panic("store exploded in " + op)
	}
	if f.failAlways[op] || f.failAt[op] == f.calls[op] {
		return errInjected
	}
	return nil
}

func (f *fakeStore) record(entry string) { f.log = append(f.log, entry) }

func (f *fakeStore) CreateTopic(_ context.Context, t *models.TopicModel) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("CreateTopic"); err != nil {
		return "", err
	}
	t.ID = primitive.NewObjectID()
	f.topics[t.ID.Hex()] = *t
	f.record("create topic")
	return t.ID.Hex(), nil
}

func (f *fakeStore) PublishTopic(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("PublishTopic"); err != nil {
		return err
	}
	f.published[id] = true
	f.record("publish topic")
	return nil
}

func (f *fakeStore) DeleteTopic(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("DeleteTopic"); err != nil {
		return err
	}
	delete(f.topics, id)
	f.record("delete topic")
	return nil
}

func (f *fakeStore) CreateEmbedding(_ context.Context, e *models.EmbeddingModel) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("CreateEmbedding"); err != nil {
		return "", err
	}
	e.ID = primitive.NewObjectID()
	f.embeddings[e.ID.Hex()] = *e
	f.record("create embedding")
	return e.ID.Hex(), nil
}

func (f *fakeStore) DeleteEmbedding(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("DeleteEmbedding"); err != nil {
		return err
	}
	delete(f.embeddings, id)
	f.record("delete embedding")
	return nil
}

func (f *fakeStore) CreateBlock(_ context.Context, b *models.BlockModel) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("CreateBlock"); err != nil {
		return "", err
	}
	b.ID = primitive.NewObjectID()
	f.blocks[b.ID.Hex()] = *b
	f.record("create block")
	return b.ID.Hex(), nil
}

func (f *fakeStore) DeleteBlock(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("DeleteBlock"); err != nil {
		return err
	}
	delete(f.blocks, id)
	f.record("delete block")
	return nil
}

func (f *fakeStore) ListBlocksByTopic(_ context.Context, topicID string) ([]models.BlockModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("ListBlocksByTopic"); err != nil {
		return nil, err
	}
	var out []models.BlockModel
	for _, b := range f.blocks {
		if b.TopicID == topicID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) ListEmbeddingsByTopic(_ context.Context, topicID string) ([]models.EmbeddingModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("ListEmbeddingsByTopic"); err != nil {
		return nil, err
	}
	var out []models.EmbeddingModel
	for _, e := range f.embeddings {
		if e.TopicID == topicID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ListCategories(context.Context) ([]models.CategoryModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("ListCategories"); err != nil {
		return nil, err
	}
	return f.categories, nil
}

func (f *fakeStore) ListNotificationTypes(context.Context) ([]models.NotificationTypeModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("ListNotificationTypes"); err != nil {
		return nil, err
	}
	return f.types, nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n *models.NotificationModel) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("CreateNotification"); err != nil {
		return "", err
	}
	f.notifications = append(f.notifications, *n)
	f.record("create notification")
	return primitive.NewObjectID().Hex(), nil
}

func (f *fakeStore) sortedBlocks() []models.BlockModel {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.BlockModel, 0, len(f.blocks))
	for _, b := range f.blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

type fakeEmbedder struct {
	vec  []float64
	err  error
	dims int
}

func (e *fakeEmbedder) Embed(context.Context, string) ([]float64, error) { return e.vec, e.err }
func (e *fakeEmbedder) Dimensions() int                                 { return e.dims }

type fakeRecorder struct {
	runs []*models.GenerationRunModel
}

func (r *fakeRecorder) Record(_ context.Context, run *models.GenerationRunModel) error {
	r.runs = append(r.runs, run)
	return nil
}
