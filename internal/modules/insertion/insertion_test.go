package insertion

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wsic/generator/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func fullPayload(createdBy string, publish bool) *ContentPayload {
	return &ContentPayload{
		Topic:              "Photosynthesis Basics",
		Difficulty:         "Intermediate",
		CreatedBy:          createdBy,
		PublishImmediately: BoolFlag(publish),
		ResearchBrief:      &Research{Title: "Brief", Text: "Plants turn light into sugar."},
		ResearchDeep:       &Research{Title: "Deep", Text: "Chlorophyll absorbs red and blue light."},
		Quiz: &Quiz{Questions: []Question{
			{Question: "What absorbs light?", Options: []string{"Chlorophyll", "Water", "Soil", "Air"}, CorrectAnswer: "Chlorophyll", Explanation: "Pigment."},
			{Question: "Output?", Options: []string{"Sugar", "Salt", "Iron", "Sand"}, CorrectAnswer: "Sugar"},
		}},
		Reorder: &Reorder{Question: "Order the steps", Options: []string{"Light", "Split water", "Make sugar"}, CorrectAnswer: []any{"0", "1", "2"}},
		FinalQuiz: &Quiz{Questions: []Question{
			{Question: "Where does it happen?", Options: []string{"Chloroplast", "Nucleus", "Root", "Stem"}, CorrectAnswer: "Chloroplast"},
		}},
		RealWorldImpact: &Impact{Title: "Impact", Content: "Crops feed the world.", SourceURLs: []string{"https://example.org/a"}},
		FlashCards:      []FlashCard{{Front: "Chlorophyll", Back: "Green pigment"}, {Front: "Glucose", Back: "Sugar"}},
		Thumbnail:       &Thumbnail{ThumbnailURL: "https://img.example.org/leaf.png", AltText: "leaf"},
		CategoryTagsDescription: &CategoryTagsDescription{
			SelectedCategory: "",
			ShortDescription: "How plants eat light.",
			GeneratedTags:    []string{" biology ", "", "plants", "  ", "biology"},
		},
	}
}

func newWorkflow(store *fakeStore) (*Workflow, *fakeRecorder) {
	rec := &fakeRecorder{}
	return New(Options{
		Store:    store,
		Embedder: &fakeEmbedder{vec: []float64{0.1, 0.2, 0.3}, dims: 3},
		Recorder: rec,
	}), rec
}

func TestInsertCreatesAllBlocksInCanonicalOrder(t *testing.T) {
	store := newFakeStore()
	wf, rec := newWorkflow(store)

	res := wf.Insert(context.Background(), fullPayload("user-1", true))

	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.TopicID)
	assert.Equal(t, StateDone, res.State)

	blocks := store.sortedBlocks()
	require.Len(t, blocks, 7)
	wantStyles := []string{"research_brief", "quiz_group", "research_deep", "reorder_group", "real_world_impact", "final_quiz_group", "summary"}
	for i, b := range blocks {
		assert.Equal(t, i, b.Order)
		assert.Equal(t, *res.TopicID, b.TopicID)
		if b.Type == models.BlockTypeInformation {
			assert.Equal(t, wantStyles[i], b.Content.Data["styleKey"])
		} else {
			assert.Equal(t, wantStyles[i], b.Content.Data["exerciseType"])
		}
	}

	quiz := blocks[1].Content.Data["quizData"].(map[string]any)
	questions := quiz["questions"].([]map[string]any)
	require.Len(t, questions, 2)
	assert.Equal(t, 10, questions[0]["points"])
	assert.Equal(t, []map[string]any{
		{"id": "0", "text": "Chlorophyll"}, {"id": "1", "text": "Water"},
		{"id": "2", "text": "Soil"}, {"id": "3", "text": "Air"},
	}, questions[0]["options"])
	assert.Equal(t, 15, blocks[3].Content.Data["reorderData"].(map[string]any)["points"])
	summary := blocks[6].Content.Data["content"].(map[string]any)["text"]
	assert.Equal(t, "**1. Chlorophyll**\n\nGreen pigment\n\n**2. Glucose**\n\nSugar\n\n", summary)

	topic := store.topics[*res.TopicID]
	assert.Equal(t, "photosynthesis-basics", topic.Slug)
	assert.Equal(t, "intermediate", topic.Difficulty)
	assert.Equal(t, "How plants eat light.", topic.Description)
	assert.Equal(t, []string{"biology", "plants", "biology"}, topic.TagIDs)
	assert.Equal(t, []string{"https://example.org/a"}, topic.Sources)
	assert.Equal(t, "https://img.example.org/leaf.png", topic.ImageURL)
	assert.JSONEq(t, `{"topic":"Photosynthesis Basics","difficulty":"intermediate"}`, topic.GenerationPrompt)
	assert.True(t, topic.IsAIGenerated)
	assert.True(t, store.published[*res.TopicID])

	require.Len(t, store.embeddings, 1)
	for _, e := range store.embeddings {
		assert.Equal(t, []float64{0.1, 0.2, 0.3}, e.Embedding)
		assert.Equal(t, "research_brief", e.ContentType)
	}

	require.NotNil(t, res.Metadata)
	assert.Equal(t, 4, res.Metadata.ExerciseCount)
	assert.Equal(t, 4, res.Metadata.InformationBlockCount)
	assert.Equal(t, 1, res.Metadata.EstimatedReadTime)
	assert.True(t, res.Metadata.Published)

	require.Len(t, store.notifications, 1)
	n := store.notifications[0]
	assert.Equal(t, "user-1", n.UserID)
	assert.Equal(t, "Topic Generated Successfully", n.Title)
	assert.Equal(t, "Your topic 'Photosynthesis Basics' has been generated and is ready to explore!", n.Message)
	assert.Equal(t, *res.TopicID, n.Data["topicId"])

	require.Len(t, rec.runs, 1)
	assert.Equal(t, models.RunOutcomeInserted, rec.runs[0].Outcome)
	assert.Equal(t, 7, rec.runs[0].BlockCount)
}

func TestInsertEmptyPayloadStillCreatesTopic(t *testing.T) {
	store := newFakeStore()
	wf, _ := newWorkflow(store)

	res := wf.Insert(context.Background(), &ContentPayload{})

	require.True(t, res.Success, res.Message)
	assert.Len(t, store.topics, 1)
	assert.Empty(t, store.blocks)
	assert.Empty(t, store.embeddings)
	topic := store.topics[*res.TopicID]
	assert.Equal(t, "WSIC Topic", topic.Title)
	assert.Equal(t, "beginner", topic.Difficulty)
	assert.Equal(t, 1, topic.EstimatedReadTime)
	assert.Nil(t, topic.Sources)
	assert.Empty(t, topic.ImageURL)
	assert.False(t, res.Metadata.Published)
	assert.Zero(t, store.calls["PublishTopic"])
	assert.Equal(t, "system", store.notifications[0].UserID)
}

func TestInsertBlockFailureCompensatesEverything(t *testing.T) {
	store := newFakeStore()
	store.failAt["CreateBlock"] = 3
	wf, rec := newWorkflow(store)

	res := wf.Insert(context.Background(), fullPayload("user-1", true))

	assert.False(t, res.Success)
	assert.Nil(t, res.TopicID)
	assert.Nil(t, res.Metadata)
	assert.Equal(t, StateRolledBack, res.State)
	assert.Contains(t, res.Message, "injected failure")

	assert.Empty(t, store.topics)
	assert.Empty(t, store.blocks)
	assert.Empty(t, store.embeddings)
	assert.Equal(t, []string{
		"create topic", "create embedding", "create block", "create block",
		"delete block", "delete block", "delete embedding", "delete topic",
		"create notification",
	}, store.log)
	assert.Zero(t, store.calls["PublishTopic"])

	require.Len(t, store.notifications, 1)
	assert.Equal(t, "Topic Generation Failed", store.notifications[0].Title)
	assert.Equal(t, "Photosynthesis Basics", store.notifications[0].Data["topic_title"])

	require.Len(t, rec.runs, 1)
	assert.Equal(t, models.RunOutcomeRolledBack, rec.runs[0].Outcome)
	assert.Equal(t, 4, rec.runs[0].CompensatedCount)
}

func TestInsertCompensationContinuesPastDeleteErrors(t *testing.T) {
	store := newFakeStore()
	store.failAt["CreateBlock"] = 3
	store.failAt["DeleteBlock"] = 1
	store.failAlways["DeleteTopic"] = true
	wf, rec := newWorkflow(store)

	res := wf.Insert(context.Background(), fullPayload("", false))

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "create research_deep block (order 2)")
	assert.Len(t, store.blocks, 1)
	assert.Empty(t, store.embeddings)
	assert.Len(t, store.topics, 1, "orphaned topic is tolerated")
	assert.Empty(t, store.notifications, "no failure notification without a requester")
	assert.Equal(t, 2, rec.runs[0].CompensateErrors)
}

func TestInsertEmbeddingFailureDeletesTopic(t *testing.T) {
	store := newFakeStore()
	store.failAlways["CreateEmbedding"] = true
	wf, _ := newWorkflow(store)

	res := wf.Insert(context.Background(), fullPayload("u", false))

	assert.False(t, res.Success)
	assert.Empty(t, store.topics)
	assert.Zero(t, store.calls["CreateBlock"])
}

func TestInsertPublishFailureCompensates(t *testing.T) {
	store := newFakeStore()
	store.failAlways["PublishTopic"] = true
	wf, _ := newWorkflow(store)

	res := wf.Insert(context.Background(), fullPayload("u", true))

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "publish topic")
	assert.Empty(t, store.topics)
	assert.Empty(t, store.blocks)
	assert.Empty(t, store.embeddings)
}

func TestInsertTopicFailureNeedsNoCompensation(t *testing.T) {
	store := newFakeStore()
	store.failAlways["CreateTopic"] = true
	wf, rec := newWorkflow(store)

	res := wf.Insert(context.Background(), fullPayload("u", true))

	assert.False(t, res.Success)
	assert.Equal(t, StateError, res.State)
	assert.Zero(t, store.calls["DeleteTopic"])
	assert.Equal(t, models.RunOutcomeFailed, rec.runs[0].Outcome)
}

func TestInsertNotificationWriteFailureIsIgnored(t *testing.T) {
	store := newFakeStore()
	store.failAlways["CreateNotification"] = true
	wf, _ := newWorkflow(store)

	res := wf.Insert(context.Background(), fullPayload("u", true))

	assert.True(t, res.Success)
	assert.Len(t, store.topics, 1)
	assert.Len(t, store.blocks, 7)
}

func TestInsertMissingNotificationTypeIsIgnored(t *testing.T) {
	store := newFakeStore()
	store.types = nil
	wf, _ := newWorkflow(store)

	res := wf.Insert(context.Background(), fullPayload("u", false))

	assert.True(t, res.Success)
	assert.Empty(t, store.notifications)
}

func TestInsertNotificationLookupFailureSweepsByQuery(t *testing.T) {
	store := newFakeStore()
	store.failAlways["ListNotificationTypes"] = true
	wf, _ := newWorkflow(store)

	res := wf.Insert(context.Background(), fullPayload("u", true))

	assert.False(t, res.Success)
	assert.Equal(t, StateRolledBack, res.State)
	assert.Equal(t, 1, store.calls["ListBlocksByTopic"])
	assert.Equal(t, 1, store.calls["ListEmbeddingsByTopic"])
	assert.Empty(t, store.topics)
	assert.Empty(t, store.blocks)
	assert.Empty(t, store.embeddings)
}

func TestInsertPanicSweepsByQuery(t *testing.T) {
	store := newFakeStore()
	store.panicOn = "PublishTopic"
	wf, _ := newWorkflow(store)

	res := wf.Insert(context.Background(), fullPayload("u", true))

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "panicked")
	assert.Empty(t, store.topics)
	assert.Empty(t, store.blocks)
	assert.Empty(t, store.embeddings)
}

func TestInsertEmbedderFailureUsesZeroVector(t *testing.T) {
	store := newFakeStore()
	wf := New(Options{Store: store, Embedder: &fakeEmbedder{err: errors.New("quota"), dims: 4}})

	res := wf.Insert(context.Background(), fullPayload("u", false))

	require.True(t, res.Success)
	for _, e := range store.embeddings {
		assert.Equal(t, make([]float64, 4), e.Embedding)
	}
}

func TestInsertCategoryResolution(t *testing.T) {
	science := primitive.NewObjectID()
	other := primitive.NewObjectID()

	tests := []struct {
		name       string
		categories []models.CategoryModel
		selected   string
		listErr    bool
		want       string
	}{
		{"known id kept", []models.CategoryModel{{ID: science, Name: "Science"}, {ID: other, Name: "Other"}}, science.Hex(), false, science.Hex()},
		{"unknown id falls back to other", []models.CategoryModel{{ID: science, Name: "Science"}, {ID: other, Name: "OTHER"}}, "nope", false, other.Hex()},
		{"absent id falls back to other", []models.CategoryModel{{ID: other, Name: "other"}}, "", false, other.Hex()},
		{"unknown id without other is omitted", []models.CategoryModel{{ID: science, Name: "Science"}}, "nope", false, ""},
		{"lookup error is omitted", nil, science.Hex(), true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.categories = tt.categories
			store.failAlways["ListCategories"] = tt.listErr
			wf, _ := newWorkflow(store)

			p := fullPayload("u", false)
			p.CategoryTagsDescription.SelectedCategory = tt.selected
			res := wf.Insert(context.Background(), p)

			require.True(t, res.Success)
			topic := store.topics[*res.TopicID]
			assert.Equal(t, tt.want, topic.CategoryID)
			for _, e := range store.embeddings {
				assert.Equal(t, tt.want, e.CategoryID)
			}
		})
	}
}

func TestInsertWithoutStore(t *testing.T) {
	res := New(Options{}).Insert(context.Background(), fullPayload("u", true))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, ErrMissingStore.Error())
}

func TestInsertRaw(t *testing.T) {
	store := newFakeStore()
	wf, rec := newWorkflow(store)

	res := wf.InsertRaw(context.Background(), []byte(`{"topic": "Go", "publish_immediately": "True"`))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "invalid JSON")
	assert.Zero(t, store.calls["CreateTopic"])
	assert.Equal(t, models.RunOutcomeFailed, rec.runs[0].Outcome)

	res = wf.InsertRaw(context.Background(), []byte(`{"topic": "Go", "publish_immediately": "True", "quiz": {"questions": []}}`))
	require.True(t, res.Success, res.Message)
	assert.True(t, store.published[*res.TopicID])
	assert.Empty(t, store.blocks)
}

func TestResultJSONOnFailure(t *testing.T) {
	raw, err := json.Marshal(Result{Success: false, Message: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"topic_id":null,"message":"x","metadata":null}`, string(raw))
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"  Hello, World!! ":          "hello-world",
		"Go   Concurrency -- Basics": "go-concurrency-basics",
		"---":                        "",
		"C++ & Rust":                 "c-rust",
		"Éclair 101":                 "clair-101",
	}
	for in, want := range tests {
		got := Slugify(in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, got, Slugify(got), "slugify must be idempotent for %q", in)
	}
}

func TestEstimateReadTime(t *testing.T) {
	words := func(n int) string { return strings.TrimSpace(strings.Repeat("word ", n)) }
	assert.Equal(t, 1, EstimateReadTime(""))
	assert.Equal(t, 1, EstimateReadTime(words(10)))
	assert.Equal(t, 1, EstimateReadTime(words(337)))
	assert.Equal(t, 2, EstimateReadTime(words(338)))
	assert.Equal(t, 4, EstimateReadTime(words(900)))
}

func TestProcessTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "a"}, ProcessTags([]string{" a", "", "b ", "\t", "a"}))
	assert.Empty(t, ProcessTags(nil))
}

func TestCountGatesOnlyMetadata(t *testing.T) {
	p := &ContentPayload{
		Reorder:    &Reorder{Options: []string{"x"}},
		FlashCards: []FlashCard{{Front: "f"}},
	}
	c := Count(p)
	assert.Equal(t, 1, c.Exercises)
	assert.Equal(t, 1, c.InformationBlocks)

	planned := planBlocks(p)
	require.Len(t, planned, 1, "reorder without a question creates no block")
	assert.Equal(t, StepFlashCards, planned[0].Step)
}

func TestDescriptionFallsBackToTruncatedBrief(t *testing.T) {
	long := strings.Repeat("ü", 600)
	p := &ContentPayload{ResearchBrief: &Research{Text: long}}
	d := describe(p)
	assert.Equal(t, strings.Repeat("ü", 500)+"...", d)

	p.ResearchBrief.Text = "short"
	assert.Equal(t, "short", describe(p))
}

func TestFlagUnmarshal(t *testing.T) {
	tests := map[string]bool{`true`: true, `"True"`: true, `"false"`: false, `1`: true, `0`: false, `null`: false}
	for in, want := range tests {
		var f Flag
		require.NoError(t, json.Unmarshal([]byte(in), &f), in)
		assert.Equal(t, want, bool(f), in)
	}
	var f Flag
	assert.Error(t, json.Unmarshal([]byte(`"maybe"`), &f))
}

func TestStringsUnmarshal(t *testing.T) {
	tests := map[string]Strings{
		`["a", "b"]`:                 {"a", "b"},
		`[3, 1, 2.5]`:                {"3", "1", "2.5"},
		`[true, null, {"k": "v"}]`:   {"true", "", `{"k":"v"}`},
		`"https://example.org/only"`: {"https://example.org/only"},
		`null`:                       nil,
	}
	for in, want := range tests {
		var s Strings
		require.NoError(t, json.Unmarshal([]byte(in), &s), in)
		assert.Equal(t, want, s, in)
	}
}

func TestNumericReorderOptionsBecomeText(t *testing.T) {
	var p ContentPayload
	require.NoError(t, json.Unmarshal([]byte(`{"reorder": {"question": "Order ascending", "options": [3, 1, 2]}}`), &p))

	assert.Equal(t, []map[string]any{
		{"id": "0", "text": "3"},
		{"id": "1", "text": "1"},
		{"id": "2", "text": "2"},
	}, options(p.Reorder.Options))
	require.Len(t, planBlocks(&p), 1)
}
