package insertion

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wsic/generator/internal/models"
)

// Block steps in canonical order.
const (
	StepResearchBrief   = "research_brief"
	StepQuiz            = "quiz"
	StepResearchDeep    = "research_deep"
	StepReorder         = "reorder"
	StepRealWorldImpact = "real_world_impact"
	StepFinalQuiz       = "final_quiz"
	StepFlashCards      = "flash_cards"
)

const (
	quizPoints      = 10
	reorderPoints   = 15
	finalQuizPoints = 20
)

type plannedBlock struct {
	Step  string
	Block models.BlockModel
}

// planBlocks lays out the blocks present in p with dense order values.
func planBlocks(p *ContentPayload) []plannedBlock {
	var planned []plannedBlock
	add := func(step, blockType string, content models.BlockContent) {
		planned = append(planned, plannedBlock{
			Step: step,
			Block: models.BlockModel{
				Type:    blockType,
				Content: content,
				Order:   len(planned),
			},
		})
	}

	if text := p.briefText(); text != "" {
		add(StepResearchBrief, models.BlockTypeInformation, textContent(text, "research_brief"))
	}
	if p.Quiz != nil && len(p.Quiz.Questions) > 0 {
		add(StepQuiz, models.BlockTypeActivity, exerciseContent("quiz_group", "quizData", map[string]any{
			"type":      "quiz",
			"questions": questions(p.Quiz.Questions, quizPoints),
		}))
	}
	if text := p.deepText(); text != "" {
		add(StepResearchDeep, models.BlockTypeInformation, textContent(text, "research_deep"))
	}
	if p.Reorder != nil && p.Reorder.Question != "" {
		add(StepReorder, models.BlockTypeActivity, exerciseContent("reorder_group", "reorderData", map[string]any{
			"type":          "reorder",
			"question":      p.Reorder.Question,
			"options":       options(p.Reorder.Options),
			"correctAnswer": answer(p.Reorder.CorrectAnswer),
			"explanation":   p.Reorder.Explanation,
			"points":        reorderPoints,
		}))
	}
	if text := p.impactContent(); text != "" {
		add(StepRealWorldImpact, models.BlockTypeInformation, textContent(text, "real_world_impact"))
	}
	if p.FinalQuiz != nil && len(p.FinalQuiz.Questions) > 0 {
		add(StepFinalQuiz, models.BlockTypeActivity, exerciseContent("final_quiz_group", "finalQuizData", map[string]any{
			"type":      "final_quiz",
			"questions": questions(p.FinalQuiz.Questions, finalQuizPoints),
		}))
	}
	if len(p.FlashCards) > 0 {
		add(StepFlashCards, models.BlockTypeInformation, textContent(flashCardText(p.FlashCards), "summary"))
	}
	return planned
}

func textContent(text, styleKey string) models.BlockContent {
	return models.BlockContent{
		Type: "text",
		Data: map[string]any{
			"content":  map[string]any{"text": text},
			"styleKey": styleKey,
		},
	}
}

func exerciseContent(exerciseType, dataKey string, data map[string]any) models.BlockContent {
	return models.BlockContent{
		Type: "exercise",
		Data: map[string]any{
			"exerciseType": exerciseType,
			dataKey:        data,
		},
	}
}

func questions(qs []Question, points int) []map[string]any {
	out := make([]map[string]any, 0, len(qs))
	for _, q := range qs {
		out = append(out, map[string]any{
			"question":      q.Question,
			"options":       options(q.Options),
			"correctAnswer": answer(q.CorrectAnswer),
			"explanation":   q.Explanation,
			"points":        points,
		})
	}
	return out
}

func options(opts []string) []map[string]any {
	out := make([]map[string]any, 0, len(opts))
	for i, opt := range opts {
		out = append(out, map[string]any{"id": strconv.Itoa(i), "text": opt})
	}
	return out
}

// answer keeps string and numeric answers as given and flattens anything
// else to its string form.
func answer(v any) any {
	switch a := v.(type) {
	case nil:
		return ""
	case string, float64, int, bool:
		return a
	default:
		return fmt.Sprint(a)
	}
}

func flashCardText(cards []FlashCard) string {
	var b strings.Builder
	for i, card := range cards {
		fmt.Fprintf(&b, "**%d. %s**\n\n%s\n\n", i+1, card.Front, card.Back)
	}
	return b.String()
}
