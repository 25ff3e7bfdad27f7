package insertion

import (
	"context"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/wsic/generator/internal/models"
)

const (
	wordsPerMinute      = 225
	descriptionMaxRunes = 500
	defaultTopicTitle   = "WSIC Topic"
)

var (
	slugStrip      = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
	slugDashes     = regexp.MustCompile(`-+`)
)

// Slugify derives a lowercase URL-safe slug.
func Slugify(title string) string {
	slug := strings.TrimSpace(strings.ToLower(title))
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = slugWhitespace.ReplaceAllString(slug, "-")
	slug = slugDashes.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// EstimateReadTime returns whole minutes at 225 words per minute, never
// less than one.
func EstimateReadTime(text string) int {
	minutes := int(math.RoundToEven(float64(WordCount(text)) / wordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// ProcessTags trims tags and drops blank ones, keeping order and duplicates.
func ProcessTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// CategoryLister reads the live category set.
type CategoryLister interface {
	ListCategories(ctx context.Context) ([]models.CategoryModel, error)
}

// ResolveCategory returns candidate when it names a live category, otherwise
// the id of the category called "Other", otherwise "".
func ResolveCategory(ctx context.Context, lister CategoryLister, candidate string) (string, error) {
	categories, err := lister.ListCategories(ctx)
	if err != nil {
		return "", err
	}
	candidate = strings.TrimSpace(candidate)
	if candidate != "" {
		for _, c := range categories {
			if c.ID.Hex() == candidate {
				return candidate, nil
			}
		}
	}
	for _, c := range categories {
		if strings.EqualFold(strings.TrimSpace(c.Name), "other") {
			return c.ID.Hex(), nil
		}
	}
	return "", nil
}

// Counters summarise a payload for metadata and notifications.
type Counters struct {
	WordCount         int
	EstimatedReadTime int
	Exercises         int
	InformationBlocks int
}

// Count computes the payload counters. They never gate block creation.
func Count(p *ContentPayload) Counters {
	combined := p.briefText() + " " + p.deepText() + " " + p.impactContent()

	c := Counters{
		WordCount:         WordCount(combined),
		EstimatedReadTime: EstimateReadTime(combined),
	}
	if p.Quiz != nil {
		c.Exercises += len(p.Quiz.Questions)
	}
	if p.Reorder.present() {
		c.Exercises++
	}
	if p.FinalQuiz != nil {
		c.Exercises += len(p.FinalQuiz.Questions)
	}

	for _, nonEmpty := range []bool{
		p.briefText() != "",
		p.deepText() != "",
		p.impactContent() != "",
		len(p.FlashCards) > 0,
	} {
		if nonEmpty {
			c.InformationBlocks++
		}
	}
	return c
}

func describe(p *ContentPayload) string {
	if p.CategoryTagsDescription != nil && p.CategoryTagsDescription.ShortDescription != "" {
		return p.CategoryTagsDescription.ShortDescription
	}
	text := p.briefText()
	if utf8.RuneCountInString(text) > descriptionMaxRunes {
		return string([]rune(text)[:descriptionMaxRunes]) + "..."
	}
	return text
}

func topicTitle(p *ContentPayload) string {
	if title := strings.TrimSpace(p.Topic); title != "" {
		return title
	}
	return defaultTopicTitle
}

func difficulty(p *ContentPayload) string {
	if d := strings.ToLower(strings.TrimSpace(p.Difficulty)); d != "" {
		return d
	}
	return models.DifficultyBeginner
}
