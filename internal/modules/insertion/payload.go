package insertion

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ContentPayload is the decoded output of the topic generator. Every section
// is optional; a missing section only skips its block.
type ContentPayload struct {
	Topic                   string                   `json:"topic,omitempty"`
	Difficulty              string                   `json:"difficulty,omitempty"`
	CreatedBy               string                   `json:"created_by,omitempty"`
	PublishImmediately      *Flag                    `json:"publish_immediately,omitempty"`
	ResearchBrief           *Research                `json:"research_brief,omitempty"`
	ResearchDeep            *Research                `json:"research_deep,omitempty"`
	Quiz                    *Quiz                    `json:"quiz,omitempty"`
	Reorder                 *Reorder                 `json:"reorder,omitempty"`
	FinalQuiz               *Quiz                    `json:"final_quiz,omitempty"`
	RealWorldImpact         *Impact                  `json:"real_world_impact,omitempty"`
	FlashCards              []FlashCard              `json:"flash_cards,omitempty"`
	Thumbnail               *Thumbnail               `json:"thumbnail,omitempty"`
	CategoryTagsDescription *CategoryTagsDescription `json:"category_tags_description,omitempty"`
}

type Research struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
	Depth string `json:"depth,omitempty"`
}

type Quiz struct {
	Questions []Question `json:"questions,omitempty"`
}

type Question struct {
	Question      string  `json:"question"`
	Options       Strings `json:"options"`
	CorrectAnswer any     `json:"correct_answer"`
	Explanation   string  `json:"explanation"`
}

type Reorder struct {
	Question      string  `json:"question"`
	Options       Strings `json:"options"`
	CorrectAnswer any     `json:"correct_answer"`
	Explanation   string  `json:"explanation"`
}

func (r *Reorder) present() bool {
	if r == nil {
		return false
	}
	return r.Question != "" || len(r.Options) > 0 || r.CorrectAnswer != nil || r.Explanation != ""
}

type Impact struct {
	Title      string  `json:"title,omitempty"`
	Content    string  `json:"content,omitempty"`
	SourceURLs Strings `json:"source_urls,omitempty"`
}

type FlashCard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type Thumbnail struct {
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	AltText      string `json:"alt_text,omitempty"`
}

type CategoryTagsDescription struct {
	SelectedCategory string  `json:"selected_category,omitempty"`
	ShortDescription string  `json:"short_description,omitempty"`
	GeneratedTags    Strings `json:"generated_tags,omitempty"`
}

// Flag is a boolean that also accepts the strings "true"/"false" and 0/1,
// which generators emit interchangeably.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = false
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		*f = Flag(v)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = n != 0
	return nil
}

// Strings is a list of display strings. Elements may arrive as numbers,
// booleans or nested values; each is kept in its JSON text form. A lone
// scalar is read as a one-element list.
type Strings []string

func (s *Strings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	var raw []json.RawMessage
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = []json.RawMessage{data}
	}
	out := make(Strings, 0, len(raw))
	for _, item := range raw {
		text, err := rawText(item)
		if err != nil {
			return err
		}
		out = append(out, text)
	}
	*s = out
	return nil
}

func rawText(item json.RawMessage) (string, error) {
	item = bytes.TrimSpace(item)
	switch {
	case bytes.Equal(item, []byte("null")):
		return "", nil
	case len(item) > 0 && item[0] == '"':
		var str string
		if err := json.Unmarshal(item, &str); err != nil {
			return "", err
		}
		return str, nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, item); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
}

// BoolFlag returns a pointer to a Flag holding v.
func BoolFlag(v bool) *Flag {
	f := Flag(v)
	return &f
}

func (p *ContentPayload) briefText() string {
	if p.ResearchBrief == nil {
		return ""
	}
	return p.ResearchBrief.Text
}

func (p *ContentPayload) deepText() string {
	if p.ResearchDeep == nil {
		return ""
	}
	return p.ResearchDeep.Text
}

func (p *ContentPayload) impactContent() string {
	if p.RealWorldImpact == nil {
		return ""
	}
	return p.RealWorldImpact.Content
}

func (p *ContentPayload) publish() bool {
	return p.PublishImmediately != nil && bool(*p.PublishImmediately)
}
