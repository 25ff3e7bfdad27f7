package models

// Generation run outcomes.
const (
	RunOutcomeInserted   = "inserted"
	RunOutcomeRolledBack = "rolled_back"
	RunOutcomeFailed     = "failed"
)

// GenerationRunModel is the audit row written for every insertion attempt.
type GenerationRunModel struct {
	Base
	TopicTitle       string `json:"topic_title"        gorm:"size:255;not null"`
	Difficulty       string `json:"difficulty"         gorm:"size:32"`
	CreatedBy        string `json:"created_by"         gorm:"size:191;index"`
	Outcome          string `json:"outcome"            gorm:"size:32;index;not null"`
	TopicID          string `json:"topic_id"           gorm:"size:64"`
	BlockCount       int    `json:"block_count"`
	ExerciseCount    int    `json:"exercise_count"`
	WordCount        int    `json:"word_count"`
	Published        bool   `json:"published"`
	CompensatedCount int    `json:"compensated_count"`
	CompensateErrors int    `json:"compensate_errors"`
	Error            string `json:"error,omitempty"    gorm:"type:text"`
	DurationMS       int64  `json:"duration_ms"`
}

func (GenerationRunModel) TableName() string { return "generation_runs" }
