package models

import (
	"time"

	"gorm.io/datatypes"
)

type ReviewMode string

const (
	// ReviewImmediate shows per-question feedback while the attempt is running.
	ReviewImmediate ReviewMode = "immediate"
	// ReviewPost defers all feedback until the attempt is completed.
	ReviewPost ReviewMode = "post"
)

// OptionLabels are the canonical option keys for a question and, in the same
// order, the display slots a shuffle assigns options to.
var OptionLabels = []string{"A", "B", "C", "D"}

// RetakeSettings gates whether and when a user may start another attempt.
// CoolDownDays supports sub-day fractions so short cooldowns are testable.
type RetakeSettings struct {
	Enabled      bool    `json:"enabled" gorm:"column:retake_enabled;default:false"`
	MaxAttempts  int     `json:"max_attempts" gorm:"column:max_attempts;default:1" validate:"max_attempts"`
	CoolDownDays float64 `json:"cool_down_days" gorm:"column:cool_down_days;default:0" validate:"cool_down_days"`
}

// Quiz is the content definition an attempt runs against. It is owned by the
// content-management service and read-only here.
type Quiz struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	TopicID     uint       `json:"topic_id" gorm:"not null;index"`
	Title       string     `json:"title" gorm:"not null;size:200" validate:"required,max=200"`
	TotalPoints float64    `json:"total_points" gorm:"not null" validate:"required,gt=0"`
	ReviewMode  ReviewMode `json:"review_mode" gorm:"default:post"`

	RetakeSettings RetakeSettings `json:"retake_settings" gorm:"embedded"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Questions []Question `json:"questions" gorm:"foreignKey:QuizID;references:ID"`
}

// Question holds one multiple-choice question. Options map labels (A-D) to
// option text; CorrectKey must reference an existing label. Question IDs are
// unique within a quiz but not necessarily contiguous.
type Question struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	QuizID uint   `json:"quiz_id" gorm:"not null;index"`
	Prompt string `json:"prompt" gorm:"type:text;not null" validate:"required"`

	Options    datatypes.JSONType[map[string]string] `json:"options" gorm:"type:jsonb"`
	CorrectKey string                                `json:"correct_key" gorm:"not null;size:1" validate:"required,oneof=A B C D"`

	Explanation *string   `json:"explanation" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

func (Question) TableName() string {
	return "questions"
}

// QuestionCount returns the number of questions on the quiz.
func (q *Quiz) QuestionCount() int {
	return len(q.Questions)
}

// QuestionByID finds a question on the quiz by its id.
func (q *Quiz) QuestionByID(id uint) (*Question, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return &q.Questions[i], true
		}
	}
	return nil, false
}
