package models

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// ShuffleMapping records, for one question in one attempt, how the original
// option labels were dealt into display slots. KeyMapping is a bijection from
// display labels onto the question's original labels; CorrectShuffledKey is
// the display label whose mapped original label equals the question's
// CorrectKey. Persisted with the attempt so a resumed attempt sees the same
// option ordering.
type ShuffleMapping struct {
	ShuffledOptions    map[string]string `json:"shuffled_options"`
	KeyMapping         map[string]string `json:"key_mapping"`
	CorrectShuffledKey string            `json:"correct_shuffled_key"`
}

// QuizAttempt is one user's run through a quiz, from start to completion.
// Answers always store original (unshuffled) option keys so grading is
// shuffle-independent. At most one attempt per (user, quiz) may be in
// progress at a time; the partial unique index on (user_id, quiz_id) backs
// that invariant in the store itself.
type QuizAttempt struct {
	ID            uint   `json:"id" gorm:"primaryKey"`
	UserID        string `json:"user_id" gorm:"not null;index:idx_user_quiz;uniqueIndex:udx_attempts_active,where:in_progress;size:255"`
	QuizID        uint   `json:"quiz_id" gorm:"not null;index:idx_user_quiz;uniqueIndex:udx_attempts_active,where:in_progress"`
	TopicID       uint   `json:"topic_id" gorm:"index"`
	AttemptNumber int    `json:"attempt_number" gorm:"not null;default:1"`

	// Lifecycle
	InProgress  bool       `json:"in_progress" gorm:"not null;index"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Progress checkpoint (0-based question index)
	CurrentQuestion    int `json:"current_question" gorm:"default:0"`
	TimeSpentInSeconds int `json:"time_spent_in_seconds"`

	// Answer state, keyed by question id rendered as a string
	Answers           datatypes.JSONType[map[string]string]         `json:"answers" gorm:"type:jsonb"`
	ShuffledQuestions datatypes.JSONType[map[string]ShuffleMapping] `json:"shuffled_questions" gorm:"type:jsonb"`

	// Outcome, meaningful only once InProgress is false
	Score       float64 `json:"score"`
	Grade       string  `json:"grade" gorm:"size:2;default:F"`
	IsBestScore bool    `json:"is_best_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// QuestionKey renders a question id as the string key used in the Answers and
// ShuffledQuestions maps.
func QuestionKey(questionID uint) string {
	return strconv.FormatUint(uint64(questionID), 10)
}

// AnswerMap returns the stored answers, never nil.
func (a *QuizAttempt) AnswerMap() map[string]string {
	m := a.Answers.Data()
	if m == nil {
		m = map[string]string{}
	}
	return m
}

// ShuffleMap returns the stored shuffle mappings, never nil.
func (a *QuizAttempt) ShuffleMap() map[string]ShuffleMapping {
	m := a.ShuffledQuestions.Data()
	if m == nil {
		m = map[string]ShuffleMapping{}
	}
	return m
}
