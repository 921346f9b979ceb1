package services

import (
	"context"
	"time"

	"github.com/quizdeck/attempt-service/internal/models"
)

// ===== REQUEST/RESPONSE DTOs =====

type StartAttemptRequest struct {
	QuizID uint `json:"quiz_id" validate:"required"`
}

// CheckpointAttemptRequest carries a partial progress snapshot. Nil fields are
// left untouched; ShuffledQuestions entries are merged per question id while
// Answers replaces the stored answer map wholesale.
type CheckpointAttemptRequest struct {
	Answers            *map[string]string               `json:"answers"`
	CurrentQuestion    *int                             `json:"current_question" validate:"omitempty,min=0"`
	ShuffledQuestions  map[string]models.ShuffleMapping `json:"shuffled_questions"`
	TimeSpentInSeconds *int                             `json:"time_spent_in_seconds" validate:"omitempty,min=0"`
}

type CompleteAttemptRequest struct {
	Answers            map[string]string `json:"answers" validate:"required,dive,option_key"`
	TimeSpentInSeconds *int              `json:"time_spent_in_seconds" validate:"omitempty,min=0"`
}

type AttemptResponse struct {
	*models.QuizAttempt
	CanResume bool `json:"can_resume"`
}

type AttemptListResponse struct {
	Attempts []*AttemptResponse `json:"attempts"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	Size     int                `json:"size"`
}

type CompleteAttemptResponse struct {
	*models.QuizAttempt
	CorrectCount  int     `json:"correct_count"`
	QuestionCount int     `json:"question_count"`
	MaxScore      float64 `json:"max_score"`
}

// ===== STATUS DTOs =====

type AttemptStatusRequest struct {
	QuizIDs []uint `json:"quiz_ids" validate:"required,min=1,dive,min=1"`
}

// Per-quiz attempt standing. A quiz is "none" until its first start,
// "in-progress" while an open attempt exists, and "completed" otherwise.
const (
	AttemptStatusNone       = "none"
	AttemptStatusInProgress = "in-progress"
	AttemptStatusCompleted  = "completed"
)

// QuizAttemptStatus summarizes a user's standing on one quiz: how many
// attempts they have made, whether one is open, their best/latest results,
// and whether they may start another attempt right now.
type QuizAttemptStatus struct {
	QuizID              uint       `json:"quiz_id"`
	Status              string     `json:"status"`
	AttemptCount        int        `json:"attempt_count"`
	HasInProgress       bool       `json:"has_in_progress"`
	InProgressID        *uint      `json:"in_progress_id,omitempty"`
	InProgressNumber    *int       `json:"in_progress_number,omitempty"`
	InProgressStartedAt *time.Time `json:"in_progress_started_at,omitempty"`
	BestScore           *float64   `json:"best_score,omitempty"`
	BestGrade           *string    `json:"best_grade,omitempty"`
	LatestScore         *float64   `json:"latest_score,omitempty"`
	LatestGrade         *string    `json:"latest_grade,omitempty"`
	LatestCompletedAt   *time.Time `json:"latest_completed_at,omitempty"`
	CanRetake           bool       `json:"can_retake"`
	RetakeReason        string     `json:"retake_reason,omitempty"`
	NextEligibleAt      *time.Time `json:"next_eligible_at,omitempty"`
	AttemptsRemaining   *int       `json:"attempts_remaining,omitempty"`
}

type AttemptStatusResponse struct {
	Statuses map[uint]*QuizAttemptStatus `json:"statuses"`
}

// ===== GRADING DTOs =====

type GradeResult struct {
	Score         float64 `json:"score"`
	Grade         string  `json:"grade"`
	CorrectCount  int     `json:"correct_count"`
	QuestionCount int     `json:"question_count"`
	MaxScore      float64 `json:"max_score"`
}

// RetakeDecision is the outcome of evaluating a quiz's retake settings
// against a user's completed attempts.
type RetakeDecision struct {
	Allowed           bool
	Reason            string
	NextEligibleAt    *time.Time
	AttemptsRemaining *int
}

// ===== SERVICE INTERFACES =====

type AttemptService interface {
	Start(ctx context.Context, req *StartAttemptRequest, userID string) (*AttemptResponse, error)
	Checkpoint(ctx context.Context, attemptID uint, req *CheckpointAttemptRequest, userID string) (*AttemptResponse, error)
	Complete(ctx context.Context, attemptID uint, req *CompleteAttemptRequest, userID string) (*CompleteAttemptResponse, error)
	Resume(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error)
	GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error)
	ListByQuiz(ctx context.Context, quizID uint, userID string, page, size int) (*AttemptListResponse, error)
}

type GradingService interface {
	Grade(quiz *models.Quiz, answers map[string]string) (*GradeResult, error)
	ValidateAnswerSet(quiz *models.Quiz, answers map[string]string) error
}

type StatusService interface {
	StatusFor(ctx context.Context, quizIDs []uint, userID string) (*AttemptStatusResponse, error)
}

// ServiceManager owns service construction and lifecycle.
type ServiceManager interface {
	Initialize(ctx context.Context) error
	Attempt() AttemptService
	Grading() GradingService
	Status() StatusService
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
