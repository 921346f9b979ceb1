package services

import (
	"fmt"
	"log/slog"

	"github.com/quizdeck/attempt-service/internal/models"
)

type gradingService struct {
	logger *slog.Logger
}

func NewGradingService(logger *slog.Logger) GradingService {
	return &gradingService{logger: logger}
}

// Grade scores a complete answer set against the quiz key. Every question
// carries equal weight: totalPoints divided by the question count, kept as a
// float so uneven divisions do not lose points. Answers must use original
// option keys; shuffling never affects the result.
func (s *gradingService) Grade(quiz *models.Quiz, answers map[string]string) (*GradeResult, error) {
	if err := s.ValidateAnswerSet(quiz, answers); err != nil {
		return nil, err
	}

	questionCount := quiz.QuestionCount()
	pointsPerQuestion := quiz.TotalPoints / float64(questionCount)

	correct := 0
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		if answers[models.QuestionKey(q.ID)] == q.CorrectKey {
			correct++
		}
	}

	score := float64(correct) * pointsPerQuestion
	percentage := score / quiz.TotalPoints * 100

	result := &GradeResult{
		Score:         score,
		Grade:         letterGrade(percentage),
		CorrectCount:  correct,
		QuestionCount: questionCount,
		MaxScore:      quiz.TotalPoints,
	}

	s.logger.Debug("graded answer set",
		"quiz_id", quiz.ID,
		"correct", correct,
		"question_count", questionCount,
		"score", score,
		"grade", result.Grade)

	return result, nil
}

// ValidateAnswerSet rejects answer maps that do not cover the quiz exactly:
// every question answered once, no unknown question ids, every chosen key
// present among that question's options.
func (s *gradingService) ValidateAnswerSet(quiz *models.Quiz, answers map[string]string) error {
	if quiz.QuestionCount() == 0 {
		return &ValidationErrors{Errors: []ValidationError{
			{Field: "quiz", Message: "quiz has no questions"},
		}}
	}

	errs := &ValidationErrors{}
	seen := make(map[string]bool, len(answers))

	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		key := models.QuestionKey(q.ID)
		seen[key] = true

		answer, ok := answers[key]
		if !ok {
			errs.Add("answers", fmt.Sprintf("missing answer for question %d", q.ID))
			continue
		}
		if _, valid := q.Options.Data()[answer]; !valid {
			errs.Add("answers", fmt.Sprintf("option %q is not valid for question %d", answer, q.ID))
		}
	}

	for key := range answers {
		if !seen[key] {
			errs.Add("answers", fmt.Sprintf("question %s does not belong to this quiz", key))
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// letterGrade maps a percentage onto the 13-step letter scale.
func letterGrade(percentage float64) string {
	switch {
	case percentage >= 97:
		return "A+"
	case percentage >= 93:
		return "A"
	case percentage >= 90:
		return "A-"
	case percentage >= 87:
		return "B+"
	case percentage >= 83:
		return "B"
	case percentage >= 80:
		return "B-"
	case percentage >= 77:
		return "C+"
	case percentage >= 73:
		return "C"
	case percentage >= 70:
		return "C-"
	case percentage >= 67:
		return "D+"
	case percentage >= 63:
		return "D"
	case percentage >= 60:
		return "D-"
	default:
		return "F"
	}
}
