package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quizdeck/attempt-service/internal/models"
	"github.com/quizdeck/attempt-service/internal/repositories"
	"github.com/quizdeck/attempt-service/internal/validator"
)

type statusService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	now       func() time.Time
}

func NewStatusService(repo repositories.Repository, logger *slog.Logger, v *validator.Validator) StatusService {
	return &statusService{
		repo:      repo,
		logger:    logger,
		validator: v,
		now:       time.Now,
	}
}

// StatusFor summarizes the user's standing on each requested quiz. Quizzes
// and attempts are each fetched in a single query, so the cost stays flat no
// matter how many quiz ids a topic screen asks about. Unknown quiz ids are
// left out of the result.
func (s *statusService) StatusFor(ctx context.Context, quizIDs []uint, userID string) (*AttemptStatusResponse, error) {
	req := &AttemptStatusRequest{QuizIDs: quizIDs}
	if err := s.validator.Validate(req); err != nil {
		return nil, wrapValidation(err)
	}

	quizzes, err := s.repo.Quiz().GetByIDs(ctx, nil, quizIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get quizzes: %w", err)
	}

	attempts, err := s.repo.Attempt().GetByUserAndQuizzes(ctx, nil, userID, quizIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}

	byQuiz := make(map[uint][]*models.QuizAttempt, len(quizzes))
	for _, attempt := range attempts {
		byQuiz[attempt.QuizID] = append(byQuiz[attempt.QuizID], attempt)
	}

	resp := &AttemptStatusResponse{
		Statuses: make(map[uint]*QuizAttemptStatus, len(quizzes)),
	}
	for _, quiz := range quizzes {
		resp.Statuses[quiz.ID] = s.buildStatus(quiz, byQuiz[quiz.ID])
	}

	s.logger.Debug("Built attempt statuses",
		"user_id", userID,
		"requested", len(quizIDs),
		"returned", len(resp.Statuses))

	return resp, nil
}

func (s *statusService) buildStatus(quiz *models.Quiz, attempts []*models.QuizAttempt) *QuizAttemptStatus {
	status := &QuizAttemptStatus{QuizID: quiz.ID, Status: AttemptStatusNone}

	var completed []*models.QuizAttempt
	for _, attempt := range attempts {
		if attempt.InProgress {
			status.HasInProgress = true
			id, number, startedAt := attempt.ID, attempt.AttemptNumber, attempt.StartedAt
			status.InProgressID = &id
			status.InProgressNumber = &number
			status.InProgressStartedAt = &startedAt
			continue
		}
		completed = append(completed, attempt)
	}
	status.AttemptCount = len(completed)

	switch {
	case status.HasInProgress:
		status.Status = AttemptStatusInProgress
	case len(completed) > 0:
		status.Status = AttemptStatusCompleted
	}

	// A quiz never attempted has nothing to retake; the first start is gated
	// only by the quiz existing.
	if status.Status == AttemptStatusNone {
		zero := 0
		status.AttemptsRemaining = &zero
		return status
	}

	if len(completed) > 0 {
		best := completed[0]
		for _, a := range completed[1:] {
			if a.Score > best.Score {
				best = a
			}
		}
		bestScore, bestGrade := best.Score, best.Grade
		status.BestScore = &bestScore
		status.BestGrade = &bestGrade

		latest := latestCompleted(completed)
		latestScore, latestGrade := latest.Score, latest.Grade
		status.LatestScore = &latestScore
		status.LatestGrade = &latestGrade
		status.LatestCompletedAt = latest.CompletedAt
	}

	decision := EvaluateRetake(quiz, completed, status.HasInProgress, s.now())
	status.CanRetake = decision.Allowed
	status.RetakeReason = decision.Reason
	status.NextEligibleAt = decision.NextEligibleAt
	status.AttemptsRemaining = decision.AttemptsRemaining

	return status
}
