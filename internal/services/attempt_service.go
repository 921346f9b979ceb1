package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/quizdeck/attempt-service/internal/events"
	"github.com/quizdeck/attempt-service/internal/models"
	"github.com/quizdeck/attempt-service/internal/repositories"
	"github.com/quizdeck/attempt-service/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	grading   GradingService
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	business  *validator.BusinessValidator
	now       func() time.Time
	newRand   func() *rand.Rand
}

func NewAttemptService(repo repositories.Repository, grading GradingService, publisher events.EventPublisher, logger *slog.Logger, v *validator.Validator) AttemptService {
	return &attemptService{
		repo:      repo,
		grading:   grading,
		publisher: publisher,
		logger:    logger,
		validator: v,
		business:  validator.NewBusinessValidator(),
		now:       time.Now,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

// Start opens a new attempt for the user on the quiz. The whole
// check-number-insert sequence runs in one transaction serialized per
// (user, quiz), so two concurrent starts cannot both succeed or share an
// attempt number.
func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, userID string) (*AttemptResponse, error) {
	s.logger.Info("Starting quiz attempt",
		"quiz_id", req.QuizID,
		"user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, wrapValidation(err)
	}

	quiz, err := s.repo.Quiz().GetByID(ctx, nil, req.QuizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	if quiz.QuestionCount() == 0 {
		return nil, &ValidationErrors{Errors: []ValidationError{
			{Field: "quiz_id", Message: "quiz has no questions"},
		}}
	}

	var attempt *models.QuizAttempt
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Attempt().LockUserQuiz(ctx, nil, userID, req.QuizID); err != nil {
			return fmt.Errorf("failed to lock attempt slot: %w", err)
		}

		_, err := txRepo.Attempt().GetActiveAttempt(ctx, nil, userID, req.QuizID)
		if err == nil {
			return ErrAttemptInProgress
		}
		if !repositories.IsNotFoundError(err) {
			return fmt.Errorf("failed to check active attempt: %w", err)
		}

		completed, err := txRepo.Attempt().GetCompletedByUserAndQuiz(ctx, nil, userID, req.QuizID)
		if err != nil {
			return err
		}

		decision := EvaluateRetake(quiz, completed, false, s.now())
		if !decision.Allowed {
			return &RetakeDeniedError{
				Reason:            decision.Reason,
				NextEligibleAt:    decision.NextEligibleAt,
				AttemptsRemaining: decision.AttemptsRemaining,
			}
		}

		maxNumber, err := txRepo.Attempt().MaxAttemptNumber(ctx, nil, userID, req.QuizID)
		if err != nil {
			return fmt.Errorf("failed to get max attempt number: %w", err)
		}

		now := s.now()
		attempt = &models.QuizAttempt{
			UserID:            userID,
			QuizID:            quiz.ID,
			TopicID:           quiz.TopicID,
			AttemptNumber:     maxNumber + 1,
			InProgress:        true,
			StartedAt:         now,
			Answers:           newJSONMap(map[string]string{}),
			ShuffledQuestions: newJSONShuffle(ShuffleQuiz(quiz, s.newRand())),
		}

		if err := txRepo.Attempt().Create(ctx, nil, attempt); err != nil {
			if repositories.IsDuplicateError(err) {
				return ErrAttemptInProgress
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Quiz attempt started",
		"attempt_id", attempt.ID,
		"quiz_id", quiz.ID,
		"user_id", userID,
		"attempt_number", attempt.AttemptNumber)

	s.publishEvent(ctx, events.NewEvent(events.EventAttemptStarted, &events.AttemptStartedEvent{
		AttemptID:     attempt.ID,
		UserID:        attempt.UserID,
		QuizID:        attempt.QuizID,
		TopicID:       attempt.TopicID,
		AttemptNumber: attempt.AttemptNumber,
		StartedAt:     attempt.StartedAt,
	}))

	return s.toResponse(attempt), nil
}

// Checkpoint persists partial progress. The attempt row stays locked for the
// merge so concurrent checkpoints apply one after another without losing
// shuffle entries.
func (s *attemptService) Checkpoint(ctx context.Context, attemptID uint, req *CheckpointAttemptRequest, userID string) (*AttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, wrapValidation(err)
	}
	if req.Answers != nil {
		if err := s.checkAnswerPayload(*req.Answers); err != nil {
			return nil, err
		}
	}

	var attempt *models.QuizAttempt
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		var err error
		attempt, err = txRepo.Attempt().GetByIDForUpdate(ctx, nil, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to get attempt: %w", err)
		}

		// Attempts belonging to other users read as absent rather than
		// forbidden, so their existence never leaks.
		if attempt.UserID != userID {
			return ErrAttemptNotFound
		}
		if !attempt.InProgress {
			return ErrAttemptNotInProgress
		}

		s.applyCheckpoint(attempt, req)

		return txRepo.Attempt().Update(ctx, nil, attempt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Checkpoint saved",
		"attempt_id", attempt.ID,
		"current_question", attempt.CurrentQuestion)

	return s.toResponse(attempt), nil
}

// Complete grades a full answer set and closes the attempt. A rejected
// submission leaves the attempt untouched; completing an already-closed
// attempt fails rather than regrade, so retried requests cannot alter a
// recorded score.
func (s *attemptService) Complete(ctx context.Context, attemptID uint, req *CompleteAttemptRequest, userID string) (*CompleteAttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, wrapValidation(err)
	}
	if err := s.checkAnswerPayload(req.Answers); err != nil {
		return nil, err
	}

	var attempt *models.QuizAttempt
	var result *GradeResult
	var bestChanged bool
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		var err error
		attempt, err = txRepo.Attempt().GetByIDForUpdate(ctx, nil, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to get attempt: %w", err)
		}

		if attempt.UserID != userID {
			return ErrAttemptNotFound
		}
		if !attempt.InProgress {
			return ErrAttemptAlreadyCompleted
		}

		quiz, err := txRepo.Quiz().GetByID(ctx, nil, attempt.QuizID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrQuizNotFound
			}
			return fmt.Errorf("failed to get quiz: %w", err)
		}

		result, err = s.grading.Grade(quiz, req.Answers)
		if err != nil {
			return err
		}

		now := s.now()
		attempt.InProgress = false
		attempt.CompletedAt = &now
		attempt.Answers = newJSONMap(req.Answers)
		attempt.Score = result.Score
		attempt.Grade = result.Grade
		if req.TimeSpentInSeconds != nil {
			attempt.TimeSpentInSeconds = *req.TimeSpentInSeconds
		}

		if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
			return err
		}

		bestChanged, err = s.recomputeBestScore(ctx, txRepo, attempt)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Quiz attempt completed",
		"attempt_id", attempt.ID,
		"quiz_id", attempt.QuizID,
		"user_id", userID,
		"score", attempt.Score,
		"grade", attempt.Grade,
		"is_best_score", attempt.IsBestScore)

	s.publishEvent(ctx, events.NewEvent(events.EventAttemptCompleted, &events.AttemptCompletedEvent{
		AttemptID:     attempt.ID,
		UserID:        attempt.UserID,
		QuizID:        attempt.QuizID,
		TopicID:       attempt.TopicID,
		AttemptNumber: attempt.AttemptNumber,
		Score:         attempt.Score,
		MaxScore:      result.MaxScore,
		Grade:         attempt.Grade,
		IsBestScore:   attempt.IsBestScore,
		CompletedAt:   *attempt.CompletedAt,
	}))

	if bestChanged {
		s.publishEvent(ctx, events.NewEvent(events.EventBestScoreChanged, &events.BestScoreChangedEvent{
			AttemptID:     attempt.ID,
			UserID:        attempt.UserID,
			QuizID:        attempt.QuizID,
			AttemptNumber: attempt.AttemptNumber,
			Score:         attempt.Score,
			Grade:         attempt.Grade,
		}))
	}

	return &CompleteAttemptResponse{
		QuizAttempt:   attempt,
		CorrectCount:  result.CorrectCount,
		QuestionCount: result.QuestionCount,
		MaxScore:      result.MaxScore,
	}, nil
}

// Resume returns the open attempt so a client can pick up where it left off,
// shuffle mappings and saved answers included.
func (s *attemptService) Resume(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.getOwned(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if !attempt.InProgress {
		return nil, ErrAttemptNotInProgress
	}

	s.logger.Info("Quiz attempt resumed", "attempt_id", attemptID, "user_id", userID)
	return s.toResponse(attempt), nil
}

func (s *attemptService) GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.getOwned(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(attempt), nil
}

func (s *attemptService) ListByQuiz(ctx context.Context, quizID uint, userID string, page, size int) (*AttemptListResponse, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	filters := repositories.AttemptFilters{
		SortBy:    "attempt_number",
		SortOrder: "desc",
		Limit:     size,
		Offset:    (page - 1) * size,
	}

	attempts, total, err := s.repo.Attempt().ListByUserAndQuiz(ctx, nil, userID, quizID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	resp := &AttemptListResponse{
		Attempts: make([]*AttemptResponse, 0, len(attempts)),
		Total:    total,
		Page:     page,
		Size:     size,
	}
	for _, attempt := range attempts {
		resp.Attempts = append(resp.Attempts, s.toResponse(attempt))
	}
	return resp, nil
}

// getOwned loads an attempt for its owner. A mismatch on userID reads as
// not found so one user cannot probe another's attempt ids.
func (s *attemptService) getOwned(ctx context.Context, attemptID uint, userID string) (*models.QuizAttempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *attemptService) publishEvent(ctx context.Context, event *events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			"event_type", event.Type,
			"error", err)
	}
}
