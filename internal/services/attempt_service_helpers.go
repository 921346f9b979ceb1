package services

import (
	"context"
	"fmt"

	"github.com/quizdeck/attempt-service/internal/models"
	"github.com/quizdeck/attempt-service/internal/repositories"
	"gorm.io/datatypes"
)

// ===== HELPER METHODS =====

// checkAnswerPayload rejects malformed answer maps (blank question ids or
// option keys) before they reach storage or grading.
func (s *attemptService) checkAnswerPayload(answers map[string]string) error {
	payloadErrs := s.business.ValidateAnswerPayload(answers)
	if len(payloadErrs) == 0 {
		return nil
	}
	errs := &ValidationErrors{}
	for _, e := range payloadErrs {
		errs.Add(e.Field, e.Message)
	}
	return errs
}

func (s *attemptService) toResponse(attempt *models.QuizAttempt) *AttemptResponse {
	return &AttemptResponse{
		QuizAttempt: attempt,
		CanResume:   attempt.InProgress,
	}
}

// applyCheckpoint merges a partial snapshot into the attempt. Shuffle
// mappings merge per question id so two checkpoints covering different
// questions both survive; the answer map replaces wholesale because each
// snapshot carries the client's full answer state.
func (s *attemptService) applyCheckpoint(attempt *models.QuizAttempt, req *CheckpointAttemptRequest) {
	if req.Answers != nil {
		attempt.Answers = newJSONMap(*req.Answers)
	}

	if len(req.ShuffledQuestions) > 0 {
		merged := attempt.ShuffleMap()
		for key, mapping := range req.ShuffledQuestions {
			merged[key] = mapping
		}
		attempt.ShuffledQuestions = newJSONShuffle(merged)
	}

	if req.CurrentQuestion != nil {
		attempt.CurrentQuestion = *req.CurrentQuestion
	}
	if req.TimeSpentInSeconds != nil {
		attempt.TimeSpentInSeconds = *req.TimeSpentInSeconds
	}
}

// recomputeBestScore re-derives the best-score flag across every completed
// attempt for the pair. Ties keep the earliest attempt flagged, so a repeat
// of the same score does not move the marker. The returned bool reports
// whether the flag moved onto the just-completed attempt from an earlier one.
func (s *attemptService) recomputeBestScore(ctx context.Context, txRepo repositories.Repository, attempt *models.QuizAttempt) (bool, error) {
	completed, err := txRepo.Attempt().GetCompletedByUserAndQuiz(ctx, nil, attempt.UserID, attempt.QuizID)
	if err != nil {
		return false, fmt.Errorf("failed to load completed attempts: %w", err)
	}
	if len(completed) == 0 {
		return false, nil
	}

	best := completed[0]
	for _, a := range completed[1:] {
		if a.Score > best.Score {
			best = a
		}
	}

	if err := txRepo.Attempt().SetBestAttempt(ctx, nil, attempt.UserID, attempt.QuizID, best.ID); err != nil {
		return false, err
	}

	attempt.IsBestScore = best.ID == attempt.ID
	return attempt.IsBestScore && len(completed) > 1, nil
}

func newJSONMap(m map[string]string) datatypes.JSONType[map[string]string] {
	return datatypes.NewJSONType(m)
}

func newJSONShuffle(m map[string]models.ShuffleMapping) datatypes.JSONType[map[string]models.ShuffleMapping] {
	return datatypes.NewJSONType(m)
}
