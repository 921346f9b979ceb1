package services

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/quizdeck/attempt-service/internal/events"
	"github.com/quizdeck/attempt-service/internal/models"
	"github.com/quizdeck/attempt-service/internal/repositories"
	"github.com/quizdeck/attempt-service/internal/repositories/memory"
	"github.com/quizdeck/attempt-service/internal/validator"
)

type attemptFixture struct {
	service   *attemptService
	repo      *memory.Repository
	publisher *events.MockEventPublisher
	clock     time.Time
}

func newAttemptFixture(t *testing.T) *attemptFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	fx := &attemptFixture{
		repo:      memory.NewRepository(),
		publisher: events.NewMockEventPublisher(logger),
		clock:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	fx.service = &attemptService{
		repo:      fx.repo,
		grading:   NewGradingService(logger),
		publisher: fx.publisher,
		logger:    logger,
		validator: validator.New(),
		business:  validator.NewBusinessValidator(),
		now:       func() time.Time { return fx.clock },
		newRand:   func() *rand.Rand { return rand.New(rand.NewSource(1)) },
	}
	return fx
}

func (fx *attemptFixture) advance(d time.Duration) {
	fx.clock = fx.clock.Add(d)
}

// seedQuiz registers a quiz with questionCount four-option questions, all
// keyed to A.
func (fx *attemptFixture) seedQuiz(id uint, totalPoints float64, questionCount int, settings models.RetakeSettings) *models.Quiz {
	quiz := &models.Quiz{
		ID:             id,
		TopicID:        100,
		Title:          "Bond Basics",
		TotalPoints:    totalPoints,
		RetakeSettings: settings,
	}
	for i := 1; i <= questionCount; i++ {
		quiz.Questions = append(quiz.Questions, models.Question{
			ID:     uint(i),
			QuizID: id,
			Prompt: "prompt",
			Options: datatypes.NewJSONType(map[string]string{
				"A": "a", "B": "b", "C": "c", "D": "d",
			}),
			CorrectKey: "A",
		})
	}
	fx.repo.SeedQuiz(quiz)
	return quiz
}

// answersScoring builds a full answer set with the first correct questions
// answered A and the rest answered B.
func answersScoring(questionCount, correct int) map[string]string {
	answers := make(map[string]string, questionCount)
	for i := 1; i <= questionCount; i++ {
		if i <= correct {
			answers[models.QuestionKey(uint(i))] = "A"
		} else {
			answers[models.QuestionKey(uint(i))] = "B"
		}
	}
	return answers
}

func (fx *attemptFixture) mustStart(t *testing.T, quizID uint, userID string) *AttemptResponse {
	t.Helper()
	resp, err := fx.service.Start(context.Background(), &StartAttemptRequest{QuizID: quizID}, userID)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return resp
}

func (fx *attemptFixture) mustComplete(t *testing.T, attemptID uint, userID string, answers map[string]string) *CompleteAttemptResponse {
	t.Helper()
	resp, err := fx.service.Complete(context.Background(), attemptID, &CompleteAttemptRequest{Answers: answers}, userID)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	return resp
}

func TestAttemptService_StartAndComplete(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.seedQuiz(1, 100, 4, models.RetakeSettings{})
	ctx := context.Background()

	started := fx.mustStart(t, 1, "user-1")
	if started.AttemptNumber != 1 {
		t.Errorf("attempt number = %d, want 1", started.AttemptNumber)
	}
	if !started.InProgress || !started.CanResume {
		t.Error("new attempt should be in progress and resumable")
	}
	if len(started.ShuffleMap()) != 4 {
		t.Errorf("shuffle map has %d entries, want 4", len(started.ShuffleMap()))
	}
	for key, mapping := range started.ShuffleMap() {
		if mapping.KeyMapping[mapping.CorrectShuffledKey] != "A" {
			t.Errorf("question %s: correct shuffled key does not map back to A", key)
		}
	}

	result, err := fx.service.Complete(ctx, started.ID, &CompleteAttemptRequest{
		Answers: answersScoring(4, 4),
	}, "user-1")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result.Score != 100 || result.Grade != "A+" {
		t.Errorf("got score=%v grade=%s, want 100 A+", result.Score, result.Grade)
	}
	if result.CorrectCount != 4 || result.QuestionCount != 4 {
		t.Errorf("got correct=%d questions=%d, want 4 4", result.CorrectCount, result.QuestionCount)
	}
	if result.InProgress {
		t.Error("completed attempt still in progress")
	}
	if result.CompletedAt == nil {
		t.Fatal("completed attempt has no completion time")
	}
	if !result.IsBestScore {
		t.Error("only completed attempt should be the best score")
	}

	published := fx.publisher.GetPublishedEvents()
	if len(published) != 2 {
		t.Fatalf("expected 2 events, got %d", len(published))
	}
	if published[0].Type != events.EventAttemptStarted {
		t.Errorf("first event type = %s, want %s", published[0].Type, events.EventAttemptStarted)
	}
	if published[1].Type != events.EventAttemptCompleted {
		t.Errorf("second event type = %s, want %s", published[1].Type, events.EventAttemptCompleted)
	}
}

func TestAttemptService_Start_SecondWhileInProgress(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.seedQuiz(1, 100, 2, models.RetakeSettings{Enabled: true})

	fx.mustStart(t, 1, "user-1")

	_, err := fx.service.Start(context.Background(), &StartAttemptRequest{QuizID: 1}, "user-1")
	if !errors.Is(err, ErrAttemptInProgress) {
		t.Errorf("error = %v, want ErrAttemptInProgress", err)
	}

	// A different user is unaffected
	fx.mustStart(t, 1, "user-2")
}

func TestAttemptService_Start_InvalidRequest(t *testing.T) {
	fx := newAttemptFixture(t)

	_, err := fx.service.Start(context.Background(), &StartAttemptRequest{}, "user-1")
	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error = %v, want ValidationErrors", err)
	}
	if len(verrs.Errors) == 0 || verrs.Errors[0].Field != "QuizID" {
		t.Errorf("errors = %+v, want a QuizID field error", verrs.Errors)
	}
}

func TestAttemptService_Start_Concurrent(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.seedQuiz(1, 100, 2, models.RetakeSettings{Enabled: true})
	ctx := context.Background()

	const starters = 8
	results := make(chan error, starters)
	var wg sync.WaitGroup
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.service.Start(ctx, &StartAttemptRequest{QuizID: 1}, "user-1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrAttemptInProgress):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != starters-1 {
		t.Errorf("got %d winners and %d losers, want 1 and %d", won, lost, starters-1)
	}

	attempts, total, err := fx.repo.Attempt().ListByUserAndQuiz(ctx, nil, "user-1", 1, repositories.AttemptFilters{})
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if total != 1 {
		t.Fatalf("stored %d attempts, want exactly 1", total)
	}
	if !attempts[0].InProgress || attempts[0].AttemptNumber != 1 {
		t.Errorf("winner attempt = in_progress=%v number=%d, want open number 1",
			attempts[0].InProgress, attempts[0].AttemptNumber)
	}
}

func TestAttemptService_Start_QuizNotFound(t *testing.T) {
	fx := newAttemptFixture(t)

	_, err := fx.service.Start(context.Background(), &StartAttemptRequest{QuizID: 77}, "user-1")
	if !errors.Is(err, ErrQuizNotFound) {
		t.Errorf("error = %v, want ErrQuizNotFound", err)
	}
}

func TestAttemptService_Start_RetakesDisabled(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.seedQuiz(1, 100, 2, models.RetakeSettings{Enabled: false})

	started := fx.mustStart(t, 1, "user-1")
	fx.mustComplete(t, started.ID, "user-1", answersScoring(2, 2))

	_, err := fx.service.Start(context.Background(), &StartAttemptRequest{QuizID: 1}, "user-1")
	var denied *RetakeDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("error = %v, want RetakeDeniedError", err)
	}
	if denied.Reason != RetakeReasonDisabled {
		t.Errorf("reason = %s, want %s", denied.Reason, RetakeReasonDisabled)
	}
}

func TestAttemptService_Start_CoolDown(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.seedQuiz(1, 100, 2, models.RetakeSettings{Enabled: true, CoolDownDays: 1})
	ctx := context.Background()

	started := fx.mustStart(t, 1, "user-1")
	completedAt := fx.clock
	fx.mustComplete(t, started.ID, "user-1", answersScoring(2, 1))

	fx.advance(12 * time.Hour)
	_, err := fx.service.Start(ctx, &StartAttemptRequest{QuizID: 1}, "user-1")
	var denied *RetakeDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("error = %v, want RetakeDeniedError", err)
	}
	if denied.Reason != RetakeReasonCoolDown {
		t.Errorf("reason = %s, want %s", denied.Reason, RetakeReasonCoolDown)
	}
	want := completedAt.Add(24 * time.Hour)
	if denied.NextEligibleAt == nil || !denied.NextEligibleAt.Equal(want) {
		t.Errorf("next eligible = %v, want %v", denied.NextEligibleAt, want)
	}

	fx.advance(13 * time.Hour)
	fx.mustStart(t, 1, "user-1")
}

func TestAttemptService_AttemptNumbering(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.seedQuiz(1, 100, 2, models.RetakeSettings{Enabled: true})

	for want := 1; want <= 3; want++ {
		started := fx.mustStart(t, 1, "user-1")
		if started.AttemptNumber != want {
			t.Errorf("attempt number = %d, want %d", started.AttemptNumber, want)
		}
		fx.mustComplete(t, started.ID, "user-1", answersScoring(2, 1))
	}
}

func TestAttemptService_Checkpoint(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.seedQuiz(1, 100, 4, models.RetakeSettings{})
	ctx := context.Background()

	started := fx.mustStart(t, 1, "user-1")

	answers := map[string]string{"1": "A", "2": "B"}
	question := 2
	spent := 90
	saved, err := fx.service.Checkpoint(ctx, started.ID, &CheckpointAttemptRequest{
		Answers:            &answers,
		CurrentQuestion:    &question,
		TimeSpentInSeconds: &spent,
	}, "user-1")
	if err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	if saved.CurrentQuestion != 2 || saved.TimeSpentInSeconds != 90 {
		t.Errorf("got question=%d spent=%d, want 2 90", saved.CurrentQuestion, saved.TimeSpentInSeconds)
	}
	if len(saved.AnswerMap()) != 2 {
		t.Errorf("answer map has %d entries, want 2", len(saved.AnswerMap()))
	}

	// A later snapshot without answers leaves the stored answers untouched
	question = 3
	saved, err = fx.service.Checkpoint(ctx, started.ID, &CheckpointAttemptRequest{
		CurrentQuestion: &question,
	}, "user-1")
	if err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	if saved.CurrentQuestion != 3 {
		t.Errorf("current question = %d, want 3", saved.CurrentQuestion)
	}
	if len(saved.AnswerMap()) != 2 {
		t.Errorf("answers lost on partial checkpoint, have %d entries", len(saved.AnswerMap()))
	}
}

func TestAttemptService_Checkpoint_MergesShuffleEntries(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.seedQuiz(1, 100, 4, models.RetakeSettings{})
	ctx := context.Background()

	started := fx.mustStart(t, 1, "user-1")
	original := started.ShuffleMap()

	replacement := models.ShuffleMapping{
		ShuffledOptions:    map[string]string{"A": "b", "B": "a", "C": "c", "D": "d"},
		KeyMapping:         map[string]string{"A": "B", "B": "A", "C": "C", "D": "D"},
		CorrectShuffledKey: "B",
	}
	saved, err := fx.service.Checkpoint(ctx, started.ID, &CheckpointAttemptRequest{
		ShuffledQuestions: map[string]models.ShuffleMapping{"2": replacement},
	}, "user-1")
	if err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	merged := saved.ShuffleMap()
	if len(merged) != len(original) {
		t.Fatalf("merge changed entry count: %d -> %d", len(original), len(merged))
	}
	if merged["2"].CorrectShuffledKey != "B" {
		t.Errorf("entry for question 2 not replaced")
	}
	if merged["1"].CorrectShuffledKey != original["1"].CorrectShuffledKey {
		t.Errorf("entry for question 1 should survive the merge")
	}
}

func TestAttemptService_Checkpoint_Errors(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.seedQuiz(1, 100, 2, models.RetakeSettings{})
	ctx := context.Background()

	started := fx.mustStart(t, 1, "user-1")

	t.Run("another user's attempt reads as absent", func(t *testing.T) {
		_, err := fx.service.Checkpoint(ctx, started.ID, &CheckpointAttemptRequest{}, "user-2")
		if !errors.Is(err, ErrAttemptNotFound) {
			t.Errorf("error = %v, want ErrAttemptNotFound", err)
		}
		if _, err := fx.service.GetByID(ctx, started.ID, "user-2"); !errors.Is(err, ErrAttemptNotFound) {
			t.Errorf("GetByID error = %v, want ErrAttemptNotFound", err)
		}
	})

	t.Run("unknown attempt", func(t *testing.T) {
		_, err := fx.service.Checkpoint(ctx, 999, &CheckpointAttemptRequest{}, "user-1")
		if !errors.Is(err, ErrAttemptNotFound) {
			t.Errorf("error = %v, want ErrAttemptNotFound", err)
		}
	})

	t.Run("completed attempt", func(t *testing.T) {
		fx.mustComplete(t, started.ID, "user-1", answersScoring(2, 2))
		_, err := fx.service.Checkpoint(ctx, started.ID, &CheckpointAttemptRequest{}, "user-1")
		if !errors.Is(err, ErrAttemptNotInProgress) {
			t.Errorf("error = %v, want ErrAttemptNotInProgress", err)
		}
	})
}

func TestAttemptService_Complete_Twice(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.seedQuiz(1, 100, 2, models.RetakeSettings{})

	started := fx.mustStart(t, 1, "user-1")
	fx.mustComplete(t, started.ID, "user-1", answersScoring(2, 2))

	_, err := fx.service.Complete(context.Background(), started.ID, &CompleteAttemptRequest{
		Answers: answersScoring(2, 0),
	}, "user-1")
	if !errors.Is(err, ErrAttemptAlreadyCompleted) {
		t.Fatalf("error = %v, want ErrAttemptAlreadyCompleted", err)
	}

	// The recorded score must not move
	got, err := fx.service.GetByID(context.Background(), started.ID, "user-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Score != 100 {
		t.Errorf("score = %v after rejected re-complete, want 100", got.Score)
	}
}

func TestAttemptService_Complete_InvalidSubmissionLeavesAttemptOpen(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.seedQuiz(1, 100, 3, models.RetakeSettings{})
	ctx := context.Background()

	started := fx.mustStart(t, 1, "user-1")

	_, err := fx.service.Complete(ctx, started.ID, &CompleteAttemptRequest{
		Answers: map[string]string{"1": "A"},
	}, "user-1")
	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error = %v, want ValidationErrors", err)
	}

	got, err := fx.service.GetByID(ctx, started.ID, "user-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.InProgress {
		t.Error("rejected submission must leave the attempt in progress")
	}
	if got.Score != 0 || got.CompletedAt != nil {
		t.Errorf("rejected submission mutated the attempt: score=%v completedAt=%v",
			got.Score, got.CompletedAt)
	}
}

func TestAttemptService_BestScoreFlag(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.seedQuiz(1, 100, 10, models.RetakeSettings{Enabled: true})
	ctx := context.Background()

	scores := []int{7, 8, 6} // 70, 80, 60
	ids := make([]uint, 0, len(scores))
	for _, correct := range scores {
		started := fx.mustStart(t, 1, "user-1")
		fx.mustComplete(t, started.ID, "user-1", answersScoring(10, correct))
		ids = append(ids, started.ID)
	}

	assertBest := func(wantID uint) {
		t.Helper()
		completed, err := fx.repo.Attempt().GetCompletedByUserAndQuiz(ctx, nil, "user-1", 1)
		if err != nil {
			t.Fatalf("GetCompletedByUserAndQuiz failed: %v", err)
		}
		flagged := 0
		for _, a := range completed {
			if a.IsBestScore {
				flagged++
				if a.ID != wantID {
					t.Errorf("best score on attempt %d (score %v), want attempt %d", a.ID, a.Score, wantID)
				}
			}
		}
		if flagged != 1 {
			t.Errorf("%d attempts flagged as best, want exactly 1", flagged)
		}
	}

	// 80 from the second attempt leads
	assertBest(ids[1])

	// A 90 takes over
	fx.publisher.ClearEvents()
	started := fx.mustStart(t, 1, "user-1")
	result := fx.mustComplete(t, started.ID, "user-1", answersScoring(10, 9))
	if !result.IsBestScore {
		t.Error("new high score not reported as best")
	}
	assertBest(started.ID)

	var sawBestChanged bool
	for _, event := range fx.publisher.GetPublishedEvents() {
		if event.Type == events.EventBestScoreChanged {
			sawBestChanged = true
		}
	}
	if !sawBestChanged {
		t.Error("expected a best-score-changed event when the flag moved")
	}

	// A repeat of 90 leaves the earlier attempt flagged
	repeat := fx.mustStart(t, 1, "user-1")
	result = fx.mustComplete(t, repeat.ID, "user-1", answersScoring(10, 9))
	if result.IsBestScore {
		t.Error("tied score should keep the earlier attempt flagged")
	}
	assertBest(started.ID)
}

func TestAttemptService_ResumeAndList(t *testing.T) {
	fx := newAttemptFixture(t)
	fx.seedQuiz(1, 100, 2, models.RetakeSettings{Enabled: true})
	ctx := context.Background()

	first := fx.mustStart(t, 1, "user-1")
	fx.mustComplete(t, first.ID, "user-1", answersScoring(2, 1))
	second := fx.mustStart(t, 1, "user-1")

	resumed, err := fx.service.Resume(ctx, second.ID, "user-1")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !resumed.CanResume {
		t.Error("resumed attempt should be resumable")
	}

	if _, err := fx.service.Resume(ctx, first.ID, "user-1"); !errors.Is(err, ErrAttemptNotInProgress) {
		t.Errorf("resuming completed attempt: error = %v, want ErrAttemptNotInProgress", err)
	}

	list, err := fx.service.ListByQuiz(ctx, 1, "user-1", 1, 20)
	if err != nil {
		t.Fatalf("ListByQuiz failed: %v", err)
	}
	if list.Total != 2 || len(list.Attempts) != 2 {
		t.Fatalf("got total=%d len=%d, want 2 2", list.Total, len(list.Attempts))
	}
	// Newest attempt first
	if list.Attempts[0].AttemptNumber != 2 {
		t.Errorf("first listed attempt number = %d, want 2", list.Attempts[0].AttemptNumber)
	}
}
