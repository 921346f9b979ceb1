package services

import (
	"testing"
	"time"

	"github.com/quizdeck/attempt-service/internal/models"
)

func retakeQuiz(settings models.RetakeSettings) *models.Quiz {
	return &models.Quiz{ID: 1, TotalPoints: 100, RetakeSettings: settings}
}

func completedAttempt(number int, completedAt time.Time) *models.QuizAttempt {
	return &models.QuizAttempt{
		ID:            uint(number),
		UserID:        "user-1",
		QuizID:        1,
		AttemptNumber: number,
		CompletedAt:   &completedAt,
	}
}

func TestEvaluateRetake(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("in-progress attempt blocks regardless of settings", func(t *testing.T) {
		quiz := retakeQuiz(models.RetakeSettings{Enabled: true})
		decision := EvaluateRetake(quiz, nil, true, now)
		if decision.Allowed {
			t.Fatal("expected denial")
		}
		if decision.Reason != RetakeReasonInProgress {
			t.Errorf("reason = %s, want %s", decision.Reason, RetakeReasonInProgress)
		}
	})

	t.Run("first attempt is always free", func(t *testing.T) {
		quiz := retakeQuiz(models.RetakeSettings{Enabled: false})
		decision := EvaluateRetake(quiz, nil, false, now)
		if !decision.Allowed {
			t.Errorf("expected first attempt allowed, denied with %s", decision.Reason)
		}
	})

	t.Run("retakes disabled", func(t *testing.T) {
		quiz := retakeQuiz(models.RetakeSettings{Enabled: false})
		completed := []*models.QuizAttempt{completedAttempt(1, now.Add(-48 * time.Hour))}
		decision := EvaluateRetake(quiz, completed, false, now)
		if decision.Allowed || decision.Reason != RetakeReasonDisabled {
			t.Errorf("got allowed=%v reason=%s, want denied %s",
				decision.Allowed, decision.Reason, RetakeReasonDisabled)
		}
		if decision.AttemptsRemaining == nil || *decision.AttemptsRemaining != 0 {
			t.Errorf("attempts remaining = %v, want 0", decision.AttemptsRemaining)
		}
	})

	t.Run("max attempts reached", func(t *testing.T) {
		quiz := retakeQuiz(models.RetakeSettings{Enabled: true, MaxAttempts: 2})
		completed := []*models.QuizAttempt{
			completedAttempt(1, now.Add(-48*time.Hour)),
			completedAttempt(2, now.Add(-24*time.Hour)),
		}
		decision := EvaluateRetake(quiz, completed, false, now)
		if decision.Allowed || decision.Reason != RetakeReasonMaxAttempts {
			t.Fatalf("got allowed=%v reason=%s, want denied %s",
				decision.Allowed, decision.Reason, RetakeReasonMaxAttempts)
		}
		if decision.AttemptsRemaining == nil || *decision.AttemptsRemaining != 0 {
			t.Errorf("attempts remaining = %v, want 0", decision.AttemptsRemaining)
		}
	})

	t.Run("attempts remaining is reported", func(t *testing.T) {
		quiz := retakeQuiz(models.RetakeSettings{Enabled: true, MaxAttempts: 3})
		completed := []*models.QuizAttempt{completedAttempt(1, now.Add(-48 * time.Hour))}
		decision := EvaluateRetake(quiz, completed, false, now)
		if !decision.Allowed {
			t.Fatalf("expected allowed, denied with %s", decision.Reason)
		}
		if decision.AttemptsRemaining == nil || *decision.AttemptsRemaining != 2 {
			t.Errorf("attempts remaining = %v, want 2", decision.AttemptsRemaining)
		}
	})

	t.Run("budget counts attempt numbers, not list length", func(t *testing.T) {
		quiz := retakeQuiz(models.RetakeSettings{Enabled: true, MaxAttempts: 3})
		// Only attempt 3 survives in the store; the consumed budget stays
		// consumed.
		completed := []*models.QuizAttempt{completedAttempt(3, now.Add(-24 * time.Hour))}
		decision := EvaluateRetake(quiz, completed, false, now)
		if decision.Allowed || decision.Reason != RetakeReasonMaxAttempts {
			t.Fatalf("got allowed=%v reason=%s, want denied %s",
				decision.Allowed, decision.Reason, RetakeReasonMaxAttempts)
		}
		if decision.AttemptsRemaining == nil || *decision.AttemptsRemaining != 0 {
			t.Errorf("attempts remaining = %v, want 0", decision.AttemptsRemaining)
		}
	})

	t.Run("zero max attempts means unlimited", func(t *testing.T) {
		quiz := retakeQuiz(models.RetakeSettings{Enabled: true, MaxAttempts: 0})
		completed := make([]*models.QuizAttempt, 0, 50)
		for i := 1; i <= 50; i++ {
			completed = append(completed, completedAttempt(i, now.Add(-time.Duration(i)*time.Hour)))
		}
		decision := EvaluateRetake(quiz, completed, false, now)
		if !decision.Allowed {
			t.Errorf("expected unlimited retakes, denied with %s", decision.Reason)
		}
		if decision.AttemptsRemaining != nil {
			t.Errorf("attempts remaining = %v, want nil for unlimited", *decision.AttemptsRemaining)
		}
	})

	t.Run("cool-down active", func(t *testing.T) {
		quiz := retakeQuiz(models.RetakeSettings{Enabled: true, CoolDownDays: 1})
		completedAt := now.Add(-12 * time.Hour)
		completed := []*models.QuizAttempt{completedAttempt(1, completedAt)}
		decision := EvaluateRetake(quiz, completed, false, now)
		if decision.Allowed || decision.Reason != RetakeReasonCoolDown {
			t.Fatalf("got allowed=%v reason=%s, want denied %s",
				decision.Allowed, decision.Reason, RetakeReasonCoolDown)
		}
		want := completedAt.Add(24 * time.Hour)
		if decision.NextEligibleAt == nil || !decision.NextEligibleAt.Equal(want) {
			t.Errorf("next eligible = %v, want %v", decision.NextEligibleAt, want)
		}
	})

	t.Run("fractional cool-down days", func(t *testing.T) {
		quiz := retakeQuiz(models.RetakeSettings{Enabled: true, CoolDownDays: 0.5})
		completed := []*models.QuizAttempt{completedAttempt(1, now.Add(-13 * time.Hour))}
		decision := EvaluateRetake(quiz, completed, false, now)
		if !decision.Allowed {
			t.Errorf("12h cool-down elapsed after 13h, denied with %s", decision.Reason)
		}

		completed = []*models.QuizAttempt{completedAttempt(1, now.Add(-11 * time.Hour))}
		decision = EvaluateRetake(quiz, completed, false, now)
		if decision.Allowed {
			t.Error("12h cool-down not elapsed after 11h, expected denial")
		}
	})

	t.Run("cool-down measured from highest attempt number", func(t *testing.T) {
		quiz := retakeQuiz(models.RetakeSettings{Enabled: true, CoolDownDays: 1})
		// Attempt 2 completed before attempt 1 due to clock drift; attempt 2
		// is still the latest and its completion anchors the window.
		completed := []*models.QuizAttempt{
			completedAttempt(1, now.Add(-2*time.Hour)),
			completedAttempt(2, now.Add(-30*time.Hour)),
		}
		decision := EvaluateRetake(quiz, completed, false, now)
		if !decision.Allowed {
			t.Errorf("latest attempt outside cool-down, denied with %s", decision.Reason)
		}
	})
}
