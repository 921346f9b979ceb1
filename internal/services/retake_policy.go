package services

import (
	"time"

	"github.com/quizdeck/attempt-service/internal/models"
)

// Retake denial reasons surfaced to clients.
const (
	RetakeReasonInProgress  = "attempt_in_progress"
	RetakeReasonDisabled    = "retakes_disabled"
	RetakeReasonMaxAttempts = "max_attempts_reached"
	RetakeReasonCoolDown    = "cool_down_active"
)

// EvaluateRetake decides whether a user may start a new attempt on the quiz.
// completed must hold only completed attempts; hasInProgress reflects whether
// an open attempt exists. The first attempt is always free. Afterwards the
// quiz's retake settings gate further attempts: retakes must be enabled, the
// latest attempt number must sit below MaxAttempts (zero means unlimited),
// and the cool-down window measured from the latest attempt's completion
// must have elapsed. The latest attempt is the one with the highest
// AttemptNumber.
func EvaluateRetake(quiz *models.Quiz, completed []*models.QuizAttempt, hasInProgress bool, now time.Time) RetakeDecision {
	if hasInProgress {
		return RetakeDecision{Allowed: false, Reason: RetakeReasonInProgress}
	}
	if len(completed) == 0 {
		return RetakeDecision{Allowed: true}
	}

	settings := quiz.RetakeSettings
	if !settings.Enabled {
		zero := 0
		return RetakeDecision{Allowed: false, Reason: RetakeReasonDisabled, AttemptsRemaining: &zero}
	}

	latest := latestCompleted(completed)

	var remaining *int
	if settings.MaxAttempts > 0 {
		// Budget is consumed by attempt number, not list length.
		left := settings.MaxAttempts - latest.AttemptNumber
		if left <= 0 {
			zero := 0
			return RetakeDecision{Allowed: false, Reason: RetakeReasonMaxAttempts, AttemptsRemaining: &zero}
		}
		remaining = &left
	}

	if settings.CoolDownDays > 0 && latest.CompletedAt != nil {
		coolDown := time.Duration(settings.CoolDownDays * float64(24*time.Hour))
		eligibleAt := latest.CompletedAt.Add(coolDown)
		if now.Before(eligibleAt) {
			return RetakeDecision{
				Allowed:           false,
				Reason:            RetakeReasonCoolDown,
				NextEligibleAt:    &eligibleAt,
				AttemptsRemaining: remaining,
			}
		}
	}

	return RetakeDecision{Allowed: true, AttemptsRemaining: remaining}
}

// latestCompleted picks the attempt with the highest AttemptNumber.
// Completion timestamps can be out of order when clocks drift, so the
// sequence number is authoritative.
func latestCompleted(attempts []*models.QuizAttempt) *models.QuizAttempt {
	var latest *models.QuizAttempt
	for _, a := range attempts {
		if latest == nil || a.AttemptNumber > latest.AttemptNumber {
			latest = a
		}
	}
	return latest
}
