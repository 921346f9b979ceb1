package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateAttemptCache drops everything cached for one attempt plus the
// owner's status summaries, which embed attempt counts and best scores.
func InvalidateAttemptCache(ctx context.Context, cm *CacheManager, attemptID uint, userID string) {
	SafeDelete(ctx, cm.Attempt, fmt.Sprintf("id:%d", attemptID))
	SafeInvalidatePattern(ctx, cm.Status, fmt.Sprintf("user:%s:*", userID))
	SafeInvalidatePattern(ctx, cm.Fast, fmt.Sprintf("attempt:%d*", attemptID))
}

// InvalidateQuizCache drops cached quiz definitions after upstream sync
func InvalidateQuizCache(ctx context.Context, cm *CacheManager, quizID uint) {
	SafeDelete(ctx, cm.Quiz, fmt.Sprintf("id:%d", quizID))
	SafeInvalidatePattern(ctx, cm.Fast, fmt.Sprintf("quiz:%d*", quizID))
}
