package services

import (
	"math/rand"
	"sort"

	"github.com/quizdeck/attempt-service/internal/models"
)

// ShuffleOptions deals a question's options into randomized display slots and
// returns the mapping needed to grade against original keys later. Questions
// with fewer than two options come back unshuffled. The returned KeyMapping is
// a bijection from display labels onto the question's original labels.
func ShuffleOptions(q *models.Question, rng *rand.Rand) models.ShuffleMapping {
	options := q.Options.Data()

	originalKeys := make([]string, 0, len(options))
	for _, label := range models.OptionLabels {
		if _, ok := options[label]; ok {
			originalKeys = append(originalKeys, label)
		}
	}
	// Options outside the standard label set keep a stable sorted order after
	// the standard ones so the permutation depends only on the rng.
	var extra []string
	for key := range options {
		if !isStandardLabel(key) {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	originalKeys = append(originalKeys, extra...)

	mapping := models.ShuffleMapping{
		ShuffledOptions: make(map[string]string, len(options)),
		KeyMapping:      make(map[string]string, len(options)),
	}

	if len(originalKeys) < 2 {
		for _, key := range originalKeys {
			mapping.ShuffledOptions[key] = options[key]
			mapping.KeyMapping[key] = key
		}
		mapping.CorrectShuffledKey = q.CorrectKey
		return mapping
	}

	shuffled := make([]string, len(originalKeys))
	copy(shuffled, originalKeys)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	// Display slots reuse the original key set in its stable order; the
	// shuffled list decides which original option lands in each slot.
	for i, displayKey := range originalKeys {
		originalKey := shuffled[i]
		mapping.ShuffledOptions[displayKey] = options[originalKey]
		mapping.KeyMapping[displayKey] = originalKey
		if originalKey == q.CorrectKey {
			mapping.CorrectShuffledKey = displayKey
		}
	}
	return mapping
}

// ShuffleQuiz builds shuffle mappings for every question in the quiz, keyed by
// question id.
func ShuffleQuiz(quiz *models.Quiz, rng *rand.Rand) map[string]models.ShuffleMapping {
	out := make(map[string]models.ShuffleMapping, len(quiz.Questions))
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		out[models.QuestionKey(q.ID)] = ShuffleOptions(q, rng)
	}
	return out
}

// OriginalAnswerKey resolves a display-label answer back to the question's
// original option key using the attempt's stored mapping. Answers recorded
// without a mapping pass through unchanged.
func OriginalAnswerKey(mapping map[string]models.ShuffleMapping, questionKey, displayKey string) string {
	m, ok := mapping[questionKey]
	if !ok {
		return displayKey
	}
	if original, ok := m.KeyMapping[displayKey]; ok {
		return original
	}
	return displayKey
}

func isStandardLabel(key string) bool {
	for _, label := range models.OptionLabels {
		if key == label {
			return true
		}
	}
	return false
}
