// Package quiz evaluates submitted answers against a stored answer key.
// Evaluation is deterministic and has no hidden state, so callers may run
// it speculatively.
package quiz

import (
	"errors"
	"strings"

	"studyhall/courses/internal/model"
)

var ErrMalformedSubmission = errors.New("malformed submission")

// Evaluate compares submissions position by position: trimmed,
// case-insensitive exact match, no partial credit. The submission must
// answer every question.
func Evaluate(key []model.QuizQuestion, submitted []string) ([]bool, error) {
	if len(submitted) != len(key) {
		return nil, ErrMalformedSubmission
	}
	results := make([]bool, len(key))
	for i, question := range key {
		results[i] = strings.EqualFold(
			strings.TrimSpace(submitted[i]),
			strings.TrimSpace(question.Answer),
		)
	}
	return results, nil
}

func AllCorrect(results []bool) bool {
	for _, correct := range results {
		if !correct {
			return false
		}
	}
	return true
}
