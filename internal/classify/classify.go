// Package classify suggests a classification for a new issue.
package classify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/joescharf/ait/internal/models"
)

// Suggester proposes a classification for an issue title and description.
type Suggester interface {
	Suggest(ctx context.Context, title, description string) (models.Classification, error)
}

// Heuristic classifies by keywords. It never fails.
type Heuristic struct{}

// Suggest implements Suggester.
func (Heuristic) Suggest(_ context.Context, title, description string) (models.Classification, error) {
	return Keywords(title, description), nil
}

// Keywords infers the classification from the title, then the description.
// Bug keywords are checked before improvement keywords (e.g., "fix the
// migration" = bug). Defaults to feature if no keywords match.
func Keywords(title, description string) models.Classification {
	if c, ok := keywordMatch(title); ok {
		return c
	}
	if c, ok := keywordMatch(description); ok {
		return c
	}
	return models.ClassificationFeature
}

var (
	// Multi-word phrases checked first, then single words with common variants.
	bugPhrases = []string{
		"issue with", "not working", "doesn't work", "does not work",
	}
	bugWords = []string{
		"fix ", "fix:", "fixed", "fixes", "fixing",
		"bug", "broken", "crash", "error",
		"regression", "fail", "fault", "defect", "panic",
	}
	improvementWords = []string{
		"refactor", "cleanup", "clean up", "update dep", "migrate",
		"upgrade", "rename", "reorganize", "lint", "improve",
		"optimize", "optimise", "speed up", "faster", "performance",
		"simplify",
	}
)

func keywordMatch(text string) (models.Classification, bool) {
	lower := strings.ToLower(text)
	if lower == "" {
		return "", false
	}

	for _, kw := range bugPhrases {
		if strings.Contains(lower, kw) {
			return models.ClassificationBug, true
		}
	}
	for _, kw := range bugWords {
		if strings.Contains(lower, kw) {
			return models.ClassificationBug, true
		}
	}
	// "fix" at end of string
	if strings.HasSuffix(lower, "fix") {
		return models.ClassificationBug, true
	}

	for _, kw := range improvementWords {
		if strings.Contains(lower, kw) {
			return models.ClassificationImprovement, true
		}
	}
	return "", false
}

// Chain tries each suggester in order and returns the first valid answer.
// When every suggester fails it falls back to Keywords.
type Chain struct {
	Suggesters []Suggester
	Log        *slog.Logger
}

// NewChain builds a Chain, skipping nil suggesters.
func NewChain(log *slog.Logger, suggesters ...Suggester) *Chain {
	c := &Chain{Log: log}
	for _, s := range suggesters {
		if s != nil {
			c.Suggesters = append(c.Suggesters, s)
		}
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	return c
}

// ErrNoSuggestion is returned by a suggester that has no opinion.
var ErrNoSuggestion = errors.New("no classification suggestion")

// Suggest implements Suggester.
func (c *Chain) Suggest(ctx context.Context, title, description string) (models.Classification, error) {
	for _, s := range c.Suggesters {
		got, err := s.Suggest(ctx, title, description)
		if err == nil && got.Valid() {
			return got, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err == nil {
			err = ErrNoSuggestion
		}
		c.Log.Debug("classification suggester failed", "error", err)
	}
	return Keywords(title, description), nil
}
