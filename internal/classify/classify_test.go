package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ait/internal/models"
)

func TestKeywords(t *testing.T) {
	tests := []struct {
		title string
		desc  string
		want  models.Classification
	}{
		{"Fix login redirect", "", models.ClassificationBug},
		{"Login page crash on submit", "", models.ClassificationBug},
		{"Issue with token refresh", "", models.ClassificationBug},
		{"Search not working for unicode", "", models.ClassificationBug},
		{"Hotfix", "", models.ClassificationBug},
		{"Refactor store package", "", models.ClassificationImprovement},
		{"Improve list performance", "", models.ClassificationImprovement},
		{"Upgrade cobra", "", models.ClassificationImprovement},
		{"Fix the migration", "", models.ClassificationBug},
		{"Add dark mode", "", models.ClassificationFeature},
		{"Export to CSV", "", models.ClassificationFeature},
		{"Login page", "Throws an error after submit", models.ClassificationBug},
		{"Store package", "Simplify the save path", models.ClassificationImprovement},
		{"", "", models.ClassificationFeature},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, Keywords(tt.title, tt.desc))
		})
	}
}

func TestKeywords_TitleWins(t *testing.T) {
	assert.Equal(t, models.ClassificationImprovement, Keywords("Refactor auth", "it has a bug"))
}

func TestHeuristic(t *testing.T) {
	got, err := Heuristic{}.Suggest(context.Background(), "App crashes", "")
	require.NoError(t, err)
	assert.Equal(t, models.ClassificationBug, got)
}

type stubSuggester struct {
	got   models.Classification
	err   error
	calls int
}

func (s *stubSuggester) Suggest(context.Context, string, string) (models.Classification, error) {
	s.calls++
	return s.got, s.err
}

func TestChain(t *testing.T) {
	t.Run("first success wins", func(t *testing.T) {
		first := &stubSuggester{got: models.ClassificationImprovement}
		second := &stubSuggester{got: models.ClassificationBug}
		got, err := NewChain(nil, first, second).Suggest(context.Background(), "Add thing", "")
		require.NoError(t, err)
		assert.Equal(t, models.ClassificationImprovement, got)
		assert.Equal(t, 0, second.calls)
	})

	t.Run("skips failures and invalid answers", func(t *testing.T) {
		failing := &stubSuggester{err: errors.New("api down")}
		invalid := &stubSuggester{got: "chore"}
		last := &stubSuggester{got: models.ClassificationBug}
		got, err := NewChain(nil, failing, nil, invalid, last).Suggest(context.Background(), "Add thing", "")
		require.NoError(t, err)
		assert.Equal(t, models.ClassificationBug, got)
		assert.Equal(t, 1, failing.calls)
		assert.Equal(t, 1, invalid.calls)
	})

	t.Run("falls back to keywords", func(t *testing.T) {
		failing := &stubSuggester{err: errors.New("api down")}
		got, err := NewChain(nil, failing).Suggest(context.Background(), "Crash on start", "")
		require.NoError(t, err)
		assert.Equal(t, models.ClassificationBug, got)
	})

	t.Run("empty chain", func(t *testing.T) {
		got, err := NewChain(nil).Suggest(context.Background(), "Add export", "")
		require.NoError(t, err)
		assert.Equal(t, models.ClassificationFeature, got)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		failing := &stubSuggester{err: context.Canceled}
		_, err := NewChain(nil, failing).Suggest(ctx, "x", "")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseMarkdown(t *testing.T) {
	content := `# Backlog

1. Fix crash on empty file
2. Add CSV export
2.1 Support custom delimiters
- Refactor output package
* Dark mode

## Later
3. Improve startup time
3.1. Cache config
Some prose that is not an item.
`
	drafts := ParseMarkdown(content)
	require.Len(t, drafts, 7)

	assert.Equal(t, "Fix crash on empty file", drafts[0].Title)
	assert.Equal(t, "bug", drafts[0].Classification)

	assert.Equal(t, "Add CSV export", drafts[1].Title)
	assert.Equal(t, "feature", drafts[1].Classification)

	assert.Equal(t, "Support custom delimiters", drafts[2].Title)
	assert.Equal(t, "2. Add CSV export", drafts[2].Description)

	assert.Equal(t, "Refactor output package", drafts[3].Title)
	assert.Equal(t, "improvement", drafts[3].Classification)

	assert.Equal(t, "Dark mode", drafts[4].Title)
	assert.Equal(t, "Improve startup time", drafts[5].Title)

	assert.Equal(t, "Cache config", drafts[6].Title)
	assert.Equal(t, "3. Improve startup time", drafts[6].Description)
	assert.Equal(t, "improvement", drafts[6].Classification, "parent description is considered")
}

func TestParseMarkdown_HeadingResetsParent(t *testing.T) {
	drafts := ParseMarkdown("1. Parent\n## Next\n1.1 Orphan\n")
	require.Len(t, drafts, 2)
	assert.Empty(t, drafts[1].Description)
}

func TestParseMarkdown_Empty(t *testing.T) {
	assert.Empty(t, ParseMarkdown(""))
	assert.Empty(t, ParseMarkdown("just prose\n\nmore prose"))
}

func TestParseSubItemNumber(t *testing.T) {
	tests := []struct {
		line  string
		title string
		ok    bool
	}{
		{"1.1 Sub task", "Sub task", true},
		{"2.3. Dotted", "Dotted", true},
		{"1. Top level", "", false},
		{"1.1", "", false},
		{"1.1 ", "", false},
		{"a.1 text", "", false},
	}
	for _, tt := range tests {
		title, ok := parseSubItemNumber(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.title, title, tt.line)
	}
}
