// Package tracker is the issue lifecycle engine. It owns the in-memory issue
// collection, enforces the status state machine, picks the next issue to work
// on or review, and persists the whole collection after every mutation.
package tracker

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/ait/internal/models"
	"github.com/joescharf/ait/internal/store"
)

// Tracker serializes every mutation of the issue collection through a single
// lock and persists the collection before the mutation is visible.
//
// Issues held in t.issues are never modified in place: a mutation builds a
// new issue and a new slice, saves them, and only then swaps them in. A failed
// save therefore leaves the in-memory state untouched.
type Tracker struct {
	mu     sync.RWMutex
	store  store.Store
	issues []*models.Issue

	policy SelectionPolicy
	now    func() time.Time
	newID  func(time.Time) string
	log    *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPolicy sets the selection policy for SelectNextToWork and PeekNextIssue.
func WithPolicy(p SelectionPolicy) Option {
	return func(t *Tracker) { t.policy = p }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDGenerator replaces the ULID generator.
func WithIDGenerator(gen func(time.Time) string) Option {
	return func(t *Tracker) { t.newID = gen }
}

// WithLogger sets the logger used for transitions and persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// New loads the collection from s and returns a Tracker that owns it.
// A store that cannot be decoded is a fatal startup error.
func New(ctx context.Context, s store.Store, opts ...Option) (*Tracker, error) {
	doc, err := s.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load issues from %s: %w", s.Location(), err)
	}

	entropy := ulid.Monotonic(rand.Reader, 0)
	t := &Tracker{
		store:  s,
		issues: doc.Issues,
		policy: PolicyFIFO,
		now:    time.Now,
		newID: func(ts time.Time) string {
			return ulid.MustNew(ulid.Timestamp(ts), entropy).String()
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.issues == nil {
		t.issues = []*models.Issue{}
	}
	return t, nil
}

// Policy returns the configured selection policy.
func (t *Tracker) Policy() SelectionPolicy { return t.policy }

// --- Mutations ---

// CreateIssue appends a new issue in the created state.
func (t *Tracker) CreateIssue(ctx context.Context, title, description string, classification models.Classification, agent string) (*models.Issue, error) {
	if !classification.Valid() {
		return nil, fmt.Errorf("%w: classification %q", ErrInvalidArgument, classification)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ts := t.timestamp(time.Time{})
	issue := &models.Issue{
		ID:             t.newID(ts),
		Title:          title,
		Description:    description,
		Classification: classification,
		CreatedAt:      ts,
		ModifiedAt:     ts,
		Status:         models.IssueStatusCreated,
		History: []models.HistoryEntry{{
			Timestamp: ts,
			Agent:     agent,
			Action:    fmt.Sprintf("Issue created with classification %q", classification),
		}},
		Comments: []models.Comment{},
	}

	if err := t.commit(ctx, -1, issue); err != nil {
		return nil, err
	}
	t.log.Info("issue created", "issue", issue.ID, "agent", agent, "classification", classification)
	return issue.Clone(), nil
}

// SelectNextToWork moves the next created issue to in_progress and returns
// it. An empty classification matches any. It returns nil, nil when nothing
// is eligible.
func (t *Tracker) SelectNextToWork(ctx context.Context, agent string, classification models.Classification) (*models.Issue, error) {
	if classification != "" && !classification.Valid() {
		return nil, fmt.Errorf("%w: classification %q", ErrInvalidArgument, classification)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.policy.pick(t.issues, func(i *models.Issue) bool {
		return i.Status == models.IssueStatusCreated &&
			(classification == "" || i.Classification == classification)
	})
	if idx < 0 {
		return nil, nil
	}
	return t.transition(ctx, idx, models.IssueStatusInProgress, agent, "Issue picked up and set to in_progress", nil)
}

// ReturnIssue puts a non-terminal issue back into the created state.
func (t *Tracker) ReturnIssue(ctx context.Context, id, comment, agent string) (*models.Issue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, err := t.mutable(id)
	if err != nil {
		return nil, err
	}
	return t.transition(ctx, idx, models.IssueStatusCreated, agent, "Issue returned to created status", &comment)
}

// CompleteIssue marks a non-terminal issue as completed, ready for review.
func (t *Tracker) CompleteIssue(ctx context.Context, id, comment, agent string) (*models.Issue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, err := t.mutable(id)
	if err != nil {
		return nil, err
	}
	return t.transition(ctx, idx, models.IssueStatusCompleted, agent, "Issue marked as completed", &comment)
}

// SelectNextToReview moves the oldest completed issue to in_review and
// returns it, or returns nil, nil when nothing is waiting for review.
func (t *Tracker) SelectNextToReview(ctx context.Context, agent string) (*models.Issue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := PolicyFIFO.pick(t.issues, func(i *models.Issue) bool {
		return i.Status == models.IssueStatusCompleted
	})
	if idx < 0 {
		return nil, nil
	}
	return t.transition(ctx, idx, models.IssueStatusInReview, agent, "Issue picked up for review and set to in_review", nil)
}

// CloseIssue moves a non-terminal issue to closed or rejected.
func (t *Tracker) CloseIssue(ctx context.Context, id string, resolution models.IssueStatus, comment, agent string) (*models.Issue, error) {
	if !resolution.IsTerminal() {
		return nil, fmt.Errorf("%w: resolution %q (must be closed or rejected)", ErrInvalidArgument, resolution)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx, err := t.mutable(id)
	if err != nil {
		return nil, err
	}
	return t.transition(ctx, idx, resolution, agent, fmt.Sprintf("Issue closed as %q", resolution), &comment)
}

// --- Reads ---

// ListFilter narrows ListIssues. Zero values mean "no filter"; Take <= 0
// means no limit.
type ListFilter struct {
	Status         models.IssueStatus
	Classification models.Classification
	Skip           int
	Take           int
}

// ListIssues returns copies of the matching issues in creation order,
// paginated over a snapshot taken under the read lock.
func (t *Tracker) ListIssues(filter ListFilter) []*models.Issue {
	t.mu.RLock()
	defer t.mu.RUnlock()

	skip := max(filter.Skip, 0)
	out := []*models.Issue{}
	for _, issue := range t.issues {
		if filter.Status != "" && issue.Status != filter.Status {
			continue
		}
		if filter.Classification != "" && issue.Classification != filter.Classification {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if filter.Take > 0 && len(out) >= filter.Take {
			break
		}
		out = append(out, issue.Clone())
	}
	return out
}

// GetIssue returns a copy of the issue with the given id or unique id prefix.
func (t *Tracker) GetIssue(id string) (*models.Issue, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx, err := t.indexOf(id)
	if err != nil {
		return nil, err
	}
	return t.issues[idx].Clone(), nil
}

// PeekNextIssue returns, without changing it, the created issue the selection
// policy would hand out for the first classification in the list that has any
// candidate. It returns nil when none does.
func (t *Tracker) PeekNextIssue(classifications []models.Classification) *models.Issue {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, c := range classifications {
		idx := t.policy.pick(t.issues, func(i *models.Issue) bool {
			return i.Status == models.IssueStatusCreated && i.Classification == c
		})
		if idx >= 0 {
			return t.issues[idx].Clone()
		}
	}
	return nil
}

// Counts returns the number of issues in each status.
func (t *Tracker) Counts() map[models.IssueStatus]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[models.IssueStatus]int, len(models.IssueStatuses))
	for _, s := range models.IssueStatuses {
		counts[s] = 0
	}
	for _, issue := range t.issues {
		counts[issue.Status]++
	}
	return counts
}

// Len returns the number of issues.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.issues)
}

// --- Internals (callers hold t.mu) ---

// indexOf finds an issue by exact id, then by unique case-insensitive prefix.
func (t *Tracker) indexOf(id string) (int, error) {
	if id == "" {
		return -1, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	for i, issue := range t.issues {
		if issue.ID == id {
			return i, nil
		}
	}

	upper := strings.ToUpper(id)
	match := -1
	for i, issue := range t.issues {
		if !strings.HasPrefix(strings.ToUpper(issue.ID), upper) {
			continue
		}
		if match >= 0 {
			return -1, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
		}
		match = i
	}
	if match < 0 {
		return -1, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return match, nil
}

// mutable resolves id and rejects issues in a terminal state.
func (t *Tracker) mutable(id string) (int, error) {
	idx, err := t.indexOf(id)
	if err != nil {
		return -1, err
	}
	if issue := t.issues[idx]; issue.Status.IsTerminal() {
		return -1, fmt.Errorf("%w: %s is %s", ErrAlreadyClosed, issue.ID, issue.Status)
	}
	return idx, nil
}

// transition applies a status change with one history entry and, when comment
// is non-nil, one comment, then persists it.
func (t *Tracker) transition(ctx context.Context, idx int, to models.IssueStatus, agent, action string, comment *string) (*models.Issue, error) {
	cur := t.issues[idx]
	next := cur.Clone()
	ts := t.timestamp(cur.ModifiedAt)

	next.Status = to
	next.ModifiedAt = ts
	next.History = append(next.History, models.HistoryEntry{Timestamp: ts, Agent: agent, Action: action})
	if comment != nil {
		next.Comments = append(next.Comments, models.Comment{Timestamp: ts, Agent: agent, Text: *comment})
	}

	if err := t.commit(ctx, idx, next); err != nil {
		return nil, err
	}
	t.log.Info("issue transition", "issue", next.ID, "agent", agent, "from", cur.Status, "to", to)
	return next.Clone(), nil
}

// commit saves the collection with next replacing the issue at idx (or
// appended when idx < 0) and swaps it in only if the save succeeds.
func (t *Tracker) commit(ctx context.Context, idx int, next *models.Issue) error {
	issues := make([]*models.Issue, len(t.issues), len(t.issues)+1)
	copy(issues, t.issues)
	if idx < 0 {
		issues = append(issues, next)
	} else {
		issues[idx] = next
	}

	if err := t.store.Save(ctx, &models.Document{Issues: issues}); err != nil {
		t.log.Error("persist issues", "issue", next.ID, "location", t.store.Location(), "error", err)
		return fmt.Errorf("persist issue %s: %w", next.ID, err)
	}
	t.issues = issues
	return nil
}

// timestamp returns the current UTC time at millisecond precision, never
// earlier than floor.
func (t *Tracker) timestamp(floor time.Time) time.Time {
	ts := t.now().UTC().Truncate(time.Millisecond)
	if ts.Before(floor) {
		return floor
	}
	return ts
}
