package models

import (
	"fmt"
	"time"
)

// IssueStatus represents the lifecycle state of an issue.
type IssueStatus string

const (
	IssueStatusCreated    IssueStatus = "created"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusCompleted  IssueStatus = "completed"
	IssueStatusInReview   IssueStatus = "in_review"
	IssueStatusClosed     IssueStatus = "closed"
	IssueStatusRejected   IssueStatus = "rejected"
)

// IssueStatuses lists every status in lifecycle order.
var IssueStatuses = []IssueStatus{
	IssueStatusCreated,
	IssueStatusInProgress,
	IssueStatusCompleted,
	IssueStatusInReview,
	IssueStatusClosed,
	IssueStatusRejected,
}

// Valid reports whether s is a known status.
func (s IssueStatus) Valid() bool {
	for _, known := range IssueStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is permitted out of s.
func (s IssueStatus) IsTerminal() bool {
	return s == IssueStatusClosed || s == IssueStatusRejected
}

// ParseIssueStatus converts a raw string into an IssueStatus.
func ParseIssueStatus(raw string) (IssueStatus, error) {
	s := IssueStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("invalid status %q", raw)
	}
	return s, nil
}

// Classification is the kind of work an issue tracks.
type Classification string

const (
	ClassificationBug         Classification = "bug"
	ClassificationImprovement Classification = "improvement"
	ClassificationFeature     Classification = "feature"
)

// Classifications lists every classification.
var Classifications = []Classification{
	ClassificationBug,
	ClassificationImprovement,
	ClassificationFeature,
}

// Valid reports whether c is a known classification.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationBug, ClassificationImprovement, ClassificationFeature:
		return true
	}
	return false
}

// ParseClassification converts a raw string into a Classification.
func ParseClassification(raw string) (Classification, error) {
	c := Classification(raw)
	if !c.Valid() {
		return "", fmt.Errorf("invalid classification %q (must be bug, improvement, or feature)", raw)
	}
	return c, nil
}

// HistoryEntry records a single state transition.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Agent     string    `json:"agent"`
	Action    string    `json:"action"`
}

// Comment is free text attached to an issue by an agent.
type Comment struct {
	Timestamp time.Time `json:"timestamp"`
	Agent     string    `json:"agent"`
	Text      string    `json:"text"`
}

// Issue is a unit of trackable work created and processed by agents.
type Issue struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Classification Classification `json:"classification"`
	CreatedAt      time.Time      `json:"createdAt"`
	ModifiedAt     time.Time      `json:"modifiedAt"`
	Status         IssueStatus    `json:"status"`
	History        []HistoryEntry `json:"history"`
	Comments       []Comment      `json:"comments"`
}

// Clone returns a deep copy of the issue.
func (i *Issue) Clone() *Issue {
	if i == nil {
		return nil
	}
	c := *i
	c.History = append(make([]HistoryEntry, 0, len(i.History)), i.History...)
	c.Comments = append(make([]Comment, 0, len(i.Comments)), i.Comments...)
	return &c
}

// LastHistory returns the most recent history entry, or nil if there is none.
func (i *Issue) LastHistory() *HistoryEntry {
	if len(i.History) == 0 {
		return nil
	}
	h := i.History[len(i.History)-1]
	return &h
}

// Document is the persisted root aggregate: every issue, in creation order.
type Document struct {
	Issues []*Issue `json:"issues"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{Issues: make([]*Issue, len(d.Issues))}
	for i, issue := range d.Issues {
		out.Issues[i] = issue.Clone()
	}
	return out
}
