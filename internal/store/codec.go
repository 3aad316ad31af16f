package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joescharf/ait/internal/models"
)

// encodeDocument renders the document in the on-disk JSON layout.
func encodeDocument(doc *models.Document) ([]byte, error) {
	out := &models.Document{Issues: []*models.Issue{}}
	if doc != nil && doc.Issues != nil {
		out.Issues = doc.Issues
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode issue store: %w", err)
	}
	return data, nil
}

// decodeDocument parses and validates a persisted document. Documents written
// by earlier versions may lack comments, history or modifiedAt; those are
// filled in rather than rejected.
func decodeDocument(data []byte, path string) (*models.Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &DecodeError{Path: path, Err: errors.New("empty document")}
	}

	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	if doc.Issues == nil {
		doc.Issues = []*models.Issue{}
	}

	seen := make(map[string]bool, len(doc.Issues))
	for n, issue := range doc.Issues {
		if issue == nil {
			return nil, &DecodeError{Path: path, Err: fmt.Errorf("issue %d is null", n)}
		}
		if issue.ID == "" {
			return nil, &DecodeError{Path: path, Err: fmt.Errorf("issue %d has no id", n)}
		}
		if seen[issue.ID] {
			return nil, &DecodeError{Path: path, Err: fmt.Errorf("duplicate issue id %s", issue.ID)}
		}
		seen[issue.ID] = true

		if !issue.Status.Valid() {
			return nil, &DecodeError{Path: path, Err: fmt.Errorf("issue %s has invalid status %q", issue.ID, issue.Status)}
		}
		if !issue.Classification.Valid() {
			return nil, &DecodeError{Path: path, Err: fmt.Errorf("issue %s has invalid classification %q", issue.ID, issue.Classification)}
		}

		if issue.History == nil {
			issue.History = []models.HistoryEntry{}
		}
		if issue.Comments == nil {
			issue.Comments = []models.Comment{}
		}
		if issue.ModifiedAt.IsZero() {
			issue.ModifiedAt = issue.CreatedAt
		}
	}

	return &doc, nil
}
