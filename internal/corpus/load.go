package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/hash"
)

const maxRecordSize = 16 * 1024 * 1024

// scanRecords calls fn for each non-blank line with its 1-based line number.
func scanRecords(r io.Reader, fn func(line int, data []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		if err := fn(line, data); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.MalformedRecordError(line+1, "failed to read record", err)
	}
	return nil
}

// LoadDocuments reads line-delimited document records and labels each one.
// Document IDs must be unique.
func LoadDocuments(r io.Reader, labeler *Labeler) ([]Document, error) {
	var docs []Document
	seen := make(map[string]int)

	err := scanRecords(r, func(line int, data []byte) error {
		var rec documentRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return errors.MalformedRecordError(line, "invalid document record", err)
		}

		id := strings.TrimSpace(rec.id())
		if id == "" {
			return errors.MalformedRecordError(line, "document record has no id", nil)
		}
		if strings.TrimSpace(rec.text()) == "" {
			return errors.MalformedRecordError(line, fmt.Sprintf("document %s has no text", id), nil)
		}
		if prev, dup := seen[id]; dup {
			return errors.MalformedRecordError(line, fmt.Sprintf("duplicate document id %s (first seen on line %d)", id, prev), nil)
		}
		seen[id] = line

		docs = append(docs, Document{
			ID:    id,
			Text:  rec.text(),
			Label: labeler.Label(rec.text()),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return docs, nil
}

// LoadScenarios reads line-delimited scenario records.
//
// Accepted shapes:
//
//	{"query": "...", "expected_id": "..."}
//	{"input": "...", "result": "..."}
//	{"input": "...", "result": ["..."]}
//
// A result array must hold exactly one ID.
func LoadScenarios(r io.Reader) ([]Scenario, error) {
	var scenarios []Scenario

	err := scanRecords(r, func(line int, data []byte) error {
		var rec struct {
			Query      string          `json:"query"`
			ExpectedID string          `json:"expected_id"`
			Input      string          `json:"input"`
			Result     json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return errors.MalformedRecordError(line, "invalid scenario record", err)
		}

		query := rec.Query
		if query == "" {
			query = rec.Input
		}
		if strings.TrimSpace(query) == "" {
			return errors.MalformedRecordError(line, "scenario record has no query", nil)
		}

		expected := rec.ExpectedID
		if expected == "" && len(rec.Result) > 0 {
			id, err := parseResultID(rec.Result)
			if err != nil {
				return errors.MalformedRecordError(line, "invalid scenario result", err)
			}
			expected = id
		}
		expected = strings.TrimSpace(expected)
		if expected == "" {
			return errors.MalformedRecordError(line, "scenario record has no expected id", nil)
		}

		scenarios = append(scenarios, Scenario{Query: query, ExpectedID: expected})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return scenarios, nil
}

func parseResultID(raw json.RawMessage) (string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return "", fmt.Errorf("result must be a string or an array of strings")
	}
	if len(many) != 1 {
		return "", fmt.Errorf("result must hold exactly one id, got %d", len(many))
	}
	return many[0], nil
}

// Fingerprint identifies a corpus by its document IDs and texts.
func Fingerprint(docs []Document) string {
	entries := make(map[string]string, len(docs))
	for _, d := range docs {
		entries[d.ID] = d.Text
	}
	return hash.Fingerprint(entries)
}

// CountByCategory tallies documents per label.
func CountByCategory(docs []Document) map[Category]int {
	counts := make(map[Category]int)
	for _, d := range docs {
		counts[d.Label]++
	}
	return counts
}
