// Package security provides input validation for evaluation requests and
// sanitization and masking for values that end up in logs.
package security

import (
	"fmt"
	"unicode/utf8"

	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Validation limits for requests to the evaluation endpoint.
const (
	// Query limits.
	MaxQueryLength = 10000

	// Document ID limits.
	MaxIDLength = 256

	// Scenario limits.
	MaxScenarios = 10000

	// Cutoff limits.
	MinCutoff = 1
	MaxCutoff = 1000

	// Request body limit.
	MaxRequestSize = 10 * 1024 * 1024 // 10MB
)

// DetailField names the offending field in validation errors.
const DetailField = "field"

func fieldError(field, constraint string) *errors.AppError {
	return errors.ValidationError(fmt.Sprintf("validation failed for %s: %s", field, constraint)).
		WithDetail(DetailField, field)
}

// ValidateQuery validates a scenario query.
// Requirements: Required, at most 10000 chars, valid UTF-8.
func ValidateQuery(query string) error {
	if query == "" {
		return fieldError("query", "required")
	}
	if !utf8.ValidString(query) {
		return fieldError("query", "must be valid UTF-8")
	}
	if n := utf8.RuneCountInString(query); n > MaxQueryLength {
		return fieldError("query", fmt.Sprintf("maximum length is %d characters (got: %d)", MaxQueryLength, n))
	}
	return nil
}

// ValidateDocumentID validates an expected document ID.
// Requirements: Required, at most 256 chars, valid UTF-8.
func ValidateDocumentID(id string) error {
	if id == "" {
		return fieldError("expected_id", "required")
	}
	if !utf8.ValidString(id) {
		return fieldError("expected_id", "must be valid UTF-8")
	}
	if n := utf8.RuneCountInString(id); n > MaxIDLength {
		return fieldError("expected_id", fmt.Sprintf("maximum length is %d characters (got: %d)", MaxIDLength, n))
	}
	return nil
}

// ValidateCutoffs validates requested cutoffs. Each must be in [1, 1000].
func ValidateCutoffs(cutoffs []int) error {
	for _, k := range cutoffs {
		if k < MinCutoff || k > MaxCutoff {
			return fieldError("cutoffs", fmt.Sprintf("each cutoff must be between %d and %d (got: %d)", MinCutoff, MaxCutoff, k))
		}
	}
	return nil
}

// ValidateScenarioCount validates the number of scenarios in one request.
func ValidateScenarioCount(n int) error {
	if n < 1 {
		return fieldError("scenarios", "at least one scenario is required")
	}
	if n > MaxScenarios {
		return fieldError("scenarios", fmt.Sprintf("at most %d scenarios per request (got: %d)", MaxScenarios, n))
	}
	return nil
}
