package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bryanwahyu/analytics-bridge/internal/domain/analysis"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/artifacts"
)

// Input validation and sanitization utilities

// ErrInvalidInput wraps every validation failure; handlers answer 400.
var ErrInvalidInput = errors.New("invalid input")

// ValidateKind checks the analysis kind against the routable list
func ValidateKind(kind string) (analysis.Kind, error) {
	k := analysis.Kind(strings.ToLower(strings.TrimSpace(kind)))
	for _, known := range analysis.Kinds() {
		if k == known {
			return k, nil
		}
	}
	names := make([]string, 0, len(analysis.Kinds()))
	for _, known := range analysis.Kinds() {
		names = append(names, string(known))
	}
	return "", fmt.Errorf("%w: analysis kind %q (allowed: %s)", ErrInvalidInput, kind, strings.Join(names, ", "))
}

// ValidateArtifact checks the artifact kind; empty means results.
func ValidateArtifact(artifact string) (string, error) {
	a := strings.ToLower(strings.TrimSpace(artifact))
	if a == "" || a == "all" {
		return artifacts.KindResults, nil
	}
	for _, known := range artifacts.KnownKinds() {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: artifact %q (allowed: %s)", ErrInvalidInput, artifact, strings.Join(artifacts.KnownKinds(), ", "))
}

// ValidateFormat accepts csv (default) and xlsx
func ValidateFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "":
		return artifacts.FormatCSV, nil
	case artifacts.FormatCSV, artifacts.FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: format %q (allowed: csv, xlsx)", ErrInvalidInput, format)
	}
}

// ValidateSessionID parses a positive session id
func ValidateSessionID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: session id cannot be empty", ErrInvalidInput)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: session id %q", ErrInvalidInput, raw)
	}
	return id, nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// SanitizeTags splits a comma separated tag field, dropping empties and duplicates.
func SanitizeTags(raw string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, t := range strings.Split(raw, ",") {
		t = SanitizeString(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
