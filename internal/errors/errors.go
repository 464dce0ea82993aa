// Package errors defines the error kinds surfaced by deployment runs.
//
// Configuration errors are fatal to the unit being loaded. Validation
// errors are fatal to the rule batch containing them. Write errors are
// recorded per unit and never propagate past the orchestrator.
package errors

import (
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a problem with an input file or one of its fields.
// It is always fatal to the unit being loaded.
type ConfigError struct {
	File       string
	Field      string
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.File != "" {
		msg += fmt.Sprintf(" in %s", e.File)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (field '%s')", e.Field)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// ValidationError reports a malformed rule record. Index is the record's
// 1-based position in its input list; Field names the offending field.
// A validation error aborts the whole batch before any write.
type ValidationError struct {
	Index   int
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	msg := fmt.Sprintf("rule %d", e.Index)
	if e.Field != "" {
		msg += fmt.Sprintf(" field '%s'", e.Field)
	}
	return msg + ": " + e.Message
}

// WriteError records a failed remote write. It is attached to the unit
// that was being deployed and does not abort sibling units.
type WriteError struct {
	Target string
	Err    error
}

func (e WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Target, e.Err)
}

func (e WriteError) Unwrap() error {
	return e.Err
}
