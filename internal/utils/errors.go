package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrAuthRequired returns an error for commands that need a stored
// token before they can talk to the service.
func ErrAuthRequired() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("not authenticated"),
		Suggestion: "Run 'rtmilk auth' to connect your account",
	}
}

// ErrTokenExpired returns an error for a token the service no longer
// accepts.
func ErrTokenExpired(err error) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: "The stored token was revoked or expired. Run 'rtmilk auth' to authorize again",
	}
}

// ErrListNotFound returns an error for when a list is not found.
func ErrListNotFound(listName string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("list not found: %s", listName),
		Suggestion: "Run 'rtmilk lists' to see the lists on your account",
	}
}

// ErrTaskNotFound returns an error for when a task is not found.
func ErrTaskNotFound(searchTerm string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("task not found: %s", searchTerm),
		Suggestion: "Check the task name or run 'rtmilk tasks' to see all tasks",
	}
}

// ErrAPIKeyMissing returns an error when no API key pair is configured.
func ErrAPIKeyMissing() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("no API key configured"),
		Suggestion: "Set api_key and api_secret in the config file, or export RTM_API_KEY and RTM_API_SECRET",
	}
}

// ErrServiceUnreachable returns an error when the service cannot be
// reached, with a context-aware suggestion.
func ErrServiceUnreachable(reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("service unreachable: %s", reason),
		Suggestion: getSmartSuggestion(reason),
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the server is running and accessible"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "i/o timeout") {
		return "The server may be slow or unreachable. Try again later"
	}

	return "Check your internet connection and try again"
}

// ErrInvalidPriority returns an error for an invalid priority value.
func ErrInvalidPriority(priority string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid priority: %s", priority),
		Suggestion: "Priority must be 1, 2, 3 or N (none)",
	}
}

// ErrInvalidFilter returns an error for a search filter the service
// would reject.
func ErrInvalidFilter(filter, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid filter %q: %s", filter, reason),
		Suggestion: "Filters combine terms like status:incomplete, due:today and tag:work with AND/OR",
	}
}

// ErrNothingToUndo returns an error when the undo history is empty.
func ErrNothingToUndo() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("nothing to undo"),
		Suggestion: "Only recent completions made in this session can be undone",
	}
}
