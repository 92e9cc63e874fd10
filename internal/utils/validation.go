package utils

import "strings"

// ValidatePriority validates a service priority value: 1..3 or N.
func ValidatePriority(priority string) error {
	switch strings.ToUpper(priority) {
	case "1", "2", "3", "N":
		return nil
	}
	return ErrInvalidPriority(priority)
}

// ValidateFilter performs a cheap local sanity check on a search filter
// before it is sent to the service: balanced parentheses and closed
// quotes. The service does the real parsing; this only catches the
// typos that would otherwise cost a round trip.
func ValidateFilter(filter string) error {
	depth := 0
	inQuote := false
	for _, r := range filter {
		switch r {
		case '"':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
				if depth < 0 {
					return ErrInvalidFilter(filter, "unmatched ')'")
				}
			}
		}
	}
	if inQuote {
		return ErrInvalidFilter(filter, "unterminated quote")
	}
	if depth != 0 {
		return ErrInvalidFilter(filter, "unmatched '('")
	}
	return nil
}
