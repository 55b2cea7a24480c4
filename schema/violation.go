package schema

import (
	"fmt"
	"strings"
)

// Violation describes a single structural rule failure. Validation returns
// every violation found, not just the first, so callers can report all
// problems at once.
type Violation struct {
	// Path locates the offending node in dot notation ("" is the root).
	Path string
	// Rule names the failed check: "required", "type", "pattern",
	// "additionalProperties".
	Rule string
	// Want and Got describe expected vs. actual, for rendering.
	Want string
	Got  string
}

func (v Violation) String() string {
	path := v.Path
	if path == "" {
		path = "(root)"
	}
	switch v.Rule {
	case "required":
		return fmt.Sprintf("%s: missing required field %q", path, v.Want)
	case "additionalProperties":
		return fmt.Sprintf("%s: unexpected field %q", path, v.Got)
	default:
		return fmt.Sprintf("%s: %s: want %s, got %s", path, v.Rule, v.Want, v.Got)
	}
}

// FormatViolations joins violations into a single human-readable message.
func FormatViolations(violations []Violation) string {
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.String()
	}
	return strings.Join(parts, "; ")
}
