package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// maxNameLength bounds view and scenario names.
const maxNameLength = 128

// ValidateViewName validates a view name used in manifests and HTTP routes.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters or whitespace
//   - No path separators (names are used as URL path segments)
//   - Maximum length of 128 characters
func ValidateViewName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidName, "view name cannot be empty")
	}

	if len(name) > maxNameLength {
		return New(ErrCodeInvalidName, "view name too long (max %d characters)", maxNameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidName, "view name %q contains whitespace or control characters", name)
		}
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidName, "view name %q cannot contain path separators", name)
	}

	if !viewNameRegex.MatchString(name) {
		return New(ErrCodeInvalidName, "invalid view name: %q", name)
	}

	return nil
}

// viewNameRegex matches names made of letters, digits, dots, dashes and underscores.
var viewNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateFormat checks s against a set of allowed output formats.
func ValidateFormat(s string, allowed ...string) error {
	for _, a := range allowed {
		if s == a {
			return nil
		}
	}
	return New(ErrCodeInvalidFormat, "invalid format: %s (must be one of %s)", s, strings.Join(allowed, ", "))
}
