package repository

import (
	"fmt"
	"regexp"
)

// Field names end up inside SQL JSON paths and bolt index keys, so they are
// restricted to identifier characters.
var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateField returns an error if name is not a plain identifier.
func ValidateField(name string) error {
	if !fieldPattern.MatchString(name) {
		return fmt.Errorf("repository: invalid field name %q", name)
	}
	return nil
}

// CloneFields returns a shallow copy of fields that is never nil.
func CloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
