package access

import (
	"fmt"
	"strings"
)

// trimField trims v and enforces the non-empty and max-length rules shared
// by catalog and registry fields. The returned error names the field.
func trimField(field, v string, maxLen int) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", &ValidationError{Field: field, Reason: "must not be empty"}
	}
	if len(v) > maxLen {
		return "", &ValidationError{Field: field, Reason: fmt.Sprintf("longer than %d characters", maxLen)}
	}
	return v, nil
}
