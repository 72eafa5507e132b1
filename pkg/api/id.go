package api

import (
	"regexp"
	"strings"
)

type (
	// InstanceID uniquely identifies an orchestration instance
	InstanceID string

	// CorrelationID matches a scheduled action to its completion. It is
	// assigned positionally, starting at 1, in logical scheduling order
	CorrelationID int64

	// ParentRef points from a sub-orchestration back to the action in the
	// parent instance that scheduled it
	ParentRef struct {
		InstanceID    InstanceID    `json:"instance_id"`
		CorrelationID CorrelationID `json:"correlation_id"`
	}
)

// ChildIDSeparator joins a parent instance ID and a correlation ID into the
// ID of a sub-orchestration. Caller-chosen IDs may not contain it
const ChildIDSeparator = ":"

// InvalidIDChars matches characters not permitted in instance IDs. Valid
// characters are: letters, digits, underscore, dot, hyphen, colon, plus
var InvalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9_.\-:+]`)

// SanitizeID removes invalid characters and trims leading and trailing
// hyphens
func SanitizeID[T ~string](id T) T {
	sanitized := InvalidIDChars.ReplaceAllString(string(id), "")
	return T(strings.Trim(sanitized, "-"))
}

// IsChildID reports whether id has the form of a sub-orchestration ID
func IsChildID(id InstanceID) bool {
	return strings.Contains(string(id), ChildIDSeparator)
}
