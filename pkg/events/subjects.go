package events

import (
	"fmt"
	"strings"
)

// DefaultSubjectPrefix is the prefix used when none is configured.
const DefaultSubjectPrefix = "orsa.v1.saga"

var segmentReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// Subject returns the subject for an event of a saga: <prefix>.<saga>.<event>.
func Subject(prefix, saga, eventType string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return fmt.Sprintf("%s.%s.%s", prefix, sanitizeSegment(saga), sanitizeSegment(eventType))
}

// WildcardSubject matches every event under prefix.
func WildcardSubject(prefix string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + ".>"
}

func sanitizeSegment(value string) string {
	if value == "" {
		return "unknown"
	}
	return segmentReplacer.Replace(value)
}

// SagaSubject matches every event of one saga under prefix.
func SagaSubject(prefix, saga string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return fmt.Sprintf("%s.%s.*", prefix, sanitizeSegment(saga))
}
