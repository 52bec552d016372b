package events

import (
	"strings"
)

// Topic is a dot separated event name, e.g. "device.allocation.completed".
//
// Patterns used with Matches support "*" for exactly one segment, a lone "#" for
// anything, and a leading or trailing "#" for suffix or prefix matches.
type Topic string

func NewTopic(topic string) (Topic, error) {
	if strings.TrimSpace(topic) == "" {
		return "", ErrInvalidTopic
	}
	return Topic(topic), nil
}

func (t Topic) String() string {
	return string(t)
}

// Matches reports whether t satisfies pattern
func (t Topic) Matches(pattern Topic) bool {
	topic, p := t.String(), pattern.String()

	switch {
	case p == "#":
		return true
	case len(p) > 1 && strings.HasPrefix(p, "#") && strings.HasSuffix(p, "#"):
		return strings.Contains(topic, strings.Trim(p, "#"))
	case strings.HasPrefix(p, "#"):
		return strings.HasSuffix(topic, strings.TrimPrefix(p, "#"))
	case strings.HasSuffix(p, "#"):
		return strings.HasPrefix(topic, strings.TrimSuffix(p, "#"))
	}

	return matchSegments(strings.Split(p, "."), strings.Split(topic, "."))
}

func matchSegments(pattern, topic []string) bool {
	if len(pattern) != len(topic) {
		return false
	}
	for i := range pattern {
		if pattern[i] != "*" && pattern[i] != topic[i] {
			return false
		}
	}
	return true
}
