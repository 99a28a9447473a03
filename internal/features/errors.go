package features

import (
	"fmt"
	"sort"
	"strings"
)

// MalformedInputError rejects a transaction before scoring. Fields maps the
// offending JSON field to what is wrong with it.
type MalformedInputError struct {
	Fields map[string]string
}

func (e *MalformedInputError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "malformed transaction: " + strings.Join(parts, "; ")
}

func (e *MalformedInputError) add(field, reason string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = reason
	}
}

// UnknownCategory is a warning, not an error: the value was encoded with the
// reserved unknown code.
type UnknownCategory struct {
	Field string
	Value string
}

func (u UnknownCategory) String() string {
	return fmt.Sprintf("%s=%q", u.Field, u.Value)
}
