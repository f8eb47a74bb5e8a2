package strata

import (
	"reflect"
	"strings"
)

// stackEntry is one frame of a resolution chain. Types are compared by
// identity; ad-hoc factories only contribute a name.
type stackEntry struct {
	typ  reflect.Type
	name string
}

// lookupStack tracks the entries currently being resolved by a registry.
// A type appearing twice means the dependency graph has a cycle.
type lookupStack struct {
	entries []stackEntry
}

// push adds an entry and returns the function that removes it again.
// Callers defer the release so the stack unwinds on every exit path.
func (s *lookupStack) push(e stackEntry) func() {
	s.entries = append(s.entries, e)
	n := len(s.entries)
	return func() {
		s.entries = s.entries[:n-1]
	}
}

// contains reports whether t is currently under resolution.
func (s *lookupStack) contains(t reflect.Type) bool {
	for _, e := range s.entries {
		if e.typ != nil && e.typ == t {
			return true
		}
	}
	return false
}

// len returns the number of entries on the stack.
func (s *lookupStack) len() int {
	return len(s.entries)
}

// String joins the entry names in request order, e.g. "A -> C -> B".
func (s *lookupStack) String() string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return strings.Join(names, " -> ")
}
