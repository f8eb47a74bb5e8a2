package strata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupStack_PushRelease(t *testing.T) {
	var s lookupStack

	releaseA := s.push(stackEntry{typ: TypeOf[*settings](), name: "settings"})
	releaseB := s.push(stackEntry{name: "newThing"})

	assert.Equal(t, 2, s.len())
	assert.True(t, s.contains(TypeOf[*settings]()))
	assert.False(t, s.contains(TypeOf[*database]()))
	assert.Equal(t, "settings -> newThing", s.String())

	releaseB()
	releaseA()

	assert.Equal(t, 0, s.len())
	assert.False(t, s.contains(TypeOf[*settings]()))
	assert.Empty(t, s.String())
}

func TestLookupStack_NamesOnlyNeverMatch(t *testing.T) {
	var s lookupStack
	release := s.push(stackEntry{name: "factory"})
	defer release()

	assert.False(t, s.contains(nil))
}
