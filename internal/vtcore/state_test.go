package vtcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{Created, Ready, true},
		{Ready, Running, true},
		{Running, Blocked, true},
		{Running, Preempted, true},
		{Running, Finished, true},
		{Running, Cancelled, true},
		{Blocked, Ready, true},
		{Preempted, Ready, true},
		{Created, Running, false},
		{Finished, Ready, false},
		{Ready, Blocked, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ValidTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, Finished.Terminal())
	assert.True(t, Cancelled.Terminal())
	assert.False(t, Running.Terminal())
}

func TestPriorityOrdering(t *testing.T) {
	assert.Less(t, int(Critical), int(High))
	assert.Less(t, int(High), int(Normal))
	assert.Less(t, int(Normal), int(Low))
	assert.Equal(t, 4, NumPriorities)
	assert.True(t, Low.Valid())
}
