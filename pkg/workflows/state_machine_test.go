package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type light string

func TestStateMachine(t *testing.T) {
	sm := NewStateMachine(map[light][]light{
		"green":  {"yellow"},
		"yellow": {"red"},
		"red":    {"green", "off"},
	})

	assert.True(t, sm.CanTransition("green", "yellow"))
	assert.False(t, sm.CanTransition("green", "red"))
	assert.False(t, sm.CanTransition("off", "green"))
	assert.Equal(t, []light{"green", "off"}, sm.GetAllowedTransitions("red"))
	assert.Empty(t, sm.GetAllowedTransitions("blue"))
	assert.True(t, sm.IsTerminal("off"))
	assert.False(t, sm.IsTerminal("red"))
}
