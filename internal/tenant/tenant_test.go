package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForAgent(t *testing.T) {
	assert.Equal(t, "master", ForAgent(""))
	assert.Equal(t, "agent:a1", ForAgent("a1"))
}

func TestAgentID(t *testing.T) {
	id, ok := AgentID("agent:a1")
	assert.True(t, ok)
	assert.Equal(t, "a1", id)

	_, ok = AgentID("master")
	assert.False(t, ok)

	_, ok = AgentID("agent:")
	assert.False(t, ok)
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsMaster(Master))
	assert.False(t, IsAgent(Master))
	assert.True(t, IsAgent(ForAgent("x")))
	assert.False(t, IsMaster(ForAgent("x")))
}
