package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, canTransition("PENDING", "PROCESSING"))
	assert.True(t, canTransition("processing", "published"))
	assert.True(t, canTransition("PROCESSING", "PENDING"))
	assert.True(t, canTransition("PROCESSING", "FAILED"))
	assert.True(t, canTransition("FAILED", "PENDING"))

	assert.False(t, canTransition("PENDING", "PUBLISHED"))
	assert.False(t, canTransition("PUBLISHED", "PENDING"))
	assert.False(t, canTransition("UNKNOWN", "PENDING"))
}
