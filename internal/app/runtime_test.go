package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerline/ledgerline/internal/testing/guard"
)

func TestInTestModeFollowsEnvironment(t *testing.T) {
	t.Setenv(guard.EnvVar, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(guard.EnvVar, "0")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
