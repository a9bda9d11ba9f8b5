package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScope(t *testing.T) {
	id, err := parseScope("42")
	require.NoError(t, err)
	assert.Equal(t, "private:42", id.String())

	id, err = parseScope("group:-100:7")
	require.NoError(t, err)
	assert.True(t, id.IsGroup())
	assert.Equal(t, "-100", id.GroupKey())

	_, err = parseScope("channel:1")
	assert.Error(t, err)
}

func TestOperatorCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"keys", "chat", "role", "model", "voice", "status", "migrate", "version"} {
		assert.True(t, names[want], want)
	}
}
