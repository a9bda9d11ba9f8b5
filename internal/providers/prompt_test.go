package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	loc, err := time.LoadLocation("America/Phoenix")
	require.NoError(t, err)

	got := BuildPrompt(Request{
		Persona: "Role text",
		History: []string{"Role: Role text", "Sam: hi"},
		Message: "hi",
		Now:     time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
	}, loc)

	want := "Current Time (America/Phoenix): 2025-01-02 03:00:00 MST\n\n" +
		"Role:\nRole text\n\n" +
		"Chat History:\nRole: Role text\nSam: hi\n\n" +
		"User Current Message:\nhi"
	assert.Equal(t, want, got)
}

func TestBuildPromptDefaultsToUTC(t *testing.T) {
	got := BuildPrompt(Request{Now: time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)}, nil)
	assert.Contains(t, got, "Current Time (UTC): 2025-01-02 10:00:00 UTC")
}
