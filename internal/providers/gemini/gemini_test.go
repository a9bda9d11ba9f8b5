package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/nextlevelbuilder/relaychat/internal/providers"
)

func TestClassifyAPIError(t *testing.T) {
	retryInfo := []map[string]any{{
		"@type":      "type.googleapis.com/google.rpc.RetryInfo",
		"retryDelay": "17s",
	}}

	tests := []struct {
		name      string
		err       genai.APIError
		wantClass providers.Class
		wantWait  time.Duration
	}{
		{"429 with retry info", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Details: retryInfo}, providers.ClassRateLimited, 17 * time.Second},
		{"429 without retry info", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "Quota exceeded"}, providers.ClassQuotaExceeded, 0},
		{"bad api key", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "API key not valid. Please pass a valid API key."}, providers.ClassInvalidCredential, 0},
		{"forbidden", genai.APIError{Code: 403, Status: "PERMISSION_DENIED", Message: "denied"}, providers.ClassInvalidCredential, 0},
		{"blocked", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "Request blocked by safety filters"}, providers.ClassContentBlocked, 0},
		{"server error", genai.APIError{Code: 503, Status: "UNAVAILABLE", Message: "overloaded"}, providers.ClassTransient, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := classifyAPIError(tt.err)
			assert.Equal(t, tt.wantClass, ce.Class)
			assert.Equal(t, tt.wantWait, ce.RetryAfter)
		})
	}
}

func TestClassifyWrappedAndPlainErrors(t *testing.T) {
	err := classify(fmt.Errorf("call: %w", genai.APIError{Code: 401, Message: "unauthenticated"}))
	var ce *providers.ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, providers.ClassInvalidCredential, ce.Class)

	err = classify(errors.New("connection reset"))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, providers.ClassTransient, ce.Class)

	err = classify(context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.As(err, &ce))
}

func TestBlockedReason(t *testing.T) {
	assert.Empty(t, blockedReason(nil))
	assert.Empty(t, blockedReason(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
	}
	assert.Equal(t, string(genai.BlockedReasonSafety), blockedReason(resp))

	resp = &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}
	assert.Equal(t, string(genai.FinishReasonSafety), blockedReason(resp))

	resp = &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}},
	}
	assert.Empty(t, blockedReason(resp))
}

func TestSafetySettingsBlockNothing(t *testing.T) {
	for _, s := range safetySettings() {
		assert.Equal(t, genai.HarmBlockThresholdBlockNone, s.Threshold)
	}
	assert.Len(t, safetySettings(), len(safetyCategories))
}
