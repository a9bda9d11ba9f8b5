// Package gemini implements providers.Generator on the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/nextlevelbuilder/relaychat/internal/providers"
)

var _ providers.Generator = (*Provider)(nil)

var safetyCategories = []genai.HarmCategory{
	genai.HarmCategoryHarassment,
	genai.HarmCategoryHateSpeech,
	genai.HarmCategorySexuallyExplicit,
	genai.HarmCategoryDangerousContent,
}

// Provider keeps one genai client per API key; clients are created on first use.
type Provider struct {
	loc *time.Location

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// New returns a Provider that renders prompt timestamps in loc.
func New(loc *time.Location) *Provider {
	return &Provider{loc: loc, clients: make(map[string]*genai.Client)}
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) client(ctx context.Context, key string) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	p.clients[key] = c
	return c, nil
}

// Forget drops the cached client for key (after the key is removed from the pool).
func (p *Provider) Forget(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, key)
}

func (p *Provider) Generate(ctx context.Context, key string, req providers.Request) (string, error) {
	client, err := p.client(ctx, key)
	if err != nil {
		return "", providers.NewClassified(providers.ClassInvalidCredential, err)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.Persona, genai.RoleUser),
		SafetySettings:    safetySettings(),
	}

	slog.Debug("gemini.generate", "model", req.Model, "history_lines", len(req.History))
	resp, err := client.Models.GenerateContent(ctx, req.Model, genai.Text(providers.BuildPrompt(req, p.loc)), config)
	if err != nil {
		return "", classify(err)
	}
	if reason := blockedReason(resp); reason != "" {
		return "", providers.NewClassified(providers.ClassContentBlocked, fmt.Errorf("response blocked: %s", reason))
	}
	return strings.TrimSpace(resp.Text()), nil
}

func safetySettings() []*genai.SafetySetting {
	out := make([]*genai.SafetySetting, 0, len(safetyCategories))
	for _, c := range safetyCategories {
		out = append(out, &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockThresholdBlockNone})
	}
	return out
}

func blockedReason(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" &&
		resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return string(resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return string(genai.FinishReasonSafety)
	}
	return ""
}

// classify maps SDK errors onto failover classes.
func classify(err error) error {
	if providers.IsContextError(err) {
		return err
	}
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return providers.NewClassified(providers.ClassTransient, err)
	}
	return classifyAPIError(apiErr)
}

func classifyAPIError(apiErr genai.APIError) *providers.ClassifiedError {
	msg := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
		if wait, ok := retryDelay(apiErr.Details); ok {
			return providers.RateLimited(wait, apiErr)
		}
		return providers.NewClassified(providers.ClassQuotaExceeded, apiErr)
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden,
		apiErr.Code == http.StatusBadRequest && (strings.Contains(msg, "api key") || apiErr.Status == "INVALID_ARGUMENT" && strings.Contains(msg, "key")):
		return providers.NewClassified(providers.ClassInvalidCredential, apiErr)
	case strings.Contains(msg, "blocked") || strings.Contains(msg, "safety"):
		return providers.NewClassified(providers.ClassContentBlocked, apiErr)
	case strings.Contains(msg, "quota"):
		return providers.NewClassified(providers.ClassQuotaExceeded, apiErr)
	default:
		return providers.NewClassified(providers.ClassTransient, apiErr)
	}
}

// retryDelay extracts google.rpc.RetryInfo.retryDelay (e.g. "17s") from error details.
func retryDelay(details []map[string]any) (time.Duration, bool) {
	for _, d := range details {
		t, _ := d["@type"].(string)
		if !strings.HasSuffix(t, "google.rpc.RetryInfo") {
			continue
		}
		raw, _ := d["retryDelay"].(string)
		if wait, err := time.ParseDuration(raw); err == nil && wait > 0 {
			return wait, true
		}
	}
	return 0, false
}
