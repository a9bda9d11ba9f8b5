package providers

import (
	"context"
	"time"
)

// Generator is a single-credential generation backend.
// Implementations return a *ClassifiedError (or an error Classify understands) on failure.
type Generator interface {
	// Generate submits req using credential and returns the response text.
	Generate(ctx context.Context, credential string, req Request) (string, error)

	// Name returns the backend identifier (e.g. "gemini").
	Name() string
}

// Request is everything one generation call needs.
type Request struct {
	Model   string   `json:"model"`
	Persona string   `json:"persona"`
	History []string `json:"history"`
	Message string   `json:"message"`
	// Now is the timestamp rendered into the prompt. Zero means time.Now().
	Now time.Time `json:"-"`
}
