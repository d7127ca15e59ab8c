// Package llm models the language capability: given a system prompt,
// the conversation so far and a function schema, return either a plain
// reply or a structured function call.
package llm

import (
	"context"
	"fmt"

	"apptchat/internal/models"
)

// Schema is a vendor-neutral subset of JSON Schema used to describe
// function arguments.
type Schema struct {
	Type        string // object, string, integer, boolean
	Description string
	Properties  map[string]*Schema
	Required    []string
}

// Function describes one callable engine operation.
type Function struct {
	Name        string
	Description string
	Parameters  *Schema
}

// Request carries everything a provider needs for one completion.
type Request struct {
	System    string
	Turns     []models.Turn
	Functions []Function
}

// FunctionCall is a structured request for one engine operation.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// Completion is either a text reply or a function call, never both.
type Completion struct {
	Text string
	Call *FunctionCall
}

// Provider is the language-capability boundary. Implementations must
// honor ctx cancellation; the dispatcher sets a per-call timeout.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// ProviderError wraps any failure of the language capability: network,
// auth, timeout, malformed output. Eligible for exactly one retry.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
