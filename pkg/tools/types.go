package tools

import "context"

type ToolType string

const ToolTypeFunction ToolType = "function"

// FunctionCall is the OpenAI-style denormalized view of a tool call. The
// normalizer keeps it populated alongside the canonical Name/Args pair so
// consumers using either shape keep working.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	Index *int     `json:"index,omitempty"`
	ID    string   `json:"id,omitempty"`
	Type  ToolType `json:"type,omitempty"`

	// Canonical fields, populated by Normalize.
	Name string         `json:"name,omitempty"`
	Args map[string]any `json:"args,omitempty"`

	Function FunctionCall `json:"function"`
}

type ToolCallResult struct {
	Output string `json:"output"`
}

// Handler executes a tool with already-normalized arguments.
type Handler func(ctx context.Context, args map[string]any) (*ToolCallResult, error)

// VerifyResult is the outcome of a tool's configuration self-check.
type VerifyResult struct {
	OK     bool
	Reason string
}

// Tool bundles a tool's schema with its implementation.
type Tool struct {
	Name        string
	Description string
	Parameters  any // JSON schema for the arguments object

	Handler Handler

	// VerifyConfiguration reports whether the tool is usable right now
	// (API key present, endpoint configured, ...). Nil means always ready.
	VerifyConfiguration func() VerifyResult
}
