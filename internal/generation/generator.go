// Package generation wraps the content-generation capability. The caller
// supplies brand context and a natural-language instruction; the capability
// returns a titled markdown document.
package generation

import "context"

// BrandSettings carries organization branding fed into generation prompts.
// All fields are optional; absent values fall back to neutral defaults.
type BrandSettings struct {
	Tone               string `json:"tone,omitempty"`
	CompanyName        string `json:"companyName,omitempty"`
	CompanyDescription string `json:"companyDescription,omitempty"`
	Audience           string `json:"audience,omitempty"`
	CustomInstructions string `json:"customInstructions,omitempty"`
}

// Request is the calling contract of the capability.
type Request struct {
	Brand       BrandSettings
	Instruction string
}

// Result is the produced artifact. Title is plain text, at most 120
// characters; Markdown is the document body.
type Result struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}

// Generator is the capability port. Implementations are treated as black
// boxes; this package owns only what context is supplied.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}
