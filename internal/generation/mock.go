package generation

import (
	"context"
	"fmt"
	"sync"
)

// MockGenerator is a deterministic in-process Generator for tests and local
// development. It records every request it receives.
type MockGenerator struct {
	mu       sync.Mutex
	requests []Request

	// Result and Err, when set, override the default canned output.
	Result *Result
	Err    error
}

// Generate returns canned content echoing the instruction.
func (m *MockGenerator) Generate(_ context.Context, req Request) (Result, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Err != nil {
		return Result{}, m.Err
	}
	if m.Result != nil {
		return *m.Result, nil
	}
	return Result{
		Title:    "Mock changelog",
		Markdown: fmt.Sprintf("# Mock changelog\n\nGenerated from instruction:\n\n```\n%s\n```\n", req.Instruction),
	}, nil
}

// Requests returns a copy of all recorded requests.
func (m *MockGenerator) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}
