package llm

import (
	"context"
	"sync"
)

// MockResponse is a canned response for the MockProvider.
type MockResponse struct {
	Text  string
	Usage Usage
	Err   error
}

// MockProvider is a deterministic Provider for testing.
// It returns canned responses in FIFO order and records all requests.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	Calls     []Request
	Purposes  []string
}

// NewMockProvider creates a MockProvider with the given canned responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// Generate returns the next canned response or ErrProviderUnavailable if
// the queue is empty. Schema-bound responses are validated like a real
// vendor's would be.
func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)
	m.Purposes = append(m.Purposes, PurposeFrom(ctx))

	if len(m.responses) == 0 {
		return nil, &ErrProviderUnavailable{}
	}

	next := m.responses[0]
	m.responses = m.responses[1:]
	if next.Err != nil {
		return nil, next.Err
	}

	return finish(req, &Response{
		Text:       next.Text,
		Usage:      next.Usage,
		Model:      ProviderMock,
		StopReason: stopEnd,
	})
}

// ModelID returns "mock".
func (m *MockProvider) ModelID() string {
	return ProviderMock
}

// AddResponse appends a canned response to the queue.
func (m *MockProvider) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// CallCount returns the number of Generate calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Pending returns how many canned responses are still queued.
func (m *MockProvider) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.responses)
}

// ScriptFunc produces a response text for a request and its purpose label.
type ScriptFunc func(purpose string, req Request) (string, error)

// ScriptedProvider answers every request by calling a ScriptFunc. It backs
// offline runs where no vendor is configured.
type ScriptedProvider struct {
	script ScriptFunc
}

// NewScriptedProvider wraps fn as a Provider.
func NewScriptedProvider(fn ScriptFunc) *ScriptedProvider {
	return &ScriptedProvider{script: fn}
}

func (s *ScriptedProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := s.script(PurposeFrom(ctx), req)
	if err != nil {
		return nil, err
	}
	return finish(req, &Response{
		Text:       text,
		Usage:      Usage{InputTokens: len(req.System) / 4, OutputTokens: len(text) / 4},
		Model:      "scripted",
		StopReason: stopEnd,
	})
}

// ModelID returns "scripted".
func (s *ScriptedProvider) ModelID() string {
	return "scripted"
}
