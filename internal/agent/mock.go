package agent

import (
	"context"
	"sync"
)

// MockClient implements Client for tests. It records every submitted
// prompt and lets tests script per-submit behavior, including writing the
// artifact file a prompt asks for.
type MockClient struct {
	mu sync.Mutex

	// OnSubmit, if set, is invoked for every Submit with the model and
	// prompt. Its return value becomes the Submit error.
	OnSubmit func(model, prompt string, onUpdate func(Update)) error

	sessions []*MockSession
	prompts  []SubmittedPrompt
}

// SubmittedPrompt records one Submit call.
type SubmittedPrompt struct {
	Model  string
	Prompt string
}

// MockSession is a session handed out by MockClient.
type MockSession struct {
	client *MockClient
	Model  string

	mu      sync.Mutex
	Prompts []string
}

// NewSession returns a fresh recorded session.
func (c *MockClient) NewSession(model string) Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &MockSession{client: c, Model: model}
	c.sessions = append(c.sessions, s)
	return s
}

// Sessions returns every session created so far.
func (c *MockClient) Sessions() []*MockSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*MockSession(nil), c.sessions...)
}

// Prompts returns every prompt submitted across all sessions, in order.
func (c *MockClient) Prompts() []SubmittedPrompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SubmittedPrompt(nil), c.prompts...)
}

// Submit records the prompt and delegates to the client's OnSubmit hook.
func (s *MockSession) Submit(ctx context.Context, prompt string, onUpdate func(Update)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.Prompts = append(s.Prompts, prompt)
	s.mu.Unlock()

	s.client.mu.Lock()
	s.client.prompts = append(s.client.prompts, SubmittedPrompt{Model: s.Model, Prompt: prompt})
	hook := s.client.OnSubmit
	s.client.mu.Unlock()

	if hook != nil {
		return hook(s.Model, prompt, onUpdate)
	}
	return nil
}
