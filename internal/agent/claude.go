package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hay-kot/scrub/pkg/executil"
)

// CLIClient drives the agent through its command-line interface in
// non-interactive streaming mode (`-p --output-format stream-json`).
type CLIClient struct {
	// Command is the agent binary, e.g. "claude".
	Command string
	// Dir is the working directory agent processes run in.
	Dir string
	// APIKey, when set, is passed via the environment.
	APIKey string

	Exec executil.Executor
	Log  zerolog.Logger
}

// NewSession returns a session bound to the given model. The underlying
// process is spawned per Submit; continuity across submits uses the
// agent's resume mechanism.
func (c *CLIClient) NewSession(model string) Session {
	return &cliSession{client: c, model: model}
}

type cliSession struct {
	client    *CLIClient
	model     string
	sessionID string
	mu        sync.Mutex
}

func (s *cliSession) Submit(ctx context.Context, prompt string, onUpdate func(Update)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args := []string{"-p", prompt, "--model", s.model, "--output-format", "stream-json", "--verbose"}
	if s.sessionID != "" {
		args = append(args, "--resume", s.sessionID)
	}

	var env []string
	if s.client.APIKey != "" {
		// The key rides on the child's environment, never argv.
		env = append(env, "ANTHROPIC_API_KEY="+s.client.APIKey)
	}

	lw := &lineWriter{handle: func(line []byte) {
		s.handleEvent(line, onUpdate)
	}}
	var stderr bytes.Buffer

	err := s.client.Exec.RunDirStream(ctx, s.client.Dir, env, lw, &stderr, s.client.Command, args...)
	lw.flush()
	if err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return fmt.Errorf("agent call failed: %s: %w", msg, err)
		}
		return fmt.Errorf("agent call failed: %w", err)
	}
	return nil
}

// streamEvent is the subset of the agent's stream-json wire format the
// session decodes. Unknown event types fall through untouched.
type streamEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
			Name string `json:"name"`
		} `json:"content"`
	} `json:"message"`
}

func (s *cliSession) handleEvent(line []byte, onUpdate func(Update)) {
	var ev streamEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		s.client.Log.Debug().Str("line", string(line)).Msg("unparseable stream event")
		return
	}

	if ev.SessionID != "" {
		s.sessionID = ev.SessionID
	}

	if ev.Type != "assistant" || onUpdate == nil {
		return
	}
	for _, c := range ev.Message.Content {
		switch c.Type {
		case "text":
			if c.Text != "" {
				onUpdate(Update{Kind: UpdateTextDelta, Text: c.Text})
			}
		case "tool_use":
			onUpdate(Update{Kind: UpdateToolCall, Tool: c.Name})
		}
	}
}

// lineWriter buffers written bytes and dispatches complete lines.
type lineWriter struct {
	buf    bytes.Buffer
	handle func(line []byte)
}

var _ io.Writer = (*lineWriter)(nil)

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			return len(p), nil
		}
		line := make([]byte, idx)
		copy(line, w.buf.Bytes()[:idx])
		w.buf.Next(idx + 1)
		if len(bytes.TrimSpace(line)) > 0 {
			w.handle(line)
		}
	}
}

func (w *lineWriter) flush() {
	if line := bytes.TrimSpace(w.buf.Bytes()); len(line) > 0 {
		w.handle(line)
	}
	w.buf.Reset()
}
