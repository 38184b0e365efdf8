// Package agent defines the capability boundary to the hosted coding agent:
// submit one prompt per call, receive a stream of typed updates, and rely on
// the guarantee that once the stream ends, any file the prompt instructed
// the agent to write exists on disk.
package agent

import "context"

// UpdateKind discriminates stream update records.
type UpdateKind string

// Update kinds the orchestrator cares about; everything else in the wire
// stream is dropped before it reaches consumers.
const (
	UpdateTextDelta UpdateKind = "text-delta"
	UpdateToolCall  UpdateKind = "tool-call-started"
)

// Update is one streamed progress record. Text updates are display-only;
// the authoritative output of a call is the artifact file the prompt
// instructs the agent to write.
type Update struct {
	Kind UpdateKind
	Text string // UpdateTextDelta
	Tool string // UpdateToolCall
}

// Session is one conversation with the agent. Submit blocks until the
// stream ends, invoking onUpdate synchronously for each update. A session
// retains conversational context across Submit calls.
type Session interface {
	Submit(ctx context.Context, prompt string, onUpdate func(Update)) error
}

// Client constructs sessions bound to a model. The orchestrator creates a
// fresh session per file-group so concurrent fixes never share context.
type Client interface {
	NewSession(model string) Session
}
