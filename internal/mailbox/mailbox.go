// Package mailbox implements the channel fabric: the typed, multi-producer/
// single-consumer mailboxes that connect the CLI loop, the API worker, and
// the tool worker, plus the broadcast shutdown signal. It replaces direct
// function calls between those three goroutines with explicit message
// passing so each worker can be cancelled and drained independently.
package mailbox

import (
	"context"
	"encoding/json"
	"time"
)

// ShutdownPoll is how often a blocking receive re-checks the shutdown
// signal while waiting for a message.
const ShutdownPoll = 50 * time.Millisecond

// ApiRequest is submitted by the CLI to the API worker for one user turn.
type ApiRequest struct {
	ID               string
	Messages         []json.RawMessage // provider.Message, opaque here to avoid an import cycle
	ModelNickname    string
	ModeSystemPrompt string
}

// ToolRequest is sent by the API worker to the tool worker.
type ToolRequest struct {
	ID                   string
	Name                 string
	ArgsJSON             json.RawMessage
	RequiresConfirmation bool
}

// ToolResponseKind is the outcome of executing a ToolRequest.
type ToolResponseKind int

const (
	ToolResult ToolResponseKind = iota
	ToolError
	ToolReady
	ToolCancelled
)

// ToolResponse is the correlated reply to a ToolRequest.
type ToolResponse struct {
	ID         string
	Kind       ToolResponseKind
	OutputJSON json.RawMessage
	Error      string
}

// ConfirmRequest asks the CLI whether a dangerous tool call should proceed.
type ConfirmRequest struct {
	ID       string // correlates with the originating ToolRequest
	ToolName string
	ArgsJSON json.RawMessage
}

// ConfirmResponse is the user's answer to a ConfirmRequest.
type ConfirmResponse struct {
	ID       string
	Approved bool
}

// Chan is a bounded, non-blocking-send mailbox with a blocking, shutdown-aware
// receive. Multiple producers may send; exactly one consumer should range
// over Recv/TryRecv in the contract this type is meant for, though nothing
// here enforces single-consumer — it is a convention, not an invariant.
type Chan[T any] struct {
	ch chan T
}

// New creates a mailbox with the given buffer capacity.
func New[T any](capacity int) *Chan[T] {
	return &Chan[T]{ch: make(chan T, capacity)}
}

// TrySend attempts a non-blocking send. Returns false if the mailbox is full.
func (c *Chan[T]) TrySend(v T) bool {
	select {
	case c.ch <- v:
		return true
	default:
		return false
	}
}

// Send blocks until the value is delivered, the context is done, or shutdown
// fires, whichever happens first.
func (c *Chan[T]) Send(ctx context.Context, shutdown <-chan struct{}, v T) bool {
	select {
	case c.ch <- v:
		return true
	case <-ctx.Done():
		return false
	case <-shutdown:
		return false
	}
}

// Recv blocks for a message, waking periodically to check shutdown. It
// returns ok=false if shutdown fired before a message arrived.
func (c *Chan[T]) Recv(shutdown <-chan struct{}) (v T, ok bool) {
	ticker := time.NewTicker(ShutdownPoll)
	defer ticker.Stop()
	for {
		select {
		case v, chOK := <-c.ch:
			return v, chOK
		case <-shutdown:
			return v, false
		case <-ticker.C:
			select {
			case <-shutdown:
				return v, false
			default:
			}
		}
	}
}

// Fabric bundles the mailboxes and shutdown signal shared by the CLI, API
// worker, and tool worker for one process lifetime.
type Fabric struct {
	ApiRequests     *Chan[ApiRequest]
	ToolRequests    *Chan[ToolRequest]
	ToolResponses   *Chan[ToolResponse]
	ConfirmRequests *Chan[ConfirmRequest]
	ConfirmReplies  *Chan[ConfirmResponse]

	shutdown chan struct{}
}

// NewFabric creates a fabric with reasonably small bounded mailboxes —
// backpressure is expected and intentional; callers use TrySend where the
// contract calls for non-blocking submission.
func NewFabric() *Fabric {
	return &Fabric{
		ApiRequests:     New[ApiRequest](4),
		ToolRequests:    New[ToolRequest](4),
		ToolResponses:   New[ToolResponse](4),
		ConfirmRequests: New[ConfirmRequest](1),
		ConfirmReplies:  New[ConfirmResponse](1),
		shutdown:        make(chan struct{}),
	}
}

// Shutdown broadcasts the level-triggered shutdown signal. Safe to call once;
// subsequent calls panic like a double close(), by design — callers own a
// single shutdown owner.
func (f *Fabric) Shutdown() {
	close(f.shutdown)
}

// Done returns the broadcast shutdown channel for workers to select on.
func (f *Fabric) Done() <-chan struct{} {
	return f.shutdown
}
