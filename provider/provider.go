// Package provider implements the Provider Adapters (C11): translation
// between byokit's uniform chat/embedding shapes and each backend's wire
// protocol, built on a shared BaseProvider for auth, retries, circuit
// breaking, and event emission.
package provider

import (
	"context"

	"github.com/byokit/byokit/validate"
)

// Capabilities describes what an adapter supports, as reported by
// Supports. The Orchestrator does not check it before dispatching a
// request.
type Capabilities struct {
	Streaming  bool
	Embeddings bool
	Vision     bool
	Tools      bool
}

// Provider is the capability interface every backend adapter satisfies.
// Name is not part of the interface: every concrete adapter embeds
// *BaseProvider and exposes its provider tag as the plain Name field,
// accessed directly rather than through a method.
type Provider interface {
	Supports() Capabilities
	RequestID() string
	Chat(ctx context.Context, req *validate.Request) (*ChatResponse, error)
	ChatStream(ctx context.Context, req *validate.Request) (<-chan StreamEvent, error)
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// FinishReason is the normalized reason a choice stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
	FinishNone          FinishReason = ""
)

// ToolCall is a single tool invocation the model asked for.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// ResponseMessage is the assistant message produced by a choice.
type ResponseMessage struct {
	Role      string
	Content   string
	ToolCalls []ToolCall
}

// Choice is one candidate completion.
type Choice struct {
	Index        int
	Message      ResponseMessage
	FinishReason FinishReason
}

// Usage is normalized token accounting, shared by responses and deltas.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the uniform non-streaming chat result (§3 ChatResponse).
type ChatResponse struct {
	ID       string
	Model    string
	Provider string
	Choices  []Choice
	Usage    *Usage
}

// DeltaChoice is one choice's partial update in a streaming chunk.
type DeltaChoice struct {
	Index        int
	DeltaContent string
	FinishReason FinishReason
}

// ChatStreamDelta is one chunk of a streaming response (§3 ChatStreamDelta).
type ChatStreamDelta struct {
	ID      string
	Model   string
	Choices []DeltaChoice
	Usage   *Usage
}

// StreamEvent is what ChatStream sends over its channel: exactly one of
// Delta or Err is set, never both.
type StreamEvent struct {
	Delta *ChatStreamDelta
	Err   error
}

// EmbeddingRequest asks for one or more input strings to be embedded.
type EmbeddingRequest struct {
	Provider string
	Model    string
	Input    []string
}

// EmbeddingData is one input's resulting vector, index-aligned with the
// request's Input slice.
type EmbeddingData struct {
	Index     int
	Embedding []float32
}

// EmbeddingResponse is the uniform embedding result (§4.11.5).
type EmbeddingResponse struct {
	Model    string
	Provider string
	Data     []EmbeddingData
	Usage    *Usage
}

// ModelInfo is one entry from an adapter's live or fallback model list.
type ModelInfo struct {
	ID       string
	Provider string
}
