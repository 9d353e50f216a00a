package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/byokit/byokit/errs"
	"github.com/byokit/byokit/events"
	"github.com/byokit/byokit/sse"
	"github.com/byokit/byokit/validate"
)

const anthropicAPIVersion = "2023-06-01"
const anthropicDefaultMaxTokens = 1024

// AnthropicProvider implements Provider for Anthropic's Messages API.
type AnthropicProvider struct {
	*BaseProvider
}

func NewAnthropic(base *BaseProvider) *AnthropicProvider {
	return &AnthropicProvider{BaseProvider: base}
}

func (p *AnthropicProvider) Supports() Capabilities {
	return Capabilities{Streaming: true, Embeddings: false, Vision: true, Tools: true}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicToolDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema,omitempty"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicToolDef `json:"tools,omitempty"`
	Stream    bool               `json:"stream,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

// toAnthropicRequest pulls system messages out into the top-level
// "system" string and enforces the default max_tokens Anthropic requires.
func toAnthropicRequest(req *validate.Request, stream bool) *anthropicRequest {
	ar := &anthropicRequest{Model: req.Model, Stream: stream}

	var systemParts []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			systemParts = append(systemParts, m.Content)
			continue
		}
		ar.Messages = append(ar.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	if len(systemParts) > 0 {
		ar.System = strings.Join(systemParts, "\n")
	}
	for _, t := range req.Tools {
		ar.Tools = append(ar.Tools, anthropicToolDef{Name: t.Function.Name})
	}

	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		ar.MaxTokens = *req.MaxTokens
	} else {
		ar.MaxTokens = anthropicDefaultMaxTokens
	}
	return ar
}

func mapAnthropicStopReason(reason string) FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return FinishStop
	case "max_tokens":
		return FinishLength
	case "tool_use":
		return FinishToolCalls
	default:
		return FinishNone
	}
}

func (p *AnthropicProvider) authHeader(req *http.Request, key string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
}

func (p *AnthropicProvider) Chat(ctx context.Context, req *validate.Request) (*ChatResponse, error) {
	requestID := p.RequestID()
	ar := toAnthropicRequest(req, false)

	var result *ChatResponse
	err := p.Invoke(ctx, requestID, func(ctx context.Context) error {
		key, err := p.Credential(ctx)
		if err != nil {
			return err
		}
		body, err := json.Marshal(ar)
		if err != nil {
			return errs.Wrap(errs.ValidationError, p.Name, "marshaling request", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/messages", bytes.NewReader(body))
		if err != nil {
			return errs.Wrap(errs.NetworkError, p.Name, "building request", err)
		}
		p.authHeader(httpReq, key)

		resp, err := p.Client.Do(httpReq)
		if err != nil {
			return errs.NetworkErr(p.Name, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errs.FromHTTPStatus(resp.StatusCode, p.Name, decodeErrBody(resp), resp.Header.Get("Retry-After"))
		}

		var ar2 anthropicResponse
		if err := json.NewDecoder(resp.Body).Decode(&ar2); err != nil {
			return errs.Wrap(errs.StreamError, p.Name, "decoding response", err)
		}

		var text string
		for _, block := range ar2.Content {
			if block.Type == "text" {
				text = block.Text
				break
			}
		}
		result = &ChatResponse{
			ID: ar2.ID, Model: ar2.Model, Provider: p.Name,
			Choices: []Choice{{
				Index:        0,
				Message:      ResponseMessage{Role: "assistant", Content: text},
				FinishReason: mapAnthropicStopReason(ar2.StopReason),
			}},
			Usage: &Usage{
				PromptTokens:     ar2.Usage.InputTokens,
				CompletionTokens: ar2.Usage.OutputTokens,
				TotalTokens:      ar2.Usage.InputTokens + ar2.Usage.OutputTokens,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type anthropicEventMessage struct {
	ID    string         `json:"id"`
	Model string         `json:"model"`
	Usage anthropicUsage `json:"usage"`
}

type anthropicEventDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

type anthropicStreamEvent struct {
	Type    string                 `json:"type"`
	Message *anthropicEventMessage `json:"message,omitempty"`
	Delta   *anthropicEventDelta   `json:"delta,omitempty"`
	Usage   *anthropicUsage        `json:"usage,omitempty"`
}

func (p *AnthropicProvider) ChatStream(ctx context.Context, req *validate.Request) (<-chan StreamEvent, error) {
	requestID := p.RequestID()
	ar := toAnthropicRequest(req, true)

	key, err := p.Credential(ctx)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(ar)
	if err != nil {
		return nil, errs.Wrap(errs.ValidationError, p.Name, "marshaling request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.NetworkError, p.Name, "building request", err)
	}
	p.authHeader(httpReq, key)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, errs.NetworkErr(p.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, errs.FromHTTPStatus(resp.StatusCode, p.Name, decodeErrBody(resp), resp.Header.Get("Retry-After"))
	}

	ch := make(chan StreamEvent)
	p.emit(events.StreamStart, requestID, nil)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		var respID, model string
		var inputTokens, outputTokens int

		dec := sse.NewDecoder(resp.Body)
		for {
			ev, ok, err := dec.Next()
			if err != nil {
				p.emit(events.StreamError, requestID, nil)
				select {
				case ch <- StreamEvent{Err: errs.Wrap(errs.StreamError, p.Name, "reading stream", err)}:
				case <-ctx.Done():
				}
				return
			}
			if !ok {
				break
			}
			if ev.Data == "" {
				continue
			}
			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
				continue
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					respID = event.Message.ID
					model = event.Message.Model
					inputTokens = event.Message.Usage.InputTokens
				}
			case "content_block_delta":
				if event.Delta == nil || event.Delta.Text == "" {
					continue
				}
				delta := &ChatStreamDelta{ID: respID, Model: model, Choices: []DeltaChoice{{DeltaContent: event.Delta.Text}}}
				p.emit(events.StreamChunk, requestID, nil)
				select {
				case ch <- StreamEvent{Delta: delta}:
				case <-ctx.Done():
					p.emit(events.StreamAbort, requestID, nil)
					return
				}
			case "message_delta":
				if event.Usage != nil {
					outputTokens = event.Usage.OutputTokens
				}
				if event.Delta != nil && event.Delta.StopReason != "" {
					delta := &ChatStreamDelta{
						ID: respID, Model: model,
						Choices: []DeltaChoice{{FinishReason: mapAnthropicStopReason(event.Delta.StopReason)}},
						Usage:   &Usage{PromptTokens: inputTokens, CompletionTokens: outputTokens, TotalTokens: inputTokens + outputTokens},
					}
					select {
					case ch <- StreamEvent{Delta: delta}:
					case <-ctx.Done():
						p.emit(events.StreamAbort, requestID, nil)
						return
					}
				}
			case "message_stop":
				p.emit(events.StreamEnd, requestID, nil)
				return
			}
		}
		p.emit(events.StreamEnd, requestID, nil)
	}()

	return ch, nil
}

func (p *AnthropicProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	return nil, errs.New(errs.ValidationError, p.Name, "anthropic does not support embeddings")
}

func (p *AnthropicProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return nil, errs.New(errs.ValidationError, p.Name, "anthropic has no live model listing endpoint; use the model registry")
}
