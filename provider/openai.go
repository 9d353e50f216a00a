package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/byokit/byokit/errs"
	"github.com/byokit/byokit/events"
	"github.com/byokit/byokit/sse"
	"github.com/byokit/byokit/validate"
	"github.com/byokit/byokit/vectorutil"
)

// OpenAIProvider implements Provider for OpenAI's chat completions API,
// and doubles as the shape for any OpenAI-compatible surrogate (see
// NewCompatible).
type OpenAIProvider struct {
	*BaseProvider
	caps Capabilities
}

// NewOpenAI builds an adapter for api.openai.com.
func NewOpenAI(base *BaseProvider) *OpenAIProvider {
	return &OpenAIProvider{
		BaseProvider: base,
		caps:         Capabilities{Streaming: true, Embeddings: true, Vision: true, Tools: true},
	}
}

// NewCompatible builds an adapter for any OpenAI-wire-compatible surrogate
// (Groq, Together, Fireworks, Perplexity, DeepSeek, xAI, Mistral, Cohere's
// chat-compat surface) — same request/response shape, different base URL
// and provider tag.
func NewCompatible(base *BaseProvider, caps Capabilities) *OpenAIProvider {
	return &OpenAIProvider{BaseProvider: base, caps: caps}
}

func (p *OpenAIProvider) Supports() Capabilities { return p.caps }

type openaiMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []openaiToolUse `json:"tool_calls,omitempty"`
}

type openaiToolUse struct {
	ID       string              `json:"id"`
	Type     string              `json:"type"`
	Function openaiToolUseFunc   `json:"function"`
}

type openaiToolUseFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiTool struct {
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name       string `json:"name"`
	Parameters any    `json:"parameters,omitempty"`
}

type openaiRequest struct {
	Model            string          `json:"model"`
	Messages         []openaiMessage `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	Tools            []openaiTool    `json:"tools,omitempty"`
	ResponseFormat   any             `json:"response_format,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiChoice struct {
	Index        int            `json:"index"`
	Message      openaiMessage  `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   *openaiUsage   `json:"usage,omitempty"`
}

type openaiDeltaChoice struct {
	Index        int            `json:"index"`
	Delta        openaiMessage  `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

type openaiStreamChunk struct {
	ID      string              `json:"id"`
	Model   string              `json:"model"`
	Choices []openaiDeltaChoice `json:"choices"`
	Usage   *openaiUsage        `json:"usage,omitempty"`
}

func toOpenAIRequest(req *validate.Request, stream bool) *openaiRequest {
	or := &openaiRequest{
		Model: req.Model, Stream: stream,
		Temperature: req.Temperature, TopP: req.TopP, MaxTokens: req.MaxTokens,
		PresencePenalty: req.PresencePenalty, FrequencyPenalty: req.FrequencyPenalty,
	}
	for _, m := range req.Messages {
		or.Messages = append(or.Messages, openaiMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID})
	}
	for _, t := range req.Tools {
		or.Tools = append(or.Tools, openaiTool{Type: t.Type, Function: openaiToolFunction{Name: t.Function.Name}})
	}
	if req.ResponseFormat != nil {
		or.ResponseFormat = map[string]any{"type": req.ResponseFormat.Type}
	}
	return or
}

func mapOpenAIFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishNone
	}
}

func (p *OpenAIProvider) endpoint(path string) string {
	return p.BaseURL + path
}

func (p *OpenAIProvider) authHeader(req *http.Request, key string) {
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Content-Type", "application/json")
}

func (p *OpenAIProvider) Chat(ctx context.Context, req *validate.Request) (*ChatResponse, error) {
	requestID := p.RequestID()
	or := toOpenAIRequest(req, false)

	var result *ChatResponse
	err := p.Invoke(ctx, requestID, func(ctx context.Context) error {
		key, err := p.Credential(ctx)
		if err != nil {
			return err
		}
		body, err := json.Marshal(or)
		if err != nil {
			return errs.Wrap(errs.ValidationError, p.Name, "marshaling request", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/chat/completions"), bytes.NewReader(body))
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

		var or2 openaiResponse
		if err := json.NewDecoder(resp.Body).Decode(&or2); err != nil {
			return errs.Wrap(errs.StreamError, p.Name, "decoding response", err)
		}
		result = fromOpenAIResponse(p.Name, &or2)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func fromOpenAIResponse(provider string, resp *openaiResponse) *ChatResponse {
	cr := &ChatResponse{ID: resp.ID, Model: resp.Model, Provider: provider}
	for _, c := range resp.Choices {
		cr.Choices = append(cr.Choices, Choice{
			Index:        c.Index,
			Message:      ResponseMessage{Role: c.Message.Role, Content: c.Message.Content},
			FinishReason: mapOpenAIFinishReason(c.FinishReason),
		})
	}
	if resp.Usage != nil {
		cr.Usage = &Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens, TotalTokens: resp.Usage.TotalTokens}
	}
	return cr
}

func (p *OpenAIProvider) ChatStream(ctx context.Context, req *validate.Request) (<-chan StreamEvent, error) {
	requestID := p.RequestID()
	or := toOpenAIRequest(req, true)

	key, err := p.Credential(ctx)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(or)
	if err != nil {
		return nil, errs.Wrap(errs.ValidationError, p.Name, "marshaling request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/chat/completions"), bytes.NewReader(body))
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

		stream := sse.NewJSONStream(resp.Body)
		for {
			raw, ok, err := stream.Next()
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
			var chunk openaiStreamChunk
			if err := json.Unmarshal(raw, &chunk); err != nil {
				continue
			}
			delta := &ChatStreamDelta{ID: chunk.ID, Model: chunk.Model}
			for _, c := range chunk.Choices {
				dc := DeltaChoice{Index: c.Index, DeltaContent: c.Delta.Content}
				if c.FinishReason != nil {
					dc.FinishReason = mapOpenAIFinishReason(*c.FinishReason)
				}
				delta.Choices = append(delta.Choices, dc)
			}
			if chunk.Usage != nil {
				delta.Usage = &Usage{PromptTokens: chunk.Usage.PromptTokens, CompletionTokens: chunk.Usage.CompletionTokens, TotalTokens: chunk.Usage.TotalTokens}
			}
			p.emit(events.StreamChunk, requestID, nil)
			select {
			case ch <- StreamEvent{Delta: delta}:
			case <-ctx.Done():
				p.emit(events.StreamAbort, requestID, nil)
				return
			}
		}
		p.emit(events.StreamEnd, requestID, nil)
	}()

	return ch, nil
}

type openaiEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbeddingDatum struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type openaiEmbeddingResponse struct {
	Model string                  `json:"model"`
	Data  []openaiEmbeddingDatum  `json:"data"`
	Usage *openaiUsage            `json:"usage,omitempty"`
}

func (p *OpenAIProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	requestID := p.RequestID()
	var result *EmbeddingResponse
	err := p.Invoke(ctx, requestID, func(ctx context.Context) error {
		key, err := p.Credential(ctx)
		if err != nil {
			return err
		}
		body, err := json.Marshal(openaiEmbeddingRequest{Model: req.Model, Input: req.Input})
		if err != nil {
			return errs.Wrap(errs.ValidationError, p.Name, "marshaling request", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/embeddings"), bytes.NewReader(body))
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
		var er openaiEmbeddingResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return errs.Wrap(errs.StreamError, p.Name, "decoding response", err)
		}
		out := &EmbeddingResponse{Model: er.Model, Provider: p.Name}
		for _, d := range er.Data {
			out.Data = append(out.Data, EmbeddingData{Index: d.Index, Embedding: vectorutil.Normalize(d.Embedding)})
		}
		if er.Usage != nil {
			out.Usage = &Usage{PromptTokens: er.Usage.PromptTokens, TotalTokens: er.Usage.TotalTokens}
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type openaiModelListEntry struct {
	ID string `json:"id"`
}

type openaiModelList struct {
	Data []openaiModelListEntry `json:"data"`
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	key, err := p.Credential(ctx)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/models"), nil)
	if err != nil {
		return nil, errs.Wrap(errs.NetworkError, p.Name, "building request", err)
	}
	p.authHeader(httpReq, key)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, errs.NetworkErr(p.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.FromHTTPStatus(resp.StatusCode, p.Name, decodeErrBody(resp), "")
	}
	var list openaiModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, errs.Wrap(errs.StreamError, p.Name, "decoding model list", err)
	}
	out := make([]ModelInfo, 0, len(list.Data))
	for _, m := range list.Data {
		out = append(out, ModelInfo{ID: m.ID, Provider: p.Name})
	}
	return out, nil
}

func decodeErrBody(resp *http.Response) map[string]any {
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return body
}
