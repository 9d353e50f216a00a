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

// OllamaProvider implements Provider for a local Ollama instance: no
// credential required, newline-delimited JSON instead of SSE.
type OllamaProvider struct {
	*BaseProvider
}

func NewOllama(base *BaseProvider) *OllamaProvider {
	return &OllamaProvider{BaseProvider: base}
}

func (p *OllamaProvider) Supports() Capabilities {
	return Capabilities{Streaming: true, Embeddings: true, Vision: false, Tools: true}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

func toOllamaRequest(req *validate.Request, stream bool) *ollamaChatRequest {
	or := &ollamaChatRequest{Model: req.Model, Stream: stream}
	for _, m := range req.Messages {
		or.Messages = append(or.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	return or
}

func (p *OllamaProvider) Chat(ctx context.Context, req *validate.Request) (*ChatResponse, error) {
	requestID := p.RequestID()
	or := toOllamaRequest(req, false)

	var result *ChatResponse
	err := p.Invoke(ctx, requestID, func(ctx context.Context) error {
		body, err := json.Marshal(or)
		if err != nil {
			return errs.Wrap(errs.ValidationError, p.Name, "marshaling request", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return errs.Wrap(errs.NetworkError, p.Name, "building request", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := p.Client.Do(httpReq)
		if err != nil {
			return errs.NetworkErr(p.Name, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errs.FromHTTPStatus(resp.StatusCode, p.Name, decodeErrBody(resp), "")
		}

		var ores ollamaChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&ores); err != nil {
			return errs.Wrap(errs.StreamError, p.Name, "decoding response", err)
		}
		result = &ChatResponse{
			Model: ores.Model, Provider: p.Name,
			Choices: []Choice{{Index: 0, Message: ResponseMessage{Role: "assistant", Content: ores.Message.Content}, FinishReason: FinishStop}},
			Usage: &Usage{
				PromptTokens:     ores.PromptEvalCount,
				CompletionTokens: ores.EvalCount,
				TotalTokens:      ores.PromptEvalCount + ores.EvalCount,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *OllamaProvider) ChatStream(ctx context.Context, req *validate.Request) (<-chan StreamEvent, error) {
	requestID := p.RequestID()
	or := toOllamaRequest(req, true)

	body, err := json.Marshal(or)
	if err != nil {
		return nil, errs.Wrap(errs.ValidationError, p.Name, "marshaling request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.NetworkError, p.Name, "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, errs.NetworkErr(p.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, errs.FromHTTPStatus(resp.StatusCode, p.Name, decodeErrBody(resp), "")
	}

	ch := make(chan StreamEvent)
	p.emit(events.StreamStart, requestID, nil)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		dec := sse.NewNDJSONDecoder(resp.Body)
		for {
			raw, ok, err := dec.Next()
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
			var ores ollamaChatResponse
			if err := json.Unmarshal(raw, &ores); err != nil {
				continue
			}
			delta := &ChatStreamDelta{Model: ores.Model, Choices: []DeltaChoice{{DeltaContent: ores.Message.Content}}}
			if ores.Done {
				delta.Choices[0].FinishReason = FinishStop
				delta.Usage = &Usage{
					PromptTokens:     ores.PromptEvalCount,
					CompletionTokens: ores.EvalCount,
					TotalTokens:      ores.PromptEvalCount + ores.EvalCount,
				}
			}
			p.emit(events.StreamChunk, requestID, nil)
			select {
			case ch <- StreamEvent{Delta: delta}:
			case <-ctx.Done():
				p.emit(events.StreamAbort, requestID, nil)
				return
			}
			if ores.Done {
				break
			}
		}
		p.emit(events.StreamEnd, requestID, nil)
	}()

	return ch, nil
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *OllamaProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	requestID := p.RequestID()
	var result *EmbeddingResponse
	err := p.Invoke(ctx, requestID, func(ctx context.Context) error {
		out := &EmbeddingResponse{Model: req.Model, Provider: p.Name}
		for i, input := range req.Input {
			body, err := json.Marshal(ollamaEmbedRequest{Model: req.Model, Input: input})
			if err != nil {
				return errs.Wrap(errs.ValidationError, p.Name, "marshaling request", err)
			}
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/embed", bytes.NewReader(body))
			if err != nil {
				return errs.Wrap(errs.NetworkError, p.Name, "building request", err)
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := p.Client.Do(httpReq)
			if err != nil {
				return errs.NetworkErr(p.Name, err)
			}
			status := resp.StatusCode
			var er ollamaEmbedResponse
			decodeErr := json.NewDecoder(resp.Body).Decode(&er)
			resp.Body.Close()
			if status != http.StatusOK {
				return errs.FromHTTPStatus(status, p.Name, nil, "")
			}
			if decodeErr != nil {
				return errs.Wrap(errs.StreamError, p.Name, "decoding response", decodeErr)
			}
			out.Data = append(out.Data, EmbeddingData{Index: i, Embedding: vectorutil.Normalize(er.Embedding)})
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type ollamaModelEntry struct {
	Name string `json:"name"`
}

type ollamaModelList struct {
	Models []ollamaModelEntry `json:"models"`
}

func (p *OllamaProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, errs.Wrap(errs.NetworkError, p.Name, "building request", err)
	}
	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, errs.NetworkErr(p.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.FromHTTPStatus(resp.StatusCode, p.Name, decodeErrBody(resp), "")
	}
	var list ollamaModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, errs.Wrap(errs.StreamError, p.Name, "decoding model list", err)
	}
	out := make([]ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		out = append(out, ModelInfo{ID: m.Name, Provider: p.Name})
	}
	return out, nil
}
