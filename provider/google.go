package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/byokit/byokit/errs"
	"github.com/byokit/byokit/events"
	"github.com/byokit/byokit/sse"
	"github.com/byokit/byokit/validate"
	"github.com/byokit/byokit/vectorutil"
)

// GoogleProvider implements Provider for Gemini's generateContent API.
type GoogleProvider struct {
	*BaseProvider
}

func NewGoogle(base *BaseProvider) *GoogleProvider {
	return &GoogleProvider{BaseProvider: base}
}

func (p *GoogleProvider) Supports() Capabilities {
	return Capabilities{Streaming: true, Embeddings: true, Vision: true, Tools: true}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDeclaration struct {
	Name string `json:"name"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata"`
}

// toGeminiRequest fuses system messages into a top-level instruction,
// maps "assistant" to Gemini's "model" role, and carries tools as
// functionDeclarations.
func toGeminiRequest(req *validate.Request) *geminiRequest {
	gr := &geminiRequest{}

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if gr.SystemInstruction == nil {
				gr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: msg.Content}}}
			} else {
				gr.SystemInstruction.Parts = append(gr.SystemInstruction.Parts, geminiPart{Text: msg.Content})
			}
			continue
		}
		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		gr.Contents = append(gr.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: msg.Content}}})
	}

	if len(req.Tools) > 0 {
		var decls []geminiFunctionDeclaration
		for _, t := range req.Tools {
			decls = append(decls, geminiFunctionDeclaration{Name: t.Function.Name})
		}
		gr.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		gr.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: *req.MaxTokens}
	}
	return gr
}

func mapGeminiFinishReason(reason string) FinishReason {
	switch reason {
	case "STOP":
		return FinishStop
	case "MAX_TOKENS":
		return FinishLength
	case "SAFETY", "RECITATION":
		return FinishContentFilter
	case "":
		return FinishNone
	default:
		return FinishNone
	}
}

func (p *GoogleProvider) url(model, method, key string, extra string) string {
	return fmt.Sprintf("%s/models/%s:%s?key=%s%s", p.BaseURL, model, method, key, extra)
}

func (p *GoogleProvider) Chat(ctx context.Context, req *validate.Request) (*ChatResponse, error) {
	requestID := p.RequestID()
	gr := toGeminiRequest(req)

	var result *ChatResponse
	err := p.Invoke(ctx, requestID, func(ctx context.Context) error {
		key, err := p.Credential(ctx)
		if err != nil {
			return err
		}
		body, err := json.Marshal(gr)
		if err != nil {
			return errs.Wrap(errs.ValidationError, p.Name, "marshaling request", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url(req.Model, "generateContent", key, ""), bytes.NewReader(body))
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
			return errs.FromHTTPStatus(resp.StatusCode, p.Name, decodeErrBody(resp), resp.Header.Get("Retry-After"))
		}

		var gresp geminiResponse
		if err := json.NewDecoder(resp.Body).Decode(&gresp); err != nil {
			return errs.Wrap(errs.StreamError, p.Name, "decoding response", err)
		}
		if len(gresp.Candidates) == 0 {
			return errs.New(errs.RequestFailed, p.Name, "gemini returned no candidates")
		}

		candidate := gresp.Candidates[0]
		var text string
		if len(candidate.Content.Parts) > 0 {
			text = candidate.Content.Parts[0].Text
		}

		cr := &ChatResponse{
			Model: req.Model, Provider: p.Name,
			Choices: []Choice{{
				Index:        0,
				Message:      ResponseMessage{Role: "assistant", Content: text},
				FinishReason: mapGeminiFinishReason(candidate.FinishReason),
			}},
		}
		if gresp.UsageMetadata != nil {
			cr.Usage = &Usage{
				PromptTokens:     gresp.UsageMetadata.PromptTokenCount,
				CompletionTokens: gresp.UsageMetadata.CandidatesTokenCount,
				TotalTokens:      gresp.UsageMetadata.TotalTokenCount,
			}
		}
		result = cr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *GoogleProvider) ChatStream(ctx context.Context, req *validate.Request) (<-chan StreamEvent, error) {
	requestID := p.RequestID()
	gr := toGeminiRequest(req)

	key, err := p.Credential(ctx)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(gr)
	if err != nil {
		return nil, errs.Wrap(errs.ValidationError, p.Name, "marshaling request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url(req.Model, "streamGenerateContent", key, "&alt=sse"), bytes.NewReader(body))
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
		return nil, errs.FromHTTPStatus(resp.StatusCode, p.Name, decodeErrBody(resp), resp.Header.Get("Retry-After"))
	}

	ch := make(chan StreamEvent)
	p.emit(events.StreamStart, requestID, nil)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

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
			var gresp geminiResponse
			if err := json.Unmarshal([]byte(ev.Data), &gresp); err != nil {
				continue
			}
			if len(gresp.Candidates) == 0 {
				continue
			}
			candidate := gresp.Candidates[0]
			var text string
			if len(candidate.Content.Parts) > 0 {
				text = candidate.Content.Parts[0].Text
			}

			delta := &ChatStreamDelta{Model: req.Model, Choices: []DeltaChoice{{DeltaContent: text, FinishReason: mapGeminiFinishReason(candidate.FinishReason)}}}
			if candidate.FinishReason != "" && gresp.UsageMetadata != nil {
				delta.Usage = &Usage{
					PromptTokens:     gresp.UsageMetadata.PromptTokenCount,
					CompletionTokens: gresp.UsageMetadata.CandidatesTokenCount,
					TotalTokens:      gresp.UsageMetadata.TotalTokenCount,
				}
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

type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiEmbedValues struct {
	Values []float32 `json:"values"`
}

type geminiEmbedResponse struct {
	Embedding geminiEmbedValues `json:"embedding"`
}

func (p *GoogleProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	requestID := p.RequestID()
	var result *EmbeddingResponse
	err := p.Invoke(ctx, requestID, func(ctx context.Context) error {
		key, err := p.Credential(ctx)
		if err != nil {
			return err
		}
		out := &EmbeddingResponse{Model: req.Model, Provider: p.Name}
		for i, input := range req.Input {
			body, err := json.Marshal(geminiEmbedRequest{
				Model:   "models/" + req.Model,
				Content: geminiContent{Parts: []geminiPart{{Text: input}}},
			})
			if err != nil {
				return errs.Wrap(errs.ValidationError, p.Name, "marshaling request", err)
			}
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url(req.Model, "embedContent", key, ""), bytes.NewReader(body))
			if err != nil {
				return errs.Wrap(errs.NetworkError, p.Name, "building request", err)
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := p.Client.Do(httpReq)
			if err != nil {
				return errs.NetworkErr(p.Name, err)
			}
			status := resp.StatusCode
			var er geminiEmbedResponse
			decodeErr := json.NewDecoder(resp.Body).Decode(&er)
			resp.Body.Close()
			if status != http.StatusOK {
				return errs.FromHTTPStatus(status, p.Name, nil, "")
			}
			if decodeErr != nil {
				return errs.Wrap(errs.StreamError, p.Name, "decoding response", decodeErr)
			}
			out.Data = append(out.Data, EmbeddingData{Index: i, Embedding: vectorutil.Normalize(er.Embedding.Values)})
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *GoogleProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return nil, errs.New(errs.ValidationError, p.Name, "google adapter has no live model listing; use the model registry")
}
