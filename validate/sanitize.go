package validate

import "strings"

// Sanitize applies the non-throwing cleanup pass from §4.10: clamp
// numeric params into their legal ranges, floor max_tokens, trim model
// and string content. It mutates req in place and returns it for
// convenience.
func Sanitize(req *Request) *Request {
	req.Model = strings.TrimSpace(req.Model)

	if req.Temperature != nil {
		clamped := clamp(*req.Temperature, 0, 2)
		req.Temperature = &clamped
	}
	if req.TopP != nil {
		clamped := clamp(*req.TopP, 0, 1)
		req.TopP = &clamped
	}
	if req.PresencePenalty != nil {
		clamped := clamp(*req.PresencePenalty, -2, 2)
		req.PresencePenalty = &clamped
	}
	if req.FrequencyPenalty != nil {
		clamped := clamp(*req.FrequencyPenalty, -2, 2)
		req.FrequencyPenalty = &clamped
	}
	if req.MaxTokens != nil && *req.MaxTokens < 0 {
		floored := 0
		req.MaxTokens = &floored
	}

	for i := range req.Messages {
		req.Messages[i].Content = strings.TrimSpace(req.Messages[i].Content)
	}

	return req
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
