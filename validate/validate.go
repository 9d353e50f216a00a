package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/byokit/byokit/errs"
)

var (
	modelForbidden  = regexp.MustCompile("[<>{}`]")
	toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

var validRoles = map[string]bool{
	"system": true, "user": true, "assistant": true, "tool": true,
}

var validPartTypes = map[string]bool{
	"text": true, "image_url": true, "image_base64": true, "audio": true, "video": true,
}

var validResponseFormats = map[string]bool{
	"text": true, "json_object": true, "json_schema": true,
}

// Options parameterizes Validate per §4.10's configurable limits.
type Options struct {
	AllowedProviders []string
	MaxMessages      int
	MaxContentLength int
	// ContextWindow looks up the token context window for a
	// (provider, model) pair. A false second return means "unknown", in
	// which case max_tokens is not checked against it.
	ContextWindow func(provider, model string) (int, bool)
}

func (o Options) withDefaults() Options {
	if o.MaxMessages <= 0 {
		o.MaxMessages = 1000
	}
	if o.MaxContentLength <= 0 {
		o.MaxContentLength = 1_000_000
	}
	return o
}

// Validate runs every §4.10 check against req and returns a single
// aggregated VALIDATION_ERROR naming every offending field, or nil.
func Validate(req Request, opts Options) error {
	opts = opts.withDefaults()
	var fields []string

	if strings.TrimSpace(req.Provider) == "" {
		fields = append(fields, "provider: must not be empty")
	} else if len(opts.AllowedProviders) > 0 && !contains(opts.AllowedProviders, req.Provider) {
		fields = append(fields, fmt.Sprintf("provider: %q is not in the allowed list", req.Provider))
	}

	fields = append(fields, validateModel(req.Model)...)
	fields = append(fields, validateMessages(req.Messages, opts)...)
	fields = append(fields, validateNumericRanges(req)...)
	fields = append(fields, validateMaxTokens(req, opts)...)
	fields = append(fields, validateTools(req.Tools)...)
	fields = append(fields, validateResponseFormat(req.ResponseFormat)...)

	if len(fields) > 0 {
		return errs.ValidationErr(fields)
	}
	return nil
}

func validateModel(model string) []string {
	if model == "" {
		return []string{"model: must not be empty"}
	}
	if len(model) < 2 || len(model) > 256 {
		return []string{"model: length must be between 2 and 256 characters"}
	}
	if modelForbidden.MatchString(model) {
		return []string{"model: must not contain < > { } `"}
	}
	return nil
}

func validateMessages(messages []Message, opts Options) []string {
	var fields []string
	if len(messages) == 0 {
		return []string{"messages: must not be empty"}
	}
	if len(messages) > opts.MaxMessages {
		fields = append(fields, fmt.Sprintf("messages: exceeds maximum of %d", opts.MaxMessages))
	}
	for i, m := range messages {
		if !validRoles[m.Role] {
			fields = append(fields, fmt.Sprintf("messages[%d].role: %q is not a valid role", i, m.Role))
		}
		if m.Content == "" && len(m.Parts) == 0 {
			fields = append(fields, fmt.Sprintf("messages[%d].content: must not be empty", i))
		}
		if len(m.Content) > opts.MaxContentLength {
			fields = append(fields, fmt.Sprintf("messages[%d].content: exceeds maximum length of %d", i, opts.MaxContentLength))
		}
		for j, p := range m.Parts {
			if !validPartTypes[p.Type] {
				fields = append(fields, fmt.Sprintf("messages[%d].parts[%d].type: %q is not a valid part type", i, j, p.Type))
			}
		}
		if m.Role == "tool" && m.ToolCallID == "" {
			fields = append(fields, fmt.Sprintf("messages[%d].tool_call_id: required when role is tool", i))
		}
	}
	return fields
}

func validateNumericRanges(req Request) []string {
	var fields []string
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		fields = append(fields, "temperature: must be between 0 and 2")
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		fields = append(fields, "top_p: must be between 0 and 1")
	}
	if req.PresencePenalty != nil && (*req.PresencePenalty < -2 || *req.PresencePenalty > 2) {
		fields = append(fields, "presence_penalty: must be between -2 and 2")
	}
	if req.FrequencyPenalty != nil && (*req.FrequencyPenalty < -2 || *req.FrequencyPenalty > 2) {
		fields = append(fields, "frequency_penalty: must be between -2 and 2")
	}
	return fields
}

func validateMaxTokens(req Request, opts Options) []string {
	if req.MaxTokens == nil {
		return nil
	}
	if *req.MaxTokens <= 0 {
		return []string{"max_tokens: must be a positive integer"}
	}
	if opts.ContextWindow == nil {
		return nil
	}
	window, ok := opts.ContextWindow(req.Provider, req.Model)
	if ok && *req.MaxTokens > window {
		return []string{fmt.Sprintf("max_tokens: %d exceeds the model's context window of %d", *req.MaxTokens, window)}
	}
	return nil
}

func validateTools(tools []Tool) []string {
	var fields []string
	seen := make(map[string]bool, len(tools))
	for i, t := range tools {
		if t.Type != "function" {
			fields = append(fields, fmt.Sprintf("tools[%d].type: must be \"function\"", i))
		}
		if !toolNamePattern.MatchString(t.Function.Name) {
			fields = append(fields, fmt.Sprintf("tools[%d].function.name: %q does not match the required pattern", i, t.Function.Name))
			continue
		}
		if seen[t.Function.Name] {
			fields = append(fields, fmt.Sprintf("tools[%d].function.name: %q is not unique within the request", i, t.Function.Name))
		}
		seen[t.Function.Name] = true
	}
	return fields
}

func validateResponseFormat(rf *ResponseFormat) []string {
	if rf == nil {
		return nil
	}
	if !validResponseFormats[rf.Type] {
		return []string{fmt.Sprintf("response_format.type: %q is not a valid format", rf.Type)}
	}
	if rf.Type == "json_schema" && rf.JSONSchema == nil {
		return []string{"response_format.json_schema: required when type is json_schema"}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
