package registry

// seedDefaults populates reg with a representative catalog covering
// every provider family the adapters support. It is not exhaustive of
// every model a provider has ever shipped — new models are expected to
// arrive via RegisterModel at runtime.
func seedDefaults(reg *Registry) {
	for _, m := range []Model{
		{
			Provider: "openai", ID: "gpt-4o", Name: "GPT-4o", Type: TypeChat,
			ContextWindow: 128_000, MaxOutputTokens: 16_384,
			SupportsVision: true, SupportsTools: true, SupportsStreaming: true, SupportsJSONMode: true,
			Pricing: Pricing{Input: 2.50, Output: 10.00},
			Aliases: []string{"gpt-4o-latest"},
		},
		{
			Provider: "openai", ID: "gpt-4o-mini", Name: "GPT-4o mini", Type: TypeChat,
			ContextWindow: 128_000, MaxOutputTokens: 16_384,
			SupportsVision: true, SupportsTools: true, SupportsStreaming: true, SupportsJSONMode: true,
			Pricing: Pricing{Input: 0.15, Output: 0.60},
		},
		{
			Provider: "openai", ID: "o1", Name: "o1", Type: TypeChat,
			ContextWindow: 200_000, MaxOutputTokens: 100_000,
			SupportsTools: true, SupportsStreaming: false, SupportsReasoning: true,
			Pricing: Pricing{Input: 15.00, Output: 60.00},
		},
		{
			Provider: "openai", ID: "text-embedding-3-large", Name: "text-embedding-3-large", Type: TypeEmbedding,
			ContextWindow: 8_191,
			Pricing:       Pricing{Input: 0.13, Output: 0},
		},
		{
			Provider: "anthropic", ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", Type: TypeChat,
			ContextWindow: 200_000, MaxOutputTokens: 8_192,
			SupportsVision: true, SupportsTools: true, SupportsStreaming: true,
			Pricing: Pricing{Input: 3.00, Output: 15.00},
			Aliases: []string{"claude-3-5-sonnet-latest"},
		},
		{
			Provider: "anthropic", ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", Type: TypeChat,
			ContextWindow: 200_000, MaxOutputTokens: 4_096,
			SupportsVision: true, SupportsTools: true, SupportsStreaming: true,
			Pricing: Pricing{Input: 15.00, Output: 75.00},
		},
		{
			Provider: "google", ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", Type: TypeMultimodal,
			ContextWindow: 2_097_152, MaxOutputTokens: 8_192,
			SupportsVision: true, SupportsTools: true, SupportsStreaming: true, SupportsJSONMode: true,
			Pricing: Pricing{Input: 1.25, Output: 5.00},
		},
		{
			Provider: "google", ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", Type: TypeMultimodal,
			ContextWindow: 1_048_576, MaxOutputTokens: 8_192,
			SupportsVision: true, SupportsTools: true, SupportsStreaming: true,
			Pricing: Pricing{Input: 0.075, Output: 0.30},
		},
		{
			Provider: "ollama", ID: "llama3.1", Name: "Llama 3.1 (local)", Type: TypeChat,
			ContextWindow: 128_000, MaxOutputTokens: 4_096,
			SupportsTools: true, SupportsStreaming: true,
			Pricing: Pricing{Input: 0, Output: 0},
		},
		{
			Provider: "groq", ID: "llama-3.1-70b-versatile", Name: "Llama 3.1 70B (Groq)", Type: TypeChat,
			ContextWindow: 131_072, MaxOutputTokens: 8_192,
			SupportsTools: true, SupportsStreaming: true,
			Pricing: Pricing{Input: 0.59, Output: 0.79},
		},
		{
			Provider: "mistral", ID: "mistral-large-latest", Name: "Mistral Large", Type: TypeChat,
			ContextWindow: 128_000, MaxOutputTokens: 4_096,
			SupportsTools: true, SupportsStreaming: true, SupportsJSONMode: true,
			Pricing: Pricing{Input: 2.00, Output: 6.00},
		},
		{
			Provider: "deepseek", ID: "deepseek-chat", Name: "DeepSeek Chat", Type: TypeChat,
			ContextWindow: 64_000, MaxOutputTokens: 8_192,
			SupportsTools: true, SupportsStreaming: true,
			Pricing: Pricing{Input: 0.27, Output: 1.10},
		},
	} {
		reg.RegisterModel(m)
	}
}
