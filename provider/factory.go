package provider

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/byokit/byokit/breaker"
	"github.com/byokit/byokit/events"
	"github.com/byokit/byokit/keystore"
	"github.com/byokit/byokit/retry"
)

// Deps bundles the shared infrastructure every adapter constructor needs,
// so wiring them up in the Orchestrator is one struct literal instead of
// five positional args apiece.
type Deps struct {
	Client    *http.Client
	Keys      *keystore.Store
	Breakers  *breaker.Registry
	Bus       *events.Bus
	Logger    *zap.Logger
	RetryOpts retry.Options
}

// baseURLs holds the default API endpoint for each built-in provider tag.
var baseURLs = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"anthropic":   "https://api.anthropic.com/v1",
	"google":      "https://generativelanguage.googleapis.com/v1beta",
	"ollama":      "http://localhost:11434",
	"groq":        "https://api.groq.com/openai/v1",
	"together":    "https://api.together.xyz/v1",
	"fireworks":   "https://api.fireworks.ai/inference/v1",
	"perplexity":  "https://api.perplexity.ai",
	"deepseek":    "https://api.deepseek.com/v1",
	"xai":         "https://api.x.ai/v1",
	"mistral":     "https://api.mistral.ai/v1",
	"cohere":      "https://api.cohere.ai/compatibility/v1",
}

// compatCaps holds the capability profile of each OpenAI-compatible
// surrogate; providers absent from this map fall back to New's default.
var compatCaps = map[string]Capabilities{
	"groq":       {Streaming: true, Tools: true},
	"together":   {Streaming: true, Tools: true, Embeddings: true},
	"fireworks":  {Streaming: true, Tools: true},
	"perplexity": {Streaming: true},
	"deepseek":   {Streaming: true, Tools: true},
	"xai":        {Streaming: true, Tools: true, Vision: true},
	"mistral":    {Streaming: true, Tools: true, Embeddings: true},
	"cohere":     {Streaming: true, Embeddings: true},
}

// New constructs the built-in adapter for providerTag, wiring base with
// the shared Deps. baseURL overrides the default endpoint when non-empty
// (e.g. a self-hosted Ollama at a non-default port, or an enterprise
// OpenAI-compatible gateway).
func New(providerTag, baseURL string, deps Deps) Provider {
	if baseURL == "" {
		baseURL = baseURLs[providerTag]
	}
	base := NewBaseProvider(providerTag, baseURL, deps.Client, deps.Keys, deps.Breakers, deps.Bus, deps.Logger)
	base.RetryOpts = deps.RetryOpts

	switch providerTag {
	case "openai":
		return NewOpenAI(base)
	case "anthropic":
		return NewAnthropic(base)
	case "google":
		return NewGoogle(base)
	case "ollama":
		return NewOllama(base)
	default:
		caps, ok := compatCaps[providerTag]
		if !ok {
			caps = Capabilities{Streaming: true}
		}
		return NewCompatible(base, caps)
	}
}
