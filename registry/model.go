// Package registry implements the Model Registry (C15): a static map
// from (provider, model id) to capability/pricing metadata, exposed as a
// single-process singleton with a reset hook for tests.
package registry

// ModelType classifies what a model is used for.
type ModelType string

const (
	TypeChat        ModelType = "chat"
	TypeEmbedding   ModelType = "embedding"
	TypeCompletion  ModelType = "completion"
	TypeImage       ModelType = "image"
	TypeAudio       ModelType = "audio"
	TypeMultimodal  ModelType = "multimodal"
)

// Pricing is cost per million tokens.
type Pricing struct {
	Input  float64
	Output float64
	Cached *float64
}

// Model is one registry entry.
type Model struct {
	Provider          string
	ID                string
	Name              string
	Type              ModelType
	ContextWindow     int
	MaxOutputTokens   int
	SupportsVision    bool
	SupportsTools     bool
	SupportsStreaming bool
	SupportsJSONMode  bool
	SupportsReasoning bool
	Pricing           Pricing
	Aliases           []string
	DeprecationDate   *string
	Successor         *string
	ReleaseDate       *string
	Description       string
}

// Requirements describes a query for FindModel: every set field must
// match (or be satisfied) on a candidate.
type Requirements struct {
	Provider          string
	Type              ModelType
	MinContextWindow  int
	SupportsVision    bool
	SupportsTools     bool
	SupportsStreaming bool
	SupportsJSONMode  bool
	SupportsReasoning bool
}
