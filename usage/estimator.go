package usage

import (
	"github.com/daulet/tokenizers"
)

// Estimator approximates the token count of a piece of text. The
// Orchestrator uses it for the pre-flight token estimate it passes to the
// rate limiter; it never fills in or replaces a provider's reported usage.
type Estimator struct {
	tok *tokenizers.Tokenizer
}

// NewEstimator builds an Estimator with no tokenizer loaded; Estimate
// falls back to a character-based heuristic until one is attached via
// NewEstimatorFromFile.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// NewEstimatorFromFile loads a HuggingFace tokenizer.json for exact
// subword counting. If loading fails, the returned Estimator still works,
// falling back to the character heuristic.
func NewEstimatorFromFile(path string) *Estimator {
	tok, err := tokenizers.FromFile(path)
	if err != nil {
		return &Estimator{}
	}
	return &Estimator{tok: tok}
}

// Close releases the underlying tokenizer, if one was loaded.
func (e *Estimator) Close() error {
	if e.tok == nil {
		return nil
	}
	return e.tok.Close()
}

// Estimate returns a token count for text. With a loaded tokenizer it
// encodes exactly; otherwise it approximates at roughly 4 characters per
// token, the same rough ratio the teacher's providers observe for
// English prose.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	if e.tok != nil {
		ids, _ := e.tok.Encode(text, false)
		return len(ids)
	}
	const avgCharsPerToken = 4
	n := len(text) / avgCharsPerToken
	if n == 0 {
		n = 1
	}
	return n
}
