// Package local implements a deterministic feature-hashing embedder used
// when no HuggingFace token is configured, and in tests. Tokens (and token
// bigrams, for a little phrase sensitivity) are hashed into a fixed number
// of buckets and the result is L2-normalized, so cosine similarity degrades
// to weighted token overlap. Quality is far below a real model; determinism
// and zero dependencies are the point.
package local

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/free4inno/intent-hub/internal/distance"
)

const defaultDim = 256

// Embedder hashes word features into a fixed-dimension unit vector.
type Embedder struct {
	dim          int
	tokenPattern *regexp.Regexp
}

// NewEmbedder creates a feature-hashing embedder with the default dimension.
func NewEmbedder() *Embedder {
	return NewEmbedderWithDim(defaultDim)
}

// NewEmbedderWithDim creates a feature-hashing embedder with an explicit
// dimension.
func NewEmbedderWithDim(dim int) *Embedder {
	if dim <= 0 {
		dim = defaultDim
	}
	return &Embedder{
		dim:          dim,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "local-hash" }

// Dim returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dim() int { return e.dim }

// Embed returns one unit vector per input text, in input order.
func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *Embedder) embedOne(text string) []float64 {
	vec := make([]float64, e.dim)
	tokens := e.tokenize(text)
	for _, tok := range tokens {
		vec[e.bucket(tok)] += 1.0
	}
	// bigrams weigh less than unigrams so single-word queries still match
	for i := 0; i+1 < len(tokens); i++ {
		vec[e.bucket(tokens[i]+" "+tokens[i+1])] += 0.5
	}
	if !distance.NormalizeL2InPlace(vec) {
		// text with no tokens at all maps to a fixed unit vector
		vec[0] = 1.0
	}
	return vec
}

func (e *Embedder) bucket(feature string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	return int(h.Sum32() % uint32(e.dim))
}

func (e *Embedder) tokenize(text string) []string {
	return e.tokenPattern.FindAllString(strings.ToLower(text), -1)
}
