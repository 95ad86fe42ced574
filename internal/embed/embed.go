// Package embed provides deterministic local text embeddings and the vector
// math used for similarity ranking. Embedders are pure functions of their
// input: identical text always yields an identical vector.
package embed

import (
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// Embedder converts text into a fixed-length numeric vector.
type Embedder interface {
	ModelID() string
	Dimensions() int
	Embed(text string) ([]float32, error)
}

// Known model identifiers.
const (
	ModelChargram = "trellis-chargram-384-v1"
	ModelHash     = "trellis-hash-256-v1"
)

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_\-]+`)

// New returns the embedder for the given model identifier.
// Short aliases ("chargram", "hash") are accepted.
func New(model string) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(model)) {
	case "", ModelChargram, "chargram", "chargram-384":
		return &chargramEmbedder{dims: 384, modelID: ModelChargram}, nil
	case ModelHash, "hash", "hash-256":
		return &hashEmbedder{dims: 256, modelID: ModelHash}, nil
	default:
		return nil, fmt.Errorf("unknown embedding model: %q", model)
	}
}

// chargramEmbedder hashes character trigrams and whole tokens into a
// fixed-size vector. Richer signal than the token-hash model, at the cost
// of more hashing work per call.
type chargramEmbedder struct {
	dims    int
	modelID string
}

func (e *chargramEmbedder) ModelID() string { return e.modelID }

func (e *chargramEmbedder) Dimensions() int { return e.dims }

func (e *chargramEmbedder) Embed(text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return vec, nil
	}
	window := "#" + normalized + "#"
	for i := 0; i+3 <= len(window); i++ {
		gram := window[i : i+3]
		h := fnv.New64a()
		_, _ = h.Write([]byte(gram))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		vec[idx] += 1
	}
	for _, token := range tokenize(normalized) {
		h := fnv.New64a()
		_, _ = h.Write([]byte("tok:" + token))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		vec[idx] += 1.25
	}
	Normalize(vec)
	return vec, nil
}

// hashEmbedder hashes whole tokens with a sign bit. Cheaper and coarser
// than the chargram model.
type hashEmbedder struct {
	dims    int
	modelID string
}

func (e *hashEmbedder) ModelID() string { return e.modelID }

func (e *hashEmbedder) Dimensions() int { return e.dims }

func (e *hashEmbedder) Embed(text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	for _, token := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		weight := float32(1 + (len(token) / 8))
		vec[idx] += sign * weight
	}
	Normalize(vec)
	return vec, nil
}

func tokenize(text string) []string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}
	matches := tokenPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	return matches
}

// Norm returns the L2 norm of vec.
func Norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	return math.Sqrt(sum)
}

// Normalize scales vec to unit length in place. Zero vectors are left as-is.
func Normalize(vec []float32) {
	n := Norm(vec)
	if n == 0 {
		return
	}
	inv := float32(1.0 / n)
	for i := range vec {
		vec[i] *= inv
	}
}

// Cosine returns the cosine similarity of a and b. Vectors of different
// lengths are compared over the shorter prefix; empty vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Similarity converts a cosine distance into a score in [0, 1].
// The mapping is 1 - distance, clamped; smaller distance means higher score.
// It is the single conversion used for both thought-level and session-level
// ranking.
func Similarity(distance float64) float64 {
	s := 1 - distance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// MeanAccumulator computes an element-wise mean over a stream of vectors
// using a running sum and count, so memory stays bounded regardless of how
// many vectors are folded in.
type MeanAccumulator struct {
	sum   []float64
	count int
}

// Add folds one vector into the accumulator. The first vector fixes the
// dimensionality; later vectors must match it.
func (m *MeanAccumulator) Add(vec []float32) error {
	if m.sum == nil {
		m.sum = make([]float64, len(vec))
	}
	if len(vec) != len(m.sum) {
		return fmt.Errorf("vector dimensionality mismatch: got %d, want %d", len(vec), len(m.sum))
	}
	for i, v := range vec {
		m.sum[i] += float64(v)
	}
	m.count++
	return nil
}

// Count returns the number of vectors folded in so far.
func (m *MeanAccumulator) Count() int { return m.count }

// Mean returns the element-wise mean, or nil when no vectors were added.
func (m *MeanAccumulator) Mean() []float32 {
	if m.count == 0 {
		return nil
	}
	out := make([]float32, len(m.sum))
	inv := 1 / float64(m.count)
	for i, v := range m.sum {
		out[i] = float32(v * inv)
	}
	return out
}
