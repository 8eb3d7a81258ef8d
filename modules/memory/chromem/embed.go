package chromem

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	chromemgo "github.com/philippgille/chromem-go"
)

const defaultHashDimensions = 256

// HashEmbedding returns a deterministic bag-of-words embedding: every
// lowercased word is hashed into one of dims buckets and the vector is
// normalized. Texts sharing words score higher, which is enough for tests
// and offline use without an embedding model.
func HashEmbedding(dims int) chromemgo.EmbeddingFunc {
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dims)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			vec[h.Sum32()%uint32(dims)]++
		}
		// A text without words still needs a non-zero vector.
		if len(words) == 0 {
			vec[0] = 1
		}
		return normalize(vec), nil
	}
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
