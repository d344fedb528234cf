package textproc

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns the hex blake2b-256 digest of data
func Fingerprint(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Embed returns a deterministic L2-normalized feature-hashing vector of the
// text's tokens. Similar texts share buckets and score high under Cosine.
func Embed(text string, dims int) []float64 {
	if dims <= 0 {
		return nil
	}
	vec := make([]float64, dims)
	tokens := tokenize(text)
	for i, token := range tokens {
		addFeature(vec, token, 1)
		if i > 0 {
			addFeature(vec, tokens[i-1]+" "+token, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func addFeature(vec []float64, feature string, weight float64) {
	sum := blake2b.Sum256([]byte(feature))
	h := binary.LittleEndian.Uint64(sum[:8])
	idx := h % uint64(len(vec))
	if sum[8]&1 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// Cosine returns the cosine similarity of two equal-length vectors, 0 otherwise
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
