// Package similarity scores how close two documents are using TF-IDF
// vectors fitted on just those documents.
package similarity

import (
	"errors"
	"math"
	"regexp"
	"strings"
)

// ErrEmptyVocabulary is returned when neither document contains a token.
var ErrEmptyVocabulary = errors.New("empty vocabulary: documents contain no terms")

// tokenPattern selects runs of two or more word characters.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Provider computes a similarity in [0, 1] between two texts.
type Provider interface {
	Similarity(a, b string) (float64, error)
}

// TFIDF is the default Provider: cosine similarity of smoothed TF-IDF vectors.
type TFIDF struct{}

// Similarity implements Provider.
func (TFIDF) Similarity(a, b string) (float64, error) {
	return Cosine(a, b)
}

// Tokenize lowercases text and splits it into terms.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Cosine fits a TF-IDF model on the two documents and returns the cosine
// similarity of their vectors.
func Cosine(a, b string) (float64, error) {
	docs := [2]map[string]float64{termCounts(a), termCounts(b)}

	df := make(map[string]int)
	for _, counts := range docs {
		for term := range counts {
			df[term]++
		}
	}
	if len(df) == 0 {
		return 0, ErrEmptyVocabulary
	}

	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = math.Log((1+n)/(1+float64(count))) + 1
	}

	var vectors [2]map[string]float64
	for i, counts := range docs {
		vectors[i] = normalize(counts, idf)
	}

	var dot float64
	for term, weight := range vectors[0] {
		dot += weight * vectors[1][term]
	}

	// Guard against rounding drift above 1.
	return math.Min(math.Max(dot, 0), 1), nil
}

func termCounts(text string) map[string]float64 {
	counts := make(map[string]float64)
	for _, token := range Tokenize(text) {
		counts[token]++
	}
	return counts
}

// normalize weights raw counts by idf and scales the vector to unit length.
// An empty document stays the zero vector.
func normalize(counts map[string]float64, idf map[string]float64) map[string]float64 {
	vector := make(map[string]float64, len(counts))

	var norm float64
	for term, count := range counts {
		w := count * idf[term]
		vector[term] = w
		norm += w * w
	}
	if norm == 0 {
		return vector
	}

	norm = math.Sqrt(norm)
	for term := range vector {
		vector[term] /= norm
	}
	return vector
}
