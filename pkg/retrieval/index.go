package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"retail-analytics-copilot/pkg/store"
)

// BM25 parameters. Standard values; tuning them is not worth it for a corpus
// of a few dozen chunks.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Index is an in-memory BM25 index over document chunks. It is built once at
// startup and is safe for concurrent reads; there is no mutation after New.
type Index struct {
	chunks    []store.Chunk
	termFreqs []map[string]int
	docFreq   map[string]int
	lengths   []int
	avgLen    float64
}

// New builds the index from an ordered chunk sequence. Chunk order is
// preserved and used as the tie-breaker during search.
func New(chunks []store.Chunk) *Index {
	idx := &Index{
		chunks:    chunks,
		termFreqs: make([]map[string]int, len(chunks)),
		docFreq:   make(map[string]int),
		lengths:   make([]int, len(chunks)),
	}

	total := 0
	for i, chunk := range chunks {
		tf := make(map[string]int)
		terms := tokenize(chunk.Text)
		for _, term := range terms {
			tf[term]++
		}
		for term := range tf {
			idx.docFreq[term]++
		}
		idx.termFreqs[i] = tf
		idx.lengths[i] = len(terms)
		total += len(terms)
	}
	if len(chunks) > 0 {
		idx.avgLen = float64(total) / float64(len(chunks))
	}

	return idx
}

// Size returns the number of indexed chunks.
func (idx *Index) Size() int {
	return len(idx.chunks)
}

// Search returns the topK chunks ranked by descending BM25 score, ties broken
// by original chunk order. Scores are normalized to [0, 1) with s/(s+1) so
// downstream confidence thresholds see a bounded value. Scoring is
// deterministic for identical index state and query; an empty corpus or a
// query with no matching terms returns an empty slice.
func (idx *Index) Search(query string, topK int) []store.Chunk {
	if len(idx.chunks) == 0 || topK <= 0 {
		return nil
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	type scored struct {
		pos   int
		score float64
	}

	var hits []scored
	for i := range idx.chunks {
		s := idx.scoreChunk(i, queryTerms)
		if s > 0 {
			hits = append(hits, scored{pos: i, score: s})
		}
	}
	if len(hits) == 0 {
		return nil
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]store.Chunk, len(hits))
	for i, h := range hits {
		chunk := idx.chunks[h.pos]
		chunk.Score = h.score / (h.score + 1.0)
		out[i] = chunk
	}
	return out
}

func (idx *Index) scoreChunk(pos int, queryTerms []string) float64 {
	tf := idx.termFreqs[pos]
	docLen := float64(idx.lengths[pos])
	n := float64(len(idx.chunks))

	score := 0.0
	for _, term := range queryTerms {
		freq := float64(tf[term])
		if freq == 0 {
			continue
		}
		df := float64(idx.docFreq[term])
		idf := math.Log(1.0 + (n-df+0.5)/(df+0.5))
		norm := freq * (bm25K1 + 1) / (freq + bm25K1*(1-bm25B+bm25B*docLen/idx.avgLen))
		score += idf * norm
	}
	return score
}

// tokenize lowercases and splits on any non-alphanumeric rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
