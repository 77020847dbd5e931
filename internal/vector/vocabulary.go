package vector

import (
	"math"
	"sort"
)

// Params are the vectorization knobs snapshotted from the similarity
// configuration when a vocabulary is fit.
type Params struct {
	NFeatures   int
	NgramMin    int
	NgramMax    int
	UseIDF      bool
	SublinearTF bool
	MaxDF       float64
	MinDF       int
}

// SparseVector maps vocabulary term index to weight. Absent terms weigh zero.
type SparseVector map[int]float64

// Vocabulary is an immutable, versioned fit over the indexed corpus. Two
// vectors are only comparable when they were computed against the same
// version; the lifecycle manager swaps vocabularies atomically on refit and
// in-flight scans keep the snapshot they started with.
type Vocabulary struct {
	Version  int64
	Params   Params
	DocCount int

	terms   map[string]int
	docFreq []int
}

// Fit builds a vocabulary from the corpus documents: document frequencies
// over n-grams, min_df/max_df pruning, then a cap at the NFeatures most
// frequent terms (ties broken lexicographically). Indices are assigned in
// sorted term order so fits are deterministic.
func Fit(docs []string, params Params, version int64) *Vocabulary {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, gram := range NGrams(Tokenize(doc), params.NgramMin, params.NgramMax) {
			if !seen[gram] {
				seen[gram] = true
				df[gram]++
			}
		}
	}

	minDF := params.MinDF
	if minDF < 1 {
		minDF = 1
	}
	// Proportional max_df, floored at one document so a tiny corpus does not
	// prune itself empty.
	maxDF := len(docs)
	if params.MaxDF > 0 && params.MaxDF < 1 {
		maxDF = int(params.MaxDF * float64(len(docs)))
		if maxDF < 1 {
			maxDF = 1
		}
	}

	type termFreq struct {
		term string
		df   int
	}
	kept := make([]termFreq, 0, len(df))
	for term, freq := range df {
		if freq < minDF || freq > maxDF {
			continue
		}
		kept = append(kept, termFreq{term, freq})
	}

	if params.NFeatures > 0 && len(kept) > params.NFeatures {
		sort.Slice(kept, func(i, j int) bool {
			if kept[i].df != kept[j].df {
				return kept[i].df > kept[j].df
			}
			return kept[i].term < kept[j].term
		})
		kept = kept[:params.NFeatures]
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].term < kept[j].term })

	vocab := &Vocabulary{
		Version:  version,
		Params:   params,
		DocCount: len(docs),
		terms:    make(map[string]int, len(kept)),
		docFreq:  make([]int, len(kept)),
	}
	for i, tf := range kept {
		vocab.terms[tf.term] = i
		vocab.docFreq[i] = tf.df
	}
	return vocab
}

// Size returns the number of terms in the vocabulary.
func (v *Vocabulary) Size() int {
	return len(v.terms)
}

// Transform computes the L2-normalized TF-IDF vector of text against this
// vocabulary. Out-of-vocabulary terms contribute nothing; empty input yields
// a zero vector.
func (v *Vocabulary) Transform(text string) SparseVector {
	counts := make(map[int]int)
	for _, gram := range NGrams(Tokenize(text), v.Params.NgramMin, v.Params.NgramMax) {
		if idx, ok := v.terms[gram]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return SparseVector{}
	}

	vec := make(SparseVector, len(counts))
	var sumSquares float64
	for idx, count := range counts {
		tf := float64(count)
		if v.Params.SublinearTF {
			tf = 1 + math.Log(tf)
		}
		weight := tf
		if v.Params.UseIDF {
			weight *= v.idf(idx)
		}
		vec[idx] = weight
		sumSquares += weight * weight
	}

	norm := math.Sqrt(sumSquares)
	if norm > 0 {
		for idx := range vec {
			vec[idx] /= norm
		}
	}
	return vec
}

// idf uses the smoothed formulation ln((1+N)/(1+df)) + 1 so terms present in
// every document still carry a small positive weight.
func (v *Vocabulary) idf(idx int) float64 {
	return math.Log(float64(1+v.DocCount)/float64(1+v.docFreq[idx])) + 1
}
