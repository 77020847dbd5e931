package vector

import "math"

const (
	MatchExact          = "exact"
	MatchHighConfidence = "high_confidence"
	MatchSimilarity     = "similarity"
)

// Thresholds classify a cosine score into a match tier. Invariant enforced
// upstream: Exact >= HighConfidence >= Similarity.
type Thresholds struct {
	Similarity             float64
	HighConfidence         float64
	Exact                  float64
	RequireMultipleMatches bool
}

// Indexed is one persisted document as the matcher sees it.
type Indexed struct {
	ID     string
	Hash   string
	Vector SparseVector
}

// Match is the best classification for one scanned file.
type Match struct {
	MatchedID string
	Type      string
	Score     float64
}

// Cosine computes cosine similarity between two sparse vectors. A zero
// vector scores 0 against anything, never a numeric error.
func Cosine(a, b SparseVector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}

	var dot, normA, normB float64
	for idx, wa := range a {
		normA += wa * wa
		if wb, ok := b[idx]; ok {
			dot += wa * wb
		}
	}
	for _, wb := range b {
		normB += wb * wb
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// BestMatch classifies a candidate against the indexed corpus. The
// fingerprint check short-circuits vector comparison; otherwise the maximum
// cosine score decides the tier. When RequireMultipleMatches is set, a
// similarity-tier result needs at least two independent indexed documents
// above the similarity threshold; exact and high-confidence tiers are
// exempt. Equal scores break toward the lowest indexed id.
func BestMatch(hash string, vec SparseVector, corpus []Indexed, th Thresholds) (Match, bool) {
	exactID := ""
	for _, doc := range corpus {
		if doc.Hash != "" && doc.Hash == hash && (exactID == "" || doc.ID < exactID) {
			exactID = doc.ID
		}
	}
	if exactID != "" {
		return Match{MatchedID: exactID, Type: MatchExact, Score: 1.0}, true
	}

	if len(vec) == 0 {
		return Match{}, false
	}

	var (
		bestID         string
		bestScore      = -1.0
		aboveThreshold int
	)
	for _, doc := range corpus {
		score := Cosine(vec, doc.Vector)
		if score >= th.Similarity {
			aboveThreshold++
		}
		if score > bestScore || (score == bestScore && doc.ID < bestID) {
			bestScore = score
			bestID = doc.ID
		}
	}

	switch {
	case bestScore >= th.Exact:
		return Match{MatchedID: bestID, Type: MatchExact, Score: bestScore}, true
	case bestScore >= th.HighConfidence:
		return Match{MatchedID: bestID, Type: MatchHighConfidence, Score: bestScore}, true
	case bestScore >= th.Similarity:
		if th.RequireMultipleMatches && aboveThreshold < 2 {
			return Match{}, false
		}
		return Match{MatchedID: bestID, Type: MatchSimilarity, Score: bestScore}, true
	default:
		return Match{}, false
	}
}
