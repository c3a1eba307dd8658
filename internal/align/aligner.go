package align

// Tunable alignment constants. Lookahead bounds how far past the current
// reference position a spoken word may resynchronize; MatchThreshold is the
// minimum similarity for a spoken word to count as a reference match.
const (
	DefaultLookahead      = 5
	DefaultMatchThreshold = 0.75
)

// Options tunes the aligner. Zero values fall back to the defaults.
type Options struct {
	Lookahead      int
	MatchThreshold float64
}

func (o Options) withDefaults() Options {
	if o.Lookahead <= 0 {
		o.Lookahead = DefaultLookahead
	}
	if o.MatchThreshold <= 0 {
		o.MatchThreshold = DefaultMatchThreshold
	}
	return o
}

// Result describes how far into the reference the student read.
type Result struct {
	WordsRead            int
	FurthestPosition     int
	CompletionPercentage float64
	// DegenerateReference is set when the reference has zero words; the
	// completion percentage is 0 and must not be interpreted as a real score.
	DegenerateReference bool
}

// Align matches spoken words against reference words with a two-pointer
// bounded lookahead. Each spoken word searches the next Lookahead reference
// words for its best fuzzy match; a match advances past any skipped
// reference words (resynchronization), a non-match is discarded as
// transcription noise without advancing. Runs in O(len(spoken)*Lookahead).
func Align(referenceWords, spokenWords []string, opts Options) Result {
	opts = opts.withDefaults()

	n := len(referenceWords)
	if n == 0 {
		return Result{DegenerateReference: true}
	}

	refPos := 0
	matched := 0
	for _, w := range spokenWords {
		end := refPos + opts.Lookahead
		if end > n {
			end = n
		}
		bestIdx := -1
		bestSim := 0.0
		for j := refPos; j < end; j++ {
			if sim := Similarity(w, referenceWords[j]); sim > bestSim {
				bestSim = sim
				bestIdx = j
			}
		}
		if bestIdx >= 0 && bestSim >= opts.MatchThreshold {
			matched++
			refPos = bestIdx + 1
		}
	}

	completion := float64(refPos) / float64(n) * 100
	if completion > 100 {
		completion = 100
	}
	return Result{
		WordsRead:            matched,
		FurthestPosition:     refPos,
		CompletionPercentage: completion,
	}
}

// Similarity is 1 - levenshtein(a,b)/max(len(a),len(b)): 1.0 for identical
// words, 0.0 for completely dissimilar. Two empty words are identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein computes edit distance with a single rolling row.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur := prev[0]
		prev[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			next := cur + cost
			if d := prev[j] + 1; d < next {
				next = d
			}
			if d := prev[j-1] + 1; d < next {
				next = d
			}
			cur, prev[j] = prev[j], next
		}
	}
	return prev[len(b)]
}
