package filter

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// ContentHash returns a fixed-size digest of the normalized text.
// Normalization lowercases and collapses whitespace runs so that
// "Hello   World" and "hello world" hash identically.
func ContentHash(text string) string {
	normalized := whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// CombinedSimilarity blends a matching-block sequence ratio with
// Jaccard word similarity. Both underlying metrics are symmetric, so
// CombinedSimilarity(a, b) == CombinedSimilarity(b, a).
func CombinedSimilarity(a, b string) float64 {
	seq := SequenceRatio(strings.ToLower(a), strings.ToLower(b))
	words := JaccardWordSimilarity(a, b)
	return seq*0.7 + words*0.3
}

// SequenceRatio computes 2*M/T where M is the total size of the
// longest matching blocks between a and b and T is the combined
// length. Equivalent to difflib's ratio without the junk heuristic.
func SequenceRatio(a, b string) float64 {
	ar, br := []rune(a), []rune(b)
	total := len(ar) + len(br)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matchingSize(ar, br)) / float64(total)
}

func matchingSize(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ai, bj, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingSize(a[:ai], b[:bj]) +
		matchingSize(a[ai+size:], b[bj+size:])
}

// longestMatch finds the leftmost longest common substring of a and b.
func longestMatch(a, b []rune) (bestI, bestJ, bestSize int) {
	runLen := make(map[int]int, len(b))
	for i := range a {
		next := make(map[int]int, len(b))
		for j := range b {
			if a[i] != b[j] {
				continue
			}
			k := runLen[j-1] + 1
			next[j] = k
			if k > bestSize {
				bestI, bestJ, bestSize = i-k+1, j-k+1, k
			}
		}
		runLen = next
	}
	return bestI, bestJ, bestSize
}

// JaccardWordSimilarity is |A∩B| / |A∪B| over lowercase word sets.
// Two empty texts are identical (1.0); one empty text matches nothing.
func JaccardWordSimilarity(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)

	if len(wordsA) == 0 && len(wordsB) == 0 {
		return 1.0
	}
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}
