// Package sgram builds skip-gram training data: (center, context) pairs and
// fixed-width bag-of-context windows.
package sgram

import "embedalign/vocab"

// Pair is one (center, context) skip-gram example.
type Pair struct {
	Center  int
	Context int
}

// SkipGramPairs emits (ids[i], ids[i+d]) for every center i left to right and
// every offset d in [-w, w] in increasing order, skipping d == 0 and
// positions outside the sentence.
func SkipGramPairs(ids []int, w int) []Pair {
	var out []Pair
	for i, center := range ids {
		for d := -w; d <= w; d++ {
			pos := i + d
			if d == 0 || pos < 0 || pos >= len(ids) {
				continue
			}
			out = append(out, Pair{Center: center, Context: ids[pos]})
		}
	}
	return out
}

// PairCount is the number of pairs SkipGramPairs yields for a sentence of
// length n.
func PairCount(n, w int) int {
	total := 0
	for i := 0; i < n; i++ {
		total += min(i, w) + min(n-1-i, w)
	}
	return total
}

// BagWindows emits one row per center: the center id followed by its valid
// contexts in offset order, right-padded with pad to width 2w+1. Centers
// without any valid context are dropped rather than padded.
func BagWindows(ids []int, w, pad int) [][]int {
	span := 2*w + 1
	var out [][]int
	for i, center := range ids {
		row := make([]int, 1, span)
		row[0] = center
		for d := -w; d <= w; d++ {
			pos := i + d
			if d == 0 || pos < 0 || pos >= len(ids) {
				continue
			}
			row = append(row, ids[pos])
		}
		if len(row) == 1 {
			continue
		}
		for len(row) < span {
			row = append(row, pad)
		}
		out = append(out, row)
	}
	return out
}

// Pairs runs SkipGramPairs over every sentence using raw vocabulary ids.
func Pairs(sentences [][]string, v *vocab.Vocabulary, w int) []Pair {
	var out []Pair
	for _, sen := range sentences {
		out = append(out, SkipGramPairs(v.IDs(sen), w)...)
	}
	return out
}

// Windows runs BagWindows over every sentence using raw vocabulary ids.
func Windows(sentences [][]string, v *vocab.Vocabulary, w int) [][]int {
	var out [][]int
	for _, sen := range sentences {
		out = append(out, BagWindows(v.IDs(sen), w, v.PadID())...)
	}
	return out
}
