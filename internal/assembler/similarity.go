package assembler

import "strings"

// Similarity computes a normalized text-similarity score in [0,1] between
// two renderings of the same pages: twice the longest common subsequence
// of tokens over the total token count. Case and whitespace differences
// are ignored so reconciliation keys on wording, not formatting.
func Similarity(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)

	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	lcs := lcsLength(ta, tb)
	return 2 * float64(lcs) / float64(len(ta)+len(tb))
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// lcsLength computes longest common subsequence length with a rolling
// two-row table: overlap windows are a handful of pages, so quadratic time
// on their token counts is fine.
func lcsLength(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
