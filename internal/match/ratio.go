package match

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Ratio computes a similarity score in [0, 100] between two strings
// using insert/delete edit distance over the combined length in runes.
// Equal strings score 100, disjoint strings score 0.
func Ratio(a, b string) float64 {
	if a == b {
		return 100
	}
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	dist := indelDistance(a, b)
	return float64(total-dist) / float64(total) * 100
}

// TokenSortRatio compares the two strings with their tokens sorted,
// making the score insensitive to word order.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

// TokenSetRatio compares the intersection and differences of the two
// token sets, making the score insensitive to both word order and
// repeated or extra tokens common to one side.
func TokenSetRatio(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	var common, diffA, diffB []string
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			common = append(common, tok)
		} else {
			diffA = append(diffA, tok)
		}
	}
	for tok := range setB {
		if _, ok := setA[tok]; !ok {
			diffB = append(diffB, tok)
		}
	}

	sort.Strings(common)
	sort.Strings(diffA)
	sort.Strings(diffB)

	base := strings.Join(common, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(diffA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(diffB, " "))

	best := Ratio(base, combinedA)
	if s := Ratio(base, combinedB); s > best {
		best = s
	}
	if s := Ratio(combinedA, combinedB); s > best {
		best = s
	}
	return best
}

// indelDistance is the edit distance allowing only insertions and
// deletions, computed with a two-row dynamic program.
func indelDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1]
			} else {
				del := prev[j] + 1
				ins := curr[j-1] + 1
				if del < ins {
					curr[j] = del
				} else {
					curr[j] = ins
				}
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}
