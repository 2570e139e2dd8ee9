package match

import (
	"math"
	"strings"

	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
)

// Query carries the catalog-side signals used to score candidates.
// Duration, Tempo, and Key are optional; zero values mean unknown.
type Query struct {
	Title    string
	Artist   string
	Duration int
	Tempo    float64
	Key      string
}

// unknownSignal is the neutral score used when one side of a numeric
// or key comparison is missing. Absence of a signal must not drag a
// candidate down the way a contradicting signal does.
const unknownSignal = 90.0

// TextScore measures textual similarity between the query and a
// candidate. Both the normalized and the raw lowercased strings are
// scored and the better result wins, since normalization can strip
// characters that carry the whole title in some scripts.
func TextScore(q Query, c models.Candidate) float64 {
	best := textPairScore(
		shared.NormalizeText(q.Artist), shared.NormalizeText(q.Title),
		shared.NormalizeText(c.Uploader), shared.NormalizeText(c.Title),
	)
	if s := textPairScore(
		strings.ToLower(strings.TrimSpace(q.Artist)), strings.ToLower(strings.TrimSpace(q.Title)),
		strings.ToLower(strings.TrimSpace(c.Uploader)), strings.ToLower(strings.TrimSpace(c.Title)),
	); s > best {
		best = s
	}
	return best
}

// textPairScore takes the max of whole-string ratio, token-sort,
// token-set, and the average of separately scored artist and title, so
// reordered or punctuation-noisy uploads still score high. Either side
// reduced to nothing scores zero; an empty string must never look like
// a perfect match.
func textPairScore(qArtist, qTitle, cArtist, cTitle string) float64 {
	queryText := strings.TrimSpace(qArtist + " " + qTitle)
	candText := strings.TrimSpace(cArtist + " " + cTitle)
	if queryText == "" || candText == "" {
		return 0
	}

	best := Ratio(queryText, candText)
	if s := TokenSortRatio(queryText, candText); s > best {
		best = s
	}
	if s := TokenSetRatio(queryText, candText); s > best {
		best = s
	}

	artistScore := TokenSetRatio(qArtist, cArtist)
	titleScore := TokenSetRatio(qTitle, cTitle)
	if s := (artistScore + titleScore) / 2; s > best {
		best = s
	}

	return best
}

// DurationScore compares durations with a tolerance of the larger of
// 2 seconds or 5% of the official duration: full marks inside the
// tolerance, zero beyond twice it, linear in between.
func DurationScore(official, candidate int) float64 {
	if official <= 0 || candidate <= 0 {
		return unknownSignal
	}

	tol := math.Max(2, float64(official)*0.05)
	diff := math.Abs(float64(official - candidate))

	switch {
	case diff <= tol:
		return 100
	case diff >= 2*tol:
		return 0
	default:
		return 100 * (2*tol - diff) / tol
	}
}

// TempoScore compares tempos in BPM with stepped bands and a linear
// tail beyond 6 BPM of difference.
func TempoScore(official, candidate float64) float64 {
	if official <= 0 || candidate <= 0 {
		return unknownSignal
	}

	diff := math.Abs(official - candidate)
	switch {
	case diff <= 1:
		return 100
	case diff <= 3:
		return 90
	case diff <= 6:
		return 75
	default:
		return math.Max(0, 75-(diff-6)*5)
	}
}

// KeyScore compares musical keys. A mismatch between two known keys
// scores lower than a missing key on either side.
func KeyScore(official, candidate string) float64 {
	official = strings.TrimSpace(official)
	candidate = strings.TrimSpace(candidate)
	if official == "" || candidate == "" {
		return unknownSignal
	}
	if strings.EqualFold(official, candidate) {
		return 100
	}
	return 80
}

// CompositeScore combines the four signals into a single confidence
// in [0, 100]. Text similarity dominates only when it is very strong;
// otherwise the numeric signals carry more weight.
func CompositeScore(q Query, c models.Candidate) float64 {
	text := TextScore(q, c)
	duration := DurationScore(q.Duration, c.Duration)
	tempo := TempoScore(q.Tempo, c.Tempo)
	key := KeyScore(q.Key, c.Key)

	if text >= 90 {
		return text*0.8 + duration*0.15 + tempo*0.03 + key*0.02
	}
	return text*0.7 + duration*0.2 + tempo*0.05 + key*0.05
}
