// Package matching scores how well a student's skills cover a job's skill requirements.
//
// Score is the primary 0–100 scorer: required skills are worth 70 points and
// preferred skills 30, each weighted by the fraction matched. Tokens are
// trimmed, NFKC-normalized and case-folded, then compared exactly.
//
// FallbackScore is the cheap inline estimate shown on an application when no
// match record exists yet. It looks at required skills only and does not
// normalize beyond trimming and lower-casing, so the two scorers can disagree
// for the same input.
package matching

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	RequiredWeight  = 70.0
	PreferredWeight = 30.0
	MaxScore        = 100.0
)

// Normalize trims, NFKC-normalizes and case-folds a skill token.
func Normalize(token string) string {
	t := strings.TrimSpace(token)
	if t == "" {
		return ""
	}
	return cases.Fold().String(norm.NFKC.String(t))
}

// ParseSkills splits a comma-delimited skill list into normalized, de-duplicated tokens.
// Order of first appearance is kept.
func ParseSkills(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	return normalizeSet(strings.Split(list, ","))
}

// JoinSkills renders tokens back into the comma-delimited storage form.
// Spelling is kept; later tokens equal to an earlier one after normalization are dropped.
func JoinSkills(tokens []string) string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		n := Normalize(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, t)
	}
	return strings.Join(out, ",")
}

func normalizeSet(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		n := Normalize(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Breakdown is a scored comparison with the skills behind the number.
type Breakdown struct {
	Score            float64
	MatchedRequired  []string
	MissingRequired  []string
	MatchedPreferred []string
	MissingPreferred []string
}

// Evaluate scores candidate skills against required and preferred skills.
func Evaluate(candidate, required, preferred []string) Breakdown {
	have := make(map[string]bool, len(candidate))
	for _, c := range normalizeSet(candidate) {
		have[c] = true
	}

	var b Breakdown
	req := normalizeSet(required)
	pref := normalizeSet(preferred)

	b.MatchedRequired, b.MissingRequired = partition(req, have)
	b.MatchedPreferred, b.MissingPreferred = partition(pref, have)

	// No requirements means no required credit, not full credit
	requiredScore := 0.0
	if len(req) > 0 {
		requiredScore = RequiredWeight * float64(len(b.MatchedRequired)) / float64(len(req))
	}
	// An empty preferred list adds nothing, so a full required match tops out at 70
	preferredScore := PreferredWeight * float64(len(b.MatchedPreferred)) / float64(max(1, len(pref)))

	b.Score = clamp(requiredScore+preferredScore, 0, MaxScore)
	return b
}

// Score returns the 0–100 compatibility score. It is deterministic and
// independent of the order of each argument.
func Score(candidate, required, preferred []string) float64 {
	return Evaluate(candidate, required, preferred).Score
}

// Explanation renders the breakdown as the free text stored on a match record.
func (b Breakdown) Explanation() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Matched %d/%d required skills", len(b.MatchedRequired), len(b.MatchedRequired)+len(b.MissingRequired))
	if len(b.MatchedRequired) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(b.MatchedRequired, ", "))
	}
	fmt.Fprintf(&sb, "; %d/%d preferred skills", len(b.MatchedPreferred), len(b.MatchedPreferred)+len(b.MissingPreferred))
	if len(b.MatchedPreferred) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(b.MatchedPreferred, ", "))
	}
	if len(b.MissingRequired) > 0 {
		fmt.Fprintf(&sb, ". Missing required: %s", strings.Join(b.MissingRequired, ", "))
	}
	fmt.Fprintf(&sb, ". Score %.1f/100", b.Score)
	return sb.String()
}

// FallbackScore is 100 * matched / len(required) using case-insensitive
// equality against the raw lists. Either list empty yields 0.
func FallbackScore(candidate, required []string) float64 {
	if len(candidate) == 0 || len(required) == 0 {
		return 0
	}

	have := make(map[string]bool, len(candidate))
	for _, c := range candidate {
		have[strings.ToLower(strings.TrimSpace(c))] = true
	}

	matched := 0
	for _, r := range required {
		if have[strings.ToLower(strings.TrimSpace(r))] {
			matched++
		}
	}
	return MaxScore * float64(matched) / float64(len(required))
}

// SplitRaw splits a comma-delimited list without normalizing, for FallbackScore.
func SplitRaw(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func partition(tokens []string, have map[string]bool) (matched, missing []string) {
	for _, t := range tokens {
		if have[t] {
			matched = append(matched, t)
		} else {
			missing = append(missing, t)
		}
	}
	sort.Strings(matched)
	sort.Strings(missing)
	return matched, missing
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
