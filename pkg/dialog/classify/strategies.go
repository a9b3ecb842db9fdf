package classify

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"streamworks-assistant-be/internal/entity"
)

// Strategy names double as provenance tags on the detection result.
const (
	StrategyExact   = "exact"
	StrategyPattern = "pattern"
	StrategyFuzzy   = "fuzzy"
	StrategyContext = "context"
)

// Evidence is the outcome of one strategy scoring one job-type profile.
type Evidence struct {
	Score    float64 // 0..1
	Keywords []string
	Patterns []string
	Span     *entity.Offsets // strongest evidence span in the original text
}

// MatchStrategy scores a single job-type profile against an utterance.
// Implementations must be stateless so they can be shared across sessions.
type MatchStrategy interface {
	Name() string
	// Priority breaks confidence ties; lower wins.
	Priority() int
	Evaluate(text, lower string, p Profile) Evidence
}

// --- exact keyword matching ---

type exactStrategy struct{}

func (exactStrategy) Name() string  { return StrategyExact }
func (exactStrategy) Priority() int { return 0 }

func (exactStrategy) Evaluate(text, lower string, p Profile) Evidence {
	ev := Evidence{}
	for _, kw := range p.Keywords {
		start, end, ok := findWord(lower, kw)
		if !ok {
			continue
		}
		ev.Keywords = append(ev.Keywords, kw)
		if ev.Span == nil {
			ev.Span = &entity.Offsets{Start: start, End: end}
		}
	}
	if len(ev.Keywords) > 0 {
		// Keywords are curated to be decisive on their own.
		ev.Score = 1.0
	}
	return ev
}

// --- regex pattern matching ---

type patternStrategy struct{}

func (patternStrategy) Name() string  { return StrategyPattern }
func (patternStrategy) Priority() int { return 1 }

func (patternStrategy) Evaluate(text, lower string, p Profile) Evidence {
	ev := Evidence{}
	for _, re := range p.Patterns {
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		ev.Patterns = append(ev.Patterns, re.String())
		if ev.Span == nil {
			ev.Span = &entity.Offsets{Start: loc[0], End: loc[1]}
		}
	}
	if len(ev.Patterns) > 0 {
		ev.Score = 1.0
	}
	return ev
}

// --- fuzzy (edit-distance tolerant) matching ---

type fuzzyStrategy struct{}

func (fuzzyStrategy) Name() string  { return StrategyFuzzy }
func (fuzzyStrategy) Priority() int { return 2 }

func (fuzzyStrategy) Evaluate(text, lower string, p Profile) Evidence {
	ev := Evidence{}
	tokens := tokenize(lower)
	for _, kw := range p.Keywords {
		budget := editBudget(len([]rune(kw)))
		for _, tok := range tokens {
			if abs(len([]rune(tok.text))-len([]rune(kw))) > budget {
				continue
			}
			dist := levenshtein(tok.text, kw)
			if dist > budget {
				continue
			}
			sim := 1.0 - float64(dist)/float64(len([]rune(kw)))
			if sim > ev.Score {
				ev.Score = sim
				ev.Span = &entity.Offsets{Start: tok.start, End: tok.end}
			}
			if dist > 0 {
				ev.Keywords = appendUnique(ev.Keywords, kw)
			}
		}
	}
	return ev
}

// editBudget is the tolerated edit distance for a keyword of the given rune
// length. Short keywords only match exactly to avoid false positives.
func editBudget(keywordLen int) int {
	switch {
	case keywordLen <= 3:
		return 0
	case keywordLen <= 6:
		return 1
	default:
		return 2
	}
}

// --- context (co-occurrence) scoring ---

type contextStrategy struct{}

func (contextStrategy) Name() string  { return StrategyContext }
func (contextStrategy) Priority() int { return 3 }

func (contextStrategy) Evaluate(text, lower string, p Profile) Evidence {
	ev := Evidence{}
	if len(p.ContextTerms) == 0 {
		return ev
	}
	hits := 0
	for _, term := range p.ContextTerms {
		if start, end, ok := findWord(lower, term); ok {
			hits++
			ev.Keywords = append(ev.Keywords, term)
			if ev.Span == nil {
				ev.Span = &entity.Offsets{Start: start, End: end}
			}
		}
	}
	ev.Score = float64(hits) / float64(len(p.ContextTerms))
	return ev
}

// --- helpers ---

// foldLower lowercases text while keeping every byte offset aligned with the
// original: a rune is only folded when its lowercase form has the same UTF-8
// length, so spans found in the folded string slice the original safely.
// Runes left unfolded (e.g. the Kelvin sign) never occur in profile keywords.
func foldLower(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		l := unicode.ToLower(r)
		if utf8.RuneLen(l) == utf8.RuneLen(r) {
			r = l
		}
		b.WriteRune(r)
	}
	return b.String()
}

type token struct {
	text       string
	start, end int
}

var tokenPattern = regexp.MustCompile(`[\pL\pN][\pL\pN_/-]*`)

func tokenize(lower string) []token {
	var out []token
	for _, loc := range tokenPattern.FindAllStringIndex(lower, -1) {
		out = append(out, token{text: lower[loc[0]:loc[1]], start: loc[0], end: loc[1]})
	}
	return out
}

// findWord locates needle in haystack on word boundaries and returns its
// byte offsets.
func findWord(haystack, needle string) (int, int, bool) {
	if needle == "" {
		return 0, 0, false
	}
	from := 0
	for {
		idx := indexFrom(haystack, needle, from)
		if idx < 0 {
			return 0, 0, false
		}
		end := idx + len(needle)
		if boundaryBefore(haystack, idx) && boundaryAfter(haystack, end) {
			return idx, end, true
		}
		from = idx + 1
	}
}

func indexFrom(s, sub string, from int) int {
	if from >= len(s) {
		return -1
	}
	idx := strings.Index(s[from:], sub)
	if idx < 0 {
		return -1
	}
	return from + idx
}

func boundaryBefore(s string, idx int) bool {
	if idx == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:idx])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, idx int) bool {
	if idx >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[idx:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func appendUnique(dst []string, s string) []string {
	for _, have := range dst {
		if have == s {
			return dst
		}
	}
	return append(dst, s)
}
