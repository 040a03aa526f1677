// Package faq scores customer messages against a keyword-tagged knowledge
// base and returns the best matching answer, plus a canned inline fallback
// for when the knowledge base has no confident match.
package faq

import (
	"regexp"
	"sort"
	"strings"
)

// Entry is one knowledge-base record: a topic question, its answer, and the
// keywords that pull queries towards it. Multi-word keywords are matched as
// phrases, single words against the query's token set.
type Entry struct {
	ID       int64
	Question string
	Answer   string
	Keywords []string
}

// Match is a successful lookup. Label is the entry's question, which doubles
// as the issue label when the customer later asks for a ticket.
type Match struct {
	Answer string
	Label  string
	Score  float64
}

// matchThreshold is the minimum score an entry needs to be returned at all.
const matchThreshold = 1.0

// stopWords are dropped from the query before single-word keyword scoring.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "to": {}, "for": {},
	"of": {}, "in": {}, "on": {}, "is": {}, "are": {}, "i": {}, "my": {},
	"me": {}, "it": {}, "this": {}, "that": {}, "with": {}, "was": {},
	"had": {}, "have": {}, "has": {}, "please": {}, "hi": {}, "hello": {}, "hey": {},
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize lowercases text, splits it into alphanumeric words, and drops
// stop words.
func Tokenize(text string) []string {
	words := tokenRe.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; !stop {
			out = append(out, w)
		}
	}
	return out
}

// Best scores query against every entry and returns the highest scorer, or
// nil when no entry clears the threshold.
//
// Scoring: +2 for each multi-word keyword contained verbatim in the lowercased
// query, +1 for each single-word keyword present in the token set. Ties keep
// the first entry encountered, so the knowledge base's ordering is stable and
// meaningful. A nil result means "no confident match", not "no answer exists".
func Best(query string, entries []Entry) *Match {
	q := strings.ToLower(query)
	tokens := make(map[string]struct{})
	for _, tok := range Tokenize(query) {
		tokens[tok] = struct{}{}
	}

	var best *Entry
	bestScore := 0.0

	for i := range entries {
		e := &entries[i]
		score := 0.0
		for _, kw := range e.Keywords {
			kw = strings.TrimSpace(strings.ToLower(kw))
			if kw == "" {
				continue
			}
			if strings.Contains(kw, " ") {
				if strings.Contains(q, kw) {
					score += 2.0
				}
			} else if _, ok := tokens[kw]; ok {
				score += 1.0
			}
		}
		if score > bestScore {
			best, bestScore = e, score
		}
	}

	if best == nil || bestScore < matchThreshold {
		return nil
	}
	return &Match{Answer: best.Answer, Label: best.Question, Score: bestScore}
}

// ParseKeywords splits a comma-separated keyword column into trimmed,
// lowercased keywords, dropping empties.
func ParseKeywords(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if kw := strings.ToLower(strings.TrimSpace(p)); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// NormalizeKeywords lowercases, trims, de-duplicates, and sorts keywords,
// returning the canonical comma-separated form stored in the database.
func NormalizeKeywords(keywords []string) string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
