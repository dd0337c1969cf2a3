package portal

import (
	"fmt"
	"regexp"
	"strings"
)

// TokenKey is the header name and script identifier carrying the session token.
const TokenKey = "sessionId"

var tokenPattern = regexp.MustCompile(`(?i)^[A-F0-9]{32}$`)

// ValidToken reports whether s is a 32 character hexadecimal token.
func ValidToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// Matcher extracts candidate tokens from a script body, in order of occurrence.
type Matcher func(script string) []string

func patternMatcher(pattern string) Matcher {
	re := regexp.MustCompile(fmt.Sprintf(pattern, regexp.QuoteMeta(TokenKey)))
	return func(script string) []string {
		out := []string{}
		for _, m := range re.FindAllStringSubmatch(script, -1) {
			out = append(out, m[1])
		}
		return out
	}
}

var (
	// HeaderSet matches setRequestHeader("sessionId", "<token>").
	HeaderSet = patternMatcher(`(?i)setRequestHeader\s*\(\s*["']%s["']\s*,\s*["']([A-F0-9]{32})["']\s*\)`)
	// ColonAssign matches sessionId: "<token>".
	ColonAssign = patternMatcher(`(?i)%s\s*:\s*['"]([A-F0-9]{32})['"]`)
	// EqualsAssign matches sessionId = "<token>".
	EqualsAssign = patternMatcher(`(?i)%s\s*=\s*['"]([A-F0-9]{32})['"]`)
	// QuotedPair matches "sessionId", "<token>".
	QuotedPair = patternMatcher(`(?i)["']%s["']\s*,\s*["']([A-F0-9]{32})["']`)
	// KeyAdjacent matches the first token following the key with no hex in between.
	KeyAdjacent = patternMatcher(`(?i)%s[^A-F0-9]*([A-F0-9]{32})`)
	// LooseAssign matches sessionId followed by ":" or "=" and a quoted token.
	LooseAssign = patternMatcher(`(?i)%s\s*[:=]\s*["']([A-F0-9]{32})["']`)
)

// DocumentMatchers are applied to inline scripts of the main document.
var DocumentMatchers = []Matcher{HeaderSet, ColonAssign, EqualsAssign, QuotedPair}

// FrameMatchers are applied to scripts of child frames.
var FrameMatchers = []Matcher{HeaderSet, ColonAssign, EqualsAssign, QuotedPair, KeyAdjacent}

// Union applies every matcher in order and keeps the first occurrence of each
// distinct candidate.
func Union(matchers ...Matcher) Matcher {
	return func(script string) []string {
		seen := map[string]bool{}
		out := []string{}
		for _, m := range matchers {
			for _, c := range m(script) {
				if seen[c] {
					continue
				}
				seen[c] = true
				out = append(out, c)
			}
		}
		return out
	}
}

// First applies matchers in order and returns the first candidate found.
func First(matchers ...Matcher) func(script string) string {
	return func(script string) string {
		for _, m := range matchers {
			if found := m(script); len(found) > 0 {
				return found[0]
			}
		}
		return ""
	}
}

// Selector picks the token to use among candidates in document order.
type Selector func(candidates []string) string

// LastMatch picks the last candidate, the portal rewrites the token as the page
// runs and appends the newest assignment after older ones.
func LastMatch(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	return candidates[len(candidates)-1]
}

func FirstMatch(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	return candidates[0]
}

// collectCandidates runs the matcher over every script mentioning the token key
// and merges the results, keeping first occurrence order across scripts.
func collectCandidates(scripts []string, matcher Matcher) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, script := range scripts {
		if !strings.Contains(script, TokenKey) {
			continue
		}
		for _, c := range matcher(script) {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
