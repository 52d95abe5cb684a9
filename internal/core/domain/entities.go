package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// properNounPattern matches runs of two or more capitalized words,
// e.g. "Acme Holdings" or "Jane Doe Smith".
var properNounPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)

// Phrases containing these words are usually sentence starts, not names.
var properNounStopWords = []string{"The", "This", "That", "These", "Those", "Their", "Your", "Our"}

const maxTargetPhrases = 2

// ExtractProperNouns returns up to two distinct capitalized multi-word
// phrases from content, in order of appearance. It never fails; content
// without matches yields nil.
func ExtractProperNouns(content string) []string {
	matches := properNounPattern.FindAllString(content, -1)

	var phrases []string
	seen := make(map[string]bool)
	for _, m := range matches {
		if containsStopWord(m) || seen[m] {
			continue
		}
		seen[m] = true
		phrases = append(phrases, m)
		if len(phrases) == maxTargetPhrases {
			break
		}
	}
	return phrases
}

func containsStopWord(phrase string) bool {
	for _, w := range strings.Fields(phrase) {
		for _, stop := range properNounStopWords {
			if w == stop {
				return true
			}
		}
	}
	return false
}

// NotificationTarget names who or what an alert is about. The first detected
// entity wins; otherwise proper nouns are pulled from the content. Returns ""
// when nothing usable is found.
func NotificationTarget(a Alert) string {
	if len(a.DetectedEntities) > 0 {
		if e := strings.TrimSpace(a.DetectedEntities[0]); e != "" {
			return e
		}
	}
	return strings.Join(ExtractProperNouns(a.Content), ", ")
}

// Excerpt shortens s to at most max runes, marking the cut with "...".
func Excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max < 3 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}
