package namekit

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	minNameLen     = 3
	maxNameLen     = 60
	maxTokens      = 5
	minLetterRatio = 0.5
)

// functionWords are sentence openers that mark an extracted string as a
// fragment rather than a name. Matched against the first token only.
var functionWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "because": true, "been": true, "but": true, "by": true,
	"dear": true, "for": true, "from": true, "he": true, "here": true,
	"how": true, "i": true, "if": true, "in": true, "is": true, "it": true,
	"no": true, "not": true, "of": true, "on": true, "or": true, "per": true,
	"she": true, "so": true, "subject": true, "than": true, "that": true,
	"the": true, "then": true, "there": true, "these": true, "they": true,
	"this": true, "those": true, "to": true, "was": true, "we": true,
	"were": true, "what": true, "when": true, "where": true, "which": true,
	"who": true, "whom": true, "whose": true, "why": true, "with": true,
	"yes": true, "you": true,
}

// multilineWhitelist lists known legitimate multi-line name variants, e.g.
// letterhead blocks that split an organization name across lines.
var multilineWhitelist = map[string]bool{
	"united states district court\nsouthern district of new york": true,
	"united states district court\nsouthern district of florida":  true,
}

var (
	reEmail      = regexp.MustCompile(`\S+@\S+\.\S+`)
	reURL        = regexp.MustCompile(`(?i)^(https?://|www\.)|://`)
	reBareNumber = regexp.MustCompile(`^[\d.,\-/#]+$`)
	reAcronym    = regexp.MustCompile(`^[A-Za-z]{1,3}$`)
	reFilePath   = regexp.MustCompile(`(?i)([/\\]|\.(pdf|txt|doc|docx|jpg|png|tif|tiff|csv|xls|xlsx)$)`)
)

// IsJunk decides whether a candidate name is extraction noise rather than a
// real entity mention. The rules are deliberately over-inclusive: losing a
// few rare real names is accepted in exchange for recall on junk, because
// junk dominates raw extraction output.
//
// Pure and order-independent; safe to re-run against the same value any
// number of times.
func IsJunk(name string) bool {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return true
	}

	if strings.ContainsAny(trimmed, "\r\n") {
		normalized := strings.ToLower(strings.ReplaceAll(trimmed, "\r\n", "\n"))
		// Whitelisted multi-line variants are known-good names as a whole.
		return !multilineWhitelist[normalized]
	}

	runes := []rune(trimmed)
	if len(runes) < minNameLen || len(runes) > maxNameLen {
		return true
	}

	tokens := strings.Fields(trimmed)
	if len(tokens) > maxTokens {
		return true
	}

	if functionWords[strings.ToLower(tokens[0])] {
		return true
	}

	if reBareNumber.MatchString(trimmed) {
		return true
	}
	if len(tokens) == 1 && reAcronym.MatchString(trimmed) {
		return true
	}
	if reEmail.MatchString(trimmed) {
		return true
	}
	if reURL.MatchString(trimmed) {
		return true
	}
	if reFilePath.MatchString(trimmed) {
		return true
	}

	if !containsVowel(trimmed) {
		return true
	}
	if letterRatio(trimmed) < minLetterRatio {
		return true
	}

	return false
}

func containsVowel(s string) bool {
	return strings.ContainsAny(strings.ToLower(s), "aeiouàáèéìíòóùúöüä")
}

// letterRatio is the share of non-space characters that are letters.
func letterRatio(s string) float64 {
	letters, total := 0, 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(letters) / float64(total)
}
