package namekit

import (
	"strings"
	"unicode"
)

// Casefold reduces a raw name to its comparison key: lowercased, trimmed,
// internal whitespace collapsed, anything outside the alphabet stripped.
// The result is for matching only and is never used for display.
func Casefold(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// phoneticClasses groups consonants into six sound classes. Vowels and the
// near-silent h, w, y carry no class and are dropped from the key.
var phoneticClasses = map[rune]byte{
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	'd': '3', 't': '3',
	'l': '4',
	'm': '5', 'n': '5',
	'r': '6',
}

const phoneticKeyLen = 8

// PhoneticKey computes a coarse consonant-class code for bucketing candidate
// names before the expensive edit-distance comparison. It runs in linear
// time and deliberately produces few, large buckets: true duplicates almost
// always share one.
//
// The leading letter is preserved, following consonants map to their class
// digit, adjacent repeats of the same class collapse, and the key is cut at
// eight symbols.
func PhoneticKey(name string) string {
	folded := Casefold(name)
	if folded == "" {
		return ""
	}

	key := make([]byte, 0, phoneticKeyLen)
	var lastClass byte

	for _, r := range folded {
		if r == ' ' {
			continue
		}
		if len(key) == 0 {
			key = append(key, byte(unicode.ToUpper(r)))
			lastClass = phoneticClasses[r]
			continue
		}

		class, ok := phoneticClasses[r]
		if !ok {
			lastClass = 0
			continue
		}
		if class == lastClass {
			continue
		}
		key = append(key, class)
		lastClass = class
		if len(key) == phoneticKeyLen {
			break
		}
	}

	return string(key)
}

// ocrDigrams are two-character scan confusions, applied before single
// characters so "rn" becomes "m" rather than two independent fixes.
var ocrDigrams = [][2]string{
	{"rn", "m"},
	{"vv", "w"},
	{"cl", "d"},
	{"nn", "m"},
}

// ocrChars are digit/letter confusions common in OCR output.
var ocrChars = map[rune]rune{
	'0': 'o',
	'1': 'l',
	'5': 's',
	'8': 'b',
	'|': 'l',
}

// OCRCorrect applies the fixed table of common scan-error substitutions and
// reports whether the result differs from the input. A correction that would
// produce an empty or non-alphabetic string is rejected. Callers must
// re-check the corrected form against the entity store before accepting it;
// a correction is a lookup hint, never a new identity.
func OCRCorrect(name string) (string, bool) {
	corrected := name
	for _, sub := range ocrDigrams {
		corrected = strings.ReplaceAll(corrected, sub[0], sub[1])
	}
	corrected = strings.Map(func(r rune) rune {
		if repl, ok := ocrChars[r]; ok {
			return repl
		}
		return r
	}, corrected)

	if corrected == name {
		return name, false
	}
	if !isAlphabetic(corrected) {
		return name, false
	}
	return corrected, true
}

func isAlphabetic(s string) bool {
	hasLetter := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsSpace(r) || r == '.' || r == '\'' || r == '-' || r == ',':
		default:
			return false
		}
	}
	return hasLetter
}
