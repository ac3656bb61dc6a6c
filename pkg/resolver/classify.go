package resolver

import (
	"strings"
	"unicode"

	"github.com/caseframe/backend/pkg/common"
)

// Structural cues only; no lookups. Organization markers are checked before
// the person pattern so "Deutsche Bank AG" does not classify as a person.
var orgKeywords = map[string]bool{
	"inc": true, "llc": true, "llp": true, "ltd": true, "plc": true,
	"gmbh": true, "corp": true, "corporation": true, "co": true,
	"company": true, "companies": true, "foundation": true, "trust": true,
	"bank": true, "group": true, "holdings": true, "partners": true,
	"associates": true, "capital": true, "fund": true, "enterprises": true,
	"airlines": true, "aviation": true, "university": true,
	"institute": true, "agency": true, "firm": true, "committee": true,
	"department": true, "bureau": true, "commission": true,
}

var geoKeywords = map[string]bool{
	"island": true, "islands": true, "county": true, "city": true,
	"town": true, "beach": true, "street": true, "avenue": true,
	"boulevard": true, "road": true, "airport": true, "harbor": true,
	"bay": true, "lake": true, "river": true, "mountain": true,
	"valley": true, "park": true, "estate": true, "ranch": true,
	"villa": true, "district": true, "province": true, "republic": true,
	"territory": true, "peninsula": true,
}

// ClassifyName infers an entity class from the shape of a display name.
// Returns ClassUnknown when no cue fires; the classification pass only ever
// narrows Unknown, so an inconclusive answer leaves the entity untouched.
func ClassifyName(name string) common.EntityClass {
	tokens := strings.Fields(name)
	if len(tokens) == 0 {
		return common.ClassUnknown
	}

	for _, tok := range tokens {
		key := strings.ToLower(strings.Trim(tok, ".,()"))
		if orgKeywords[key] {
			return common.ClassOrganization
		}
	}

	for _, tok := range tokens {
		key := strings.ToLower(strings.Trim(tok, ".,()"))
		if geoKeywords[key] {
			return common.ClassLocation
		}
	}

	if len(tokens) >= 2 && allCapitalizedWords(tokens) {
		return common.ClassPerson
	}

	return common.ClassUnknown
}

// allCapitalizedWords reports whether every token is a capitalized word:
// an upper-case initial followed by at least one lower-case letter.
// Particles like "van" or "de" are tolerated between capitalized tokens.
func allCapitalizedWords(tokens []string) bool {
	capitalized := 0
	for _, tok := range tokens {
		runes := []rune(strings.Trim(tok, ".,'"))
		if len(runes) == 0 {
			return false
		}
		if unicode.IsUpper(runes[0]) {
			hasLower := false
			for _, r := range runes[1:] {
				if unicode.IsLower(r) {
					hasLower = true
					break
				}
			}
			if !hasLower && len(runes) > 1 {
				return false
			}
			capitalized++
			continue
		}
		if !isNameParticle(string(runes)) {
			return false
		}
	}
	return capitalized >= 2
}

var nameParticles = map[string]bool{
	"van": true, "von": true, "de": true, "del": true, "della": true,
	"da": true, "di": true, "la": true, "le": true, "el": true,
	"bin": true, "al": true, "ter": true, "den": true,
}

func isNameParticle(tok string) bool {
	return nameParticles[strings.ToLower(tok)]
}
