package allergens

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"hibococina/models"
)

// Proposal is an allergen suggested by keyword matching. It is advisory only.
type Proposal struct {
	Code     string `json:"codigo,omitempty"`
	CustomID uint   `json:"alergeno_personalizado_id,omitempty"`
	Name     string `json:"nombre"`
	Keyword  string `json:"palabra_clave"`
}

// Normalize lowercases text and strips diacritics so "Sésamo" matches "sesamo".
func Normalize(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}
	return strings.ToLower(strings.TrimSpace(out))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenMatches accepts simple Spanish plurals of the keyword.
func tokenMatches(token, keyword string) bool {
	return token == keyword || token == keyword+"s" || token == keyword+"es"
}

func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
	for start := 0; start+len(phrase) <= len(tokens); start++ {
		matched := true
		for i, word := range phrase {
			if !tokenMatches(tokens[start+i], word) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func firstMatch(tokens []string, keywords []string) (string, bool) {
	for _, keyword := range keywords {
		if containsPhrase(tokens, tokenize(keyword)) {
			return keyword, true
		}
	}
	return "", false
}

// Detect matches free text against the keyword lists of the official and
// custom allergens. Each allergen is proposed at most once.
func Detect(text string, official []models.AllergenDefinition, custom []models.CustomAllergen) []Proposal {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	var proposals []Proposal
	for _, def := range official {
		if keyword, ok := firstMatch(tokens, def.Keywords); ok {
			proposals = append(proposals, Proposal{Code: def.Code, Name: def.Name, Keyword: keyword})
		}
	}
	for _, tag := range custom {
		if keyword, ok := firstMatch(tokens, tag.Keywords); ok {
			proposals = append(proposals, Proposal{CustomID: tag.ID, Name: tag.Name, Keyword: keyword})
		}
	}
	return proposals
}

// Suggest proposes allergens for an ingredient from its name, leaving out
// anything the ingredient already carries. It never modifies the ingredient.
func Suggest(ingredient models.Ingredient, official []models.AllergenDefinition, custom []models.CustomAllergen) []Proposal {
	linked := make(map[uint]struct{}, len(ingredient.CustomAllergens))
	for _, tag := range ingredient.CustomAllergens {
		linked[tag.ID] = struct{}{}
	}

	var out []Proposal
	for _, proposal := range Detect(ingredient.Name, official, custom) {
		if proposal.Code != "" && ingredient.Allergens.Has(proposal.Code) {
			continue
		}
		if proposal.CustomID != 0 {
			if _, ok := linked[proposal.CustomID]; ok {
				continue
			}
		}
		out = append(out, proposal)
	}
	return out
}
