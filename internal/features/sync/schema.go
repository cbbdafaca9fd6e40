package sync

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Asset is the remote form definition
type Asset struct {
	UID     string        `json:"uid"`
	Name    string        `json:"name"`
	Content *AssetContent `json:"content"`
}

// AssetContent carries the parts of the schema label resolution needs
type AssetContent struct {
	Survey       []SurveyQuestion `json:"survey"`
	Choices      []Choice         `json:"choices"`
	Translations []string         `json:"translations"`
}

// SurveyQuestion is one question row of the form schema
type SurveyQuestion struct {
	Type               string   `json:"type"`
	Name               string   `json:"name"`
	Label              LabelSet `json:"label"`
	SelectFromListName string   `json:"select_from_list_name"`
}

// Choice is one entry of a choice list
type Choice struct {
	ListName string   `json:"list_name"`
	Name     string   `json:"name"`
	Label    LabelSet `json:"label"`
}

// LabelSet is a multilingual label. Kobo serializes labels three ways: a bare
// string, an array aligned with content.translations, or a language-keyed map.
type LabelSet struct {
	text   string
	list   []*string
	byLang map[string]string
}

func (l *LabelSet) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		l.text = text
		return nil
	}

	var list []*string
	if err := json.Unmarshal(data, &list); err == nil {
		l.list = list
		return nil
	}

	var byLang map[string]string
	if err := json.Unmarshal(data, &byLang); err == nil {
		l.byLang = byLang
		return nil
	}

	// Unknown shape: leave the label empty rather than failing the schema fetch
	return nil
}

// Resolve picks the label text for the preferred language. Falls back to the
// first available language when the preferred one is absent or unset.
func (l LabelSet) Resolve(translations []string, preferred string) (string, bool) {
	if l.text != "" {
		return l.text, true
	}

	if len(l.list) > 0 {
		if preferred != "" {
			for i, lang := range translations {
				if i < len(l.list) && l.list[i] != nil && langMatches(lang, preferred) {
					return *l.list[i], true
				}
			}
		}
		for _, entry := range l.list {
			if entry != nil && *entry != "" {
				return *entry, true
			}
		}
		return "", false
	}

	if len(l.byLang) > 0 {
		if preferred != "" {
			for lang, text := range l.byLang {
				if langMatches(lang, preferred) {
					return text, true
				}
			}
		}
		keys := make([]string, 0, len(l.byLang))
		for k := range l.byLang {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return l.byLang[keys[0]], true
	}

	return "", false
}

// langMatches compares a translation tag like "Français (fr)" against a
// preferred language, ignoring case, diacritics, and surrounding whitespace.
func langMatches(available, preferred string) bool {
	a := fold(available)
	p := fold(preferred)
	if a == p {
		return true
	}
	// "English (en)" matches a preferred "en"
	return strings.Contains(a, "("+p+")")
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases, trims, and strips diacritics for insensitive matching
func fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
