package sync

import (
	"strings"
	"unicode"
)

// LabelResolver translates coded select-question answers into their
// human-readable labels using the form schema. A nil resolver passes every
// value through unchanged, which is how a failed schema fetch degrades.
type LabelResolver struct {
	// folded list name -> choice code -> label
	lists map[string]map[string]string
	// question name (leaf) -> folded list name
	questionLists map[string]string
	// question name -> accepts multiple answers
	multi map[string]bool
}

// NewLabelResolver builds the lookup tables from a fetched asset
func NewLabelResolver(asset *Asset, preferredLang string) *LabelResolver {
	r := &LabelResolver{
		lists:         make(map[string]map[string]string),
		questionLists: make(map[string]string),
		multi:         make(map[string]bool),
	}
	if asset == nil || asset.Content == nil {
		return r
	}

	translations := asset.Content.Translations

	for _, choice := range asset.Content.Choices {
		listName := fold(choice.ListName)
		if listName == "" {
			continue
		}
		label, ok := choice.Label.Resolve(translations, preferredLang)
		if !ok || label == "" {
			label = choice.Name
		}
		if r.lists[listName] == nil {
			r.lists[listName] = make(map[string]string)
		}
		r.lists[listName][choice.Name] = label
	}

	for _, q := range asset.Content.Survey {
		listName := q.SelectFromListName
		qType := strings.TrimSpace(q.Type)

		isSelectOne := strings.HasPrefix(qType, "select_one")
		isSelectMultiple := strings.HasPrefix(qType, "select_multiple")
		if !isSelectOne && !isSelectMultiple {
			continue
		}

		// type strings may embed the list name: "select_one yes_no"
		if listName == "" {
			parts := strings.Fields(qType)
			if len(parts) > 1 {
				listName = parts[1]
			}
		}
		if listName == "" || q.Name == "" {
			continue
		}

		r.questionLists[q.Name] = fold(listName)
		r.multi[q.Name] = isSelectMultiple
	}

	return r
}

// Resolve maps the raw answer of the given field path to its label(s).
// Non-select fields and unknown codes pass through unchanged. Multi-select
// answers come back as a list of labels.
func (r *LabelResolver) Resolve(fieldPath string, value interface{}) interface{} {
	if r == nil || value == nil {
		return value
	}

	leaf := fieldPath
	if idx := strings.LastIndex(fieldPath, "/"); idx >= 0 {
		leaf = fieldPath[idx+1:]
	}

	listName, ok := r.questionLists[leaf]
	if !ok {
		return value
	}
	choices := r.lists[listName]

	if r.multi[leaf] {
		return r.resolveMulti(choices, value)
	}

	raw, ok := value.(string)
	if !ok {
		return value
	}
	if label, ok := choices[strings.TrimSpace(raw)]; ok {
		return label
	}
	return value
}

func (r *LabelResolver) resolveMulti(choices map[string]string, value interface{}) interface{} {
	var tokens []string
	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				tokens = append(tokens, strings.TrimSpace(s))
			}
		}
	case []string:
		tokens = v
	case string:
		// select_multiple answers arrive space-separated; tolerate commas too
		tokens = strings.FieldsFunc(v, func(c rune) bool {
			return c == ',' || unicode.IsSpace(c)
		})
	default:
		return value
	}

	labels := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if label, ok := choices[token]; ok {
			labels = append(labels, label)
		} else {
			labels = append(labels, token)
		}
	}
	return labels
}
