package derive

import (
	"slices"
	"strings"

	"github.com/MrWong99/aether/pkg/types"
)

// NormalizeSearch trims and lower-cases a search query.
func NormalizeSearch(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// ItemFilter narrows the item template catalog. Zero fields match all.
type ItemFilter struct {
	Type      string
	Rarity    string
	TwoHanded bool
	// ClassID hides types the class cannot use.
	ClassID string
	Query   string
}

// ItemTemplateMatches reports whether tpl passes f. The query is matched
// against name, description, type, rarity and tags.
func ItemTemplateMatches(tpl *types.ItemTemplate, f ItemFilter, classes map[string]*types.ClassDefinition) bool {
	if tpl == nil {
		return false
	}
	if f.Type != "" && tpl.ItemType != f.Type {
		return false
	}
	if f.Rarity != "" && tpl.Rarity != f.Rarity {
		return false
	}
	if f.TwoHanded && !tpl.TwoHanded {
		return false
	}
	if f.ClassID != "" {
		if class := classes[f.ClassID]; class != nil && len(class.AllowedItemTypes) > 0 &&
			!slices.Contains(class.AllowedItemTypes, tpl.ItemType) {
			return false
		}
	}
	return matchQuery(f.Query, tpl.Name, tpl.Description, tpl.ItemType, tpl.Rarity, strings.Join(tpl.Tags, " "))
}

// QuestFilter narrows the quest template catalog.
type QuestFilter struct {
	OnlyMandatory bool
	Query         string
}

// QuestTemplateMatches reports whether tpl passes f.
func QuestTemplateMatches(tpl *types.QuestTemplate, f QuestFilter) bool {
	if tpl == nil {
		return false
	}
	if f.OnlyMandatory && !tpl.CannotDecline {
		return false
	}
	return matchQuery(f.Query, tpl.Name, tpl.Description)
}

// MessageFilter narrows the message template catalog.
type MessageFilter struct {
	Severity types.Severity
	Query    string
}

// MessageTemplateMatches reports whether tpl passes f.
func MessageTemplateMatches(tpl *types.MessageTemplate, f MessageFilter) bool {
	if tpl == nil {
		return false
	}
	if f.Severity != "" && tpl.Severity != f.Severity {
		return false
	}
	return matchQuery(f.Query, tpl.Name, tpl.Title, tpl.Body)
}

func matchQuery(query string, fields ...string) bool {
	q := NormalizeSearch(query)
	if q == "" {
		return true
	}
	return strings.Contains(NormalizeSearch(strings.Join(fields, " ")), q)
}
