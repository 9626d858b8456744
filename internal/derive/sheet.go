package derive

import (
	"encoding/json"
	"slices"

	"github.com/MrWong99/aether/pkg/projection"
	"github.com/MrWong99/aether/pkg/types"
)

// Section is a fully resolved sheet section.
type Section struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Visible bool   `json:"visible"`
	Order   int    `json:"order"`
}

var sectionTitles = map[string]string{
	"stats":       "Stats",
	"resources":   "Resources",
	"currencies":  "Currencies",
	"reputations": "Reputations",
}

// DefaultSections is the sheet layout used when settings configure none.
var DefaultSections = []Section{
	{Key: "stats", Title: "Stats", Visible: true, Order: 1},
	{Key: "resources", Title: "Resources", Visible: true, Order: 2},
	{Key: "currencies", Title: "Currencies", Visible: true, Order: 3},
	{Key: "reputations", Title: "Reputations", Visible: true, Order: 4},
}

// SheetSections resolves the configured sheet layout, sorted by order.
// Missing titles fall back to the built-in label or the key, missing
// visibility means visible and a missing order means list position.
func SheetSections(settings *types.Settings) []Section {
	if settings == nil || len(settings.SheetSections) == 0 {
		return slices.Clone(DefaultSections)
	}
	out := make([]Section, 0, len(settings.SheetSections))
	for i, cfg := range settings.SheetSections {
		sec := Section{Key: cfg.Key, Title: cfg.Title, Visible: true, Order: i + 1}
		if sec.Title == "" {
			sec.Title = sectionTitles[cfg.Key]
		}
		if sec.Title == "" {
			sec.Title = cfg.Key
		}
		if cfg.Visible != nil {
			sec.Visible = *cfg.Visible
		}
		if cfg.Order != nil {
			sec.Order = *cfg.Order
		}
		out = append(out, sec)
	}
	slices.SortStableFunc(out, func(a, b Section) int { return a.Order - b.Order })
	return out
}

// SheetSectionsKey returns a stable key for the resolved layout. Renderers
// compare it with [projection.Store.SheetSectionsKey] to skip rebuilding an
// unchanged sheet.
func SheetSectionsKey(settings *types.Settings) string {
	b, err := json.Marshal(SheetSections(settings))
	if err != nil {
		return ""
	}
	return string(b)
}

// SheetNeedsRebuild reports whether the cached layout key of s is stale and,
// if so, stores the fresh key.
func SheetNeedsRebuild(s *projection.Store) bool {
	key := SheetSectionsKey(s.Settings)
	if key == s.SheetSectionsKey {
		return false
	}
	s.SheetSectionsKey = key
	return true
}
