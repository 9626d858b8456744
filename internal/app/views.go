package app

import (
	"cmp"
	"errors"
	"slices"

	"github.com/MrWong99/aether/internal/derive"
	"github.com/MrWong99/aether/pkg/projection"
	"github.com/MrWong99/aether/pkg/types"
)

// ErrNotFound is returned by the view-state setters for ids the projection
// does not know.
var ErrNotFound = errors.New("app: not found")

// Views are the derived read models a console renders from the projection.
type Views struct {
	Progress         derive.Progress  `json:"progress"`
	UnspentPoints    int              `json:"unspent_stat_points"`
	NextLevelPoints  int              `json:"next_level_stat_points"`
	EarnedStatPoints int              `json:"earned_stat_points"`
	Sheet            []derive.Section `json:"sheet"`
	Items            []ItemView       `json:"items"`
	Messages         []MessageView    `json:"messages"`
	SelectedChatID   string           `json:"selected_chat_id,omitempty"`
}

// ItemView is one inventory row.
type ItemView struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Qty        int          `json:"qty"`
	Slots      []types.Slot `json:"slots"`
	EquippedIn []types.Slot `json:"equipped_in,omitempty"`
	Selected   bool         `json:"selected,omitempty"`
}

// MessageView is one system message row, newest first.
type MessageView struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Severity  types.Severity `json:"severity"`
	Collapsed bool           `json:"collapsed"`
	Answered  bool           `json:"answered"`
}

// ─── Render cache ───────────────────────────────────────────────────────────

// rebuildSheet refreshes the cached sheet layout when the configured
// sections changed since the last render. Called with the reconciler lock
// held.
func (a *App) rebuildSheet(s *projection.Store) {
	if !derive.SheetNeedsRebuild(s) && a.sheet != nil {
		return
	}
	a.sheet = derive.SheetSections(s.Settings)
	a.sheetBuilds.Add(1)
}

// SheetBuilds returns how many times the sheet layout was rebuilt.
func (a *App) SheetBuilds() int64 { return a.sheetBuilds.Load() }

// ─── Read models ────────────────────────────────────────────────────────────

// Views computes the derived read models of the current projection.
func (a *App) Views() Views {
	var v Views
	a.rec.View(func(s *projection.Store) { v = a.buildViews(s) })
	return v
}

// buildViews must be called with the reconciler lock held.
func (a *App) buildViews(s *projection.Store) Views {
	sheet := a.sheet
	if sheet == nil {
		sheet = derive.SheetSections(s.Settings)
	}
	v := Views{
		Sheet:          slices.Clone(sheet),
		Items:          []ItemView{},
		Messages:       []MessageView{},
		SelectedChatID: s.SelectedChatID,
	}

	if c := s.Character; c != nil {
		v.Progress = derive.LevelProgress(c, s.Settings)
		v.UnspentPoints = c.UnspentStatPoints
		if s.Settings != nil {
			v.NextLevelPoints = derive.StatPointsOnLevel(c.Level+1, s.Settings.StatRule)
			v.EarnedStatPoints = derive.StatPointsForRange(1, c.Level, s.Settings.StatRule)
		}
		for id, item := range c.Inventory {
			slots := derive.ItemSlots(s, id)
			if slots == nil {
				slots = []types.Slot{}
			}
			v.Items = append(v.Items, ItemView{
				ID:         id,
				Name:       derive.ItemName(s, id),
				Qty:        item.Qty,
				Slots:      slots,
				EquippedIn: derive.EquippedIn(c, id),
				Selected:   id == s.SelectedItemID,
			})
		}
		slices.SortFunc(v.Items, func(a, b ItemView) int {
			return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
		})
	}

	for _, m := range derive.MessagesNewestFirst(s) {
		v.Messages = append(v.Messages, MessageView{
			ID:        m.ID,
			Title:     m.Title,
			Severity:  m.Severity,
			Collapsed: derive.MessageCollapsed(s, m),
			Answered:  m.ChosenOptionID != nil && *m.ChosenOptionID != "",
		})
	}
	return v
}

// ─── Catalog search ─────────────────────────────────────────────────────────

// SearchItemTemplates returns copies of the item templates passing f,
// sorted by name.
func (a *App) SearchItemTemplates(f derive.ItemFilter) []types.ItemTemplate {
	var out []types.ItemTemplate
	a.rec.View(func(s *projection.Store) {
		for _, tpl := range s.ItemTemplates {
			if derive.ItemTemplateMatches(tpl, f, s.Classes) {
				out = append(out, *tpl)
			}
		}
	})
	slices.SortFunc(out, func(a, b types.ItemTemplate) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// SearchQuestTemplates returns copies of the quest templates passing f,
// sorted by name.
func (a *App) SearchQuestTemplates(f derive.QuestFilter) []types.QuestTemplate {
	var out []types.QuestTemplate
	a.rec.View(func(s *projection.Store) {
		for _, tpl := range s.QuestTemplates {
			if derive.QuestTemplateMatches(tpl, f) {
				out = append(out, *tpl)
			}
		}
	})
	slices.SortFunc(out, func(a, b types.QuestTemplate) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// SearchMessageTemplates returns copies of the message templates passing f,
// sorted by name.
func (a *App) SearchMessageTemplates(f derive.MessageFilter) []types.MessageTemplate {
	var out []types.MessageTemplate
	a.rec.View(func(s *projection.Store) {
		for _, tpl := range s.MessageTemplates {
			if derive.MessageTemplateMatches(tpl, f) {
				out = append(out, *tpl)
			}
		}
	})
	slices.SortFunc(out, func(a, b types.MessageTemplate) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// ─── View state ─────────────────────────────────────────────────────────────

// SelectItem selects an inventory item; an empty id clears the selection.
func (a *App) SelectItem(id string) error {
	return a.updateView(func(s *projection.Store) bool { return s.SelectItem(id) })
}

// SelectChat opens a chat thread; an empty id closes the chat pane.
func (a *App) SelectChat(id string) error {
	return a.updateView(func(s *projection.Store) bool { return s.SelectChat(id) })
}

// SetMessageCollapsed toggles a collapsible system message.
func (a *App) SetMessageCollapsed(id string, collapsed bool) error {
	return a.updateView(func(s *projection.Store) bool { return s.SetMessageCollapsed(id, collapsed) })
}

func (a *App) updateView(fn func(s *projection.Store) bool) error {
	if !a.rec.UpdateView(fn) {
		return ErrNotFound
	}
	return nil
}
