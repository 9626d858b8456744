package derive

import (
	"reflect"
	"testing"

	"github.com/MrWong99/aether/pkg/projection"
	"github.com/MrWong99/aether/pkg/types"
)

func ptr[T any](v T) *T { return &v }

func TestXPToNext(t *testing.T) {
	t.Parallel()

	curve := &types.Settings{XPCurve: types.XPCurve{BaseXP: 100, GrowthRate: 1.5}}
	tests := []struct {
		name     string
		level    int
		settings *types.Settings
		want     int
	}{
		{name: "level 1", level: 1, settings: curve, want: 100},
		{name: "level 2", level: 2, settings: curve, want: 150},
		{name: "level 3 rounds", level: 3, settings: curve, want: 225},
		{name: "level 4 rounds half up", level: 4, settings: curve, want: 338},
		{name: "level below 1 treated as 1", level: 0, settings: curve, want: 100},
		{name: "nil settings", level: 1, settings: nil, want: 0},
		{name: "no base", level: 1, settings: &types.Settings{XPCurve: types.XPCurve{GrowthRate: 2}}, want: 0},
		{name: "zero growth past level 1", level: 2, settings: &types.Settings{XPCurve: types.XPCurve{BaseXP: 10}}, want: 0},
		{name: "overflow caps", level: 500, settings: &types.Settings{XPCurve: types.XPCurve{BaseXP: 100, GrowthRate: 10}}, want: maxXPToNext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := XPToNext(tt.level, tt.settings); got != tt.want {
				t.Errorf("XPToNext(%d) = %d, want %d", tt.level, got, tt.want)
			}
		})
	}
}

func TestLevelProgress(t *testing.T) {
	t.Parallel()

	settings := &types.Settings{XPCurve: types.XPCurve{BaseXP: 200, GrowthRate: 1}}
	got := LevelProgress(&types.Character{Level: 2, XP: 50}, settings)
	want := Progress{Level: 2, XP: 50, Needed: 200, Percent: 25}
	if got != want {
		t.Errorf("LevelProgress = %+v, want %+v", got, want)
	}

	if p := LevelProgress(&types.Character{Level: 1, XP: 50}, nil); p.Percent != 0 || p.Needed != 0 {
		t.Errorf("progress without curve = %+v", p)
	}
	if p := LevelProgress(nil, settings); p != (Progress{}) {
		t.Errorf("progress without character = %+v", p)
	}
}

func TestStatPointsOnLevel(t *testing.T) {
	t.Parallel()

	rule := types.StatRule{BasePerLevel: 3, BonusEvery5: 2, BonusEvery10: 5}
	tests := []struct {
		level int
		want  int
	}{
		{level: 1, want: 3},
		{level: 5, want: 5},
		{level: 10, want: 10},
		{level: 15, want: 5},
		{level: 20, want: 10},
	}
	for _, tt := range tests {
		if got := StatPointsOnLevel(tt.level, rule); got != tt.want {
			t.Errorf("StatPointsOnLevel(%d) = %d, want %d", tt.level, got, tt.want)
		}
	}
	if got := StatPointsForRange(4, 6, rule); got != 8 {
		t.Errorf("StatPointsForRange(4, 6) = %d, want 8", got)
	}
	if got := StatPointsForRange(6, 6, rule); got != 0 {
		t.Errorf("StatPointsForRange(6, 6) = %d, want 0", got)
	}
}

func storeWithItems(t *testing.T) *projection.Store {
	t.Helper()
	s := projection.New()
	s.Character = &types.Character{
		ClassID: "ranger",
		Inventory: map[string]*types.ItemInstance{
			"bow":    {ID: "bow", TemplateID: "t-bow"},
			"helm":   {ID: "helm", TemplateID: "t-helm"},
			"ring":   {ID: "ring", TemplateID: "t-ring", CustomName: ptr("Grandma's ring")},
			"orphan": {ID: "orphan", TemplateID: "t-missing"},
			"shield": {ID: "shield", TemplateID: "t-shield"},
		},
	}
	s.ItemTemplates = map[string]*types.ItemTemplate{
		"t-bow":    {ID: "t-bow", Name: "Longbow", ItemType: "weapon"},
		"t-helm":   {ID: "t-helm", Name: "Helm", ItemType: "armor", EquipSlots: []types.Slot{types.SlotHead}},
		"t-ring":   {ID: "t-ring", Name: "Ring", ItemType: "accessory"},
		"t-shield": {ID: "t-shield", Name: "Shield", ItemType: "shield", EquipSlots: []types.Slot{types.SlotWeapon2}},
	}
	s.Normalize()
	return s
}

func TestItemSlots(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		class *types.ClassDefinition
		item  string
		want  []types.Slot
	}{
		{name: "type hint", item: "bow", want: []types.Slot{types.SlotWeapon1, types.SlotWeapon2}},
		{name: "explicit slots", item: "helm", want: []types.Slot{types.SlotHead}},
		{name: "accessory hint", item: "ring", want: []types.Slot{types.SlotRing1, types.SlotRing2}},
		{name: "unknown template", item: "orphan", want: nil},
		{name: "unknown item", item: "nope", want: nil},
		{
			name:  "class narrows slots",
			class: &types.ClassDefinition{ID: "ranger", AllowedSlots: []types.Slot{types.SlotWeapon1}},
			item:  "bow",
			want:  []types.Slot{types.SlotWeapon1},
		},
		{
			name:  "class forbids type",
			class: &types.ClassDefinition{ID: "ranger", AllowedItemTypes: []string{"armor"}},
			item:  "bow",
			want:  nil,
		},
		{
			name:  "class allows type",
			class: &types.ClassDefinition{ID: "ranger", AllowedItemTypes: []string{"shield"}},
			item:  "shield",
			want:  []types.Slot{types.SlotWeapon2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := storeWithItems(t)
			if tt.class != nil {
				s.Classes[tt.class.ID] = tt.class
			}
			got := ItemSlots(s, tt.item)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ItemSlots(%q) = %v, want %v", tt.item, got, tt.want)
			}
		})
	}
}

func TestItemSlots_DoesNotAliasTemplate(t *testing.T) {
	t.Parallel()

	s := storeWithItems(t)
	s.Classes["ranger"] = &types.ClassDefinition{ID: "ranger", AllowedSlots: []types.Slot{types.SlotRing1}}
	_ = ItemSlots(s, "helm")
	if got := s.ItemTemplates["t-helm"].EquipSlots; len(got) != 1 || got[0] != types.SlotHead {
		t.Errorf("template slots mutated: %v", got)
	}
}

func TestItemName(t *testing.T) {
	t.Parallel()

	s := storeWithItems(t)
	tests := map[string]string{
		"ring":   "Grandma's ring",
		"bow":    "Longbow",
		"orphan": UnknownItemName,
		"nope":   UnknownItemName,
	}
	for id, want := range tests {
		if got := ItemName(s, id); got != want {
			t.Errorf("ItemName(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestCanEquipAndEquippedIn(t *testing.T) {
	t.Parallel()

	s := storeWithItems(t)
	if !CanEquip(s, "helm", types.SlotHead) || CanEquip(s, "helm", types.SlotBoots) {
		t.Error("CanEquip disagrees with ItemSlots")
	}
	s.Character.Equipment[types.SlotWeapon1] = "bow"
	s.Character.Equipment[types.SlotWeapon2] = "bow"
	want := []types.Slot{types.SlotWeapon1, types.SlotWeapon2}
	if got := EquippedIn(s.Character, "bow"); !reflect.DeepEqual(got, want) {
		t.Errorf("EquippedIn = %v, want %v", got, want)
	}
	if got := EquippedIn(s.Character, ""); got != nil {
		t.Errorf("EquippedIn(empty) = %v", got)
	}
}

func TestMessageCollapsed(t *testing.T) {
	t.Parallel()

	choices := []types.ChoiceOption{{ID: "a", Label: "A"}}
	tests := []struct {
		name     string
		msg      *types.SystemMessage
		override map[string]bool
		want     bool
	}{
		{name: "not collapsible", msg: &types.SystemMessage{ID: "m", Collapsible: false, Choices: choices, ChosenOptionID: ptr("a")}, want: false},
		{name: "not collapsible ignores override", msg: &types.SystemMessage{ID: "m"}, override: map[string]bool{"m": true}, want: false},
		{name: "answered choice collapses", msg: &types.SystemMessage{ID: "m", Collapsible: true, Choices: choices, ChosenOptionID: ptr("a")}, want: true},
		{name: "unanswered choice expanded", msg: &types.SystemMessage{ID: "m", Collapsible: true, Choices: choices}, want: false},
		{name: "plain collapsible expanded", msg: &types.SystemMessage{ID: "m", Collapsible: true}, want: false},
		{name: "override expands answered", msg: &types.SystemMessage{ID: "m", Collapsible: true, Choices: choices, ChosenOptionID: ptr("a")}, override: map[string]bool{"m": false}, want: false},
		{name: "override collapses plain", msg: &types.SystemMessage{ID: "m", Collapsible: true}, override: map[string]bool{"m": true}, want: true},
		{name: "nil message", msg: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := projection.New()
			for k, v := range tt.override {
				s.MessageCollapsed[k] = v
			}
			if got := MessageCollapsed(s, tt.msg); got != tt.want {
				t.Errorf("MessageCollapsed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessagesNewestFirst(t *testing.T) {
	t.Parallel()

	s := projection.New()
	s.SystemMessages = []*types.SystemMessage{
		{ID: "old", CreatedAt: "2026-01-01T00:00:00Z"},
		{ID: "new", CreatedAt: "2026-02-01T00:00:00Z"},
		{ID: "undated"},
	}
	got := MessagesNewestFirst(s)
	if got[0].ID != "new" || got[1].ID != "old" || got[2].ID != "undated" {
		t.Errorf("order = %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}
	if s.SystemMessages[0].ID != "old" {
		t.Error("store order mutated")
	}
}

func TestSheetSections(t *testing.T) {
	t.Parallel()

	if got := SheetSections(nil); !reflect.DeepEqual(got, DefaultSections) {
		t.Errorf("default sections = %+v", got)
	}

	settings := &types.Settings{SheetSections: []types.SheetSection{
		{Key: "currencies", Order: ptr(1)},
		{Key: "custom", Title: "Notes", Visible: ptr(false)},
		{Key: "stats", Order: ptr(0)},
	}}
	got := SheetSections(settings)
	want := []Section{
		{Key: "stats", Title: "Stats", Visible: true, Order: 0},
		{Key: "currencies", Title: "Currencies", Visible: true, Order: 1},
		{Key: "custom", Title: "Notes", Visible: false, Order: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SheetSections = %+v, want %+v", got, want)
	}
}

func TestSheetNeedsRebuild(t *testing.T) {
	t.Parallel()

	s := projection.New()
	if !SheetNeedsRebuild(s) {
		t.Error("first render should build")
	}
	if SheetNeedsRebuild(s) {
		t.Error("unchanged layout should not rebuild")
	}
	s.SheetSectionsKey = ""
	if !SheetNeedsRebuild(s) {
		t.Error("cleared key should rebuild")
	}
}

func TestItemTemplateMatches(t *testing.T) {
	t.Parallel()

	tpl := &types.ItemTemplate{
		Name: "Flame Sword", Description: "Burns", ItemType: "weapon",
		Rarity: "purple", TwoHanded: true, Tags: []string{"fire", "blade"},
	}
	classes := map[string]*types.ClassDefinition{
		"mage":   {AllowedItemTypes: []string{"staff"}},
		"knight": {AllowedItemTypes: []string{"weapon"}},
		"any":    {},
	}
	tests := []struct {
		name   string
		filter ItemFilter
		want   bool
	}{
		{name: "empty filter", want: true},
		{name: "type match", filter: ItemFilter{Type: "weapon"}, want: true},
		{name: "type mismatch", filter: ItemFilter{Type: "armor"}, want: false},
		{name: "rarity mismatch", filter: ItemFilter{Rarity: "white"}, want: false},
		{name: "two-handed", filter: ItemFilter{TwoHanded: true}, want: true},
		{name: "class forbids", filter: ItemFilter{ClassID: "mage"}, want: false},
		{name: "class allows", filter: ItemFilter{ClassID: "knight"}, want: true},
		{name: "class without restriction", filter: ItemFilter{ClassID: "any"}, want: true},
		{name: "unknown class", filter: ItemFilter{ClassID: "ghost"}, want: true},
		{name: "query on tag", filter: ItemFilter{Query: "  FIRE "}, want: true},
		{name: "query on rarity", filter: ItemFilter{Query: "purple"}, want: true},
		{name: "query miss", filter: ItemFilter{Query: "ice"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ItemTemplateMatches(tpl, tt.filter, classes); got != tt.want {
				t.Errorf("ItemTemplateMatches = %v, want %v", got, tt.want)
			}
		})
	}
	if ItemTemplateMatches(nil, ItemFilter{}, nil) {
		t.Error("nil template matched")
	}
}

func TestQuestAndMessageTemplateMatches(t *testing.T) {
	t.Parallel()

	q := &types.QuestTemplate{Name: "Rescue", Description: "Save the miller", CannotDecline: false}
	if QuestTemplateMatches(q, QuestFilter{OnlyMandatory: true}) {
		t.Error("optional quest passed mandatory filter")
	}
	if !QuestTemplateMatches(q, QuestFilter{Query: "miller"}) {
		t.Error("description query missed")
	}

	m := &types.MessageTemplate{Name: "Storm", Title: "Weather", Body: "Rain falls", Severity: types.SeverityWarning}
	if MessageTemplateMatches(m, MessageFilter{Severity: types.SeverityAlert}) {
		t.Error("severity filter ignored")
	}
	if !MessageTemplateMatches(m, MessageFilter{Severity: types.SeverityWarning, Query: "rain"}) {
		t.Error("body query missed")
	}
	if MessageTemplateMatches(nil, MessageFilter{}) || QuestTemplateMatches(nil, QuestFilter{}) {
		t.Error("nil template matched")
	}
}
