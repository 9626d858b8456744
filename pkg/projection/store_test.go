package projection

import (
	"testing"

	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/types"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	s := &Store{
		Character:    &types.Character{ID: "c"},
		Chats:        map[string]*types.Chat{"a": {ID: "a"}, "nil": nil},
		ActiveQuests: []*types.Quest{nil, {ID: "q"}},
	}
	s.Normalize()

	c := s.Character
	if c.Inventory == nil || c.Equipment == nil || c.Stats == nil || c.Resources == nil {
		t.Error("character maps not allocated")
	}
	if s.Chats["a"].Messages == nil {
		t.Error("chat messages not allocated")
	}
	if _, ok := s.Chats["nil"]; ok {
		t.Error("nil chat kept")
	}
	if len(s.ActiveQuests) != 1 {
		t.Errorf("quests = %d, want 1", len(s.ActiveQuests))
	}
	if s.Classes == nil || s.Contacts == nil || s.MessageCollapsed == nil {
		t.Error("store maps not allocated")
	}
}

func TestGetOrCreateChat(t *testing.T) {
	t.Parallel()

	s := &Store{}
	a := s.GetOrCreateChat("c1", "npc")
	if !a.Opened || a.ContactID != "npc" || a.Messages == nil {
		t.Errorf("new chat = %+v", a)
	}
	a.Messages = append(a.Messages, types.ChatMessage{ID: "m"})
	b := s.GetOrCreateChat("c1", "other")
	if b != a || b.ContactID != "npc" || len(b.Messages) != 1 {
		t.Errorf("existing chat replaced: %+v", b)
	}
}

func TestEnsureContactAndRequest(t *testing.T) {
	t.Parallel()

	s := New()
	c := s.EnsureContact("npc")
	if c.DisplayName != UnknownContactName {
		t.Errorf("placeholder name = %q", c.DisplayName)
	}
	c.DisplayName = "Mira"
	if s.EnsureContact("npc").DisplayName != "Mira" {
		t.Error("EnsureContact overwrote existing contact")
	}

	r := s.EnsureFriendRequest("r", "npc", "t0")
	if r.Accepted || r.CreatedAt != "t0" {
		t.Errorf("request = %+v", r)
	}
	if s.EnsureFriendRequest("r", "x", "t1") != r {
		t.Error("EnsureFriendRequest replaced existing request")
	}
}

func TestUpsertQuest(t *testing.T) {
	t.Parallel()

	s := New()
	if s.UpsertQuest(&event.QuestPatch{}) != nil || s.UpsertQuest(nil) != nil {
		t.Error("patch without id accepted")
	}
	s.UpsertQuest(&event.QuestPatch{ID: "q", TemplateID: event.Some("t"), Status: event.Some(types.QuestActive)})
	s.UpsertQuest(&event.QuestPatch{ID: "q", Status: event.Some(types.QuestHidden)})

	if len(s.ActiveQuests) != 1 {
		t.Fatalf("quests = %d, want 1", len(s.ActiveQuests))
	}
	if q := s.Quest("q"); q.TemplateID != "t" || q.Status != types.QuestHidden {
		t.Errorf("quest = %+v", q)
	}
}

func TestAbilityMap(t *testing.T) {
	t.Parallel()

	s := New()
	if s.AbilityMap(event.ScopeCharacter, true) != nil {
		t.Error("character scope without character should be nil")
	}
	s.Character = &types.Character{}
	if s.AbilityMap(event.ScopeCharacter, false) != nil {
		t.Error("character map allocated without create")
	}
	m := s.AbilityMap(event.ScopeCharacter, true)
	m["a"] = &types.Ability{ID: "a"}
	if s.Character.Abilities["a"] == nil {
		t.Error("character map not attached")
	}
	s.AbilityMap(event.ScopeLibrary, true)["b"] = &types.Ability{ID: "b"}
	if s.Abilities["b"] == nil {
		t.Error("library map not used")
	}
}

func TestAddNPCLinkable(t *testing.T) {
	t.Parallel()

	s := New()
	s.AddNPCLinkable("n", "Mira")
	s.AddNPCLinkable("n", "Other")
	if len(s.Linkables.NPCs) != 1 || s.Linkables.NPCs[0].Type != "npc" || s.Linkables.NPCs[0].Label != "Mira" {
		t.Errorf("npcs = %+v", s.Linkables.NPCs)
	}
}

func TestViewState(t *testing.T) {
	t.Parallel()

	s := New()
	s.Character = &types.Character{ID: "c", Inventory: map[string]*types.ItemInstance{"i1": {ID: "i1"}}}
	s.Chats["c1"] = &types.Chat{ID: "c1"}
	s.SystemMessages = []*types.SystemMessage{
		{ID: "m1", Collapsible: true},
		{ID: "m2"},
	}

	if s.SelectItem("ghost") || !s.SelectItem("i1") || s.SelectedItemID != "i1" {
		t.Errorf("SelectItem: selected = %q", s.SelectedItemID)
	}
	if !s.SelectItem("") || s.SelectedItemID != "" {
		t.Error("empty id did not clear the item selection")
	}
	if s.SelectChat("ghost") || !s.SelectChat("c1") || s.SelectedChatID != "c1" {
		t.Errorf("SelectChat: selected = %q", s.SelectedChatID)
	}
	if !s.SetMessageCollapsed("m1", true) || !s.MessageCollapsed["m1"] {
		t.Error("collapsible message not toggled")
	}
	if s.SetMessageCollapsed("m2", true) || s.SetMessageCollapsed("ghost", true) {
		t.Error("non-collapsible or unknown message toggled")
	}
}

func TestLogNewestFirst(t *testing.T) {
	t.Parallel()

	s := New()
	s.Log = []event.Event{
		{Kind: "a", Seq: event.Seq(1)},
		{Kind: "local1"},
		{Kind: "c", Seq: event.Seq(3)},
		{Kind: "b", Seq: event.Seq(2)},
		{Kind: "local2"},
	}
	got := s.LogNewestFirst()
	want := []event.Kind{"c", "b", "a", "local2", "local1"}
	for i, k := range want {
		if got[i].Kind != k {
			t.Errorf("position %d = %q, want %q", i, got[i].Kind, k)
		}
	}
	if s.Log[0].Kind != "a" {
		t.Error("LogNewestFirst mutated the log")
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := New()
	s.Character = &types.Character{Name: "Ayla", Level: 3, XP: 10, Inventory: map[string]*types.ItemInstance{"i": {}}}
	s.Log = []event.Event{{Seq: event.Seq(4)}, {Seq: event.Seq(9)}, {}}
	sum := s.Summarize()
	if sum.Character != "Ayla" || sum.Level != 3 || sum.Items != 1 || sum.LoggedEvents != 3 || sum.LastLoggedSeq != "9" {
		t.Errorf("summary = %+v", sum)
	}
	if New().Summarize().LastLoggedSeq != "" {
		t.Error("empty log reported a seq")
	}
}
