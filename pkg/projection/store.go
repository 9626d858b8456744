// Package projection holds the client-local materialized view of a campaign.
//
// A [Store] is a passive aggregate: the snapshot loader replaces it
// wholesale and the reducer mutates it one event at a time. Store is not
// safe for concurrent use; the reconciler serializes every access behind a
// single mutex together with the deduplication ledger.
package projection

import (
	"slices"
	"strconv"

	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/types"
)

// UnknownContactName is the display name of contacts materialized from a
// reference before their chat.contact.added event arrived.
const UnknownContactName = "Unknown contact"

// LevelUpMarker records the most recent level-up for highlight rendering.
type LevelUpMarker struct {
	Level int    `json:"level"`
	TS    string `json:"ts"`
}

// Store is the projection of one campaign.
type Store struct {
	CampaignID        string                            `json:"campaign_id,omitempty"`
	Character         *types.Character                  `json:"character"`
	Classes           map[string]*types.ClassDefinition `json:"classes"`
	ItemTemplates     map[string]*types.ItemTemplate    `json:"item_templates"`
	QuestTemplates    map[string]*types.QuestTemplate   `json:"quest_templates"`
	MessageTemplates  map[string]*types.MessageTemplate `json:"message_templates"`
	AbilityCategories map[string]*types.AbilityCategory `json:"ability_categories"`
	// Abilities is the global ability library.
	Abilities      map[string]*types.Ability       `json:"abilities"`
	ActiveQuests   []*types.Quest                  `json:"active_quests"`
	SystemMessages []*types.SystemMessage          `json:"system_messages"`
	Settings       *types.Settings                 `json:"settings"`
	Contacts       map[string]*types.Contact       `json:"contacts"`
	Chats          map[string]*types.Chat          `json:"chats"`
	FriendRequests map[string]*types.FriendRequest `json:"friend_requests"`
	Linkables      types.Linkables                 `json:"linkables"`

	// Transient view state. Reset by every snapshot load.
	SelectedItemID   string          `json:"selected_item_id,omitempty"`
	SelectedChatID   string          `json:"selected_chat_id,omitempty"`
	MessageCollapsed map[string]bool `json:"message_collapsed,omitempty"`
	LastLevelUp      *LevelUpMarker  `json:"last_level_up,omitempty"`
	// SheetSectionsKey caches the key of the last rendered sheet layout.
	// The reducer clears it whenever sheet_sections change.
	SheetSectionsKey string `json:"-"`

	// Log holds every accepted event of the current snapshot epoch in
	// arrival order.
	Log []event.Event `json:"-"`
}

// New returns an empty store with all collections allocated.
func New() *Store {
	s := &Store{}
	s.Normalize()
	return s
}

// Normalize allocates every nil collection so that callers can treat absent
// maps as empty. It also fills the per-character and per-chat collections.
func (s *Store) Normalize() {
	if s.Classes == nil {
		s.Classes = make(map[string]*types.ClassDefinition)
	}
	if s.ItemTemplates == nil {
		s.ItemTemplates = make(map[string]*types.ItemTemplate)
	}
	if s.QuestTemplates == nil {
		s.QuestTemplates = make(map[string]*types.QuestTemplate)
	}
	if s.MessageTemplates == nil {
		s.MessageTemplates = make(map[string]*types.MessageTemplate)
	}
	if s.AbilityCategories == nil {
		s.AbilityCategories = make(map[string]*types.AbilityCategory)
	}
	if s.Abilities == nil {
		s.Abilities = make(map[string]*types.Ability)
	}
	if s.Contacts == nil {
		s.Contacts = make(map[string]*types.Contact)
	}
	if s.Chats == nil {
		s.Chats = make(map[string]*types.Chat)
	}
	if s.FriendRequests == nil {
		s.FriendRequests = make(map[string]*types.FriendRequest)
	}
	if s.MessageCollapsed == nil {
		s.MessageCollapsed = make(map[string]bool)
	}
	s.ActiveQuests = slices.DeleteFunc(s.ActiveQuests, func(q *types.Quest) bool { return q == nil })
	s.SystemMessages = slices.DeleteFunc(s.SystemMessages, func(m *types.SystemMessage) bool { return m == nil })

	if c := s.Character; c != nil {
		if c.Inventory == nil {
			c.Inventory = make(map[string]*types.ItemInstance)
		}
		if c.Equipment == nil {
			c.Equipment = make(map[types.Slot]string)
		}
		if c.Stats == nil {
			c.Stats = make(map[string]int)
		}
		if c.Resources == nil {
			c.Resources = make(map[string]types.Resource)
		}
		if c.Currencies == nil {
			c.Currencies = make(map[string]int)
		}
		if c.Reputations == nil {
			c.Reputations = make(map[string]int)
		}
	}
	for id, chat := range s.Chats {
		if chat == nil {
			delete(s.Chats, id)
			continue
		}
		if chat.Messages == nil {
			chat.Messages = []types.ChatMessage{}
		}
	}
}

// Quest returns the active quest with the given id, or nil.
func (s *Store) Quest(id string) *types.Quest {
	for _, q := range s.ActiveQuests {
		if q.ID == id {
			return q
		}
	}
	return nil
}

// UpsertQuest merges p onto the active quest with the same id, or appends
// a new quest built from p. Patches without an id are ignored.
func (s *Store) UpsertQuest(p *event.QuestPatch) *types.Quest {
	if p == nil || p.ID == "" {
		return nil
	}
	q := s.Quest(p.ID)
	if q == nil {
		q = &types.Quest{ID: p.ID, Objectives: []types.Objective{}}
		s.ActiveQuests = append(s.ActiveQuests, q)
	}
	p.TemplateID.Apply(&q.TemplateID)
	p.Status.Apply(&q.Status)
	p.Objectives.Apply(&q.Objectives)
	p.StartedAt.Apply(&q.StartedAt)
	p.CompletedAt.Apply(&q.CompletedAt)
	return q
}

// Message returns the system message with the given id, or nil.
func (s *Store) Message(id string) *types.SystemMessage {
	for _, m := range s.SystemMessages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// UpsertMessage merges p onto the system message with the same id, or
// appends a new message built from p. Patches without an id are ignored.
func (s *Store) UpsertMessage(p *event.MessagePatch) *types.SystemMessage {
	if p == nil || p.ID == "" {
		return nil
	}
	m := s.Message(p.ID)
	if m == nil {
		m = &types.SystemMessage{ID: p.ID, Severity: types.SeverityInfo, Choices: []types.ChoiceOption{}}
		s.SystemMessages = append(s.SystemMessages, m)
	}
	p.Title.Apply(&m.Title)
	p.Body.Apply(&m.Body)
	p.Severity.Apply(&m.Severity)
	p.Collapsible.Apply(&m.Collapsible)
	p.Choices.Apply(&m.Choices)
	p.ChosenOptionID.Apply(&m.ChosenOptionID)
	p.CreatedAt.Apply(&m.CreatedAt)
	p.Sound.Apply(&m.Sound)
	p.Effect.Apply(&m.Effect)
	return m
}

// AbilityMap returns the ability map selected by scope. The character map
// is allocated on demand only when create is true; otherwise a character
// without abilities yields nil. Without a character, character scope yields
// nil.
func (s *Store) AbilityMap(scope event.Scope, create bool) map[string]*types.Ability {
	if scope != event.ScopeCharacter {
		if s.Abilities == nil && create {
			s.Abilities = make(map[string]*types.Ability)
		}
		return s.Abilities
	}
	c := s.Character
	if c == nil {
		return nil
	}
	if c.Abilities == nil && create {
		c.Abilities = make(map[string]*types.Ability)
	}
	return c.Abilities
}

// GetOrCreateChat returns the chat thread with the given id, creating an
// opened, empty thread for contactID when none exists yet.
func (s *Store) GetOrCreateChat(id, contactID string) *types.Chat {
	if s.Chats == nil {
		s.Chats = make(map[string]*types.Chat)
	}
	chat, ok := s.Chats[id]
	if !ok {
		chat = &types.Chat{ID: id, ContactID: contactID, Opened: true, Messages: []types.ChatMessage{}}
		s.Chats[id] = chat
	}
	return chat
}

// EnsureContact returns the contact with the given id, creating a
// placeholder named [UnknownContactName] when none exists yet.
func (s *Store) EnsureContact(id string) *types.Contact {
	if s.Contacts == nil {
		s.Contacts = make(map[string]*types.Contact)
	}
	c, ok := s.Contacts[id]
	if !ok {
		c = &types.Contact{ID: id, DisplayName: UnknownContactName, LinkPayload: map[string]any{}}
		s.Contacts[id] = c
	}
	return c
}

// EnsureFriendRequest returns the friend request with the given id,
// creating a pending one for contactID when none exists yet.
func (s *Store) EnsureFriendRequest(id, contactID, createdAt string) *types.FriendRequest {
	if s.FriendRequests == nil {
		s.FriendRequests = make(map[string]*types.FriendRequest)
	}
	r, ok := s.FriendRequests[id]
	if !ok {
		r = &types.FriendRequest{ID: id, ContactID: contactID, CreatedAt: createdAt}
		s.FriendRequests[id] = r
	}
	return r
}

// ItemTemplateFor resolves the template of an inventory item. Both return
// values are nil when the item or its template is unknown.
func (s *Store) ItemTemplateFor(itemID string) (*types.ItemInstance, *types.ItemTemplate) {
	if s.Character == nil {
		return nil, nil
	}
	item := s.Character.Inventory[itemID]
	if item == nil {
		return nil, nil
	}
	return item, s.ItemTemplates[item.TemplateID]
}

// Class returns the character's class definition, or nil.
func (s *Store) Class() *types.ClassDefinition {
	if s.Character == nil {
		return nil
	}
	return s.Classes[s.Character.ClassID]
}

// AddNPCLinkable appends an npc entry to the linkable catalog unless one
// with the same id is already present.
func (s *Store) AddNPCLinkable(id, label string) {
	for _, l := range s.Linkables.NPCs {
		if l.ID == id {
			return
		}
	}
	s.Linkables.NPCs = append(s.Linkables.NPCs, types.ChatLink{Type: "npc", ID: id, Label: label})
}

// SelectItem marks an inventory item as selected. An empty id clears the
// selection; an id not in the inventory is refused.
func (s *Store) SelectItem(id string) bool {
	if id != "" && (s.Character == nil || s.Character.Inventory[id] == nil) {
		return false
	}
	s.SelectedItemID = id
	return true
}

// SelectChat marks a chat thread as open in the chat pane. An empty id
// clears the selection; an unknown chat is refused.
func (s *Store) SelectChat(id string) bool {
	if id != "" && s.Chats[id] == nil {
		return false
	}
	s.SelectedChatID = id
	return true
}

// SetMessageCollapsed records an explicit collapse toggle for a system
// message. Unknown and non-collapsible messages are refused.
func (s *Store) SetMessageCollapsed(id string, collapsed bool) bool {
	m := s.Message(id)
	if m == nil || !m.Collapsible {
		return false
	}
	if s.MessageCollapsed == nil {
		s.MessageCollapsed = make(map[string]bool)
	}
	s.MessageCollapsed[id] = collapsed
	return true
}

// LogNewestFirst returns a copy of the event log ordered by descending
// sequence number. Events without a sequence number sort last, newest
// first among themselves.
func (s *Store) LogNewestFirst() []event.Event {
	out := make([]event.Event, len(s.Log))
	for i, e := range s.Log {
		out[len(s.Log)-1-i] = e
	}
	slices.SortStableFunc(out, func(a, b event.Event) int {
		switch {
		case a.Seq == nil && b.Seq == nil:
			return 0
		case a.Seq == nil:
			return 1
		case b.Seq == nil:
			return -1
		case *a.Seq > *b.Seq:
			return -1
		case *a.Seq < *b.Seq:
			return 1
		}
		return 0
	})
	return out
}

// Summary is a compact overview of the store used in logs and the status
// endpoint.
type Summary struct {
	Character     string `json:"character"`
	Level         int    `json:"level"`
	XP            int    `json:"xp"`
	Items         int    `json:"items"`
	ActiveQuests  int    `json:"active_quests"`
	Messages      int    `json:"messages"`
	Chats         int    `json:"chats"`
	LoggedEvents  int    `json:"logged_events"`
	LastLoggedSeq string `json:"last_logged_seq,omitempty"`
}

// Summarize returns a [Summary] of s.
func (s *Store) Summarize() Summary {
	sum := Summary{
		ActiveQuests: len(s.ActiveQuests),
		Messages:     len(s.SystemMessages),
		Chats:        len(s.Chats),
		LoggedEvents: len(s.Log),
	}
	if c := s.Character; c != nil {
		sum.Character = c.Name
		sum.Level = c.Level
		sum.XP = c.XP
		sum.Items = len(c.Inventory)
	}
	var last int64 = -1
	for _, e := range s.Log {
		last = max(last, e.SeqOr(-1))
	}
	if last >= 0 {
		sum.LastLoggedSeq = strconv.FormatInt(last, 10)
	}
	return sum
}
