package projection

import "github.com/MrWong99/aether/pkg/types"

// Snapshot is a complete point-in-time copy of the server's campaign state
// as returned by GET /api/snapshot.
type Snapshot struct {
	ID                string                            `json:"id,omitempty"`
	Character         *types.Character                  `json:"character"`
	Classes           map[string]*types.ClassDefinition `json:"classes"`
	ItemTemplates     map[string]*types.ItemTemplate    `json:"item_templates"`
	QuestTemplates    map[string]*types.QuestTemplate   `json:"quest_templates"`
	MessageTemplates  map[string]*types.MessageTemplate `json:"message_templates"`
	AbilityCategories map[string]*types.AbilityCategory `json:"ability_categories"`
	Abilities         map[string]*types.Ability         `json:"abilities"`
	ActiveQuests      []*types.Quest                    `json:"active_quests"`
	SystemMessages    []*types.SystemMessage            `json:"system_messages"`
	Settings          *types.Settings                   `json:"settings"`
	Contacts          map[string]*types.Contact         `json:"contacts"`
	Chats             map[string]*types.Chat            `json:"chats"`
	FriendRequests    map[string]*types.FriendRequest   `json:"friend_requests"`
}

// Snapshot returns the entity part of s as a [Snapshot]. The returned value
// shares its maps with s.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		ID:                s.CampaignID,
		Character:         s.Character,
		Classes:           s.Classes,
		ItemTemplates:     s.ItemTemplates,
		QuestTemplates:    s.QuestTemplates,
		MessageTemplates:  s.MessageTemplates,
		AbilityCategories: s.AbilityCategories,
		Abilities:         s.Abilities,
		ActiveQuests:      s.ActiveQuests,
		SystemMessages:    s.SystemMessages,
		Settings:          s.Settings,
		Contacts:          s.Contacts,
		Chats:             s.Chats,
		FriendRequests:    s.FriendRequests,
	}
}
