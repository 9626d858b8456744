// Package types defines the entity records shared by the event catalog, the
// projection store and the API client.
//
// These types mirror the server's JSON shapes field for field. They carry no
// behavior; the reducer and the derived-view helpers own all logic. Keeping
// them in one leaf package avoids circular imports between pkg/event and
// pkg/projection.
package types

// Slot is an equipment slot key.
type Slot string

// Equipment slots.
const (
	SlotWeapon1 Slot = "weapon_1"
	SlotWeapon2 Slot = "weapon_2"
	SlotHead    Slot = "head"
	SlotTorso   Slot = "torso"
	SlotLegs    Slot = "legs"
	SlotBoots   Slot = "boots"
	SlotRing1   Slot = "ring_1"
	SlotRing2   Slot = "ring_2"
)

// AllSlots lists every equipment slot in display order.
var AllSlots = []Slot{SlotWeapon1, SlotWeapon2, SlotHead, SlotTorso, SlotLegs, SlotBoots, SlotRing1, SlotRing2}

// IsWeapon reports whether s is one of the two weapon slots.
func (s Slot) IsWeapon() bool { return s == SlotWeapon1 || s == SlotWeapon2 }

// Valid reports whether s is a known slot.
func (s Slot) Valid() bool {
	for _, known := range AllSlots {
		if s == known {
			return true
		}
	}
	return false
}

// Resource is a [current, max] pair. It serializes as a two-element array.
type Resource [2]int

// Current returns the current value.
func (r Resource) Current() int { return r[0] }

// Max returns the maximum value.
func (r Resource) Max() int { return r[1] }

// Character is the single player character mirrored by the client.
type Character struct {
	ID                string                   `json:"id"`
	Name              string                   `json:"name"`
	ClassID           string                   `json:"class_id"`
	Level             int                      `json:"level"`
	XP                int                      `json:"xp"`
	UnspentStatPoints int                      `json:"unspent_stat_points"`
	Stats             map[string]int           `json:"stats"`
	Resources         map[string]Resource      `json:"resources"`
	Currencies        map[string]int           `json:"currencies"`
	Reputations       map[string]int           `json:"reputations"`
	Inventory         map[string]*ItemInstance `json:"inventory"`

	// Equipment maps a slot to an item instance id. An empty id means the
	// slot is free; the server's null decodes to it.
	Equipment map[Slot]string     `json:"equipment"`
	Abilities map[string]*Ability `json:"abilities"`
	Frozen    bool                `json:"frozen"`
}

// ItemInstance is one concrete item owned by the character.
type ItemInstance struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"template_id"`
	Qty        int            `json:"qty"`
	CustomName *string        `json:"custom_name"`
	Bound      bool           `json:"bound"`
	Meta       map[string]any `json:"meta"`
}

// ItemTemplate is a catalog entry items are instantiated from.
type ItemTemplate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ItemType    string `json:"item_type"`
	Rarity      string `json:"rarity"`
	Description string `json:"description"`

	// EquipSlots lists explicit slots. Empty means "infer from ItemType".
	EquipSlots []Slot         `json:"equip_slots"`
	TwoHanded  bool           `json:"two_handed"`
	StatMods   map[string]int `json:"stat_mods"`
	Tags       []string       `json:"tags"`
	IconKey    string         `json:"icon_key,omitempty"`

	GrantedAbilityIDs []string `json:"granted_ability_ids,omitempty"`
}

// ClassDefinition constrains what a character may equip and grants stat
// bonuses on every level-up.
type ClassDefinition struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	AllowedItemTypes []string       `json:"allowed_item_types"`
	AllowedSlots     []Slot         `json:"allowed_slots"`
	PerLevelBonus    map[string]int `json:"per_level_bonus"`
}

// QuestStatus is the lifecycle state of an active quest.
type QuestStatus string

// Quest statuses.
const (
	QuestActive    QuestStatus = "active"
	QuestCompleted QuestStatus = "completed"
	QuestFailed    QuestStatus = "failed"
	QuestHidden    QuestStatus = "hidden"
)

// Objective is one step of a quest. Progress is [current, total] when the
// objective is countable.
type Objective struct {
	ID       string  `json:"id,omitempty"`
	Text     string  `json:"text"`
	Done     bool    `json:"done"`
	Progress *[2]int `json:"progress,omitempty"`
}

// Quest is an active quest instance, keyed by ID.
type Quest struct {
	ID          string      `json:"id"`
	TemplateID  string      `json:"template_id"`
	Status      QuestStatus `json:"status"`
	Objectives  []Objective `json:"objectives"`
	StartedAt   string      `json:"started_at,omitempty"`
	CompletedAt *string     `json:"completed_at"`
}

// QuestTemplate is a catalog entry quests are assigned from.
type QuestTemplate struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	CannotDecline bool           `json:"cannot_decline"`
	Objectives    []Objective    `json:"objectives,omitempty"`
	Rewards       map[string]any `json:"rewards,omitempty"`
}

// Ability is a skill or perk, either in the global library or owned by the
// character.
type Ability struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	CategoryID  string  `json:"category_id"`
	Active      bool    `json:"active"`
	Hidden      bool    `json:"hidden"`
	CooldownS   *int    `json:"cooldown_s"`
	Cost        *string `json:"cost"`
	Source      string  `json:"source"`
}

// AbilityCategory groups abilities for display.
type AbilityCategory struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Hidden      bool   `json:"hidden"`
}

// Severity grades a system message.
type Severity string

// Message severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityAlert   Severity = "alert"
)

// ChoiceOption is a selectable answer attached to a system message.
type ChoiceOption struct {
	ID      string         `json:"id"`
	Label   string         `json:"label"`
	Payload map[string]any `json:"payload,omitempty"`
}

// SystemMessage is a host-to-player notification, keyed by ID.
type SystemMessage struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	Severity       Severity       `json:"severity"`
	Collapsible    bool           `json:"collapsible"`
	Choices        []ChoiceOption `json:"choices"`
	ChosenOptionID *string        `json:"chosen_option_id"`
	CreatedAt      string         `json:"created_at,omitempty"`
	Sound          *string        `json:"sound,omitempty"`
	Effect         *string        `json:"effect,omitempty"`
}

// MessageTemplate is a reusable system message body.
type MessageTemplate struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Severity    Severity `json:"severity"`
	Collapsible bool     `json:"collapsible"`
}

// XPCurve configures the experience needed per level.
type XPCurve struct {
	BaseXP     int     `json:"base_xp"`
	GrowthRate float64 `json:"growth_rate"`
}

// StatRule configures stat points granted on level-up.
type StatRule struct {
	BasePerLevel int `json:"base_per_level"`
	BonusEvery5  int `json:"bonus_every_5"`
	BonusEvery10 int `json:"bonus_every_10"`
}

// SheetSection configures one block of the character sheet. A nil Visible
// means visible; a nil Order means "position in the list".
type SheetSection struct {
	Key     string `json:"key"`
	Title   string `json:"title,omitempty"`
	Visible *bool  `json:"visible,omitempty"`
	Order   *int   `json:"order,omitempty"`
}

// Settings holds campaign-wide rules. There is one instance per campaign.
type Settings struct {
	XPCurve             XPCurve        `json:"xp_curve"`
	StatRule            StatRule       `json:"stat_rule"`
	SheetSections       []SheetSection `json:"sheet_sections,omitempty"`
	EquipmentCategoryID string         `json:"equipment_category_id,omitempty"`
}

// Contact is an NPC (or the player) that can own a chat thread.
type Contact struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	LinkPayload map[string]any `json:"link_payload"`
}

// FriendRequest is a pending or accepted chat invitation from a contact.
type FriendRequest struct {
	ID         string  `json:"id"`
	ContactID  string  `json:"contact_id"`
	CreatedAt  string  `json:"created_at"`
	Accepted   bool    `json:"accepted"`
	AcceptedAt *string `json:"accepted_at"`
}

// ChatLink references a catalog entity from a chat message.
type ChatLink struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// ChatMessage is one line in a chat thread.
type ChatMessage struct {
	ID              string     `json:"id"`
	ChatID          string     `json:"chat_id"`
	SenderContactID string     `json:"sender_contact_id,omitempty"`
	Text            string     `json:"text"`
	CreatedAt       string     `json:"created_at"`
	Links           []ChatLink `json:"links"`
}

// Chat is a conversation thread with one contact.
type Chat struct {
	ID        string        `json:"id"`
	ContactID string        `json:"contact_id"`
	Opened    bool          `json:"opened"`
	Messages  []ChatMessage `json:"messages"`
}

// Linkables is the catalog of entities a chat message may link to.
type Linkables struct {
	NPCs   []ChatLink `json:"npcs"`
	Quests []ChatLink `json:"quests"`
	Items  []ChatLink `json:"items"`
}
