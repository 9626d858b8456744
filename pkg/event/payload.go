package event

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrWong99/aether/pkg/types"
)

// ErrUnknownKind is returned by [Event.Decode] for kinds outside the catalog.
var ErrUnknownKind = errors.New("event: unknown kind")

// Payload is one typed payload variant. The set of implementations is closed;
// consumers dispatch with a type switch.
type Payload interface {
	isPayload()
}

// Scope selects which ability map an ability event targets.
type Scope string

const (
	ScopeLibrary   Scope = "library"
	ScopeCharacter Scope = "character"
)

// XPGranted is the payload of [KindXPGranted].
type XPGranted struct {
	Amount int `json:"amount"`
}

// LevelUp is the payload of [KindLevelUp].
type LevelUp struct {
	NewLevel         int `json:"new_level"`
	StatPointsGained int `json:"stat_points_gained"`
}

// StatAllocated is the payload of [KindStatAllocated]. The remaining points
// are computed by the server.
type StatAllocated struct {
	StatID          string `json:"stat_id"`
	NewValue        *int   `json:"new_value"`
	Value           *int   `json:"value"`
	RemainingPoints *int   `json:"remaining_points"`
}

// InventoryAdded is the payload of [KindInventoryAdded].
type InventoryAdded struct {
	ItemInstanceID string  `json:"item_instance_id"`
	TemplateID     string  `json:"template_id"`
	Qty            *int    `json:"qty"`
	CustomName     *string `json:"custom_name"`
}

// InventoryRemoved is the payload of [KindInventoryRemoved].
type InventoryRemoved struct {
	ItemInstanceID string `json:"item_instance_id"`
}

// EquipmentEquipped is the payload of [KindEquipmentEquipped].
type EquipmentEquipped struct {
	ItemInstanceID string     `json:"item_instance_id"`
	Slot           types.Slot `json:"slot"`
}

// EquipmentUnequipped is the payload of [KindEquipmentUnequipped].
type EquipmentUnequipped struct {
	ItemInstanceID string     `json:"item_instance_id"`
	Slot           types.Slot `json:"slot"`
}

// EquipmentRequested is the payload of [KindEquipmentRequested].
type EquipmentRequested struct {
	ItemInstanceID string     `json:"item_instance_id"`
	Slot           types.Slot `json:"slot"`
}

// QuestPatch is a partial quest record. Only the fields present on the wire
// are merged onto an existing quest.
type QuestPatch struct {
	ID          string                 `json:"id"`
	TemplateID  Opt[string]            `json:"template_id"`
	Status      Opt[types.QuestStatus] `json:"status"`
	Objectives  Opt[[]types.Objective] `json:"objectives"`
	StartedAt   Opt[string]            `json:"started_at"`
	CompletedAt Opt[*string]           `json:"completed_at"`
}

// QuestAssigned is the payload of [KindQuestAssigned]. Servers send either
// the full quest or just its ids.
type QuestAssigned struct {
	Quest      *QuestPatch `json:"quest"`
	QuestID    string      `json:"quest_id"`
	TemplateID string      `json:"template_id"`
}

// QuestStatusChanged is the payload of [KindQuestStatus].
type QuestStatusChanged struct {
	Quest   *QuestPatch       `json:"quest"`
	QuestID string            `json:"quest_id"`
	Status  types.QuestStatus `json:"status"`
}

// MessagePatch is a partial system message record.
type MessagePatch struct {
	ID             string                    `json:"id"`
	Title          Opt[string]               `json:"title"`
	Body           Opt[string]               `json:"body"`
	Severity       Opt[types.Severity]       `json:"severity"`
	Collapsible    Opt[bool]                 `json:"collapsible"`
	Choices        Opt[[]types.ChoiceOption] `json:"choices"`
	ChosenOptionID Opt[*string]              `json:"chosen_option_id"`
	CreatedAt      Opt[string]               `json:"created_at"`
	Sound          Opt[*string]              `json:"sound"`
	Effect         Opt[*string]              `json:"effect"`
}

// MessageSent is the payload of [KindMessageSent].
type MessageSent struct {
	Message *MessagePatch `json:"message"`
}

// MessageChoice is the payload of [KindMessageChoice].
type MessageChoice struct {
	Message        *MessagePatch `json:"message"`
	MessageID      string        `json:"message_id"`
	OptionID       string        `json:"option_id"`
	ChosenOptionID string        `json:"chosen_option_id"`
}

// PlayerFreeze is the payload of [KindPlayerFreeze].
type PlayerFreeze struct {
	Frozen bool `json:"frozen"`
}

// CurrencyUpdated is the payload of [KindCurrencyUpdated].
type CurrencyUpdated struct {
	CurrencyID string `json:"currency_id"`
	NewValue   *int   `json:"new_value"`
	Value      *int   `json:"value"`
}

// ResourceUpdated is the payload of [KindResourceUpdated].
type ResourceUpdated struct {
	ResourceID string `json:"resource_id"`
	Current    *int   `json:"current"`
	Max        *int   `json:"max"`
	Maximum    *int   `json:"maximum"`
}

// ReputationUpdated is the payload of [KindReputationUpdated].
type ReputationUpdated struct {
	ReputationID string `json:"reputation_id"`
	NewValue     *int   `json:"new_value"`
	Value        *int   `json:"value"`
}

// AbilityUpsert is the payload of [KindAbilityAdded] and
// [KindAbilityUpdated].
//
// A payload without a full ability record may describe one with flat fields
// next to ability_id.
type AbilityUpsert struct {
	Scope       Scope          `json:"scope"`
	CharacterID string         `json:"character_id"`
	Ability     *types.Ability `json:"ability"`
	AbilityID   string         `json:"ability_id"`

	Name        string  `json:"name"`
	Description string  `json:"description"`
	CategoryID  string  `json:"category_id"`
	Active      *bool   `json:"active"`
	Hidden      *bool   `json:"hidden"`
	CooldownS   *int    `json:"cooldown_s"`
	Cost        *string `json:"cost"`
	Source      string  `json:"source"`
}

// Synthesize builds an ability from the flat fields. Name defaults to
// "Ability", source to "event" and active to true.
func (p *AbilityUpsert) Synthesize() *types.Ability {
	ab := &types.Ability{
		ID:          p.AbilityID,
		Name:        cmp.Or(p.Name, "Ability"),
		Description: p.Description,
		CategoryID:  p.CategoryID,
		Active:      true,
		CooldownS:   p.CooldownS,
		Cost:        p.Cost,
		Source:      cmp.Or(p.Source, "event"),
	}
	if p.Active != nil {
		ab.Active = *p.Active
	}
	if p.Hidden != nil {
		ab.Hidden = *p.Hidden
	}
	return ab
}

// AbilityRemoved is the payload of [KindAbilityRemoved].
type AbilityRemoved struct {
	Scope       Scope  `json:"scope"`
	CharacterID string `json:"character_id"`
	AbilityID   string `json:"ability_id"`
	ID          string `json:"id"`
}

// TargetID returns the id of the ability to remove.
func (p *AbilityRemoved) TargetID() string {
	if p.AbilityID != "" {
		return p.AbilityID
	}
	return p.ID
}

// XPCurvePatch is a partial [types.XPCurve].
type XPCurvePatch struct {
	BaseXP     Opt[int]     `json:"base_xp"`
	GrowthRate Opt[float64] `json:"growth_rate"`
}

// StatRulePatch is a partial [types.StatRule].
type StatRulePatch struct {
	BasePerLevel Opt[int] `json:"base_per_level"`
	BonusEvery5  Opt[int] `json:"bonus_every_5"`
	BonusEvery10 Opt[int] `json:"bonus_every_10"`
}

// SettingsUpdated is the payload of [KindSettingsUpdated]. Absent fields
// leave the current settings untouched.
type SettingsUpdated struct {
	XPCurve             *XPCurvePatch             `json:"xp_curve"`
	StatRule            *StatRulePatch            `json:"stat_rule"`
	SheetSections       Opt[[]types.SheetSection] `json:"sheet_sections"`
	EquipmentCategoryID Opt[string]               `json:"equipment_category_id"`
}

// ClassBonusUpdated is the payload of [KindClassBonusUpdated].
type ClassBonusUpdated struct {
	ClassID       string         `json:"class_id"`
	PerLevelBonus map[string]int `json:"per_level_bonus"`
}

// ItemTemplateUpserted is the payload of [KindItemTemplateUpserted].
type ItemTemplateUpserted struct {
	Template *types.ItemTemplate `json:"template"`
}

// MessageTemplateUpserted is the payload of [KindMessageTemplateUpserted].
type MessageTemplateUpserted struct {
	Template *types.MessageTemplate `json:"template"`
}

// ContactBody is the nested contact record some servers send.
type ContactBody struct {
	DisplayName string         `json:"display_name"`
	LinkPayload map[string]any `json:"link_payload"`
}

// ContactAdded is the payload of [KindContactAdded].
type ContactAdded struct {
	ContactID   string         `json:"contact_id"`
	DisplayName string         `json:"display_name"`
	LinkPayload map[string]any `json:"link_payload"`
	Contact     *ContactBody   `json:"contact"`
}

// FriendRequestSent is the payload of [KindFriendRequestSent].
type FriendRequestSent struct {
	RequestID string `json:"request_id"`
	ContactID string `json:"contact_id"`
	CreatedAt string `json:"created_at"`
}

// FriendRequestAccepted is the payload of [KindFriendRequestAccepted].
type FriendRequestAccepted struct {
	RequestID  string `json:"request_id"`
	ContactID  string `json:"contact_id"`
	ChatID     string `json:"chat_id"`
	AcceptedAt string `json:"accepted_at"`
}

// ChatMessagePosted is the payload of [KindChatMessage].
type ChatMessagePosted struct {
	ChatID          string           `json:"chat_id"`
	MessageID       string           `json:"message_id"`
	SenderContactID string           `json:"sender_contact_id"`
	Text            string           `json:"text"`
	Links           []types.ChatLink `json:"links"`
}

func (*XPGranted) isPayload()               {}
func (*LevelUp) isPayload()                 {}
func (*StatAllocated) isPayload()           {}
func (*InventoryAdded) isPayload()          {}
func (*InventoryRemoved) isPayload()        {}
func (*EquipmentEquipped) isPayload()       {}
func (*EquipmentUnequipped) isPayload()     {}
func (*EquipmentRequested) isPayload()      {}
func (*QuestAssigned) isPayload()           {}
func (*QuestStatusChanged) isPayload()      {}
func (*MessageSent) isPayload()             {}
func (*MessageChoice) isPayload()           {}
func (*PlayerFreeze) isPayload()            {}
func (*CurrencyUpdated) isPayload()         {}
func (*ResourceUpdated) isPayload()         {}
func (*ReputationUpdated) isPayload()       {}
func (*AbilityUpsert) isPayload()           {}
func (*AbilityRemoved) isPayload()          {}
func (*SettingsUpdated) isPayload()         {}
func (*ClassBonusUpdated) isPayload()       {}
func (*ItemTemplateUpserted) isPayload()    {}
func (*MessageTemplateUpserted) isPayload() {}
func (*ContactAdded) isPayload()            {}
func (*FriendRequestSent) isPayload()       {}
func (*FriendRequestAccepted) isPayload()   {}
func (*ChatMessagePosted) isPayload()       {}

// Decode parses the raw payload into the typed variant for e.Kind.
// It returns [ErrUnknownKind] for kinds outside the catalog and a wrapped
// JSON error for payloads that do not match the expected shape. A missing
// or null payload decodes as an empty object.
func (e Event) Decode() (Payload, error) {
	var p Payload
	switch e.Kind {
	case KindXPGranted:
		p = &XPGranted{}
	case KindLevelUp:
		p = &LevelUp{}
	case KindStatAllocated:
		p = &StatAllocated{}
	case KindInventoryAdded:
		p = &InventoryAdded{}
	case KindInventoryRemoved:
		p = &InventoryRemoved{}
	case KindEquipmentEquipped:
		p = &EquipmentEquipped{}
	case KindEquipmentUnequipped:
		p = &EquipmentUnequipped{}
	case KindEquipmentRequested:
		p = &EquipmentRequested{}
	case KindQuestAssigned:
		p = &QuestAssigned{}
	case KindQuestStatus:
		p = &QuestStatusChanged{}
	case KindMessageSent:
		p = &MessageSent{}
	case KindMessageChoice:
		p = &MessageChoice{}
	case KindPlayerFreeze:
		p = &PlayerFreeze{}
	case KindCurrencyUpdated:
		p = &CurrencyUpdated{}
	case KindResourceUpdated:
		p = &ResourceUpdated{}
	case KindReputationUpdated:
		p = &ReputationUpdated{}
	case KindAbilityAdded, KindAbilityUpdated:
		p = &AbilityUpsert{}
	case KindAbilityRemoved:
		p = &AbilityRemoved{}
	case KindSettingsUpdated:
		p = &SettingsUpdated{}
	case KindClassBonusUpdated:
		p = &ClassBonusUpdated{}
	case KindItemTemplateUpserted:
		p = &ItemTemplateUpserted{}
	case KindMessageTemplateUpserted:
		p = &MessageTemplateUpserted{}
	case KindContactAdded:
		p = &ContactAdded{}
	case KindFriendRequestSent:
		p = &FriendRequestSent{}
	case KindFriendRequestAccepted:
		p = &FriendRequestAccepted{}
	case KindChatMessage:
		p = &ChatMessagePosted{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}

	raw := bytes.TrimSpace(e.Payload)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("event: decode %s: %w", e.Kind, err)
		}
	}

	switch v := p.(type) {
	case *AbilityUpsert:
		v.Scope = resolveScope(v.Scope, v.CharacterID)
	case *AbilityRemoved:
		v.Scope = resolveScope(v.Scope, v.CharacterID)
	}
	return p, nil
}

// resolveScope maps the wire scope onto the two-valued enum. An explicit
// scope wins; otherwise a character id selects the character map.
func resolveScope(s Scope, characterID string) Scope {
	switch s {
	case ScopeLibrary, ScopeCharacter:
		return s
	}
	if characterID != "" {
		return ScopeCharacter
	}
	return ScopeLibrary
}
