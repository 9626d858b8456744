package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/types"
)

// ---- request bodies ----

// Rules is the body of a rule settings update.
type Rules struct {
	XPCurve  types.XPCurve  `json:"xp_curve"`
	StatRule types.StatRule `json:"stat_rule"`
}

// ItemTemplateInput describes an item template to create or update. StatMods
// is passed through as raw JSON so text entered by a user can be checked
// before it is sent.
type ItemTemplateInput struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	ItemType    string          `json:"item_type"`
	Rarity      string          `json:"rarity,omitempty"`
	Description string          `json:"description,omitempty"`
	EquipSlots  []types.Slot    `json:"equip_slots,omitempty"`
	TwoHanded   bool            `json:"two_handed"`
	StatMods    json.RawMessage `json:"stat_mods,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
}

// Message is a system message to send, or the body of a message template.
type Message struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name,omitempty"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Severity    types.Severity `json:"severity"`
	Collapsible bool           `json:"collapsible"`
}

// AbilityInput describes an ability to create or update. An empty ID
// creates a new ability.
type AbilityInput struct {
	ID          string      `json:"id,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	CategoryID  string      `json:"category_id"`
	Active      bool        `json:"active"`
	Hidden      bool        `json:"hidden"`
	CooldownS   *int        `json:"cooldown_s,omitempty"`
	Cost        *string     `json:"cost,omitempty"`
	Source      string      `json:"source"`
	Scope       event.Scope `json:"scope"`
}

// ChatMessageInput is a chat line to send.
type ChatMessageInput struct {
	Text            string           `json:"text"`
	Links           []types.ChatLink `json:"links"`
	SenderContactID string           `json:"sender_contact_id,omitempty"`
}

// ---- character ----

// GrantXP awards amount experience to the character.
func (c *Client) GrantXP(ctx context.Context, amount int) ([]event.Event, error) {
	if amount <= 0 {
		return nil, invalid("xp amount must be positive, got %d", amount)
	}
	body := struct {
		Amount int `json:"amount"`
	}{amount}
	return c.command(ctx, "GrantXP", http.MethodPost, "/api/host/grant-xp", nil, body)
}

// LevelUp raises the character by levels.
func (c *Client) LevelUp(ctx context.Context, levels int) ([]event.Event, error) {
	if levels <= 0 {
		return nil, invalid("levels must be positive, got %d", levels)
	}
	body := struct {
		Levels int `json:"levels"`
	}{levels}
	return c.command(ctx, "LevelUp", http.MethodPost, "/api/host/level-up", nil, body)
}

// AllocateStat spends points unspent stat points on statID.
func (c *Client) AllocateStat(ctx context.Context, statID string, points int) ([]event.Event, error) {
	if strings.TrimSpace(statID) == "" {
		return nil, invalid("stat id is required")
	}
	if points <= 0 {
		return nil, invalid("points must be positive, got %d", points)
	}
	body := struct {
		StatID string `json:"stat_id"`
		Points int    `json:"points"`
	}{statID, points}
	return c.command(ctx, "AllocateStat", http.MethodPost, "/api/player/stats/allocate", nil, body)
}

// Freeze locks or unlocks the player's sheet.
func (c *Client) Freeze(ctx context.Context, frozen bool) ([]event.Event, error) {
	body := struct {
		Frozen bool `json:"frozen"`
	}{frozen}
	return c.command(ctx, "Freeze", http.MethodPost, "/api/host/freeze", nil, body)
}

// SetCurrency sets a currency balance.
func (c *Client) SetCurrency(ctx context.Context, currencyID string, value int) ([]event.Event, error) {
	if strings.TrimSpace(currencyID) == "" {
		return nil, invalid("currency id is required")
	}
	body := struct {
		CurrencyID string `json:"currency_id"`
		Value      int    `json:"value"`
	}{currencyID, value}
	return c.command(ctx, "SetCurrency", http.MethodPost, "/api/host/currencies", nil, body)
}

// SetResource sets a resource pool to current out of maximum.
func (c *Client) SetResource(ctx context.Context, resourceID string, current, maximum int) ([]event.Event, error) {
	if strings.TrimSpace(resourceID) == "" {
		return nil, invalid("resource id is required")
	}
	if maximum < 0 {
		return nil, invalid("resource maximum must not be negative, got %d", maximum)
	}
	body := struct {
		ResourceID string `json:"resource_id"`
		Current    int    `json:"current"`
		Maximum    int    `json:"maximum"`
	}{resourceID, current, maximum}
	return c.command(ctx, "SetResource", http.MethodPost, "/api/host/resources", nil, body)
}

// SetReputation sets a faction standing.
func (c *Client) SetReputation(ctx context.Context, reputationID string, value int) ([]event.Event, error) {
	if strings.TrimSpace(reputationID) == "" {
		return nil, invalid("reputation id is required")
	}
	body := struct {
		ReputationID string `json:"reputation_id"`
		Value        int    `json:"value"`
	}{reputationID, value}
	return c.command(ctx, "SetReputation", http.MethodPost, "/api/host/reputations", nil, body)
}

// ---- settings ----

// UpdateRules replaces the xp curve and stat rule.
func (c *Client) UpdateRules(ctx context.Context, r Rules) ([]event.Event, error) {
	if r.XPCurve.BaseXP < 1 {
		return nil, invalid("xp curve base_xp must be at least 1, got %d", r.XPCurve.BaseXP)
	}
	if !(r.XPCurve.GrowthRate > 0) || math.IsInf(r.XPCurve.GrowthRate, 0) {
		return nil, invalid("xp curve growth_rate must be positive, got %v", r.XPCurve.GrowthRate)
	}
	if r.StatRule.BasePerLevel < 0 || r.StatRule.BonusEvery5 < 0 || r.StatRule.BonusEvery10 < 0 {
		return nil, invalid("stat rule values must not be negative")
	}
	return c.command(ctx, "UpdateRules", http.MethodPost, "/api/host/settings", nil, r)
}

// UpdateSheetSections replaces the sheet layout configuration.
func (c *Client) UpdateSheetSections(ctx context.Context, sections []types.SheetSection) ([]event.Event, error) {
	seen := make(map[string]struct{}, len(sections))
	for i, s := range sections {
		if strings.TrimSpace(s.Key) == "" {
			return nil, invalid("sheet section %d has no key", i)
		}
		if _, dup := seen[s.Key]; dup {
			return nil, invalid("duplicate sheet section %q", s.Key)
		}
		seen[s.Key] = struct{}{}
	}
	if sections == nil {
		sections = []types.SheetSection{}
	}
	body := struct {
		SheetSections []types.SheetSection `json:"sheet_sections"`
	}{sections}
	return c.command(ctx, "UpdateSheetSections", http.MethodPost, "/api/host/settings", nil, body)
}

// UpdateClassBonus replaces the per-level stat bonus of a class.
func (c *Client) UpdateClassBonus(ctx context.Context, classID string, bonus map[string]int) ([]event.Event, error) {
	if strings.TrimSpace(classID) == "" {
		return nil, invalid("class id is required")
	}
	if bonus == nil {
		bonus = map[string]int{}
	}
	body := struct {
		PerLevelBonus map[string]int `json:"per_level_bonus"`
	}{bonus}
	return c.command(ctx, "UpdateClassBonus", http.MethodPost,
		"/api/host/classes/"+escape(classID)+"/per-level-bonus", nil, body)
}

// UpsertItemTemplate creates or updates an item template.
func (c *Client) UpsertItemTemplate(ctx context.Context, in ItemTemplateInput) ([]event.Event, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalid("item template name is required")
	}
	for _, s := range in.EquipSlots {
		if !s.Valid() {
			return nil, invalid("unknown equipment slot %q", s)
		}
	}
	if len(in.StatMods) > 0 {
		var mods map[string]int
		if err := json.Unmarshal(in.StatMods, &mods); err != nil {
			return nil, invalid("stat mods must be a JSON object of integers: %v", err)
		}
	}
	return c.command(ctx, "UpsertItemTemplate", http.MethodPost, "/api/host/item-templates", nil, in)
}

// UpsertMessageTemplate creates or updates a reusable message.
func (c *Client) UpsertMessageTemplate(ctx context.Context, m Message) ([]event.Event, error) {
	if strings.TrimSpace(m.Name) == "" {
		return nil, invalid("message template name is required")
	}
	if err := validateMessage(&m); err != nil {
		return nil, err
	}
	return c.command(ctx, "UpsertMessageTemplate", http.MethodPost, "/api/host/message-templates", nil, m)
}

// ---- items ----

// AddItem instantiates qty of templateID into the inventory. An empty
// customName keeps the template's name.
func (c *Client) AddItem(ctx context.Context, templateID string, qty int, customName string) ([]event.Event, error) {
	if strings.TrimSpace(templateID) == "" {
		return nil, invalid("template id is required")
	}
	if qty < 1 {
		return nil, invalid("quantity must be at least 1, got %d", qty)
	}
	body := struct {
		TemplateID string  `json:"template_id"`
		Qty        int     `json:"qty"`
		CustomName *string `json:"custom_name,omitempty"`
	}{TemplateID: templateID, Qty: qty}
	if customName != "" {
		body.CustomName = &customName
	}
	return c.command(ctx, "AddItem", http.MethodPost, "/api/host/items", nil, body)
}

// RemoveItem deletes an item instance.
func (c *Client) RemoveItem(ctx context.Context, itemID string) ([]event.Event, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, invalid("item id is required")
	}
	return c.command(ctx, "RemoveItem", http.MethodDelete, "/api/host/items/"+escape(itemID), nil, nil)
}

type equipBody struct {
	ItemInstanceID string     `json:"item_instance_id"`
	Slot           types.Slot `json:"slot"`
}

func validateEquip(itemID string, slot types.Slot) error {
	if strings.TrimSpace(itemID) == "" {
		return invalid("item id is required")
	}
	if !slot.Valid() {
		return invalid("unknown equipment slot %q", slot)
	}
	return nil
}

// Equip puts an item into a slot.
func (c *Client) Equip(ctx context.Context, itemID string, slot types.Slot) ([]event.Event, error) {
	if err := validateEquip(itemID, slot); err != nil {
		return nil, err
	}
	return c.command(ctx, "Equip", http.MethodPost, "/api/host/equip", nil, equipBody{itemID, slot})
}

// RequestEquip asks the host to equip an item. The server answers with an
// equipment.requested event; the equipment itself does not change.
func (c *Client) RequestEquip(ctx context.Context, itemID string, slot types.Slot) ([]event.Event, error) {
	if err := validateEquip(itemID, slot); err != nil {
		return nil, err
	}
	return c.command(ctx, "RequestEquip", http.MethodPost, "/api/player/equip-request", nil, equipBody{itemID, slot})
}

// ---- quests & messages ----

// AssignQuest creates an active quest from a template.
func (c *Client) AssignQuest(ctx context.Context, templateID string) ([]event.Event, error) {
	if strings.TrimSpace(templateID) == "" {
		return nil, invalid("template id is required")
	}
	body := struct {
		TemplateID string `json:"template_id"`
	}{templateID}
	return c.command(ctx, "AssignQuest", http.MethodPost, "/api/host/quests", nil, body)
}

// SetQuestStatus moves a quest to status.
func (c *Client) SetQuestStatus(ctx context.Context, questID string, status types.QuestStatus) ([]event.Event, error) {
	if strings.TrimSpace(questID) == "" {
		return nil, invalid("quest id is required")
	}
	switch status {
	case types.QuestActive, types.QuestCompleted, types.QuestFailed, types.QuestHidden:
	default:
		return nil, invalid("unknown quest status %q", status)
	}
	body := struct {
		Status types.QuestStatus `json:"status"`
	}{status}
	return c.command(ctx, "SetQuestStatus", http.MethodPost, "/api/host/quests/"+escape(questID)+"/status", nil, body)
}

func validateMessage(m *Message) error {
	if strings.TrimSpace(m.Title) == "" {
		return invalid("message title is required")
	}
	switch m.Severity {
	case "":
		m.Severity = types.SeverityInfo
	case types.SeverityInfo, types.SeverityWarning, types.SeverityAlert:
	default:
		return invalid("unknown message severity %q", m.Severity)
	}
	return nil
}

// SendMessage delivers a system message to the player. An empty severity
// is sent as info.
func (c *Client) SendMessage(ctx context.Context, m Message) ([]event.Event, error) {
	if err := validateMessage(&m); err != nil {
		return nil, err
	}
	m.ID, m.Name = "", ""
	return c.command(ctx, "SendMessage", http.MethodPost, "/api/host/messages", nil, m)
}

// ChooseOption answers a choice message.
func (c *Client) ChooseOption(ctx context.Context, messageID, optionID string) ([]event.Event, error) {
	if strings.TrimSpace(messageID) == "" || strings.TrimSpace(optionID) == "" {
		return nil, invalid("message id and option id are required")
	}
	body := struct {
		OptionID string `json:"option_id"`
	}{optionID}
	return c.command(ctx, "ChooseOption", http.MethodPost, "/api/player/messages/"+escape(messageID)+"/choice", nil, body)
}

// ---- abilities ----

// UpsertAbility creates or updates an ability. Empty Source and Scope are
// sent as "manual" and "character".
func (c *Client) UpsertAbility(ctx context.Context, in AbilityInput) ([]event.Event, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalid("ability name is required")
	}
	if in.CooldownS != nil && *in.CooldownS < 0 {
		return nil, invalid("cooldown must not be negative, got %d", *in.CooldownS)
	}
	if in.Source == "" {
		in.Source = "manual"
	}
	scope, err := normalizeScope(in.Scope)
	if err != nil {
		return nil, err
	}
	in.Scope = scope
	return c.command(ctx, "UpsertAbility", http.MethodPost, "/api/host/abilities", nil, in)
}

// RemoveAbility deletes an ability from the library or the character.
func (c *Client) RemoveAbility(ctx context.Context, abilityID string, scope event.Scope) ([]event.Event, error) {
	if strings.TrimSpace(abilityID) == "" {
		return nil, invalid("ability id is required")
	}
	scope, err := normalizeScope(scope)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("scope", string(scope))
	return c.command(ctx, "RemoveAbility", http.MethodDelete, "/api/host/abilities/"+escape(abilityID), q, nil)
}

func normalizeScope(s event.Scope) (event.Scope, error) {
	switch s {
	case "":
		return event.ScopeCharacter, nil
	case event.ScopeCharacter, event.ScopeLibrary:
		return s, nil
	}
	return "", invalid("unknown ability scope %q", s)
}

// ---- chat ----

// AddContact creates an NPC contact. linkPayload may be empty; otherwise it
// must be a JSON object.
func (c *Client) AddContact(ctx context.Context, displayName string, linkPayload json.RawMessage) ([]event.Event, error) {
	if strings.TrimSpace(displayName) == "" {
		return nil, invalid("contact display name is required")
	}
	payload := map[string]any{}
	if len(linkPayload) > 0 {
		if err := json.Unmarshal(linkPayload, &payload); err != nil {
			return nil, invalid("link payload must be a JSON object: %v", err)
		}
		if payload == nil {
			payload = map[string]any{}
		}
	}
	body := struct {
		DisplayName string         `json:"display_name"`
		LinkPayload map[string]any `json:"link_payload"`
	}{displayName, payload}
	return c.command(ctx, "AddContact", http.MethodPost, "/api/host/contacts", nil, body)
}

// SendFriendRequest sends a friend request from a contact to the player.
func (c *Client) SendFriendRequest(ctx context.Context, contactID string) ([]event.Event, error) {
	if strings.TrimSpace(contactID) == "" {
		return nil, invalid("contact id is required")
	}
	body := struct {
		ContactID string `json:"contact_id"`
	}{contactID}
	return c.command(ctx, "SendFriendRequest", http.MethodPost, "/api/host/friend-requests", nil, body)
}

// AcceptFriendRequest accepts a pending request, opening its chat.
func (c *Client) AcceptFriendRequest(ctx context.Context, requestID string) ([]event.Event, error) {
	if strings.TrimSpace(requestID) == "" {
		return nil, invalid("request id is required")
	}
	return c.command(ctx, "AcceptFriendRequest", http.MethodPost,
		"/api/player/friend-requests/"+escape(requestID)+"/accept", nil, struct{}{})
}

// SendChatMessage posts a line to a chat on the client's role path. A chat
// must be selected; the message needs text.
func (c *Client) SendChatMessage(ctx context.Context, chatID string, in ChatMessageInput) ([]event.Event, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, invalid("no chat selected")
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, invalid("message text is required")
	}
	for i, l := range in.Links {
		if l.Type == "" || l.ID == "" {
			return nil, invalid("link %d needs a type and an id", i)
		}
	}
	if in.Links == nil {
		in.Links = []types.ChatLink{}
	}
	return c.command(ctx, "SendChatMessage", http.MethodPost, c.rolePath("/chats/"+escape(chatID)+"/messages"), nil, in)
}

// Linkables fetches the catalog of entities a chat message may link to.
func (c *Client) Linkables(ctx context.Context) (types.Linkables, error) {
	var l types.Linkables
	if err := c.do(ctx, "Linkables", http.MethodGet, c.rolePath("/linkables"), nil, nil, &l); err != nil {
		return types.Linkables{}, err
	}
	return l, nil
}
