// Package reducer folds domain events into a projection store.
//
// [Apply] is the single entry point. It is total: every event, including
// unknown kinds and malformed payloads, returns normally and leaves the store
// in a consistent state. Events are applied exactly once; deduplication is
// the caller's job.
package reducer

import (
	"errors"

	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/projection"
	"github.com/MrWong99/aether/pkg/types"
)

// Outcome classifies what [Apply] did with an event.
type Outcome int

const (
	// Applied means the event was handled and may have changed the store.
	Applied Outcome = iota
	// Logged means the kind is known but has no effect on the projection.
	Logged
	// Ignored means the kind is not in the catalog.
	Ignored
	// Malformed means the payload could not be decoded or lacked the ids
	// the handler needs. The store is unchanged.
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Logged:
		return "logged"
	case Ignored:
		return "ignored"
	case Malformed:
		return "malformed"
	}
	return "unknown"
}

// maxLevelsPerGrant caps the level roll-over loop of a single xp.granted
// event so that a degenerate curve cannot spin forever.
const maxLevelsPerGrant = 10_000

// Apply mutates s according to e and reports the outcome.
func Apply(s *projection.Store, e event.Event) Outcome {
	if s == nil {
		return Malformed
	}
	p, err := e.Decode()
	if err != nil {
		if errors.Is(err, event.ErrUnknownKind) {
			return Ignored
		}
		return Malformed
	}

	switch p := p.(type) {
	case *event.XPGranted:
		return grantXP(s, p)
	case *event.LevelUp:
		return levelUp(s, p, e.TS)
	case *event.StatAllocated:
		return allocateStat(s, p)
	case *event.InventoryAdded:
		return addItem(s, p)
	case *event.InventoryRemoved:
		return removeItem(s, p)
	case *event.EquipmentEquipped:
		return equip(s, p)
	case *event.EquipmentUnequipped:
		return unequip(s, p)
	case *event.EquipmentRequested:
		return Logged
	case *event.QuestAssigned:
		return assignQuest(s, p, e.TS)
	case *event.QuestStatusChanged:
		return setQuestStatus(s, p)
	case *event.MessageSent:
		if s.UpsertMessage(p.Message) == nil {
			return Malformed
		}
		return Applied
	case *event.MessageChoice:
		return chooseOption(s, p)
	case *event.PlayerFreeze:
		if s.Character == nil {
			return Malformed
		}
		s.Character.Frozen = p.Frozen
		return Applied
	case *event.CurrencyUpdated:
		return setCounter(s, func(c *types.Character) map[string]int { return c.Currencies },
			func(c *types.Character, m map[string]int) { c.Currencies = m },
			p.CurrencyID, firstInt(p.NewValue, p.Value))
	case *event.ReputationUpdated:
		return setCounter(s, func(c *types.Character) map[string]int { return c.Reputations },
			func(c *types.Character, m map[string]int) { c.Reputations = m },
			p.ReputationID, firstInt(p.NewValue, p.Value))
	case *event.ResourceUpdated:
		return setResource(s, p)
	case *event.AbilityUpsert:
		return upsertAbility(s, p)
	case *event.AbilityRemoved:
		return removeAbility(s, p)
	case *event.SettingsUpdated:
		return updateSettings(s, p)
	case *event.ClassBonusUpdated:
		return updateClassBonus(s, p)
	case *event.ItemTemplateUpserted:
		if p.Template == nil || p.Template.ID == "" {
			return Malformed
		}
		if s.ItemTemplates == nil {
			s.ItemTemplates = make(map[string]*types.ItemTemplate)
		}
		s.ItemTemplates[p.Template.ID] = p.Template
		return Applied
	case *event.MessageTemplateUpserted:
		if p.Template == nil || p.Template.ID == "" {
			return Malformed
		}
		if s.MessageTemplates == nil {
			s.MessageTemplates = make(map[string]*types.MessageTemplate)
		}
		s.MessageTemplates[p.Template.ID] = p.Template
		return Applied
	case *event.ContactAdded:
		return addContact(s, p)
	case *event.FriendRequestSent:
		return sendFriendRequest(s, p, e.TS)
	case *event.FriendRequestAccepted:
		return acceptFriendRequest(s, p, e.TS)
	case *event.ChatMessagePosted:
		return postChatMessage(s, p, e.TS)
	}
	return Ignored
}

// ApplyAll applies events in order and returns one outcome per event.
func ApplyAll(s *projection.Store, events []event.Event) []Outcome {
	out := make([]Outcome, len(events))
	for i, e := range events {
		out[i] = Apply(s, e)
	}
	return out
}

func firstInt(vals ...*int) int {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}
