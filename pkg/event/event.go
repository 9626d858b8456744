// Package event defines the closed catalog of domain events exchanged with
// the Aether server and their typed payloads.
//
// An [Event] is the wire record: a kind tag, a raw JSON payload, a timestamp
// and an optional sequence number. [Event.Decode] turns the raw payload into
// one of the typed variants in payload.go. Events are immutable once
// received; nothing in this package mutates state.
package event

import (
	"encoding/json"
	"strconv"
)

// Kind identifies the type of a domain event.
type Kind string

// Progression events.
const (
	// KindXPGranted adds experience and may roll the level over.
	KindXPGranted Kind = "xp.granted"
	// KindLevelUp grants stat points and the class per-level bonus.
	KindLevelUp Kind = "level.up"
	// KindStatAllocated sets a stat and the remaining unspent points.
	KindStatAllocated Kind = "stat.allocated"
)

// Inventory and equipment events.
const (
	KindInventoryAdded      Kind = "inventory.added"
	KindInventoryRemoved    Kind = "inventory.removed"
	KindEquipmentEquipped   Kind = "equipment.equipped"
	KindEquipmentUnequipped Kind = "equipment.unequipped"
	// KindEquipmentRequested is a player's request for the host to equip an
	// item. It has no effect on the projection.
	KindEquipmentRequested Kind = "equipment.requested"
)

// Quest and system message events.
const (
	KindQuestAssigned Kind = "quest.assigned"
	KindQuestStatus   Kind = "quest.status"
	KindMessageSent   Kind = "message.sent"
	KindMessageChoice Kind = "message.choice"
)

// Character sheet events.
const (
	KindPlayerFreeze      Kind = "player.freeze"
	KindCurrencyUpdated   Kind = "currency.updated"
	KindResourceUpdated   Kind = "resource.updated"
	KindReputationUpdated Kind = "reputation.updated"
	KindAbilityAdded      Kind = "ability.added"
	KindAbilityUpdated    Kind = "ability.updated"
	KindAbilityRemoved    Kind = "ability.removed"
)

// Catalog and settings events.
const (
	KindSettingsUpdated         Kind = "settings.updated"
	KindClassBonusUpdated       Kind = "class.per_level_bonus.updated"
	KindItemTemplateUpserted    Kind = "item.template.upserted"
	KindMessageTemplateUpserted Kind = "message.template.upserted"
)

// Chat events.
const (
	KindContactAdded          Kind = "chat.contact.added"
	KindFriendRequestSent     Kind = "chat.friend_request.sent"
	KindFriendRequestAccepted Kind = "chat.friend_request.accepted"
	KindChatMessage           Kind = "chat.message"
)

// Kinds lists the whole catalog in declaration order.
var Kinds = []Kind{
	KindXPGranted, KindLevelUp, KindStatAllocated,
	KindInventoryAdded, KindInventoryRemoved, KindEquipmentEquipped, KindEquipmentUnequipped, KindEquipmentRequested,
	KindQuestAssigned, KindQuestStatus, KindMessageSent, KindMessageChoice,
	KindPlayerFreeze, KindCurrencyUpdated, KindResourceUpdated, KindReputationUpdated,
	KindAbilityAdded, KindAbilityUpdated, KindAbilityRemoved,
	KindSettingsUpdated, KindClassBonusUpdated, KindItemTemplateUpserted, KindMessageTemplateUpserted,
	KindContactAdded, KindFriendRequestSent, KindFriendRequestAccepted, KindChatMessage,
}

var knownKinds = func() map[Kind]struct{} {
	m := make(map[Kind]struct{}, len(Kinds))
	for _, k := range Kinds {
		m[k] = struct{}{}
	}
	return m
}()

// Known reports whether k is part of the catalog.
func (k Kind) Known() bool {
	_, ok := knownKinds[k]
	return ok
}

// Actor identifies who triggered an event.
type Actor string

const (
	ActorHost   Actor = "host"
	ActorPlayer Actor = "player"
	ActorSystem Actor = "system"
)

// Event is a domain event as it crosses the wire.
type Event struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	// TS is the ISO-8601 timestamp assigned by the server.
	TS string `json:"ts"`
	// Seq is the server sequence number. Locally synthesized events have
	// none.
	Seq   *int64 `json:"seq,omitempty"`
	Actor Actor  `json:"actor,omitempty"`
}

// HasSeq reports whether the event carries a sequence number.
func (e Event) HasSeq() bool { return e.Seq != nil }

// SeqOr returns the sequence number, or def when the event has none.
func (e Event) SeqOr(def int64) int64 {
	if e.Seq == nil {
		return def
	}
	return *e.Seq
}

// String renders a short human-readable identity for logs.
func (e Event) String() string {
	if e.Seq != nil {
		return string(e.Kind) + "#" + strconv.FormatInt(*e.Seq, 10)
	}
	return string(e.Kind) + "@" + e.TS
}

// New builds an event with a JSON-encoded payload. It is used for locally
// synthesized events and in tests.
func New(kind Kind, seq *int64, ts string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, Payload: raw, TS: ts, Seq: seq}, nil
}

// Seq returns a pointer to n, for building events with a sequence number.
func Seq(n int64) *int64 { return &n }
