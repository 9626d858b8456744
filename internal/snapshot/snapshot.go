// Package snapshot seeds a projection store from a server snapshot.
//
// [Load] is the only operation allowed to discard accumulated local state:
// it replaces every entity, clears the event log and transient view state,
// and resets the deduplication ledger so a new snapshot epoch starts.
package snapshot

import (
	"bytes"
	"encoding/json"

	"github.com/MrWong99/aether/internal/ledger"
	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/projection"
)

// Response is the body of GET /api/snapshot.
type Response struct {
	Snapshot projection.Snapshot `json:"snapshot"`
	LastSeq  int64               `json:"last_seq"`
}

// File is an exported campaign: a snapshot, its cursor and optionally the
// event history up to that cursor. It is the body of /api/host/export and
// /api/host/import and of offline fixture files.
//
// A decoded File keeps the document it was decoded from and encodes back to
// exactly that document, so keys the client does not model (for example
// recovery markers or template fields added by newer servers) survive an
// export/import cycle. The typed fields are a read-only view for replay;
// editing them does not change what a decoded File encodes to.
type File struct {
	Snapshot      projection.Snapshot
	LastSeq       int64
	Events        []event.Event
	SchemaVersion *int

	doc json.RawMessage
}

// fileView is the typed part of the export document.
type fileView struct {
	Snapshot      projection.Snapshot `json:"snapshot"`
	LastSeq       int64               `json:"last_seq"`
	Events        []event.Event       `json:"events,omitempty"`
	SchemaVersion *int                `json:"schema_version,omitempty"`
}

// MarshalJSON returns the original document of a decoded File, or the typed
// fields of one built in code.
func (f File) MarshalJSON() ([]byte, error) {
	if f.doc != nil {
		return f.doc, nil
	}
	return json.Marshal(fileView{
		Snapshot:      f.Snapshot,
		LastSeq:       f.LastSeq,
		Events:        f.Events,
		SchemaVersion: f.SchemaVersion,
	})
}

// UnmarshalJSON fills the typed view and keeps data verbatim. Keys without a
// typed field are ignored by the view, never rejected.
func (f *File) UnmarshalJSON(data []byte) error {
	var v fileView
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = File{
		Snapshot:      v.Snapshot,
		LastSeq:       v.LastSeq,
		Events:        v.Events,
		SchemaVersion: v.SchemaVersion,
		doc:           bytes.Clone(data),
	}
	return nil
}

// Document returns the JSON document f encodes to.
func (f *File) Document() (json.RawMessage, error) {
	return f.MarshalJSON()
}

// Load replaces the contents of s with snap and resets l.
//
// The store keeps its identity so that holders of the pointer observe the
// new epoch. The linkable catalog is fetched separately and survives; the
// selected item survives only if it still exists in the new inventory.
func Load(s *projection.Store, l *ledger.Ledger, snap projection.Snapshot) {
	selected := s.SelectedItemID
	linkables := s.Linkables

	*s = projection.Store{
		CampaignID:        snap.ID,
		Character:         snap.Character,
		Classes:           snap.Classes,
		ItemTemplates:     snap.ItemTemplates,
		QuestTemplates:    snap.QuestTemplates,
		MessageTemplates:  snap.MessageTemplates,
		AbilityCategories: snap.AbilityCategories,
		Abilities:         snap.Abilities,
		ActiveQuests:      snap.ActiveQuests,
		SystemMessages:    snap.SystemMessages,
		Settings:          snap.Settings,
		Contacts:          snap.Contacts,
		Chats:             snap.Chats,
		FriendRequests:    snap.FriendRequests,
		Linkables:         linkables,
	}
	s.Normalize()

	if s.Character != nil {
		if _, ok := s.Character.Inventory[selected]; ok {
			s.SelectedItemID = selected
		}
	}
	if l != nil {
		l.Reset()
	}
}
