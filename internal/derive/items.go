package derive

import (
	"slices"

	"github.com/MrWong99/aether/pkg/projection"
	"github.com/MrWong99/aether/pkg/types"
)

// UnknownItemName is shown for items whose template cannot be resolved.
const UnknownItemName = "Unknown item"

// slotHints maps an item type to the slots it fits when its template lists
// none explicitly.
var slotHints = map[string][]types.Slot{
	"weapon":    {types.SlotWeapon1, types.SlotWeapon2},
	"armor":     {types.SlotHead, types.SlotTorso, types.SlotLegs, types.SlotBoots},
	"accessory": {types.SlotRing1, types.SlotRing2},
}

// ItemName returns the display name of an inventory item: its custom name,
// then its template's name, then [UnknownItemName].
func ItemName(s *projection.Store, itemID string) string {
	item, tpl := s.ItemTemplateFor(itemID)
	if item != nil && item.CustomName != nil && *item.CustomName != "" {
		return *item.CustomName
	}
	if tpl != nil && tpl.Name != "" {
		return tpl.Name
	}
	return UnknownItemName
}

// ItemSlots returns the equipment slots the inventory item may occupy.
//
// The template's explicit equip_slots win; otherwise the item type's hint is
// used. The character's class then narrows the result to its allowed slots,
// and empties it entirely when the item type is not allowed. Unknown items
// and templates yield no slots.
func ItemSlots(s *projection.Store, itemID string) []types.Slot {
	_, tpl := s.ItemTemplateFor(itemID)
	if tpl == nil {
		return nil
	}
	slots := tpl.EquipSlots
	if len(slots) == 0 {
		slots = slotHints[tpl.ItemType]
	}
	slots = slices.Clone(slots)

	class := s.Class()
	if class == nil {
		return slots
	}
	if len(class.AllowedSlots) > 0 {
		slots = slices.DeleteFunc(slots, func(slot types.Slot) bool {
			return !slices.Contains(class.AllowedSlots, slot)
		})
	}
	if len(class.AllowedItemTypes) > 0 && !slices.Contains(class.AllowedItemTypes, tpl.ItemType) {
		return nil
	}
	return slots
}

// CanEquip reports whether itemID may be placed in slot.
func CanEquip(s *projection.Store, itemID string, slot types.Slot) bool {
	return slices.Contains(ItemSlots(s, itemID), slot)
}

// EquippedIn returns the slots currently holding itemID, in display order.
func EquippedIn(c *types.Character, itemID string) []types.Slot {
	if c == nil || itemID == "" {
		return nil
	}
	var out []types.Slot
	for _, slot := range types.AllSlots {
		if c.Equipment[slot] == itemID {
			out = append(out, slot)
		}
	}
	return out
}
