package reducer

import (
	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/projection"
	"github.com/MrWong99/aether/pkg/types"
)

func addItem(s *projection.Store, p *event.InventoryAdded) Outcome {
	c := s.Character
	if c == nil || p.ItemInstanceID == "" {
		return Malformed
	}
	if c.Inventory == nil {
		c.Inventory = make(map[string]*types.ItemInstance)
	}
	qty := 1
	if p.Qty != nil && *p.Qty > 1 {
		qty = *p.Qty
	}
	c.Inventory[p.ItemInstanceID] = &types.ItemInstance{
		ID:         p.ItemInstanceID,
		TemplateID: p.TemplateID,
		Qty:        qty,
		CustomName: p.CustomName,
		Meta:       map[string]any{},
	}
	return Applied
}

// removeItem deletes the instance and clears every slot that referenced it.
func removeItem(s *projection.Store, p *event.InventoryRemoved) Outcome {
	c := s.Character
	if c == nil || p.ItemInstanceID == "" {
		return Malformed
	}
	delete(c.Inventory, p.ItemInstanceID)
	for slot, id := range c.Equipment {
		if id == p.ItemInstanceID {
			c.Equipment[slot] = ""
		}
	}
	if s.SelectedItemID == p.ItemInstanceID {
		s.SelectedItemID = ""
	}
	return Applied
}

// equip writes the item into the slot. A two-handed template equipped in
// either weapon slot occupies both; a one-handed item replacing a two-handed
// pair frees the other weapon slot as well.
func equip(s *projection.Store, p *event.EquipmentEquipped) Outcome {
	c := s.Character
	if c == nil || p.Slot == "" {
		return Malformed
	}
	if c.Equipment == nil {
		c.Equipment = make(map[types.Slot]string)
	}
	_, tpl := s.ItemTemplateFor(p.ItemInstanceID)
	if tpl != nil && tpl.TwoHanded && p.Slot.IsWeapon() {
		c.Equipment[types.SlotWeapon1] = p.ItemInstanceID
		c.Equipment[types.SlotWeapon2] = p.ItemInstanceID
		return Applied
	}
	if p.Slot.IsWeapon() {
		if cur, other := c.Equipment[p.Slot], c.Equipment[otherWeapon(p.Slot)]; cur != "" && cur == other {
			c.Equipment[types.SlotWeapon1] = ""
			c.Equipment[types.SlotWeapon2] = ""
		}
	}
	c.Equipment[p.Slot] = p.ItemInstanceID
	return Applied
}

// unequip clears the slot. When the other weapon slot holds the same item,
// the item was a two-handed pair and that slot is cleared too.
func unequip(s *projection.Store, p *event.EquipmentUnequipped) Outcome {
	c := s.Character
	if c == nil || p.Slot == "" {
		return Malformed
	}
	held := c.Equipment[p.Slot]
	if c.Equipment != nil {
		c.Equipment[p.Slot] = ""
	}
	if held == "" || !p.Slot.IsWeapon() {
		return Applied
	}
	if other := otherWeapon(p.Slot); c.Equipment[other] == held {
		c.Equipment[other] = ""
	}
	return Applied
}

// otherWeapon returns the weapon slot paired with slot.
func otherWeapon(slot types.Slot) types.Slot {
	if slot == types.SlotWeapon1 {
		return types.SlotWeapon2
	}
	return types.SlotWeapon1
}
