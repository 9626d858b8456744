package reducer

import (
	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/projection"
)

// upsertAbility stores the ability in the map its scope selects. Payloads
// without a full record synthesize one from their flat fields.
func upsertAbility(s *projection.Store, p *event.AbilityUpsert) Outcome {
	ab := p.Ability
	if ab == nil {
		if p.AbilityID == "" {
			return Malformed
		}
		ab = p.Synthesize()
	}
	if ab.ID == "" {
		return Malformed
	}
	target := s.AbilityMap(p.Scope, true)
	if target == nil {
		return Malformed
	}
	target[ab.ID] = ab
	return Applied
}

func removeAbility(s *projection.Store, p *event.AbilityRemoved) Outcome {
	id := p.TargetID()
	if id == "" {
		return Malformed
	}
	delete(s.AbilityMap(p.Scope, false), id)
	return Applied
}
