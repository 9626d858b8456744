package reducer

import (
	"github.com/MrWong99/aether/internal/derive"
	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/projection"
	"github.com/MrWong99/aether/pkg/types"
)

// grantXP adds experience and rolls the level over while the curve allows.
// A zero xp-to-next means no curve is configured and stops the loop. Without
// settings the grant is recorded but not applied.
func grantXP(s *projection.Store, p *event.XPGranted) Outcome {
	c := s.Character
	if c == nil {
		return Malformed
	}
	if s.Settings == nil {
		return Logged
	}
	c.XP += p.Amount
	if c.Level < 1 {
		c.Level = 1
	}
	for range maxLevelsPerGrant {
		need := derive.XPToNext(c.Level, s.Settings)
		if need <= 0 || c.XP < need {
			break
		}
		c.XP -= need
		c.Level++
	}
	if c.XP < 0 {
		c.XP = 0
	}
	return Applied
}

// levelUp grants stat points additively, catches the level up to the
// server's value and applies the class per-level bonus once.
func levelUp(s *projection.Store, p *event.LevelUp, ts string) Outcome {
	c := s.Character
	if c == nil {
		return Malformed
	}
	c.UnspentStatPoints = max(0, c.UnspentStatPoints+p.StatPointsGained)
	if p.NewLevel > c.Level {
		c.Level = p.NewLevel
	}
	if class := s.Class(); class != nil && len(class.PerLevelBonus) > 0 {
		if c.Stats == nil {
			c.Stats = make(map[string]int)
		}
		for stat, delta := range class.PerLevelBonus {
			c.Stats[stat] += delta
		}
	}
	s.LastLevelUp = &projection.LevelUpMarker{Level: c.Level, TS: ts}
	return Applied
}

// allocateStat sets the stat to the server's value and takes the remaining
// points from the server instead of subtracting locally.
func allocateStat(s *projection.Store, p *event.StatAllocated) Outcome {
	c := s.Character
	if c == nil || p.StatID == "" {
		return Malformed
	}
	if c.Stats == nil {
		c.Stats = make(map[string]int)
	}
	c.Stats[p.StatID] = firstInt(p.NewValue, p.Value)
	if p.RemainingPoints != nil {
		c.UnspentStatPoints = max(0, *p.RemainingPoints)
	}
	return Applied
}

func setCounter(
	s *projection.Store,
	get func(*types.Character) map[string]int,
	set func(*types.Character, map[string]int),
	id string, value int,
) Outcome {
	c := s.Character
	if c == nil || id == "" {
		return Malformed
	}
	m := get(c)
	if m == nil {
		m = make(map[string]int)
		set(c, m)
	}
	m[id] = value
	return Applied
}

func setResource(s *projection.Store, p *event.ResourceUpdated) Outcome {
	c := s.Character
	if c == nil || p.ResourceID == "" {
		return Malformed
	}
	if c.Resources == nil {
		c.Resources = make(map[string]types.Resource)
	}
	c.Resources[p.ResourceID] = types.Resource{firstInt(p.Current), firstInt(p.Max, p.Maximum)}
	return Applied
}

func updateSettings(s *projection.Store, p *event.SettingsUpdated) Outcome {
	if s.Settings == nil {
		s.Settings = &types.Settings{}
	}
	st := s.Settings
	if p.XPCurve != nil {
		p.XPCurve.BaseXP.Apply(&st.XPCurve.BaseXP)
		p.XPCurve.GrowthRate.Apply(&st.XPCurve.GrowthRate)
	}
	if p.StatRule != nil {
		p.StatRule.BasePerLevel.Apply(&st.StatRule.BasePerLevel)
		p.StatRule.BonusEvery5.Apply(&st.StatRule.BonusEvery5)
		p.StatRule.BonusEvery10.Apply(&st.StatRule.BonusEvery10)
	}
	if p.SheetSections.Set {
		st.SheetSections = p.SheetSections.Value
		s.SheetSectionsKey = ""
	}
	p.EquipmentCategoryID.Apply(&st.EquipmentCategoryID)
	return Applied
}

func updateClassBonus(s *projection.Store, p *event.ClassBonusUpdated) Outcome {
	class := s.Classes[p.ClassID]
	if class == nil {
		return Malformed
	}
	class.PerLevelBonus = p.PerLevelBonus
	if class.PerLevelBonus == nil {
		class.PerLevelBonus = map[string]int{}
	}
	return Applied
}
