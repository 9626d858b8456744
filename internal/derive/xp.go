// Package derive computes read-only views over the projection: the XP curve,
// equip-slot eligibility, item names, message collapse state, sheet layout
// and catalog search. Nothing here mutates the store.
package derive

import (
	"math"

	"github.com/MrWong99/aether/pkg/types"
)

// maxXPToNext bounds the curve so that float results never overflow int.
const maxXPToNext = math.MaxInt32

// XPToNext returns the experience needed to advance from level to level+1:
// round(base_xp * growth_rate^(level-1)). It returns 0 when no curve is
// configured, which callers treat as "uncapped".
func XPToNext(level int, settings *types.Settings) int {
	if settings == nil || settings.XPCurve.BaseXP <= 0 {
		return 0
	}
	if level < 1 {
		level = 1
	}
	raw := float64(settings.XPCurve.BaseXP) * math.Pow(settings.XPCurve.GrowthRate, float64(level-1))
	switch {
	case math.IsNaN(raw) || raw <= 0:
		return 0
	case raw >= maxXPToNext:
		return maxXPToNext
	}
	return int(math.Round(raw))
}

// Progress is the character's position on the current level.
type Progress struct {
	Level   int     `json:"level"`
	XP      int     `json:"xp"`
	Needed  int     `json:"needed"`
	Percent float64 `json:"percent"`
}

// LevelProgress reports how far c is towards its next level. Percent is 0
// when no curve is configured and capped at 100.
func LevelProgress(c *types.Character, settings *types.Settings) Progress {
	if c == nil {
		return Progress{}
	}
	p := Progress{Level: c.Level, XP: c.XP, Needed: XPToNext(c.Level, settings)}
	if p.Needed > 0 {
		p.Percent = min(100, float64(c.XP)/float64(p.Needed)*100)
	}
	return p
}

// StatPointsOnLevel returns the stat points granted on reaching level:
// the base amount plus the bonus for every fifth and every tenth level.
func StatPointsOnLevel(level int, rule types.StatRule) int {
	pts := rule.BasePerLevel
	if level%5 == 0 {
		pts += rule.BonusEvery5
	}
	if level%10 == 0 {
		pts += rule.BonusEvery10
	}
	return pts
}

// StatPointsForRange sums [StatPointsOnLevel] for every level in
// (from, to].
func StatPointsForRange(from, to int, rule types.StatRule) int {
	total := 0
	for level := from + 1; level <= to; level++ {
		total += StatPointsOnLevel(level, rule)
	}
	return total
}
