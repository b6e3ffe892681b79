package engine

import "math/rand"

// levelThresholds[i] is the total XP needed to reach level i+2; level 1
// is the floor. The table must stay monotonic. An array rather than a
// slice so MaxLevel stays a constant.
var levelThresholds = [...]int{100, 250, 450, 700, 1000, 1400, 1900, 2500, 3200}

// MaxLevel is the highest level the threshold table supports.
const MaxLevel = len(levelThresholds) + 1

// LevelFor returns the level a total XP amount corresponds to.
func LevelFor(totalXP int) int {
	level := 1
	for _, threshold := range levelThresholds {
		if totalXP < threshold {
			break
		}
		level++
	}
	return level
}

// GainXP is the pure victory-progression computation: XP is uniform per
// fight, independent of individual performance.
func GainXP(totalXP, gained int) (newTotal, newLevel int, leveledUp bool) {
	before := LevelFor(totalXP)
	newTotal = totalXP + gained
	newLevel = LevelFor(newTotal)
	return newTotal, newLevel, newLevel > before
}

// LootItem is one row of a fight's loot table.
type LootItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// RollLoot picks one item by weight. The award is claimed explicitly by
// the player, never auto-applied; persistence is the store's problem.
// Returns false for an empty or zero-weight table.
func RollLoot(table []LootItem, rng *rand.Rand) (LootItem, bool) {
	total := 0
	for _, item := range table {
		if item.Weight > 0 {
			total += item.Weight
		}
	}
	if total == 0 {
		return LootItem{}, false
	}
	roll := rng.Intn(total)
	for _, item := range table {
		if item.Weight <= 0 {
			continue
		}
		if roll < item.Weight {
			return item, true
		}
		roll -= item.Weight
	}
	return LootItem{}, false
}
