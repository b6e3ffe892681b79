package engine

import "strings"

// Question is one quiz entry of a fight definition. The canonical answer
// never leaves the server; clients only ever see the prompt and choices.
type Question struct {
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices,omitempty"`
	Answer  string   `json:"answer"`
}

// Check compares a submitted answer against the canonical one,
// case-insensitively and ignoring surrounding whitespace.
func (q Question) Check(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.Answer))
}

// EnemySpec is an enemy's base stats in a fight definition.
type EnemySpec struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Behavior string `json:"behavior,omitempty"`
	HP       int    `json:"hp"`
	Attack   int    `json:"attack"`
}

// FightDef is the read-only fight content a session runs: ordered
// questions, enemy roster, and the victory rewards.
type FightDef struct {
	Name      string      `json:"name"`
	Guild     bool        `json:"guild"`
	XPAward   int         `json:"xp_award"`
	Questions []Question  `json:"questions"`
	Enemies   []EnemySpec `json:"enemies"`
	Loot      []LootItem  `json:"loot,omitempty"`
}

// SpawnEnemies instantiates the roster at full HP.
func (f FightDef) SpawnEnemies() []*EnemyState {
	out := make([]*EnemyState, 0, len(f.Enemies))
	for _, spec := range f.Enemies {
		out = append(out, &EnemyState{
			ID:       spec.ID,
			Name:     spec.Name,
			Behavior: spec.Behavior,
			HP:       spec.HP,
			MaxHP:    spec.HP,
			Attack:   spec.Attack,
		})
	}
	return out
}

// StatMods are equipment-derived bonuses read from the student record at
// session start.
type StatMods struct {
	HP      int `json:"hp"`
	MP      int `json:"mp"`
	Potions int `json:"potions"`
}

// Per-class base stats at level 1; each level past the first adds the
// growth amounts. Content data, like the ability table.
var classBases = map[Class]struct {
	hp, mp, hpGrowth, mpGrowth, maxCombo int
}{
	ClassWarrior: {hp: 40, mp: 10, hpGrowth: 6, mpGrowth: 1},
	ClassMage:    {hp: 24, mp: 30, hpGrowth: 3, mpGrowth: 5},
	ClassHealer:  {hp: 28, mp: 28, hpGrowth: 4, mpGrowth: 4},
	ClassScout:   {hp: 30, mp: 12, hpGrowth: 5, mpGrowth: 2, maxCombo: 5},
}

// NewPlayerState builds a player's combat state from their record: class
// base stats scaled by level, plus equipment modifiers.
func NewPlayerState(id, name string, class Class, gender string, level, xp, joinOrder int, mods StatMods) *PlayerState {
	base, ok := classBases[class]
	if !ok {
		base = classBases[ClassWarrior]
	}
	if level < 1 {
		level = 1
	}
	maxHP := base.hp + base.hpGrowth*(level-1) + mods.HP
	maxMP := base.mp + base.mpGrowth*(level-1) + mods.MP
	return &PlayerState{
		ID:        id,
		Name:      name,
		Class:     class,
		Gender:    gender,
		Level:     level,
		XP:        xp,
		HP:        maxHP,
		MaxHP:     maxHP,
		MP:        maxMP,
		MaxMP:     maxMP,
		Potions:   1 + mods.Potions,
		MaxCombo:  base.maxCombo,
		Alive:     true,
		JoinOrder: joinOrder,
	}
}
