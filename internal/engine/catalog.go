package engine

type AbilityID string

type EffectKind string

const (
	EffectDamage EffectKind = "damage"
	EffectHeal   EffectKind = "heal"
	EffectBlock  EffectKind = "block"
	EffectBuff   EffectKind = "buff"
)

// Balance constants shared by every class. Per-ability numbers live in the
// catalog table below, not in resolution arithmetic.
const (
	BaseDamage         = 5
	WrongAnswerPenalty = 5
	BlockAbsorb        = 8
	UltimateCooldown   = 3
	MaxCrossSlots      = 2
)

// Ability is one row of the static catalog. Power is the damage or heal
// amount; for block abilities it is the absorption per hit.
type Ability struct {
	ID          AbilityID  `json:"id"`
	Class       Class      `json:"class"`
	Name        string     `json:"name"`
	Effect      EffectKind `json:"effect"`
	Power       int        `json:"power"`
	MPCost      int        `json:"mp_cost"`
	Potion      bool       `json:"potion"`
	ComboCost   int        `json:"combo_cost"`
	ComboGain   int        `json:"combo_gain"`
	UnlockLevel int        `json:"unlock_level"`
	Ultimate    bool       `json:"ultimate"`
	// AoE abilities hit every living enemy (damage) or ally (heal).
	AoE bool `json:"aoe"`
}

// Catalog is the read-only ability table, safe to share across sessions.
type Catalog struct {
	byID  map[AbilityID]Ability
	order []AbilityID
}

// Ability ids referenced elsewhere in the engine and in tests.
const (
	AbilityStrike       AbilityID = "strike"
	AbilityShieldWall   AbilityID = "shield_wall"
	AbilityEarthshatter AbilityID = "earthshatter"
	AbilityFireball     AbilityID = "fireball"
	AbilityFrostLance   AbilityID = "frost_lance"
	AbilityMeteor       AbilityID = "meteor"
	AbilityMend         AbilityID = "mend"
	AbilityGroupMend    AbilityID = "group_mend"
	AbilityDivineLight  AbilityID = "divine_light"
	AbilityQuickShot    AbilityID = "quick_shot"
	AbilityExploit      AbilityID = "exploit"
	AbilityRainOfArrows AbilityID = "rain_of_arrows"
	AbilityPotion       AbilityID = "healing_potion"
)

// DefaultCatalog builds the standard class kit. This is content data; the
// resolver only reads costs and effect kinds from it.
func DefaultCatalog() *Catalog {
	c := &Catalog{byID: make(map[AbilityID]Ability)}
	for _, a := range []Ability{
		{ID: AbilityStrike, Class: ClassWarrior, Name: "Strike", Effect: EffectDamage, Power: 7, UnlockLevel: 1},
		{ID: AbilityShieldWall, Class: ClassWarrior, Name: "Shield Wall", Effect: EffectBlock, Power: BlockAbsorb, UnlockLevel: 2},
		{ID: AbilityEarthshatter, Class: ClassWarrior, Name: "Earthshatter", Effect: EffectDamage, Power: 18, UnlockLevel: 5, Ultimate: true},

		{ID: AbilityFireball, Class: ClassMage, Name: "Fireball", Effect: EffectDamage, Power: 10, MPCost: 4, UnlockLevel: 1},
		{ID: AbilityFrostLance, Class: ClassMage, Name: "Frost Lance", Effect: EffectDamage, Power: 14, MPCost: 7, UnlockLevel: 3},
		{ID: AbilityMeteor, Class: ClassMage, Name: "Meteor", Effect: EffectDamage, Power: 16, MPCost: 10, UnlockLevel: 5, Ultimate: true, AoE: true},

		{ID: AbilityMend, Class: ClassHealer, Name: "Mend", Effect: EffectHeal, Power: 9, MPCost: 4, UnlockLevel: 1},
		{ID: AbilityGroupMend, Class: ClassHealer, Name: "Group Mend", Effect: EffectHeal, Power: 5, MPCost: 8, UnlockLevel: 4, AoE: true},
		{ID: AbilityDivineLight, Class: ClassHealer, Name: "Divine Light", Effect: EffectHeal, Power: 20, MPCost: 10, UnlockLevel: 5, Ultimate: true},

		{ID: AbilityQuickShot, Class: ClassScout, Name: "Quick Shot", Effect: EffectDamage, Power: 6, ComboGain: 1, UnlockLevel: 1},
		{ID: AbilityExploit, Class: ClassScout, Name: "Exploit Weakness", Effect: EffectDamage, Power: 13, ComboCost: 3, UnlockLevel: 3},
		{ID: AbilityRainOfArrows, Class: ClassScout, Name: "Rain of Arrows", Effect: EffectDamage, Power: 20, ComboCost: 5, UnlockLevel: 5, Ultimate: true},

		// Class-independent consumable, always unlocked.
		{ID: AbilityPotion, Class: "", Name: "Healing Potion", Effect: EffectHeal, Power: 12, Potion: true, UnlockLevel: 1},
	} {
		c.byID[a.ID] = a
		c.order = append(c.order, a.ID)
	}
	return c
}

// Lookup returns the ability by id.
func (c *Catalog) Lookup(id AbilityID) (Ability, bool) {
	a, ok := c.byID[id]
	return a, ok
}

// Available reports whether the player may use the ability at all:
// their own class at sufficient level, a cross-class slot, or a
// classless consumable. Resource checks happen at submission time,
// not here.
func (c *Catalog) Available(p *PlayerState, id AbilityID) bool {
	a, ok := c.byID[id]
	if !ok {
		return false
	}
	if a.Class == "" {
		return true
	}
	if a.Class == p.Class {
		return p.Level >= a.UnlockLevel
	}
	// Cross-class slots only ever hold another class's ultimate.
	for _, slot := range p.CrossSlots {
		if slot == id && a.Ultimate {
			return true
		}
	}
	return false
}

// AvailableTo lists the player's usable abilities in catalog order.
func (c *Catalog) AvailableTo(p *PlayerState) []Ability {
	var out []Ability
	for _, id := range c.order {
		if c.Available(p, id) {
			out = append(out, c.byID[id])
		}
	}
	return out
}
