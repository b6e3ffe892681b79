package engine

type Class string

const (
	ClassWarrior Class = "warrior"
	ClassMage    Class = "mage"
	ClassHealer  Class = "healer"
	ClassScout   Class = "scout"
)

type Phase string

const (
	PhaseWaiting         Phase = "waiting_for_players"
	PhaseQuestion        Phase = "question"
	PhaseAbilityChoice   Phase = "ability_choice"
	PhaseTargetSelection Phase = "target_selection"
	PhaseHealingChoice   Phase = "healing_choice"
	PhaseHealingTarget   Phase = "healing_target"
	PhaseResolution      Phase = "resolution"
	PhaseEnemyTurn       Phase = "enemy_turn"
	PhaseTransition      Phase = "phase_transition"
	PhaseVictory         Phase = "victory"
	PhaseDefeat          Phase = "defeat"
)

// Terminal reports whether the session is over in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseVictory || p == PhaseDefeat
}

type ActionKind string

const (
	// ActionBase is the fallback attack every player always has.
	ActionBase    ActionKind = "base"
	ActionAbility ActionKind = "ability"
	ActionDecline ActionKind = "decline"
)

// PendingAction is one player's buffered action for the active round.
// The slot is overwritten on every submission (last write wins) and
// cleared when the round resolves.
type PendingAction struct {
	Kind       ActionKind `json:"kind"`
	AbilityID  AbilityID  `json:"ability_id,omitempty"`
	TargetID   string     `json:"target_id,omitempty"`
	HealTarget string     `json:"heal_target,omitempty"`
}

// BaseAction is the default used for every player who submitted nothing.
func BaseAction(defaultTarget string) PendingAction {
	return PendingAction{Kind: ActionBase, TargetID: defaultTarget}
}

// PlayerState is the authoritative combat state for one student. Resource
// fields are mutated only by Resolve; HP and MP are clamped to [0, max]
// and HP == 0 marks the player dead for the rest of the session.
type PlayerState struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Class     Class  `json:"class"`
	Gender    string `json:"gender,omitempty"`
	Level     int    `json:"level"`
	XP        int    `json:"xp"`
	HP        int    `json:"hp"`
	MaxHP     int    `json:"max_hp"`
	MP        int    `json:"mp"`
	MaxMP     int    `json:"max_mp"`
	Potions   int    `json:"potions"`
	Combo     int    `json:"combo"`
	MaxCombo  int    `json:"max_combo"`
	Alive     bool   `json:"alive"`
	JoinOrder int    `json:"join_order"`

	// DefaultTarget is the enemy hit by base attacks and defaulted actions.
	DefaultTarget string `json:"default_target,omitempty"`
	// BlockTarget is a standing stance: while set, damage aimed at that
	// ally is absorbed. Persists across rounds until changed.
	BlockTarget string `json:"block_target,omitempty"`

	// UltimateUsed maps ability id to the round it was last fired.
	UltimateUsed map[AbilityID]int `json:"ultimate_used,omitempty"`
	// CrossSlots hold up to two ultimates borrowed from other classes.
	CrossSlots []AbilityID `json:"cross_slots,omitempty"`
}

// ApplyDamage lowers HP, clamping at zero. Death is not evaluated here;
// Resolve marks players dead once per pass after all totals.
func (p *PlayerState) ApplyDamage(amount int) {
	p.HP -= amount
	if p.HP < 0 {
		p.HP = 0
	}
}

// ApplyHeal raises HP, clamping at MaxHP.
func (p *PlayerState) ApplyHeal(amount int) {
	p.HP += amount
	if p.HP > p.MaxHP {
		p.HP = p.MaxHP
	}
}

// SpendMP debits MP, clamping at zero. Validation guarantees sufficiency
// before resolution, so the clamp only guards a programming defect.
func (p *PlayerState) SpendMP(cost int) {
	p.MP -= cost
	if p.MP < 0 {
		p.MP = 0
	}
}

// GainCombo adds combo points up to MaxCombo.
func (p *PlayerState) GainCombo(n int) {
	p.Combo += n
	if p.Combo > p.MaxCombo {
		p.Combo = p.MaxCombo
	}
}

// EnemyState is one AI combatant. Defeated enemies stay in the roster at
// zero HP so late log events can still reference them.
type EnemyState struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Behavior string `json:"behavior"`
	HP       int    `json:"hp"`
	MaxHP    int    `json:"max_hp"`
	Attack   int    `json:"attack"`
}

func (e *EnemyState) Defeated() bool { return e.HP <= 0 }

// ApplyDamage lowers enemy HP with a floor of zero.
func (e *EnemyState) ApplyDamage(amount int) {
	e.HP -= amount
	if e.HP < 0 {
		e.HP = 0
	}
}

// State is the full authoritative combat state of one session. Players
// keep their join order; both slices are iterated in order everywhere so
// resolution is deterministic.
type State struct {
	Phase       Phase          `json:"phase"`
	Round       int            `json:"round"`
	QuestionIdx int            `json:"question_idx"`
	Players     []*PlayerState `json:"players"`
	Enemies     []*EnemyState  `json:"enemies"`
	Threat      ThreatTable    `json:"threat"`
}

func NewState(players []*PlayerState, enemies []*EnemyState) *State {
	return &State{
		Phase:   PhaseWaiting,
		Round:   1,
		Players: players,
		Enemies: enemies,
		Threat:  make(ThreatTable),
	}
}

// Player returns the player with the given id, or nil.
func (s *State) Player(id string) *PlayerState {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Enemy returns the enemy with the given id, or nil.
func (s *State) Enemy(id string) *EnemyState {
	for _, e := range s.Enemies {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// LivingPlayers returns players with HP > 0 in join order.
func (s *State) LivingPlayers() []*PlayerState {
	var alive []*PlayerState
	for _, p := range s.Players {
		if p.Alive {
			alive = append(alive, p)
		}
	}
	return alive
}

// AllEnemiesDefeated reports whether every enemy is at zero HP.
func (s *State) AllEnemiesDefeated() bool {
	for _, e := range s.Enemies {
		if !e.Defeated() {
			return false
		}
	}
	return true
}

// AllPlayersDead reports whether no player is alive.
func (s *State) AllPlayersDead() bool {
	for _, p := range s.Players {
		if p.Alive {
			return false
		}
	}
	return true
}

// FirstLivingEnemy is the default target for players who never picked one.
func (s *State) FirstLivingEnemy() *EnemyState {
	for _, e := range s.Enemies {
		if !e.Defeated() {
			return e
		}
	}
	return nil
}

// Clone deep-copies the state. Used by the session layer to hand
// snapshots to clients without sharing mutable structs.
func (s *State) Clone() *State {
	c := &State{
		Phase:       s.Phase,
		Round:       s.Round,
		QuestionIdx: s.QuestionIdx,
		Threat:      make(ThreatTable, len(s.Threat)),
	}
	for _, p := range s.Players {
		cp := *p
		if p.UltimateUsed != nil {
			cp.UltimateUsed = make(map[AbilityID]int, len(p.UltimateUsed))
			for k, v := range p.UltimateUsed {
				cp.UltimateUsed[k] = v
			}
		}
		cp.CrossSlots = append([]AbilityID(nil), p.CrossSlots...)
		c.Players = append(c.Players, &cp)
	}
	for _, e := range s.Enemies {
		ce := *e
		c.Enemies = append(c.Enemies, &ce)
	}
	for enemy, byPlayer := range s.Threat {
		m := make(map[string]int, len(byPlayer))
		for id, v := range byPlayer {
			m[id] = v
		}
		c.Threat[enemy] = m
	}
	return c
}

type LogKind string

const (
	LogDamage      LogKind = "damage"
	LogHeal        LogKind = "heal"
	LogBlock       LogKind = "block"
	LogDeath       LogKind = "death"
	LogPhaseChange LogKind = "phase_change"
	LogAbility     LogKind = "ability"
	LogInfo        LogKind = "info"
)

// LogEvent is one append-only combat log entry. Seq is monotonic within a
// session; events are never read back by the engine.
type LogEvent struct {
	Seq    int     `json:"seq"`
	Kind   LogKind `json:"kind"`
	Actor  string  `json:"actor,omitempty"`
	Target string  `json:"target,omitempty"`
	Value  int     `json:"value,omitempty"`
	Text   string  `json:"text"`
}
