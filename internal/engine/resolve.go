package engine

import "fmt"

// Input is one player's contribution to a resolution pass: the validated
// action buffered by the session plus whether their answer to the active
// question was correct. Missing players default to an incorrect base
// attack, so a pass never stalls on absent input.
type Input struct {
	Action  PendingAction
	Correct bool
}

// Resolve folds all player inputs and the enemy turn into the next
// authoritative state. It is a total function: business-rule violations
// were filtered at submission time, so every call produces a valid next
// state and an ordered list of log events starting at firstSeq.
//
// The pass runs in a fixed order (player effects and debits, block
// absorption, heals, threat, enemy turn, death and victory check) and is
// commutative over input arrival order: inputs are consumed only by
// iterating players in join order.
func Resolve(s *State, inputs map[string]Input, c *Catalog, firstSeq int) []LogEvent {
	r := &resolver{s: s, c: c, seq: firstSeq, totals: make(map[string]*playerTotals), wasDown: make(map[string]bool)}
	for _, e := range s.Enemies {
		if e.Defeated() {
			r.wasDown[e.ID] = true
		}
	}
	s.Phase = PhaseResolution

	for _, p := range s.Players {
		if !p.Alive {
			continue
		}
		in, ok := inputs[p.ID]
		if !ok {
			in = Input{Action: BaseAction(p.DefaultTarget)}
		}
		r.resolvePlayer(p, in)
	}

	r.enemyTurn()
	r.settle()
	return r.events
}

type playerTotals struct {
	damage int
	heal   int
}

type resolver struct {
	s      *State
	c      *Catalog
	seq    int
	events []LogEvent
	totals map[string]*playerTotals
	// wasDown marks enemies already defeated before this pass, so their
	// deaths are not announced twice.
	wasDown map[string]bool
}

func (r *resolver) emit(kind LogKind, actor, target string, value int, text string) {
	r.events = append(r.events, LogEvent{
		Seq: r.seq, Kind: kind, Actor: actor, Target: target, Value: value, Text: text,
	})
	r.seq++
}

func (r *resolver) total(playerID string) *playerTotals {
	t, ok := r.totals[playerID]
	if !ok {
		t = &playerTotals{}
		r.totals[playerID] = t
	}
	return t
}

// resolvePlayer applies one player's action. Wrong answers never execute
// the action and never debit resources; they cost a fixed self-penalty
// instead, which a standing block may absorb.
func (r *resolver) resolvePlayer(p *PlayerState, in Input) {
	if !in.Correct {
		r.damagePlayer(p, WrongAnswerPenalty, "",
			fmt.Sprintf("%s answered wrong and takes %d damage", p.Name, WrongAnswerPenalty))
		return
	}

	a := in.Action
	switch a.Kind {
	case ActionDecline:
		return
	case ActionBase:
		r.dealDamage(p, r.targetEnemy(a.TargetID, p), BaseDamage, "")
		return
	}

	ab, ok := r.c.Lookup(a.AbilityID)
	if !ok {
		// Defensive: an unknown ability at this layer is a defect upstream;
		// fall back to the base attack rather than corrupt the pass.
		r.dealDamage(p, r.targetEnemy("", p), BaseDamage, "")
		return
	}

	// Resource debit happens only here, on correct execution.
	p.SpendMP(ab.MPCost)
	if ab.Potion {
		p.Potions--
	}
	if ab.ComboCost > 0 {
		p.Combo -= ab.ComboCost
	}
	if ab.ComboGain > 0 {
		p.GainCombo(ab.ComboGain)
	}
	if ab.Ultimate {
		if p.UltimateUsed == nil {
			p.UltimateUsed = make(map[AbilityID]int)
		}
		p.UltimateUsed[ab.ID] = r.s.Round
	}
	r.emit(LogAbility, p.ID, "", 0, fmt.Sprintf("%s uses %s", p.Name, ab.Name))

	switch ab.Effect {
	case EffectDamage:
		if ab.AoE {
			for _, e := range r.s.Enemies {
				if !e.Defeated() {
					r.dealDamage(p, e, ab.Power, ab.Name)
				}
			}
			return
		}
		r.dealDamage(p, r.targetEnemy(a.TargetID, p), ab.Power, ab.Name)

	case EffectHeal:
		if ab.Potion {
			r.heal(p, p, ab.Power)
			return
		}
		if ab.AoE {
			for _, ally := range r.s.Players {
				if ally.Alive {
					r.heal(p, ally, ab.Power)
				}
			}
			return
		}
		r.heal(p, r.healTarget(a.HealTarget, p), ab.Power)

	case EffectBlock:
		// Declaring a block is a stance change, not a consumed action; the
		// new target applies to everything later in this same pass.
		target := r.s.Player(a.TargetID)
		if target == nil || !target.Alive {
			target = p
		}
		p.BlockTarget = target.ID
		r.emit(LogInfo, p.ID, target.ID, 0,
			fmt.Sprintf("%s raises a guard over %s", p.Name, target.Name))
	}
}

// targetEnemy resolves an enemy id with fallbacks: explicit choice, the
// player's default target, then the first living enemy.
func (r *resolver) targetEnemy(id string, p *PlayerState) *EnemyState {
	if e := r.s.Enemy(id); e != nil && !e.Defeated() {
		return e
	}
	if e := r.s.Enemy(p.DefaultTarget); e != nil && !e.Defeated() {
		return e
	}
	return r.s.FirstLivingEnemy()
}

// healTarget falls back to the lowest-HP living ally, the healer included.
func (r *resolver) healTarget(id string, p *PlayerState) *PlayerState {
	if t := r.s.Player(id); t != nil && t.Alive {
		return t
	}
	var worst *PlayerState
	for _, ally := range r.s.Players {
		if ally.Alive && (worst == nil || ally.HP < worst.HP) {
			worst = ally
		}
	}
	if worst == nil {
		return p
	}
	return worst
}

// dealDamage applies player damage to an enemy immediately and records
// threat proportional to the damage dealt.
func (r *resolver) dealDamage(p *PlayerState, e *EnemyState, amount int, ability string) {
	if e == nil || amount <= 0 {
		return
	}
	e.ApplyDamage(amount)
	r.s.Threat.Record(e.ID, p.ID, amount)
	text := fmt.Sprintf("%s hits %s for %d", p.Name, e.Name, amount)
	if ability != "" {
		text = fmt.Sprintf("%s hits %s with %s for %d", p.Name, e.Name, ability, amount)
	}
	r.emit(LogDamage, p.ID, e.ID, amount, text)
}

// heal buffers healing for the settle step and records healer threat on
// every living enemy, proportional to the amount healed.
func (r *resolver) heal(healer, target *PlayerState, amount int) {
	if target == nil || amount <= 0 {
		return
	}
	r.total(target.ID).heal += amount
	r.s.Threat.RecordAll(r.s.Enemies, healer.ID, amount)
	r.emit(LogHeal, healer.ID, target.ID, amount,
		fmt.Sprintf("%s heals %s for %d", healer.Name, target.Name, amount))
}

// damagePlayer buffers damage aimed at a player, running it through block
// absorption first. srcEnemy is the attacking enemy's id, or "" for
// self-inflicted penalties. Blocked amounts credit the blocker's threat;
// absorption never produces negative overflow.
func (r *resolver) damagePlayer(target *PlayerState, amount int, srcEnemy, text string) {
	if amount <= 0 {
		return
	}
	if blocker := r.blockerFor(target); blocker != nil {
		absorbed := amount
		if absorbed > BlockAbsorb {
			absorbed = BlockAbsorb
		}
		amount -= absorbed
		if srcEnemy != "" {
			r.s.Threat.Record(srcEnemy, blocker.ID, absorbed)
		} else {
			r.s.Threat.RecordAll(r.s.Enemies, blocker.ID, absorbed)
		}
		r.emit(LogBlock, blocker.ID, target.ID, absorbed,
			fmt.Sprintf("%s blocks %d damage for %s", blocker.Name, absorbed, target.Name))
		if amount == 0 {
			return
		}
	}
	r.total(target.ID).damage += amount
	r.emit(LogDamage, srcEnemy, target.ID, amount, text)
}

// blockerFor returns the first living player in join order whose standing
// block covers the target. The block persists across rounds; it is not
// consumed per question and does not require the blocker's answer to be
// correct.
func (r *resolver) blockerFor(target *PlayerState) *PlayerState {
	for _, p := range r.s.Players {
		if p.Alive && p.BlockTarget == target.ID {
			return p
		}
	}
	return nil
}

// enemyTurn runs one attack per living enemy at its threat leader. The
// step is skipped entirely when the players cleared every enemy earlier
// in the same pass.
func (r *resolver) enemyTurn() {
	if r.s.AllEnemiesDefeated() {
		return
	}
	r.s.Phase = PhaseEnemyTurn
	r.emit(LogPhaseChange, "", "", 0, string(PhaseEnemyTurn))
	for _, e := range r.s.Enemies {
		if e.Defeated() {
			continue
		}
		target := r.s.Threat.Leader(e.ID, r.s.Players)
		if target == nil {
			target = r.fallbackTarget(e)
		}
		if target == nil {
			continue
		}
		r.damagePlayer(target, e.Attack, e.ID,
			fmt.Sprintf("%s strikes %s for %d", e.Name, target.Name, e.Attack))
	}
}

// fallbackTarget picks a victim when nobody has threat yet: cunning
// enemies go for the weakest player, everything else for the first one
// standing.
func (r *resolver) fallbackTarget(e *EnemyState) *PlayerState {
	living := r.s.LivingPlayers()
	if len(living) == 0 {
		return nil
	}
	if e.Behavior == "cunning" {
		worst := living[0]
		for _, p := range living[1:] {
			if p.HP < worst.HP {
				worst = p
			}
		}
		return worst
	}
	return living[0]
}

// settle applies buffered player totals, evaluates death exactly once,
// and picks the next phase. A heal offsets damage taken in the same pass
// because HP moves by the net total, never incrementally.
func (r *resolver) settle() {
	for _, p := range r.s.Players {
		if !p.Alive {
			continue
		}
		t, ok := r.totals[p.ID]
		if !ok {
			continue
		}
		hp := p.HP - t.damage + t.heal
		if hp > p.MaxHP {
			hp = p.MaxHP
		}
		if hp < 0 {
			hp = 0
		}
		p.HP = hp
		if p.HP == 0 {
			p.Alive = false
			p.BlockTarget = ""
			r.emit(LogDeath, "", p.ID, 0, fmt.Sprintf("%s has fallen", p.Name))
		}
	}
	for _, e := range r.s.Enemies {
		if e.Defeated() && !r.wasDown[e.ID] {
			r.emit(LogDeath, "", e.ID, 0, fmt.Sprintf("%s is defeated", e.Name))
		}
	}

	switch {
	case r.s.AllEnemiesDefeated():
		r.s.Phase = PhaseVictory
		r.emit(LogPhaseChange, "", "", 0, string(PhaseVictory))
	case r.s.AllPlayersDead():
		r.s.Phase = PhaseDefeat
		r.emit(LogPhaseChange, "", "", 0, string(PhaseDefeat))
	default:
		r.s.Phase = PhaseTransition
		r.s.Round++
		r.emit(LogPhaseChange, "", "", 0, string(PhaseTransition))
	}
}
