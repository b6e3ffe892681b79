package engine

import "errors"

// Validation failures are reported back to the submitting client only;
// the player's previous pending action stays in effect.
var (
	ErrUnknownAbility     = errors.New("unknown ability")
	ErrAbilityUnavailable = errors.New("ability not available to this player")
	ErrInsufficientMP     = errors.New("not enough MP")
	ErrNoPotions          = errors.New("no potions left")
	ErrInsufficientCombo  = errors.New("not enough combo points")
	ErrUltimateCooldown   = errors.New("ultimate still on cooldown")
	ErrDeadPlayer         = errors.New("player is dead")
	ErrUnknownTarget      = errors.New("unknown or invalid target")
)

// ValidateAction checks a submitted action against the player's current
// resources and the catalog. Preconditions are checked at submission
// time; resolution later debits only actions that passed here and were
// backed by a correct answer.
func ValidateAction(s *State, p *PlayerState, a PendingAction, c *Catalog) error {
	if !p.Alive {
		return ErrDeadPlayer
	}
	switch a.Kind {
	case ActionDecline:
		return nil
	case ActionBase:
		return validateEnemyTarget(s, a.TargetID)
	case ActionAbility:
	default:
		return ErrUnknownAbility
	}

	ab, ok := c.Lookup(a.AbilityID)
	if !ok {
		return ErrUnknownAbility
	}
	if !c.Available(p, a.AbilityID) {
		return ErrAbilityUnavailable
	}
	if p.MP < ab.MPCost {
		return ErrInsufficientMP
	}
	if ab.Potion && p.Potions <= 0 {
		return ErrNoPotions
	}
	if p.Combo < ab.ComboCost {
		return ErrInsufficientCombo
	}
	if ab.Ultimate {
		if last, used := p.UltimateUsed[ab.ID]; used && s.Round-last < UltimateCooldown {
			return ErrUltimateCooldown
		}
	}

	switch ab.Effect {
	case EffectDamage:
		if a.TargetID != "" {
			return validateEnemyTarget(s, a.TargetID)
		}
	case EffectHeal:
		if ab.Potion {
			return nil // potions always heal the drinker
		}
		if a.HealTarget != "" {
			return validateAllyTarget(s, a.HealTarget)
		}
	case EffectBlock:
		if a.TargetID != "" {
			return validateAllyTarget(s, a.TargetID)
		}
	}
	return nil
}

func validateEnemyTarget(s *State, id string) error {
	if id == "" {
		return nil // resolved to the default target later
	}
	e := s.Enemy(id)
	if e == nil || e.Defeated() {
		return ErrUnknownTarget
	}
	return nil
}

func validateAllyTarget(s *State, id string) error {
	p := s.Player(id)
	if p == nil || !p.Alive {
		return ErrUnknownTarget
	}
	return nil
}
