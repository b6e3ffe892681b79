package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAction(t *testing.T) {
	c := DefaultCatalog()

	newFixture := func() *State {
		mage := testPlayer("mage", ClassMage, 0)
		healer := testPlayer("healer", ClassHealer, 1)
		scout := testPlayer("scout", ClassScout, 2)
		dead := testPlayer("dead", ClassWarrior, 3)
		dead.Alive = false
		dead.HP = 0
		return testState(
			[]*PlayerState{mage, healer, scout, dead},
			[]*EnemyState{
				{ID: "e1", Name: "Slime", HP: 20, MaxHP: 20},
				{ID: "gone", Name: "Husk", HP: 0, MaxHP: 20},
			},
		)
	}

	tests := []struct {
		name   string
		player string
		mutate func(*State)
		action PendingAction
		want   error
	}{
		{
			name:   "decline always passes",
			player: "mage",
			action: PendingAction{Kind: ActionDecline},
		},
		{
			name:   "base attack with valid target",
			player: "mage",
			action: BaseAction("e1"),
		},
		{
			name:   "base attack on defeated enemy",
			player: "mage",
			action: BaseAction("gone"),
			want:   ErrUnknownTarget,
		},
		{
			name:   "dead players submit nothing",
			player: "dead",
			action: PendingAction{Kind: ActionDecline},
			want:   ErrDeadPlayer,
		},
		{
			name:   "unknown ability id",
			player: "mage",
			action: PendingAction{Kind: ActionAbility, AbilityID: "backstab"},
			want:   ErrUnknownAbility,
		},
		{
			name:   "other class kit is unavailable",
			player: "mage",
			action: PendingAction{Kind: ActionAbility, AbilityID: AbilityStrike},
			want:   ErrAbilityUnavailable,
		},
		{
			name:   "insufficient MP",
			player: "mage",
			mutate: func(s *State) { s.Player("mage").MP = 3 },
			action: PendingAction{Kind: ActionAbility, AbilityID: AbilityFireball, TargetID: "e1"},
			want:   ErrInsufficientMP,
		},
		{
			name:   "no potions left",
			player: "mage",
			mutate: func(s *State) { s.Player("mage").Potions = 0 },
			action: PendingAction{Kind: ActionAbility, AbilityID: AbilityPotion},
			want:   ErrNoPotions,
		},
		{
			name:   "insufficient combo",
			player: "scout",
			mutate: func(s *State) { s.Player("scout").Combo = 2 },
			action: PendingAction{Kind: ActionAbility, AbilityID: AbilityExploit, TargetID: "e1"},
			want:   ErrInsufficientCombo,
		},
		{
			name:   "ultimate inside cooldown window",
			player: "mage",
			mutate: func(s *State) {
				s.Round = 6
				s.Player("mage").UltimateUsed = map[AbilityID]int{AbilityMeteor: 4}
			},
			action: PendingAction{Kind: ActionAbility, AbilityID: AbilityMeteor},
			want:   ErrUltimateCooldown,
		},
		{
			name:   "ultimate exactly at cooldown boundary",
			player: "mage",
			mutate: func(s *State) {
				s.Round = 7
				s.Player("mage").UltimateUsed = map[AbilityID]int{AbilityMeteor: 4}
			},
			action: PendingAction{Kind: ActionAbility, AbilityID: AbilityMeteor},
		},
		{
			name:   "heal aimed at dead ally",
			player: "healer",
			action: PendingAction{Kind: ActionAbility, AbilityID: AbilityMend, HealTarget: "dead"},
			want:   ErrUnknownTarget,
		},
		{
			name:   "heal with empty target defaults later",
			player: "healer",
			action: PendingAction{Kind: ActionAbility, AbilityID: AbilityMend},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newFixture()
			if tc.mutate != nil {
				tc.mutate(s)
			}
			err := ValidateAction(s, s.Player(tc.player), tc.action, c)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
