package engine

// ThreatTable accumulates aggro per enemy per player. Scores only grow;
// the table is reset only when the session ends.
type ThreatTable map[string]map[string]int

// Record adds amount to the player's threat on one enemy.
func (t ThreatTable) Record(enemyID, playerID string, amount int) {
	if amount <= 0 {
		return
	}
	byPlayer, ok := t[enemyID]
	if !ok {
		byPlayer = make(map[string]int)
		t[enemyID] = byPlayer
	}
	byPlayer[playerID] += amount
}

// RecordAll adds amount to the player's threat on every living enemy.
// Heals and blocks with no single enemy source are credited this way.
func (t ThreatTable) RecordAll(enemies []*EnemyState, playerID string, amount int) {
	for _, e := range enemies {
		if !e.Defeated() {
			t.Record(e.ID, playerID, amount)
		}
	}
}

// Score returns the player's threat on one enemy.
func (t ThreatTable) Score(enemyID, playerID string) int {
	return t[enemyID][playerID]
}

// Leader returns the living player with the highest threat on the enemy.
// Ties break by lowest current HP, then by earliest join order. Returns
// nil when no living player has threat on that enemy.
//
// Players must be passed in join order; iterating them in order with
// strict comparisons is what makes the last tie-break stable.
func (t ThreatTable) Leader(enemyID string, players []*PlayerState) *PlayerState {
	byPlayer := t[enemyID]
	if len(byPlayer) == 0 {
		return nil
	}
	var best *PlayerState
	bestScore := 0
	for _, p := range players {
		if !p.Alive {
			continue
		}
		score := byPlayer[p.ID]
		if score <= 0 {
			continue
		}
		switch {
		case best == nil, score > bestScore:
			best, bestScore = p, score
		case score == bestScore && p.HP < best.HP:
			best = p
		}
	}
	return best
}
