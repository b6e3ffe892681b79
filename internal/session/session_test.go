package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/classraid/classraid-server/internal/engine"
)

func testFight() engine.FightDef {
	return engine.FightDef{
		Name:    "Fractions 101",
		XPAward: 50,
		Questions: []engine.Question{
			{Prompt: "1/2 + 1/2 = ?", Answer: "1"},
			{Prompt: "2 * 3 = ?", Answer: "6"},
		},
		Enemies: []engine.EnemySpec{{ID: "slime", Name: "Slime", HP: 200, Attack: 4}},
	}
}

func fastTiming() Timing {
	return Timing{
		Question: 150 * time.Millisecond,
		Choice:   100 * time.Millisecond,
		Target:   100 * time.Millisecond,
		Heal:     100 * time.Millisecond,
		Idle:     250 * time.Millisecond,
	}
}

// helper: receive one outbound with a timeout so tests never hang
func recvOutbound(t *testing.T, ch <-chan Outbound, within time.Duration) Outbound {
	t.Helper()
	select {
	case o, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return o
	case <-time.After(within):
		t.Fatalf("timed out waiting for outbound")
		return nil // unreachable
	}
}

// waitFor keeps receiving until match returns a non-nil result,
// skipping log events and snapshots the test does not care about.
func waitFor(t *testing.T, ch <-chan Outbound, within time.Duration, match func(Outbound) bool) Outbound {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case o, ok := <-ch:
			if !ok {
				t.Fatalf("client outbox closed while waiting")
			}
			if match(o) {
				return o
			}
		case <-deadline:
			t.Fatalf("timed out waiting for matching outbound")
			return nil // unreachable
		}
	}
}

func waitSnapshot(t *testing.T, ch <-chan Outbound, within time.Duration, want func(Snapshot) bool) Snapshot {
	t.Helper()
	o := waitFor(t, ch, within, func(o Outbound) bool {
		snap, ok := o.(Snapshot)
		return ok && want(snap)
	})
	return o.(Snapshot)
}

func waitGameOver(t *testing.T, ch <-chan Outbound, within time.Duration) GameOver {
	t.Helper()
	o := waitFor(t, ch, within, func(o Outbound) bool {
		_, ok := o.(GameOver)
		return ok
	})
	return o.(GameOver)
}

func recvClosed(t *testing.T, ch <-chan Outbound, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("expected outbox to close within %v", within)
		}
	}
}

func attachPlayer(t *testing.T, s *Session, id string, class engine.Class) chan Outbound {
	t.Helper()
	out := make(chan Outbound, 32)
	s.Inbox() <- AttachPlayer{
		ConnID: "conn-" + id,
		Info:   PlayerInfo{ID: id, Name: id, Class: class, Level: 5},
		Outbox: out,
	}
	waitSnapshot(t, out, time.Second, func(Snapshot) bool { return true })
	return out
}

func attachHost(t *testing.T, s *Session) chan Outbound {
	t.Helper()
	out := make(chan Outbound, 32)
	s.Inbox() <- AttachHost{ConnID: "conn-host", Outbox: out}
	waitSnapshot(t, out, time.Second, func(Snapshot) bool { return true })
	return out
}

func getView(t *testing.T, s *Session) View {
	t.Helper()
	reply := make(chan View, 1)
	s.Inbox() <- GetView{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func TestSession_JoinSendsSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, "ABC123", testFight(), Options{Solo: true, Timing: fastTiming()})

	out := make(chan Outbound, 32)
	s.Inbox() <- AttachPlayer{
		ConnID: "conn-p1",
		Info:   PlayerInfo{ID: "p1", Name: "Ana", Class: engine.ClassMage, Level: 5},
		Outbox: out,
	}
	snap := waitSnapshot(t, out, time.Second, func(Snapshot) bool { return true })
	if snap.Code != "ABC123" {
		t.Fatalf("want code ABC123, got %q", snap.Code)
	}
	if snap.State.Phase != engine.PhaseWaiting {
		t.Fatalf("want waiting phase, got %v", snap.State.Phase)
	}
	if p := snap.State.Player("p1"); p == nil || p.Name != "Ana" {
		t.Fatalf("joined player missing from snapshot: %+v", snap.State.Players)
	}
	s.Inbox() <- Shutdown{}
}

func TestSession_SoloFullRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, "ABC123", testFight(), Options{Solo: true, Timing: fastTiming()})

	out := attachPlayer(t, s, "p1", engine.ClassMage)

	// Solo sessions give the lone player host authority.
	s.Inbox() <- HostCommand{ConnID: "conn-p1", Kind: HostStartFight}
	q := waitSnapshot(t, out, time.Second, func(sn Snapshot) bool {
		return sn.State.Phase == engine.PhaseQuestion
	})
	if q.Question == nil || q.Question.Prompt != "1/2 + 1/2 = ?" {
		t.Fatalf("question phase snapshot missing the prompt: %+v", q.Question)
	}

	s.Inbox() <- PlayerCommand{ConnID: "conn-p1", Cmd: Command{Kind: CmdSubmitAnswer, Answer: " 1 "}}
	s.Inbox() <- PlayerCommand{ConnID: "conn-p1", Cmd: Command{
		Kind: CmdChooseAbility, AbilityID: engine.AbilityFireball, TargetID: "slime",
	}}

	next := waitSnapshot(t, out, time.Second, func(sn Snapshot) bool {
		return sn.State.Phase == engine.PhaseQuestion && sn.State.Round == 2
	})
	if got := next.State.Enemy("slime").HP; got != 190 {
		t.Fatalf("want enemy at 190 HP after fireball, got %d", got)
	}
	p := next.State.Player("p1")
	if p.HP != p.MaxHP-4 {
		t.Fatalf("want player struck for 4, got HP %d/%d", p.HP, p.MaxHP)
	}
	if p.MP != p.MaxMP-4 {
		t.Fatalf("want fireball cost debited, got MP %d/%d", p.MP, p.MaxMP)
	}
	if next.Question == nil || next.Question.Index != 1 {
		t.Fatalf("want the next question in round 2, got %+v", next.Question)
	}
	s.Inbox() <- Shutdown{}
}

func TestSession_DeadlineResolvesWithMissingInput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, "ABC123", testFight(), Options{Solo: true, Timing: fastTiming()})

	out := attachPlayer(t, s, "p1", engine.ClassMage)
	s.Inbox() <- HostCommand{ConnID: "conn-p1", Kind: HostStartFight}

	// Submit nothing: the question and choice deadlines must both fire and
	// the round resolves with an incorrect defaulted base attack.
	next := waitSnapshot(t, out, 2*time.Second, func(sn Snapshot) bool {
		return sn.State.Round == 2
	})
	if got := next.State.Enemy("slime").HP; got != 200 {
		t.Fatalf("defaulted round must not damage the enemy, got HP %d", got)
	}
	p := next.State.Player("p1")
	// Wrong-answer penalty plus the enemy's fallback attack.
	if p.HP != p.MaxHP-5-4 {
		t.Fatalf("want HP %d, got %d", p.MaxHP-9, p.HP)
	}
	s.Inbox() <- Shutdown{}
}

func TestSession_RejectionGoesToOffenderOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, "ABC123", testFight(), Options{Timing: fastTiming()})

	host := attachHost(t, s)
	p1 := attachPlayer(t, s, "p1", engine.ClassMage)
	p2 := attachPlayer(t, s, "p2", engine.ClassWarrior)

	// No question is open yet; this must bounce.
	s.Inbox() <- PlayerCommand{ConnID: "conn-p1", Cmd: Command{Kind: CmdSubmitAnswer, Answer: "1"}}

	rej := waitFor(t, p1, time.Second, func(o Outbound) bool {
		_, ok := o.(Rejected)
		return ok
	}).(Rejected)
	if rej.Reason == "" {
		t.Fatal("rejection must carry a reason")
	}

	// Sync on the actor, then make sure nobody else saw a rejection.
	getView(t, s)
	for name, ch := range map[string]chan Outbound{"p2": p2, "host": host} {
		for drained := false; !drained; {
			select {
			case o := <-ch:
				if _, ok := o.(Rejected); ok {
					t.Fatalf("%s received another player's rejection", name)
				}
			default:
				drained = true
			}
		}
	}
	s.Inbox() <- Shutdown{}
}

func TestSession_DisconnectDefaultsAndReconnectReplays(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, "ABC123", testFight(), Options{Timing: fastTiming()})

	attachHost(t, s)
	p1 := attachPlayer(t, s, "p1", engine.ClassMage)
	attachPlayer(t, s, "p2", engine.ClassWarrior)

	s.Inbox() <- HostCommand{ConnID: "conn-host", Kind: HostStartFight}
	waitSnapshot(t, p1, time.Second, func(sn Snapshot) bool {
		return sn.State.Phase == engine.PhaseQuestion
	})

	// p2 drops mid-question; the phase must complete on p1 alone.
	s.Inbox() <- Detach{ConnID: "conn-p2"}
	s.Inbox() <- PlayerCommand{ConnID: "conn-p1", Cmd: Command{Kind: CmdSubmitAnswer, Answer: "1"}}
	s.Inbox() <- PlayerCommand{ConnID: "conn-p1", Cmd: Command{Kind: CmdChooseAbility, TargetID: "slime"}}

	waitSnapshot(t, p1, time.Second, func(sn Snapshot) bool {
		return sn.State.Round == 2
	})

	// Reconnect replays the post-resolution state; p2 paid the penalty for
	// the round they missed.
	p2Again := make(chan Outbound, 32)
	s.Inbox() <- AttachPlayer{
		ConnID: "conn-p2-again",
		Info:   PlayerInfo{ID: "p2", Name: "p2", Class: engine.ClassWarrior, Level: 5},
		Outbox: p2Again,
	}
	snap := waitSnapshot(t, p2Again, time.Second, func(Snapshot) bool { return true })
	if snap.State.Round != 2 {
		t.Fatalf("reconnect must replay the current round, got %d", snap.State.Round)
	}
	p2State := snap.State.Player("p2")
	if p2State.HP != p2State.MaxHP-5 {
		t.Fatalf("want disconnect penalty applied, got HP %d/%d", p2State.HP, p2State.MaxHP)
	}
	s.Inbox() <- Shutdown{}
}

func TestSession_HealerFlowThroughHealingPhases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, "ABC123", testFight(), Options{Solo: true, Timing: fastTiming()})

	out := attachPlayer(t, s, "p1", engine.ClassHealer)
	s.Inbox() <- HostCommand{ConnID: "conn-p1", Kind: HostStartFight}

	// Base attack in the choice phase leaves the heal decision open, so the
	// healing phases must run before resolution.
	s.Inbox() <- PlayerCommand{ConnID: "conn-p1", Cmd: Command{Kind: CmdSubmitAnswer, Answer: "1"}}
	s.Inbox() <- PlayerCommand{ConnID: "conn-p1", Cmd: Command{Kind: CmdChooseAbility, TargetID: "slime"}}

	waitSnapshot(t, out, time.Second, func(sn Snapshot) bool {
		return sn.State.Phase == engine.PhaseHealingChoice
	})
	s.Inbox() <- PlayerCommand{ConnID: "conn-p1", Cmd: Command{Kind: CmdChooseHeal}}

	waitSnapshot(t, out, time.Second, func(sn Snapshot) bool {
		return sn.State.Phase == engine.PhaseHealingTarget
	})
	s.Inbox() <- PlayerCommand{ConnID: "conn-p1", Cmd: Command{Kind: CmdSelectTarget, TargetID: "p1"}}

	next := waitSnapshot(t, out, time.Second, func(sn Snapshot) bool {
		return sn.State.Round == 2
	})
	// The heal replaced the base attack and offset the enemy's hit.
	if got := next.State.Enemy("slime").HP; got != 200 {
		t.Fatalf("healing round must not damage the enemy, got HP %d", got)
	}
	p := next.State.Player("p1")
	if p.HP != p.MaxHP {
		t.Fatalf("want the heal to offset the enemy hit, got HP %d/%d", p.HP, p.MaxHP)
	}
	if p.MP != p.MaxMP-4 {
		t.Fatalf("want the heal's MP cost debited, got MP %d/%d", p.MP, p.MaxMP)
	}
	s.Inbox() <- Shutdown{}
}

func TestSession_ForceQuestionEndsPhaseEarly(t *testing.T) {
	timing := fastTiming()
	timing.Question = 10 * time.Second // only the host can move us off the question
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, "ABC123", testFight(), Options{Timing: timing})

	host := attachHost(t, s)
	attachPlayer(t, s, "p1", engine.ClassMage)

	s.Inbox() <- HostCommand{ConnID: "conn-host", Kind: HostStartFight}
	waitSnapshot(t, host, time.Second, func(sn Snapshot) bool {
		return sn.State.Phase == engine.PhaseQuestion
	})

	s.Inbox() <- HostCommand{ConnID: "conn-host", Kind: HostForceQuestion}
	waitSnapshot(t, host, time.Second, func(sn Snapshot) bool {
		return sn.State.Phase == engine.PhaseAbilityChoice
	})
	s.Inbox() <- Shutdown{}
}

type recordedVictory struct {
	code    string
	results []VictoryRecord
}

type stubRecorder struct {
	mu    sync.Mutex
	calls chan recordedVictory
}

func newStubRecorder() *stubRecorder {
	return &stubRecorder{calls: make(chan recordedVictory, 1)}
}

func (r *stubRecorder) RecordVictory(ctx context.Context, code string, results []VictoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls <- recordedVictory{code: code, results: results}
	return nil
}

func TestSession_VictoryEmitsGameOverAndRecords(t *testing.T) {
	fight := testFight()
	fight.Enemies = []engine.EnemySpec{{ID: "slime", Name: "Slime", HP: engine.BaseDamage, Attack: 4}}
	fight.Loot = []engine.LootItem{{ID: "wand", Name: "Wand", Weight: 1}}
	rec := newStubRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, "ABC123", fight, Options{Solo: true, Timing: fastTiming(), Recorder: rec})

	out := attachPlayer(t, s, "p1", engine.ClassMage)
	s.Inbox() <- HostCommand{ConnID: "conn-p1", Kind: HostStartFight}
	s.Inbox() <- PlayerCommand{ConnID: "conn-p1", Cmd: Command{Kind: CmdSubmitAnswer, Answer: "1"}}
	s.Inbox() <- PlayerCommand{ConnID: "conn-p1", Cmd: Command{Kind: CmdChooseAbility, TargetID: "slime"}}

	over := waitGameOver(t, out, time.Second)
	if !over.Victory {
		t.Fatal("want a victory game over")
	}
	if len(over.Results) != 1 || over.Results[0].XPGained != 50 {
		t.Fatalf("want one result with 50 XP, got %+v", over.Results)
	}
	if over.Results[0].Loot == nil || over.Results[0].Loot.ID != "wand" {
		t.Fatalf("want the single-item loot table to drop, got %+v", over.Results[0].Loot)
	}

	select {
	case call := <-rec.calls:
		if call.code != "ABC123" || len(call.results) != 1 {
			t.Fatalf("unexpected recorded victory: %+v", call)
		}
	case <-time.After(time.Second):
		t.Fatal("victory was never persisted")
	}
	recvClosed(t, out, time.Second)
}

func TestSession_HostEndFightTearsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, "ABC123", testFight(), Options{Timing: fastTiming()})

	host := attachHost(t, s)
	p1 := attachPlayer(t, s, "p1", engine.ClassMage)

	s.Inbox() <- HostCommand{ConnID: "conn-host", Kind: HostEndFight}

	over := waitGameOver(t, p1, time.Second)
	if over.Victory {
		t.Fatal("host abort must not count as a victory")
	}
	recvClosed(t, host, time.Second)
	recvClosed(t, p1, time.Second)
}

func TestSession_IdleTimeoutTearsDown(t *testing.T) {
	closed := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, "ABC123", testFight(), Options{
		Timing:  fastTiming(),
		OnClose: func(code string) { closed <- code },
	})

	attachPlayer(t, s, "p1", engine.ClassMage)
	s.Inbox() <- Detach{ConnID: "conn-p1"}

	select {
	case code := <-closed:
		if code != "ABC123" {
			t.Fatalf("want close for ABC123, got %q", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("idle session never tore down")
	}
}

func TestSession_NeverAttachedReapedByIdleTimeout(t *testing.T) {
	// Pre-created over REST, host never opens the websocket: the session
	// must still tear itself down.
	closed := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	New(ctx, "ABC123", testFight(), Options{
		Timing:  fastTiming(),
		OnClose: func(code string) { closed <- code },
	})

	select {
	case code := <-closed:
		if code != "ABC123" {
			t.Fatalf("want close for ABC123, got %q", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never-attached session was never reaped")
	}
}

func TestSession_LateJoinRejected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, "ABC123", testFight(), Options{Solo: true, Timing: fastTiming()})

	attachPlayer(t, s, "p1", engine.ClassMage)
	s.Inbox() <- HostCommand{ConnID: "conn-p1", Kind: HostStartFight}
	getView(t, s)

	late := make(chan Outbound, 4)
	s.Inbox() <- AttachPlayer{
		ConnID: "conn-late",
		Info:   PlayerInfo{ID: "late", Name: "late", Class: engine.ClassScout, Level: 1},
		Outbox: late,
	}
	o := recvOutbound(t, late, time.Second)
	if _, ok := o.(Rejected); !ok {
		t.Fatalf("want a rejection for the late joiner, got %T", o)
	}
	recvClosed(t, late, time.Second)
	s.Inbox() <- Shutdown{}
}

func TestSession_BlockStanceUpdatesSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, "ABC123", testFight(), Options{Timing: fastTiming()})

	attachHost(t, s)
	tank := attachPlayer(t, s, "tank", engine.ClassWarrior)
	attachPlayer(t, s, "dps", engine.ClassScout)

	s.Inbox() <- PlayerCommand{ConnID: "conn-tank", Cmd: Command{Kind: CmdSelectBlock, TargetID: "dps"}}
	snap := waitSnapshot(t, tank, time.Second, func(sn Snapshot) bool {
		return sn.State.Player("tank").BlockTarget == "dps"
	})
	if snap.State.Phase != engine.PhaseWaiting {
		t.Fatalf("stance changes must not advance the phase, got %v", snap.State.Phase)
	}
	s.Inbox() <- Shutdown{}
}
