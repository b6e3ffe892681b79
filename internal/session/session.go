package session

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/classraid/classraid-server/internal/engine"
)

// client is one live socket bound to this session.
type client struct {
	connID   string
	playerID string // empty for the host
	host     bool
	out      chan Outbound
}

// Session owns one combat session's full lifecycle. All mutation runs on
// the single loop goroutine; the phase clock and every socket handler
// reach it through the inbox, so no two resolution passes can overlap.
type Session struct {
	inbox chan Msg

	code    string
	fight   engine.FightDef
	solo    bool
	catalog *engine.Catalog
	timing  Timing

	state   *engine.State
	collect *collector
	correct map[string]bool
	clock   phaseClock
	idle    phaseClock
	seq     int
	rng     *rand.Rand

	conns      map[string]*client
	playerConn map[string]string
	hostConn   string

	recorder Recorder
	log      *zap.Logger
	onClose  func(code string)
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Options configures a new session. Zero values get sane defaults.
type Options struct {
	Solo     bool
	Timing   Timing
	Catalog  *engine.Catalog
	Recorder Recorder
	Logger   *zap.Logger
	OnClose  func(code string)
	Seed     int64
}

// New spawns a session actor for one fight. Enemies are instantiated
// immediately; players register as their sockets attach.
func New(parent context.Context, code string, fight engine.FightDef, opts Options) *Session {
	ctx, cancel := context.WithCancel(parent)
	if opts.Catalog == nil {
		opts.Catalog = engine.DefaultCatalog()
	}
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	s := &Session{
		inbox:      make(chan Msg, 64),
		code:       code,
		fight:      fight,
		solo:       opts.Solo,
		catalog:    opts.Catalog,
		timing:     opts.Timing,
		state:      engine.NewState(nil, fight.SpawnEnemies()),
		collect:    newCollector(),
		rng:        rand.New(rand.NewSource(opts.Seed)),
		conns:      make(map[string]*client),
		playerConn: make(map[string]string),
		recorder:   opts.Recorder,
		log:        opts.Logger.With(zap.String("code", code)),
		onClose:    opts.OnClose,
		ctx:        ctx,
		cancel:     cancel,
	}
	// A session that never sees a connection still has to be reaped;
	// the first attach cancels this.
	s.armIdle()
	go s.loop()
	return s
}

func (s *Session) Inbox() chan<- Msg { return s.inbox }
func (s *Session) Code() string      { return s.code }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.teardown()
			return
		case m := <-s.inbox:
			switch msg := m.(type) {
			case AttachHost:
				s.attachHost(msg)
			case AttachPlayer:
				s.attachPlayer(msg)
			case Detach:
				s.detach(msg.ConnID)
			case PlayerCommand:
				s.playerCommand(msg)
			case HostCommand:
				s.hostCommand(msg)
			case Deadline:
				s.deadline(msg.Gen)
			case idleCheck:
				if s.idle.live(msg.Gen) && len(s.conns) == 0 {
					s.log.Info("session idle, tearing down")
					s.teardown()
					return
				}
			case GetView:
				msg.Reply <- View{
					Code:       s.code,
					Phase:      s.state.Phase,
					Round:      s.state.Round,
					NumClients: len(s.conns),
					HostOnline: s.hostConn != "",
					State:      s.state.Clone(),
				}
			case Shutdown:
				s.teardown()
				return
			}
		}
	}
}

// --- connection registry -------------------------------------------------

func (s *Session) attachHost(msg AttachHost) {
	if s.state.Phase.Terminal() {
		msg.Outbox <- Rejected{Reason: "session is over"}
		close(msg.Outbox)
		return
	}
	// A host reattaching supersedes its previous socket instead of
	// creating a duplicate session.
	if s.hostConn != "" {
		s.closeConn(s.hostConn)
	}
	s.conns[msg.ConnID] = &client{connID: msg.ConnID, host: true, out: msg.Outbox}
	s.hostConn = msg.ConnID
	s.idle.cancel()
	s.log.Info("host attached", zap.String("conn", msg.ConnID))
	s.sendSnapshot(msg.Outbox)
}

func (s *Session) attachPlayer(msg AttachPlayer) {
	if s.state.Phase.Terminal() {
		msg.Outbox <- Rejected{Reason: "session is over"}
		close(msg.Outbox)
		return
	}
	p := s.state.Player(msg.Info.ID)
	if p == nil {
		if s.state.Phase != engine.PhaseWaiting {
			msg.Outbox <- Rejected{Reason: "fight already started"}
			close(msg.Outbox)
			return
		}
		p = engine.NewPlayerState(
			msg.Info.ID, msg.Info.Name, msg.Info.Class, msg.Info.Gender,
			msg.Info.Level, msg.Info.XP, len(s.state.Players), msg.Info.Mods,
		)
		if e := s.state.FirstLivingEnemy(); e != nil {
			p.DefaultTarget = e.ID
		}
		s.state.Players = append(s.state.Players, p)
		s.emitLog(engine.LogInfo, fmt.Sprintf("%s joined the fight", p.Name))
	}
	// Reconnect: drop the stale socket, keep resources, phase, and any
	// pending action, then replay the current authoritative state.
	if old, ok := s.playerConn[p.ID]; ok {
		s.closeConn(old)
	}
	s.conns[msg.ConnID] = &client{connID: msg.ConnID, playerID: p.ID, out: msg.Outbox}
	s.playerConn[p.ID] = msg.ConnID
	s.idle.cancel()
	s.log.Info("player attached", zap.String("player", p.ID), zap.String("conn", msg.ConnID))
	s.sendSnapshot(msg.Outbox)
}

func (s *Session) detach(connID string) {
	c, ok := s.conns[connID]
	if !ok {
		return
	}
	s.closeConn(connID)
	if c.host {
		s.log.Info("host disconnected")
	} else {
		s.log.Info("player disconnected", zap.String("player", c.playerID))
		if p := s.state.Player(c.playerID); p != nil {
			s.emitLog(engine.LogInfo, fmt.Sprintf("%s disconnected", p.Name))
		}
		// The phase must not wait on a gone player.
		s.collect.drop(c.playerID)
		s.maybeAdvance()
	}
	if len(s.conns) == 0 && !s.state.Phase.Terminal() {
		s.armIdle()
	}
}

func (s *Session) armIdle() {
	s.idle.arm(s.timing.Idle, func(gen int) {
		select {
		case s.inbox <- idleCheck{Gen: gen}:
		case <-s.ctx.Done():
		}
	})
}

// closeConn removes one socket from the registry and closes its outbox.
func (s *Session) closeConn(connID string) {
	c, ok := s.conns[connID]
	if !ok {
		return
	}
	delete(s.conns, connID)
	if c.host {
		if s.hostConn == connID {
			s.hostConn = ""
		}
	} else if s.playerConn[c.playerID] == connID {
		delete(s.playerConn, c.playerID)
	}
	close(c.out)
}

func (s *Session) connected(playerID string) bool {
	_, ok := s.playerConn[playerID]
	return ok
}

// --- commands ------------------------------------------------------------

func (s *Session) playerCommand(msg PlayerCommand) {
	c, ok := s.conns[msg.ConnID]
	if !ok || c.host {
		return
	}
	p := s.state.Player(c.playerID)
	if p == nil || !p.Alive {
		// Acting after death is an authority error, rejected silently.
		return
	}
	cmd := msg.Cmd
	switch cmd.Kind {
	case CmdSubmitAnswer:
		if s.state.Phase != engine.PhaseQuestion {
			s.reject(c, "no question is open")
			return
		}
		s.collect.answers[p.ID] = cmd.Answer
		s.collect.mark(p.ID)
		s.maybeAdvance()

	case CmdChooseAbility:
		if s.state.Phase != engine.PhaseAbilityChoice {
			s.reject(c, "not choosing abilities right now")
			return
		}
		action := engine.PendingAction{Kind: engine.ActionAbility, AbilityID: cmd.AbilityID, TargetID: cmd.TargetID}
		if cmd.AbilityID == "" {
			action = engine.BaseAction(cmd.TargetID)
		}
		if err := engine.ValidateAction(s.state, p, action, s.catalog); err != nil {
			s.reject(c, err.Error())
			return
		}
		s.collect.actions[p.ID] = action
		if ab, ok := s.catalog.Lookup(cmd.AbilityID); ok && ab.Effect == engine.EffectHeal && !ab.Potion {
			s.collect.optedHeal[p.ID] = true
		}
		s.collect.mark(p.ID)
		s.maybeAdvance()

	case CmdSelectTarget:
		// Serves both target phases: enemy targets for damage abilities and
		// ally recipients for heals.
		action := s.collect.action(p.ID, p.DefaultTarget)
		switch s.state.Phase {
		case engine.PhaseTargetSelection:
			action.TargetID = cmd.TargetID
		case engine.PhaseHealingTarget:
			action.HealTarget = cmd.TargetID
		default:
			s.reject(c, "not selecting targets right now")
			return
		}
		if err := engine.ValidateAction(s.state, p, action, s.catalog); err != nil {
			s.reject(c, err.Error())
			return
		}
		s.collect.actions[p.ID] = action
		s.collect.mark(p.ID)
		s.maybeAdvance()

	case CmdChooseHeal:
		if s.state.Phase != engine.PhaseHealingChoice {
			s.reject(c, "not choosing healing right now")
			return
		}
		if p.Class != engine.ClassHealer {
			s.reject(c, "only healers may heal")
			return
		}
		abilityID := cmd.AbilityID
		if abilityID == "" {
			abilityID = s.defaultHeal(p)
		}
		action := engine.PendingAction{Kind: engine.ActionAbility, AbilityID: abilityID}
		if err := engine.ValidateAction(s.state, p, action, s.catalog); err != nil {
			s.reject(c, err.Error())
			return
		}
		s.collect.actions[p.ID] = action
		s.collect.optedHeal[p.ID] = true
		s.collect.mark(p.ID)
		s.maybeAdvance()

	case CmdDeclineHeal:
		if s.state.Phase != engine.PhaseHealingChoice {
			s.reject(c, "not choosing healing right now")
			return
		}
		s.collect.optedHeal[p.ID] = false
		if a, ok := s.collect.actions[p.ID]; ok {
			if ab, found := s.catalog.Lookup(a.AbilityID); found && ab.Effect == engine.EffectHeal {
				delete(s.collect.actions, p.ID) // back to the base attack
			}
		}
		s.collect.mark(p.ID)
		s.maybeAdvance()

	case CmdSelectBlock:
		// Blocking is a standing stance, adjustable during any input phase
		// and persistent across rounds.
		if !s.inputPhase() && s.state.Phase != engine.PhaseWaiting {
			s.reject(c, "cannot change block target now")
			return
		}
		if p.Class != engine.ClassWarrior {
			s.reject(c, "only warriors may block")
			return
		}
		ally := s.state.Player(cmd.TargetID)
		if ally == nil || !ally.Alive {
			s.reject(c, engine.ErrUnknownTarget.Error())
			return
		}
		p.BlockTarget = ally.ID
		s.emitLog(engine.LogInfo, fmt.Sprintf("%s now guards %s", p.Name, ally.Name))
		s.broadcastSnapshot()
	}
}

// defaultHeal picks the player's basic single-target heal.
func (s *Session) defaultHeal(p *engine.PlayerState) engine.AbilityID {
	for _, ab := range s.catalog.AvailableTo(p) {
		if ab.Effect == engine.EffectHeal && !ab.Potion && !ab.AoE {
			return ab.ID
		}
	}
	return ""
}

func (s *Session) hostCommand(msg HostCommand) {
	c := s.conns[msg.ConnID]
	authorized := msg.ConnID == s.hostConn || (s.solo && c != nil && !c.host)
	if !authorized {
		// Pretending to be the host is rejected silently.
		return
	}
	switch msg.Kind {
	case HostStartFight:
		if s.state.Phase != engine.PhaseWaiting {
			s.reject(c, "fight already started")
			return
		}
		if len(s.state.Players) == 0 {
			s.reject(c, "no players have joined")
			return
		}
		if len(s.fight.Questions) == 0 || len(s.state.Enemies) == 0 {
			s.reject(c, "fight definition is empty")
			return
		}
		s.log.Info("fight started", zap.Int("players", len(s.state.Players)))
		s.beginRound()

	case HostForceQuestion:
		// Equivalent to an immediate deadline: same resolution path, no
		// special-cased bypass of accounting or threat updates.
		if s.state.Phase == engine.PhaseQuestion {
			s.clock.cancel()
			s.endPhase()
		}

	case HostEndFight:
		s.log.Info("fight ended by host")
		s.broadcastAll(GameOver{Victory: false})
		s.teardownAndStop()
	}
}

// --- phase machine -------------------------------------------------------

func (s *Session) inputPhase() bool {
	switch s.state.Phase {
	case engine.PhaseQuestion, engine.PhaseAbilityChoice, engine.PhaseTargetSelection,
		engine.PhaseHealingChoice, engine.PhaseHealingTarget:
		return true
	}
	return false
}

// eligible lists living, connected players in join order.
func (s *Session) eligible() []string {
	var ids []string
	for _, p := range s.state.Players {
		if p.Alive && s.connected(p.ID) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (s *Session) beginRound() {
	s.collect.resetRound()
	s.beginQuestion()
}

// beginQuestion opens the round's question phase. It always arms the
// clock, even with nobody connected, so an empty session advances at
// question pace instead of spinning.
func (s *Session) beginQuestion() {
	s.correct = nil
	s.state.Phase = engine.PhaseQuestion
	s.collect.beginPhase(s.eligible())
	s.emitLog(engine.LogPhaseChange, string(engine.PhaseQuestion))
	s.broadcastSnapshot()
	s.armClock(s.timing.Question)
}

// enterPhase opens a non-question input phase. A phase nobody needs is
// skipped immediately.
func (s *Session) enterPhase(p engine.Phase, required []string, d time.Duration) {
	s.state.Phase = p
	s.collect.beginPhase(required)
	s.emitLog(engine.LogPhaseChange, string(p))
	s.broadcastSnapshot()
	if len(required) == 0 {
		s.endPhase()
		return
	}
	s.armClock(d)
}

func (s *Session) armClock(d time.Duration) {
	s.clock.arm(d, func(gen int) {
		select {
		case s.inbox <- Deadline{Gen: gen}:
		case <-s.ctx.Done():
		}
	})
}

func (s *Session) deadline(gen int) {
	if !s.clock.live(gen) {
		return
	}
	s.clock.cancel()
	if s.inputPhase() {
		s.endPhase()
	}
}

// maybeAdvance ends the phase early once every required player has
// submitted. The deadline path and this path converge on endPhase, so
// both produce the same resolution.
func (s *Session) maybeAdvance() {
	if s.inputPhase() && s.collect.complete() {
		s.clock.cancel()
		s.endPhase()
	}
}

func (s *Session) endPhase() {
	switch s.state.Phase {
	case engine.PhaseQuestion:
		s.scoreAnswers()
		s.enterPhase(engine.PhaseAbilityChoice, s.eligible(), s.timing.Choice)
	case engine.PhaseAbilityChoice:
		if req := s.targetRequired(); len(req) > 0 {
			s.enterPhase(engine.PhaseTargetSelection, req, s.timing.Target)
			return
		}
		s.healGate()
	case engine.PhaseTargetSelection:
		s.healGate()
	case engine.PhaseHealingChoice:
		if req := s.healTargetRequired(); len(req) > 0 {
			s.enterPhase(engine.PhaseHealingTarget, req, s.timing.Heal)
			return
		}
		s.resolve()
	case engine.PhaseHealingTarget:
		s.resolve()
	}
}

func (s *Session) scoreAnswers() {
	s.correct = make(map[string]bool)
	q := s.fight.Questions[s.state.QuestionIdx]
	for _, p := range s.state.Players {
		if !p.Alive {
			continue
		}
		ans, answered := s.collect.answers[p.ID]
		s.correct[p.ID] = answered && q.Check(ans)
	}
}

// targetRequired lists players who picked a single-target damage ability
// and still owe a target choice.
func (s *Session) targetRequired() []string {
	var ids []string
	for _, id := range s.eligible() {
		a, ok := s.collect.actions[id]
		if !ok || a.Kind != engine.ActionAbility || a.TargetID != "" {
			continue
		}
		ab, found := s.catalog.Lookup(a.AbilityID)
		if found && ab.Effect == engine.EffectDamage && !ab.AoE {
			ids = append(ids, id)
		}
	}
	return ids
}

// healChoiceRequired lists living connected healers who have not yet
// opted in or out of healing this round.
func (s *Session) healChoiceRequired() []string {
	var ids []string
	for _, id := range s.eligible() {
		p := s.state.Player(id)
		if p.Class != engine.ClassHealer {
			continue
		}
		if _, decided := s.collect.optedHeal[id]; !decided {
			ids = append(ids, id)
		}
	}
	return ids
}

// healTargetRequired lists players whose chosen heal still needs a
// recipient.
func (s *Session) healTargetRequired() []string {
	var ids []string
	for _, id := range s.eligible() {
		if !s.collect.optedHeal[id] {
			continue
		}
		a, ok := s.collect.actions[id]
		if !ok || a.HealTarget != "" {
			continue
		}
		ab, found := s.catalog.Lookup(a.AbilityID)
		if found && ab.Effect == engine.EffectHeal && !ab.Potion && !ab.AoE {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Session) healGate() {
	if req := s.healChoiceRequired(); len(req) > 0 {
		s.enterPhase(engine.PhaseHealingChoice, req, s.timing.Heal)
		return
	}
	if req := s.healTargetRequired(); len(req) > 0 {
		s.enterPhase(engine.PhaseHealingTarget, req, s.timing.Heal)
		return
	}
	s.resolve()
}

// resolve runs one full resolution pass and routes to the next round or
// a terminal phase.
func (s *Session) resolve() {
	s.clock.cancel()
	inputs := make(map[string]engine.Input, len(s.state.Players))
	for _, p := range s.state.Players {
		if !p.Alive {
			continue
		}
		inputs[p.ID] = engine.Input{
			Action:  s.collect.action(p.ID, p.DefaultTarget),
			Correct: s.correct[p.ID],
		}
	}
	events := engine.Resolve(s.state, inputs, s.catalog, s.seq)
	s.seq += len(events)
	for _, ev := range events {
		s.broadcastAll(LogOut{Event: ev})
	}
	s.broadcastSnapshot()

	switch s.state.Phase {
	case engine.PhaseVictory:
		s.finishVictory()
	case engine.PhaseDefeat:
		s.log.Info("party defeated", zap.Int("round", s.state.Round))
		s.broadcastAll(GameOver{Victory: false})
		s.teardownAndStop()
	default:
		s.state.QuestionIdx = (s.state.QuestionIdx + 1) % len(s.fight.Questions)
		s.beginRound()
	}
}

func (s *Session) finishVictory() {
	results := make([]VictoryRecord, 0, len(s.state.Players))
	for _, p := range s.state.Players {
		total, level, up := engine.GainXP(p.XP, s.fight.XPAward)
		rec := VictoryRecord{
			PlayerID:  p.ID,
			Name:      p.Name,
			XPGained:  s.fight.XPAward,
			XPTotal:   total,
			Level:     level,
			LeveledUp: up,
		}
		if item, ok := engine.RollLoot(s.fight.Loot, s.rng); ok {
			rec.Loot = &item
		}
		results = append(results, rec)
	}
	s.log.Info("victory", zap.Int("round", s.state.Round), zap.Int("players", len(results)))
	s.broadcastAll(GameOver{Victory: true, Results: results})

	// Fire-and-forget: phase advancement never waits on persistence.
	if s.recorder != nil {
		code, recorder, logger := s.code, s.recorder, s.log
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := recorder.RecordVictory(ctx, code, results); err != nil {
				logger.Error("recording victory failed", zap.Error(err))
			}
		}()
	}
	s.teardownAndStop()
}

// --- broadcast -----------------------------------------------------------

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{Code: s.code, State: s.state.Clone()}
	if s.state.Phase == engine.PhaseQuestion && s.state.QuestionIdx < len(s.fight.Questions) {
		q := s.fight.Questions[s.state.QuestionIdx]
		snap.Question = &QuestionView{Index: s.state.QuestionIdx, Prompt: q.Prompt, Choices: q.Choices}
	}
	return snap
}

func (s *Session) sendSnapshot(out chan Outbound) {
	snap := s.snapshot()
	select {
	case out <- snap:
	default:
	}
}

func (s *Session) broadcastSnapshot() {
	s.broadcastAll(s.snapshot())
}

// broadcastAll fans out to every client; a client whose outbox is full is
// dropped rather than allowed to stall the session.
func (s *Session) broadcastAll(o Outbound) {
	for id, c := range s.conns {
		select {
		case c.out <- o:
		default:
			s.log.Warn("dropping slow client", zap.String("conn", id))
			s.closeConn(id)
		}
	}
}

func (s *Session) emitLog(kind engine.LogKind, text string) {
	ev := engine.LogEvent{Seq: s.seq, Kind: kind, Text: text}
	s.seq++
	s.broadcastAll(LogOut{Event: ev})
}

func (s *Session) reject(c *client, reason string) {
	if c == nil {
		return
	}
	select {
	case c.out <- Rejected{Reason: reason}:
	default:
	}
}

// --- teardown ------------------------------------------------------------

// teardown cancels the clock, discards pending actions, and closes every
// connection. No partial resolution is applied.
func (s *Session) teardown() {
	if s.closed {
		return
	}
	s.closed = true
	s.clock.cancel()
	s.idle.cancel()
	s.collect.resetRound()
	for id := range s.conns {
		s.closeConn(id)
	}
	if s.onClose != nil {
		go s.onClose(s.code)
	}
	s.cancel()
}

// teardownAndStop is teardown for paths inside the loop; the closed
// context makes the loop exit on its next iteration.
func (s *Session) teardownAndStop() {
	s.teardown()
}
