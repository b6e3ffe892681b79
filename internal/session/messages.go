package session

import (
	"context"
	"time"

	"github.com/classraid/classraid-server/internal/engine"
)

// Msg is the session actor's inbox union. Everything that can touch a
// session's state arrives as one of these and is handled on the single
// session goroutine.
type Msg interface{ isSessionMsg() }

// AttachHost binds (or rebinds, on reconnect) the host socket.
type AttachHost struct {
	ConnID string
	Outbox chan Outbound
}

// AttachPlayer registers a student connection. A known player id
// reattaches to its existing combat state; an unknown one joins only
// while the session is still waiting for players.
type AttachPlayer struct {
	ConnID string
	Info   PlayerInfo
	Outbox chan Outbound
}

// Detach drops a connection. Mid-phase this counts the player as "no
// action"; it never blocks the phase.
type Detach struct{ ConnID string }

// PlayerCommand carries one per-phase player action.
type PlayerCommand struct {
	ConnID string
	Cmd    Command
}

// HostCommand carries a host-only control.
type HostCommand struct {
	ConnID string
	Kind   HostCommandKind
}

// Deadline is sent by the phase clock; stale generations are ignored.
type Deadline struct{ Gen int }

// idleCheck fires after the last connection drops.
type idleCheck struct{ Gen int }

// GetView reflects internal state without data races; test-only.
type GetView struct{ Reply chan View }

// Shutdown tears the session down, discarding pending actions.
type Shutdown struct{}

func (AttachHost) isSessionMsg()    {}
func (AttachPlayer) isSessionMsg()  {}
func (Detach) isSessionMsg()        {}
func (PlayerCommand) isSessionMsg() {}
func (HostCommand) isSessionMsg()   {}
func (Deadline) isSessionMsg()      {}
func (idleCheck) isSessionMsg()     {}
func (GetView) isSessionMsg()       {}
func (Shutdown) isSessionMsg()      {}

// PlayerInfo seeds a PlayerState from the student record collaborator.
type PlayerInfo struct {
	ID     string
	Name   string
	Class  engine.Class
	Gender string
	Level  int
	XP     int
	Mods   engine.StatMods
}

type CommandKind string

const (
	CmdSubmitAnswer  CommandKind = "submit_answer"
	CmdChooseAbility CommandKind = "choose_ability"
	CmdSelectTarget  CommandKind = "select_target"
	CmdChooseHeal    CommandKind = "choose_to_heal"
	CmdDeclineHeal   CommandKind = "decline_healing"
	CmdSelectBlock   CommandKind = "select_block_target"
)

// Command is one player action for the active phase. AbilityID empty on
// choose_ability means the base attack.
type Command struct {
	Kind      CommandKind
	Answer    string
	AbilityID engine.AbilityID
	TargetID  string
}

type HostCommandKind string

const (
	HostStartFight    HostCommandKind = "start_fight"
	HostEndFight      HostCommandKind = "end_fight"
	HostForceQuestion HostCommandKind = "force_question"
)

// Outbound is what a session pushes to one client connection. The ws
// layer translates these into wire messages.
type Outbound interface{ isOutbound() }

// QuestionView is the client-safe slice of the active question; the
// canonical answer stays server-side.
type QuestionView struct {
	Index   int      `json:"index"`
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices,omitempty"`
}

// Snapshot is the full authoritative state, cloned so clients never
// share mutable structs with the session.
type Snapshot struct {
	Code     string
	State    *engine.State
	Question *QuestionView
}

// LogOut carries one combat log event, append-only, one at a time.
type LogOut struct{ Event engine.LogEvent }

// Rejected reports a validation failure to the offending client only.
type Rejected struct{ Reason string }

// GameOver is terminal.
type GameOver struct {
	Victory bool
	Results []VictoryRecord
}

func (Snapshot) isOutbound() {}
func (LogOut) isOutbound()   {}
func (Rejected) isOutbound() {}
func (GameOver) isOutbound() {}

// VictoryRecord is one player's progression outcome, persisted
// fire-and-forget through the Recorder.
type VictoryRecord struct {
	PlayerID  string           `json:"player_id"`
	Name      string           `json:"name"`
	XPGained  int              `json:"xp_gained"`
	XPTotal   int              `json:"xp_total"`
	Level     int              `json:"level"`
	LeveledUp bool             `json:"leveled_up"`
	Loot      *engine.LootItem `json:"loot,omitempty"`
}

// Recorder is the student-record collaborator boundary: persistence of
// victory results. Writes are logged but never awaited by the session.
type Recorder interface {
	RecordVictory(ctx context.Context, code string, results []VictoryRecord) error
}

// Timing holds the per-phase countdown durations and the idle timeout.
type Timing struct {
	Question time.Duration
	Choice   time.Duration
	Target   time.Duration
	Heal     time.Duration
	Idle     time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Question: 15 * time.Second,
		Choice:   10 * time.Second,
		Target:   8 * time.Second,
		Heal:     8 * time.Second,
		Idle:     5 * time.Minute,
	}
}

// View is the test-only reflection of session internals.
type View struct {
	Code       string
	Phase      engine.Phase
	Round      int
	NumClients int
	HostOnline bool
	State      *engine.State
}
