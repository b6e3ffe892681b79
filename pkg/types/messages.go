// Package types defines the websocket wire messages exchanged with
// hosts and students. It is the closed envelope vocabulary: unknown or
// malformed payloads are rejected at the boundary, never deep in the
// engine.
package types

import (
	"github.com/classraid/classraid-server/internal/engine"
	"github.com/classraid/classraid-server/internal/session"
)

// Client -> server message types.
const (
	MsgHost     = "host"
	MsgHostSolo = "host_solo"
	MsgJoin     = "join"

	MsgStartFight    = "start_fight"
	MsgEndFight      = "end_fight"
	MsgForceQuestion = "force_question"

	MsgSubmitAnswer      = "submit_answer"
	MsgChooseAbility     = "choose_ability"
	MsgSelectTarget      = "select_target"
	MsgChooseToHeal      = "choose_to_heal"
	MsgDeclineHealing    = "decline_healing"
	MsgSelectBlockTarget = "select_block_target"
)

// Server -> client message types.
const (
	MsgSessionCreated = "session_created"
	MsgCombatState    = "combat_state"
	MsgCombatLog      = "combat_log"
	MsgActionRejected = "action_rejected"
	MsgGameOver       = "game_over"
	MsgError          = "error"
)

// ClientMessage is the single client -> server envelope.
type ClientMessage struct {
	Type      string `json:"type"`
	Code      string `json:"code,omitempty"`
	FightID   uint   `json:"fight_id,omitempty"`
	PlayerID  string `json:"player_id,omitempty"`
	Answer    string `json:"answer,omitempty"`
	AbilityID string `json:"ability_id,omitempty"`
	TargetID  string `json:"target_id,omitempty"`
}

// ServerMessage is the single server -> client envelope.
type ServerMessage struct {
	Type     string                  `json:"type"`
	Code     string                  `json:"code,omitempty"`
	State    *engine.State           `json:"state,omitempty"`
	Question *session.QuestionView   `json:"question,omitempty"`
	Event    *engine.LogEvent        `json:"event,omitempty"`
	Reason   string                  `json:"reason,omitempty"`
	Victory  *bool                   `json:"victory,omitempty"`
	Results  []session.VictoryRecord `json:"results,omitempty"`
	Error    string                  `json:"error,omitempty"`
}
