package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classraid/classraid-server/internal/engine"
	"github.com/classraid/classraid-server/internal/hub"
	"github.com/classraid/classraid-server/internal/session"
	"github.com/classraid/classraid-server/pkg/types"
)

const (
	helloTimeout = 30 * time.Second
	readTimeout  = 5 * time.Minute
	writeTimeout = 3 * time.Second
)

// Directory is the read side of the collaborator boundary: fight
// definitions and student records, consumed at attach time.
type Directory interface {
	FightByID(ctx context.Context, id uint) (engine.FightDef, error)
	PlayerInfo(ctx context.Context, studentID string) (session.PlayerInfo, error)
}

// Handler upgrades a connection and runs its whole lifetime: a hello
// handshake that attaches it to a session, a writer goroutine draining
// the session outbox, and a reader loop forwarding commands.
func Handler(h *hub.Hub, dir Directory, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		first, err := readMessage(r.Context(), conn, helloTimeout)
		if err != nil {
			return
		}

		connID := uuid.NewString()
		out := make(chan session.Outbound, 16)

		att, err := attach(r.Context(), h, dir, first, connID, out)
		if err != nil {
			writeJSON(r.Context(), conn, types.ServerMessage{Type: types.MsgError, Error: err.Error()})
			return
		}
		log.Debug("attached",
			zap.String("conn", connID),
			zap.String("code", att.code),
			zap.String("player", att.playerID),
			zap.Bool("host", att.host))

		writeJSON(r.Context(), conn, types.ServerMessage{Type: types.MsgSessionCreated, Code: att.code})

		defer func() {
			select {
			case att.sess.Inbox() <- session.Detach{ConnID: connID}:
			default:
			}
		}()

		writeCtx, writeCancel := context.WithCancel(context.Background())
		defer writeCancel()
		go func() {
			attached := false
			for o := range out {
				if _, ok := o.(session.Snapshot); ok {
					attached = true
				}
				payload, err := json.Marshal(encode(o))
				if err != nil {
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
			// The session closed the outbox: either this attach was
			// rejected or the session ended. Release a binding that never
			// took, then drop the socket so the reader unblocks.
			if !attached && att.playerID != "" {
				h.Inbox() <- hub.UnbindPlayer{PlayerID: att.playerID, Code: att.code}
			}
			conn.Close(websocket.StatusNormalClosure, "session closed")
		}()

		for {
			cm, err := readMessage(r.Context(), conn, readTimeout)
			if err != nil {
				return
			}
			msg, ok := toSessionMsg(cm, connID)
			if !ok {
				writeJSON(r.Context(), conn, types.ServerMessage{Type: types.MsgError, Error: "unknown message type"})
				continue
			}
			select {
			case att.sess.Inbox() <- msg:
			default:
				// Session gone or saturated; the writer side will close us.
			}
		}
	}
}

type attachment struct {
	sess     *session.Session
	code     string
	playerID string
	host     bool
}

var (
	errSessionNotFound = errors.New("session not found")
	errBadHello        = errors.New("first message must be host, host_solo, or join")
)

// attach interprets the hello message: hosts create or resume a session,
// students join or solo-host one. The hub's player index guarantees a
// student lands in at most one live session, whatever they asked for.
func attach(ctx context.Context, h *hub.Hub, dir Directory, first types.ClientMessage, connID string, out chan session.Outbound) (attachment, error) {
	switch first.Type {
	case types.MsgHost:
		if first.Code != "" {
			sess := getSession(h, first.Code)
			if sess == nil {
				return attachment{}, errSessionNotFound
			}
			sess.Inbox() <- session.AttachHost{ConnID: connID, Outbox: out}
			return attachment{sess: sess, code: first.Code, host: true}, nil
		}
		fight, err := dir.FightByID(ctx, first.FightID)
		if err != nil {
			return attachment{}, err
		}
		created := createSession(h, fight, false)
		created.Sess.Inbox() <- session.AttachHost{ConnID: connID, Outbox: out}
		return attachment{sess: created.Sess, code: created.Code, host: true}, nil

	case types.MsgHostSolo:
		info, err := dir.PlayerInfo(ctx, first.PlayerID)
		if err != nil {
			return attachment{}, err
		}
		// An existing live session wins over creating a new one.
		if sess := resolveJoin(h, first.PlayerID, ""); sess != nil {
			sess.Inbox() <- session.AttachPlayer{ConnID: connID, Info: info, Outbox: out}
			return attachment{sess: sess, code: sess.Code(), playerID: info.ID}, nil
		}
		fight, err := dir.FightByID(ctx, first.FightID)
		if err != nil {
			return attachment{}, err
		}
		created := createSession(h, fight, true)
		sess := resolveJoin(h, first.PlayerID, created.Code)
		if sess == nil {
			return attachment{}, errSessionNotFound
		}
		sess.Inbox() <- session.AttachPlayer{ConnID: connID, Info: info, Outbox: out}
		return attachment{sess: sess, code: sess.Code(), playerID: info.ID}, nil

	case types.MsgJoin:
		info, err := dir.PlayerInfo(ctx, first.PlayerID)
		if err != nil {
			return attachment{}, err
		}
		sess := resolveJoin(h, first.PlayerID, first.Code)
		if sess == nil {
			return attachment{}, errSessionNotFound
		}
		sess.Inbox() <- session.AttachPlayer{ConnID: connID, Info: info, Outbox: out}
		return attachment{sess: sess, code: sess.Code(), playerID: info.ID}, nil

	default:
		return attachment{}, errBadHello
	}
}

// toSessionMsg maps a wire command onto the session inbox. Host controls
// are forwarded regardless of who sent them; the session enforces
// authority and silently drops impostors.
func toSessionMsg(m types.ClientMessage, connID string) (session.Msg, bool) {
	switch m.Type {
	case types.MsgStartFight:
		return session.HostCommand{ConnID: connID, Kind: session.HostStartFight}, true
	case types.MsgEndFight:
		return session.HostCommand{ConnID: connID, Kind: session.HostEndFight}, true
	case types.MsgForceQuestion:
		return session.HostCommand{ConnID: connID, Kind: session.HostForceQuestion}, true
	case types.MsgSubmitAnswer:
		return session.PlayerCommand{ConnID: connID, Cmd: session.Command{Kind: session.CmdSubmitAnswer, Answer: m.Answer}}, true
	case types.MsgChooseAbility:
		return session.PlayerCommand{ConnID: connID, Cmd: session.Command{
			Kind: session.CmdChooseAbility, AbilityID: engine.AbilityID(m.AbilityID), TargetID: m.TargetID,
		}}, true
	case types.MsgSelectTarget:
		return session.PlayerCommand{ConnID: connID, Cmd: session.Command{Kind: session.CmdSelectTarget, TargetID: m.TargetID}}, true
	case types.MsgChooseToHeal:
		return session.PlayerCommand{ConnID: connID, Cmd: session.Command{
			Kind: session.CmdChooseHeal, AbilityID: engine.AbilityID(m.AbilityID),
		}}, true
	case types.MsgDeclineHealing:
		return session.PlayerCommand{ConnID: connID, Cmd: session.Command{Kind: session.CmdDeclineHeal}}, true
	case types.MsgSelectBlockTarget:
		return session.PlayerCommand{ConnID: connID, Cmd: session.Command{Kind: session.CmdSelectBlock, TargetID: m.TargetID}}, true
	default:
		return nil, false
	}
}

// encode translates a session outbound into its wire envelope.
func encode(o session.Outbound) types.ServerMessage {
	switch v := o.(type) {
	case session.Snapshot:
		return types.ServerMessage{Type: types.MsgCombatState, Code: v.Code, State: v.State, Question: v.Question}
	case session.LogOut:
		ev := v.Event
		return types.ServerMessage{Type: types.MsgCombatLog, Event: &ev}
	case session.Rejected:
		return types.ServerMessage{Type: types.MsgActionRejected, Reason: v.Reason}
	case session.GameOver:
		victory := v.Victory
		return types.ServerMessage{Type: types.MsgGameOver, Victory: &victory, Results: v.Results}
	default:
		return types.ServerMessage{Type: types.MsgError, Error: "unencodable message"}
	}
}

func getSession(h *hub.Hub, code string) *session.Session {
	reply := make(chan *session.Session, 1)
	h.Inbox() <- hub.GetSession{Code: code, Reply: reply}
	return <-reply
}

func resolveJoin(h *hub.Hub, playerID, code string) *session.Session {
	reply := make(chan *session.Session, 1)
	h.Inbox() <- hub.ResolveJoin{PlayerID: playerID, Code: code, Reply: reply}
	return <-reply
}

func createSession(h *hub.Hub, fight engine.FightDef, solo bool) hub.Created {
	reply := make(chan hub.Created, 1)
	h.Inbox() <- hub.CreateSession{Fight: fight, Solo: solo, Reply: reply}
	return <-reply
}

func readMessage(ctx context.Context, conn *websocket.Conn, timeout time.Duration) (types.ClientMessage, error) {
	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, data, err := conn.Read(readCtx)
	if err != nil {
		return types.ClientMessage{}, err
	}
	var cm types.ClientMessage
	if err := json.Unmarshal(data, &cm); err != nil {
		return types.ClientMessage{}, err
	}
	return cm, nil
}

func writeJSON(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(writeCtx, websocket.MessageText, payload)
}
