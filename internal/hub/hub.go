package hub

import (
	"context"
	"crypto/rand"
	"math/big"

	"go.uber.org/zap"

	"github.com/classraid/classraid-server/internal/engine"
	"github.com/classraid/classraid-server/internal/session"
)

type HubMsg interface{ isHubMsg() }

// CreateSession spins up a new session for a fight and replies with its
// freshly generated share code.
type CreateSession struct {
	Fight engine.FightDef
	Solo  bool
	Reply chan Created
}

type Created struct {
	Code string
	Sess *session.Session
}

type GetSession struct {
	Code  string
	Reply chan *session.Session
}

// ResolveJoin looks up the session a player should attach to. A player
// already bound to a live session is routed back to it, whatever code
// they asked for: each student has at most one live session.
type ResolveJoin struct {
	PlayerID string
	Code     string
	Reply    chan *session.Session
}

// UnbindPlayer releases a binding after a rejected attach.
type UnbindPlayer struct {
	PlayerID string
	Code     string
}

type RemoveSession struct{ Code string }

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (ResolveJoin) isHubMsg()   {}
func (UnbindPlayer) isHubMsg()  {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// Options are the dependencies handed to every session the hub creates.
type Options struct {
	Logger   *zap.Logger
	Recorder session.Recorder
	Timing   session.Timing
	Catalog  *engine.Catalog
}

// Hub owns the session registry. Like each session, it is a single
// goroutine fed by a typed inbox; sessions themselves run concurrently
// and share nothing.
type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	players  map[string]string // playerID -> session code
	opts     Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Catalog == nil {
		opts.Catalog = engine.DefaultCatalog()
	}
	if opts.Timing == (session.Timing{}) {
		opts.Timing = session.DefaultTiming()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		players:  make(map[string]string),
		opts:     opts,
		log:      opts.Logger.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				code := h.freshCode()
				sess := session.New(h.ctx, code, msg.Fight, session.Options{
					Solo:     msg.Solo,
					Timing:   h.opts.Timing,
					Catalog:  h.opts.Catalog,
					Recorder: h.opts.Recorder,
					Logger:   h.opts.Logger,
					OnClose:  h.remove,
				})
				h.sessions[code] = sess
				h.log.Info("session created", zap.String("code", code), zap.Bool("solo", msg.Solo))
				msg.Reply <- Created{Code: code, Sess: sess}

			case GetSession:
				msg.Reply <- h.sessions[msg.Code] // may be nil

			case ResolveJoin:
				if code, bound := h.players[msg.PlayerID]; bound {
					if sess := h.sessions[code]; sess != nil {
						msg.Reply <- sess
						break
					}
					delete(h.players, msg.PlayerID)
				}
				sess := h.sessions[msg.Code]
				if sess != nil {
					h.players[msg.PlayerID] = msg.Code
				}
				msg.Reply <- sess

			case UnbindPlayer:
				if h.players[msg.PlayerID] == msg.Code {
					delete(h.players, msg.PlayerID)
				}

			case RemoveSession:
				delete(h.sessions, msg.Code)
				for id, code := range h.players {
					if code == msg.Code {
						delete(h.players, id)
					}
				}
				h.log.Info("session removed", zap.String("code", msg.Code))

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, sess := range h.sessions {
		sess.Inbox() <- session.Shutdown{}
	}
	clear(h.sessions)
	clear(h.players)
	h.cancel()
}

// remove is handed to sessions as their OnClose hook.
func (h *Hub) remove(code string) {
	select {
	case h.inbox <- RemoveSession{Code: code}:
	case <-h.ctx.Done():
	}
}

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// freshCode generates a share code not already in use.
func (h *Hub) freshCode() string {
	for {
		code := make([]byte, 6)
		for i := range code {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
			if err != nil {
				// crypto/rand failing is not survivable in any useful way.
				panic(err)
			}
			code[i] = codeCharset[n.Int64()]
		}
		if _, taken := h.sessions[string(code)]; !taken {
			return string(code)
		}
	}
}
