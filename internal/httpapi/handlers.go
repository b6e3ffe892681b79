package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/classraid/classraid-server/internal/hub"
	"github.com/classraid/classraid-server/internal/store"
	"github.com/classraid/classraid-server/internal/ws"
)

// Backend is what the REST surface needs from the store: the fight and
// student directory plus loot claiming.
type Backend interface {
	ws.Directory
	PendingLoot(ctx context.Context, studentID string) ([]store.LootAward, error)
	ClaimLoot(ctx context.Context, studentID string, awardID uint) error
}

// CreateSession pre-creates a session over REST so a host UI can show
// the share code before opening its websocket.
func CreateSession(h *hub.Hub, backend Backend, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FightID uint `json:"fight_id"`
			Solo    bool `json:"solo"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		fight, err := backend.FightByID(r.Context(), req.FightID)
		if err != nil {
			http.Error(w, "fight not found", http.StatusNotFound)
			return
		}
		reply := make(chan hub.Created, 1)
		h.Inbox() <- hub.CreateSession{Fight: fight, Solo: req.Solo, Reply: reply}
		created := <-reply

		log.Info("session pre-created", zap.String("code", created.Code))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code string `json:"code"`
		}{Code: created.Code})
	}
}

// PendingLoot lists a student's unclaimed awards.
func PendingLoot(backend Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		awards, err := backend.PendingLoot(r.Context(), chi.URLParam(r, "studentID"))
		if err != nil {
			http.Error(w, "lookup failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(awards)
	}
}

// ClaimLoot marks one award as claimed.
func ClaimLoot(backend Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		awardID, err := strconv.ParseUint(chi.URLParam(r, "awardID"), 10, 32)
		if err != nil {
			http.Error(w, "bad award id", http.StatusBadRequest)
			return
		}
		if err := backend.ClaimLoot(r.Context(), chi.URLParam(r, "studentID"), uint(awardID)); err != nil {
			http.Error(w, "award not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
