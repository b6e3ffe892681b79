package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/classraid/classraid-server/internal/hub"
	"github.com/classraid/classraid-server/internal/ws"
)

func SetupRoutes(h *hub.Hub, backend Backend, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/sessions", CreateSession(h, backend, log))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, backend, log))
	r.Get("/students/{studentID}/loot", PendingLoot(backend))
	r.Post("/students/{studentID}/loot/{awardID}/claim", ClaimLoot(backend))
	return r
}
