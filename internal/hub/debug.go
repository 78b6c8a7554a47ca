package hub

import (
	"encoding/json"
	"net/http"

	"github.com/rakunlabs/ada"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"
	mtelemetry "github.com/rakunlabs/ada/middleware/telemetry"

	"github.com/scryforge/hub/internal/config"
)

// newDebugMux builds the optional plain-HTTP operator surface: an
// operator without a JSON-RPC client can still hit GET /debug/health and
// GET /debug/sync for the same provider health and sync-state information
// the RPC method table exposes. Left unset in Daemon.DebugBindAddress,
// nothing is ever listened on.
func (h *Hub) newDebugMux() *ada.Server {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(config.Service),
		mrequestid.Middleware(),
		mlog.Middleware(),
		mtelemetry.Middleware(),
	)

	debug := mux.Group("/debug")
	debug.GET("/health", h.debugHealth)
	debug.GET("/sync", h.debugSync)

	return mux
}

func (h *Hub) debugHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providers := h.registry.List()
	out := make(map[string]any, len(providers))
	for _, p := range providers {
		health, err := p.HealthCheck(ctx)
		if err != nil {
			out[p.ID()] = map[string]any{"is_healthy": false, "message": err.Error()}
			continue
		}
		out[p.ID()] = health
	}
	debugWriteJSON(w, out, http.StatusOK)
}

func (h *Hub) debugSync(w http.ResponseWriter, r *http.Request) {
	debugWriteJSON(w, h.scheduler.Status(), http.StatusOK)
}

func debugWriteJSON(w http.ResponseWriter, v any, code int) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}
