package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"trail-arena/internal/game"
	"trail-arena/internal/metrics"
	"trail-arena/internal/render"
	"trail-arena/internal/room"

	"github.com/go-chi/chi/v5"
)

const queryTimeout = 2 * time.Second

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":  "ok",
		"rooms":   h.lobby.RoomCount(),
		"clients": h.lobby.ClientCount(),
	})
}

func (h *routerHandlers) handleListRooms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	writeJSON(w, h.lobby.Rooms(ctx))
}

func (h *routerHandlers) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	name := chi.URLParam(r, "name")

	info, err := h.lobby.RoomInfo(ctx, name)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	resp := map[string]interface{}{"room": info}

	snap, running, err := h.lobby.RoomSnapshot(ctx, name, false)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	if running {
		resp["match"] = snap
	}
	writeJSON(w, resp)
}

func (h *routerHandlers) handleArenaPNG(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	name := chi.URLParam(r, "name")

	size := render.DefaultSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, "Invalid size", http.StatusBadRequest)
			return
		}
		size = n
	}

	snap, running, err := h.lobby.RoomSnapshot(ctx, name, true)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	if !running {
		writeError(w, "No match running", http.StatusNotFound)
		return
	}

	start := time.Now()
	data, err := render.NewRenderer(size).PNG(snap)
	if err != nil {
		log.Printf("❌ Arena render failed for room %q: %v", name, err)
		writeError(w, "Render failed", http.StatusInternalServerError)
		return
	}
	metrics.RecordRender(time.Since(start))

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func (h *routerHandlers) handleListBonuses(w http.ResponseWriter, r *http.Request) {
	type bonusInfo struct {
		Name     string  `json:"name"`
		Target   string  `json:"target"`
		Duration int64   `json:"duration"`
		Weight   float64 `json:"weight"`
	}
	out := make([]bonusInfo, 0, len(game.Catalog))
	for _, k := range game.AllBonusKinds() {
		spec := game.Catalog[k]
		out = append(out, bonusInfo{
			Name:     k.String(),
			Target:   spec.Target.String(),
			Duration: spec.Duration.Milliseconds(),
			Weight:   spec.Weight,
		})
	}
	writeJSON(w, out)
}

// Helper functions (package-level for reuse)

func writeRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrUnknownRoom), errors.Is(err, room.ErrRoomClosed):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, "Room busy", http.StatusServiceUnavailable)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
