package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/compassionsafe/portal/internal/store"
)

// Offline shell endpoints. A nil Store means local storage was
// unavailable at startup: reads answer absent, writes report the
// degraded mode, and the portal stays usable online.

const noteKey = "offline-note"

func (s *Server) handleOfflineStatus(w http.ResponseWriter, _ *http.Request) {
	online := true
	if s.Monitor != nil {
		online = s.Monitor.Online()
	}
	pending := 0
	if s.Store != nil {
		if entries, err := s.Store.QueueAll(); err == nil {
			pending = len(entries)
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"online": online, "pending": pending})
}

func (s *Server) handleOfflineNoteGet(w http.ResponseWriter, _ *http.Request) {
	if s.Store == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"note": "", "cached": false})
		return
	}
	var note string
	found, err := s.Store.CacheGet(noteKey, &note)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "cache read failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"note": note, "cached": found})
}

func (s *Server) handleOfflineNoteSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "note required")
		return
	}
	if s.Store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "local storage unavailable")
		return
	}
	if err := s.Store.CacheSet(noteKey, req.Note); err != nil {
		if errors.Is(err, store.ErrStorageWrite) {
			s.writeError(w, http.StatusInsufficientStorage, "save failed")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "save failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cached"})
}

func (s *Server) handleQueueList(w http.ResponseWriter, _ *http.Request) {
	if s.Store == nil {
		s.writeJSON(w, http.StatusOK, []store.QueueEntry{})
		return
	}
	entries, err := s.Store.QueueAll()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "queue read failed")
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleQueuePush(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage
	if err := decode(r, &payload); err != nil || len(payload) == 0 {
		s.writeError(w, http.StatusBadRequest, "payload required")
		return
	}
	if s.Store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "local storage unavailable")
		return
	}
	id, err := s.Store.QueuePush(payload)
	if err != nil {
		s.writeError(w, http.StatusInsufficientStorage, "queue write failed")
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	if s.Sync == nil {
		s.writeError(w, http.StatusServiceUnavailable, "sync not configured")
		return
	}
	if err := s.Sync.SyncNow(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, "sync failed; queue preserved")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}
