package routes

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/compassionsafe/portal/internal/jobs"
)

type broadcastRequest struct {
	Phones  []string `json:"phones"`
	Message string   `json:"message"`
}

// handleBroadcast fans a message out as one task per recipient; the
// worker delivers through the gateway so a slow provider never holds a
// request open.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decode(r, &req); err != nil || len(req.Phones) == 0 || req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "phones and message required")
		return
	}
	if s.Tasks == nil {
		s.writeError(w, http.StatusServiceUnavailable, "messaging not configured")
		return
	}

	broadcastID := uuid.NewString()
	queued := 0
	for _, phone := range req.Phones {
		payload, err := json.Marshal(jobs.SendSMSPayload{
			BroadcastID: broadcastID,
			Phone:       phone,
			Message:     req.Message,
		})
		if err != nil {
			continue
		}
		task := asynq.NewTask(jobs.TaskSendSMS, payload)
		if _, err := s.Tasks.Enqueue(task, asynq.Queue("sms"), asynq.MaxRetry(3)); err != nil {
			s.Log.Error().Err(err).Str("phone", phone).Msg("enqueue sms failed")
			continue
		}
		queued++
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"broadcast_id": broadcastID,
		"queued":       queued,
		"requested":    len(req.Phones),
	})
}
