package admin

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/topicmon/monitor"
	"github.com/maxpert/topicmon/notify"
	"github.com/maxpert/topicmon/topic"
	"github.com/rs/zerolog/log"
)

// Monitor is the part of the topic monitor the admin endpoints read and post to
type Monitor interface {
	CurrentGenerations() topic.GenerationsList
	GenerationForTopic(t topic.Topic) topic.Generation
	Post(t topic.Topic)
	Status() uint8
	HasReader() bool
	Backend() notify.Backend
}

// AdminHandlers handles admin API endpoints for the topic monitor
type AdminHandlers struct {
	mon       Monitor
	allowPost bool
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(mon Monitor, allowPost bool) *AdminHandlers {
	return &AdminHandlers{
		mon:       mon,
		allowPost: allowPost,
	}
}

// StatusResponse describes the monitor's status word and reader state
type StatusResponse struct {
	Status      uint8    `json:"status"`
	NeedsWakeup bool     `json:"needs_wakeup"`
	Pending     []string `json:"pending"`
	HasReader   bool     `json:"has_reader"`
	Backend     string   `json:"backend"`
}

// GenerationResponse is a single topic's generation
type GenerationResponse struct {
	Topic      string `json:"topic"`
	Generation uint64 `json:"generation"`
}

func (h *AdminHandlers) handleGenerations(w http.ResponseWriter, r *http.Request) {
	gens := h.mon.CurrentGenerations()
	writeJSONResponse(w, http.StatusOK, gens.Map())
}

func (h *AdminHandlers) handleGeneration(w http.ResponseWriter, r *http.Request) {
	t, ok := topicParam(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, GenerationResponse{
		Topic:      t.String(),
		Generation: h.mon.GenerationForTopic(t),
	})
}

func (h *AdminHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := h.mon.Status()
	resp := StatusResponse{
		Status:      status,
		NeedsWakeup: status&monitor.StatusNeedsWakeup != 0,
		Pending:     []string{},
		HasReader:   h.mon.HasReader(),
		Backend:     string(h.mon.Backend()),
	}
	if !resp.NeedsWakeup {
		for _, t := range topic.Set(status).Topics() {
			resp.Pending = append(resp.Pending, t.String())
		}
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AdminHandlers) handlePost(w http.ResponseWriter, r *http.Request) {
	if !h.allowPost {
		writeErrorResponse(w, http.StatusForbidden, "posting is disabled")
		return
	}
	t, ok := topicParam(w, r)
	if !ok {
		return
	}

	h.mon.Post(t)
	log.Info().Str("topic", t.String()).Str("remote", r.RemoteAddr).Msg("Topic posted via admin")

	writeJSONResponse(w, http.StatusAccepted, map[string]interface{}{
		"topic":  t.String(),
		"posted": true,
	})
}

// topicParam resolves the {topic} URL parameter, writing a 404 on failure
func topicParam(w http.ResponseWriter, r *http.Request) (topic.Topic, bool) {
	name := chi.URLParam(r, "topic")
	t, err := topic.Parse(name)
	if err != nil {
		writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("unknown topic '%s'", name))
		return 0, false
	}
	return t, true
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	response := map[string]interface{}{
		"data": data,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	response := map[string]interface{}{
		"error": message,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
