package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"aichat/internal/chat"
	"aichat/internal/imagegen"
	"aichat/internal/store"
)

type APIHandler struct {
	manager *chat.Manager
	prefs   *store.PrefStore
	images  *imagegen.Client
	log     zerolog.Logger
}

func NewAPIHandler(manager *chat.Manager, prefs *store.PrefStore, images *imagegen.Client, log zerolog.Logger) *APIHandler {
	return &APIHandler{manager: manager, prefs: prefs, images: images, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

// PostMessageHandler submits a question and streams the turn back as SSE:
// an "ack" event with the appended user message, "reveal" events carrying the
// growing reply prefix, and a final "done" event with the complete message.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	turn, err := h.manager.Submit(r.Context(), req.Content)
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		http.Error(w, "Message content cannot be empty", http.StatusBadRequest)
		return
	case errors.Is(err, chat.ErrBusy):
		http.Error(w, "A request is already in flight", http.StatusConflict)
		return
	case err != nil:
		h.log.Error().Err(err).Msg("failed to submit message")
		http.Error(w, "Failed to submit message", http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeSSEEvent(w, flusher, "ack", map[string]any{"message": turn.User})

	<-turn.Done()
	if turn.Superseded {
		writeSSEEvent(w, flusher, "done", map[string]any{"superseded": true})
		return
	}
	if turn.Reply.IsError {
		writeSSEEvent(w, flusher, "done", map[string]any{"message": turn.Reply})
		return
	}

	if turn.Frames != nil {
		for prefix := range turn.Frames {
			writeSSEEvent(w, flusher, "reveal", map[string]any{"text": prefix})
		}
	}
	writeSSEEvent(w, flusher, "done", map[string]any{
		"message":    turn.Reply,
		"history_id": turn.HistoryID,
	})
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	w.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n"))
	flusher.Flush()
}

type TranscriptResponse struct {
	Messages        []chat.Message `json:"messages"`
	ActiveHistoryID *uuid.UUID     `json:"active_history_id,omitempty"`
	Pending         bool           `json:"pending"`
}

func (h *APIHandler) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	resp := TranscriptResponse{
		Messages: h.manager.Messages(),
		Pending:  h.manager.Pending(),
	}
	if id, ok := h.manager.ActiveHistoryID(); ok {
		resp.ActiveHistoryID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) NewChatHandler(w http.ResponseWriter, r *http.Request) {
	h.manager.StartNewChat()
	w.WriteHeader(http.StatusNoContent)
}

type HistorySummary struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	Timestamp    string    `json:"timestamp"`
	MessageCount int       `json:"message_count"`
}

func (h *APIHandler) ListHistoryHandler(w http.ResponseWriter, r *http.Request) {
	entries := h.manager.History()
	summaries := make([]HistorySummary, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, HistorySummary{
			ID:           e.ID,
			Title:        e.Title,
			Timestamp:    e.Timestamp.Format("2006-01-02 15:04:05"),
			MessageCount: len(e.Messages),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *APIHandler) ActivateHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "historyID"))
	if err != nil {
		http.Error(w, "Invalid history id", http.StatusBadRequest)
		return
	}
	if err := h.manager.LoadHistory(id); err != nil {
		if errors.Is(err, chat.ErrHistoryNotFound) {
			http.Error(w, "History entry not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("history_id", id.String()).Msg("failed to load history")
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, TranscriptResponse{
		Messages:        h.manager.Messages(),
		ActiveHistoryID: &id,
	})
}

func (h *APIHandler) DeleteHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "historyID"))
	if err != nil {
		http.Error(w, "Invalid history id", http.StatusBadRequest)
		return
	}
	if err := h.manager.DeleteHistory(id); err != nil {
		if errors.Is(err, chat.ErrHistoryNotFound) {
			http.Error(w, "History entry not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("history_id", id.String()).Msg("failed to delete history")
		http.Error(w, "Failed to delete history", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ClearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	h.manager.ClearAllHistory()
	w.WriteHeader(http.StatusNoContent)
}

type DarkModeResponse struct {
	DarkMode bool `json:"dark_mode"`
}

func (h *APIHandler) GetDarkModeHandler(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.prefs.DarkMode()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read dark mode preference")
		http.Error(w, "Failed to read preference", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, DarkModeResponse{DarkMode: enabled})
}

func (h *APIHandler) SetDarkModeHandler(w http.ResponseWriter, r *http.Request) {
	var req DarkModeResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.prefs.SetDarkMode(req.DarkMode); err != nil {
		h.log.Error().Err(err).Msg("failed to store dark mode preference")
		http.Error(w, "Failed to store preference", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type GenerateImageRequest struct {
	Prompt string `json:"prompt"`
}

func (h *APIHandler) GenerateImageHandler(w http.ResponseWriter, r *http.Request) {
	var req GenerateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Prompt == "" {
		http.Error(w, "Prompt cannot be empty", http.StatusBadRequest)
		return
	}

	data, contentType, err := h.images.Generate(r.Context(), req.Prompt)
	if err != nil {
		var upstream *imagegen.UpstreamError
		if errors.As(err, &upstream) {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": upstream.UserMessage()})
			return
		}
		h.log.Error().Err(err).Msg("image generation failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Image generation failed. Please try again."})
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
