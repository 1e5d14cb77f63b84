package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"aichat/internal/chat"
	"aichat/internal/imagegen"
	"aichat/internal/store"
)

type stubGenerator struct {
	fn func(transcript []chat.Message) (string, error)
}

func (g *stubGenerator) Generate(ctx context.Context, transcript []chat.Message) (string, error) {
	return g.fn(transcript)
}

type rateLimitError struct{}

func (rateLimitError) Error() string { return "429 resource exhausted" }
func (rateLimitError) UserMessage() string {
	return "Too many requests right now. Please wait a moment and try again."
}

func newTestServer(t *testing.T, gen chat.Generator, imageURL string) (http.Handler, *store.PrefStore) {
	t.Helper()

	prefs, err := store.NewPrefStore(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("failed to open pref store: %v", err)
	}
	t.Cleanup(func() { prefs.Close() })

	manager := chat.NewManager(gen, chat.WithReveal(0, 0))
	images := imagegen.NewClient(imageURL, "test-token", 5*time.Second, zerolog.Nop())
	handler := NewAPIHandler(manager, prefs, images, zerolog.Nop())
	return NewRouter(handler), prefs
}

func doJSONRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func assertStatus(t *testing.T, resp *httptest.ResponseRecorder, want int) {
	t.Helper()
	if resp.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, resp.Code, resp.Body.String())
	}
}

func decodeJSON(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("failed to decode %s: %v", data, err)
	}
}

type sseEvent struct {
	Name string
	Data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			}
		}
		if ev.Name != "" {
			events = append(events, ev)
		}
	}
	return events
}

func TestChatFlowEndToEnd(t *testing.T) {
	router, _ := newTestServer(t, &stubGenerator{fn: func([]chat.Message) (string, error) {
		return "Hi there", nil
	}}, "http://unused.invalid")

	// Submit a question and walk the SSE stream.
	resp := doJSONRequest(t, router, http.MethodPost, "/api/messages", map[string]string{"content": "Hello"})
	assertStatus(t, resp, http.StatusOK)
	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected an event stream, got %q", ct)
	}

	events := parseSSE(t, resp.Body.String())
	if len(events) < 2 {
		t.Fatalf("expected at least ack and done events, got %+v", events)
	}
	if events[0].Name != "ack" {
		t.Fatalf("expected first event to be ack, got %s", events[0].Name)
	}
	var ack struct {
		Message chat.Message `json:"message"`
	}
	decodeJSON(t, []byte(events[0].Data), &ack)
	if ack.Message.Text != "Hello" || ack.Message.Sender != chat.SenderUser {
		t.Fatalf("unexpected ack message: %+v", ack.Message)
	}

	done := events[len(events)-1]
	if done.Name != "done" {
		t.Fatalf("expected final event to be done, got %s", done.Name)
	}
	var donePayload struct {
		Message   chat.Message `json:"message"`
		HistoryID string       `json:"history_id"`
	}
	decodeJSON(t, []byte(done.Data), &donePayload)
	if donePayload.Message.Text != "Hi there" || donePayload.Message.Sender != chat.SenderAI {
		t.Fatalf("unexpected done message: %+v", donePayload.Message)
	}
	if donePayload.HistoryID == "" {
		t.Fatal("done event should carry the history id")
	}

	// The transcript now holds both messages.
	resp = doJSONRequest(t, router, http.MethodGet, "/api/messages", nil)
	assertStatus(t, resp, http.StatusOK)
	var transcript TranscriptResponse
	decodeJSON(t, resp.Body.Bytes(), &transcript)
	if len(transcript.Messages) != 2 || transcript.Pending {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}

	// One history entry, titled by the question.
	resp = doJSONRequest(t, router, http.MethodGet, "/api/history", nil)
	assertStatus(t, resp, http.StatusOK)
	var summaries []HistorySummary
	decodeJSON(t, resp.Body.Bytes(), &summaries)
	if len(summaries) != 1 || summaries[0].Title != "Hello" || summaries[0].MessageCount != 2 {
		t.Fatalf("unexpected history list: %+v", summaries)
	}
	entryID := summaries[0].ID.String()

	// Start a new chat, then bring the old session back.
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/chats/new", nil), http.StatusNoContent)
	resp = doJSONRequest(t, router, http.MethodGet, "/api/messages", nil)
	decodeJSON(t, resp.Body.Bytes(), &transcript)
	if len(transcript.Messages) != 0 {
		t.Fatalf("new chat should reset the transcript, got %+v", transcript.Messages)
	}

	resp = doJSONRequest(t, router, http.MethodPost, "/api/history/"+entryID+"/activate", nil)
	assertStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp.Body.Bytes(), &transcript)
	if len(transcript.Messages) != 2 {
		t.Fatalf("activation should restore the snapshot, got %+v", transcript.Messages)
	}

	// Delete it and confirm it is gone.
	assertStatus(t, doJSONRequest(t, router, http.MethodDelete, "/api/history/"+entryID, nil), http.StatusNoContent)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/history/"+entryID+"/activate", nil), http.StatusNotFound)

	resp = doJSONRequest(t, router, http.MethodGet, "/api/history", nil)
	decodeJSON(t, resp.Body.Bytes(), &summaries)
	if len(summaries) != 0 {
		t.Fatalf("history should be empty after delete, got %+v", summaries)
	}
}

func TestPostMessageEmptyContent(t *testing.T) {
	router, _ := newTestServer(t, &stubGenerator{fn: func([]chat.Message) (string, error) {
		return "unused", nil
	}}, "http://unused.invalid")

	resp := doJSONRequest(t, router, http.MethodPost, "/api/messages", map[string]string{"content": "   "})
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestPostMessageRateLimited(t *testing.T) {
	router, _ := newTestServer(t, &stubGenerator{fn: func([]chat.Message) (string, error) {
		return "", rateLimitError{}
	}}, "http://unused.invalid")

	resp := doJSONRequest(t, router, http.MethodPost, "/api/messages", map[string]string{"content": "Hello"})
	assertStatus(t, resp, http.StatusOK)

	events := parseSSE(t, resp.Body.String())
	done := events[len(events)-1]
	if done.Name != "done" {
		t.Fatalf("expected a done event, got %s", done.Name)
	}
	var donePayload struct {
		Message chat.Message `json:"message"`
	}
	decodeJSON(t, []byte(done.Data), &donePayload)
	if !donePayload.Message.IsError {
		t.Fatalf("reply should be flagged as an error: %+v", donePayload.Message)
	}
	if !strings.Contains(donePayload.Message.Text, "Too many requests") {
		t.Fatalf("expected the rate-limit message, got %q", donePayload.Message.Text)
	}

	// A failed turn must not create a history entry.
	resp = doJSONRequest(t, router, http.MethodGet, "/api/history", nil)
	var summaries []HistorySummary
	decodeJSON(t, resp.Body.Bytes(), &summaries)
	if len(summaries) != 0 {
		t.Fatalf("unexpected history after failure: %+v", summaries)
	}
}

func TestClearHistory(t *testing.T) {
	router, _ := newTestServer(t, &stubGenerator{fn: func([]chat.Message) (string, error) {
		return "reply", nil
	}}, "http://unused.invalid")

	for i := 0; i < 3; i++ {
		resp := doJSONRequest(t, router, http.MethodPost, "/api/messages", map[string]string{"content": fmt.Sprintf("question %d", i)})
		assertStatus(t, resp, http.StatusOK)
		assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/chats/new", nil), http.StatusNoContent)
	}

	assertStatus(t, doJSONRequest(t, router, http.MethodDelete, "/api/history", nil), http.StatusNoContent)

	resp := doJSONRequest(t, router, http.MethodGet, "/api/history", nil)
	var summaries []HistorySummary
	decodeJSON(t, resp.Body.Bytes(), &summaries)
	if len(summaries) != 0 {
		t.Fatalf("history should be empty after clear, got %+v", summaries)
	}
}

func TestDarkModePreference(t *testing.T) {
	router, _ := newTestServer(t, &stubGenerator{fn: func([]chat.Message) (string, error) {
		return "unused", nil
	}}, "http://unused.invalid")

	resp := doJSONRequest(t, router, http.MethodGet, "/api/preferences/darkmode", nil)
	assertStatus(t, resp, http.StatusOK)
	var pref DarkModeResponse
	decodeJSON(t, resp.Body.Bytes(), &pref)
	if pref.DarkMode {
		t.Fatal("dark mode should default to false")
	}

	assertStatus(t, doJSONRequest(t, router, http.MethodPut, "/api/preferences/darkmode", DarkModeResponse{DarkMode: true}), http.StatusNoContent)

	resp = doJSONRequest(t, router, http.MethodGet, "/api/preferences/darkmode", nil)
	decodeJSON(t, resp.Body.Bytes(), &pref)
	if !pref.DarkMode {
		t.Fatal("dark mode preference was not stored")
	}
}

func TestGenerateImage(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G'}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer upstream.Close()

	router, _ := newTestServer(t, &stubGenerator{fn: func([]chat.Message) (string, error) {
		return "unused", nil
	}}, upstream.URL)

	resp := doJSONRequest(t, router, http.MethodPost, "/api/images", map[string]string{"prompt": "a sunset"})
	assertStatus(t, resp, http.StatusOK)
	if ct := resp.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
	if resp.Body.String() != string(payload) {
		t.Fatalf("unexpected payload: %v", resp.Body.Bytes())
	}
}

func TestGenerateImageModelLoading(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model is loading"}`, http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	router, _ := newTestServer(t, &stubGenerator{fn: func([]chat.Message) (string, error) {
		return "unused", nil
	}}, upstream.URL)

	resp := doJSONRequest(t, router, http.MethodPost, "/api/images", map[string]string{"prompt": "a sunset"})
	assertStatus(t, resp, http.StatusBadGateway)
	var body map[string]string
	decodeJSON(t, resp.Body.Bytes(), &body)
	if !strings.Contains(body["error"], "30 seconds") {
		t.Fatalf("expected a model-loading hint, got %q", body["error"])
	}
}
