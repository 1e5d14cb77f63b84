// Package chat implements the conversation state machine behind the chat UI:
// the active transcript, the capped history of past sessions, and the typing
// reveal of incoming replies.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"aichat/internal/markup"
)

var (
	ErrEmptyInput      = errors.New("chat: empty input")
	ErrBusy            = errors.New("chat: a request is already in flight")
	ErrHistoryNotFound = errors.New("chat: history entry not found")
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultRevealInterval = 30 * time.Millisecond
	defaultRevealStep     = 3

	genericErrorText = "Failed to get an answer. Please try again."
	timeoutErrorText = "The request timed out. Please try again."
)

// Generator produces a reply for the full transcript of the active session.
type Generator interface {
	Generate(ctx context.Context, transcript []Message) (string, error)
}

// UserFacing is implemented by errors that carry a message suitable for
// showing directly in the conversation.
type UserFacing interface {
	UserMessage() string
}

// Manager tracks a single conversation session and its history. All
// transitions happen as one locked step; at most one generation request is in
// flight and at most one reveal timer is live at any time.
type Manager struct {
	generator Generator
	log       zerolog.Logger

	historyCap     int
	requestTimeout time.Duration
	revealInterval time.Duration
	revealStep     int

	mu         sync.Mutex
	messages   []Message
	history    []HistoryEntry // newest first
	activeID   uuid.UUID      // uuid.Nil while the session is unlinked
	pending    bool
	generation uint64
	reveal     *reveal
}

type Option func(*Manager)

func WithHistoryCap(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.historyCap = n
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.requestTimeout = d
		}
	}
}

// WithReveal tunes the typing reveal. A non-positive interval disables the
// animation and shows replies at once.
func WithReveal(interval time.Duration, step int) Option {
	return func(m *Manager) {
		m.revealInterval = interval
		if step > 0 {
			m.revealStep = step
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

func NewManager(generator Generator, opts ...Option) *Manager {
	m := &Manager{
		generator:      generator,
		log:            zerolog.Nop(),
		historyCap:     DefaultHistoryCap,
		requestTimeout: defaultRequestTimeout,
		revealInterval: defaultRevealInterval,
		revealStep:     defaultRevealStep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Turn is the handle for one submitted question. User is set immediately;
// the remaining fields become valid once Done() is closed.
type Turn struct {
	User       Message
	Reply      Message
	HistoryID  uuid.UUID
	Superseded bool

	// Frames streams the growing prefix of the reply while the reveal runs.
	// It is closed when the reveal finishes or is cancelled, and is nil when
	// the turn failed.
	Frames     <-chan string
	RevealDone <-chan struct{}

	done chan struct{}
}

// Done is closed once the generation request has resolved and the turn's
// result fields are populated.
func (t *Turn) Done() <-chan struct{} { return t.done }

// Submit appends the user's question and dispatches one generation request
// carrying the full transcript. It returns ErrEmptyInput for blank text and
// ErrBusy while a previous request is still in flight.
func (m *Manager) Submit(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	m.mu.Lock()
	if m.pending {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	// A reveal from the previous turn may still be running; complete it so
	// the transcript carries the full prior reply, not a prefix of it.
	m.cancelRevealLocked()
	user := Message{Text: text, Sender: SenderUser, Timestamp: time.Now()}
	m.messages = append(m.messages, user)
	m.pending = true
	gen := m.generation
	transcript := copyMessages(m.messages)
	m.mu.Unlock()

	turn := &Turn{User: user, done: make(chan struct{})}
	go m.completeTurn(ctx, turn, gen, transcript)
	return turn, nil
}

func (m *Manager) completeTurn(ctx context.Context, turn *Turn, gen uint64, transcript []Message) {
	defer close(turn.done)

	ctx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()
	text, err := m.generator.Generate(ctx, transcript)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		// The session was reset or replaced while the request was in
		// flight; applying the result would leak across sessions.
		turn.Superseded = true
		m.log.Debug().Uint64("generation", gen).Msg("discarding reply for superseded session")
		return
	}
	m.pending = false

	if err != nil {
		reply := Message{
			Text:      userMessageFor(err),
			Sender:    SenderAI,
			IsError:   true,
			Timestamp: time.Now(),
		}
		m.messages = append(m.messages, reply)
		turn.Reply = reply
		m.log.Warn().Err(err).Msg("generation request failed")
		return
	}

	reply := Message{
		Text:      text,
		Sender:    SenderAI,
		Timestamp: time.Now(),
		Segments:  markup.Split(text),
	}
	turn.Reply = reply
	turn.HistoryID = m.upsertHistoryLocked(reply)

	r := m.startRevealLocked(reply)
	turn.Frames = r.frames
	turn.RevealDone = r.done
	m.log.Debug().Str("history_id", turn.HistoryID.String()).Int("reply_len", len(text)).Msg("turn completed")
}

// StartNewChat snapshots an unlinked, non-empty session into history and
// resets the active session. Calling it twice in a row is a no-op the second
// time.
func (m *Manager) StartNewChat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelRevealLocked()
	m.startNewChatLocked()
}

func (m *Manager) startNewChatLocked() {
	if len(m.messages) > 0 && m.findEntryLocked(m.activeID) < 0 {
		entry := HistoryEntry{
			ID:        uuid.New(),
			Title:     entryTitle(m.messages),
			Messages:  copyMessages(m.messages),
			Timestamp: time.Now(),
		}
		m.prependHistoryLocked(entry)
	}
	m.resetSessionLocked()
}

// resetSessionLocked clears the active session. Bumping the generation token
// turns any in-flight request's completion into a no-op.
func (m *Manager) resetSessionLocked() {
	m.messages = nil
	m.activeID = uuid.Nil
	m.pending = false
	m.generation++
}

// LoadHistory replaces the active session with the snapshot stored under id.
// Unknown ids surface as ErrHistoryNotFound rather than being ignored.
func (m *Manager) LoadHistory(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.findEntryLocked(id)
	if idx < 0 {
		return ErrHistoryNotFound
	}
	m.cancelRevealLocked()
	m.messages = copyMessages(m.history[idx].Messages)
	m.activeID = id
	m.pending = false
	m.generation++
	return nil
}

// DeleteHistory removes the entry stored under id. Deleting the active entry
// resets the session first so no dangling reference remains.
func (m *Manager) DeleteHistory(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.findEntryLocked(id)
	if idx < 0 {
		return ErrHistoryNotFound
	}
	if id == m.activeID {
		m.cancelRevealLocked()
		// Still linked at this point, so no snapshot is taken.
		m.startNewChatLocked()
	}
	m.history = append(m.history[:idx], m.history[idx+1:]...)
	return nil
}

// ClearAllHistory empties the history and resets the active session. The
// active transcript is dropped, not re-snapshotted.
func (m *Manager) ClearAllHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelRevealLocked()
	m.history = nil
	m.resetSessionLocked()
}

// Messages returns a copy of the active transcript.
func (m *Manager) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyMessages(m.messages)
}

// History returns the saved sessions, newest first.
func (m *Manager) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}

// ActiveHistoryID reports the entry the session is linked to, if any.
func (m *Manager) ActiveHistoryID() (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID, m.activeID != uuid.Nil
}

func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

func userMessageFor(err error) string {
	var uf UserFacing
	if errors.As(err, &uf) {
		return uf.UserMessage()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutErrorText
	}
	return genericErrorText
}
