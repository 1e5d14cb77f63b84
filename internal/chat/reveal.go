package chat

import "time"

// reveal owns the single timer that progressively exposes an already-received
// reply. Exactly one reveal may be live per manager; starting a new one always
// cancels the previous one first.
type reveal struct {
	full     []rune
	final    Message // the complete reply, written back on finish or cancel
	msgIndex int     // position of the in-progress AI message
	gen      uint64  // session token captured when the reveal started

	frames chan string
	done   chan struct{}
	cancel chan struct{}
}

const revealFrameBuffer = 16

// startRevealLocked appends the in-progress AI message and begins revealing
// reply.Text. With a non-positive interval the reply is shown at once.
// Callers must hold m.mu.
func (m *Manager) startRevealLocked(reply Message) *reveal {
	m.cancelRevealLocked()

	r := &reveal{
		full:     []rune(reply.Text),
		final:    reply,
		msgIndex: len(m.messages),
		gen:      m.generation,
		frames:   make(chan string, revealFrameBuffer),
		done:     make(chan struct{}),
		cancel:   make(chan struct{}),
	}

	if m.revealInterval <= 0 || len(r.full) == 0 {
		m.messages = append(m.messages, reply)
		close(r.frames)
		close(r.done)
		return r
	}

	partial := reply
	partial.Text = ""
	partial.Segments = nil
	m.messages = append(m.messages, partial)

	m.reveal = r
	go m.runReveal(r)
	return r
}

// cancelRevealLocked releases the live reveal, if any, completing its message
// immediately so no partial text is left behind. Callers must hold m.mu.
func (m *Manager) cancelRevealLocked() {
	r := m.reveal
	if r == nil {
		return
	}
	m.reveal = nil
	if r.gen == m.generation && r.msgIndex < len(m.messages) {
		m.messages[r.msgIndex] = r.final
	}
	close(r.cancel)
}

func (m *Manager) runReveal(r *reveal) {
	defer close(r.done)
	defer close(r.frames)

	ticker := time.NewTicker(m.revealInterval)
	defer ticker.Stop()

	shown := 0
	for {
		select {
		case <-r.cancel:
			return // the canceller already completed the message
		case <-ticker.C:
			shown += m.revealStep
			if shown >= len(r.full) {
				m.finishReveal(r)
				return
			}
			prefix := string(r.full[:shown])
			if !m.mirrorFrame(r, prefix) {
				return
			}
			// Frames are cosmetic; drop one rather than stall the timer
			// on a slow consumer.
			select {
			case r.frames <- prefix:
			default:
			}
		}
	}
}

// mirrorFrame writes the current prefix into the in-progress message. It
// reports false once the reveal has been superseded.
func (m *Manager) mirrorFrame(r *reveal, prefix string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reveal != r {
		return false
	}
	m.messages[r.msgIndex].Text = prefix
	return true
}

func (m *Manager) finishReveal(r *reveal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reveal != r {
		return
	}
	m.reveal = nil
	m.messages[r.msgIndex] = r.final
	select {
	case r.frames <- r.final.Text:
	default:
	}
}
