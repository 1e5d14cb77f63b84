package chat

import (
	"time"

	"aichat/internal/markup"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Message is a single entry of the active transcript. Messages are immutable
// once appended, except for the in-progress AI message whose Text grows while
// the typing reveal runs.
type Message struct {
	Text      string           `json:"text"`
	Sender    Sender           `json:"sender"`
	IsError   bool             `json:"is_error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Segments  []markup.Segment `json:"segments,omitempty"`
}

func copyMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}
