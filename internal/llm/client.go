// Package llm wraps the hosted text-generation endpoint behind a small client
// that maps transcripts to the remote role vocabulary and classifies failures.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"aichat/internal/chat"
)

const (
	defaultModelName = "gemini-2.0-flash"

	// fallbackText is returned when the response lacks the expected payload
	// path. That is a handled case, not an error.
	fallbackText = "Sorry, I could not understand that. Please try rephrasing your question."

	roleUser  = "user"
	roleModel = "model"
)

var errEmptyTranscript = errors.New("transcript is empty")

// GenerationSettings are the sampling parameters applied to every request.
type GenerationSettings struct {
	Temperature     float32
	TopK            int32
	TopP            float32
	MaxOutputTokens int32
}

func DefaultGenerationSettings() GenerationSettings {
	return GenerationSettings{
		Temperature:     0.7,
		TopK:            40,
		TopP:            0.95,
		MaxOutputTokens: 2048,
	}
}

type Client struct {
	client   *genai.Client
	model    string
	settings GenerationSettings
	log      zerolog.Logger
}

func NewClient(ctx context.Context, apiKey, model string, settings GenerationSettings, log zerolog.Logger) (*Client, error) {
	if model == "" {
		model = defaultModelName
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Client{client: client, model: model, settings: settings, log: log}, nil
}

func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Generate sends the full transcript to the generation endpoint and returns
// the reply text. Local senders map to the remote vocabulary: "user" stays
// "user", "ai" becomes "model". A response without candidates yields the
// fallback text and no error.
func (c *Client) Generate(ctx context.Context, transcript []chat.Message) (string, error) {
	contents := toContents(transcript)
	if len(contents) == 0 {
		return "", errEmptyTranscript
	}
	last := contents[len(contents)-1]
	if last.Role != roleUser {
		return "", fmt.Errorf("last transcript entry must come from the user, got %q", last.Role)
	}

	model := c.client.GenerativeModel(c.model)
	model.GenerationConfig = c.settings.generationConfig()

	session := model.StartChat()
	session.History = contents[:len(contents)-1]

	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", classify(err)
	}
	return extractText(resp, c.log), nil
}

func (s GenerationSettings) generationConfig() genai.GenerationConfig {
	temperature := s.Temperature
	topK := s.TopK
	topP := s.TopP
	maxTokens := s.MaxOutputTokens
	return genai.GenerationConfig{
		Temperature:     &temperature,
		TopK:            &topK,
		TopP:            &topP,
		MaxOutputTokens: &maxTokens,
	}
}

func toContents(transcript []chat.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(transcript))
	for _, msg := range transcript {
		role := roleModel
		if msg.Sender == chat.SenderUser {
			role = roleUser
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Text)},
		})
	}
	return contents
}

// extractText pulls the generated text out of the nested response payload.
// Any missing link in the path degrades to the fallback apology.
func extractText(resp *genai.GenerateContentResponse, log zerolog.Logger) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		log.Warn().Msg("generation response had no usable candidates")
		return fallbackText
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		} else {
			log.Debug().Str("part_type", fmt.Sprintf("%T", part)).Msg("skipping non-text response part")
		}
	}
	if b.Len() == 0 {
		return fallbackText
	}
	return b.String()
}
