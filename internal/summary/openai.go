package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"patient-followup/internal/transcript"

	"github.com/sashabaranov/go-openai"
)

var (
	ErrNoChoices     = errors.New("summary: model returned no choices")
	ErrEmptyDialogue = errors.New("summary: no conversation to summarize")
)

const systemMessage = "You are a medical assistant analyzing patient call transcripts. Always respond with valid JSON."

const promptTemplate = `Analyze this hospital follow-up call and provide a structured summary in JSON format.

Conversation:
%s

Provide a JSON response with:
- sentiment: (positive/neutral/negative/concerned)
- key_points: (list of main topics discussed)
- health_concerns: (list of any health issues mentioned)
- follow_up_needed: (true/false)
- follow_up_reason: (if needed, brief reason)

Be concise and focus on medically relevant information.`

// OpenAIConfig configures the chat-completions summarizer.
type OpenAIConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint; empty uses the public API.
	BaseURL     string
	Model       string
	Temperature float32
}

// OpenAISummarizer asks a chat model for a JSON summary of the call.
type OpenAISummarizer struct {
	client      *openai.Client
	model       string
	temperature float32
	log         *slog.Logger
}

func NewOpenAISummarizer(cfg OpenAIConfig, log *slog.Logger) (*OpenAISummarizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("summary: api key is required")
	}
	if log == nil {
		log = slog.Default()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	temp := cfg.Temperature
	if temp <= 0 {
		temp = 0.3
	}
	return &OpenAISummarizer{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		temperature: temp,
		log:         log,
	}, nil
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, turns []transcript.Turn) (Summary, error) {
	dialogue := renderDialogue(turns)
	if dialogue == "" {
		return Summary{}, ErrEmptyDialogue
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(promptTemplate, dialogue)},
		},
		Temperature: s.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Summary{}, fmt.Errorf("summary: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Summary{}, ErrNoChoices
	}

	s.log.Debug("summary generated",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return parseSummary(resp.Choices[0].Message.Content)
}

// renderDialogue formats non-system turns as "ROLE: content" lines.
func renderDialogue(turns []transcript.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Role == transcript.RoleSystem {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.ToUpper(t.Role.String()))
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}

func parseSummary(content string) (Summary, error) {
	var out Summary
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		// Some models wrap JSON in a markdown fence despite the response format.
		if err := json.Unmarshal([]byte(extractJSON(content)), &out); err != nil {
			return Summary{}, fmt.Errorf("summary: parse response: %w", err)
		}
	}
	if out.Sentiment == "" {
		return Summary{}, errors.New("summary: response missing sentiment")
	}
	if out.KeyPoints == nil {
		out.KeyPoints = []string{}
	}
	if out.HealthConcerns == nil {
		out.HealthConcerns = []string{}
	}
	return out, nil
}

func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		return strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
