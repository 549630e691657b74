package session

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/aurelay/pkg/realtime"
)

// summarisationPrompt asks the model to condense a finished voice session.
const summarisationPrompt = `Summarise the following voice conversation between a user and an assistant.
Preserve: the user's requests, answers given, tool results mentioned, and any follow-ups promised.
Be concise; a few sentences at most.`

// summaryTemperature keeps summaries factual rather than creative.
const summaryTemperature = 0.3

// Summariser condenses a finished session's transcripts into a short text.
type Summariser interface {
	Summarise(ctx context.Context, transcripts []realtime.Transcript) (string, error)
}

// LLMSummariser implements Summariser on top of any-llm-go, so the summary
// model can live on a different provider than the realtime session itself.
type LLMSummariser struct {
	backend anyllmlib.Provider
	model   string
}

var _ Summariser = (*LLMSummariser)(nil)

// NewLLMSummariser creates a summariser for the named provider and model.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "mistral", "groq". Without an API key option the backend falls back to
// its usual environment variable (OPENAI_API_KEY and friends).
func NewLLMSummariser(providerName, model string, opts ...anyllmlib.Option) (*LLMSummariser, error) {
	if model == "" {
		return nil, fmt.Errorf("summariser: model must not be empty")
	}

	var (
		backend anyllmlib.Provider
		err     error
	)
	switch strings.ToLower(providerName) {
	case "openai":
		backend, err = anyllmoai.New(opts...)
	case "anthropic":
		backend, err = anthropic.New(opts...)
	case "gemini":
		backend, err = gemini.New(opts...)
	case "ollama":
		backend, err = ollama.New(opts...)
	case "mistral":
		backend, err = mistral.New(opts...)
	case "groq":
		backend, err = groq.New(opts...)
	default:
		return nil, fmt.Errorf("summariser: unsupported provider %q; supported: openai, anthropic, gemini, ollama, mistral, groq", providerName)
	}
	if err != nil {
		return nil, fmt.Errorf("summariser: create %q backend: %w", providerName, err)
	}

	return &LLMSummariser{backend: backend, model: model}, nil
}

// Summarise formats the transcripts into one user message and asks the
// model for a condensed summary. Empty input yields an empty summary.
func (s *LLMSummariser) Summarise(ctx context.Context, transcripts []realtime.Transcript) (string, error) {
	if len(transcripts) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, t := range transcripts {
		fmt.Fprintf(&sb, "[%s]: %s\n", t.Role, t.Text)
	}

	temp := summaryTemperature
	resp, err := s.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model: s.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: summarisationPrompt},
			{Role: anyllmlib.RoleUser, Content: sb.String()},
		},
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("summariser: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summariser: empty choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.ContentString()), nil
}
