package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/efreitasn/papertrader/internal/domain"
	"github.com/efreitasn/papertrader/internal/llm"
	"github.com/efreitasn/papertrader/internal/telemetry"
)

// Chat request bounds.
const (
	MaxChatMessages      = 50
	MaxChatMessageLength = 8000
)

const assistantSystemPrompt = "You are a trading assistant inside a cryptocurrency paper-trading app. " +
	"Balances and trades are simulated. Answer concisely and never present output as financial advice."

// notConfiguredReply is returned in place of a completion when the selected
// provider has no API key.
const notConfiguredReply = "The AI assistant is not configured for provider %q. " +
	"Add an API key for it to enable chat."

// ChatModel sends chat completions to a named provider.
type ChatModel interface {
	Chat(ctx context.Context, provider, model string, messages []llm.Message) (*llm.Completion, error)
	Providers() []llm.ProviderInfo
}

// ChatRequest represents the input for an assistant chat. Provider and
// Model fall back to the user's settings, then the configured default.
type ChatRequest struct {
	UserID    string
	Provider  string
	Model     string
	AccountID string
	Messages  []llm.Message
}

// ChatResult is the assistant reply. Configured is false when the provider
// has no credentials and Message holds a placeholder.
type ChatResult struct {
	Provider   string
	Model      string
	Message    llm.Message
	Configured bool
	Usage      llm.Usage
}

// AssistantService forwards user prompts to the selected LLM provider.
type AssistantService struct {
	model           ChatModel
	settings        *SettingsService
	accounts        *AccountService
	defaultProvider string
	metrics         *telemetry.Metrics
	logger          *slog.Logger
}

// NewAssistantService creates a new AssistantService.
func NewAssistantService(
	model ChatModel,
	settings *SettingsService,
	accounts *AccountService,
	defaultProvider string,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *AssistantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssistantService{
		model:           model,
		settings:        settings,
		accounts:        accounts,
		defaultProvider: defaultProvider,
		metrics:         metrics,
		logger:          logger.With("component", "assistant"),
	}
}

// Providers lists the chat providers with their configured flag.
func (s *AssistantService) Providers() []llm.ProviderInfo {
	return s.model.Providers()
}

// Chat validates the conversation, prepends the system prompt and the
// optional account context, and forwards it to the resolved provider.
func (s *AssistantService) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if err := validateMessages(req.Messages); err != nil {
		return nil, err
	}

	provider, model := strings.TrimSpace(req.Provider), strings.TrimSpace(req.Model)
	if provider == "" || model == "" {
		st, err := s.settings.Get(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		if provider == "" {
			provider = st.AIProvider
			if model == "" {
				model = st.AIModel
			}
		}
	}
	if provider == "" {
		provider = s.defaultProvider
	}
	if len(model) > domain.MaxAIModelLength {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("model must be at most %d characters", domain.MaxAIModelLength),
		}
	}

	messages := make([]llm.Message, 0, len(req.Messages)+2)
	messages = append(messages, llm.Message{Role: "system", Content: assistantSystemPrompt})
	if req.AccountID != "" {
		p, err := s.accounts.Portfolio(ctx, req.UserID, req.AccountID)
		if err != nil {
			return nil, err
		}
		messages = append(messages, llm.Message{Role: "system", Content: p.Summary()})
	}
	messages = append(messages, req.Messages...)

	completion, err := s.model.Chat(ctx, provider, model, messages)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		s.metrics.RecordAIRequest(ctx, provider, "not_configured")
		s.logger.Warn("chat provider not configured", "provider", provider)
		return &ChatResult{
			Provider: provider,
			Model:    model,
			Message:  llm.Message{Role: "assistant", Content: fmt.Sprintf(notConfiguredReply, provider)},
		}, nil
	case errors.Is(err, domain.ErrUnknownProvider):
		return nil, &domain.ValidationError{Message: fmt.Sprintf("unknown ai provider: %s", provider)}
	case err != nil:
		s.metrics.RecordAIRequest(ctx, provider, "error")
		s.logger.Error("chat request failed", "provider", provider, "error", err)
		return nil, err
	}

	s.metrics.RecordAIRequest(ctx, provider, "ok")
	return &ChatResult{
		Provider:   completion.Provider,
		Model:      completion.Model,
		Message:    llm.Message{Role: "assistant", Content: completion.Content},
		Configured: true,
		Usage:      completion.Usage,
	}, nil
}

func validateMessages(messages []llm.Message) error {
	if len(messages) == 0 {
		return &domain.ValidationError{Message: "messages must be a non-empty array"}
	}
	if len(messages) > MaxChatMessages {
		return &domain.ValidationError{
			Message: fmt.Sprintf("messages must contain at most %d entries", MaxChatMessages),
		}
	}
	for i, m := range messages {
		if m.Role != "user" && m.Role != "assistant" {
			return &domain.ValidationError{
				Message: fmt.Sprintf("messages[%d].role must be 'user' or 'assistant'", i),
			}
		}
		n := utf8.RuneCountInString(m.Content)
		if strings.TrimSpace(m.Content) == "" || n > MaxChatMessageLength {
			return &domain.ValidationError{
				Message: fmt.Sprintf("messages[%d].content must be between 1 and %d characters", i, MaxChatMessageLength),
			}
		}
	}
	if messages[len(messages)-1].Role != "user" {
		return &domain.ValidationError{Message: "the last message must have role 'user'"}
	}
	return nil
}
