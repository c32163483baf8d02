package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/repositories"
)

const (
	chatMaxMessageLength = 2000
	chatMaxHistoryTurns  = 20
	chatCatalogSlice     = 25
)

var (
	// ErrChatInvalidInput indicates the chat message failed validation.
	ErrChatInvalidInput = errors.New("chat: invalid input")
	// ErrChatUnavailable indicates the assistant backend is not configured or unreachable.
	ErrChatUnavailable = errors.New("chat: unavailable")
)

// chatCompleter is the slice of the OpenAI client the service needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatServiceDeps bundles collaborators for the shopping assistant.
type ChatServiceDeps struct {
	Completer chatCompleter
	Products  repositories.ProductRepository
	Model     string
	Sanitizer func(string) string
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type chatService struct {
	completer chatCompleter
	products  repositories.ProductRepository
	model     string
	sanitize  func(string) string
	logger    func(context.Context, string, map[string]any)
}

// NewChatService constructs a ChatService. A nil Completer yields a service
// that answers every request with ErrChatUnavailable, which keeps the rest of
// the API functional when no assistant key is configured.
func NewChatService(deps ChatServiceDeps) (ChatService, error) {
	if deps.Products == nil {
		return nil, errors.New("chat service: product repository is required")
	}

	model := strings.TrimSpace(deps.Model)
	if model == "" {
		model = openai.GPT4oMini
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = sanitizeReviewText
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &chatService{
		completer: deps.Completer,
		products:  deps.Products,
		model:     model,
		sanitize:  sanitize,
		logger:    logger,
	}, nil
}

// Reply answers a shopper message grounded on the live catalog.
func (s *chatService) Reply(ctx context.Context, cmd ChatCommand) (ChatReply, error) {
	if s.completer == nil {
		return ChatReply{}, ErrChatUnavailable
	}

	message := s.sanitize(cmd.Message)
	if message == "" {
		return ChatReply{}, fmt.Errorf("%w: message is required", ErrChatInvalidInput)
	}
	if utf8.RuneCountInString(message) > chatMaxMessageLength {
		return ChatReply{}, fmt.Errorf("%w: message exceeds %d characters", ErrChatInvalidInput, chatMaxMessageLength)
	}

	messages := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: s.systemPrompt(ctx),
	}}

	history := cmd.History
	if len(history) > chatMaxHistoryTurns {
		history = history[len(history)-chatMaxHistoryTurns:]
	}
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if strings.EqualFold(strings.TrimSpace(turn.Role), "assistant") {
			role = openai.ChatMessageRoleAssistant
		}
		content := s.sanitize(turn.Content)
		if content == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	resp, err := s.completer.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: messages,
	})
	if err != nil {
		s.logger(ctx, "chat.completion_failed", map[string]any{"error": err.Error()})
		return ChatReply{}, ErrChatUnavailable
	}
	if len(resp.Choices) == 0 {
		return ChatReply{}, ErrChatUnavailable
	}

	return ChatReply{Reply: strings.TrimSpace(resp.Choices[0].Message.Content)}, nil
}

// systemPrompt grounds the assistant on a slice of the active catalog. A
// catalog read failure degrades to a prompt without product context rather
// than failing the chat.
func (s *chatService) systemPrompt(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("You are the Velora shopping assistant for an Indian fashion retail store. ")
	b.WriteString("Help shoppers find products, sizes, and styles. ")
	b.WriteString("Only recommend products from the catalog below. Prices are in Indian rupees. ")
	b.WriteString("If you do not know the answer, say so and suggest contacting support.")

	page, err := s.products.List(ctx, repositories.ProductListFilter{
		OnlyActive: true,
		Pagination: domain.Pagination{PageSize: chatCatalogSlice},
	})
	if err != nil {
		s.logger(ctx, "chat.catalog_load_failed", map[string]any{"error": err.Error()})
		return b.String()
	}
	if len(page.Items) == 0 {
		return b.String()
	}

	b.WriteString("\n\nCatalog:\n")
	for _, product := range page.Items {
		fmt.Fprintf(&b, "- %s (₹%d.%02d", product.Name, product.Price/100, product.Price%100)
		if product.Stock <= 0 {
			b.WriteString(", out of stock")
		}
		b.WriteString(")")
		if desc := strings.TrimSpace(product.Description); desc != "" {
			if utf8.RuneCountInString(desc) > 120 {
				desc = string([]rune(desc)[:120]) + "..."
			}
			b.WriteString(": " + desc)
		}
		b.WriteString("\n")
	}
	return b.String()
}
