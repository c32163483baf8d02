package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	domain "github.com/velora-shop/api/internal/domain"
	"github.com/velora-shop/api/internal/repositories"
)

type stubChatCompleter struct {
	createChatCompletion func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func (s *stubChatCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if s.createChatCompletion == nil {
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Content: "Try the Linen Shirt."},
			}},
		}, nil
	}
	return s.createChatCompletion(ctx, req)
}

func newTestChatService(t *testing.T, deps ChatServiceDeps) ChatService {
	t.Helper()
	if deps.Products == nil {
		deps.Products = &stubProductRepository{}
	}
	svc, err := NewChatService(deps)
	if err != nil {
		t.Fatalf("new chat service: %v", err)
	}
	return svc
}

func TestChatReplyGroundsPromptOnCatalog(t *testing.T) {
	products := &stubProductRepository{
		list: func(context.Context, repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
			return domain.CursorPage[domain.Product]{
				Items: []domain.Product{
					{ID: "prod-1", Name: "Linen Shirt", Price: 249900, Stock: 3},
					{ID: "prod-2", Name: "Crepe Saree", Price: 549900, Stock: 0},
				},
			}, nil
		},
	}

	var captured openai.ChatCompletionRequest
	completer := &stubChatCompleter{
		createChatCompletion: func(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			captured = req
			return openai.ChatCompletionResponse{
				Choices: []openai.ChatCompletionChoice{{
					Message: openai.ChatCompletionMessage{Content: "  The Linen Shirt fits the bill.  "},
				}},
			}, nil
		},
	}

	svc := newTestChatService(t, ChatServiceDeps{Completer: completer, Products: products})
	reply, err := svc.Reply(context.Background(), ChatCommand{
		UserID:  "user-1",
		Message: "Something breathable for summer?",
		History: []ChatTurn{
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: "Hello! How can I help?"},
		},
	})
	if err != nil {
		t.Fatalf("chat reply: %v", err)
	}
	if reply.Reply != "The Linen Shirt fits the bill." {
		t.Fatalf("unexpected reply %q", reply.Reply)
	}

	if len(captured.Messages) != 4 {
		t.Fatalf("expected system + 2 history + user messages, got %d", len(captured.Messages))
	}
	system := captured.Messages[0]
	if system.Role != openai.ChatMessageRoleSystem {
		t.Fatalf("expected leading system message, got role %q", system.Role)
	}
	if !strings.Contains(system.Content, "Linen Shirt") {
		t.Fatalf("expected catalog in system prompt: %q", system.Content)
	}
	if !strings.Contains(system.Content, "out of stock") {
		t.Fatalf("expected stock note in system prompt: %q", system.Content)
	}
	if captured.Messages[2].Role != openai.ChatMessageRoleAssistant {
		t.Fatalf("expected assistant history role, got %q", captured.Messages[2].Role)
	}
}

func TestChatReplyWithoutCompleter(t *testing.T) {
	svc := newTestChatService(t, ChatServiceDeps{})
	if _, err := svc.Reply(context.Background(), ChatCommand{Message: "hello"}); !errors.Is(err, ErrChatUnavailable) {
		t.Fatalf("expected ErrChatUnavailable, got %v", err)
	}
}

func TestChatReplyRejectsEmptyMessage(t *testing.T) {
	svc := newTestChatService(t, ChatServiceDeps{Completer: &stubChatCompleter{}})
	if _, err := svc.Reply(context.Background(), ChatCommand{Message: "   \t  "}); !errors.Is(err, ErrChatInvalidInput) {
		t.Fatalf("expected ErrChatInvalidInput, got %v", err)
	}
}

func TestChatReplySurvivesCatalogFailure(t *testing.T) {
	products := &stubProductRepository{
		list: func(context.Context, repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
			return domain.CursorPage[domain.Product]{}, errors.New("firestore down")
		},
	}

	svc := newTestChatService(t, ChatServiceDeps{Completer: &stubChatCompleter{}, Products: products})
	reply, err := svc.Reply(context.Background(), ChatCommand{Message: "help me pick a gift"})
	if err != nil {
		t.Fatalf("expected chat to degrade without catalog, got %v", err)
	}
	if reply.Reply == "" {
		t.Fatalf("expected a reply")
	}
}
