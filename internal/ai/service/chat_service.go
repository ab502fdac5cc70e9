package service

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	RoleUser  = "user"
	RoleModel = "model"

	defaultTimeout    = 60 * time.Second
	defaultMaxHistory = 50
)

type Part struct {
	Text string `json:"text"`
}

// Message is one turn of the conversation in Gemini's content shape.
type Message struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Generator produces the assistant reply for a conversation.
type Generator interface {
	Generate(ctx context.Context, system string, history []Message) (string, error)
}

type ChatInput struct {
	UserID      int64
	Messages    []Message
	Title       string
	Description string
	TestCases   json.RawMessage
	StartCode   json.RawMessage
}

type ChatReply struct {
	Message string `json:"message"`
}

type Config struct {
	Timeout    time.Duration
	MaxHistory int
}

// ChatService is the DSA tutor.
type ChatService struct {
	generator Generator
	config    Config
}

func NewChatService(generator Generator, cfg Config) *ChatService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	return &ChatService{generator: generator, config: cfg}
}

func (s *ChatService) Chat(ctx context.Context, input ChatInput) (*ChatReply, error) {
	history, err := normalizeHistory(input.Messages)
	if err != nil {
		return nil, err
	}
	if s.generator == nil {
		return nil, pkgerrors.New(pkgerrors.AssistantUnavailable).WithMessage("assistant is not configured")
	}
	// Older turns are dropped first.
	if len(history) > s.config.MaxHistory {
		history = history[len(history)-s.config.MaxHistory:]
	}

	system := SystemInstruction(ProblemContext{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		TestCases:   rawText(input.TestCases),
		StartCode:   rawText(input.StartCode),
	})

	callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()
	start := time.Now()
	text, err := s.generator.Generate(callCtx, system, history)
	if err != nil {
		logger.Warn(ctx, "assistant generate failed", zap.Int64("user_id", input.UserID), zap.Error(err))
		return nil, pkgerrors.Wrapf(err, pkgerrors.AssistantUnavailable, "assistant request failed")
	}
	logger.Debug(ctx, "assistant replied",
		zap.Int64("user_id", input.UserID),
		zap.Int("turns", len(history)),
		zap.Duration("latency", time.Since(start)),
	)
	return &ChatReply{Message: text}, nil
}

func normalizeHistory(messages []Message) ([]Message, error) {
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		switch role {
		case "", RoleUser:
			role = RoleUser
		case RoleModel, "assistant":
			role = RoleModel
		default:
			return nil, pkgerrors.ValidationError("messages", "unknown role "+msg.Role)
		}
		parts := make([]Part, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			if strings.TrimSpace(part.Text) != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, Message{Role: role, Parts: parts})
	}
	if len(out) == 0 {
		return nil, pkgerrors.New(pkgerrors.InvalidParams).WithMessage("Messages are required")
	}
	return out, nil
}

// rawText renders a free-form JSON field for the prompt. Strings are unquoted.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}
