package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/marinet/internal/kv"
	"github.com/MarcoPoloResearchLab/marinet/internal/metrics"
	"github.com/MarcoPoloResearchLab/marinet/internal/serviceerr"
	"go.uber.org/zap"
)

// Storage keys of the tutor state.
const (
	KeyHistory      = "ai_chat_messages"
	KeyInstructions = "gemini_custom_instructions"
)

const (
	welcomeText = "# Welcome to MariNet AI Tutor! 👋\n\nI'm your AI tutor powered by Google Gemini. I can help you with:\n\n" +
		"- Answering academic questions\n- Explaining concepts\n- Solving problems\n- Providing study tips\n\nHow can I assist you today?"
	clearedText         = "# Chat Cleared\n\nI'm your AI tutor powered by Google Gemini. How can I help you today?"
	instructionsAckText = "✓ Custom instructions updated. I'll follow these guidelines in our conversation."
	preambleAckText     = "I'll follow these instructions in our conversation."
	preamblePrefix      = "Custom instructions: "
)

var (
	// ErrEmptyMessage indicates Send was called without text.
	ErrEmptyMessage = errors.New("tutor: message is required")
	// ErrMissingCompleter indicates the service was built without a completer.
	ErrMissingCompleter = errors.New("tutor: completer required")

	errMissingStore = errors.New("tutor: key-value store required")
)

const (
	opSend         = "tutor.send"
	opHistory      = "tutor.history"
	opInstructions = "tutor.instructions"
	opClear        = "tutor.clear"
)

// ServiceConfig describes the dependencies of the tutor service.
type ServiceConfig struct {
	Store     kv.Store
	Completer Completer
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Service keeps the persisted tutor conversation.
type Service struct {
	store     kv.Store
	completer Completer
	clock     func() time.Time
	logger    *zap.Logger

	mu sync.Mutex
}

// NewService constructs the tutor service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, serviceerr.New("tutor.service.new", "missing_store", errMissingStore)
	}
	if cfg.Completer == nil {
		return nil, serviceerr.New("tutor.service.new", "missing_completer", ErrMissingCompleter)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: cfg.Store, completer: cfg.Completer, clock: clock, logger: logger}, nil
}

// History returns the conversation. An empty conversation starts with the welcome turn.
func (s *Service) History(ctx context.Context) ([]ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadHistory(ctx, opHistory)
}

// Send appends text as a user turn, asks the completer for a reply and appends it. Completer
// failures become a model turn starting with "Error: " and are not returned.
func (s *Service) Send(ctx context.Context, text string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.loadHistory(ctx, opSend)
	if err != nil {
		return ChatMessage{}, err
	}
	history = append(history, s.turn(RoleUser, text))

	instructions, err := s.instructions(ctx)
	if err != nil {
		return ChatMessage{}, err
	}

	reply, err := s.completer.Complete(ctx, withPreamble(instructions, history))
	if err != nil {
		metrics.TutorCompletions.WithLabelValues(s.completer.Name(), "error").Inc()
		s.logger.Warn("tutor completion failed",
			zap.String("completer", s.completer.Name()),
			zap.Error(err))
		reply = s.turn(RoleModel, fmt.Sprintf("Error: %s", err.Error()))
	} else {
		metrics.TutorCompletions.WithLabelValues(s.completer.Name(), "ok").Inc()
		reply.Role = RoleModel
		if reply.Timestamp.IsZero() {
			reply.Timestamp = s.clock().UTC()
		}
	}

	history = append(history, reply)
	if err := s.saveHistory(ctx, opSend, history); err != nil {
		return ChatMessage{}, err
	}
	return reply, nil
}

// Instructions returns the saved custom instructions.
func (s *Service) Instructions(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instructions(ctx)
}

// SetInstructions saves custom instructions and appends an acknowledgement turn.
func (s *Service) SetInstructions(ctx context.Context, instructions string) (ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Set(ctx, KeyInstructions, strings.TrimSpace(instructions)); err != nil {
		s.logError(opInstructions, "instructions_write_failed", err)
		return ChatMessage{}, serviceerr.New(opInstructions, "instructions_write_failed", err)
	}
	history, err := s.loadHistory(ctx, opInstructions)
	if err != nil {
		return ChatMessage{}, err
	}
	ack := s.turn(RoleModel, instructionsAckText)
	if err := s.saveHistory(ctx, opInstructions, append(history, ack)); err != nil {
		return ChatMessage{}, err
	}
	return ack, nil
}

// Clear resets the conversation to a single greeting turn. Instructions are kept.
func (s *Service) Clear(ctx context.Context) ([]ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := []ChatMessage{s.turn(RoleModel, clearedText)}
	if err := s.saveHistory(ctx, opClear, history); err != nil {
		return nil, err
	}
	return history, nil
}

// ValidateKey reports whether the completer accepts its credentials.
func (s *Service) ValidateKey(ctx context.Context) error {
	validator, ok := s.completer.(Validator)
	if !ok {
		return nil
	}
	return validator.Validate(ctx)
}

func (s *Service) loadHistory(ctx context.Context, operation string) ([]ChatMessage, error) {
	raw, found, err := s.store.Get(ctx, KeyHistory)
	if err != nil {
		s.logError(operation, "history_read_failed", err)
		return nil, serviceerr.New(operation, "history_read_failed", err)
	}
	var history []ChatMessage
	if found && strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			s.logError(operation, "history_decode_failed", err)
			return nil, serviceerr.New(operation, "history_decode_failed", err)
		}
	}
	if len(history) == 0 {
		history = []ChatMessage{s.turn(RoleModel, welcomeText)}
	}
	return history, nil
}

func (s *Service) saveHistory(ctx context.Context, operation string, history []ChatMessage) error {
	encoded, err := json.Marshal(history)
	if err != nil {
		return serviceerr.New(operation, "history_encode_failed", err)
	}
	if err := s.store.Set(ctx, KeyHistory, string(encoded)); err != nil {
		s.logError(operation, "history_write_failed", err)
		return serviceerr.New(operation, "history_write_failed", err)
	}
	return nil
}

func (s *Service) instructions(ctx context.Context) (string, error) {
	raw, _, err := s.store.Get(ctx, KeyInstructions)
	if err != nil {
		s.logError(opInstructions, "instructions_read_failed", err)
		return "", serviceerr.New(opInstructions, "instructions_read_failed", err)
	}
	return strings.TrimSpace(raw), nil
}

func (s *Service) turn(role Role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content, Timestamp: s.clock().UTC()}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	serviceerr.Log(s.logger, "tutor service error", operation, reason, err, fields...)
}

// withPreamble prefixes the conversation with the custom instructions exchange when set.
func withPreamble(instructions string, history []ChatMessage) []ChatMessage {
	if instructions == "" {
		return history
	}
	messages := make([]ChatMessage, 0, len(history)+2)
	messages = append(messages,
		ChatMessage{Role: RoleModel, Content: preambleAckText},
		ChatMessage{Role: RoleUser, Content: preamblePrefix + instructions},
	)
	return append(messages, history...)
}
