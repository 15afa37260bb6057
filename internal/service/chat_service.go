package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"smartcrop/api/internal/apperr"
	"smartcrop/api/internal/upstream"
)

const chatUnavailable = "There was an error contacting the assistant. Please try again later."

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type AnswerStore interface {
	Get(ctx context.Context, prompt string) (string, bool, error)
	Set(ctx context.Context, prompt, reply string) error
}

type ChatService struct {
	generator Generator
	answers   AnswerStore
	log       zerolog.Logger
}

// NewChatService wires the assistant. answers may be nil to disable caching.
func NewChatService(generator Generator, answers AnswerStore, log zerolog.Logger) *ChatService {
	return &ChatService{generator: generator, answers: answers, log: log}
}

func (s *ChatService) Ask(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", apperr.Validation("message", "Message is required")
	}

	if s.answers != nil {
		reply, ok, err := s.answers.Get(ctx, message)
		if err != nil {
			s.log.Warn().Err(err).Msg("chat cache read failed")
		} else if ok {
			return reply, nil
		}
	}

	reply, err := s.generator.Generate(ctx, message)
	if err != nil {
		return "", &apperr.UpstreamError{Service: "generative", Public: chatUnavailable, Err: err}
	}

	if s.answers != nil && reply != upstream.FallbackReply {
		if err := s.answers.Set(ctx, message, reply); err != nil {
			s.log.Warn().Err(err).Msg("chat cache write failed")
		}
	}
	return reply, nil
}
