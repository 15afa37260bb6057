package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartcrop/api/internal/apperr"
	"smartcrop/api/internal/upstream"
)

func TestAskUsesCache(t *testing.T) {
	gen := &stubGenerator{reply: "Irrigate at dawn."}
	answers := &memAnswers{entries: map[string]string{}}
	svc := NewChatService(gen, answers, zerolog.Nop())

	for i := 0; i < 2; i++ {
		reply, err := svc.Ask(context.Background(), "When should I water?")
		require.NoError(t, err)
		assert.Equal(t, "Irrigate at dawn.", reply)
	}
	assert.Equal(t, 1, gen.calls)
}

func TestAskFallbackNotCached(t *testing.T) {
	gen := &stubGenerator{reply: upstream.FallbackReply}
	answers := &memAnswers{entries: map[string]string{}}
	svc := NewChatService(gen, answers, zerolog.Nop())

	reply, err := svc.Ask(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, upstream.FallbackReply, reply)
	assert.Empty(t, answers.entries)
}

func TestAskCacheErrorFallsThrough(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	svc := NewChatService(gen, &memAnswers{entries: map[string]string{}, getErr: errBoom}, zerolog.Nop())

	reply, err := svc.Ask(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}

func TestAskErrors(t *testing.T) {
	svc := NewChatService(&stubGenerator{err: errBoom}, nil, zerolog.Nop())

	_, err := svc.Ask(context.Background(), "   ")
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Ask(context.Background(), "hello")
	status, msg := apperr.Status(err)
	assert.Equal(t, 502, status)
	assert.Equal(t, "There was an error contacting the assistant. Please try again later.", msg)
	assert.ErrorIs(t, err, errBoom)
}
