// Package voice drives a single voice-assistant session against a
// LiveKit-compatible media platform: fetch a grant, join the room, publish
// the microphone and play remote audio.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"smartcrop/api/internal/roomtoken"
)

type State int

const (
	Idle State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	DefaultRoom    = roomtoken.DefaultRoom
	IdentityPrefix = "farmer-"
	msgConnectFail = "Could not connect to the voice assistant. Please try again."
	msgMicDenied   = "Microphone access is required for the voice assistant."
	msgConnLost    = "Connection to the voice assistant was lost."
)

var (
	ErrSessionBusy  = errors.New("voice session already active")
	ErrNotConnected = errors.New("voice session not connected")
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Track is a remote media track.
type Track interface {
	SID() string
	Kind() TrackKind
}

// LocalTrack is a captured track owned by this client.
type LocalTrack interface {
	Stop()
}

// RoomHandlers are registered as part of Platform.Connect so no event that
// fires during the join is missed.
type RoomHandlers struct {
	TrackSubscribed   func(Track)
	TrackUnsubscribed func(Track)
	Disconnected      func(err error)
}

type Room interface {
	PublishTrack(ctx context.Context, track LocalTrack) error
	Disconnect() error
}

type Platform interface {
	Connect(ctx context.Context, url, token string, handlers RoomHandlers) (Room, error)
}

type Microphone interface {
	Acquire(ctx context.Context) (LocalTrack, error)
}

// Sink plays remote audio.
type Sink interface {
	Attach(Track)
	Detach(Track)
}

// Notifier surfaces failures to the person using the assistant.
type Notifier interface {
	Notify(message string, err error)
}

type TokenSource interface {
	Fetch(ctx context.Context, room, identity string) (string, error)
}

type Options struct {
	URL            string
	Room           string
	IdentityPrefix string
	Logger         zerolog.Logger
}

type Session struct {
	tokens   TokenSource
	platform Platform
	mic      Microphone
	sink     Sink
	notifier Notifier
	opts     Options
	log      zerolog.Logger

	mu       sync.Mutex
	state    State
	gen      uint64
	room     Room
	local    LocalTrack
	identity string
}

func NewSession(tokens TokenSource, platform Platform, mic Microphone, sink Sink, notifier Notifier, opts Options) *Session {
	if opts.Room == "" {
		opts.Room = DefaultRoom
	}
	if opts.IdentityPrefix == "" {
		opts.IdentityPrefix = IdentityPrefix
	}
	return &Session{
		tokens:   tokens,
		platform: platform,
		mic:      mic,
		sink:     sink,
		notifier: notifier,
		opts:     opts,
		log:      opts.Logger,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the identity of the current or last session attempt.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Connect joins the room and publishes the microphone. Any failure notifies
// and leaves the session Idle.
func (s *Session) Connect(ctx context.Context) error {
	identity, err := roomtoken.RandomIdentity(s.opts.IdentityPrefix)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.state = Connecting
	s.gen++
	gen := s.gen
	s.identity = identity
	s.mu.Unlock()

	s.log.Debug().Str("identity", identity).Str("room", s.opts.Room).Msg("voice connecting")

	token, err := s.tokens.Fetch(ctx, s.opts.Room, identity)
	if err != nil {
		return s.fail(gen, nil, nil, msgConnectFail, fmt.Errorf("fetch token: %w", err))
	}

	room, err := s.platform.Connect(ctx, s.opts.URL, token, s.handlers(gen))
	if err != nil {
		return s.fail(gen, nil, nil, msgConnectFail, fmt.Errorf("connect: %w", err))
	}

	local, err := s.mic.Acquire(ctx)
	if err != nil {
		return s.fail(gen, room, nil, msgMicDenied, fmt.Errorf("acquire microphone: %w", err))
	}

	if err := room.PublishTrack(ctx, local); err != nil {
		return s.fail(gen, room, local, msgConnectFail, fmt.Errorf("publish microphone: %w", err))
	}

	s.mu.Lock()
	if s.gen != gen || s.state != Connecting {
		s.mu.Unlock()
		local.Stop()
		_ = room.Disconnect()
		return s.fail(gen, nil, nil, msgConnLost, ErrNotConnected)
	}
	s.state = Connected
	s.room = room
	s.local = local
	s.mu.Unlock()

	s.log.Info().Str("identity", identity).Str("room", s.opts.Room).Msg("voice connected")
	return nil
}

// Disconnect leaves the room and releases the microphone.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	room, local := s.release()
	s.mu.Unlock()

	local.Stop()
	if err := room.Disconnect(); err != nil {
		s.log.Warn().Err(err).Msg("voice disconnect")
	}
	return nil
}

func (s *Session) handlers(gen uint64) RoomHandlers {
	return RoomHandlers{
		TrackSubscribed: func(t Track) {
			if t.Kind() != TrackAudio || !s.current(gen) {
				return
			}
			s.sink.Attach(t)
		},
		TrackUnsubscribed: func(t Track) {
			if t.Kind() != TrackAudio {
				return
			}
			s.sink.Detach(t)
		},
		Disconnected: func(err error) {
			s.dropped(gen, err)
		},
	}
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.state != Idle
}

// dropped handles a transport loss reported by the platform. Explicit
// disconnects have already moved the session to Idle and are ignored here.
// A drop while still connecting is reported by Connect itself.
func (s *Session) dropped(gen uint64, err error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if s.state == Connecting {
		s.state = Idle
		s.gen++
		s.mu.Unlock()
		return
	}
	if s.state != Connected {
		s.mu.Unlock()
		return
	}
	_, local := s.release()
	s.mu.Unlock()

	local.Stop()
	s.log.Warn().Err(err).Msg("voice connection lost")
	s.notifier.Notify(msgConnLost, err)
}

func (s *Session) fail(gen uint64, room Room, local LocalTrack, message string, err error) error {
	if local != nil {
		local.Stop()
	}
	if room != nil {
		_ = room.Disconnect()
	}

	s.mu.Lock()
	if s.gen == gen {
		s.state = Idle
		s.room = nil
		s.local = nil
	}
	s.mu.Unlock()

	s.log.Warn().Err(err).Msg("voice connect failed")
	s.notifier.Notify(message, err)
	return err
}

// release must be called with mu held.
func (s *Session) release() (Room, LocalTrack) {
	room, local := s.room, s.local
	s.state = Idle
	s.room = nil
	s.local = nil
	s.gen++
	return room, local
}
