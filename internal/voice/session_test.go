package voice

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	err      error
	room     string
	identity string
}

func (f *fakeTokens) Fetch(_ context.Context, room, identity string) (string, error) {
	f.room, f.identity = room, identity
	return "grant", f.err
}

type fakeRoom struct {
	publishErr   error
	published    []LocalTrack
	disconnected int
}

func (r *fakeRoom) PublishTrack(_ context.Context, t LocalTrack) error {
	if r.publishErr != nil {
		return r.publishErr
	}
	r.published = append(r.published, t)
	return nil
}

func (r *fakeRoom) Disconnect() error {
	r.disconnected++
	return nil
}

type fakePlatform struct {
	room     *fakeRoom
	err      error
	handlers RoomHandlers
	url      string
	token    string

	// onConnect fires inside Connect, before it returns.
	onConnect func(RoomHandlers)
}

func (p *fakePlatform) Connect(_ context.Context, url, token string, h RoomHandlers) (Room, error) {
	p.url, p.token, p.handlers = url, token, h
	if p.onConnect != nil {
		p.onConnect(h)
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.room, nil
}

type fakeTrack struct {
	sid  string
	kind TrackKind
}

func (t fakeTrack) SID() string     { return t.sid }
func (t fakeTrack) Kind() TrackKind { return t.kind }

type fakeLocal struct{ stopped int }

func (l *fakeLocal) Stop() { l.stopped++ }

type fakeMic struct {
	track *fakeLocal
	err   error
}

func (m *fakeMic) Acquire(context.Context) (LocalTrack, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.track, nil
}

type fakeSink struct {
	mu       sync.Mutex
	attached map[string]bool
}

func (s *fakeSink) Attach(t Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached[t.SID()] = true
}

func (s *fakeSink) Detach(t Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attached, t.SID())
}

type fakeNotifier struct{ messages []string }

func (n *fakeNotifier) Notify(msg string, _ error) { n.messages = append(n.messages, msg) }

type fixture struct {
	session  *Session
	tokens   *fakeTokens
	platform *fakePlatform
	room     *fakeRoom
	mic      *fakeMic
	sink     *fakeSink
	notifier *fakeNotifier
}

func newFixture() *fixture {
	f := &fixture{
		tokens:   &fakeTokens{},
		room:     &fakeRoom{},
		mic:      &fakeMic{track: &fakeLocal{}},
		sink:     &fakeSink{attached: map[string]bool{}},
		notifier: &fakeNotifier{},
	}
	f.platform = &fakePlatform{room: f.room}
	f.session = NewSession(f.tokens, f.platform, f.mic, f.sink, f.notifier, Options{
		URL:    "ws://livekit.local",
		Logger: zerolog.Nop(),
	})
	return f
}

func TestConnectAndDisconnect(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.session.Connect(ctx))
	assert.Equal(t, Connected, f.session.State())
	assert.Equal(t, "farm-support-room", f.tokens.room)
	assert.Regexp(t, `^farmer-[0-9a-z]{6}$`, f.tokens.identity)
	assert.Equal(t, f.tokens.identity, f.session.Identity())
	assert.Equal(t, "ws://livekit.local", f.platform.url)
	assert.Equal(t, "grant", f.platform.token)
	require.Len(t, f.room.published, 1)

	assert.ErrorIs(t, f.session.Connect(ctx), ErrSessionBusy)

	require.NoError(t, f.session.Disconnect())
	assert.Equal(t, Idle, f.session.State())
	assert.Equal(t, 1, f.room.disconnected)
	assert.Equal(t, 1, f.mic.track.stopped)

	// Platform echo of the explicit disconnect is not a drop.
	f.platform.handlers.Disconnected(nil)
	assert.Empty(t, f.notifier.messages)

	assert.ErrorIs(t, f.session.Disconnect(), ErrNotConnected)
}

func TestRemoteAudioTracks(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.session.Connect(context.Background()))

	h := f.platform.handlers
	h.TrackSubscribed(fakeTrack{sid: "TR_audio", kind: TrackAudio})
	h.TrackSubscribed(fakeTrack{sid: "TR_video", kind: TrackVideo})
	assert.Equal(t, map[string]bool{"TR_audio": true}, f.sink.attached)

	h.TrackUnsubscribed(fakeTrack{sid: "TR_audio", kind: TrackAudio})
	assert.Empty(t, f.sink.attached)
}

func TestTrackDuringConnectIsAttached(t *testing.T) {
	f := newFixture()
	f.platform.onConnect = func(h RoomHandlers) {
		h.TrackSubscribed(fakeTrack{sid: "TR_agent", kind: TrackAudio})
	}

	require.NoError(t, f.session.Connect(context.Background()))
	assert.True(t, f.sink.attached["TR_agent"])
}

func TestConnectFailuresResetToIdle(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*fixture)
		message string
	}{
		{"token", func(f *fixture) { f.tokens.err = errors.New("500") }, msgConnectFail},
		{"connect", func(f *fixture) { f.platform.err = errors.New("dial") }, msgConnectFail},
		{"microphone", func(f *fixture) { f.mic.err = errors.New("permission denied") }, msgMicDenied},
		{"publish", func(f *fixture) { f.room.publishErr = errors.New("publish") }, msgConnectFail},
		{"drop while connecting", func(f *fixture) {
			f.platform.onConnect = func(h RoomHandlers) { h.Disconnected(errors.New("ice failed")) }
		}, msgConnLost},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			tc.mutate(f)

			require.Error(t, f.session.Connect(context.Background()))
			assert.Equal(t, Idle, f.session.State())
			assert.Equal(t, []string{tc.message}, f.notifier.messages)

			f.mic.err = nil
			f.tokens.err = nil
			f.platform.err = nil
			f.platform.onConnect = nil
			f.room.publishErr = nil
			assert.NoError(t, f.session.Connect(context.Background()), "retry after failure")
		})
	}
}

func TestConnectFailureReleasesResources(t *testing.T) {
	f := newFixture()
	f.room.publishErr = errors.New("publish")

	require.Error(t, f.session.Connect(context.Background()))
	assert.Equal(t, 1, f.mic.track.stopped)
	assert.Equal(t, 1, f.room.disconnected)
}

func TestDropWhileConnected(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.session.Connect(context.Background()))

	f.platform.handlers.Disconnected(errors.New("transport closed"))
	assert.Equal(t, Idle, f.session.State())
	assert.Equal(t, []string{msgConnLost}, f.notifier.messages)
	assert.Equal(t, 1, f.mic.track.stopped)

	// No automatic reconnect.
	assert.Equal(t, 0, f.room.disconnected)
	assert.Len(t, f.room.published, 1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
}

func TestTokenClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/token", r.URL.Path)
		assert.Equal(t, "farm-support-room", r.URL.Query().Get("room"))
		assert.Equal(t, "farmer-abc123", r.URL.Query().Get("user"))
		_, _ = io.WriteString(w, `{"token":"jwt"}`)
	}))
	defer srv.Close()

	token, err := NewTokenClient(srv.URL+"/", time.Second).Fetch(context.Background(), "farm-support-room", "farmer-abc123")
	require.NoError(t, err)
	assert.Equal(t, "jwt", token)
}

func TestTokenClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"Missing LiveKit API credentials on the server"}`)
	}))
	defer srv.Close()

	_, err := NewTokenClient(srv.URL, time.Second).Fetch(context.Background(), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing LiveKit API credentials")
}
