package roomtoken

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartcrop/api/internal/apperr"
)

var generatedIdentity = regexp.MustCompile(`^user-[0-9a-z]{6}$`)

func TestIssueDefaults(t *testing.T) {
	issuer := NewIssuer("APIkey", "secret", "", 0)

	grant, err := issuer.Issue("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultRoom, grant.Room)
	assert.Regexp(t, generatedIdentity, grant.Identity)

	claims, err := issuer.Decode(grant.Token)
	require.NoError(t, err)
	assert.Equal(t, DefaultRoom, claims.Room())
	assert.Equal(t, grant.Identity, claims.Identity())
	assert.Equal(t, "APIkey", claims.Issuer)
	require.NotNil(t, claims.Video)
	assert.True(t, claims.Video.RoomJoin)
	require.NotNil(t, claims.Video.CanPublish)
	assert.True(t, *claims.Video.CanPublish)
	require.NotNil(t, claims.Video.CanSubscribe)
	assert.True(t, *claims.Video.CanSubscribe)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), claims.ExpiresAt.Time, 5*time.Second)
}

func TestIssueUsesSuppliedValues(t *testing.T) {
	issuer := NewIssuer("APIkey", "secret", "farm-support-room", time.Hour)

	first, err := issuer.Issue("demo", "alice")
	require.NoError(t, err)
	second, err := issuer.Issue("demo", "alice")
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)

	for _, tok := range []string{first.Token, second.Token} {
		claims, err := issuer.Decode(tok)
		require.NoError(t, err)
		assert.Equal(t, "demo", claims.Room())
		assert.Equal(t, "alice", claims.Identity())
	}
}

func TestIssueWithoutCredentials(t *testing.T) {
	for _, issuer := range []*Issuer{
		NewIssuer("", "", "", 0),
		NewIssuer("key", "", "", 0),
		NewIssuer("", "secret", "", 0),
	} {
		grant, err := issuer.Issue("demo", "alice")
		require.Error(t, err)
		assert.Empty(t, grant.Token)

		var cfgErr *apperr.ConfigError
		assert.True(t, errors.As(err, &cfgErr))
	}
}

func TestDecodeRejectsForeignSecret(t *testing.T) {
	grant, err := NewIssuer("APIkey", "secret", "", 0).Issue("demo", "alice")
	require.NoError(t, err)

	_, err = Decode(grant.Token, "APIkey", "other-secret")
	assert.Error(t, err)

	_, err = Decode(grant.Token, "OtherKey", "secret")
	assert.Error(t, err)
}

func TestRandomIdentity(t *testing.T) {
	seen := make(map[string]struct{})
	for n := 0; n < 50; n++ {
		id, err := RandomIdentity("user-")
		require.NoError(t, err)
		assert.Regexp(t, generatedIdentity, id)
		seen[id] = struct{}{}
	}
	assert.Greater(t, len(seen), 45)
}
