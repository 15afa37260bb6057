// Package roomtoken mints join grants for a LiveKit compatible media server.
//
// A grant is an HS256 JWT signed with the API secret: iss carries the API key,
// sub the participant identity and the "video" claim the room permissions.
// Grants are stateless; nothing is recorded about issued tokens.
package roomtoken

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"smartcrop/api/internal/apperr"
	"smartcrop/api/internal/ids"
)

const (
	DefaultRoom = "farm-support-room"
	DefaultTTL  = 6 * time.Hour

	identityPrefix = "user-"
	identitySuffix = 6
	base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var ErrMissingCredentials = errors.New("Missing LiveKit API credentials on the server")

// VideoGrant mirrors the permission block understood by the media server.
type VideoGrant struct {
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	Room         string `json:"room,omitempty"`
	CanPublish   *bool  `json:"canPublish,omitempty"`
	CanSubscribe *bool  `json:"canSubscribe,omitempty"`
}

type Claims struct {
	Name  string      `json:"name,omitempty"`
	Video *VideoGrant `json:"video,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the participant identity the grant was minted for.
func (c *Claims) Identity() string { return c.Subject }

// Room returns the room the grant admits to, or "" when there is no video grant.
func (c *Claims) Room() string {
	if c.Video == nil {
		return ""
	}
	return c.Video.Room
}

type Issuer struct {
	apiKey      string
	apiSecret   string
	defaultRoom string
	ttl         time.Duration
	now         func() time.Time
}

func NewIssuer(apiKey, apiSecret, defaultRoom string, ttl time.Duration) *Issuer {
	if defaultRoom == "" {
		defaultRoom = DefaultRoom
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		defaultRoom: defaultRoom,
		ttl:         ttl,
		now:         time.Now,
	}
}

// Configured reports whether both signing credentials are present.
func (i *Issuer) Configured() bool {
	return i.apiKey != "" && i.apiSecret != ""
}

type Grant struct {
	Token    string
	Room     string
	Identity string
}

// Issue mints a join+publish+subscribe grant. Empty room or identity fall
// back to the default room and a random "user-xxxxxx" identity. Every call
// produces a distinct token, even for identical inputs.
func (i *Issuer) Issue(room, identity string) (Grant, error) {
	if !i.Configured() {
		return Grant{}, apperr.Config(ErrMissingCredentials.Error())
	}

	if room == "" {
		room = i.defaultRoom
	}
	if identity == "" {
		generated, err := RandomIdentity(identityPrefix)
		if err != nil {
			return Grant{}, err
		}
		identity = generated
	}

	now := i.now()
	allow := true
	claims := Claims{
		Name: identity,
		Video: &VideoGrant{
			RoomJoin:     true,
			Room:         room,
			CanPublish:   &allow,
			CanSubscribe: &allow,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			ID:        ids.New(),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.apiSecret))
	if err != nil {
		return Grant{}, fmt.Errorf("sign grant: %w", err)
	}

	return Grant{Token: signed, Room: room, Identity: identity}, nil
}

// Decode verifies a grant against the issuer's secret and returns its claims.
func (i *Issuer) Decode(token string) (*Claims, error) {
	return Decode(token, i.apiKey, i.apiSecret)
}

func Decode(token, apiKey, apiSecret string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(apiSecret), nil
	}, jwt.WithIssuer(apiKey))
	if err != nil {
		return nil, fmt.Errorf("parse grant: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid grant")
	}
	return claims, nil
}

// RandomIdentity returns prefix followed by six random base-36 characters.
func RandomIdentity(prefix string) (string, error) {
	buf := make([]byte, identitySuffix)
	limit := big.NewInt(int64(len(base36Alphabet)))
	for n := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("random identity: %w", err)
		}
		buf[n] = base36Alphabet[idx.Int64()]
	}
	return prefix + string(buf), nil
}
