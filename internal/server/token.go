package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"

	"ticketwatch/internal/watch"
)

const DefaultUserTokenTTL = 90 * 24 * time.Hour

// IssueUserToken signs a bearer token for userID that authMw accepts.
func IssueUserToken(key jwk.Key, userID string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultUserTokenTTL
	}
	exp := time.Now().Add(ttl)
	if userID == "" {
		return "", exp, errors.New("error creating user token: empty user id")
	}
	t, err := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Subject(userID).
		Issuer(watch.TokenIssuer).
		IssuedAt(time.Now()).
		Expiration(exp).
		Build()
	if err != nil {
		return "", exp, errors.Wrapf(err, "error creating user token for UserID: %s", userID)
	}
	lt, err := jwt.Sign(t, jwt.WithKey(jwa.HS256, key))
	if err != nil {
		return "", exp, errors.Wrapf(err, "error signing user token for UserID: %s", userID)
	}
	return string(lt), t.Expiration(), nil
}
