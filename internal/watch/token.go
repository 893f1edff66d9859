package watch

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	TokenIssuer          = "ticketwatch"
	ConfirmationAudience = "ticketwatch-confirm"
	DefaultTokenTTL      = 15 * time.Minute
)

var ErrInvalidToken = errors.New("invalid or expired confirmation token")

// Proposal is a watch the user has been shown but not yet confirmed. It travels to the
// client inside a signed token, so nothing is kept server side between the two calls.
type Proposal struct {
	EventID   string              `json:"event_id"`
	EventName string              `json:"event_name"`
	Venue     string              `json:"venue"`
	City      string              `json:"city"`
	Date      string              `json:"date"`
	Status    string              `json:"status"`
	PriceMin  decimal.NullDecimal `json:"price_min"`
	PriceMax  decimal.NullDecimal `json:"price_max"`
	MaxPrice  decimal.NullDecimal `json:"max_price"`
	Quantity  int                 `json:"quantity"`
	BuyURL    string              `json:"buy_url"`
}

type Tokens struct {
	Key jwk.Key
	TTL time.Duration

	now func() time.Time
}

func NewTokens(key jwk.Key, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{Key: key, TTL: ttl, now: time.Now}
}

// Issue signs p for userID and returns the token with its expiry.
func (t *Tokens) Issue(userID string, p Proposal) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.TTL)
	b := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Issuer(TokenIssuer).
		Audience([]string{ConfirmationAudience}).
		Subject(userID).
		IssuedAt(now).
		Expiration(exp).
		Claim("event_id", p.EventID).
		Claim("event_name", p.EventName).
		Claim("venue", p.Venue).
		Claim("date", p.Date).
		Claim("quantity", strconv.Itoa(p.Quantity)).
		Claim("buy_url", p.BuyURL)
	if p.MaxPrice.Valid {
		b = b.Claim("max_price", p.MaxPrice.Decimal.String())
	}
	tok, err := b.Build()
	if err != nil {
		return "", exp, errors.Wrapf(err, "error building confirmation token for UserID: %s", userID)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, t.Key))
	if err != nil {
		return "", exp, errors.Wrapf(err, "error signing confirmation token for UserID: %s", userID)
	}
	return string(signed), exp, nil
}

// Verify checks signature, expiry, audience and that the token was issued to userID.
func (t *Tokens) Verify(userID string, token string) (Proposal, error) {
	tok, err := jwt.Parse(
		[]byte(token),
		jwt.WithKey(jwa.HS256, t.Key),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(t.now)),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(ConfirmationAudience),
		jwt.WithSubject(userID),
	)
	if err != nil {
		return Proposal{}, errors.Wrapf(ErrInvalidToken, "%v", err)
	}

	p := Proposal{
		EventID:   stringClaim(tok, "event_id"),
		EventName: stringClaim(tok, "event_name"),
		Venue:     stringClaim(tok, "venue"),
		Date:      stringClaim(tok, "date"),
		BuyURL:    stringClaim(tok, "buy_url"),
	}
	if p.EventID == "" {
		return Proposal{}, errors.Wrap(ErrInvalidToken, "token has no event")
	}
	if p.Quantity, err = strconv.Atoi(stringClaim(tok, "quantity")); err != nil {
		return Proposal{}, errors.Wrap(ErrInvalidToken, "token has no quantity")
	}
	if mp := stringClaim(tok, "max_price"); mp != "" {
		d, err := decimal.NewFromString(mp)
		if err != nil {
			return Proposal{}, errors.Wrapf(ErrInvalidToken, "token max price: %q", mp)
		}
		p.MaxPrice = decimal.NewNullDecimal(d)
	}
	return p, nil
}

func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
