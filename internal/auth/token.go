package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenConfig holds the signing parameters shared by every token operation.
type TokenConfig struct {
	Secret    string
	Algorithm string
	TTL       time.Duration
	Issuer    string
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID    int64
	RoleID    int
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// tokenClaims is the wire form. id_rol is advisory: authorization always uses
// the role loaded from the store.
type tokenClaims struct {
	RoleID int `json:"id_rol"`
	jwt.RegisteredClaims
}

// Codec signs and verifies stateless access tokens.
type Codec struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec validates cfg and returns a ready Codec.
func NewCodec(cfg TokenConfig, opts ...CodecOption) (*Codec, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	}
	method, err := signingMethod(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: token ttl must be greater than zero", ErrInvalidConfig)
	}
	c := &Codec{
		secret: []byte(secret),
		method: method,
		ttl:    cfg.TTL,
		issuer: strings.TrimSpace(cfg.Issuer),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func signingMethod(alg string) (jwt.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidConfig, alg)
	}
}

// TTL reports the configured token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode signs a token for claims.UserID and returns it with its expiry.
// Every call produces a distinct token.
func (c *Codec) Encode(claims Claims) (string, time.Time, error) {
	if claims.UserID <= 0 {
		return "", time.Time{}, errors.New("auth: user id must be positive")
	}
	now := c.now().UTC()
	exp := now.Add(c.ttl)
	wire := tokenClaims{
		RoleID: claims.RoleID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   strconv.FormatInt(claims.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(c.method, wire).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, wire.ExpiresAt.Time, nil
}

// Decode verifies token and returns its claims. Every failure is reported as
// ErrInvalidToken.
func (c *Codec) Decode(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	var wire tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &wire, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if wire.IssuedAt == nil || wire.ExpiresAt == nil {
		return Claims{}, ErrInvalidToken
	}
	userID, err := parseSubject(wire.Subject)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	return Claims{
		UserID:    userID,
		RoleID:    wire.RoleID,
		TokenID:   wire.ID,
		IssuedAt:  wire.IssuedAt.Time,
		ExpiresAt: wire.ExpiresAt.Time,
	}, nil
}

func parseSubject(sub string) (int64, error) {
	if sub == "" {
		return 0, errors.New("subject missing")
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("subject is not numeric: %w", err)
	}
	if id <= 0 {
		return 0, errors.New("subject must be positive")
	}
	return id, nil
}
