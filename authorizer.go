package roomcast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coregx/roomcast/model"
)

// minKeyLength is the minimum accepted HMAC signing key length in bytes.
const minKeyLength = 32

// defaultTokenTTL balances the blast radius of a leaked token against
// reissuance churn: hours, not minutes.
const defaultTokenTTL = 6 * time.Hour

// ChannelResolver resolves the channel set a subscriber may read.
// *TopicCache is the production implementation.
type ChannelResolver interface {
	Resolve(ctx context.Context, subscriberID int64) (model.ChannelSet, error)
}

// TopicAuthorizer issues signed, time-bounded capability tokens scoping
// exactly the channels a subscriber may read.
//
// The token combines both scoping strategies: enumerated channels for the
// subscriber's bounded rooms plus the one constant-size private inbox channel
// for unbounded-room traffic. Tokens are HS256-signed JWTs verifiable by the
// hub without a callback per event.
//
// Thread safety: safe for concurrent use.
type TopicAuthorizer struct {
	resolver ChannelResolver
	key      []byte
	ttl      time.Duration
	logger   Logger
	now      func() time.Time
}

// capabilityClaims is the JWT claim set carried by a capability token.
type capabilityClaims struct {
	jwt.RegisteredClaims
	Channels []string `json:"channels"`
}

// TopicAuthorizerOption configures a TopicAuthorizer.
type TopicAuthorizerOption func(*TopicAuthorizer) error

// NewTopicAuthorizer creates a new TopicAuthorizer with the provided options.
//
// Required options:
//   - WithChannelResolver: channel set resolver (typically a *TopicCache)
//   - WithSigningKey: HMAC key, at least 32 bytes
//   - WithAuthorizerLogger: logger instance
//
// Optional options:
//   - WithTokenTTL: token lifetime (default: 6 hours)
func NewTopicAuthorizer(opts ...TopicAuthorizerOption) (*TopicAuthorizer, error) {
	a := &TopicAuthorizer{
		ttl: defaultTokenTTL,
		now: time.Now,
	}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply authorizer option", err)
		}
	}

	if a.resolver == nil {
		return nil, NewError(ErrCodeConfiguration, "ChannelResolver is required (use WithChannelResolver)")
	}
	if len(a.key) < minKeyLength {
		return nil, NewError(ErrCodeConfiguration, "signing key is missing or too short (use WithSigningKey, min 32 bytes)")
	}
	if a.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithAuthorizerLogger)")
	}

	return a, nil
}

// WithChannelResolver sets the channel set resolver.
func WithChannelResolver(resolver ChannelResolver) TopicAuthorizerOption {
	return func(a *TopicAuthorizer) error {
		if resolver == nil {
			return fmt.Errorf("resolver cannot be nil")
		}
		a.resolver = resolver
		return nil
	}
}

// WithSigningKey sets the HMAC-SHA256 signing key.
func WithSigningKey(key []byte) TopicAuthorizerOption {
	return func(a *TopicAuthorizer) error {
		if len(key) < minKeyLength {
			return fmt.Errorf("signing key must be at least %d bytes, got %d", minKeyLength, len(key))
		}
		a.key = key
		return nil
	}
}

// WithAuthorizerLogger sets the logger instance.
func WithAuthorizerLogger(logger Logger) TopicAuthorizerOption {
	return func(a *TopicAuthorizer) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		a.logger = logger
		return nil
	}
}

// WithTokenTTL sets the fixed token lifetime. Tokens are never renewed in
// place; a new Issue call is required after expiry.
func WithTokenTTL(ttl time.Duration) TopicAuthorizerOption {
	return func(a *TopicAuthorizer) error {
		if ttl <= 0 {
			return fmt.Errorf("token ttl must be > 0, got %v", ttl)
		}
		a.ttl = ttl
		return nil
	}
}

// Issue resolves the subscriber's channel set and signs a capability token
// scoping exactly that set.
//
// Fails with MEMBERSHIP_RESOLUTION_ERROR if the memberships cannot be
// resolved; no partial token is ever issued.
func (a *TopicAuthorizer) Issue(ctx context.Context, subscriberID int64) (*model.CapabilityToken, error) {
	if subscriberID == 0 {
		return nil, NewError(ErrCodeValidation, "subscriber ID is required")
	}

	channels, err := a.resolver.Resolve(ctx, subscriberID)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeMembershipResolution,
			fmt.Sprintf("cannot resolve channel set for subscriber %d", subscriberID), err)
	}

	issuedAt := a.now()
	expiresAt := issuedAt.Add(a.ttl)

	claims := capabilityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subscriberID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Channels: channels,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to sign capability token", err)
	}

	a.logger.Infof("Capability token issued: subscriber=%d, channels=%d, expires=%s",
		subscriberID, len(channels), expiresAt.Format(time.RFC3339))

	return &model.CapabilityToken{
		Subject:   subscriberID,
		Channels:  channels,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Signed:    signed,
	}, nil
}

// Verify parses a signed token and validates its signature and expiry.
// Returns ErrAuthorizationExpired for expired tokens — callers must not
// silently retry past that; the subscriber has to confirm presence and
// request a fresh token.
func (a *TopicAuthorizer) Verify(signed string) (*model.CapabilityToken, error) {
	var claims capabilityClaims
	token, err := jwt.ParseWithClaims(signed, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.key, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAuthorizationExpired
		}
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid capability token", err)
	}
	if !token.Valid {
		return nil, NewError(ErrCodeValidation, "invalid capability token")
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, NewError(ErrCodeValidation, "capability token missing timestamps")
	}

	subject, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid token subject", err)
	}

	return &model.CapabilityToken{
		Subject:   subject,
		Channels:  model.ChannelSet(claims.Channels),
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		Signed:    signed,
	}, nil
}

// TokenTTL returns the configured token lifetime.
func (a *TopicAuthorizer) TokenTTL() time.Duration {
	return a.ttl
}
