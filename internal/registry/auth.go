package registry

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"go.uber.org/zap"
)

// defaultRefreshSkew is how long before expiry a cached credential is
// considered stale. Generous enough that a credential handed out here
// outlives any single publish.
const defaultRefreshSkew = 5 * time.Minute

// Credentials is a short-lived registry credential issued by the auth endpoint.
type Credentials struct {
	Username  string
	Password  string
	Endpoint  string
	ExpiresAt time.Time
}

// CredentialSource issues registry credentials.
type CredentialSource interface {
	Credentials(ctx context.Context) (*Credentials, error)
}

// TokenSourceOption configures a TokenSource.
type TokenSourceOption func(*TokenSource)

// WithoutCache disables credential caching, re-authenticating on every call.
func WithoutCache() TokenSourceOption {
	return func(s *TokenSource) {
		s.cacheEnabled = false
	}
}

// WithRefreshSkew sets how long before expiry a cached credential is refreshed.
func WithRefreshSkew(skew time.Duration) TokenSourceOption {
	return func(s *TokenSource) {
		s.refreshSkew = skew
	}
}

// withClock overrides the time source, for tests.
func withClock(now func() time.Time) TokenSourceOption {
	return func(s *TokenSource) {
		s.now = now
	}
}

// TokenSource fetches registry authorization tokens and caches them until
// close to expiry. Safe for concurrent use.
type TokenSource struct {
	client       ECRAPI
	logger       *zap.Logger
	cacheEnabled bool
	refreshSkew  time.Duration
	now          func() time.Time

	mu     sync.Mutex
	cached *Credentials
}

// NewTokenSource creates a TokenSource with caching enabled.
func NewTokenSource(client ECRAPI, logger *zap.Logger, opts ...TokenSourceOption) *TokenSource {
	s := &TokenSource{
		client:       client,
		logger:       logger,
		cacheEnabled: true,
		refreshSkew:  defaultRefreshSkew,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Credentials returns a valid registry credential, fetching a fresh token
// when nothing usable is cached.
func (s *TokenSource) Credentials(ctx context.Context) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cacheEnabled && s.cached != nil && s.now().Before(s.cached.ExpiresAt.Add(-s.refreshSkew)) {
		return s.cached, nil
	}

	out, err := s.client.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization token: %w", err)
	}
	if len(out.AuthorizationData) == 0 {
		return nil, fmt.Errorf("authorization response contained no token data")
	}

	data := out.AuthorizationData[0]
	raw, err := base64.StdEncoding.DecodeString(aws.ToString(data.AuthorizationToken))
	if err != nil {
		return nil, fmt.Errorf("failed to decode authorization token: %w", err)
	}

	username, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, fmt.Errorf("authorization token is not in user:password form")
	}

	creds := &Credentials{
		Username:  username,
		Password:  password,
		Endpoint:  aws.ToString(data.ProxyEndpoint),
		ExpiresAt: aws.ToTime(data.ExpiresAt),
	}

	if s.cacheEnabled {
		s.cached = creds
	}

	s.logger.Debug("issued registry credential",
		zap.String("endpoint", creds.Endpoint),
		zap.Time("expiresAt", creds.ExpiresAt))

	return creds, nil
}
