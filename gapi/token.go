package gapi

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// TokenProvider resolves the Google OAuth access token for a user.
type TokenProvider interface {
	// Token returns a live access token for the user.
	// Returns ErrTokenMissing when the user has no stored grant.
	Token(ctx context.Context, userID uuid.UUID) (string, error)
}

// OAuthTokenProvider adapts per-user oauth2.TokenSource instances to the
// TokenProvider contract. Token sources handle refresh internally, so a
// stored refresh token keeps yielding valid access tokens.
type OAuthTokenProvider struct {
	mu      sync.RWMutex
	sources map[uuid.UUID]oauth2.TokenSource
}

// NewOAuthTokenProvider creates an empty provider; grants are registered as
// users complete the Google consent flow.
func NewOAuthTokenProvider() *OAuthTokenProvider {
	return &OAuthTokenProvider{sources: make(map[uuid.UUID]oauth2.TokenSource)}
}

// Register stores the token source obtained from a user's OAuth grant.
// A nil source removes the registration.
func (p *OAuthTokenProvider) Register(userID uuid.UUID, src oauth2.TokenSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if src == nil {
		delete(p.sources, userID)
		return
	}
	p.sources[userID] = src
}

// RegisterToken is a convenience wrapper for a static token, reusing the
// oauth2 config to build a self-refreshing source.
func (p *OAuthTokenProvider) RegisterToken(userID uuid.UUID, cfg *oauth2.Config, tok *oauth2.Token) {
	if cfg == nil || tok == nil {
		return
	}
	p.Register(userID, cfg.TokenSource(context.Background(), tok))
}

// Token implements TokenProvider.
func (p *OAuthTokenProvider) Token(ctx context.Context, userID uuid.UUID) (string, error) {
	p.mu.RLock()
	src, ok := p.sources[userID]
	p.mu.RUnlock()
	if !ok {
		return "", ErrTokenMissing
	}

	tok, err := src.Token()
	if err != nil {
		return "", errors.Join(ErrTokenMissing, err)
	}
	if !tok.Valid() {
		return "", ErrTokenMissing
	}

	return tok.AccessToken, nil
}
