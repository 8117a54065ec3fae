package session

import (
	"context"

	"golang.org/x/oauth2"
)

var _ oauth2.TokenSource = (*tokenSource)(nil)

// TokenSource adapts the manager to oauth2.TokenSource so the session can
// feed any library that consumes one. Token refreshes go through the
// manager's single-flight Refresh.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, manager: m}
}

type tokenSource struct {
	ctx     context.Context
	manager *Manager
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	credential := ts.manager.CurrentCredential()
	if credential == nil || credential.Expired(ts.manager.nowTime()) {
		if _, err := ts.manager.Refresh(ts.ctx); err != nil {
			return nil, err
		}
		credential = ts.manager.CurrentCredential()
	}
	return &oauth2.Token{
		AccessToken:  credential.AccessToken,
		RefreshToken: credential.RefreshToken,
		Expiry:       credential.ExpiresAt,
		TokenType:    "Bearer",
	}, nil
}
