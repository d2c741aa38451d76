package console

import (
	"context"
	"errors"
	"time"

	"brdconsole.org/internal/session"
)

// SessionInfo is what the access token says about the signed-in account.
type SessionInfo struct {
	Email     string    `json:"email"`
	TenantID  string    `json:"tenant_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Remember  bool      `json:"remember"`
}

// Expired reports whether the access token's exp has passed at now. A
// token without exp never expires locally.
func (i SessionInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// SessionInfo reads the stored session's token claims.
func (c *Console) SessionInfo() (SessionInfo, error) {
	s, err := c.Sessions.Current()
	if err != nil {
		return SessionInfo{}, err
	}
	info := SessionInfo{
		Email:    s.User.Email,
		TenantID: session.TenantID(s.AccessToken),
		Remember: s.Remember,
	}
	if exp, ok := session.ExpiresAt(s.AccessToken); ok {
		info.ExpiresAt = exp.UTC()
	}
	return info, nil
}

// RefreshIfExpired trades the refresh token for a new access token once the
// stored one has expired. It reports whether a refresh took place.
func (c *Console) RefreshIfExpired(ctx context.Context, now time.Time) (bool, error) {
	info, err := c.SessionInfo()
	if errors.Is(err, session.ErrNoSession) {
		return false, nil
	}
	if err != nil || !info.Expired(now) {
		return false, err
	}
	if _, err := c.Auth.Refresh(ctx); err != nil {
		return false, err
	}
	c.logger.Debug().Msg("access token refreshed")
	return true, nil
}
