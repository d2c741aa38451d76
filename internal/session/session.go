// Package session holds the console's authentication state: the token pair
// issued at login and the signed-in user. A Store is handed to the API client
// at construction; nothing reads tokens from globals.
package session

import (
	"errors"
	"strings"
	"time"
)

// ErrNoSession is returned by stores that hold no login.
var ErrNoSession = errors.New("no active session")

// User is the signed-in user as shown in the console header.
type User struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

// DisplayName prefers the full name and falls back to the email.
func (u User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	return u.Email
}

// Session is created on login and destroyed on logout or auth failure.
type Session struct {
	AccessToken  string    `json:"access"`
	RefreshToken string    `json:"refresh,omitempty"`
	User         User      `json:"user"`
	Remember     bool      `json:"remember"`
	CreatedAt    time.Time `json:"created_at"`
}

// Active reports whether the session carries an access token.
func (s Session) Active() bool {
	return strings.TrimSpace(s.AccessToken) != ""
}

// Store persists a session. Implementations are safe for concurrent use.
type Store interface {
	Current() (Session, error)
	Save(Session) error
	Clear() error
}

// AccessToken returns the stored access token or "" when there is none.
func AccessToken(s Store) string {
	if s == nil {
		return ""
	}
	cur, err := s.Current()
	if err != nil || !cur.Active() {
		return ""
	}
	return cur.AccessToken
}
