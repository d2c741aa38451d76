package resource

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"brdconsole.org/internal/session"
)

var (
	ErrCredentialsRequired = errors.New("email and password are required")
	ErrNoToken             = errors.New("backend did not return an access token")
	ErrNoRefreshToken      = errors.New("no refresh token in session")
)

// MasterAdminRole is the role every console self-signup is created with.
const MasterAdminRole = "MASTER_ADMIN"

// TokenPair is the token endpoint's answer.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// SignupRequest registers a master administrator.
type SignupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AuthService covers login, token refresh, signup and the signed-in user's
// account endpoints. Token endpoints live under authURL (".../api/"), the
// rest under the API base.
type AuthService struct {
	api      Doer
	sessions session.Store
	authURL  string
	now      func() time.Time
}

func NewAuthService(api Doer, sessions session.Store, authURL string) *AuthService {
	if authURL != "" && !strings.HasSuffix(authURL, "/") {
		authURL += "/"
	}
	return &AuthService{api: api, sessions: sessions, authURL: authURL, now: time.Now}
}

// Login exchanges credentials for a token pair and stores the session.
// remember selects persistent storage.
func (a *AuthService) Login(ctx context.Context, email, password string, remember bool) (session.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return session.Session{}, ErrCredentialsRequired
	}
	var pair TokenPair
	body := map[string]string{"email": email, "password": password}
	if err := a.api.Do(ctx, http.MethodPost, a.authURL+"token/", nil, body, &pair); err != nil {
		return session.Session{}, err
	}
	if strings.TrimSpace(pair.Access) == "" {
		return session.Session{}, ErrNoToken
	}
	s := session.Session{
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		User:         session.User{Email: email},
		Remember:     remember,
		CreatedAt:    a.now().UTC(),
	}
	if err := a.sessions.Save(s); err != nil {
		return session.Session{}, err
	}
	return s, nil
}

// Refresh trades the stored refresh token for a new access token.
func (a *AuthService) Refresh(ctx context.Context) (session.Session, error) {
	cur, err := a.sessions.Current()
	if err != nil {
		return session.Session{}, err
	}
	if cur.RefreshToken == "" {
		return session.Session{}, ErrNoRefreshToken
	}
	var pair TokenPair
	body := map[string]string{"refresh": cur.RefreshToken}
	if err := a.api.Do(ctx, http.MethodPost, a.authURL+"token/refresh/", nil, body, &pair); err != nil {
		return session.Session{}, err
	}
	if pair.Access == "" {
		return session.Session{}, ErrNoToken
	}
	cur.AccessToken = pair.Access
	if pair.Refresh != "" {
		cur.RefreshToken = pair.Refresh
	}
	if err := a.sessions.Save(cur); err != nil {
		return session.Session{}, err
	}
	return cur, nil
}

// Logout forgets the session locally. The backend keeps no server-side
// session to revoke.
func (a *AuthService) Logout() error {
	return a.sessions.Clear()
}

// Signup creates a master administrator account.
func (a *AuthService) Signup(ctx context.Context, req SignupRequest) (Record, error) {
	payload := map[string]any{
		"email":      strings.ToLower(strings.TrimSpace(req.Email)),
		"password":   req.Password,
		"role":       MasterAdminRole,
		"first_name": req.FirstName,
		"last_name":  req.LastName,
	}
	var out Record
	err := a.api.Do(ctx, http.MethodPost, "users/signup/", nil, payload, &out)
	return out, err
}

// TenantSignup registers a new lending organisation.
func (a *AuthService) TenantSignup(ctx context.Context, payload map[string]any) (Record, error) {
	var out Record
	err := a.api.Do(ctx, http.MethodPost, "tenants/signup/", nil, payload, &out)
	return out, err
}

// Me loads the signed-in user's profile and refreshes the user block of the
// stored session.
func (a *AuthService) Me(ctx context.Context) (Record, error) {
	var out Record
	if err := a.api.Do(ctx, http.MethodGet, "users/me/", nil, nil, &out); err != nil {
		return nil, err
	}
	if cur, err := a.sessions.Current(); err == nil {
		cur.User = session.User{
			ID:        out.ID(),
			Email:     firstNonEmpty(out.String("email"), cur.User.Email),
			FirstName: out.String("first_name"),
			LastName:  out.String("last_name"),
			Role:      out.String("role"),
			Avatar:    firstNonEmpty(out.String("avatar"), out.String("profile_picture")),
		}
		if err := a.sessions.Save(cur); err != nil {
			return out, err
		}
	}
	return out, nil
}

// ChangePassword updates the signed-in user's password.
func (a *AuthService) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	return a.api.Do(ctx, http.MethodPost, "users/change-password/", nil, body, nil)
}

// LoginActivity lists recent sign-ins of the current user.
func (a *AuthService) LoginActivity(ctx context.Context) ([]Record, error) {
	return New[Record](a.api, Spec{Name: "login-activity", Path: "users/login-activity/"}).List(ctx, nil)
}

// TwoFactorSetup is the provisioning answer: a QR code as a data URL, plus
// the secret and otpauth URI for manual entry when the backend sends them.
type TwoFactorSetup struct {
	QRCode string `json:"qr_code"`
	Secret string `json:"secret,omitempty"`
	URI    string `json:"uri,omitempty"`
}

// Setup2FA starts two-factor enrolment. It takes effect after Verify2FA.
func (a *AuthService) Setup2FA(ctx context.Context) (TwoFactorSetup, error) {
	var out TwoFactorSetup
	err := a.api.Do(ctx, http.MethodGet, "users/2fa/setup/", nil, nil, &out)
	return out, err
}

func (a *AuthService) Verify2FA(ctx context.Context, code string) error {
	return a.api.Do(ctx, http.MethodPost, "users/2fa/verify/", nil, map[string]string{"code": code}, nil)
}

func (a *AuthService) Disable2FA(ctx context.Context) error {
	return a.api.Do(ctx, http.MethodPost, "users/2fa/disable/", nil, map[string]any{}, nil)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
