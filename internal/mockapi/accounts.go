package mockapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"brdconsole.org/internal/audit"
	"brdconsole.org/internal/auth"
	"brdconsole.org/internal/obs"
	"brdconsole.org/internal/resource"
	"brdconsole.org/internal/store"
)

const (
	usersCollection    = "users/users"
	loginCollection    = "users/login-activity"
	tenantsCollection  = "tenants"
	minPasswordLength  = 8
	invalidCredentials = "No active account found with the given credentials"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	ctx := r.Context()
	user, err := a.userByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		handleStoreError(w, r, err)
		return
	}
	if user == nil || user["is_active"] == false ||
		auth.VerifyPassword(store.Text(user["password_hash"]), req.Password) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": invalidCredentials})
		return
	}

	id := identityOf(user)
	pair, err := a.signer.Issue(id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{Identity: id})
	a.recordLogin(ctx, r, id)
	a.audit(ctx, audit.Event{
		Action:      audit.ActionLogin,
		Module:      "auth",
		ResourceID:  id.UserID,
		Description: "user signed in",
	})
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	claims, err := a.signer.Parse(req.Refresh, auth.TokenRefresh)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}
	access, err := a.signer.Access(claims.Identity())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

// handleSignup registers a user; the console only ever signs up master
// administrators.
func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = auth.RoleMasterAdmin
	}
	user := store.Record{
		"email":      req.Email,
		"password":   req.Password,
		"role":       role,
		"first_name": strings.TrimSpace(req.FirstName),
		"last_name":  strings.TrimSpace(req.LastName),
		"is_active":  true,
	}
	created, err := a.insertUser(r.Context(), user, true)
	if err != nil {
		a.writePrepareError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, public(created))
}

// handleTenantSignup creates the organisation and its first administrator.
func (a *API) handleTenantSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	in := store.Record(body)
	for _, field := range []string{"business_name", "email", "password"} {
		if strings.TrimSpace(store.Text(in[field])) == "" {
			writeFieldError(w, field, "This field is required.")
			return
		}
	}
	ctx := r.Context()
	email := strings.ToLower(strings.TrimSpace(store.Text(in["email"])))
	if existing, err := a.userByEmail(ctx, email); err == nil && existing != nil {
		writeFieldError(w, "email", "user with this email already exists.")
		return
	}

	tenantID, err := a.store.NextID(ctx, tenantsCollection)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	now := a.now().UTC().Format(time.RFC3339)
	tenant := store.Record{
		"id":             tenantID,
		"name":           strings.TrimSpace(store.Text(in["business_name"])),
		"tenant_type":    "NBFC",
		"email":          email,
		"phone":          store.Text(in["mobile_no"]),
		"address":        store.Text(in["address"]),
		"contact_person": store.Text(in["contact_person"]),
		"loan_product":   store.Text(in["loan_product"]),
		"is_active":      true,
		"created_at":     now,
		"updated_at":     now,
	}
	key := store.Text(tenantID)
	if err := a.store.Insert(ctx, tenantsCollection, key, tenant); err != nil {
		handleStoreError(w, r, err)
		return
	}
	user, err := a.insertUser(ctx, store.Record{
		"email":      email,
		"password":   store.Text(in["password"]),
		"role":       auth.RoleAdmin,
		"tenant":     tenantID,
		"first_name": store.Text(in["contact_person"]),
		"phone":      store.Text(in["mobile_no"]),
		"is_active":  true,
	}, true)
	if err != nil {
		_ = a.store.Delete(ctx, tenantsCollection, key)
		a.writePrepareError(w, r, err)
		return
	}
	a.audit(ctx, audit.Event{
		Action:      audit.ActionCreate,
		Module:      resource.Organizations,
		ResourceID:  key,
		Description: "tenant signed up",
	})
	writeJSON(w, http.StatusCreated, map[string]any{"tenant": tenant, "user": public(user)})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, public(user))
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if auth.VerifyPassword(store.Text(user["password_hash"]), req.OldPassword) != nil {
		writeFieldError(w, "old_password", "Old password is incorrect.")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeFieldError(w, "new_password", fmt.Sprintf("Password must be at least %d characters.", minPasswordLength))
		return
	}
	hash, err := auth.HashPasswordCost(req.NewPassword, a.hashCost)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "password hashing failed")
		return
	}
	user["password_hash"] = hash
	id := store.Text(user["id"])
	if err := a.store.Replace(r.Context(), usersCollection, id, user); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.Event{
		Action:      audit.ActionUpdate,
		Module:      resource.Users,
		ResourceID:  id,
		Description: "password changed",
	})
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Password updated successfully"})
}

func (a *API) handleLoginActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	rows, err := a.store.List(r.Context(), loginCollection, store.Filter{"user": uid})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	writeJSON(w, http.StatusOK, rows)
}

// prepareUser normalises the email, enforces its uniqueness and turns a
// plaintext password into a hash.
func (a *API) prepareUser(ctx context.Context, rec store.Record, selfID string) error {
	email := strings.ToLower(strings.TrimSpace(store.Text(rec["email"])))
	if email == "" {
		return fieldError{field: "email", msg: "This field is required."}
	}
	rec["email"] = email
	if other, err := a.userByEmail(ctx, email); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	} else if other != nil && store.Text(other["id"]) != selfID {
		return fieldError{field: "email", msg: "user with this email already exists."}
	}
	if role := strings.ToUpper(strings.TrimSpace(store.Text(rec["role"]))); role != "" {
		rec["role"] = role
	}
	if pw, ok := rec["password"].(string); ok {
		delete(rec, "password")
		if pw != "" {
			if len(pw) < minPasswordLength {
				return fieldError{field: "password", msg: fmt.Sprintf("Password must be at least %d characters.", minPasswordLength)}
			}
			hash, err := auth.HashPasswordCost(pw, a.hashCost)
			if err != nil {
				return err
			}
			rec["password_hash"] = hash
		}
	}
	return nil
}

// insertUser stores a new user outside the collection handler, for signup
// and seeding. requirePassword rejects accounts nobody could sign in to.
func (a *API) insertUser(ctx context.Context, rec store.Record, requirePassword bool) (store.Record, error) {
	if requirePassword && store.Text(rec["password"]) == "" {
		return nil, fieldError{field: "password", msg: "This field is required."}
	}
	if err := a.prepareUser(ctx, rec, ""); err != nil {
		return nil, err
	}
	n, err := a.store.NextID(ctx, usersCollection)
	if err != nil {
		return nil, err
	}
	now := a.now().UTC().Format(time.RFC3339)
	rec["id"] = n
	rec["created_at"] = now
	rec["updated_at"] = now
	key := store.Text(n)
	if err := a.store.Insert(ctx, usersCollection, key, rec); err != nil {
		return nil, err
	}
	a.audit(ctx, audit.Event{
		Action:      audit.ActionCreate,
		Module:      resource.Users,
		ResourceID:  key,
		Description: "user signed up",
	})
	return rec, nil
}

// userByEmail returns nil and ErrNotFound when no user has email.
func (a *API) userByEmail(ctx context.Context, email string) (store.Record, error) {
	rows, err := a.store.List(ctx, usersCollection, store.Filter{"email": email})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

// currentUser loads the caller's user row, answering 404 when it is gone.
func (a *API) currentUser(w http.ResponseWriter, r *http.Request) (store.Record, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	user, err := a.store.Get(r.Context(), usersCollection, uid)
	if err != nil {
		handleStoreError(w, r, err)
		return nil, false
	}
	return user, true
}

func (a *API) recordLogin(ctx context.Context, r *http.Request, id auth.Identity) {
	n, err := a.store.NextID(ctx, loginCollection)
	if err == nil {
		err = a.store.Insert(ctx, loginCollection, store.Text(n), store.Record{
			"id":         n,
			"user":       id.UserID,
			"email":      id.Email,
			"ip_address": clientIP(r),
			"user_agent": r.UserAgent(),
			"timestamp":  a.now().UTC().Format(time.RFC3339),
		})
	}
	if err != nil {
		obs.Logger().Warn().Err(err).Str("user_id", id.UserID).Msg("login activity not stored")
	}
}

func identityOf(user store.Record) auth.Identity {
	return auth.Identity{
		UserID:   store.Text(user["id"]),
		Email:    store.Text(user["email"]),
		Role:     store.Text(user["role"]),
		TenantID: store.Text(user["tenant"]),
	}
}
