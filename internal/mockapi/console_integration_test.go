package mockapi_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"brdconsole.org/internal/auth"
	"brdconsole.org/internal/config"
	"brdconsole.org/internal/console"
	"brdconsole.org/internal/apiclient"
	"brdconsole.org/internal/form"
	"brdconsole.org/internal/mockapi"
	"brdconsole.org/internal/resource"
	"brdconsole.org/internal/session"
	"brdconsole.org/internal/store"
)

func newConsole(t *testing.T) (*console.Console, *form.RecordingNavigator) {
	t.Helper()
	signer, err := auth.NewSigner("integration-secret", 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	api := mockapi.New(store.NewMemory(), signer,
		mockapi.WithRateLimit(1000, 1000),
		mockapi.WithPasswordCost(bcrypt.MinCost),
	)
	if err := api.Seed(context.Background(), "root@brd.in", "Secret#123"); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.API.BaseURL = srv.URL + "/api/v1/"
	cfg.API.AuthURL = srv.URL + "/api/"
	nav := &form.RecordingNavigator{}
	c, err := console.New(cfg, session.NewMemoryStore(), nav, console.Options{})
	if err != nil {
		t.Fatalf("console.New: %v", err)
	}
	return c, nav
}

func newSignedConsole(t *testing.T) (*console.Console, *form.RecordingNavigator) {
	t.Helper()
	c, nav := newConsole(t)
	if _, err := c.Auth.Login(context.Background(), "root@brd.in", "Secret#123", false); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !c.Signed() {
		t.Fatal("expected a signed session after login")
	}
	return c, nav
}

func TestConsoleAgainstBackend(t *testing.T) {
	ctx := context.Background()
	c, _ := newSignedConsole(t)

	me, err := c.Auth.Me(ctx)
	if err != nil || me.String("email") != "root@brd.in" {
		t.Fatalf("Me = %v, %v", me, err)
	}

	f := c.NewOrganizationForm()
	f.Set("business_name", "Acme Finance")
	f.Set("email", "ops@acme.in")
	f.Set("mobile_no", "9876543210")
	f.Set("address", "12 MG Road, Pune")
	f.Set("contact_person", "Asha Rao")
	f.Set("password", "secret123")
	f.Set("loan_product", "Gold")
	created, err := f.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit: %v (field errors %v)", err, f.FieldErrors())
	}
	id := created.ID()
	if id == "" {
		t.Fatalf("created organisation has no id: %v", created)
	}
	if _, leaked := created["password"]; leaked {
		t.Fatal("organisation password echoed back")
	}

	orgs, err := c.Records(resource.Organizations)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	first, err := orgs.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := orgs.Get(ctx, id)
	if err != nil || !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated reads differ: %v vs %v (%v)", first, second, err)
	}

	list, err := c.List(resource.Organizations)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if err := list.Load(ctx); err != nil || len(list.Items()) != 1 {
		t.Fatalf("Load = %v, items %v", err, list.Items())
	}
	list.RequestDelete(id)
	if err := list.Confirm(ctx); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := list.Load(ctx); err != nil || len(list.Items()) != 0 {
		t.Fatalf("deleted organisation still listed: %v, %v", list.Items(), err)
	}
}

func TestConsolePermissionMatrixRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, nav := newSignedConsole(t)

	role, err := c.Roles.Create(ctx, "Approver", "approves loans")
	if err != nil {
		t.Fatalf("Create role: %v", err)
	}
	m := c.NewPermissionMatrix(role.ID)
	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Enabled(); len(got) != 0 {
		t.Fatalf("fresh role has permissions %v", got)
	}
	if err := m.Apply("approver"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if nav.Last() != console.RouteRoles {
		t.Fatalf("expected navigation to roles, got %q", nav.Last())
	}

	reloaded := c.NewPermissionMatrix(role.ID)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(reloaded.Enabled(), m.Enabled()) {
		t.Fatalf("saved %v, reloaded %v", m.Enabled(), reloaded.Enabled())
	}
}

func TestConsoleDashboardSummary(t *testing.T) {
	ctx := context.Background()
	c, _ := newSignedConsole(t)

	o := c.LoadDashboard(ctx)
	if err := o.Err(); err != nil {
		t.Fatalf("LoadDashboard: %v", err)
	}
	if o.Summary.ActiveUsers != 1 || o.Summary.APIStatus != "Online" {
		t.Fatalf("unexpected summary %+v", o.Summary)
	}
	if len(o.Activity) == 0 {
		t.Fatal("expected the seed and login in the activity feed")
	}
}

func TestConsoleRefreshStoresNewToken(t *testing.T) {
	ctx := context.Background()
	c, _ := newSignedConsole(t)

	before, err := c.Sessions.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	after, err := c.Auth.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if after.AccessToken == "" || after.AccessToken == before.AccessToken {
		t.Fatal("refresh did not issue a new access token")
	}
	if session.AccessToken(c.Sessions) != after.AccessToken || after.RefreshToken != before.RefreshToken {
		t.Fatalf("session not updated: %+v", after)
	}
	if _, err := c.Auth.Me(ctx); err != nil {
		t.Fatalf("Me with refreshed token: %v", err)
	}

	// an hour from now the stored token has expired
	refreshed, err := c.RefreshIfExpired(ctx, time.Now().Add(time.Hour))
	if err != nil || !refreshed {
		t.Fatalf("RefreshIfExpired = %v, %v", refreshed, err)
	}
	if refreshed, err := c.RefreshIfExpired(ctx, time.Now()); err != nil || refreshed {
		t.Fatalf("fresh token refreshed: %v, %v", refreshed, err)
	}
}

func TestConsoleTenantSignupGoesToLogin(t *testing.T) {
	ctx := context.Background()
	c, nav := newConsole(t)

	f := c.NewTenantSignupForm()
	f.Set("business_name", "Zen Capital")
	f.Set("contact_person", "Ravi Kumar")
	f.Set("mobile_no", "9123456780")
	f.Set("email", "owner@zen.in")
	f.Set("address", "4 Residency Road, Bengaluru")
	f.Set("loan_product", "Gold")
	f.Set("password", "Zen#Capital1")
	f.Set("confirm_password", "Zen#Capital1")
	out, err := f.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit: %v (field errors %v)", err, f.FieldErrors())
	}
	if nav.Last() != console.RouteLogin {
		t.Fatalf("expected navigation to login, got %q", nav.Last())
	}
	user, _ := out["user"].(map[string]any)
	if user == nil || user["email"] != "owner@zen.in" || user["password"] != nil {
		t.Fatalf("unexpected signup answer %v", out)
	}

	if _, err := c.Auth.Login(ctx, "owner@zen.in", "Zen#Capital1", false); err != nil {
		t.Fatalf("Login as new owner: %v", err)
	}
	info, err := c.SessionInfo()
	if err != nil {
		t.Fatalf("SessionInfo: %v", err)
	}
	if info.TenantID == "" || info.Email != "owner@zen.in" || info.ExpiresAt.IsZero() {
		t.Fatalf("unexpected session info %+v", info)
	}
}

func TestConsoleTenantSignupCollectsAllErrors(t *testing.T) {
	c, nav := newConsole(t)

	f := c.NewTenantSignupForm()
	f.Set("business_name", "Zen Capital")
	f.Set("password", "weakpassword")
	f.Set("confirm_password", "other")
	if _, err := f.Submit(context.Background()); err == nil {
		t.Fatal("expected validation errors")
	}
	errs := f.FieldErrors()
	for _, field := range []string{"contact_person", "mobile_no", "email", "address", "loan_product", "password"} {
		if errs[field] == "" {
			t.Fatalf("missing error for %s in %v", field, errs)
		}
	}
	if nav.Last() != "" {
		t.Fatalf("invalid signup navigated to %q", nav.Last())
	}
}

func TestConsoleChangePasswordAndActivity(t *testing.T) {
	ctx := context.Background()
	c, _ := newSignedConsole(t)

	err := c.Auth.ChangePassword(ctx, "not-my-password", "Another#123")
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || len(apiErr.FieldErrors["old_password"]) == 0 {
		t.Fatalf("expected an old_password field error, got %v", err)
	}
	if !c.Signed() {
		t.Fatal("a rejected password change must keep the session")
	}
	if err := c.Auth.ChangePassword(ctx, "Secret#123", "Another#123"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := c.Auth.Login(ctx, "root@brd.in", "Secret#123", false); err == nil {
		t.Fatal("old password still accepted")
	}
	if _, err := c.Auth.Login(ctx, "root@brd.in", "Another#123", false); err != nil {
		t.Fatalf("Login with new password: %v", err)
	}

	rows, err := c.Auth.LoginActivity(ctx)
	if err != nil {
		t.Fatalf("LoginActivity: %v", err)
	}
	if len(rows) != 2 || rows[0].String("email") != "root@brd.in" {
		t.Fatalf("unexpected activity %v", rows)
	}
}

func TestConsoleTwoFactorEnrolment(t *testing.T) {
	ctx := context.Background()
	c, _ := newSignedConsole(t)

	setup, err := c.Auth.Setup2FA(ctx)
	if err != nil {
		t.Fatalf("Setup2FA: %v", err)
	}
	if !strings.HasPrefix(setup.QRCode, "data:image/png;base64,") || setup.Secret == "" {
		t.Fatalf("unexpected setup %+v", setup)
	}
	if !strings.HasPrefix(setup.URI, "otpauth://totp/") {
		t.Fatalf("unexpected uri %q", setup.URI)
	}

	if err := c.Auth.Verify2FA(ctx, "000000"); err == nil {
		t.Fatal("wrong code accepted")
	}
	code, err := totp.GenerateCodeCustom(setup.Secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom: %v", err)
	}
	if err := c.Auth.Verify2FA(ctx, code); err != nil {
		t.Fatalf("Verify2FA: %v", err)
	}
	me, err := c.Auth.Me(ctx)
	if err != nil || me["two_factor_enabled"] != true {
		t.Fatalf("2fa not enabled: %v, %v", me, err)
	}
	if _, leaked := me["otp_secret"]; leaked {
		t.Fatal("otp secret exposed by users/me/")
	}

	if err := c.Auth.Disable2FA(ctx); err != nil {
		t.Fatalf("Disable2FA: %v", err)
	}
	if me, err := c.Auth.Me(ctx); err != nil || me["two_factor_enabled"] != false {
		t.Fatalf("2fa still enabled: %v, %v", me, err)
	}
}
