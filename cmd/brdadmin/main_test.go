package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"brdconsole.org/internal/auth"
	"brdconsole.org/internal/mockapi"
	"brdconsole.org/internal/store"
)

type cli struct {
	t *testing.T
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	signer, err := auth.NewSigner("cli-secret", 15*time.Minute, time.Hour)
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

	t.Setenv("BRD_PROFILE", "")
	t.Setenv("BRD_API_BASE_URL", srv.URL+"/api/v1/")
	t.Setenv("BRD_API_AUTH_URL", srv.URL+"/api/")
	t.Setenv("BRD_SESSION_FILE", filepath.Join(t.TempDir(), "session.json"))
	t.Setenv("BRD_LOG_LEVEL", "error")
	return &cli{t: t}
}

func (c *cli) run(stdin string, args ...string) (int, string, string) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	args = append([]string{"-env-file", filepath.Join(c.t.TempDir(), "none.env")}, args...)
	code := run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestLoginWhoamiLogout(t *testing.T) {
	c := newCLI(t)
	code, out, errOut := c.run("", "login", "-email", "root@brd.in", "-password", "Secret#123")
	if code != 0 || !strings.Contains(out, "root@brd.in") {
		t.Fatalf("login: %d %q %q", code, out, errOut)
	}

	code, out, errOut = c.run("", "whoami")
	if code != 0 {
		t.Fatalf("whoami: %d %q", code, errOut)
	}
	var me struct {
		User    map[string]any `json:"user"`
		Session struct {
			Email     string `json:"email"`
			ExpiresAt string `json:"expires_at"`
		} `json:"session"`
	}
	if err := json.Unmarshal([]byte(out), &me); err != nil || me.User["role"] != "MASTER_ADMIN" {
		t.Fatalf("whoami output %q: %v", out, err)
	}
	if me.Session.Email != "root@brd.in" || me.Session.ExpiresAt == "" {
		t.Fatalf("whoami session %+v", me.Session)
	}

	if code, _, _ := c.run("", "logout"); code != 0 {
		t.Fatalf("logout: %d", code)
	}
	if code, _, _ := c.run("", "whoami"); code != 1 {
		t.Fatalf("whoami after logout: %d", code)
	}
}

func TestLoginReadsPasswordFromStdin(t *testing.T) {
	c := newCLI(t)
	if code, _, errOut := c.run("Secret#123\n", "login", "-email", "root@brd.in"); code != 0 {
		t.Fatalf("login: %d %q", code, errOut)
	}
	code, _, errOut := c.run("", "login", "-email", "root@brd.in", "-password", "wrong-one")
	if code != 1 || !strings.Contains(errOut, "No active account") {
		t.Fatalf("bad login: %d %q", code, errOut)
	}
}

func TestCreateListDelete(t *testing.T) {
	c := newCLI(t)
	c.run("", "login", "-email", "root@brd.in", "-password", "Secret#123")

	code, out, errOut := c.run("", "create", "organizations",
		"-set", "business_name=Acme Finance",
		"-set", "email=ops@acme.in",
		"-set", "mobile_no=9876543210",
		"-set", "address=12 MG Road, Pune",
		"-set", "contact_person=Asha Rao",
		"-set", "password=secret123",
	)
	if code != 0 {
		t.Fatalf("create: %d %q", code, errOut)
	}
	var created map[string]any
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("create output %q: %v", out, err)
	}
	if created["name"] != "Acme Finance" || created["tenant_type"] != "NBFC" {
		t.Fatalf("unexpected record %v", created)
	}

	code, out, _ = c.run("", "list", "organizations")
	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); code != 0 || err != nil || len(rows) != 1 {
		t.Fatalf("list: %d %q %v", code, out, err)
	}

	if code, out, _ := c.run("n\n", "delete", "organizations", "1"); code != 0 || !strings.Contains(out, "cancelled") {
		t.Fatalf("declined delete: %d %q", code, out)
	}
	if code, out, _ := c.run("", "delete", "organizations", "1", "-yes"); code != 0 || !strings.Contains(out, "deleted") {
		t.Fatalf("delete: %d %q", code, out)
	}
	code, out, _ = c.run("", "list", "organizations")
	if err := json.Unmarshal([]byte(out), &rows); code != 0 || err != nil || len(rows) != 0 {
		t.Fatalf("list after delete: %d %q", code, out)
	}
}

func TestCreateReportsFieldErrors(t *testing.T) {
	c := newCLI(t)
	c.run("", "login", "-email", "root@brd.in", "-password", "Secret#123")

	code, _, errOut := c.run("", "create", "organizations",
		"-set", "business_name=Acme",
		"-set", "email=ops@acme.in",
		"-set", "mobile_no=123",
		"-set", "address=Pune",
		"-set", "contact_person=Asha",
		"-set", "password=secret123",
	)
	if code != 1 || !strings.Contains(errOut, "mobile_no:") {
		t.Fatalf("expected a mobile_no field error, got %d %q", code, errOut)
	}
	_, out, _ := c.run("", "list", "organizations")
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("invalid form reached the backend: %q", out)
	}
}

func TestPermissionsPreset(t *testing.T) {
	c := newCLI(t)
	c.run("", "login", "-email", "root@brd.in", "-password", "Secret#123")
	if code, _, errOut := c.run("", "create", "roles", "-set", "name=Approver"); code != 0 {
		t.Fatalf("create role: %d %q", code, errOut)
	}

	code, out, errOut := c.run("", "permissions", "preset", "1", "view")
	if code != 0 || !strings.Contains(out, "[x]  view_docs") {
		t.Fatalf("preset: %d %q %q", code, out, errOut)
	}
	code, out, _ = c.run("", "permissions", "set", "1", "loan_create=true", "view_docs=false")
	if code != 0 || !strings.Contains(out, "[x]  loan_create") || !strings.Contains(out, "[ ]  view_docs") {
		t.Fatalf("set: %d %q", code, out)
	}
	if code, _, _ := c.run("", "permissions", "preset", "1", "nope"); code != 1 {
		t.Fatalf("unknown preset: %d", code)
	}
}

func TestUsageErrors(t *testing.T) {
	c := newCLI(t)
	for _, args := range [][]string{
		{},
		{"frobnicate"},
		{"get", "organizations"},
		{"create", "organizations"},
		{"permissions", "get", "x"},
		{"list", "-bogus", "organizations"},
		{"update", "organizations", "1"},
		{"create", "holidays", "-json", "amount=abc"},
		{"password"},
		{"2fa"},
		{"2fa", "verify"},
	} {
		if code, _, errOut := c.run("", args...); code != 2 {
			t.Errorf("%v: exit %d, stderr %q", args, code, errOut)
		}
	}
}

func TestBranchCodeAndResources(t *testing.T) {
	c := newCLI(t)
	code, out, _ := c.run("", "branch-code", "Acme Finance", "north zone")
	if code != 0 || !strings.HasPrefix(out, "ACM-NOR-") {
		t.Fatalf("branch-code: %d %q", code, out)
	}
	code, out, _ = c.run("", "resources")
	if code != 0 || !strings.Contains(out, "adminpanel/role-master/") {
		t.Fatalf("resources: %d %q", code, out)
	}
}

func createOrganization(t *testing.T, c *cli) {
	t.Helper()
	code, _, errOut := c.run("", "create", "organizations",
		"-set", "business_name=Acme Finance",
		"-set", "email=ops@acme.in",
		"-set", "mobile_no=9876543210",
		"-set", "address=12 MG Road, Pune",
		"-set", "contact_person=Asha Rao",
		"-set", "password=secret123",
	)
	if code != 0 {
		t.Fatalf("create: %d %q", code, errOut)
	}
}

func TestUpdateValidatesBeforeSaving(t *testing.T) {
	c := newCLI(t)
	c.run("", "login", "-email", "root@brd.in", "-password", "Secret#123")
	createOrganization(t, c)

	code, _, errOut := c.run("", "update", "organizations", "1", "-set", "mobile_no=123")
	if code != 1 || !strings.Contains(errOut, "mobile_no:") {
		t.Fatalf("expected a mobile_no field error, got %d %q", code, errOut)
	}
	_, out, _ := c.run("", "get", "organizations", "1")
	var rec map[string]any
	if err := json.Unmarshal([]byte(out), &rec); err != nil || rec["phone"] != "9876543210" {
		t.Fatalf("invalid update reached the backend: %q %v", out, err)
	}

	code, out, errOut = c.run("", "update", "organizations", "1", "-set", "mobile_no=9123456780")
	if code != 0 {
		t.Fatalf("update: %d %q", code, errOut)
	}
	if err := json.Unmarshal([]byte(out), &rec); err != nil || rec["phone"] != "9123456780" || rec["name"] != "Acme Finance" {
		t.Fatalf("unexpected update answer %q %v", out, err)
	}
}

func TestCreateKeepsValueTypes(t *testing.T) {
	c := newCLI(t)
	c.run("", "login", "-email", "root@brd.in", "-password", "Secret#123")

	code, out, errOut := c.run("", "create", "subscriptions",
		"-set", "subscription_name=Gold",
		"-json", "subscription_amount=999",
		"-json", "no_of_borrowers=10",
	)
	if code != 0 {
		t.Fatalf("create subscription: %d %q", code, errOut)
	}
	var sub map[string]any
	if err := json.Unmarshal([]byte(out), &sub); err != nil {
		t.Fatalf("output %q: %v", out, err)
	}
	if sub["subscription_amount"] != float64(999) || sub["no_of_borrowers"] != float64(10) {
		t.Fatalf("numbers were not kept: %v", sub)
	}
	if sub["type_of"] != "Monthly" || sub["isDeleted"] != false {
		t.Fatalf("page defaults missing: %v", sub)
	}

	// -set is text, so a leading zero survives
	code, out, errOut = c.run("", "create", "holidays",
		"-set", "name=Diwali",
		"-set", "holiday_date=2025-10-20",
		"-set", "contact=0987654321",
	)
	if code != 0 {
		t.Fatalf("create holiday: %d %q", code, errOut)
	}
	var holiday map[string]any
	if err := json.Unmarshal([]byte(out), &holiday); err != nil || holiday["contact"] != "0987654321" {
		t.Fatalf("text value changed: %q %v", out, err)
	}
}

func TestSignupPointsToLogin(t *testing.T) {
	c := newCLI(t)
	code, out, errOut := c.run("", "signup",
		"-set", "business_name=Zen Capital",
		"-set", "contact_person=Ravi Kumar",
		"-set", "mobile_no=9123456780",
		"-set", "email=owner@zen.in",
		"-set", "address=4 Residency Road, Bengaluru",
		"-set", "loan_product=Gold",
		"-set", "password=Zen#Capital1",
		"-set", "confirm_password=Zen#Capital1",
	)
	if code != 0 || !strings.Contains(out, "brdadmin login -email owner@zen.in") {
		t.Fatalf("signup: %d %q %q", code, out, errOut)
	}
	if code, _, errOut := c.run("", "login", "-email", "owner@zen.in", "-password", "Zen#Capital1"); code != 0 {
		t.Fatalf("login as new owner: %d %q", code, errOut)
	}

	code, _, errOut = c.run("", "signup", "-set", "business_name=Zen Capital", "-set", "password=Zen#Capital1")
	if code != 1 || !strings.Contains(errOut, "email:") || !strings.Contains(errOut, "confirm_password:") {
		t.Fatalf("expected every field error, got %d %q", code, errOut)
	}
}

func TestRefreshPasswordAndActivity(t *testing.T) {
	c := newCLI(t)
	if code, _, _ := c.run("", "refresh"); code != 1 {
		t.Fatalf("refresh without a session: %d", code)
	}
	c.run("", "login", "-email", "root@brd.in", "-password", "Secret#123")

	code, out, errOut := c.run("", "refresh")
	if code != 0 || !strings.Contains(out, "access token refreshed; expires ") {
		t.Fatalf("refresh: %d %q %q", code, out, errOut)
	}

	code, _, errOut = c.run("", "password", "-old", "Secret#123", "-new", "short")
	if code != 1 || !strings.Contains(errOut, "new_password:") {
		t.Fatalf("short password: %d %q", code, errOut)
	}
	code, _, errOut = c.run("", "password", "-old", "wrong-one", "-new", "Another#123")
	if code != 1 || !strings.Contains(errOut, "old_password:") {
		t.Fatalf("wrong old password: %d %q", code, errOut)
	}
	code, out, errOut = c.run("", "password", "-old", "Secret#123", "-new", "Another#123")
	if code != 0 || !strings.Contains(out, "password changed") {
		t.Fatalf("password: %d %q %q", code, out, errOut)
	}
	if code, _, errOut := c.run("", "login", "-email", "root@brd.in", "-password", "Another#123"); code != 0 {
		t.Fatalf("login with new password: %d %q", code, errOut)
	}

	code, out, errOut = c.run("", "activity")
	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); code != 0 || err != nil || len(rows) != 2 {
		t.Fatalf("activity: %d %q %q %v", code, out, errOut, err)
	}
}

func TestTwoFactorCommands(t *testing.T) {
	c := newCLI(t)
	c.run("", "login", "-email", "root@brd.in", "-password", "Secret#123")

	qr := filepath.Join(t.TempDir(), "qr.png")
	code, out, errOut := c.run("", "2fa", "setup", "-qr", qr)
	if code != 0 {
		t.Fatalf("2fa setup: %d %q", code, errOut)
	}
	img, err := os.ReadFile(qr)
	if err != nil || !bytes.HasPrefix(img, []byte("\x89PNG")) {
		t.Fatalf("qr file is not a PNG: %v", err)
	}
	var secret string
	for _, line := range strings.Split(out, "\n") {
		if s, ok := strings.CutPrefix(line, "secret: "); ok {
			secret = s
		}
	}
	if secret == "" {
		t.Fatalf("no secret in %q", out)
	}

	code, _, errOut = c.run("", "2fa", "verify", "000000")
	if code != 1 || !strings.Contains(errOut, "code:") {
		t.Fatalf("wrong code: %d %q", code, errOut)
	}
	totpCode, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom: %v", err)
	}
	if code, out, errOut := c.run("", "2fa", "verify", totpCode); code != 0 || !strings.Contains(out, "enabled") {
		t.Fatalf("2fa verify: %d %q %q", code, out, errOut)
	}
	if code, out, _ := c.run("", "2fa", "disable"); code != 0 || !strings.Contains(out, "disabled") {
		t.Fatalf("2fa disable: %d %q", code, out)
	}
}
