package mockapi

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"net/http"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"brdconsole.org/internal/audit"
	"brdconsole.org/internal/resource"
	"brdconsole.org/internal/store"
)

const (
	totpIssuer = "BRD Console"
	qrSize     = 200
)

// authenticator apps expect SHA-1, six digits and a 30 s step; one step of
// clock skew either side is accepted.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type verifyRequest struct {
	Code string `json:"code"`
}

// handle2FASetup stores a fresh secret (not yet enabled) and returns the
// provisioning QR code as a PNG data URL.
func (a *API) handle2FASetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: store.Text(user["email"]),
		Period:      totpOpts.Period,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "secret generation failed")
		return
	}
	qr, err := qrDataURL(key)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "qr code rendering failed")
		return
	}
	user["otp_secret"] = key.Secret()
	user["two_factor_enabled"] = false
	if err := a.store.Replace(r.Context(), usersCollection, store.Text(user["id"]), user); err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"qr_code": qr,
		"secret":  key.Secret(),
		"uri":     key.URL(),
	})
}

func (a *API) handle2FAVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	secret := store.Text(user["otp_secret"])
	if secret == "" {
		writeError(w, r, http.StatusBadRequest, "two-factor setup has not been started")
		return
	}
	if !validTOTP(secret, req.Code, a.now()) {
		writeFieldError(w, "code", "Invalid verification code.")
		return
	}
	a.setTwoFactor(w, r, user, true)
}

func (a *API) handle2FADisable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	delete(user, "otp_secret")
	a.setTwoFactor(w, r, user, false)
}

func (a *API) setTwoFactor(w http.ResponseWriter, r *http.Request, user store.Record, enabled bool) {
	id := store.Text(user["id"])
	user["two_factor_enabled"] = enabled
	if err := a.store.Replace(r.Context(), usersCollection, id, user); err != nil {
		handleStoreError(w, r, err)
		return
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	a.audit(r.Context(), audit.Event{
		Action:      audit.ActionUpdate,
		Module:      resource.Users,
		ResourceID:  id,
		Description: "two-factor authentication " + state,
	})
	writeJSON(w, http.StatusOK, map[string]any{"two_factor_enabled": enabled})
}

// qrDataURL renders the provisioning URI as a PNG data URL.
func qrDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func validTOTP(secret, code string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now, totpOpts)
	return err == nil && ok
}
