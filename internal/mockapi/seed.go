package mockapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"brdconsole.org/internal/auth"
	"brdconsole.org/internal/obs"
	"brdconsole.org/internal/store"
)

// defaultSettings mirrors the PostgreSQL seed so both stores start alike.
var defaultSettings = []store.Record{
	{"id": "loan.max_tenure_months", "category": "loan", "key": "max_tenure_months", "value": "60"},
	{"id": "loan.default_interest_rate", "category": "loan", "key": "default_interest_rate", "value": "12.5"},
	{"id": "system.maintenance_mode", "category": "system", "key": "maintenance_mode", "value": "false"},
	{"id": "notify.email_enabled", "category": "notify", "key": "email_enabled", "value": "true"},
}

// Seed prepares an empty store: default settings and, when email is set, a
// master administrator. Existing rows are left alone.
func (a *API) Seed(ctx context.Context, email, password string) error {
	for _, rec := range defaultSettings {
		err := a.store.Insert(ctx, settingsCollection, store.Text(rec["id"]), rec)
		if err != nil && !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("seed settings: %w", err)
		}
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	if _, err := a.userByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	_, err := a.insertUser(ctx, store.Record{
		"email":      email,
		"password":   password,
		"role":       auth.RoleMasterAdmin,
		"first_name": "Master",
		"last_name":  "Admin",
		"is_active":  true,
	}, true)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	obs.Logger().Info().Str("email", email).Msg("master admin seeded")
	return nil
}
