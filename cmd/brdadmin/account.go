package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"brdconsole.org/internal/console"
	"brdconsole.org/internal/validate"
)

const pngDataPrefix = "data:image/png;base64,"

// refreshExpired renews an expired access token before commands that call
// the API. A failed refresh is left to the command: its own 401 clears the
// session.
func (a *app) refreshExpired(ctx context.Context) {
	refreshed, err := a.console.RefreshIfExpired(ctx, time.Now())
	switch {
	case err != nil:
		a.logger.Debug().Err(err).Msg("token refresh failed")
	case refreshed:
		a.logger.Debug().Msg("token refreshed")
	}
}

func (a *app) refresh(ctx context.Context) error {
	if _, err := a.console.Auth.Refresh(ctx); err != nil {
		return err
	}
	info, err := a.console.SessionInfo()
	if err != nil {
		return err
	}
	if info.ExpiresAt.IsZero() {
		fmt.Fprintln(a.out, "access token refreshed")
		return nil
	}
	fmt.Fprintf(a.out, "access token refreshed; expires %s\n", info.ExpiresAt.Format(time.RFC3339))
	return nil
}

func (a *app) password(ctx context.Context, args []string) error {
	fs := a.flagSet("password")
	oldPassword := fs.String("old", "", "current password")
	newPassword := fs.String("new", "", "new password")
	if _, err := parseInterleaved(fs, args); err != nil {
		return err
	}
	if *oldPassword == "" || *newPassword == "" {
		return usagef("password needs -old and -new")
	}
	if err := validate.ValidatePassword(*newPassword); err != nil {
		return &validate.FieldError{Field: "new_password", Message: err.Error()}
	}
	if err := a.console.Auth.ChangePassword(ctx, *oldPassword, *newPassword); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "password changed")
	return nil
}

func (a *app) activity(ctx context.Context) error {
	rows, err := a.console.Auth.LoginActivity(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(rows)
}

func (a *app) twoFactor(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usagef("2fa needs setup, verify or disable")
	}
	switch args[0] {
	case "setup":
		fs := a.flagSet("2fa setup")
		qrFile := fs.String("qr", "", "write the QR code PNG to this file")
		if _, err := parseInterleaved(fs, args[1:]); err != nil {
			return err
		}
		setup, err := a.console.Auth.Setup2FA(ctx)
		if err != nil {
			return err
		}
		if *qrFile != "" {
			if err := writeQR(*qrFile, setup.QRCode); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "qr code written to %s\n", *qrFile)
		}
		if setup.Secret != "" {
			fmt.Fprintf(a.out, "secret: %s\n", setup.Secret)
		}
		if setup.URI != "" {
			fmt.Fprintf(a.out, "uri: %s\n", setup.URI)
		}
		fmt.Fprintln(a.out, "confirm with: brdadmin 2fa verify <code>")
		return nil
	case "verify":
		if len(args) != 2 {
			return usagef("2fa verify needs the six digit code")
		}
		if err := a.console.Auth.Verify2FA(ctx, strings.TrimSpace(args[1])); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "two-factor authentication enabled")
		return nil
	case "disable":
		if err := a.console.Auth.Disable2FA(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "two-factor authentication disabled")
		return nil
	}
	return usagef("unknown 2fa action %q", args[0])
}

func writeQR(path, dataURL string) error {
	if !strings.HasPrefix(dataURL, pngDataPrefix) {
		return errors.New("backend did not return a PNG QR code")
	}
	img, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, pngDataPrefix))
	if err != nil {
		return fmt.Errorf("decode qr code: %w", err)
	}
	return os.WriteFile(path, img, 0o600)
}

// signup registers a new organisation through the self-service form. It
// needs no session.
func (a *app) signup(ctx context.Context, args []string) error {
	pos, payload, err := a.payloadFlags("signup", args)
	if err != nil {
		return err
	}
	if len(pos) != 0 {
		return usagef("signup takes no positional arguments")
	}
	f := a.console.NewTenantSignupForm()
	fill(f, payload)
	if _, err := f.Submit(ctx); err != nil {
		return err
	}
	if a.nav.Last() == console.RouteLogin {
		fmt.Fprintf(a.out, "organisation registered; sign in with: brdadmin login -email %s\n", f.Draft().Values()["email"])
	}
	return nil
}
