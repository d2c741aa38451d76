// Command brdadmin drives the BRD admin console from a terminal: sign in,
// browse and edit the catalogue collections, read the dashboard and manage
// role permissions.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"brdconsole.org/internal/apiclient"
	"brdconsole.org/internal/config"
	"brdconsole.org/internal/console"
	"brdconsole.org/internal/form"
	"brdconsole.org/internal/obs"
	"brdconsole.org/internal/session"
	"brdconsole.org/internal/validate"
)

const usageText = `usage: brdadmin [-profile file] [-env-file file] <command> [args]

commands:
  login -email <email> [-password <pw>] [-remember=false]
  logout
  whoami
  refresh
  password -old <pw> -new <pw>
  activity
  2fa setup [-qr file.png] | 2fa verify <code> | 2fa disable
  signup (-f file.json | -set k=v ...)
  resources
  list <resource> [-filter k=v ...] [-limit n]
  get <resource> <id>
  create <resource> (-f file.json | -set k=v ... | -json k=<json> ...)
  update <resource> <id> (-f file.json | -set k=v ... | -json k=<json> ...)
  delete <resource> <id> [-yes]
  dashboard
  permissions get <role-id>
  permissions set <role-id> key=true|false ...
  permissions preset <role-id> <name>
  branch-code <organization> <branch>`

// usageError marks a bad invocation; it exits with status 2.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

type app struct {
	cfg      config.Config
	console  *console.Console
	sessions *session.Manager
	nav      *form.RecordingNavigator
	in       *bufio.Reader
	out      io.Writer
	errOut   io.Writer
	logger   zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("brdadmin", flag.ContinueOnError)
	fs.SetOutput(stderr)
	profile := fs.String("profile", "", "YAML profile (BRD_PROFILE)")
	envFile := fs.String("env-file", "", "dotenv file, .env by default")
	fs.Usage = func() { fmt.Fprintln(stderr, usageText) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(config.Options{ProfilePath: *profile, EnvFile: *envFile})
	if err != nil {
		fmt.Fprintf(stderr, "brdadmin: %v\n", err)
		return 1
	}
	if err := obs.SetLevel(cfg.Log.Level); err != nil {
		fmt.Fprintf(stderr, "brdadmin: %v\n", err)
	}
	// diagnostics go to stderr, results to stdout
	restore := obs.SetOutput(stderr)
	defer restore()

	a, err := newApp(cfg, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "brdadmin: %v\n", err)
		return 1
	}

	err = a.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
	var ue usageError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 2
	case errors.As(err, &ue):
		fmt.Fprintf(stderr, "brdadmin: %s\n\n%s\n", ue.msg, usageText)
		return 2
	default:
		a.printError(err)
		return 1
	}
}

func newApp(cfg config.Config, stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	var persistent session.Store
	if cfg.Session.File != "" {
		fsStore, err := session.NewFileStore(cfg.Session.File)
		if err != nil {
			return nil, err
		}
		persistent = fsStore
	}
	sessions := session.NewManager(persistent)
	nav := &form.RecordingNavigator{}
	c, err := console.New(cfg, sessions, nav, console.Options{})
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:      cfg,
		console:  c,
		sessions: sessions,
		nav:      nav,
		in:       bufio.NewReader(stdin),
		out:      stdout,
		errOut:   stderr,
		logger:   obs.Logger().With().Str("component", "brdadmin").Logger(),
	}, nil
}

// sessionless commands manage the session themselves or need none, so an
// expired token is not refreshed before them.
var sessionless = map[string]bool{
	"login": true, "logout": true, "refresh": true, "signup": true,
	"resources": true, "branch-code": true,
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	if !sessionless[cmd] {
		a.refreshExpired(ctx)
	}
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.logout()
	case "whoami":
		return a.whoami(ctx)
	case "refresh":
		return a.refresh(ctx)
	case "password":
		return a.password(ctx, args)
	case "activity":
		return a.activity(ctx)
	case "2fa":
		return a.twoFactor(ctx, args)
	case "signup":
		return a.signup(ctx, args)
	case "resources":
		return a.resources()
	case "list":
		return a.list(ctx, args)
	case "get":
		return a.get(ctx, args)
	case "create":
		return a.create(ctx, args)
	case "update":
		return a.update(ctx, args)
	case "delete":
		return a.remove(ctx, args)
	case "dashboard":
		return a.dashboard(ctx)
	case "permissions":
		return a.permissions(ctx, args)
	case "branch-code":
		return a.branchCode(args)
	}
	return usagef("unknown command %q", cmd)
}

// printError reports err, one line per field for validation failures.
func (a *app) printError(err error) {
	var (
		verrs  validate.Errors
		ferr   *validate.FieldError
		apiErr *apiclient.APIError
	)
	switch {
	case errors.As(err, &verrs):
		for _, fe := range verrs {
			fmt.Fprintf(a.errOut, "%s: %s\n", fe.Field, fe.Message)
		}
	case errors.As(err, &ferr):
		fmt.Fprintf(a.errOut, "%s: %s\n", ferr.Field, ferr.Message)
	case errors.As(err, &apiErr) && len(apiErr.FieldErrors) > 0:
		fields := make([]string, 0, len(apiErr.FieldErrors))
		for f := range apiErr.FieldErrors {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Fprintf(a.errOut, "%s: %s\n", f, strings.Join(apiErr.FieldErrors[f], "; "))
		}
	default:
		fmt.Fprintf(a.errOut, "brdadmin: %v\n", err)
	}
	if errors.As(err, &apiErr) && apiErr.AuthFailure() {
		fmt.Fprintln(a.errOut, "session cleared; run brdadmin login")
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// confirm asks a yes/no question on the terminal; anything but y/yes is no.
func (a *app) confirm(question string) bool {
	fmt.Fprintf(a.errOut, "%s [y/N] ", question)
	line, _ := a.in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
