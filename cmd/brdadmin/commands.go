package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"brdconsole.org/internal/console"
	"brdconsole.org/internal/form"
	"brdconsole.org/internal/resource"
)

// pairs collects repeated k=v flags.
type pairs []string

func (p *pairs) String() string { return strings.Join(*p, ",") }

func (p *pairs) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	*p = append(*p, v)
	return nil
}

func (p pairs) split() [][2]string {
	out := make([][2]string, 0, len(p))
	for _, kv := range p {
		k, v, _ := strings.Cut(kv, "=")
		out = append(out, [2]string{strings.TrimSpace(k), v})
	}
	return out
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// parseInterleaved parses flags that may follow positional arguments.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, err
			}
			return nil, usageError{msg: err.Error()}
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := a.flagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password; read from stdin when empty")
	remember := fs.Bool("remember", true, "keep the session in the session file")
	if _, err := parseInterleaved(fs, args); err != nil {
		return err
	}
	if *email == "" {
		return usagef("login needs -email")
	}
	if *password == "" {
		fmt.Fprint(a.errOut, "password: ")
		line, _ := a.in.ReadString('\n')
		*password = strings.TrimRight(line, "\r\n")
	}
	s, err := a.console.Auth.Login(ctx, *email, *password, *remember)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "signed in as %s\n", s.User.DisplayName())
	if !*remember {
		fmt.Fprintln(a.errOut, "session not remembered; it ends with this process")
	}
	return nil
}

func (a *app) logout() error {
	if err := a.console.Auth.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "signed out")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	me, err := a.console.Auth.Me(ctx)
	if err != nil {
		return err
	}
	info, err := a.console.SessionInfo()
	if err != nil {
		return err
	}
	return a.printJSON(map[string]any{"user": me, "session": info})
}

func (a *app) resources() error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPATH\tUPDATE\tKEY")
	for _, name := range resource.Names() {
		s := resource.Catalog[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Path, s.UpdateMethod, s.IDField)
	}
	return tw.Flush()
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := a.flagSet("list")
	var filters pairs
	fs.Var(&filters, "filter", "query filter key=value (repeatable)")
	limit := fs.Int("limit", 0, "maximum number of rows")
	pos, err := parseInterleaved(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usagef("list needs a resource name")
	}
	svc, err := a.console.Records(pos[0])
	if err != nil {
		return err
	}
	q := url.Values{}
	for _, kv := range filters.split() {
		q.Add(kv[0], kv[1])
	}
	if *limit > 0 {
		q.Set("limit", strconv.Itoa(*limit))
	}
	rows, err := svc.List(ctx, q)
	if err != nil {
		return err
	}
	return a.printJSON(rows)
}

func (a *app) get(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usagef("get needs a resource name and an id")
	}
	svc, err := a.console.Records(args[0])
	if err != nil {
		return err
	}
	d := form.NewDetail[resource.Record](svc)
	rec, err := d.Load(ctx, args[1])
	if err != nil {
		return err
	}
	return a.printJSON(rec)
}

// payloadFlags reads -f, -set and -json into one payload. -set values stay
// strings so phone numbers and ids keep their digits; -json values are
// decoded, as are the fields of the -f file.
func (a *app) payloadFlags(name string, args []string) ([]string, map[string]any, error) {
	fs := a.flagSet(name)
	file := fs.String("f", "", "JSON file with the record")
	var sets, typed pairs
	fs.Var(&sets, "set", "text field key=value (repeatable)")
	fs.Var(&typed, "json", "JSON field key=value, e.g. amount=999 (repeatable)")
	pos, err := parseInterleaved(fs, args)
	if err != nil {
		return nil, nil, err
	}
	if *file == "" && len(sets) == 0 && len(typed) == 0 {
		return nil, nil, usagef("%s needs -f, -set or -json", name)
	}
	payload := map[string]any{}
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			return nil, nil, err
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, nil, fmt.Errorf("parse %s: %w", *file, err)
		}
	}
	for _, kv := range sets.split() {
		payload[kv[0]] = kv[1]
	}
	for _, kv := range typed.split() {
		var v any
		if err := json.Unmarshal([]byte(kv[1]), &v); err != nil {
			return nil, nil, usagef("-json %s: %v", kv[0], err)
		}
		payload[kv[0]] = v
	}
	return pos, payload, nil
}

// fill copies payload into a form draft with its JSON types intact. The
// branch code goes last so a given code wins over the suggested one.
func fill(f console.Form, payload map[string]any) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k != "branch_code" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := payload["branch_code"]; ok {
		keys = append(keys, "branch_code")
	}
	for _, k := range keys {
		f.Set(k, payload[k])
	}
}

func (a *app) create(ctx context.Context, args []string) error {
	pos, payload, err := a.payloadFlags("create", args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usagef("create needs a resource name")
	}
	name := pos[0]
	svc, err := a.console.Records(name)
	if err != nil {
		return err
	}

	// collections with a console page are validated locally first
	f, err := a.console.NewForm(ctx, name)
	if errors.Is(err, console.ErrNoForm) {
		saved, err := svc.Create(ctx, payload)
		if err != nil {
			return err
		}
		return a.printJSON(saved)
	}
	if err != nil {
		return err
	}
	fill(f, payload)
	saved, err := f.Submit(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(saved)
}

func (a *app) update(ctx context.Context, args []string) error {
	pos, payload, err := a.payloadFlags("update", args)
	if err != nil {
		return err
	}
	if len(pos) != 2 {
		return usagef("update needs a resource name and an id")
	}
	name, id := pos[0], pos[1]
	svc, err := a.console.Records(name)
	if err != nil {
		return err
	}

	f, err := a.console.EditForm(ctx, name, id)
	if errors.Is(err, console.ErrNoForm) {
		saved, err := svc.Update(ctx, id, payload)
		if err != nil {
			return err
		}
		return a.printJSON(saved)
	}
	if err != nil {
		return err
	}
	fill(f, payload)
	saved, err := f.Submit(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(saved)
}

func (a *app) remove(ctx context.Context, args []string) error {
	fs := a.flagSet("delete")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	pos, err := parseInterleaved(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 2 {
		return usagef("delete needs a resource name and an id")
	}
	name, id := pos[0], pos[1]
	svc, err := a.console.Records(name)
	if err != nil {
		return err
	}
	if !*yes && !a.confirm(fmt.Sprintf("Delete %s %s?", name, id)) {
		fmt.Fprintln(a.out, "cancelled")
		return nil
	}
	if err := svc.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s %s\n", name, id)
	return nil
}

func (a *app) dashboard(ctx context.Context) error {
	o := a.console.LoadDashboard(ctx)
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	s := o.Summary
	fmt.Fprintf(tw, "Organizations\t%d\n", s.TotalOrganizations)
	fmt.Fprintf(tw, "Branches\t%d\n", s.TotalBranches)
	fmt.Fprintf(tw, "Active users\t%d\n", s.ActiveUsers)
	fmt.Fprintf(tw, "Active loans\t%d\n", s.ActiveLoans)
	fmt.Fprintf(tw, "Daily disbursement\t%s\n", s.DailyDisbursement)
	fmt.Fprintf(tw, "API status\t%s\n", s.APIStatus)
	fmt.Fprintf(tw, "Alerts\t%d\n", s.Alerts)
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(o.Activity) > 0 {
		fmt.Fprintln(a.out, "\nRecent activity:")
		for _, e := range o.Activity {
			fmt.Fprintf(a.out, "  %s  %-6s %s %s\n", e.String("timestamp"), e.String("action_type"), e.String("module"), e.String("description"))
		}
	}
	for _, err := range []error{o.SummaryErr, o.OrganizationsErr, o.BranchesErr, o.ActivityErr} {
		if err != nil {
			fmt.Fprintf(a.errOut, "warning: %v\n", err)
		}
	}
	return nil
}

func (a *app) permissions(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usagef("permissions needs get, set or preset and a role id")
	}
	roleID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return usagef("role id %q is not a number", args[1])
	}
	m := a.console.NewPermissionMatrix(roleID)
	if err := m.Load(ctx); err != nil {
		return err
	}
	switch args[0] {
	case "get":
		return a.printPermissions(m)
	case "set":
		if len(args) < 3 {
			return usagef("permissions set needs key=true|false pairs")
		}
		current := m.Permissions()
		for _, kv := range args[2:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return usagef("expected key=true|false, got %q", kv)
			}
			want, err := strconv.ParseBool(v)
			if err != nil {
				return usagef("%s: %q is not a boolean", k, v)
			}
			if current[k] != want {
				if err := m.Toggle(k); err != nil {
					return fmt.Errorf("%s: %w", k, err)
				}
			}
		}
	case "preset":
		if len(args) != 3 {
			return usagef("permissions preset needs a preset name (%s)", strings.Join(console.PresetNames(), ", "))
		}
		if err := m.Apply(args[2]); err != nil {
			return err
		}
	default:
		return usagef("unknown permissions action %q", args[0])
	}
	if err := m.Save(ctx); err != nil {
		return err
	}
	return a.printPermissions(m)
}

func (a *app) printPermissions(m *console.PermissionMatrix) error {
	perms := m.Permissions()
	labels := make(map[string]string, len(console.Permissions))
	for _, p := range console.Permissions {
		labels[p.Key] = p.Label
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, group := range console.PermissionGroups {
		fmt.Fprintf(tw, "%s\n", group.Title)
		for _, key := range group.Keys {
			mark := " "
			if perms[key] {
				mark = "x"
			}
			fmt.Fprintf(tw, "  [%s]\t%s\t%s\n", mark, key, labels[key])
		}
	}
	return tw.Flush()
}

func (a *app) branchCode(args []string) error {
	if len(args) != 2 {
		return usagef("branch-code needs an organization name and a branch name")
	}
	fmt.Fprintln(a.out, console.SuggestBranchCode(args[0], args[1], time.Now()))
	return nil
}
