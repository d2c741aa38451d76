package console

import (
	"context"
	"sort"

	"brdconsole.org/internal/form"
	"brdconsole.org/internal/resource"
)

// Permission is one entry of the role permission catalogue.
type Permission struct {
	Key   string
	Label string
}

// Permissions is the catalogue in display order.
var Permissions = []Permission{
	{Key: "loan_create", Label: "Loan Create"},
	{Key: "loan_approve", Label: "Loan Approve"},
	{Key: "loan_edit", Label: "Loan Edit"},
	{Key: "view_docs", Label: "View Docs"},
	{Key: "download_docs", Label: "Download Docs"},
	{Key: "edit_policies", Label: "Edit Policies"},
	{Key: "audit_logs", Label: "Audit Logs"},
}

// PermissionGroup is a titled section of the permission page.
type PermissionGroup struct {
	Title string
	Keys  []string
}

var PermissionGroups = []PermissionGroup{
	{Title: "Application Management", Keys: []string{"loan_create", "loan_edit"}},
	{Title: "Approval & Disbursement", Keys: []string{"loan_approve", "edit_policies"}},
	{Title: "Documents & Compliance", Keys: []string{"view_docs", "download_docs", "audit_logs"}},
}

// Presets name the one-click permission bundles. "clear" grants nothing.
var Presets = map[string][]string{
	"full":     {"loan_create", "loan_approve", "loan_edit", "view_docs", "download_docs", "edit_policies", "audit_logs"},
	"view":     {"view_docs", "download_docs", "audit_logs"},
	"approver": {"loan_approve", "loan_edit", "view_docs", "edit_policies", "audit_logs"},
	"clear":    {},
}

// PresetNames returns the preset names sorted.
func PresetNames() []string {
	out := make([]string, 0, len(Presets))
	for name := range Presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// EmptyPermissions returns every catalogue key set to false.
func EmptyPermissions() resource.PermissionSet {
	out := make(resource.PermissionSet, len(Permissions))
	for _, p := range Permissions {
		out[p.Key] = false
	}
	return out
}

// MergePermissions lays saved over the all-false set. Keys outside the
// catalogue are kept so a save does not drop them.
func MergePermissions(saved resource.PermissionSet) resource.PermissionSet {
	out := EmptyPermissions()
	for k, v := range saved {
		out[k] = v
	}
	return out
}

// Preset builds the permission set of a named preset.
func Preset(name string) (resource.PermissionSet, error) {
	keys, ok := Presets[name]
	if !ok {
		return nil, ErrUnknownPreset
	}
	out := EmptyPermissions()
	for _, k := range keys {
		out[k] = true
	}
	return out, nil
}

// PermissionStore is the part of the role service the matrix uses.
type PermissionStore interface {
	Permissions(ctx context.Context, id int64) (resource.PermissionSet, error)
	SavePermissions(ctx context.Context, id int64, perms resource.PermissionSet) (resource.PermissionSet, error)
}

// PermissionMatrix drives the assign-permissions page of one role.
type PermissionMatrix struct {
	store  PermissionStore
	nav    form.Navigator
	roleID int64
	perms  resource.PermissionSet
	state  form.State
	err    error
}

func NewPermissionMatrix(store PermissionStore, nav form.Navigator, roleID int64) *PermissionMatrix {
	return &PermissionMatrix{store: store, nav: nav, roleID: roleID, perms: EmptyPermissions()}
}

func (m *PermissionMatrix) State() form.State { return m.state }
func (m *PermissionMatrix) Err() error        { return m.err }

// Load fetches the saved permissions. On failure the matrix stays all-false
// and Ready.
func (m *PermissionMatrix) Load(ctx context.Context) error {
	m.state = form.Loading
	saved, err := m.store.Permissions(ctx, m.roleID)
	m.state = form.Ready
	m.err = err
	if err != nil {
		m.perms = EmptyPermissions()
		return err
	}
	m.perms = MergePermissions(saved)
	return nil
}

// Permissions returns a copy of the current set.
func (m *PermissionMatrix) Permissions() resource.PermissionSet {
	out := make(resource.PermissionSet, len(m.perms))
	for k, v := range m.perms {
		out[k] = v
	}
	return out
}

// Toggle flips one permission.
func (m *PermissionMatrix) Toggle(key string) error {
	if _, ok := m.perms[key]; !ok {
		return ErrUnknownPermission
	}
	m.perms[key] = !m.perms[key]
	return nil
}

// Apply replaces the set with a preset.
func (m *PermissionMatrix) Apply(preset string) error {
	p, err := Preset(preset)
	if err != nil {
		return err
	}
	m.perms = p
	return nil
}

// Enabled lists granted keys in catalogue order.
func (m *PermissionMatrix) Enabled() []string {
	var out []string
	for _, p := range Permissions {
		if m.perms[p.Key] {
			out = append(out, p.Key)
		}
	}
	return out
}

// Save stores the set and returns to the role list.
func (m *PermissionMatrix) Save(ctx context.Context) error {
	m.state = form.Submitting
	saved, err := m.store.SavePermissions(ctx, m.roleID, m.Permissions())
	if err != nil {
		m.state = form.Failed
		m.err = err
		return err
	}
	m.perms = MergePermissions(saved)
	m.state = form.Success
	m.err = nil
	if m.nav != nil {
		m.nav.Navigate(RouteRoles)
	}
	return nil
}
