package console

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"brdconsole.org/internal/form"
	"brdconsole.org/internal/resource"
	"brdconsole.org/internal/validate"
)

const fallbackOrgPrefix = "ORG"

// SuggestBranchCode proposes a code of the form ORG-NAM-<unix millis>. Each
// prefix is the first three non-space characters, upper-cased. An unknown
// organisation contributes "ORG".
func SuggestBranchCode(orgName, branchName string, now time.Time) string {
	org := prefix3(orgName)
	if org == "" {
		org = fallbackOrgPrefix
	}
	return org + "-" + prefix3(branchName) + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

func prefix3(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
		n++
		if n == 3 {
			break
		}
	}
	return strings.ToUpper(b.String())
}

// OrganizationName finds the display name of orgID in a tenant list.
func OrganizationName(orgs []resource.Record, orgID string) string {
	for _, o := range orgs {
		if o.ID() == orgID || o.String("tenant_id") == orgID {
			return o.String("name")
		}
	}
	return ""
}

// BranchRules mirrors the branch checks of the tenant administration page.
func BranchRules() validate.Table {
	return validate.NewTable(
		validate.F("tenant", validate.Required("Organization")),
		validate.F("branch_code",
			validate.Required("Branch Code"),
			validate.Tag("branch_code", "Branch Code must contain only letters, numbers, - or _"),
		),
		validate.F("name", validate.Required("Branch Name"), validate.MinLen("Branch Name", 3)),
		validate.F("phone", validate.Optional(validate.PhoneRange(7, 15))),
		validate.F("address", validate.Optional(validate.MinLen("Address", 3))),
	)
}

// MapBranch builds the branch payload. A numeric tenant is sent as a number.
func MapBranch(d form.Draft) (map[string]any, error) {
	v := d.Values()
	var tenant any = strings.TrimSpace(v["tenant"])
	if n, err := strconv.ParseInt(v["tenant"], 10, 64); err == nil {
		tenant = n
	}
	return map[string]any{
		"tenant":      tenant,
		"branch_code": strings.TrimSpace(v["branch_code"]),
		"name":        strings.TrimSpace(v["name"]),
		"address":     strings.TrimSpace(v["address"]),
		"phone":       strings.TrimSpace(v["phone"]),
	}, nil
}

// BranchForm wraps the branch page controller with code suggestion.
type BranchForm struct {
	*form.Controller[resource.Record]
	orgs []resource.Record
	now  func() time.Time
}

// NewBranchForm starts the create-branch page. orgs feeds the organisation
// picker and the code prefix.
func NewBranchForm(svc form.Saver[resource.Record], nav form.Navigator, orgs []resource.Record) *BranchForm {
	return &BranchForm{
		Controller: form.NewCreate(branchConfig(svc, nav), nil),
		orgs:       orgs,
		now:        time.Now,
	}
}

// EditBranchForm edits a stored branch. The code is never regenerated.
func EditBranchForm(svc form.Saver[resource.Record], nav form.Navigator, existing resource.Record) *BranchForm {
	draft := map[string]any{
		"tenant":      existing.String("tenant"),
		"branch_code": existing.String("branch_code"),
		"name":        existing.String("name"),
		"address":     existing.String("address"),
		"phone":       existing.String("phone"),
	}
	return &BranchForm{
		Controller: form.NewEdit(branchConfig(svc, nav), existing.ID(), draft),
		now:        time.Now,
	}
}

func branchConfig(svc form.Saver[resource.Record], nav form.Navigator) form.Config[resource.Record] {
	return form.Config[resource.Record]{
		Saver:        svc,
		Rules:        BranchRules(),
		Mapper:       MapBranch,
		Navigator:    nav,
		SuccessRoute: RouteBranches,
	}
}

// Set updates a field. On the create page, once both organisation and name
// are filled, changing either regenerates the branch code.
func (f *BranchForm) Set(field string, value any) {
	f.Controller.Set(field, value)
	if f.Mode() != form.Create || (field != "tenant" && field != "name") {
		return
	}
	d := f.Draft().Values()
	if d["tenant"] == "" || d["name"] == "" {
		return
	}
	code := SuggestBranchCode(OrganizationName(f.orgs, d["tenant"]), d["name"], f.now())
	f.Controller.Set("branch_code", code)
}
