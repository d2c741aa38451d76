package console

import (
	"strconv"
	"strings"

	"brdconsole.org/internal/form"
	"brdconsole.org/internal/resource"
	"brdconsole.org/internal/validate"
)

// RoleCodes maps the role labels shown on the user page to backend enums.
var RoleCodes = map[string]string{
	"Admin":           "ADMIN",
	"Loan Officer":    "LOAN_OFFICER",
	"Underwriter":     "UNDERWRITER",
	"Finance Staff":   "FINANCE_STAFF",
	"Sales Executive": "SALES_EXECUTIVE",
	"Borrower":        "BORROWER",
}

// RoleLabels lists the labels in display order.
var RoleLabels = []string{"Admin", "Loan Officer", "Underwriter", "Finance Staff", "Sales Executive", "Borrower"}

// RoleCode resolves a label or an enum value to the enum.
func RoleCode(role string) (string, bool) {
	role = strings.TrimSpace(role)
	if code, ok := RoleCodes[role]; ok {
		return code, true
	}
	for _, code := range RoleCodes {
		if strings.EqualFold(code, role) {
			return code, true
		}
	}
	return "", false
}

const statusActive = "Active"

func userRules(requirePassword bool) validate.Table {
	password := []validate.Rule{validate.Required("Password")}
	if !requirePassword {
		password = nil
	}
	return validate.NewTable(
		validate.F("email", validate.Required("Email"), validate.GmailOnly()),
		validate.F("phone", validate.Phone()),
		validate.F("password", password...),
		validate.F("role", func(v string) error {
			if strings.TrimSpace(v) == "" {
				return errSelectRole
			}
			return nil
		}),
	)
}

// UserRules is the add-user validation table.
func UserRules() validate.Table { return userRules(true) }

// MapUser builds the user payload. Organisation, branch and approval limit
// are numbers or null; a value that is not a number is a field error.
func MapUser(d form.Draft) (map[string]any, error) {
	v := d.Values()
	role, ok := RoleCode(v["role"])
	if !ok {
		return nil, &validate.FieldError{Field: "role", Message: errSelectRole.Error()}
	}
	tenant, err := optionalNumber("tenant", v["tenant"])
	if err != nil {
		return nil, err
	}
	branch, err := optionalNumber("branch", v["branch"])
	if err != nil {
		return nil, err
	}
	limit, err := optionalNumber("approval_limit", v["approval_limit"])
	if err != nil {
		return nil, err
	}
	status := v["status"]
	if status == "" {
		status = statusActive
	}
	out := map[string]any{
		"email":          strings.TrimSpace(v["email"]),
		"phone":          strings.TrimSpace(v["phone"]),
		"role":           role,
		"tenant":         tenant,
		"branch":         branch,
		"employee_id":    strings.TrimSpace(v["employee_id"]),
		"approval_limit": limit,
		"is_active":      status == statusActive,
		"is_staff":       false,
		"is_superuser":   false,
	}
	if v["password"] != "" {
		out["password"] = v["password"]
	}
	return out, nil
}

func optionalNumber(field, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &validate.FieldError{Field: field, Message: "must be a number"}
	}
	return f, nil
}

// UserDraft presents a stored user on the edit page.
func UserDraft(r resource.Record) form.Draft {
	status := "Inactive"
	if active, _ := r["is_active"].(bool); active {
		status = statusActive
	}
	return form.Draft{
		"email":          r.String("email"),
		"phone":          r.String("phone"),
		"role":           r.String("role"),
		"tenant":         r.String("tenant"),
		"branch":         r.String("branch"),
		"employee_id":    r.String("employee_id"),
		"approval_limit": r.String("approval_limit"),
		"status":         status,
	}
}

// NewUserForm starts the add-user page with the Active status preselected.
func NewUserForm(svc form.Saver[resource.Record], nav form.Navigator) *form.Controller[resource.Record] {
	return form.NewCreate(form.Config[resource.Record]{
		Saver:        svc,
		Rules:        UserRules(),
		Mapper:       MapUser,
		Navigator:    nav,
		SuccessRoute: RouteUsers,
	}, form.Draft{"status": statusActive})
}

// EditUserForm edits a user; a blank password leaves it unchanged.
func EditUserForm(svc form.Saver[resource.Record], nav form.Navigator, existing resource.Record) *form.Controller[resource.Record] {
	return form.NewEdit(form.Config[resource.Record]{
		Saver:        svc,
		Rules:        userRules(false),
		Mapper:       MapUser,
		Navigator:    nav,
		SuccessRoute: RouteUsers,
	}, existing.ID(), UserDraft(existing))
}
