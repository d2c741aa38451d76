package console

import (
	"context"
	"strings"

	"brdconsole.org/internal/form"
	"brdconsole.org/internal/resource"
	"brdconsole.org/internal/validate"
)

// TenantSignupRules is the self-service onboarding table.
func TenantSignupRules() validate.Table {
	return validate.NewTable(
		validate.F("business_name",
			validate.Required("Business name"),
			validate.MinLen("Business name", 3),
			validate.BusinessName(),
		),
		validate.F("contact_person",
			validate.Required("Contact person"),
			validate.MinLen("Contact person", 3),
			validate.PersonName("Contact person"),
		),
		validate.F("mobile_no", validate.Required("Mobile number"), validate.IndianMobile()),
		validate.F("email", validate.Required("Email"), validate.Email()),
		validate.F("address", validate.Required("Address"), validate.MinLen("Address", 10)),
		validate.F("loan_product",
			validate.Required("Loan product"),
			validate.MinLen("Loan product", 3),
			validate.Letters("Loan product"),
		),
		validate.F("password", validate.Required("Password"), validate.StrongPassword()),
	).WithCross(validate.Matches("confirm_password", "password", "Passwords do not match"))
}

// MapTenantSignup drops the confirmation field.
func MapTenantSignup(d form.Draft) (map[string]any, error) {
	out := make(map[string]any, len(d))
	for k, v := range d {
		if k == "confirm_password" {
			continue
		}
		if s, ok := v.(string); ok && k != "password" {
			v = strings.TrimSpace(s)
		}
		out[k] = v
	}
	return out, nil
}

// SignupSaver adapts AuthService.TenantSignup to a form saver. Signup has
// no edit mode.
type SignupSaver struct {
	Auth *resource.AuthService
}

func (s SignupSaver) Create(ctx context.Context, payload any) (resource.Record, error) {
	body, _ := payload.(map[string]any)
	return s.Auth.TenantSignup(ctx, body)
}

func (s SignupSaver) Update(context.Context, string, any) (resource.Record, error) {
	return nil, errSignupUpdate
}

// NewTenantSignupForm starts the signup page; success goes to login.
func NewTenantSignupForm(auth *resource.AuthService, nav form.Navigator) *form.Controller[resource.Record] {
	return form.NewCreate(form.Config[resource.Record]{
		Saver:        SignupSaver{Auth: auth},
		Rules:        TenantSignupRules(),
		CollectAll:   true,
		Mapper:       MapTenantSignup,
		Navigator:    nav,
		SuccessRoute: RouteLogin,
	}, nil)
}
