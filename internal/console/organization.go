package console

import (
	"strings"

	"brdconsole.org/internal/form"
	"brdconsole.org/internal/resource"
	"brdconsole.org/internal/validate"
)

// TenantTypeNBFC is the only tenant type the onboarding page creates.
const TenantTypeNBFC = "NBFC"

// OrganizationRules is the new-organization page's validation table.
func OrganizationRules() validate.Table {
	return validate.NewTable(
		validate.F("business_name", validate.Required("Business name")),
		validate.F("email", validate.Required("Email"), validate.Email()),
		validate.F("mobile_no", validate.Required("Mobile number"), validate.Phone()),
		validate.F("address", validate.Required("Address")),
		validate.F("contact_person", validate.Required("Contact person")),
		validate.F("password", validate.Required("Password"), validate.Password()),
		validate.F("pan", validate.Optional(validate.PAN())),
		validate.F("gst_in", validate.Optional(validate.GSTIN())),
	)
}

// MapOrganization turns the onboarding form into a tenant payload. The
// address parts the form does not collect are sent blank and every new
// organisation starts active.
func MapOrganization(d form.Draft) (map[string]any, error) {
	v := d.Values()
	return map[string]any{
		"name":        strings.TrimSpace(v["business_name"]),
		"tenant_type": TenantTypeNBFC,
		"email":       strings.TrimSpace(v["email"]),
		"phone":       strings.TrimSpace(v["mobile_no"]),
		"address":     strings.TrimSpace(v["address"]),
		"city":        "",
		"state":       "",
		"pincode":     "",
		"is_active":   true,
	}, nil
}

// MapOrganizationEdit sends only the tenant columns the edit page shows.
func MapOrganizationEdit(d form.Draft) (map[string]any, error) {
	v := d.Values()
	out := map[string]any{
		"name":    strings.TrimSpace(v["business_name"]),
		"email":   strings.TrimSpace(v["email"]),
		"phone":   strings.TrimSpace(v["mobile_no"]),
		"address": strings.TrimSpace(v["address"]),
	}
	if active, ok := d["is_active"].(bool); ok {
		out["is_active"] = active
	}
	return out, nil
}

// OrganizationEditRules drops the onboarding-only fields.
func OrganizationEditRules() validate.Table {
	return validate.NewTable(
		validate.F("business_name", validate.Required("Business name")),
		validate.F("email", validate.Required("Email"), validate.Email()),
		validate.F("mobile_no", validate.Required("Mobile number"), validate.Phone()),
	)
}

// OrganizationDraft presents a stored tenant with the form's field names.
func OrganizationDraft(r resource.Record) form.Draft {
	return form.Draft{
		"business_name": r.String("name"),
		"email":         r.String("email"),
		"mobile_no":     r.String("phone"),
		"address":       r.String("address"),
		"is_active":     r["is_active"],
	}
}

// NewOrganizationForm starts the onboarding page.
func NewOrganizationForm(svc form.Saver[resource.Record], nav form.Navigator) *form.Controller[resource.Record] {
	return form.NewCreate(form.Config[resource.Record]{
		Saver:        svc,
		Rules:        OrganizationRules(),
		Mapper:       MapOrganization,
		Navigator:    nav,
		SuccessRoute: RouteOrganizations,
	}, nil)
}

// EditOrganizationForm edits an existing tenant. The update is a PATCH.
func EditOrganizationForm(svc form.Saver[resource.Record], nav form.Navigator, existing resource.Record) *form.Controller[resource.Record] {
	return form.NewEdit(form.Config[resource.Record]{
		Saver:        svc,
		Rules:        OrganizationEditRules(),
		Mapper:       MapOrganizationEdit,
		Navigator:    nav,
		SuccessRoute: RouteOrganizations,
	}, existing.ID(), OrganizationDraft(existing))
}
