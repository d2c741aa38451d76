package console

import (
	"strings"

	"brdconsole.org/internal/form"
	"brdconsole.org/internal/resource"
	"brdconsole.org/internal/validate"
)

// MasterForm describes a simple master-data page.
type MasterForm struct {
	Resource string
	Rules    validate.Table
	Mapper   form.Mapper
	Initial  form.Draft
	Route    string
}

// Billing periods offered by the subscription page.
var BillingPeriods = []string{"Monthly", "Quarterly", "Yearly"}

const auditUser = "master_admin"

// MasterForms lists the master pages that are plain field editors.
var MasterForms = map[string]MasterForm{
	resource.EmploymentTypes: {
		Resource: resource.EmploymentTypes,
		Rules:    validate.NewTable(validate.F("emp_name", validate.Required("Employment type"))),
		Mapper:   pick("emp_name"),
		Route:    RouteEmploymentTypes,
	},
	resource.OccupationTypes: {
		Resource: resource.OccupationTypes,
		Rules:    validate.NewTable(validate.F("occ_name", validate.Required("Occupation type"))),
		Mapper:   pick("occ_name"),
		Route:    RouteOccupationTypes,
	},
	resource.Coupons: {
		Resource: resource.Coupons,
		Rules: validate.NewTable(
			validate.F("coupon_code", validate.Required("Coupon code")),
			validate.F("coupon_value", validate.Required("Coupon value")),
			validate.F("date_from", validate.Required("Start date")),
			validate.F("date_to", validate.Required("End date")),
		).WithCross(validate.Cross{Field: "date_to", Check: dateOrder}),
		Mapper: pick("coupon_code", "coupon_value", "date_from", "date_to"),
		Route:  RouteCoupons,
	},
	resource.Subscriptions: {
		Resource: resource.Subscriptions,
		Rules: validate.NewTable(
			validate.F("subscription_name", validate.Required("Subscription name")),
			validate.F("subscription_amount", validate.Required("Amount")),
			validate.F("no_of_borrowers", validate.Required("Number of borrowers")),
			validate.F("type_of", validate.OneOf("Type", BillingPeriods...)),
		),
		Initial: form.Draft{
			"type_of":       "Monthly",
			"created_user":  auditUser,
			"modified_user": auditUser,
			"isDeleted":     false,
		},
		Route: RouteSubscriptions,
	},
}

// dateOrder rejects a coupon that ends before it starts. Dates are ISO
// yyyy-mm-dd, so string order is date order.
func dateOrder(values map[string]string) error {
	from, to := values["date_from"], values["date_to"]
	if from != "" && to != "" && to < from {
		return errDateOrder
	}
	return nil
}

// pick sends only the listed fields, trimmed.
func pick(fields ...string) form.Mapper {
	return func(d form.Draft) (map[string]any, error) {
		v := d.Values()
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			out[f] = strings.TrimSpace(v[f])
		}
		return out, nil
	}
}

// NewMasterForm starts the create page of a master resource.
func NewMasterForm(name string, svc form.Saver[resource.Record], nav form.Navigator) (*form.Controller[resource.Record], error) {
	m, ok := MasterForms[name]
	if !ok {
		return nil, ErrNoForm
	}
	return form.NewCreate(m.config(svc, nav), m.Initial), nil
}

// EditMasterForm starts the edit page of a master resource.
func EditMasterForm(name string, svc form.Saver[resource.Record], nav form.Navigator, existing resource.Record) (*form.Controller[resource.Record], error) {
	m, ok := MasterForms[name]
	if !ok {
		return nil, ErrNoForm
	}
	spec, _ := resource.Lookup(name)
	id := existing.Key(spec.IDField)
	if id == "" {
		id = existing.ID()
	}
	return form.NewEdit(m.config(svc, nav), id, existing.Clone()), nil
}

func (m MasterForm) config(svc form.Saver[resource.Record], nav form.Navigator) form.Config[resource.Record] {
	return form.Config[resource.Record]{
		Saver:        svc,
		Rules:        m.Rules,
		Mapper:       m.Mapper,
		Navigator:    nav,
		SuccessRoute: m.Route,
	}
}
