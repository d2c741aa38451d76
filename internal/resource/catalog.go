package resource

import (
	"net/http"
	"sort"
)

// Collection names used by the console.
const (
	Organizations         = "organizations"
	Branches              = "branches"
	Users                 = "users"
	AuditLogs             = "audit-logs"
	Roles                 = "roles"
	Subscriptions         = "subscriptions"
	Coupons               = "coupons"
	Subscribers           = "subscribers"
	EmploymentTypes       = "employment-types"
	OccupationTypes       = "occupation-types"
	LoanProducts          = "loan-products"
	Charges               = "charges"
	DocumentTypes         = "document-types"
	NotificationTemplates = "notification-templates"
	Categories            = "categories"
	FinancialYears        = "financial-years"
	ReportingPeriods      = "reporting-periods"
	Holidays              = "holidays"
	RulesConfig           = "rules-config"
)

// Catalog lists every collection the backend exposes to the console.
var Catalog = map[string]Spec{
	Organizations:         {Name: Organizations, Path: "tenants/", UpdateMethod: http.MethodPatch, IDField: "id"},
	Branches:              {Name: Branches, Path: "tenants/branches/", UpdateMethod: http.MethodPatch, IDField: "id"},
	Users:                 {Name: Users, Path: "users/users/", UpdateMethod: http.MethodPatch, IDField: "id"},
	AuditLogs:             {Name: AuditLogs, Path: "users/audit-logs/", UpdateMethod: http.MethodPatch, IDField: "id"},
	Roles:                 {Name: Roles, Path: "adminpanel/role-master/", UpdateMethod: http.MethodPut, IDField: "id"},
	Subscriptions:         {Name: Subscriptions, Path: "adminpanel/subscriptions/", UpdateMethod: http.MethodPut, IDField: "uuid"},
	Coupons:               {Name: Coupons, Path: "adminpanel/coupons/", UpdateMethod: http.MethodPut, IDField: "uuid"},
	Subscribers:           {Name: Subscribers, Path: "adminpanel/subscribers/", UpdateMethod: http.MethodPut, IDField: "uuid"},
	EmploymentTypes:       {Name: EmploymentTypes, Path: "adminpanel/employment-types/", UpdateMethod: http.MethodPut, IDField: "uuid"},
	OccupationTypes:       {Name: OccupationTypes, Path: "adminpanel/occupation-types/", UpdateMethod: http.MethodPut, IDField: "uuid"},
	LoanProducts:          {Name: LoanProducts, Path: "adminpanel/loan-products/", UpdateMethod: http.MethodPut, IDField: "id"},
	Charges:               {Name: Charges, Path: "adminpanel/charges/", UpdateMethod: http.MethodPut, IDField: "id"},
	DocumentTypes:         {Name: DocumentTypes, Path: "adminpanel/document-types/", UpdateMethod: http.MethodPut, IDField: "id"},
	NotificationTemplates: {Name: NotificationTemplates, Path: "adminpanel/notification-templates/", UpdateMethod: http.MethodPut, IDField: "id"},
	Categories:            {Name: Categories, Path: "tenants/categories/", UpdateMethod: http.MethodPut, IDField: "id"},
	FinancialYears:        {Name: FinancialYears, Path: "tenants/calendar/financial-years/", UpdateMethod: http.MethodPut, IDField: "id"},
	ReportingPeriods:      {Name: ReportingPeriods, Path: "tenants/calendar/reporting-periods/", UpdateMethod: http.MethodPut, IDField: "id"},
	Holidays:              {Name: Holidays, Path: "tenants/calendar/holidays/", UpdateMethod: http.MethodPut, IDField: "id"},
	RulesConfig:           {Name: RulesConfig, Path: "tenants/rules-config/", UpdateMethod: http.MethodPut, IDField: "id"},
}

// Lookup returns the spec registered under name.
func Lookup(name string) (Spec, bool) {
	s, ok := Catalog[name]
	return s, ok
}

// Names returns the collection names in alphabetical order.
func Names() []string {
	out := make([]string, 0, len(Catalog))
	for name := range Catalog {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Records is a Service over opaque records.
type Records = Service[Record]

// For binds an untyped service to a catalogue entry. It panics on an unknown
// name, which is a programming error.
func For(api Doer, name string) *Records {
	spec, ok := Catalog[name]
	if !ok {
		panic("resource: unknown collection " + name)
	}
	return New[Record](api, spec)
}
