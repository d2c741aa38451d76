// Package console binds the generic controllers in package form to the
// administration pages: which fields each page edits, how a draft becomes a
// request payload and where the console goes after a save.
package console

// Routes the console navigates to.
const (
	RouteLogin           = "/login"
	RouteDashboard       = "/dashboard"
	RouteOrganizations   = "/organizations"
	RouteUsers           = "/users/list"
	RouteBranches        = "/organization/branches/list"
	RouteRoles           = "/roles"
	RouteSubscriptions   = "/subscriptions"
	RouteCoupons         = "/coupons"
	RouteEmploymentTypes = "/employment-types"
	RouteOccupationTypes = "/occupation-types"
)
