package mockapi

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"brdconsole.org/internal/audit"
	"brdconsole.org/internal/auth"
	"brdconsole.org/internal/resource"
	"brdconsole.org/internal/store"
)

const (
	settingsCollection    = "settings"
	permissionsCollection = "adminpanel/role-permissions"
	recentActivityLimit   = 5
)

// view returns the handler of a fixed, non-collection route.
func (a *API) view(rest string) http.HandlerFunc {
	switch rest {
	case "users/signup/":
		return a.handleSignup
	case "tenants/signup/":
		return a.handleTenantSignup
	case "users/me/":
		return a.handleMe
	case "users/change-password/":
		return a.handleChangePassword
	case "users/login-activity/":
		return a.handleLoginActivity
	case "users/2fa/setup/":
		return a.handle2FASetup
	case "users/2fa/verify/":
		return a.handle2FAVerify
	case "users/2fa/disable/":
		return a.handle2FADisable
	case "adminpanel/settings/":
		return a.handleSettings
	case "adminpanel/subscriptions/my/":
		return a.handleMySubscription
	case "adminpanel/subscriptions/action/":
		return a.handleSubscriptionAction
	case "dashboard/full":
		return a.handleDashboard
	}
	return nil
}

type permissionsRequest struct {
	Permissions map[string]bool `json:"permissions"`
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	ctx := r.Context()
	if _, err := a.visible(ctx, resource.Catalog[resource.Roles], roleID); err != nil {
		handleStoreError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		rec, err := a.store.Get(ctx, permissionsCollection, roleID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusOK, map[string]bool{})
				return
			}
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, permissionMap(rec["permissions"]))
	case http.MethodPost, http.MethodPut:
		if !a.ensureAdmin(w, r) {
			return
		}
		var req permissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if req.Permissions == nil {
			req.Permissions = map[string]bool{}
		}
		rec := store.Record{"id": roleID, "permissions": req.Permissions}
		err := a.store.Replace(ctx, permissionsCollection, roleID, rec)
		if errors.Is(err, store.ErrNotFound) {
			err = a.store.Insert(ctx, permissionsCollection, roleID, rec)
		}
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		a.audit(ctx, audit.Event{
			Action:      audit.ActionUpdate,
			Module:      resource.Roles,
			ResourceID:  roleID,
			Description: fmt.Sprintf("saved %d permissions of role %s", len(req.Permissions), roleID),
		})
		writeJSON(w, http.StatusOK, req.Permissions)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func permissionMap(v any) map[string]bool {
	out := map[string]bool{}
	if m, ok := v.(map[string]any); ok {
		for k, granted := range m {
			b, _ := granted.(bool)
			out[k] = b
		}
	}
	return out
}

// handleSettings serves the settings grouped by category and updates values
// by key; unknown keys are ignored.
func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		rows, err := a.store.List(ctx, settingsCollection, nil)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		grouped := map[string][]store.Record{}
		for _, row := range rows {
			cat := store.Text(row["category"])
			grouped[cat] = append(grouped[cat], row)
		}
		writeJSON(w, http.StatusOK, grouped)
	case http.MethodPut:
		if !a.ensureAdmin(w, r) {
			return
		}
		var values map[string]any
		if err := decodeJSON(w, r, &values); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		rows, err := a.store.List(ctx, settingsCollection, nil)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		updated := 0
		for _, row := range rows {
			id := store.Text(row["id"])
			v, ok := values[id]
			if !ok {
				v, ok = values[store.Text(row["key"])]
			}
			if !ok {
				continue
			}
			row["value"] = store.Text(v)
			if err := a.store.Replace(ctx, settingsCollection, id, row); err != nil {
				handleStoreError(w, r, err)
				return
			}
			updated++
		}
		a.audit(ctx, audit.Event{
			Action:      audit.ActionUpdate,
			Module:      "settings",
			Description: fmt.Sprintf("updated %d settings", updated),
		})
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ctx := r.Context()
	colls := []string{
		tenantsCollection,
		collectionOf(resource.Catalog[resource.Branches]),
		usersCollection,
		audit.Collection,
	}
	rows := make([][]store.Record, len(colls))
	for i, c := range colls {
		var err error
		if rows[i], err = a.store.List(ctx, c, nil); err != nil {
			handleStoreError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, buildDashboard(rows[0], rows[1], rows[2], rows[3]))
}

func buildDashboard(tenants, branches, users, activity []store.Record) resource.Dashboard {
	d := resource.Dashboard{
		KPIs: resource.KPIs{
			TotalTenants:    int64(len(tenants)),
			TotalBranches:   int64(len(branches)),
			DisbursedAmount: "₹0",
			APIStatus:       "Online",
		},
		Charts: resource.Charts{
			MonthlyDisbursement:    []resource.Record{},
			LoanStatusDistribution: []resource.Record{},
			RecentActivity:         []resource.Record{},
			UsersPerBranch:         []resource.Record{},
		},
		Alerts: []resource.Record{},
	}

	branchNames := make(map[string]string, len(branches))
	for _, b := range branches {
		branchNames[store.Text(b["id"])] = store.Text(b["name"])
	}
	perBranch := map[string]int{}
	for _, u := range users {
		if u["is_active"] == true {
			d.KPIs.ActiveUsers++
		}
		if name, ok := branchNames[store.Text(u["branch"])]; ok {
			perBranch[name]++
		}
	}
	names := make([]string, 0, len(perBranch))
	for name := range perBranch {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d.Charts.UsersPerBranch = append(d.Charts.UsersPerBranch, resource.Record{"branch": name, "users": perBranch[name]})
	}

	for i := len(activity) - 1; i >= 0 && len(d.Charts.RecentActivity) < recentActivityLimit; i-- {
		d.Charts.RecentActivity = append(d.Charts.RecentActivity, resource.Record(activity[i]))
	}

	inactive := 0
	for _, t := range tenants {
		if t["is_active"] == false {
			inactive++
		}
	}
	if inactive > 0 {
		d.Alerts = append(d.Alerts, resource.Record{
			"type":    "warning",
			"message": fmt.Sprintf("%d organizations are inactive", inactive),
		})
	}
	return d
}

var subscriptionStatus = map[string]string{
	"pause":  "Paused",
	"cancel": "Cancelled",
	"resume": "Active",
}

func (a *API) handleMySubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rec, ok := a.tenantSubscription(w, r)
	if !ok {
		return
	}
	out := public(rec)
	if planID := store.Text(rec["subscription"]); planID != "" {
		if plan, err := a.store.Get(r.Context(), collectionOf(resource.Catalog[resource.Subscriptions]), planID); err == nil {
			out["plan"] = plan
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type subscriptionActionRequest struct {
	Action string `json:"action"`
}

func (a *API) handleSubscriptionAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}
	var req subscriptionActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	action := strings.ToLower(strings.TrimSpace(req.Action))
	status, known := subscriptionStatus[action]
	if !known {
		writeError(w, r, http.StatusBadRequest, "Invalid action")
		return
	}
	rec, ok := a.tenantSubscription(w, r)
	if !ok {
		return
	}
	rec["status"] = status
	id := store.Text(rec["uuid"])
	if err := a.store.Replace(r.Context(), collectionOf(resource.Catalog[resource.Subscribers]), id, rec); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.Event{
		Action:      audit.ActionUpdate,
		Module:      resource.Subscribers,
		ResourceID:  id,
		Description: "subscription " + action,
	})
	writeJSON(w, http.StatusOK, resource.ActionResult{
		Message: fmt.Sprintf("Subscription %s successful", action),
		Status:  status,
	})
}

// tenantSubscription finds the live subscriber row of the caller's tenant.
func (a *API) tenantSubscription(w http.ResponseWriter, r *http.Request) (store.Record, bool) {
	p, _ := auth.PrincipalFromContext(r.Context())
	if p.TenantID == "" {
		writeError(w, r, http.StatusNotFound, "no tenant bound to this account")
		return nil, false
	}
	rows, err := a.store.List(r.Context(), collectionOf(resource.Catalog[resource.Subscribers]), store.Filter{"tenant": p.TenantID})
	if err != nil {
		handleStoreError(w, r, err)
		return nil, false
	}
	for _, rec := range rows {
		if !isDeleted(rec) {
			return rec, true
		}
	}
	writeError(w, r, http.StatusNotFound, "no active subscription")
	return nil, false
}
