package mockapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"brdconsole.org/internal/audit"
	"brdconsole.org/internal/auth"
	"brdconsole.org/internal/ids"
	"brdconsole.org/internal/resource"
	"brdconsole.org/internal/store"
)

const softDeleteField = "isDeleted"

// byPathLength holds the catalogue with the longest paths first so that
// "tenants/branches/" wins over "tenants/".
var byPathLength = func() []resource.Spec {
	out := make([]resource.Spec, 0, len(resource.Catalog))
	for _, s := range resource.Catalog {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Path) != len(out[j].Path) {
			return len(out[i].Path) > len(out[j].Path)
		}
		return out[i].Path < out[j].Path
	})
	return out
}()

// tenantScoped collections are narrowed to the caller's tenant unless the
// caller is a master administrator.
var tenantScoped = map[string]bool{
	resource.Branches:         true,
	resource.Users:            true,
	resource.Categories:       true,
	resource.FinancialYears:   true,
	resource.ReportingPeriods: true,
	resource.Holidays:         true,
	resource.RulesConfig:      true,
}

// softDeleted collections keep deleted rows flagged instead of removing them.
var softDeleted = map[string]bool{
	resource.Subscribers: true,
}

// listParams are query parameters that shape the answer rather than filter it.
var listParams = map[string]bool{"limit": true, "ordering": true, "page": true}

// collectionOf is the store collection behind a catalogue path.
func collectionOf(spec resource.Spec) string {
	return strings.TrimSuffix(spec.Path, "/")
}

// dispatch routes everything under /api/v1/.
func (a *API) dispatch(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, apiPrefix)
	if h := a.view(rest); h != nil {
		h(w, r)
		return
	}
	spec, id, sub, ok := matchResource(rest)
	if !ok {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch {
	case id == "":
		a.handleCollection(w, r, spec)
	case sub == "":
		a.handleItem(w, r, spec, id)
	case sub == "permissions" && spec.Name == resource.Roles:
		a.handleRolePermissions(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// matchResource splits rest into a catalogue entry, an item id and an
// optional sub-resource. Every path must end with a slash.
func matchResource(rest string) (resource.Spec, string, string, bool) {
	for _, s := range byPathLength {
		if rest == s.Path {
			return s, "", "", true
		}
		if !strings.HasPrefix(rest, s.Path) {
			continue
		}
		tail := rest[len(s.Path):]
		if !strings.HasSuffix(tail, "/") {
			return resource.Spec{}, "", "", false
		}
		parts := strings.Split(strings.TrimSuffix(tail, "/"), "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			return s, parts[0], "", true
		case len(parts) == 2 && parts[0] != "" && parts[1] != "":
			return s, parts[0], parts[1], true
		}
		return resource.Spec{}, "", "", false
	}
	return resource.Spec{}, "", "", false
}

func (a *API) handleCollection(w http.ResponseWriter, r *http.Request, spec resource.Spec) {
	switch r.Method {
	case http.MethodGet:
		a.listRecords(w, r, spec)
	case http.MethodPost:
		if spec.Name == resource.AuditLogs {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if !a.ensureAdmin(w, r) {
			return
		}
		a.createRecord(w, r, spec)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleItem(w http.ResponseWriter, r *http.Request, spec resource.Spec, id string) {
	switch r.Method {
	case http.MethodGet:
		rec, err := a.visible(r.Context(), spec, id)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, public(rec))
	case http.MethodPut, http.MethodPatch:
		if !a.ensureAdmin(w, r) {
			return
		}
		a.updateRecord(w, r, spec, id)
	case http.MethodDelete:
		if !a.ensureAdmin(w, r) {
			return
		}
		a.deleteRecord(w, r, spec, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) listRecords(w http.ResponseWriter, r *http.Request, spec resource.Spec) {
	ctx := r.Context()
	filter := store.Filter{}
	for k, vs := range r.URL.Query() {
		if listParams[k] || len(vs) == 0 {
			continue
		}
		filter[k] = vs[0]
	}
	if tenant, scoped := a.scopeTenant(ctx, spec); scoped {
		filter["tenant"] = tenant
	}
	rows, err := a.store.List(ctx, collectionOf(spec), filter)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	out := make([]store.Record, 0, len(rows))
	for _, rec := range rows {
		if isDeleted(rec) {
			continue
		}
		out = append(out, public(rec))
	}
	if spec.Name == resource.AuditLogs {
		// newest first
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n >= 0 && n < len(out) {
		out = out[:n]
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createRecord(w http.ResponseWriter, r *http.Request, spec resource.Spec) {
	ctx := r.Context()
	var body store.Record
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if body == nil {
		writeError(w, r, http.StatusBadRequest, "request body must be an object")
		return
	}
	stripSecrets(body)
	if tenant, scoped := a.scopeTenant(ctx, spec); scoped {
		body["tenant"] = tenantValue(tenant)
	}
	if err := a.prepare(ctx, spec, body, ""); err != nil {
		a.writePrepareError(w, r, err)
		return
	}

	key, err := a.assignID(ctx, spec, body)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	now := a.now().UTC().Format(time.RFC3339)
	body["created_at"] = now
	body["updated_at"] = now
	if softDeleted[spec.Name] {
		body[softDeleteField] = false
	}
	if err := a.store.Insert(ctx, collectionOf(spec), key, body); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(ctx, audit.Event{
		Action:      audit.ActionCreate,
		Module:      spec.Name,
		ResourceID:  key,
		Description: fmt.Sprintf("created %s %s", spec.Name, key),
	})
	writeJSON(w, http.StatusCreated, public(body))
}

func (a *API) updateRecord(w http.ResponseWriter, r *http.Request, spec resource.Spec, id string) {
	ctx := r.Context()
	existing, err := a.visible(ctx, spec, id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	var body store.Record
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	stripSecrets(body)
	next := body
	if r.Method == http.MethodPatch {
		next = existing
		for k, v := range body {
			next[k] = v
		}
	}
	if next == nil {
		next = store.Record{}
	}
	next[spec.IDField] = existing[spec.IDField]
	if v, ok := existing["created_at"]; ok {
		next["created_at"] = v
	}
	for _, k := range secretFields {
		if v, ok := existing[k]; ok {
			next[k] = v
		}
	}
	if tenant, scoped := a.scopeTenant(ctx, spec); scoped {
		next["tenant"] = tenantValue(tenant)
	}
	if err := a.prepare(ctx, spec, next, id); err != nil {
		a.writePrepareError(w, r, err)
		return
	}
	next["updated_at"] = a.now().UTC().Format(time.RFC3339)

	if err := a.store.Replace(ctx, collectionOf(spec), id, next); err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(ctx, audit.Event{
		Action:      audit.ActionUpdate,
		Module:      spec.Name,
		ResourceID:  id,
		Description: fmt.Sprintf("updated %s %s", spec.Name, id),
	})
	writeJSON(w, http.StatusOK, public(next))
}

func (a *API) deleteRecord(w http.ResponseWriter, r *http.Request, spec resource.Spec, id string) {
	ctx := r.Context()
	rec, err := a.visible(ctx, spec, id)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	coll := collectionOf(spec)
	if softDeleted[spec.Name] {
		rec[softDeleteField] = true
		rec["updated_at"] = a.now().UTC().Format(time.RFC3339)
		err = a.store.Replace(ctx, coll, id, rec)
	} else {
		err = a.store.Delete(ctx, coll, id)
	}
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	a.audit(ctx, audit.Event{
		Action:      audit.ActionDelete,
		Module:      spec.Name,
		ResourceID:  id,
		Description: fmt.Sprintf("deleted %s %s", spec.Name, id),
	})
	if softDeleted[spec.Name] {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Subscriber soft-deleted successfully"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// visible loads a record the caller may see: soft-deleted rows and rows of
// another tenant read as missing.
func (a *API) visible(ctx context.Context, spec resource.Spec, id string) (store.Record, error) {
	rec, err := a.store.Get(ctx, collectionOf(spec), id)
	if err != nil {
		return nil, err
	}
	if isDeleted(rec) {
		return nil, store.ErrNotFound
	}
	if tenant, scoped := a.scopeTenant(ctx, spec); scoped && store.Text(rec["tenant"]) != tenant {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

// scopeTenant returns the caller's tenant when spec is narrowed to it.
func (a *API) scopeTenant(ctx context.Context, spec resource.Spec) (string, bool) {
	if !tenantScoped[spec.Name] {
		return "", false
	}
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok || p.TenantID == "" || p.HasRole(auth.RoleMasterAdmin) {
		return "", false
	}
	return p.TenantID, true
}

// assignID sets the identifier field of rec and returns its store key.
func (a *API) assignID(ctx context.Context, spec resource.Spec, rec store.Record) (string, error) {
	if spec.IDField == "uuid" {
		id := ids.UUID()
		rec["uuid"] = id
		return id, nil
	}
	n, err := a.store.NextID(ctx, collectionOf(spec))
	if err != nil {
		return "", err
	}
	rec["id"] = n
	return strconv.FormatInt(n, 10), nil
}

// prepare applies per-collection rules before a record is stored. selfID
// is the record being replaced, empty on create.
func (a *API) prepare(ctx context.Context, spec resource.Spec, rec store.Record, selfID string) error {
	switch spec.Name {
	case resource.Users:
		return a.prepareUser(ctx, rec, selfID)
	case resource.Roles:
		if strings.TrimSpace(store.Text(rec["name"])) == "" {
			return fieldError{field: "name", msg: "This field may not be blank."}
		}
	}
	return nil
}

type fieldError struct {
	field string
	msg   string
}

func (e fieldError) Error() string { return e.field + ": " + e.msg }

func (a *API) writePrepareError(w http.ResponseWriter, r *http.Request, err error) {
	var fe fieldError
	if errors.As(err, &fe) {
		writeFieldError(w, fe.field, fe.msg)
		return
	}
	handleStoreError(w, r, err)
}

func isDeleted(rec store.Record) bool {
	v, _ := rec[softDeleteField].(bool)
	return v
}

// secretFields are set by the server only and never leave it.
var secretFields = []string{"password_hash", "otp_secret"}

func stripSecrets(rec store.Record) {
	for _, k := range secretFields {
		delete(rec, k)
	}
}

// public returns a copy of rec without secrets or a plaintext password.
func public(rec store.Record) store.Record {
	if rec == nil {
		return nil
	}
	out := make(store.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	stripSecrets(out)
	delete(out, "password")
	return out
}

// tenantValue stores numeric tenant ids as numbers, the way the console
// sends them.
func tenantValue(tenant string) any {
	if n, err := strconv.ParseInt(tenant, 10, 64); err == nil {
		return n
	}
	return tenant
}
