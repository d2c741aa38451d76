package resource

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// PermissionSet maps permission keys to their granted state.
type PermissionSet map[string]bool

// Role is a role-master row as the console displays it.
type Role struct {
	ID          int64  `json:"id"`
	RoleName    string `json:"roleName"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

type roleWire struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

func (w roleWire) role() Role {
	return Role{ID: w.ID, RoleName: w.Name, Description: w.Description, CreatedAt: w.CreatedAt}
}

// RoleService manages role masters and their permission maps.
type RoleService struct {
	api  Doer
	rows *Service[roleWire]
}

func NewRoleService(api Doer) *RoleService {
	return &RoleService{api: api, rows: New[roleWire](api, Catalog[Roles])}
}

// List returns every role, renaming name to roleName and created_at to
// createdAt.
func (s *RoleService) List(ctx context.Context) ([]Role, error) {
	rows, err := s.rows.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]Role, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.role())
	}
	return out, nil
}

func (s *RoleService) Get(ctx context.Context, id int64) (Role, error) {
	w, err := s.rows.Get(ctx, strconv.FormatInt(id, 10))
	return w.role(), err
}

func (s *RoleService) Create(ctx context.Context, name, description string) (Role, error) {
	w, err := s.rows.Create(ctx, map[string]any{"name": name, "description": description})
	return w.role(), err
}

func (s *RoleService) Update(ctx context.Context, id int64, name, description string) (Role, error) {
	w, err := s.rows.Update(ctx, strconv.FormatInt(id, 10), map[string]any{"name": name, "description": description})
	return w.role(), err
}

func (s *RoleService) Delete(ctx context.Context, id int64) error {
	return s.rows.Delete(ctx, strconv.FormatInt(id, 10))
}

// Permissions loads the stored permission map of a role. A role that never
// had permissions saved yields an empty set.
func (s *RoleService) Permissions(ctx context.Context, id int64) (PermissionSet, error) {
	out := PermissionSet{}
	if err := s.api.Do(ctx, http.MethodGet, s.permissionsPath(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SavePermissions replaces the permission map of a role.
func (s *RoleService) SavePermissions(ctx context.Context, id int64, perms PermissionSet) (PermissionSet, error) {
	if perms == nil {
		perms = PermissionSet{}
	}
	out := PermissionSet{}
	body := map[string]any{"permissions": perms}
	if err := s.api.Do(ctx, http.MethodPost, s.permissionsPath(id), nil, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RoleService) permissionsPath(id int64) string {
	return fmt.Sprintf("%s%d/permissions/", Catalog[Roles].Path, id)
}
