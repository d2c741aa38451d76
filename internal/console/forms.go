package console

import (
	"context"

	"brdconsole.org/internal/resource"
)

// Form is a create or edit page filled field by field.
type Form interface {
	Set(field string, value any)
	Submit(ctx context.Context) (resource.Record, error)
	FieldErrors() map[string]string
}

// NewForm starts the create page of a collection. Collections without a
// page answer ErrNoForm and are saved as sent.
func (c *Console) NewForm(ctx context.Context, name string) (Form, error) {
	switch name {
	case resource.Organizations:
		return c.NewOrganizationForm(), nil
	case resource.Users:
		return c.NewUserForm(), nil
	case resource.Branches:
		// без списка организаций префикс кода будет ORG
		f, _ := c.NewBranchForm(ctx)
		return f, nil
	}
	f, err := c.NewMasterForm(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// EditForm loads record id and starts the edit page of its collection.
func (c *Console) EditForm(ctx context.Context, name, id string) (Form, error) {
	svc, err := c.Records(name)
	if err != nil {
		return nil, err
	}
	if !hasEditPage(name) {
		return nil, ErrNoForm
	}
	existing, err := svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch name {
	case resource.Organizations:
		return EditOrganizationForm(svc, c.Nav, existing), nil
	case resource.Users:
		return EditUserForm(svc, c.Nav, existing), nil
	case resource.Branches:
		return EditBranchForm(svc, c.Nav, existing), nil
	}
	f, err := EditMasterForm(name, svc, c.Nav, existing)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func hasEditPage(name string) bool {
	switch name {
	case resource.Organizations, resource.Users, resource.Branches:
		return true
	}
	_, ok := MasterForms[name]
	return ok
}
