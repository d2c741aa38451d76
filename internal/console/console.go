package console

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"brdconsole.org/internal/apiclient"
	"brdconsole.org/internal/config"
	"brdconsole.org/internal/form"
	"brdconsole.org/internal/obs"
	"brdconsole.org/internal/resource"
	"brdconsole.org/internal/session"
)

// Console is one signed-in console instance: the API client, the session
// it reads tokens from and the services every page uses.
type Console struct {
	API       *apiclient.Client
	Sessions  session.Store
	Nav       form.Navigator
	Metrics   *obs.ClientMetrics
	Auth      *resource.AuthService
	Roles     *resource.RoleService
	Dashboard *resource.DashboardService
	Settings  *resource.SettingsService
	Rules     *resource.RulesService
	Plan      *resource.TenantSubscriptionService

	logger zerolog.Logger
}

// Options tunes New. Registerer receives the client metrics when set.
type Options struct {
	Registerer prometheus.Registerer
	Client     []apiclient.Option
}

// New wires a console from configuration. An authentication failure on any
// call clears the session (the client does that) and navigates to the login
// page.
func New(cfg config.Config, sessions session.Store, nav form.Navigator, opts Options) (*Console, error) {
	if nav == nil {
		nav = &form.RecordingNavigator{}
	}
	c := &Console{
		Sessions: sessions,
		Nav:      nav,
		Metrics:  obs.NewClientMetrics(opts.Registerer),
		logger:   obs.Logger().With().Str("component", "console").Logger(),
	}
	clientOpts := []apiclient.Option{
		apiclient.WithMetrics(c.Metrics),
		apiclient.WithAuthFailureHandler(c.onAuthFailure),
	}
	clientOpts = append(clientOpts, opts.Client...)
	api, err := apiclient.New(apiclient.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.API.UserAgent,
	}, sessions, clientOpts...)
	if err != nil {
		return nil, err
	}
	c.API = api
	c.Auth = resource.NewAuthService(api, sessions, cfg.API.AuthURL)
	c.Roles = resource.NewRoleService(api)
	c.Dashboard = resource.NewDashboardService(api)
	c.Settings = resource.NewSettingsService(api)
	c.Rules = resource.NewRulesService(api)
	c.Plan = resource.NewTenantSubscriptionService(api)
	return c, nil
}

func (c *Console) onAuthFailure(_ context.Context, err *apiclient.APIError) {
	c.logger.Info().Int("status", err.StatusCode).Str("path", err.Path).Msg("signed out")
	c.Nav.Navigate(RouteLogin)
}

// Records returns the untyped service of a catalogue collection.
func (c *Console) Records(name string) (*resource.Records, error) {
	if _, ok := resource.Lookup(name); !ok {
		return nil, ErrUnknownResource
	}
	return resource.For(c.API, name), nil
}

// List starts a list page over a catalogue collection.
func (c *Console) List(name string) (*form.ListController[resource.Record], error) {
	svc, err := c.Records(name)
	if err != nil {
		return nil, err
	}
	idField := svc.Spec().IDField
	return form.NewList[resource.Record](svc, func(r resource.Record) string {
		if id := r.Key(idField); id != "" {
			return id
		}
		return r.ID()
	}), nil
}

func (c *Console) NewOrganizationForm() *form.Controller[resource.Record] {
	return NewOrganizationForm(resource.For(c.API, resource.Organizations), c.Nav)
}

func (c *Console) NewUserForm() *form.Controller[resource.Record] {
	return NewUserForm(resource.For(c.API, resource.Users), c.Nav)
}

// NewBranchForm loads the organisation picker and starts the create-branch
// page. Without organisations the code prefix falls back to ORG.
func (c *Console) NewBranchForm(ctx context.Context) (*BranchForm, error) {
	orgs, err := resource.For(c.API, resource.Organizations).List(ctx, nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("load organizations for branch form")
	}
	return NewBranchForm(resource.For(c.API, resource.Branches), c.Nav, orgs), err
}

// SelectOrganization applies an organisation choice on the user page: the
// branch is reset and the organisation's branches are returned for the
// picker.
func (c *Console) SelectOrganization(ctx context.Context, f *form.Controller[resource.Record], orgID string) ([]resource.Record, error) {
	f.Set("tenant", orgID)
	f.Set("branch", "")
	if orgID == "" {
		return nil, nil
	}
	return resource.BranchesOf(ctx, c.API, orgID)
}

func (c *Console) NewPermissionMatrix(roleID int64) *PermissionMatrix {
	return NewPermissionMatrix(c.Roles, c.Nav, roleID)
}

func (c *Console) NewTenantSignupForm() *form.Controller[resource.Record] {
	return NewTenantSignupForm(c.Auth, c.Nav)
}

func (c *Console) NewMasterForm(name string) (*form.Controller[resource.Record], error) {
	if _, ok := resource.Lookup(name); !ok {
		return nil, ErrUnknownResource
	}
	return NewMasterForm(name, resource.For(c.API, name), c.Nav)
}

// Signed reports whether a session is active.
func (c *Console) Signed() bool {
	s, err := c.Sessions.Current()
	return err == nil && s.Active()
}
