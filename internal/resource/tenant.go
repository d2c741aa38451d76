package resource

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// BranchesOf lists the branches of one organisation.
func BranchesOf(ctx context.Context, api Doer, orgID string) ([]Record, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, ErrMissingID
	}
	return For(api, Branches).List(ctx, url.Values{"tenant": {orgID}})
}

// Settings groups platform settings by category (loan, system, notify).
type Settings map[string][]Record

// SettingsService reads and writes platform settings.
type SettingsService struct {
	api Doer
}

func NewSettingsService(api Doer) *SettingsService {
	return &SettingsService{api: api}
}

const settingsPath = "adminpanel/settings/"

func (s *SettingsService) Get(ctx context.Context) (Settings, error) {
	out := Settings{}
	err := s.api.Do(ctx, http.MethodGet, settingsPath, nil, nil, &out)
	return out, err
}

// Update writes key/value pairs. Unknown keys are ignored by the backend.
func (s *SettingsService) Update(ctx context.Context, values map[string]any) error {
	return s.api.Do(ctx, http.MethodPut, settingsPath, nil, values, nil)
}

// TenantRules is a tenant's rule configuration row.
type TenantRules struct {
	ID     int64          `json:"id,omitempty"`
	Tenant any            `json:"tenant,omitempty"`
	Config map[string]any `json:"config"`
}

// RulesService manages the per-tenant rules configuration. A tenant has at
// most one row.
type RulesService struct {
	rows *Service[TenantRules]
}

func NewRulesService(api Doer) *RulesService {
	return &RulesService{rows: New[TenantRules](api, Catalog[RulesConfig])}
}

// Config returns the tenant's configuration, or nil when none is stored.
func (s *RulesService) Config(ctx context.Context, tenantID string) (*TenantRules, error) {
	var filters url.Values
	if tenantID != "" {
		filters = url.Values{"tenant": {tenantID}}
	}
	rows, err := s.rows.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	cfg := rows[0]
	return &cfg, nil
}

// SaveConfig updates the row when id is non-zero and creates it otherwise.
// Only the config document is sent; the backend derives the tenant from
// the token.
func (s *RulesService) SaveConfig(ctx context.Context, id int64, config map[string]any) (TenantRules, error) {
	body := map[string]any{"config": config}
	if id > 0 {
		return s.rows.Update(ctx, Stringify(id), body)
	}
	return s.rows.Create(ctx, body)
}

// SubscriptionActions accepted by the tenant subscription endpoint.
var SubscriptionActions = []string{"pause", "cancel", "resume"}

var ErrUnknownAction = errors.New("unknown subscription action")

// ActionResult is the backend's answer to a subscription action.
type ActionResult struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// TenantSubscriptionService lets a tenant administrator inspect and change
// their own plan.
type TenantSubscriptionService struct {
	api Doer
}

func NewTenantSubscriptionService(api Doer) *TenantSubscriptionService {
	return &TenantSubscriptionService{api: api}
}

func (s *TenantSubscriptionService) Mine(ctx context.Context) (Record, error) {
	var out Record
	err := s.api.Do(ctx, http.MethodGet, "adminpanel/subscriptions/my/", nil, nil, &out)
	return out, err
}

func (s *TenantSubscriptionService) Action(ctx context.Context, action string) (ActionResult, error) {
	action = strings.ToLower(strings.TrimSpace(action))
	known := false
	for _, a := range SubscriptionActions {
		if a == action {
			known = true
			break
		}
	}
	if !known {
		return ActionResult{}, ErrUnknownAction
	}
	var out ActionResult
	err := s.api.Do(ctx, http.MethodPost, "adminpanel/subscriptions/action/", nil, map[string]string{"action": action}, &out)
	return out, err
}
