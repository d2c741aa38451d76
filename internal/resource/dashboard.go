package resource

import (
	"context"
	"net/http"
)

const dashboardPath = "dashboard/full"

// KPIs is the headline block of the dashboard payload.
type KPIs struct {
	TotalTenants    int64  `json:"totalTenants"`
	TenantsTrend    string `json:"tenantsTrend,omitempty"`
	TotalBranches   int64  `json:"totalBranches"`
	ActiveUsers     int64  `json:"activeUsers"`
	UsersTrend      string `json:"usersTrend,omitempty"`
	TotalLoans      int64  `json:"totalLoans"`
	LoansTrend      string `json:"loansTrend,omitempty"`
	DisbursedAmount string `json:"disbursedAmount"`
	AmountTrend     string `json:"amountTrend,omitempty"`
	APIStatus       string `json:"apiStatus"`
}

// Charts holds chart series; the console renders none of them itself.
type Charts struct {
	MonthlyDisbursement    []Record `json:"monthlyDisbursement"`
	LoanStatusDistribution []Record `json:"loanStatusDistribution"`
	RecentActivity         []Record `json:"recentActivity"`
	UsersPerBranch         []Record `json:"usersPerBranch"`
}

// Dashboard is the full dashboard payload.
type Dashboard struct {
	KPIs   KPIs     `json:"kpis"`
	Charts Charts   `json:"charts"`
	Alerts []Record `json:"alerts"`
}

// SummaryCards is what the overview cards display.
type SummaryCards struct {
	TotalOrganizations int64  `json:"totalOrganizations"`
	TotalBranches      int64  `json:"totalBranches"`
	ActiveUsers        int64  `json:"activeUsers"`
	ActiveLoans        int64  `json:"activeLoans"`
	DailyDisbursement  string `json:"dailyDisbursement"`
	APIStatus          string `json:"apiStatus"`
	Alerts             int    `json:"alerts"`
}

const (
	defaultDisbursement = "₹0"
	apiStatusOnline     = "Online"
	apiStatusError      = "Error"
)

// Summary maps the KPI block onto the overview cards.
func (d Dashboard) Summary() SummaryCards {
	cards := SummaryCards{
		TotalOrganizations: d.KPIs.TotalTenants,
		TotalBranches:      d.KPIs.TotalBranches,
		ActiveUsers:        d.KPIs.ActiveUsers,
		ActiveLoans:        d.KPIs.TotalLoans,
		DailyDisbursement:  d.KPIs.DisbursedAmount,
		APIStatus:          d.KPIs.APIStatus,
		Alerts:             len(d.Alerts),
	}
	if cards.DailyDisbursement == "" {
		cards.DailyDisbursement = defaultDisbursement
	}
	if cards.APIStatus == "" {
		cards.APIStatus = apiStatusOnline
	}
	return cards
}

// UnavailableSummary is shown when the dashboard cannot be fetched.
func UnavailableSummary() SummaryCards {
	return SummaryCards{DailyDisbursement: defaultDisbursement, APIStatus: apiStatusError}
}

// DashboardService reads the aggregated dashboard.
type DashboardService struct {
	api Doer
}

func NewDashboardService(api Doer) *DashboardService {
	return &DashboardService{api: api}
}

// Full fetches the whole payload in one call.
func (s *DashboardService) Full(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	err := s.api.Do(ctx, http.MethodGet, dashboardPath, nil, nil, &d)
	return d, err
}

// Summary fetches the payload and maps it to the overview cards. On failure
// it returns UnavailableSummary together with the error.
func (s *DashboardService) Summary(ctx context.Context) (SummaryCards, error) {
	d, err := s.Full(ctx)
	if err != nil {
		return UnavailableSummary(), err
	}
	return d.Summary(), nil
}
