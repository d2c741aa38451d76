package console

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/sync/errgroup"

	"brdconsole.org/internal/resource"
)

// Overview is what the dashboard page shows. Every block is fetched on its
// own; a failed block carries its error and leaves the others intact.
type Overview struct {
	Summary          resource.SummaryCards
	SummaryErr       error
	Organizations    []resource.Record
	OrganizationsErr error
	Branches         []resource.Record
	BranchesErr      error
	Activity         []resource.Record
	ActivityErr      error
}

// Err returns the first block error, if any.
func (o Overview) Err() error {
	for _, err := range []error{o.SummaryErr, o.OrganizationsErr, o.BranchesErr, o.ActivityErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

const activityLimit = "10"

// LoadDashboard fetches the dashboard blocks concurrently. The group's
// error is the first failed block; the others still complete.
func (c *Console) LoadDashboard(ctx context.Context) Overview {
	var (
		o Overview
		g errgroup.Group
	)
	block := func(name string, fetch func() error) {
		g.Go(func() error {
			if err := fetch(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	block("summary", func() error {
		o.Summary, o.SummaryErr = c.Dashboard.Summary(ctx)
		return o.SummaryErr
	})
	block("organizations", func() error {
		o.Organizations, o.OrganizationsErr = resource.For(c.API, resource.Organizations).List(ctx, nil)
		return o.OrganizationsErr
	})
	block("branches", func() error {
		o.Branches, o.BranchesErr = resource.For(c.API, resource.Branches).List(ctx, nil)
		return o.BranchesErr
	})
	block("activity", func() error {
		o.Activity, o.ActivityErr = resource.For(c.API, resource.AuditLogs).List(ctx, url.Values{"limit": {activityLimit}})
		return o.ActivityErr
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn().Err(err).Msg("dashboard incomplete")
	}
	return o
}
