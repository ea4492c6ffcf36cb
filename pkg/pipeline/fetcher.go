// Package pipeline runs one widget-data invocation: plan the query, resolve
// the caller's credentials, execute against the store and decode the answer.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/vjranagit/dashboard/pkg/errs"
	"github.com/vjranagit/dashboard/pkg/fluxcsv"
	"github.com/vjranagit/dashboard/pkg/metrics"
	"github.com/vjranagit/dashboard/pkg/query"
	"github.com/vjranagit/dashboard/pkg/tenant"
	"github.com/vjranagit/dashboard/pkg/types"
)

// Executor sends a planned query to the store and returns the raw body.
type Executor interface {
	Execute(ctx context.Context, plan query.Plan, creds tenant.Credentials) (string, error)
}

// invalidator is implemented by resolvers that cache credentials.
type invalidator interface {
	Invalidate(tenantID string)
}

// Result is the outcome of one successful invocation.
type Result struct {
	Plan    query.Plan
	Records []types.Record
	Stats   fluxcsv.Stats
}

// Fetcher wires the planner, resolver, store client and parser together.
// It holds no per-call state and is safe for concurrent use.
type Fetcher struct {
	resolver tenant.Resolver
	store    Executor
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher. m and logger may be nil.
func NewFetcher(resolver tenant.Resolver, store Executor, m *metrics.Metrics, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		resolver: resolver,
		store:    store,
		metrics:  m,
		logger:   logger.With("component", "pipeline"),
	}
}

// Fetch runs spec on behalf of userID. Validation happens before any
// collaborator is contacted. An empty record slice with a nil error means
// the store had no data.
func (f *Fetcher) Fetch(ctx context.Context, userID string, spec types.WidgetQuerySpec) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, errs.Unauthenticated("no user on request")
	}

	plan := query.Build(spec)

	tenantID, err := f.resolver.TenantForUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve tenant of user %q", userID)
	}
	creds, err := f.resolver.Credentials(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve credentials of tenant %q", tenantID)
	}

	raw, err := f.store.Execute(ctx, plan, creds)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthenticated) {
			if inv, ok := f.resolver.(invalidator); ok {
				inv.Invalidate(tenantID)
			}
		}
		return nil, err
	}

	records, stats := fluxcsv.Parse(raw)
	f.observe(plan, records, stats)
	return &Result{Plan: plan, Records: records, Stats: stats}, nil
}

func (f *Fetcher) observe(plan query.Plan, records []types.Record, stats fluxcsv.Stats) {
	if f.metrics != nil {
		f.metrics.ParsedRecords.Add(float64(len(records)))
		f.metrics.SkippedRows.Add(float64(stats.Skipped))
	}
	switch {
	case !stats.HeaderFound && stats.Lines > 0:
		f.logger.Warn("store response has no usable header",
			"store", plan.Store(), "series", plan.Series(), "lines", stats.Lines)
	case stats.Skipped > 0:
		f.logger.Warn("skipped malformed rows",
			"store", plan.Store(), "series", plan.Series(), "skipped", stats.Skipped, "records", len(records))
	}
}

// Respond builds the caller-facing envelope for a Fetch outcome.
func Respond(spec types.WidgetQuerySpec, res *Result, err error) types.Response {
	if err != nil {
		return types.Response{Success: false, Data: []types.Record{}, Error: errs.UserMessage(err)}
	}
	return types.Response{
		Success: true,
		Data:    res.Records,
		Metadata: &types.Metadata{
			Store:       spec.Store,
			Series:      spec.Series,
			Field:       spec.Field,
			FieldSet:    spec.FieldSet,
			Window:      spec.Window,
			Aggregation: spec.Reducer(),
			LatestOnly:  spec.LatestOnly,
			Shape:       res.Plan.Shape().String(),
			DataPoints:  len(res.Records),
			Skipped:     res.Stats.Skipped,
		},
	}
}
