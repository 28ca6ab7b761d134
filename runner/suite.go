package runner

import (
	"context"
	"fmt"

	"github.com/ethereum-optimism/infra/op-describe/metrics"
	"github.com/ethereum-optimism/infra/op-describe/tracker"
	"github.com/ethereum-optimism/infra/op-describe/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Describe registers a suite and runs its body in the background.
// The suite is part of the tree before Describe returns; the returned handle
// settles when the body returns. Cases and suites the body starts without
// waiting on are still covered by the run's pending set.
func (r *Run) Describe(ctx context.Context, params types.SuiteParams, body SuiteFunc) *tracker.Handle {
	if params.ID == "" {
		params.ID = params.Name
	}
	start := r.clock.Now()
	suite := r.registry.PushSuite(params, start)

	h := tracker.NewHandle(fmt.Sprintf("suite %s", suite.Name))
	r.tracker.Add(h)

	go func() {
		ctx, span := r.tracer.Start(ctx, fmt.Sprintf("suite %s", suite.Name))
		defer span.End()
		span.SetAttributes(attribute.String("suite.id", suite.ID))

		err := r.protect(ctx, func(ctx context.Context) error {
			if body == nil {
				return nil
			}
			return body(ctx, suite)
		})
		r.registry.FinishSuite(suite, r.clock.Since(start), err)

		if err != nil {
			r.log.Error("Suite failed", "suite", suite.Name, "id", suite.ID, "err", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.RecordSuiteError()
			if r.opts.CountSuiteErrors {
				r.recordFailure()
			}
		}
		h.Settle(err)
	}()
	return h
}
