package runner

import (
	"context"
	"fmt"

	"github.com/ethereum-optimism/infra/op-describe/metrics"
	"github.com/ethereum-optimism/infra/op-describe/registry"
	"github.com/ethereum-optimism/infra/op-describe/tracker"
	"github.com/ethereum-optimism/infra/op-describe/types"
	"go.opentelemetry.io/otel/codes"
)

// It registers a case against an existing suite and runs its body in the background.
// It panics with a *StructuralError when no suite has the given parent id.
func (r *Run) It(ctx context.Context, params types.CaseParams, body CaseFunc) *tracker.Handle {
	suite, ok := r.registry.GetSuite(params.ParentID)
	if !ok {
		panic(&StructuralError{Op: "add test", Name: params.Name, ParentID: params.ParentID, Err: registry.ErrSuiteNotFound})
	}

	h := tracker.NewHandle(fmt.Sprintf("case %s", params.Name))
	r.tracker.Add(h)

	timeout := params.Timeout
	if timeout == 0 {
		timeout = r.opts.Timeout
	}
	start := r.clock.Now()

	go func() {
		ctx, span := r.tracer.Start(ctx, fmt.Sprintf("test %s", params.Name))
		defer span.End()

		c := &types.Case{
			Name:      params.Name,
			StartTime: start,
			Status:    types.CaseStatusPending,
		}
		defer func() {
			r.registry.AddTestToSuite(suite, c)
			metrics.RecordCase(c.Status, c.Duration, c.TimedOut)
			h.Settle(c.Error)
		}()

		timedOut, err := r.race(ctx, params.Name, timeout, func(ctx context.Context) error {
			if body == nil {
				return nil
			}
			return body(ctx)
		})
		c.Duration = r.clock.Since(start)

		if err != nil {
			c.Status = types.CaseStatusFailed
			c.Error = err
			c.TimedOut = timedOut
			r.recordFailure()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.log.Debug("Case failed", "suite", suite.Name, "case", c.Name, "err", err)
			return
		}
		c.Status = types.CaseStatusPassed
		r.recordPass()
	}()
	return h
}
