package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"tagflow/internal/domain"
	"tagflow/internal/metrics"
	"tagflow/internal/tagging"
)

// run carries one Process invocation into a side effect.
type run struct {
	flow   domain.ApprovalFlow
	policy domain.Policy
	caller Caller
	log    *zap.Logger
	// pairs resolved by prepare, when the side effect resolves them early
	pairs []tagging.Pair
}

type tally struct {
	applied, removed, created, deactivated, missing atomic.Int64
}

func (t *tally) into(res *Result) {
	res.TagsApplied = int(t.applied.Load())
	res.TagsRemoved = int(t.removed.Load())
	res.ResourceTagsCreated = int(t.created.Load())
	res.ResourceTagsDeactivated = int(t.deactivated.Load())
	res.MissingResourceTags = int(t.missing.Load())
}

// sideEffect is what a policy type does once its flow completes.
type sideEffect interface {
	// prepare runs read-only checks before the flow is written.
	prepare(ctx context.Context, e Engine, r *run) error
	apply(ctx context.Context, e Engine, r run) (*tally, error)
}

var sideEffects = map[string]sideEffect{
	domain.TypeAddTag:    addTags{},
	domain.TypeDeleteTag: deleteTags{},
}

// errs collects fan-out failures.
type errs struct {
	mu  sync.Mutex
	err error
}

func (c *errs) add(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.err = multierr.Append(c.err, err)
	c.mu.Unlock()
}

type addTags struct{}

func (addTags) prepare(ctx context.Context, e Engine, r *run) error { return nil }

// apply tags every resource of the flow with every pair. Resources run in
// parallel; pairs on one resource run in order and stop at the first failure.
func (addTags) apply(ctx context.Context, e Engine, r run) (*tally, error) {
	t := &tally{}
	pairs, err := e.tagPairs(ctx, r.flow, r.policy, domain.LOVKeyValue)
	if err != nil {
		return t, err
	}
	if len(pairs) == 0 {
		r.log.Warn("no tag pairs stored for flow")
		return t, nil
	}
	logs, err := e.Records.SearchLogs(ctx, r.flow.ID)
	if err != nil {
		return t, fmt.Errorf("search logs: %w", err)
	}

	var failures errs
	p := pool.New().WithMaxGoroutines(workers(e.Concurrency))
	for _, l := range logs {
		p.Go(func() {
			failures.add(addTagsToResource(ctx, e, r, l, pairs, t))
		})
	}
	p.Wait()
	return t, failures.err
}

func addTagsToResource(ctx context.Context, e Engine, r run, l domain.ApprovalFlowLog, pairs []tagging.Pair, t *tally) error {
	resource, err := e.Records.GetResource(ctx, l.ResourceID)
	if err != nil {
		return fmt.Errorf("resource %d: %w", l.ResourceID, err)
	}
	desc := e.Defaults.Describe(resource)
	for _, pair := range pairs {
		if err := e.Tagger.Apply(ctx, desc, pair); err != nil {
			return fmt.Errorf("tag-create %s on resource %d: %w", pair, l.ResourceID, err)
		}
		t.applied.Add(1)
		_, err := e.Records.CreateResourceTag(ctx, domain.ResourceTag{
			ResourceID: l.ResourceID,
			CustomerID: r.policy.CustomerID,
			AccountID:  r.policy.AccountID,
			Key:        pair.Key,
			Value:      pair.Value,
			Status:     domain.TagStatusComplete,
			IsActive:   true,
			ApprovalID: domain.Int64(r.flow.ID),
		})
		if err != nil {
			return fmt.Errorf("record tag %s on resource %d: %w", pair, l.ResourceID, err)
		}
		t.created.Add(1)
	}
	return nil
}

type deleteTags struct{}

// prepare resolves the in-scope delete pairs; none is a validation failure.
func (deleteTags) prepare(ctx context.Context, e Engine, r *run) error {
	pairs, err := e.tagPairs(ctx, r.flow, r.policy, domain.LOVKeyValueDelete)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return fmt.Errorf("%w: policy %d", ErrNoTagPairs, r.policy.ID)
	}
	r.pairs = pairs
	return nil
}

// apply removes every in-scope pair from the flow's resources and retires the
// matching tag records. A pair with no record on a resource is only counted.
func (deleteTags) apply(ctx context.Context, e Engine, r run) (*tally, error) {
	t := &tally{}
	pairs := r.pairs
	logs, err := e.Records.SearchLogs(ctx, r.flow.ID)
	if err != nil {
		return t, fmt.Errorf("search logs: %w", err)
	}
	if len(logs) == 0 {
		r.log.Warn("flow has no resources to untag")
		return t, nil
	}
	descs, err := describeAll(ctx, e, logs)
	if err != nil {
		return t, err
	}

	for _, pair := range pairs {
		if err := e.Tagger.Remove(ctx, pair, descs); err != nil {
			return t, fmt.Errorf("tag-delete %s: %w", pair, err)
		}
		t.removed.Add(1)

		var failures errs
		p := pool.New().WithMaxGoroutines(workers(e.Concurrency))
		for _, l := range logs {
			p.Go(func() {
				failures.add(retireResourceTags(ctx, e, r, l, pair, t))
			})
		}
		p.Wait()
		if failures.err != nil {
			return t, failures.err
		}
	}
	return t, nil
}

func describeAll(ctx context.Context, e Engine, logs []domain.ApprovalFlowLog) ([]tagging.Descriptor, error) {
	descs := make([]tagging.Descriptor, len(logs))
	var failures errs
	p := pool.New().WithMaxGoroutines(workers(e.Concurrency))
	for i, l := range logs {
		p.Go(func() {
			resource, err := e.Records.GetResource(ctx, l.ResourceID)
			if err != nil {
				failures.add(fmt.Errorf("resource %d: %w", l.ResourceID, err))
				return
			}
			descs[i] = e.Defaults.Describe(resource)
		})
	}
	p.Wait()
	return descs, failures.err
}

// retireResourceTags looks tags up in the log's own customer/account scope.
func retireResourceTags(ctx context.Context, e Engine, r run, l domain.ApprovalFlowLog, pair tagging.Pair, t *tally) error {
	tags, err := e.Records.SearchResourceTags(ctx, domain.ResourceTagQuery{
		ResourceID: l.ResourceID,
		CustomerID: l.CustomerID,
		AccountID:  l.AccountID,
		Key:        pair.Key,
		Value:      pair.Value,
		IsActive:   domain.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("search tags %s on resource %d: %w", pair, l.ResourceID, err)
	}
	if len(tags) == 0 {
		t.missing.Add(1)
		metrics.ResourceTagMissesTotal.Inc()
		r.log.Warn("no active resource tag to retire",
			zap.Int64("resource_id", l.ResourceID),
			zap.String("tag", pair.String()))
		return nil
	}
	for _, tag := range tags {
		err := e.Records.UpdateResourceTag(ctx, tag.ID, domain.ResourceTagUpdate{
			Status:    domain.TagStatusComplete,
			IsActive:  false,
			UpdatedBy: r.caller.ID,
		})
		if err != nil {
			return fmt.Errorf("retire resource tag %d: %w", tag.ID, err)
		}
		t.deactivated.Add(1)
	}
	return nil
}
