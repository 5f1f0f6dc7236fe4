// Package engine drives approval flows to a terminal state and applies the
// policy's side effects on the way.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tagflow/internal/domain"
	"tagflow/internal/logging"
	"tagflow/internal/metrics"
	"tagflow/internal/notify"
	"tagflow/internal/tagging"
)

// DefaultConcurrency bounds per-row fan-out when Concurrency is unset.
const DefaultConcurrency = 8

// Records is the subset of the record API the engine calls. Both repo.Repo
// and records.Client satisfy it.
type Records interface {
	LogStore
	UpdateFlow(ctx context.Context, id int64, u domain.FlowUpdate) error
	UpdateFlowResourceStatus(ctx context.Context, flowID int64, status string) error
	GetPolicy(ctx context.Context, id int64) (domain.Policy, error)
	SearchLOV(ctx context.Context, q domain.LOVQuery) ([]domain.LOV, error)
	GetResource(ctx context.Context, id int64) (domain.Resource, error)
	SearchResourceTags(ctx context.Context, q domain.ResourceTagQuery) ([]domain.ResourceTag, error)
	CreateResourceTag(ctx context.Context, t domain.ResourceTag) (domain.ResourceTag, error)
	UpdateResourceTag(ctx context.Context, id int64, u domain.ResourceTagUpdate) error
}

// TagExecutor applies and removes cloud tags.
type TagExecutor interface {
	Apply(ctx context.Context, desc tagging.Descriptor, pair tagging.Pair) error
	Remove(ctx context.Context, pair tagging.Pair, resources []tagging.Descriptor) error
}

// Notifier tells recipients about a terminal transition. It never fails.
type Notifier interface {
	Notify(ctx context.Context, flow domain.ApprovalFlow, action, comment string) notify.Report
}

// Caller identifies who triggered the operation.
type Caller struct {
	ID        string `json:"id"`
	ProfileID int64  `json:"profileId,omitempty"`
}

// Engine runs Process and Cancel against a record store.
type Engine struct {
	Records     Records
	Tagger      TagExecutor
	Notifier    Notifier
	Defaults    tagging.Defaults
	Concurrency int
	Log         *zap.Logger
	Now         func() time.Time
}

// New returns an Engine with default concurrency and a wall clock.
func New(records Records, tagger TagExecutor, notifier Notifier, log *zap.Logger) Engine {
	return Engine{
		Records:     records,
		Tagger:      tagger,
		Notifier:    notifier,
		Concurrency: DefaultConcurrency,
		Log:         logging.OrNop(log),
		Now:         time.Now,
	}
}

// Result summarizes one Process or Cancel call.
type Result struct {
	Flow                    domain.ApprovalFlow `json:"flow"`
	Action                  string              `json:"action"`
	PolicyType              string              `json:"policyType,omitempty"`
	TagsApplied             int                 `json:"tagsApplied"`
	TagsRemoved             int                 `json:"tagsRemoved"`
	ResourceTagsCreated     int                 `json:"resourceTagsCreated"`
	ResourceTagsDeactivated int                 `json:"resourceTagsDeactivated"`
	MissingResourceTags     int                 `json:"missingResourceTags"`
	LogsUpdated             int                 `json:"logsUpdated"`
	Notifications           notify.Report       `json:"notifications"`
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	return logging.OrNop(e.Log)
}

func (e Engine) logs(caller Caller) LogUpdater {
	return LogUpdater{
		Store:       e.Records,
		Concurrency: e.Concurrency,
		UpdatedBy:   caller.ID,
		Log:         e.Log,
		Now:         e.Now,
	}
}

// Process completes a Ready flow and runs its policy's side effects. The
// precondition is checked on the given copy only; a stale copy of a flow
// that was already processed runs again.
func (e Engine) Process(ctx context.Context, flow domain.ApprovalFlow, caller Caller) (res Result, err error) {
	defer func() { observe("process", err) }()
	res = Result{Flow: flow, Action: notify.ActionProcess}
	if flow.Status != domain.FlowReady {
		return res, &StepError{Step: StepValidate, FlowID: flow.ID, Err: fmt.Errorf("%w: status is %s, want %s", ErrNotActionable, flow.Status, domain.FlowReady)}
	}
	log := e.log().With(zap.Int64("flow_id", flow.ID), zap.String("caller", caller.ID))

	// Policy lookup and side-effect checks only read, so they run before the
	// flow is written and a failure leaves it Ready.
	policy, err := e.Records.GetPolicy(ctx, flow.PolicyID)
	if err != nil {
		return res, &StepError{Step: StepResolvePolicy, FlowID: flow.ID, Err: fmt.Errorf("policy %d: %w", flow.PolicyID, err)}
	}
	res.PolicyType = policy.Type
	if flow.Type != "" && flow.Type != policy.Type {
		log.Info("flow type differs from policy type, dispatching on policy type", zap.String("flow_type", flow.Type), zap.String("policy_type", policy.Type))
	}
	r := run{flow: flow, policy: policy, caller: caller, log: log}
	effect, ok := sideEffects[policy.Type]
	if ok {
		if err := effect.prepare(ctx, e, &r); err != nil {
			step := StepResolvePolicy
			if errors.Is(err, ErrNoTagPairs) {
				step = StepValidate
			}
			return res, &StepError{Step: step, FlowID: flow.ID, Err: err}
		}
	}

	now := e.now().UTC().Format(time.RFC3339)
	err = timed(StepComplete, func() error {
		return e.Records.UpdateFlow(ctx, flow.ID, domain.FlowUpdate{Status: domain.FlowComplete, CompleteDateTime: &now, UpdatedBy: caller.ID})
	})
	if err != nil {
		return res, &StepError{Step: StepComplete, FlowID: flow.ID, Err: err}
	}
	res.Flow.Status = domain.FlowComplete
	res.Flow.CompleteDateTime = &now
	log.Info("flow completed")
	r.flow = res.Flow

	if ok {
		var t *tally
		err = timed(StepSideEffects, func() error {
			var err error
			t, err = effect.apply(ctx, e, r)
			return err
		})
		if t != nil {
			t.into(&res)
		}
		if err != nil {
			return res, &StepError{Step: StepSideEffects, FlowID: flow.ID, FlowCompleted: true, Err: err}
		}
	} else {
		log.Warn("no side effect registered for policy type", zap.String("policy_type", policy.Type))
	}

	err = timed(StepLogs, func() error {
		var err error
		res.LogsUpdated, err = e.logs(caller).UpdateAll(ctx, flow.ID, domain.LogComplete)
		return err
	})
	if err != nil {
		return res, &StepError{Step: StepLogs, FlowID: flow.ID, FlowCompleted: true, Err: err}
	}

	res.Notifications = e.notify(ctx, res.Flow, notify.ActionProcess, "")
	return res, nil
}

// Cancel terminates a flow with a reason. It never touches cloud tags.
func (e Engine) Cancel(ctx context.Context, flow domain.ApprovalFlow, reason string, caller Caller) (res Result, err error) {
	defer func() { observe("cancel", err) }()
	res = Result{Flow: flow, Action: notify.ActionCancel}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return res, &StepError{Step: StepValidate, FlowID: flow.ID, Err: ErrReasonRequired}
	}
	if domain.IsTerminal(flow.Status) {
		return res, &StepError{Step: StepValidate, FlowID: flow.ID, Err: fmt.Errorf("%w: already %s", ErrNotActionable, flow.Status)}
	}
	log := e.log().With(zap.Int64("flow_id", flow.ID), zap.String("caller", caller.ID))

	now := e.now().UTC().Format(time.RFC3339)
	err = timed(StepCancel, func() error {
		return e.Records.UpdateFlow(ctx, flow.ID, domain.FlowUpdate{Status: domain.FlowCancel, CompleteDateTime: &now, Comment: &reason, UpdatedBy: caller.ID})
	})
	if err != nil {
		return res, &StepError{Step: StepCancel, FlowID: flow.ID, Err: err}
	}
	res.Flow.Status = domain.FlowCancel
	res.Flow.CompleteDateTime = &now
	res.Flow.Comment = &reason
	log.Info("flow cancelled", zap.String("reason", reason))

	err = timed(StepLogs, func() error {
		var err error
		res.LogsUpdated, err = e.logs(caller).UpdateAll(ctx, flow.ID, domain.LogCancel)
		return err
	})
	if err != nil {
		return res, &StepError{Step: StepLogs, FlowID: flow.ID, FlowCompleted: true, Err: err}
	}

	err = timed(StepResources, func() error {
		return e.Records.UpdateFlowResourceStatus(ctx, flow.ID, domain.FlowCancel)
	})
	if err != nil {
		return res, &StepError{Step: StepResources, FlowID: flow.ID, FlowCompleted: true, Err: err}
	}

	res.Notifications = e.notify(ctx, res.Flow, notify.ActionCancel, reason)
	return res, nil
}

func (e Engine) notify(ctx context.Context, flow domain.ApprovalFlow, action, comment string) notify.Report {
	if e.Notifier == nil {
		return notify.Report{}
	}
	var report notify.Report
	_ = timed(StepNotify, func() error {
		report = e.Notifier.Notify(ctx, flow, action, comment)
		return nil
	})
	if len(report.Failures) > 0 {
		e.log().Warn("some notifications failed", zap.Int64("flow_id", flow.ID), zap.Int("failures", len(report.Failures)))
	}
	return report
}

func timed(step string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.FlowStepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
	return err
}

func observe(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.FlowOperationsTotal.WithLabelValues(op, outcome).Inc()
}
