package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"tagflow/internal/domain"
	"tagflow/internal/logging"
)

// LogStore reads and writes approval flow log rows.
type LogStore interface {
	SearchLogs(ctx context.Context, flowID int64) ([]domain.ApprovalFlowLog, error)
	UpdateLog(ctx context.Context, id int64, u domain.LogUpdate) error
}

// LogUpdater moves every log row of a flow to one status and checks the result.
type LogUpdater struct {
	Store       LogStore
	Concurrency int
	UpdatedBy   string
	Log         *zap.Logger
	Now         func() time.Time
}

// UpdateAll writes status to every log of the flow concurrently, then
// re-reads them. Rows still not at status yield a *VerificationError; write
// errors are only logged when verification passes. A flow with no logs is a
// no-op.
func (u LogUpdater) UpdateAll(ctx context.Context, flowID int64, status string) (int, error) {
	logs, err := u.Store.SearchLogs(ctx, flowID)
	if err != nil {
		return 0, fmt.Errorf("search logs: %w", err)
	}
	if len(logs) == 0 {
		return 0, nil
	}
	now := u.now().UTC().Format(time.RFC3339)

	var (
		mu        sync.Mutex
		writeErrs error
		written   int
	)
	p := pool.New().WithMaxGoroutines(workers(u.Concurrency))
	for _, l := range logs {
		p.Go(func() {
			err := u.Store.UpdateLog(ctx, l.ID, domain.LogUpdate{Status: status, CompleteDateTime: &now, UpdatedBy: u.UpdatedBy})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				writeErrs = multierr.Append(writeErrs, fmt.Errorf("log %d: %w", l.ID, err))
				return
			}
			written++
		})
	}
	p.Wait()

	after, err := u.Store.SearchLogs(ctx, flowID)
	if err != nil {
		return written, multierr.Append(writeErrs, fmt.Errorf("re-read logs: %w", err))
	}
	var pending []int64
	for _, l := range after {
		if l.Status != status {
			pending = append(pending, l.ID)
		}
	}
	if len(pending) > 0 {
		return written, &VerificationError{FlowID: flowID, Status: status, LogIDs: pending, Err: writeErrs}
	}
	if writeErrs != nil {
		logging.OrNop(u.Log).Warn("log writes reported errors but every log reached status",
			zap.Int64("flow_id", flowID), zap.String("status", status), zap.Error(writeErrs))
	}
	return len(after), nil
}

func (u LogUpdater) now() time.Time {
	if u.Now != nil {
		return u.Now()
	}
	return time.Now()
}

func workers(n int) int {
	if n < 1 {
		return DefaultConcurrency
	}
	return n
}
