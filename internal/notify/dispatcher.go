package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"tagflow/internal/domain"
	"tagflow/internal/logging"
	"tagflow/internal/metrics"
)

// Delivery channels.
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
)

// Outbox is where the dispatcher delivers.
type Outbox interface {
	CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error)
	SendEmail(ctx context.Context, e domain.Email) error
}

// Failure records one suppressed delivery error.
type Failure struct {
	ProfileID int64  `json:"profileId"`
	Channel   string `json:"channel"`
	Error     string `json:"error"`
}

// Report summarizes a dispatch.
type Report struct {
	Recipients    int       `json:"recipients"`
	Notifications int       `json:"notifications"`
	Emails        int       `json:"emails"`
	Skipped       int       `json:"skipped"`
	Failures      []Failure `json:"failures,omitempty"`
}

// DefaultCallTimeout bounds one delivery call when no timeout is configured.
const DefaultCallTimeout = 10 * time.Second

// Dispatcher delivers intents to the outbox. Every recipient is attempted on
// every channel; a slow provider is cut off per call by CallTimeout.
type Dispatcher struct {
	Outbox      Outbox
	Concurrency int
	CallTimeout time.Duration
	Log         *zap.Logger
}

func NewDispatcher(outbox Outbox, concurrency int, callTimeout time.Duration, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		Outbox:      outbox,
		Concurrency: concurrency,
		CallTimeout: callTimeout,
		Log:         logging.OrNop(log),
	}
}

func (d *Dispatcher) call(ctx context.Context, fn func(context.Context) error) error {
	timeout := d.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// Dispatch delivers every intent. Failures are logged and reported, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, intents []Intent) Report {
	var (
		mu     sync.Mutex
		report = Report{Recipients: len(intents)}
	)
	record := func(in Intent, channel string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failures = append(report.Failures, Failure{ProfileID: in.ProfileID, Channel: channel, Error: err.Error()})
			metrics.NotificationsAttemptedTotal.WithLabelValues(channel, "failure").Inc()
			logging.OrNop(d.Log).Warn("notification delivery failed",
				zap.Int64("flow_id", in.FlowID),
				zap.Int64("profile_id", in.ProfileID),
				zap.String("channel", channel),
				zap.Error(err))
			return
		}
		metrics.NotificationsAttemptedTotal.WithLabelValues(channel, "success").Inc()
		switch channel {
		case ChannelInApp:
			report.Notifications++
		case ChannelEmail:
			report.Emails++
		}
	}

	n := d.Concurrency
	if n < 1 {
		n = 1
	}
	p := pool.New().WithMaxGoroutines(n)
	for _, in := range intents {
		p.Go(func() {
			err := d.call(ctx, func(ctx context.Context) error {
				_, err := d.Outbox.CreateNotification(ctx, domain.Notification{
					ProfileID: in.ProfileID,
					GeneralID: in.FlowID,
					Type:      domain.NotificationTypeApprovalFlow,
					Message:   in.Message,
					IsViewed:  false,
				})
				return err
			})
			record(in, ChannelInApp, err)

			if in.Email == "" {
				mu.Lock()
				report.Skipped++
				mu.Unlock()
				metrics.NotificationsAttemptedTotal.WithLabelValues(ChannelEmail, "skipped").Inc()
				return
			}
			err = d.call(ctx, func(ctx context.Context) error {
				return d.Outbox.SendEmail(ctx, domain.Email{
					To:             in.Email,
					Subject:        in.Subject,
					Body:           in.Body,
					IdempotencyKey: in.Key,
				})
			})
			record(in, ChannelEmail, err)
		})
	}
	p.Wait()
	return report
}
