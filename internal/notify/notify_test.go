package notify_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagflow/internal/domain"
	"tagflow/internal/notify"
)

type fakeDirectory struct {
	participants []domain.ApprovalFlowParticipant
	partErr      error
	profile      domain.Profile
	profileErr   error
}

func (f fakeDirectory) ListParticipants(ctx context.Context, flowID int64) ([]domain.ApprovalFlowParticipant, error) {
	return f.participants, f.partErr
}

func (f fakeDirectory) GetProfile(ctx context.Context, id int64) (domain.Profile, error) {
	return f.profile, f.profileErr
}

type fakeOutbox struct {
	mu            sync.Mutex
	notifications []domain.Notification
	emails        []domain.Email
	failProfile   int64
	failEmailTo   string
	emailErr      error
}

func (f *fakeOutbox) CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if n.ProfileID == f.failProfile {
		return n, errors.New("notification store unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return n, nil
}

func (f *fakeOutbox) SendEmail(ctx context.Context, e domain.Email) error {
	if f.emailErr != nil {
		return f.emailErr
	}
	if e.To == f.failEmailTo {
		return errors.New("smtp rejected")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, e)
	return nil
}

var flow = domain.ApprovalFlow{ID: 42, Name: "tag prod", Type: domain.TypeAddTag, CreatedByID: 1}

func threeApprovers() []domain.ApprovalFlowParticipant {
	return []domain.ApprovalFlowParticipant{
		{ID: 1, ApprovalID: 42, ProfileID: 11, ParticipantEmail: "a@example.com"},
		{ID: 2, ApprovalID: 42, ProfileID: 12, ParticipantEmail: "b@example.com"},
		{ID: 3, ApprovalID: 42, ProfileID: 13, ParticipantEmail: "c@example.com"},
	}
}

func TestPlanParticipantsAndSubmitter(t *testing.T) {
	p := notify.Planner{Directory: fakeDirectory{
		participants: threeApprovers(),
		profile:      domain.Profile{ID: 1, Email: "owner@example.com"},
	}}
	intents := p.Plan(context.Background(), flow, notify.ActionCancel, "wrong account")
	require.Len(t, intents, 4)
	assert.Equal(t, notify.RoleSubmitter, intents[3].Role)
	assert.Equal(t, "owner@example.com", intents[3].Email)
	assert.Contains(t, intents[0].Message, "cancelled")
	assert.Contains(t, intents[0].Message, "wrong account")
	assert.NotEqual(t, intents[0].Key, intents[1].Key)

	again := p.Plan(context.Background(), flow, notify.ActionCancel, "wrong account")
	assert.Equal(t, intents[0].Key, again[0].Key)
}

func TestPlanDegradesOnLookupFailures(t *testing.T) {
	p := notify.Planner{Directory: fakeDirectory{
		partErr:    errors.New("timeout"),
		profileErr: domain.ErrNotFound,
	}}
	intents := p.Plan(context.Background(), flow, notify.ActionProcess, "")
	require.Len(t, intents, 1)
	assert.Equal(t, notify.RoleSubmitter, intents[0].Role)
	assert.Equal(t, int64(1), intents[0].ProfileID)
	assert.Empty(t, intents[0].Email)
}

func TestDispatchIsolatesRecipientFailures(t *testing.T) {
	outbox := &fakeOutbox{failProfile: 12, failEmailTo: "c@example.com"}
	p := notify.Planner{Directory: fakeDirectory{
		participants: threeApprovers(),
		profile:      domain.Profile{ID: 1},
	}}
	d := notify.NewDispatcher(outbox, 4, time.Second, nil)

	report := d.Dispatch(context.Background(), p.Plan(context.Background(), flow, notify.ActionProcess, ""))
	assert.Equal(t, 4, report.Recipients)
	assert.Equal(t, 3, report.Notifications)
	assert.Equal(t, 2, report.Emails)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Failures, 2)

	for _, n := range outbox.notifications {
		assert.Equal(t, int64(42), n.GeneralID)
		assert.Equal(t, domain.NotificationTypeApprovalFlow, n.Type)
		assert.False(t, n.IsViewed)
	}
}

// rejectingOutbox refuses email for the listed profiles and can stall until
// the call's context ends. It records every attempt.
type rejectingOutbox struct {
	mu        sync.Mutex
	attempted map[int64]int
	reject    map[string]bool
	stall     bool
}

func (r *rejectingOutbox) CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if r.stall {
		<-ctx.Done()
		return n, ctx.Err()
	}
	return n, nil
}

func (r *rejectingOutbox) SendEmail(ctx context.Context, e domain.Email) error {
	r.mu.Lock()
	if r.attempted == nil {
		r.attempted = map[int64]int{}
	}
	var id int64
	fmt.Sscanf(e.To, "p%d@example.com", &id)
	r.attempted[id]++
	r.mu.Unlock()
	if r.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	if r.reject[e.To] {
		return errors.New("provider rejected")
	}
	return nil
}

func recipients(flowID int64, n int) []notify.Intent {
	var intents []notify.Intent
	for i := int64(1); i <= int64(n); i++ {
		intents = append(intents, notify.Intent{FlowID: flowID, ProfileID: i, Email: fmt.Sprintf("p%d@example.com", i), Message: "m"})
	}
	return intents
}

func TestDispatchAttemptsEveryRecipientAfterRepeatedFailures(t *testing.T) {
	outbox := &rejectingOutbox{reject: map[string]bool{}}
	for i := 1; i <= 6; i++ {
		outbox.reject[fmt.Sprintf("p%d@example.com", i)] = true
	}
	d := notify.NewDispatcher(outbox, 1, 0, nil)

	report := d.Dispatch(context.Background(), recipients(42, 7))
	assert.Equal(t, 7, report.Notifications)
	assert.Equal(t, 1, report.Emails)
	require.Len(t, report.Failures, 6)
	for id := int64(1); id <= 7; id++ {
		assert.Equal(t, 1, outbox.attempted[id], "email for profile %d", id)
	}

	// Failures from one flow do not suppress the next one.
	report = d.Dispatch(context.Background(), recipients(99, 7)[6:])
	assert.Empty(t, report.Failures)
	assert.Equal(t, 1, report.Emails)
	assert.Equal(t, 2, outbox.attempted[7])
}

func TestDispatchCallTimeoutBoundsStalledProvider(t *testing.T) {
	outbox := &rejectingOutbox{stall: true}
	d := notify.NewDispatcher(outbox, 2, 20*time.Millisecond, nil)

	start := time.Now()
	report := d.Dispatch(context.Background(), recipients(42, 3))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 0, report.Notifications)
	assert.Equal(t, 0, report.Emails)
	require.Len(t, report.Failures, 6)
	for _, f := range report.Failures {
		assert.Contains(t, f.Error, context.DeadlineExceeded.Error())
	}
	for id := int64(1); id <= 3; id++ {
		assert.Equal(t, 1, outbox.attempted[id])
	}
}
