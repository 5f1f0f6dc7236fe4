// Package notify tells approvers and the submitter that a flow reached a
// terminal state.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tagflow/internal/domain"
	"tagflow/internal/logging"
)

// Actions that trigger notifications.
const (
	ActionProcess = "process"
	ActionCancel  = "cancel"
)

// Recipient roles.
const (
	RoleParticipant = "participant"
	RoleSubmitter   = "submitter"
)

// Intent is one recipient's pending notice.
type Intent struct {
	FlowID    int64
	ProfileID int64
	Role      string
	Email     string
	Subject   string
	Body      string
	Message   string
	// Key makes email delivery idempotent per flow, action and recipient.
	Key string
}

// Directory is what the planner reads to find recipients.
type Directory interface {
	ListParticipants(ctx context.Context, flowID int64) ([]domain.ApprovalFlowParticipant, error)
	GetProfile(ctx context.Context, id int64) (domain.Profile, error)
}

type Planner struct {
	Directory Directory
	Log       *zap.Logger
}

// Plan builds one intent per participant plus one for the submitter. Lookup
// failures degrade the plan instead of failing it.
func (p Planner) Plan(ctx context.Context, flow domain.ApprovalFlow, action, comment string) []Intent {
	log := logging.OrNop(p.Log).With(zap.Int64("flow_id", flow.ID), zap.String("action", action))
	subject, message := render(flow, action, comment)

	var intents []Intent
	participants, err := p.Directory.ListParticipants(ctx, flow.ID)
	if err != nil {
		log.Warn("participant lookup failed, notifying submitter only", zap.Error(err))
	}
	for _, part := range participants {
		intents = append(intents, Intent{
			FlowID:    flow.ID,
			ProfileID: part.ProfileID,
			Role:      RoleParticipant,
			Email:     strings.TrimSpace(part.ParticipantEmail),
			Subject:   subject,
			Body:      message,
			Message:   message,
			Key:       intentKey(flow.ID, action, RoleParticipant, part.ProfileID),
		})
	}

	submitter := Intent{
		FlowID:    flow.ID,
		ProfileID: flow.CreatedByID,
		Role:      RoleSubmitter,
		Subject:   subject,
		Body:      message,
		Message:   message,
		Key:       intentKey(flow.ID, action, RoleSubmitter, flow.CreatedByID),
	}
	profile, err := p.Directory.GetProfile(ctx, flow.CreatedByID)
	if err != nil {
		log.Warn("submitter profile lookup failed, skipping email", zap.Int64("profile_id", flow.CreatedByID), zap.Error(err))
	} else {
		submitter.Email = strings.TrimSpace(profile.Email)
	}
	return append(intents, submitter)
}

func intentKey(flowID int64, action, role string, profileID int64) string {
	name := fmt.Sprintf("tagflow:%d:%s:%s:%d", flowID, action, role, profileID)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func render(flow domain.ApprovalFlow, action, comment string) (string, string) {
	name := flow.Name
	if name == "" {
		name = fmt.Sprintf("#%d", flow.ID)
	}
	switch action {
	case ActionCancel:
		msg := fmt.Sprintf("Approval flow %s (%s) was cancelled.", name, flow.Type)
		if comment != "" {
			msg += " Reason: " + comment
		}
		return "Approval flow cancelled: " + name, msg
	default:
		return "Approval flow completed: " + name,
			fmt.Sprintf("Approval flow %s (%s) was approved and processed.", name, flow.Type)
	}
}

// Notifier plans and dispatches in one call.
type Notifier struct {
	Planner    Planner
	Dispatcher *Dispatcher
}

func (n Notifier) Notify(ctx context.Context, flow domain.ApprovalFlow, action, comment string) Report {
	return n.Dispatcher.Dispatch(ctx, n.Planner.Plan(ctx, flow, action, comment))
}
