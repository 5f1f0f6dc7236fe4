package domain

import "errors"

// ErrNotFound is returned by record stores when a referenced row is absent.
var ErrNotFound = errors.New("not found")

// Flow statuses. Complete and cancel are terminal.
const (
	FlowPending   = "Pending"
	FlowSubmitted = "Submitted"
	FlowReady     = "Ready"
	FlowComplete  = "Complete"
	FlowCancel    = "cancel"
)

// Participant statuses.
const (
	ParticipantPending  = "Pending"
	ParticipantComplete = "Complete"
	ParticipantReject   = "Reject"
)

// Log statuses.
const (
	LogPending  = "Pending"
	LogReady    = "Ready"
	LogComplete = "Complete"
	LogCancel   = "cancel"
)

// ResourceTag status written once the cloud call succeeded.
const TagStatusComplete = "Complete"

// Policy and flow types.
const (
	TypeAddTag    = "AddTag"
	TypeDeleteTag = "DeleteTag"
)

// LOV descriptions holding tag key/value pairs.
const (
	LOVKeyValue       = "KEYVALUE"
	LOVKeyValueDelete = "KEYVALUEDELETE"
)

const NotificationTypeApprovalFlow = "approvalFlow"

// IsTerminal reports whether a flow or log status accepts no further transitions.
func IsTerminal(status string) bool {
	return status == FlowComplete || status == FlowCancel
}

type ApprovalFlow struct {
	ID               int64   `json:"id"`
	PolicyID         int64   `json:"policyId"`
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	Status           string  `json:"status" enum:"Pending,Submitted,Ready,Complete,cancel"`
	CreatedByID      int64   `json:"createdById"`
	CreateDateTime   string  `json:"createDateTime" format:"date-time"`
	CompleteDateTime *string `json:"completeDateTime,omitempty" format:"date-time"`
	Comment          *string `json:"comment,omitempty"`
}

// FlowUpdate is the body of PUT ApprovalFlow/{id}.
type FlowUpdate struct {
	Status           string  `json:"status"`
	CompleteDateTime *string `json:"completeDateTime,omitempty" format:"date-time"`
	Comment          *string `json:"comment,omitempty"`
	UpdatedBy        string  `json:"updatedBy,omitempty"`
}

type ApprovalFlowParticipant struct {
	ID               int64  `json:"id"`
	ApprovalID       int64  `json:"approvalId"`
	ProfileID        int64  `json:"profileId"`
	ParticipantEmail string `json:"participantEmail"`
	Status           string `json:"status" enum:"Pending,Complete,Reject"`
	Comment          string `json:"comment,omitempty"`
	UpdateDateTime   string `json:"updateDateTime,omitempty" format:"date-time"`
}

type ApprovalFlowLog struct {
	ID               int64   `json:"id"`
	ApprovalID       int64   `json:"approvalId"`
	ResourceID       int64   `json:"resourceId"`
	CustomerID       *int64  `json:"customerId,omitempty"`
	AccountID        *int64  `json:"accountId,omitempty"`
	Status           string  `json:"status" enum:"Pending,Ready,Complete,cancel"`
	CompleteDateTime *string `json:"completeDateTime,omitempty" format:"date-time"`
}

// LogUpdate is the body of PUT ApprovalFlowLog/{id}.
type LogUpdate struct {
	Status           string  `json:"status"`
	CompleteDateTime *string `json:"completeDateTime,omitempty" format:"date-time"`
	UpdatedBy        string  `json:"updatedBy,omitempty"`
}

type Policy struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	OrganizationID *int64 `json:"organizationId,omitempty"`
	CustomerID     *int64 `json:"customerId,omitempty"`
	AccountID      *int64 `json:"accountId,omitempty"`
	Value1         string `json:"value1,omitempty"`
	Value2         string `json:"value2,omitempty"`
}

// LOV is one row of the generic key/value lookup table.
type LOV struct {
	ID             int64  `json:"id"`
	Description    string `json:"description"`
	GeneralID      *int64 `json:"generalId,omitempty"`
	Value1         string `json:"value1"`
	Value2         string `json:"value2"`
	OrganizationID *int64 `json:"organizationId,omitempty"`
	CustomerID     *int64 `json:"customerId,omitempty"`
	AccountID      *int64 `json:"accountId,omitempty"`
}

// LOVQuery filters LOV/search. Zero/nil fields are not applied.
type LOVQuery struct {
	Description string
	GeneralID   *int64
	CustomerID  *int64
	AccountID   *int64
}

type Resource struct {
	ID           int64  `json:"id"`
	ResourceID   string `json:"resourceId"`
	ResourceType string `json:"resourceType,omitempty"`
	Type         string `json:"type,omitempty"`
	Region       string `json:"region,omitempty"`
	CustomerID   *int64 `json:"customerId,omitempty"`
	AccountID    *int64 `json:"accountId,omitempty"`
	Status       string `json:"status,omitempty"`
}

type ResourceTag struct {
	ID             int64  `json:"id"`
	ResourceID     int64  `json:"resourceId"`
	CustomerID     *int64 `json:"customerId,omitempty"`
	AccountID      *int64 `json:"accountId,omitempty"`
	Key            string `json:"key"`
	Value          string `json:"value"`
	Status         string `json:"status"`
	IsActive       bool   `json:"isActive"`
	ApprovalID     *int64 `json:"approvalId,omitempty"`
	CreateDateTime string `json:"createDateTime,omitempty" format:"date-time"`
	UpdateDateTime string `json:"updateDateTime,omitempty" format:"date-time"`
}

// ResourceTagQuery filters ResourceTag/search. Nil fields are not applied.
type ResourceTagQuery struct {
	ResourceID int64
	CustomerID *int64
	AccountID  *int64
	Key        string
	Value      string
	IsActive   *bool
}

// ResourceTagUpdate is the body of PUT ResourceTag/{id}.
type ResourceTagUpdate struct {
	Status    string `json:"status"`
	IsActive  bool   `json:"isActive"`
	UpdatedBy string `json:"updatedBy,omitempty"`
}

type Profile struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Notification struct {
	ID             int64  `json:"id"`
	ProfileID      int64  `json:"profileId"`
	GeneralID      int64  `json:"generalId"`
	Type           string `json:"type"`
	Message        string `json:"message"`
	IsViewed       bool   `json:"isViewed"`
	CreateDateTime string `json:"createDateTime,omitempty" format:"date-time"`
}

type Email struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId,omitempty"`
	ActorID    string `json:"actorId"`
	Payload    string `json:"payload"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
