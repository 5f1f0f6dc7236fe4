package server

import (
	"tagflow/internal/domain"
	"tagflow/internal/engine"
)

// List envelopes. Items is never null.

type FlowList struct {
	Items []domain.ApprovalFlow `json:"items"`
}

type ParticipantList struct {
	Items []domain.ApprovalFlowParticipant `json:"items"`
}

type LogList struct {
	Items []domain.ApprovalFlowLog `json:"items"`
}

type LOVList struct {
	Items []domain.LOV `json:"items"`
}

type ResourceTagList struct {
	Items []domain.ResourceTag `json:"items"`
}

type EventList struct {
	Items []domain.Event `json:"items"`
}

type ResourceStatusRequest struct {
	Status string `json:"status" minLength:"1"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type AcceptedResponse struct {
	Status string `json:"status"`
}

// FlowActionResponse is returned by process and cancel.
type FlowActionResponse struct {
	Result engine.Result `json:"result"`
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
