package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"tagflow/internal/domain"
	"tagflow/internal/repo"
)

func registerOutbox(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-notification",
		Method:        http.MethodPost,
		Path:          "/Notification",
		Summary:       "Create in-app notification",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body domain.Notification `json:"body"`
	}) (*struct {
		Body domain.Notification `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, PermWrite); err != nil {
			return nil, handleError(err)
		}
		n := input.Body
		n.ID = 0
		n, err := r.CreateNotification(ctx, n)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Notification `json:"body"`
		}{Body: n}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "send-email",
		Method:        http.MethodPost,
		Path:          "/Email/send",
		Summary:       "Queue an email",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body domain.Email `json:"body"`
	}) (*struct {
		Body AcceptedResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, PermWrite); err != nil {
			return nil, handleError(err)
		}
		if strings.TrimSpace(input.Body.To) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "to is required", nil)
		}
		if err := r.SendEmail(ctx, input.Body); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AcceptedResponse `json:"body"`
		}{Body: AcceptedResponse{Status: "queued"}}, nil
	})
}

func registerEvents(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"20" minimum:"1" maximum:"500"`
		EntityKind string `query:"entityKind"`
		EntityID   string `query:"entityId"`
	}) (*struct {
		Body EventList `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		items, err := r.LatestEvents(ctx, input.Limit, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventList `json:"body"`
		}{Body: EventList{Items: orEmpty(items)}}, nil
	})
}
