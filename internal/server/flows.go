package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tagflow/internal/domain"
	"tagflow/internal/engine"
	"tagflow/internal/repo"
)

func registerFlows(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-flows",
		Method:      http.MethodGet,
		Path:        "/ApprovalFlow",
		Summary:     "List approval flows",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
	}) (*struct {
		Body FlowList `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		items, err := r.ListFlows(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FlowList `json:"body"`
		}{Body: FlowList{Items: orEmpty(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-flow",
		Method:      http.MethodGet,
		Path:        "/ApprovalFlow/{id}",
		Summary:     "Get approval flow",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.ApprovalFlow `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		f, err := r.GetFlow(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ApprovalFlow `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "update-flow",
		Method:        http.MethodPut,
		Path:          "/ApprovalFlow/{id}",
		Summary:       "Update approval flow status",
		DefaultStatus: http.StatusOK,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body domain.FlowUpdate `json:"body"`
	}) (*struct {
		Body domain.ApprovalFlow `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, PermWrite)
		if err != nil {
			return nil, handleError(err)
		}
		u := input.Body
		if u.UpdatedBy == "" {
			u.UpdatedBy = p.ActorID
		}
		if err := r.UpdateFlow(ctx, input.ID, u); err != nil {
			return nil, handleError(err)
		}
		f, err := r.GetFlow(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ApprovalFlow `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "update-flow-resource-status",
		Method:        http.MethodPut,
		Path:          "/ApprovalFlow/{id}/resources/status",
		Summary:       "Set the status of every resource in a flow",
		DefaultStatus: http.StatusOK,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64                 `path:"id"`
		Body ResourceStatusRequest `json:"body"`
	}) (*struct {
		Body AcceptedResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, PermWrite); err != nil {
			return nil, handleError(err)
		}
		if err := r.UpdateFlowResourceStatus(ctx, input.ID, input.Body.Status); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AcceptedResponse `json:"body"`
		}{Body: AcceptedResponse{Status: input.Body.Status}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-participants",
		Method:      http.MethodGet,
		Path:        "/ApprovalFlowParticipant",
		Summary:     "List participants of a flow",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ApprovalID int64 `query:"approvalId" required:"true"`
	}) (*struct {
		Body ParticipantList `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		items, err := r.ListParticipants(ctx, input.ApprovalID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ParticipantList `json:"body"`
		}{Body: ParticipantList{Items: orEmpty(items)}}, nil
	})
}

func registerFlowLogs(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "search-flow-logs",
		Method:      http.MethodGet,
		Path:        "/ApprovalFlowLog/search",
		Summary:     "List log rows of a flow",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ApprovalID int64 `query:"approvalId" required:"true"`
	}) (*struct {
		Body LogList `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		items, err := r.SearchLogs(ctx, input.ApprovalID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LogList `json:"body"`
		}{Body: LogList{Items: orEmpty(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "update-flow-log",
		Method:        http.MethodPut,
		Path:          "/ApprovalFlowLog/{id}",
		Summary:       "Update a flow log row",
		DefaultStatus: http.StatusOK,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64            `path:"id"`
		Body domain.LogUpdate `json:"body"`
	}) (*struct {
		Body AcceptedResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, PermWrite)
		if err != nil {
			return nil, handleError(err)
		}
		u := input.Body
		if u.UpdatedBy == "" {
			u.UpdatedBy = p.ActorID
		}
		if err := r.UpdateLog(ctx, input.ID, u); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AcceptedResponse `json:"body"`
		}{Body: AcceptedResponse{Status: u.Status}}, nil
	})
}

// registerFlowActions runs the engine in-process against the server's store.
func registerFlowActions(api huma.API, r repo.Repo, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "process-flow",
		Method:      http.MethodPost,
		Path:        "/ApprovalFlow/{id}/process",
		Summary:     "Complete a Ready flow and apply its policy",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body FlowActionResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, PermProcess)
		if err != nil {
			return nil, handleError(err)
		}
		flow, err := r.GetFlow(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.Process(ctx, flow, engine.Caller{ID: p.ActorID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FlowActionResponse `json:"body"`
		}{Body: FlowActionResponse{Result: res}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-flow",
		Method:      http.MethodPost,
		Path:        "/ApprovalFlow/{id}/cancel",
		Summary:     "Cancel a flow with a reason",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64         `path:"id"`
		Body CancelRequest `json:"body"`
	}) (*struct {
		Body FlowActionResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, PermProcess)
		if err != nil {
			return nil, handleError(err)
		}
		flow, err := r.GetFlow(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.Cancel(ctx, flow, input.Body.Reason, engine.Caller{ID: p.ActorID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FlowActionResponse `json:"body"`
		}{Body: FlowActionResponse{Result: res}}, nil
	})
}
