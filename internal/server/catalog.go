package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tagflow/internal/domain"
	"tagflow/internal/repo"
)

func registerCatalog(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "get-policy",
		Method:      http.MethodGet,
		Path:        "/Policy/{id}",
		Summary:     "Get policy",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Policy `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		p, err := r.GetPolicy(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Policy `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-lov",
		Method:      http.MethodGet,
		Path:        "/LOV/search",
		Summary:     "Search list-of-values rows",
	}, func(ctx context.Context, input *struct {
		Description string `query:"description"`
		GeneralID   int64  `query:"generalId"`
		CustomerID  int64  `query:"customerId"`
		AccountID   int64  `query:"accountId"`
	}) (*struct {
		Body LOVList `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		items, err := r.SearchLOV(ctx, domain.LOVQuery{
			Description: input.Description,
			GeneralID:   optionalID(input.GeneralID),
			CustomerID:  optionalID(input.CustomerID),
			AccountID:   optionalID(input.AccountID),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LOVList `json:"body"`
		}{Body: LOVList{Items: orEmpty(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-resource",
		Method:      http.MethodGet,
		Path:        "/Resource/{id}",
		Summary:     "Get resource",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Resource `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		res, err := r.GetResource(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Resource `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/Profile/{id}",
		Summary:     "Get profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Profile `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		p, err := r.GetProfile(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Profile `json:"body"`
		}{Body: p}, nil
	})
}

func registerResourceTags(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "search-resource-tags",
		Method:      http.MethodGet,
		Path:        "/ResourceTag/search",
		Summary:     "Search resource tag records",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ResourceID int64  `query:"resourceId"`
		CustomerID int64  `query:"customerId"`
		AccountID  int64  `query:"accountId"`
		Key        string `query:"key"`
		Value      string `query:"value"`
		IsActive   string `query:"isActive" enum:"true,false"`
	}) (*struct {
		Body ResourceTagList `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, PermRead); err != nil {
			return nil, handleError(err)
		}
		q := domain.ResourceTagQuery{
			ResourceID: input.ResourceID,
			CustomerID: optionalID(input.CustomerID),
			AccountID:  optionalID(input.AccountID),
			Key:        input.Key,
			Value:      input.Value,
		}
		if input.IsActive != "" {
			q.IsActive = domain.Bool(input.IsActive == "true")
		}
		items, err := r.SearchResourceTags(ctx, q)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResourceTagList `json:"body"`
		}{Body: ResourceTagList{Items: orEmpty(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-resource-tag",
		Method:        http.MethodPost,
		Path:          "/ResourceTag",
		Summary:       "Create resource tag record",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body domain.ResourceTag `json:"body"`
	}) (*struct {
		Body domain.ResourceTag `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, PermWrite); err != nil {
			return nil, handleError(err)
		}
		if input.Body.Key == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "key is required", nil)
		}
		tag := input.Body
		tag.ID = 0
		tag, err := r.CreateResourceTag(ctx, tag)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ResourceTag `json:"body"`
		}{Body: tag}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "update-resource-tag",
		Method:        http.MethodPut,
		Path:          "/ResourceTag/{id}",
		Summary:       "Update resource tag status and activity",
		DefaultStatus: http.StatusOK,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64                    `path:"id"`
		Body domain.ResourceTagUpdate `json:"body"`
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
		if err := r.UpdateResourceTag(ctx, input.ID, u); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AcceptedResponse `json:"body"`
		}{Body: AcceptedResponse{Status: u.Status}}, nil
	})
}
