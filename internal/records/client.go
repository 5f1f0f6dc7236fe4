// Package records is the HTTP client for the approval record API.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"tagflow/internal/domain"
	"tagflow/internal/metrics"
)

var ErrNotFound = domain.ErrNotFound

// Client talks to the record API. Its method set matches repo.Repo.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// APIError wraps non-2xx responses. A 404 unwraps to ErrNotFound.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

type itemsResponse[T any] struct {
	Items []T `json:"items"`
}

func (c *Client) GetFlow(ctx context.Context, id int64) (domain.ApprovalFlow, error) {
	var resp domain.ApprovalFlow
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("ApprovalFlow/%d", id), nil, &resp)
	return resp, err
}

func (c *Client) ListFlows(ctx context.Context, status string) ([]domain.ApprovalFlow, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var resp itemsResponse[domain.ApprovalFlow]
	err := c.do(ctx, http.MethodGet, withQuery("ApprovalFlow", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) UpdateFlow(ctx context.Context, id int64, u domain.FlowUpdate) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("ApprovalFlow/%d", id), u, nil)
}

func (c *Client) UpdateFlowResourceStatus(ctx context.Context, flowID int64, status string) error {
	body := map[string]string{"status": status}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("ApprovalFlow/%d/resources/status", flowID), body, nil)
}

func (c *Client) ListParticipants(ctx context.Context, flowID int64) ([]domain.ApprovalFlowParticipant, error) {
	q := url.Values{"approvalId": {strconv.FormatInt(flowID, 10)}}
	var resp itemsResponse[domain.ApprovalFlowParticipant]
	err := c.do(ctx, http.MethodGet, withQuery("ApprovalFlowParticipant", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) SearchLogs(ctx context.Context, flowID int64) ([]domain.ApprovalFlowLog, error) {
	q := url.Values{"approvalId": {strconv.FormatInt(flowID, 10)}}
	var resp itemsResponse[domain.ApprovalFlowLog]
	err := c.do(ctx, http.MethodGet, withQuery("ApprovalFlowLog/search", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) UpdateLog(ctx context.Context, id int64, u domain.LogUpdate) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("ApprovalFlowLog/%d", id), u, nil)
}

func (c *Client) GetPolicy(ctx context.Context, id int64) (domain.Policy, error) {
	var resp domain.Policy
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("Policy/%d", id), nil, &resp)
	return resp, err
}

func (c *Client) SearchLOV(ctx context.Context, lq domain.LOVQuery) ([]domain.LOV, error) {
	q := url.Values{}
	if lq.Description != "" {
		q.Set("description", lq.Description)
	}
	setInt(q, "generalId", lq.GeneralID)
	setInt(q, "customerId", lq.CustomerID)
	setInt(q, "accountId", lq.AccountID)
	var resp itemsResponse[domain.LOV]
	err := c.do(ctx, http.MethodGet, withQuery("LOV/search", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) GetResource(ctx context.Context, id int64) (domain.Resource, error) {
	var resp domain.Resource
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("Resource/%d", id), nil, &resp)
	return resp, err
}

func (c *Client) SearchResourceTags(ctx context.Context, tq domain.ResourceTagQuery) ([]domain.ResourceTag, error) {
	q := url.Values{}
	if tq.ResourceID != 0 {
		q.Set("resourceId", strconv.FormatInt(tq.ResourceID, 10))
	}
	setInt(q, "customerId", tq.CustomerID)
	setInt(q, "accountId", tq.AccountID)
	if tq.Key != "" {
		q.Set("key", tq.Key)
	}
	if tq.Value != "" {
		q.Set("value", tq.Value)
	}
	if tq.IsActive != nil {
		q.Set("isActive", strconv.FormatBool(*tq.IsActive))
	}
	var resp itemsResponse[domain.ResourceTag]
	err := c.do(ctx, http.MethodGet, withQuery("ResourceTag/search", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) CreateResourceTag(ctx context.Context, t domain.ResourceTag) (domain.ResourceTag, error) {
	var resp domain.ResourceTag
	err := c.do(ctx, http.MethodPost, "ResourceTag", t, &resp)
	return resp, err
}

func (c *Client) UpdateResourceTag(ctx context.Context, id int64, u domain.ResourceTagUpdate) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("ResourceTag/%d", id), u, nil)
}

func (c *Client) GetProfile(ctx context.Context, id int64) (domain.Profile, error) {
	var resp domain.Profile
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("Profile/%d", id), nil, &resp)
	return resp, err
}

func (c *Client) CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	var resp domain.Notification
	err := c.do(ctx, http.MethodPost, "Notification", n, &resp)
	return resp, err
}

func (c *Client) SendEmail(ctx context.Context, e domain.Email) error {
	return c.do(ctx, http.MethodPost, "Email/send", e, nil)
}

// LatestEvents returns the audit tail, newest first.
func (c *Client) LatestEvents(ctx context.Context, limit int, entityKind, entityID string) ([]domain.Event, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if entityKind != "" {
		q.Set("entityKind", entityKind)
	}
	if entityID != "" {
		q.Set("entityId", entityID)
	}
	var resp itemsResponse[domain.Event]
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		metrics.RecordAPIDuration.WithLabelValues(method, "error").Observe(time.Since(start).Seconds())
		return err
	}
	defer resp.Body.Close()
	metrics.RecordAPIDuration.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func setInt(q url.Values, key string, v *int64) {
	if v != nil {
		q.Set(key, strconv.FormatInt(*v, 10))
	}
}
