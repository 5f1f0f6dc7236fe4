package tagging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tagflow/internal/logging"
)

// APIError wraps non-2xx responses from the tagging service.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tagging %s: status=%d body=%s", e.Op, e.StatusCode, e.Body)
}

// HTTPExecutor calls a tagging service exposing tag-create and tag-delete.
type HTTPExecutor struct {
	Endpoint   string
	Token      string
	Defaults   Defaults
	HTTPClient *http.Client
	Log        *zap.Logger
}

func NewHTTPExecutor(endpoint, token string, timeout time.Duration, defaults Defaults, log *zap.Logger) *HTTPExecutor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPExecutor{
		Endpoint:   endpoint,
		Token:      token,
		Defaults:   defaults,
		HTTPClient: &http.Client{Timeout: timeout},
		Log:        logging.OrNop(log),
	}
}

type createBody struct {
	ResourceID   string            `json:"resourceId"`
	ResourceType string            `json:"resourceType"`
	Region       string            `json:"region"`
	Tags         map[string]string `json:"tags"`
}

type deleteBody struct {
	Key       string       `json:"key"`
	Value     string       `json:"value"`
	Resources []Descriptor `json:"resources"`
}

func (h *HTTPExecutor) Apply(ctx context.Context, desc Descriptor, pair Pair) error {
	desc = h.Defaults.Fill(desc)
	err := h.post(ctx, "tag-create", createBody{
		ResourceID:   desc.ResourceID,
		ResourceType: desc.ResourceType,
		Region:       desc.Region,
		Tags:         map[string]string{pair.Key: pair.Value},
	})
	observe("create", "http", err)
	return err
}

func (h *HTTPExecutor) Remove(ctx context.Context, pair Pair, resources []Descriptor) error {
	filled := make([]Descriptor, 0, len(resources))
	for _, d := range resources {
		filled = append(filled, h.Defaults.Fill(d))
	}
	err := h.post(ctx, "tag-delete", deleteBody{Key: pair.Key, Value: pair.Value, Resources: filled})
	observe("delete", "http", err)
	return err
}

func (h *HTTPExecutor) post(ctx context.Context, op string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := strings.TrimRight(h.Endpoint, "/") + "/" + op
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}
	client := h.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("tagging %s: %w", op, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &APIError{Op: op, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	logging.OrNop(h.Log).Debug("tagging call", zap.String("op", op), zap.Int("status", res.StatusCode))
	return nil
}
