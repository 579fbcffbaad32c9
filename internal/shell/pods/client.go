package pods

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

// =============================================================================
// Client Interface
// =============================================================================

// Client is the remote platform collaborator: volume and pod lifecycle calls
// against the Pods API. Every call is a single attempt; retry policy, if any,
// belongs to the implementation, not the caller.
type Client interface {
	CreateVolume(ctx context.Context, volume NewVolume) (*Volume, error)
	GetVolume(ctx context.Context, volumeID string) (*Volume, error)
	DeleteVolume(ctx context.Context, volumeID string) error

	CreatePod(ctx context.Context, pod NewPod) (*Pod, error)
	GetPod(ctx context.Context, podID string) (*Pod, error)
	StartPod(ctx context.Context, podID string) (*Pod, error)
	StopPod(ctx context.Context, podID string) (*Pod, error)
	DeletePod(ctx context.Context, podID string) error
}

// =============================================================================
// HTTP Client Implementation
// =============================================================================

// HTTPClient implements Client against a tenant's Pods API over HTTPS.
type HTTPClient struct {
	baseURL    string // v3 API root, e.g. https://tacc.tapis.io/v3
	token      string // JWT sent as X-Tapis-Token
	httpClient *http.Client
}

// Config holds HTTPClient configuration.
type Config struct {
	// TenantURL is the platform tenant base URL (e.g. https://tacc.tapis.io).
	TenantURL string
	// Token is the JWT used to authenticate against the Pods API.
	Token string
	// Timeout applies per request. Zero means 120s (pod creation is slow).
	Timeout time.Duration
}

// NewHTTPClient creates a Pods API client for a tenant.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.TenantURL), "/")
	return &HTTPClient{
		baseURL: base + "/v3",
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// =============================================================================
// Volume Operations
// =============================================================================

func (c *HTTPClient) CreateVolume(ctx context.Context, volume NewVolume) (*Volume, error) {
	var result Volume
	err := c.do(ctx, callSpec{
		op:       "CreateVolume",
		resource: "volume",
		id:       volume.VolumeID,
		method:   http.MethodPost,
		path:     "/pods/volumes",
		body:     volume,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) GetVolume(ctx context.Context, volumeID string) (*Volume, error) {
	var result Volume
	err := c.do(ctx, callSpec{
		op:       "GetVolume",
		resource: "volume",
		id:       volumeID,
		method:   http.MethodGet,
		path:     "/pods/volumes/" + volumeID,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) DeleteVolume(ctx context.Context, volumeID string) error {
	return c.do(ctx, callSpec{
		op:       "DeleteVolume",
		resource: "volume",
		id:       volumeID,
		method:   http.MethodDelete,
		path:     "/pods/volumes/" + volumeID,
	}, nil)
}

// =============================================================================
// Pod Operations
// =============================================================================

func (c *HTTPClient) CreatePod(ctx context.Context, pod NewPod) (*Pod, error) {
	var result Pod
	err := c.do(ctx, callSpec{
		op:       "CreatePod",
		resource: "pod",
		id:       pod.PodID,
		method:   http.MethodPost,
		path:     "/pods",
		body:     pod,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) GetPod(ctx context.Context, podID string) (*Pod, error) {
	var result Pod
	err := c.do(ctx, callSpec{
		op:       "GetPod",
		resource: "pod",
		id:       podID,
		method:   http.MethodGet,
		path:     "/pods/" + podID,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) StartPod(ctx context.Context, podID string) (*Pod, error) {
	var result Pod
	err := c.do(ctx, callSpec{
		op:       "StartPod",
		resource: "pod",
		id:       podID,
		method:   http.MethodGet,
		path:     "/pods/" + podID + "/start",
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) StopPod(ctx context.Context, podID string) (*Pod, error) {
	var result Pod
	err := c.do(ctx, callSpec{
		op:       "StopPod",
		resource: "pod",
		id:       podID,
		method:   http.MethodGet,
		path:     "/pods/" + podID + "/stop",
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) DeletePod(ctx context.Context, podID string) error {
	return c.do(ctx, callSpec{
		op:       "DeletePod",
		resource: "pod",
		id:       podID,
		method:   http.MethodDelete,
		path:     "/pods/" + podID,
	}, nil)
}

// =============================================================================
// Request Plumbing
// =============================================================================

type callSpec struct {
	op       string
	resource string
	id       string
	method   string
	path     string
	body     any
}

// do executes one API call and decodes the enveloped result into out (when
// out is non-nil). Remote and transport failures come back as *APIError.
func (c *HTTPClient) do(ctx context.Context, call callSpec, out any) error {
	var reqBody io.Reader
	if call.body != nil {
		payload, err := json.Marshal(call.body)
		if err != nil {
			return &APIError{Op: call.op, Resource: call.resource, ID: call.id,
				Message: fmt.Sprintf("encode request: %v", err), Err: ErrBadRequest}
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, c.baseURL+call.path, reqBody)
	if err != nil {
		return &APIError{Op: call.op, Resource: call.resource, ID: call.id,
			Message: err.Error(), Err: ErrBadRequest}
	}
	req.Header.Set("X-Tapis-Token", c.token)
	if call.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Op: call.op, Resource: call.resource, ID: call.id,
			Message: err.Error(), Err: classifyTransportError(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &APIError{Op: call.op, Resource: call.resource, ID: call.id,
			Message: err.Error(), Err: ErrUnreachable}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Op:         call.op,
			Resource:   call.resource,
			ID:         call.id,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Err:        classifyStatus(resp.StatusCode, string(body)),
		}
	}

	if out == nil {
		return nil
	}
	if err := decodeResult(body, out); err != nil {
		return &APIError{Op: call.op, Resource: call.resource, ID: call.id,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("decode response: %v", err), Err: ErrServer}
	}
	return nil
}

// decodeResult unwraps the standard response envelope into out.
func decodeResult(body []byte, out any) error {
	env := envelope[json.RawMessage]{}
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	if len(env.Result) == 0 {
		// Some endpoints return the object bare.
		return json.Unmarshal(body, out)
	}
	return json.Unmarshal(env.Result, out)
}

// classifyStatus maps a remote HTTP status (and message) to a sentinel error.
func classifyStatus(code int, body string) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuthFailed
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusConflict:
		return ErrAlreadyExists
	case code == http.StatusBadRequest:
		// The platform reports duplicate ids as a 400 with a message rather
		// than a 409.
		if strings.Contains(body, "already exists") || strings.Contains(body, "UniqueViolation") {
			return ErrAlreadyExists
		}
		return ErrBadRequest
	case code >= 500 && code < 600:
		return ErrServer
	}
	return ErrServer
}

// classifyTransportError maps a client-side failure to a sentinel error.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrUnreachable
}
