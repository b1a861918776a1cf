package manychat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/cornman/cornman-backend/pkg/errors"
)

const (
	DefaultBaseURL              = "https://api.manychat.com"
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024

	sendFlowPath       = "fb/page/send_flow"
	findByPhonePath    = "fb/subscriber/findByPhone"
	setCustomFieldPath = "fb/subscriber/setCustomField"
	flowInfoPath       = "fb/flow/getInfo"
)

var errAPIKeyRequired = errors.New("manychat api key is required")

// Client calls the ManyChat public API with a bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the HTTP timeout on the default client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 && c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a ManyChat client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// SendFlowRequest triggers a flow for one subscriber. Data is passed through to the flow.
type SendFlowRequest struct {
	FlowID       string `json:"flow_id"`
	SubscriberID string `json:"subscriber_id"`
	Data         any    `json:"data,omitempty"`
}

// Subscriber is the subset of subscriber info the backend reads.
type Subscriber struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

// Flow describes a ManyChat flow.
type Flow struct {
	ID   string `json:"ns"`
	Name string `json:"name"`
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// SendFlow starts flowID for the subscriber and returns the raw API response body.
func (c *Client) SendFlow(ctx context.Context, req SendFlowRequest) (json.RawMessage, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "manychat client not configured")
	}
	if strings.TrimSpace(req.FlowID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "flow id is required")
	}
	if strings.TrimSpace(req.SubscriberID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscriber id is required")
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, sendFlowPath, nil, req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// SetCustomField writes a custom field value on a subscriber.
func (c *Client) SetCustomField(ctx context.Context, subscriberID, field string, value any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "manychat client not configured")
	}
	if strings.TrimSpace(subscriberID) == "" || strings.TrimSpace(field) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscriber id and field name are required")
	}
	body := map[string]any{
		"subscriber_id": subscriberID,
		"field_name":    field,
		"value":         value,
	}
	return c.do(ctx, http.MethodPost, setCustomFieldPath, nil, body, nil)
}

// FindSubscriberByPhone looks a subscriber up by phone number. A nil subscriber with a nil
// error means ManyChat knows no subscriber with that number.
func (c *Client) FindSubscriberByPhone(ctx context.Context, phone string) (*Subscriber, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "manychat client not configured")
	}
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone is required")
	}

	var env envelope
	if err := c.do(ctx, http.MethodGet, findByPhonePath, url.Values{"phone_number": {trimmed}}, nil, &env); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	var sub Subscriber
	if err := json.Unmarshal(env.Data, &sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscriber")
	}
	if sub.ID == "" {
		return nil, nil
	}
	return &sub, nil
}

// FlowInfo fetches metadata for a flow.
func (c *Client) FlowInfo(ctx context.Context, flowID string) (*Flow, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "manychat client not configured")
	}
	if strings.TrimSpace(flowID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "flow id is required")
	}

	var env envelope
	if err := c.do(ctx, http.MethodGet, flowInfoPath, url.Values{"flow_id": {flowID}}, nil, &env); err != nil {
		return nil, err
	}
	var flow Flow
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &flow); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode flow info")
		}
	}
	return &flow, nil
}

// StatusError carries a non-2xx ManyChat response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("manychat status %d", e.StatusCode)
	}
	return fmt.Sprintf("manychat status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.buildURL(path)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal manychat request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build manychat request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute manychat request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, statusErr, "manychat request failed").
			WithDetails(map[string]any{"path": path, "status": resp.StatusCode})
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read manychat response")
		}
		*raw = data
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode manychat response")
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
