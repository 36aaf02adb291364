package fcm

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
	"sync"
	"time"

	"golang.org/x/oauth2/google"

	"chat-notifier/internal/domain"
	"chat-notifier/internal/integrations/paramstore"
)

const (
	defaultBaseURL = "https://fcm.googleapis.com"
	messagingScope = "https://www.googleapis.com/auth/firebase.messaging"
	fcmErrorType   = "type.googleapis.com/google.firebase.fcm.v1.FcmError"
)

// sendRequest is the HTTP v1 body for a data message to one token.
type sendRequest struct {
	Message message `json:"message"`
}

type message struct {
	Token   string         `json:"token"`
	Data    domain.Payload `json:"data,omitempty"`
	Android *androidConfig `json:"android,omitempty"`
}

type androidConfig struct {
	Priority string `json:"priority"`
}

type sendResponse struct {
	Name string `json:"name"`
}

// errorResponse is the google.rpc.Status envelope FCM answers failures with.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// errorCodes maps FCM v1 error codes to transport error codes.
var errorCodes = map[string]string{
	"UNREGISTERED":           domain.CodeTokenNotRegistered,
	"INVALID_ARGUMENT":       domain.CodeInvalidRegistrationToken,
	"SENDER_ID_MISMATCH":     "messaging/mismatched-credential",
	"QUOTA_EXCEEDED":         "messaging/message-rate-exceeded",
	"UNAVAILABLE":            "messaging/server-unavailable",
	"INTERNAL":               "messaging/internal-error",
	"THIRD_PARTY_AUTH_ERROR": "messaging/third-party-auth-error",
}

const codeUnknown = "messaging/unknown-error"

// HTTPStatusError captures non-2xx upstream responses that carry no FCM error.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fcm: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client sends data messages to single device tokens through the FCM
// HTTP v1 API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      paramstore.Getter
	paramPrefix string

	mu    sync.Mutex
	creds *google.Credentials
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client whose service account key lives in SSM under
// <paramPrefix>/fcm-service-account. The key is loaded on the first Send and
// kept once loaded; a failed load is retried on the next Send.
func NewClient(ps paramstore.Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("fcm: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("fcm: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveCredentials(ctx context.Context) (*google.Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds != nil {
		return c.creds, nil
	}
	creds, err := paramstore.GoogleCredentials(ctx, c.getter, c.credentialsParameterName(), messagingScope)
	if err != nil {
		return nil, fmt.Errorf("fcm: load credentials: %w", err)
	}
	c.creds = creds
	return creds, nil
}

func (c *Client) credentialsParameterName() string {
	return c.paramPrefix + "/fcm-service-account"
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func sendURL(baseURL, projectID string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return base + "/v1/projects/" + url.PathEscape(projectID) + "/messages:send"
}

// Send delivers payload to a single device token and returns the transport's
// verdict for that token. An empty token is answered locally with an
// invalid-registration result so callers can reconcile it like any other.
// A non-nil error means the transport itself could not be reached or
// answered unexpectedly.
func (c *Client) Send(ctx context.Context, token string, payload domain.Payload) (domain.DeliveryResult, error) {
	if strings.TrimSpace(token) == "" {
		return domain.DeliveryResult{Error: &domain.DeliveryError{
			Code:    domain.CodeInvalidRegistrationToken,
			Message: "no registration token",
		}}, nil
	}

	creds, err := c.resolveCredentials(ctx)
	if err != nil {
		return domain.DeliveryResult{}, err
	}
	accessToken, err := creds.TokenSource.Token()
	if err != nil {
		return domain.DeliveryResult{}, fmt.Errorf("fcm: access token: %w", err)
	}

	body, err := json.Marshal(sendRequest{Message: message{
		Token:   token,
		Data:    payload,
		Android: &androidConfig{Priority: "high"},
	}})
	if err != nil {
		return domain.DeliveryResult{}, fmt.Errorf("fcm: marshal request: %w", err)
	}

	endpoint := sendURL(c.baseURL, creds.ProjectID)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if reqErr != nil {
		return domain.DeliveryResult{}, fmt.Errorf("fcm: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	accessToken.SetAuthHeader(req)

	status, raw, err := c.do(req)
	if err != nil {
		return domain.DeliveryResult{}, fmt.Errorf("fcm: request failed: %w", err)
	}

	if status < 200 || status >= 300 {
		if derr := decodeError(raw); derr != nil {
			return domain.DeliveryResult{Error: derr}, nil
		}
		return domain.DeliveryResult{}, &HTTPStatusError{
			StatusCode: status,
			URL:        endpoint,
			Body:       truncate(string(raw), 4096),
		}
	}

	var resp sendResponse
	if decErr := json.Unmarshal(raw, &resp); decErr != nil {
		return domain.DeliveryResult{}, fmt.Errorf("fcm: decode response: %w", decErr)
	}
	if resp.Name == "" {
		return domain.DeliveryResult{}, errors.New("fcm: response carries no message name")
	}
	return domain.DeliveryResult{MessageID: resp.Name}, nil
}

// decodeError turns an FCM error body into a DeliveryError, or nil when the
// body is not one. The FcmError detail wins over the canonical status.
func decodeError(raw []byte) *domain.DeliveryError {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err != nil || er.Error.Status == "" {
		return nil
	}
	code := er.Error.Status
	for _, d := range er.Error.Details {
		if d.Type == fcmErrorType && d.ErrorCode != "" {
			code = d.ErrorCode
			break
		}
	}
	mapped, ok := errorCodes[code]
	if !ok {
		mapped = codeUnknown
	}
	return &domain.DeliveryError{Code: mapped, Message: er.Error.Message}
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return 0, nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return res.StatusCode, buf, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
