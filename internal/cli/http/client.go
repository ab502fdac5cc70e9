package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "codearena/pkg/errors"
)

const (
	userAgent       = "codearena-cli"
	tokenCookieName = "token"
	traceHeader     = "X-Trace-Id"
)

// Envelope is the body shape every API response is wrapped in.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
	TraceID string          `json:"trace_id,omitempty"`
}

// DecodeData unmarshals the data field into v. A missing data field leaves v untouched.
func (e *Envelope) DecodeData(v interface{}) error {
	if e == nil || len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode response data failed: %w", err)
	}
	return nil
}

// APIError is returned for responses with an error status or a non-success code.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	TraceID    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("HTTP %d", e.StatusCode)
	if e.Code != 0 {
		msg += fmt.Sprintf(" code %d", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.TraceID != "" {
		msg += " (trace " + e.TraceID + ")"
	}
	return msg
}

// ResponseInfo carries response details.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	// Envelope is nil when the body is not a JSON object.
	Envelope *Envelope
	// Token is the access token issued by this response, if any.
	Token string
}

// TraceID prefers the envelope's trace id over the response header.
func (r ResponseInfo) TraceID() string {
	if r.Envelope != nil && r.Envelope.TraceID != "" {
		return r.Envelope.TraceID
	}
	return r.Headers.Get(traceHeader)
}

// Err reports the API failure carried by the response as an *APIError.
func (r ResponseInfo) Err() error {
	failed := r.StatusCode >= http.StatusBadRequest
	if r.Envelope != nil && r.Envelope.Code != 0 && r.Envelope.Code != int(pkgerrors.Success) {
		failed = true
	}
	if !failed {
		return nil
	}
	apiErr := &APIError{StatusCode: r.StatusCode, TraceID: r.TraceID()}
	if r.Envelope != nil {
		apiErr.Code = r.Envelope.Code
		apiErr.Message = r.Envelope.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(r.Body))
	}
	return apiErr
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

// Client wraps HTTP requests for CLI.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider func() string
}

func New(baseURL string, timeout time.Duration, tokenProvider func() string) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		tokenProvider: tokenProvider,
	}
}

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
}

// Do sends one request. The returned error covers transport failures only;
// API failures are reported through ResponseInfo.Err.
func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (ResponseInfo, error) {
	var info ResponseInfo

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return info, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	if c.tokenProvider != nil {
		if token := c.tokenProvider(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	info.Duration = time.Since(start)
	if err != nil {
		return info, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, fmt.Errorf("read response body failed: %w", err)
	}
	info.Body = bodyBytes
	info.Envelope = decodeEnvelope(bodyBytes)
	info.Token = issuedToken(resp, info.Envelope)
	return info, nil
}

func decodeEnvelope(body []byte) *Envelope {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil
	}
	return &env
}

// issuedToken reads the session cookie first, then data.token.
func issuedToken(resp *http.Response, env *Envelope) string {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == tokenCookieName && cookie.Value != "" {
			return cookie.Value
		}
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := env.DecodeData(&data); err != nil {
		return ""
	}
	return data.Token
}
