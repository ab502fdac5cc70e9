package judge0client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codearena/internal/judge/model"
	pkgerrors "codearena/pkg/errors"
)

const (
	defaultTimeout = 15 * time.Second
	resultFields   = "token,stdout,stderr,compile_output,status_id,time,memory,message,status"
	maxErrorBody   = 512
)

// Config describes how to reach a Judge0 deployment.
type Config struct {
	BaseURL string        `yaml:"baseURL"`
	APIKey  string        `yaml:"apiKey"`
	APIHost string        `yaml:"apiHost"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client talks to the Judge0 batch endpoints.
type Client struct {
	baseURL string
	apiKey  string
	apiHost string
	http    *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("judge0 base url is required")
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: base, apiKey: cfg.APIKey, apiHost: cfg.APIHost, http: httpClient}, nil
}

type batchRequest struct {
	Submissions []model.Submission `json:"submissions"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type batchResultResponse struct {
	Submissions []model.Result `json:"submissions"`
}

// SubmitBatch creates one Judge0 submission per entry and returns their tokens in order.
func (c *Client) SubmitBatch(ctx context.Context, subs []model.Submission) ([]string, error) {
	if len(subs) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(batchRequest{Submissions: subs})
	if err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("encode batch failed: %w", err), pkgerrors.InternalServerError)
	}
	endpoint := c.baseURL + "/submissions/batch?base64_encoded=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.JudgeSystemError)
	}
	req.Header.Set("Content-Type", "application/json")

	var tokens []tokenResponse
	if err := c.do(req, &tokens); err != nil {
		return nil, err
	}
	if len(tokens) != len(subs) {
		return nil, pkgerrors.Newf(pkgerrors.JudgeSystemError, "judge returned %d tokens for %d submissions", len(tokens), len(subs))
	}
	out := make([]string, 0, len(tokens))
	for i, t := range tokens {
		if t.Token == "" {
			return nil, pkgerrors.Newf(pkgerrors.JudgeSystemError, "judge rejected submission %d", i)
		}
		out = append(out, t.Token)
	}
	return out, nil
}

// GetBatch fetches the current results for tokens, in the same order.
func (c *Client) GetBatch(ctx context.Context, tokens []string) ([]model.Result, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	query := url.Values{}
	query.Set("tokens", strings.Join(tokens, ","))
	query.Set("base64_encoded", "false")
	query.Set("fields", resultFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/submissions/batch?"+query.Encode(), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.JudgeSystemError)
	}

	var resp batchResultResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Submissions) != len(tokens) {
		return nil, pkgerrors.Newf(pkgerrors.JudgeSystemError, "judge returned %d results for %d tokens", len(resp.Submissions), len(tokens))
	}
	for i := range resp.Submissions {
		if resp.Submissions[i].StatusID == 0 {
			resp.Submissions[i].StatusID = resp.Submissions[i].Status.ID
		}
	}
	return resp.Submissions, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.apiKey)
	}
	if c.apiHost != "" {
		req.Header.Set("X-RapidAPI-Host", c.apiHost)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return pkgerrors.Wrap(ctxErr, pkgerrors.JudgeTimeout)
		}
		return pkgerrors.Wrap(fmt.Errorf("judge request failed: %w", err), pkgerrors.JudgeSystemError)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return pkgerrors.Newf(pkgerrors.JudgeSystemError, "judge returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(fmt.Errorf("decode judge response failed: %w", err), pkgerrors.JudgeSystemError)
	}
	return nil
}
