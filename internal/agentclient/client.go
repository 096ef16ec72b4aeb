// Package agentclient is the delivery agent's side of the signed task-queue
// API. Every request carries a fresh nonce and an HMAC over the timestamp,
// method, path and canonical body.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"giftrelay/internal/gifttask"
	"giftrelay/internal/signature"
)

// ErrQueueEmpty is returned by ClaimNext when there is nothing to deliver.
var ErrQueueEmpty = errors.New("no pending gift tasks")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
	Reason  string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("giftrelay: %d %s (%s)", e.Status, e.Message, e.Reason)
	}
	return fmt.Sprintf("giftrelay: %d %s", e.Status, e.Message)
}

// IsConflict reports whether err means another agent got there first or the
// task is no longer in a state that accepts the call.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

type Client struct {
	baseURL string
	apiKey  string
	secret  string
	http    *http.Client
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(baseURL, apiKey, secret string, opts ...Option) (*Client, error) {
	if secret == "" {
		return nil, signature.ErrEmptySecret
	}
	if apiKey == "" {
		return nil, errors.New("api key cannot be empty")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		secret:  secret,
		http:    &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) ListPending(ctx context.Context, limit int) ([]gifttask.Summary, error) {
	path := "/api/gift-tasks"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out gifttask.ListPendingResponse
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func (c *Client) ClaimNext(ctx context.Context) (*gifttask.Assignment, error) {
	var out gifttask.Assignment
	status, err := c.do(ctx, http.MethodPost, "/api/gift-tasks/claim", nil, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, ErrQueueEmpty
	}
	return &out, nil
}

func (c *Client) Claim(ctx context.Context, taskID int64) (*gifttask.Assignment, error) {
	var out gifttask.Assignment
	if _, err := c.do(ctx, http.MethodPost, taskPath(taskID, "claim"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Complete reports how many units were delivered. Sending it again for the
// same task returns the stored outcome with Replayed set.
func (c *Client) Complete(ctx context.Context, taskID int64, delivered int) (*gifttask.OutcomeResponse, error) {
	var out gifttask.OutcomeResponse
	body := gifttask.CompleteRequest{DeliveredQuantity: &delivered}
	if _, err := c.do(ctx, http.MethodPost, taskPath(taskID, "complete"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Fail(ctx context.Context, taskID int64, reason string) (*gifttask.OutcomeResponse, error) {
	var out gifttask.OutcomeResponse
	body := gifttask.FailRequest{Error: reason}
	if _, err := c.do(ctx, http.MethodPost, taskPath(taskID, "fail"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func taskPath(id int64, action string) string {
	return "/api/gift-tasks/" + strconv.FormatInt(id, 10) + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return 0, err
		}
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	sig, err := signature.Sign(c.secret, ts, method, path, payload)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(signature.HeaderAPIKey, c.apiKey)
	req.Header.Set(signature.HeaderTimestamp, ts)
	req.Header.Set(signature.HeaderNonce, uuid.NewString())
	req.Header.Set(signature.HeaderSignature, sig)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, decodeError(resp)
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return resp.StatusCode, nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error, Reason: body.Reason}
}
