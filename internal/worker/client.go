package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for task queue client failures.
var (
	ErrServerUnreachable = errors.New("server unreachable")
	ErrServerError       = errors.New("server error")
	ErrRequestTimeout    = errors.New("request timeout")
	ErrSubmitRejected    = errors.New("submission rejected")
)

// Client is the interface for talking to the symbolication task queue.
type Client interface {
	TodoList(ctx context.Context) ([]int64, error)
	CrashData(ctx context.Context, crashID int64) ([]byte, error)
	SubmitResult(ctx context.Context, crashID int64, log []byte) error
}

// HTTPClient implements Client against the server's task queue endpoints.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// NewHTTPClient creates a new task queue HTTP client. Username and
// password are optional and sent as basic auth when both are set.
func NewHTTPClient(baseURL, username, password string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}
}

// TodoList fetches the ids of crashes awaiting symbolication. The body
// is a comma-separated list of decimal ids; an empty body means there
// is nothing to do.
func (c *HTTPClient) TodoList(ctx context.Context) ([]int64, error) {
	body, err := c.get(ctx, c.baseURL+"/symbolicate/todo")
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return nil, nil
	}

	parts := strings.Split(text, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed todo entry %q", ErrServerError, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CrashData fetches the raw crash log for a single crash id.
func (c *HTTPClient) CrashData(ctx context.Context, crashID int64) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("%s/symbolicate/crash/%d", c.baseURL, crashID))
}

// SubmitResult uploads a symbolicated crash log. The server answers
// with a body ending in "success" when the update was recorded.
func (c *HTTPClient) SubmitResult(ctx context.Context, crashID int64, log []byte) error {
	form := url.Values{
		"id":  {strconv.FormatInt(crashID, 10)},
		"log": {string(log)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/symbolicate/update", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !strings.HasSuffix(strings.TrimSpace(string(body)), "success") {
		return fmt.Errorf("%w: crash %d (status %d)", ErrSubmitRejected, crashID, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrRequestTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrRequestTimeout, err)
		}
	}

	return fmt.Errorf("%w: %v", ErrServerUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
