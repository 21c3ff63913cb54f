// Package gateway talks to the remote todo backend. Every transport or HTTP
// outcome is mapped onto the apierr taxonomy; nothing here keeps state
// between calls.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Makepad-fr/tada/internal/apierr"
)

const maxBodyBytes = 4 << 20

// Options configures a gateway.
type Options struct {
	// BaseURL is the API root, e.g. https://api.example.com.
	BaseURL string
	// Timeout bounds each request. Zero means 15s.
	Timeout time.Duration
	// HTTPClient supplies the base transport. Nil means http.DefaultClient.
	HTTPClient *http.Client
	Logger     *log.Logger
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 15 * time.Second
	}
	return o.Timeout
}

func (o Options) baseClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}

func (o Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.New(os.Stderr, "[gateway] ", log.LstdFlags)
}

// envelope is the response wrapper used by every endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Count   *int            `json:"count,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type response struct {
	status int
	body   []byte
	reqID  string
}

func (r *response) ok() bool { return r.status >= 200 && r.status < 300 }

// serverError builds a ServerError carrying the server's own message when it
// sent one.
func (r *response) serverError() error {
	detail := ""
	var env envelope
	if json.Unmarshal(r.body, &env) == nil {
		detail = env.Message
		if detail == "" {
			detail = env.Error
		}
	}
	return &apierr.ServerError{Status: r.status, Detail: detail}
}

// invalid reports a successful status with an unusable body.
func (r *response) invalid() error {
	return &apierr.ServerError{Status: r.status, Detail: "invalid response"}
}

type client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

func newClient(opts Options, hc *http.Client) *client {
	return &client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		logger:  opts.logger(),
	}
}

// send performs one request. Only a transport failure is returned as an
// error; any status is handed back for the caller to classify.
func (c *client) send(ctx context.Context, method, path string, body any) (*response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *client) do(req *http.Request) (*response, error) {
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Printf("%s %s failed (request %s): %v", req.Method, req.URL.Path, reqID, err)
		return nil, &apierr.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.logger.Printf("%s %s: reading body failed (request %s): %v", req.Method, req.URL.Path, reqID, err)
		return nil, &apierr.NetworkError{Err: err}
	}
	if resp.StatusCode >= 300 {
		c.logger.Printf("%s %s -> %d (request %s)", req.Method, req.URL.Path, resp.StatusCode, reqID)
	}
	return &response{status: resp.StatusCode, body: b, reqID: reqID}, nil
}
