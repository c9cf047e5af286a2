// Package httputil carries the HTTP plumbing shared by the API client
// and handlers: a swappable client interface for tools that talk to a
// running daemon, and JSON response helpers.
package httputil

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// HTTPClient is the request surface the API client and sweep tool use.
// NewStandardClient wraps net/http for production; MockHTTPClient
// serves canned replies in tests.
type HTTPClient interface {
	Get(url string) (*http.Response, error)
	Post(url, contentType string, body io.Reader) (*http.Response, error)
}

// StandardClient adapts *http.Client to HTTPClient.
type StandardClient struct {
	hc *http.Client
}

// NewStandardClient wraps c; nil means http.DefaultClient.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &StandardClient{hc: c}
}

func (c *StandardClient) Get(url string) (*http.Response, error) {
	return c.hc.Get(url)
}

func (c *StandardClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	return c.hc.Post(url, contentType, body)
}

// MockHTTPClient records every request and answers from a FIFO queue
// of canned replies. Once the queue runs dry it answers 200 with an
// empty body. Safe for concurrent use.
type MockHTTPClient struct {
	mu       sync.Mutex
	replies  []mockReply
	next     int
	requests []*http.Request
}

type mockReply struct {
	status int
	body   string
}

// NewMockHTTPClient returns a mock with an empty reply queue.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues one reply. Returns the mock for chaining.
func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, mockReply{status: status, body: body})
	return m
}

func (m *MockHTTPClient) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return m.serve(req), nil
}

func (m *MockHTTPClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return m.serve(req), nil
}

func (m *MockHTTPClient) serve(req *http.Request) *http.Response {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	reply := mockReply{status: http.StatusOK}
	if m.next < len(m.replies) {
		reply = m.replies[m.next]
		m.next++
	}
	return &http.Response{
		StatusCode: reply.status,
		Body:       io.NopCloser(strings.NewReader(reply.body)),
		Header:     make(http.Header),
		Request:    req,
	}
}

// GetRequest returns the nth recorded request, nil when out of range.
func (m *MockHTTPClient) GetRequest(n int) *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.requests) {
		return nil
	}
	return m.requests[n]
}

// RequestCount returns how many requests the mock has served.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
