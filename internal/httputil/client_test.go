package httputil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMockClientServesQueuedReplies(t *testing.T) {
	m := NewMockHTTPClient()
	m.AddResponse(http.StatusOK, `{"enabled":true}`)
	m.AddResponse(http.StatusConflict, `{"error":"replay already running"}`)

	resp, err := m.Get("http://daemon/api/status")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != `{"enabled":true}` {
		t.Errorf("first reply = %d %q", resp.StatusCode, body)
	}

	resp, err = m.Post("http://daemon/api/replay/start", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second reply status = %d, want 409", resp.StatusCode)
	}
}

func TestMockClientDefaultsToEmptyOK(t *testing.T) {
	m := NewMockHTTPClient()

	resp, err := m.Get("http://daemon/api/targets")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(body) != 0 {
		t.Errorf("drained queue reply = %d %q, want 200 with empty body", resp.StatusCode, body)
	}
}

func TestMockClientRecordsRequests(t *testing.T) {
	m := NewMockHTTPClient()

	if _, err := m.Get("http://daemon/api/status"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Post("http://daemon/api/enable", "application/json", strings.NewReader(`{"enabled":false}`)); err != nil {
		t.Fatal(err)
	}

	if got := m.RequestCount(); got != 2 {
		t.Fatalf("RequestCount = %d, want 2", got)
	}

	first := m.GetRequest(0)
	if first == nil || first.Method != http.MethodGet || first.URL.Path != "/api/status" {
		t.Errorf("request 0 = %+v", first)
	}
	second := m.GetRequest(1)
	if second == nil || second.Method != http.MethodPost {
		t.Fatalf("request 1 = %+v", second)
	}
	if ct := second.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("POST content type = %q", ct)
	}
	if m.GetRequest(2) != nil || m.GetRequest(-1) != nil {
		t.Error("out-of-range GetRequest should return nil")
	}
}

func TestStandardClientAgainstTestServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Header.Get("Content-Type") != "text/plain" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		io.WriteString(w, "pong")
	}))
	defer srv.Close()

	c := NewStandardClient(nil)

	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Errorf("Get body = %q", body)
	}

	resp, err = c.Post(srv.URL, "text/plain", strings.NewReader("ping"))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Post status = %d, want 200", resp.StatusCode)
	}
}
