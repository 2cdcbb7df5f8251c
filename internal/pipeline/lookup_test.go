package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pulsebot/pulse/internal/metrics"
)

func newLookupForURL(t *testing.T, endpoint string, timeout time.Duration, reg *metrics.Registry) *LookupClient {
	t.Helper()
	registry := NewRegistry(Endpoints{
		Profile:   endpoint + "/profiles/{handle}",
		Posts:     endpoint + "/posts/{handle}",
		Followers: endpoint + "/followers/{handle}",
	})
	return NewLookupClient(registry, LookupConfig{Timeout: timeout}, reg, testLogger())
}

func TestLookupSuccess(t *testing.T) {
	var receivedAccept string
	var receivedAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		receivedAccept = req.Header.Get("Accept")
		receivedAgent = req.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"result":{"name":"Vitalik"}}`))
	}))
	defer server.Close()

	reg := metrics.NewRegistry()
	client := newLookupForURL(t, server.URL, 0, reg)
	result := client.Lookup(context.Background(), ActionProfile, "vitalik")

	if result.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Outcome, result.Message)
	}
	if result.Payload == nil {
		t.Fatal("expected parsed payload")
	}
	if receivedAccept != "application/json" {
		t.Fatalf("expected json accept header, got %q", receivedAccept)
	}
	if !strings.HasPrefix(receivedAgent, "pulse-agent/") {
		t.Fatalf("expected identifying user agent, got %q", receivedAgent)
	}
	if reg.Snapshot()["lookup_successes"] != 1 {
		t.Fatal("expected success to be counted")
	}
}

func TestLookupParseFailurePreservesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("upstream said no"))
	}))
	defer server.Close()

	client := newLookupForURL(t, server.URL, 0, nil)
	result := client.Lookup(context.Background(), ActionPosts, "naval")

	if result.Outcome != OutcomeParseFailure {
		t.Fatalf("expected parse failure, got %s", result.Outcome)
	}
	if result.RawBody != "upstream said no" {
		t.Fatalf("expected raw body preserved, got %q", result.RawBody)
	}
}

func TestLookupTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {}))
	endpoint := server.URL
	server.Close()

	client := newLookupForURL(t, endpoint, 0, nil)
	result := client.Lookup(context.Background(), ActionFollowers, "balajis")

	if result.Outcome != OutcomeTransportFailure {
		t.Fatalf("expected transport failure, got %s", result.Outcome)
	}
	if result.Message == "" {
		t.Fatal("expected error description in message")
	}
}

func TestLookupTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	reg := metrics.NewRegistry()
	client := newLookupForURL(t, server.URL, 100*time.Millisecond, reg)
	result := client.Lookup(context.Background(), ActionProfile, "vitalik")

	if result.Outcome != OutcomeTimeout {
		t.Fatalf("expected timeout, got %s (%s)", result.Outcome, result.Message)
	}
	if reg.Snapshot()["lookup_timeouts"] != 1 {
		t.Fatal("expected timeout to be counted")
	}
}

func TestLookupURLEncodesParameter(t *testing.T) {
	var requestedURI string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requestedURI = req.URL.RequestURI()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newLookupForURL(t, server.URL, 0, nil)
	result := client.Lookup(context.Background(), ActionProfile, "a b/c")

	if result.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s", result.Outcome)
	}
	if !strings.Contains(requestedURI, "a+b%2Fc") {
		t.Fatalf("expected encoded parameter in request, got %s", requestedURI)
	}
}

func TestLookupUnknownActionUsesDefault(t *testing.T) {
	var requestedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requestedPath = req.URL.Path
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newLookupForURL(t, server.URL, 0, nil)
	result := client.Lookup(context.Background(), Action("bogus"), "vitalik")

	if result.Action != DefaultAction {
		t.Fatalf("expected action replaced by default, got %s", result.Action)
	}
	if !strings.HasPrefix(requestedPath, "/profiles/") {
		t.Fatalf("expected default endpoint, got %s", requestedPath)
	}
}
