package repo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *TargetClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewTargetClient(server.URL, 2*time.Second, RetryConfig{
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}, nil)
	return client
}

func TestSendParsesPriorityKeys(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// "reply" outranks "content" in the key priority.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": "lower priority",
			"reply":   "the actual answer",
		})
	})

	resp, err := client.Send(context.Background(), TargetRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Message != "the actual answer" {
		t.Fatalf("expected the reply key to win, got %q", resp.Message)
	}
	if resp.Echo {
		t.Fatalf("expected no echo flag")
	}
	if resp.TraceID == "" {
		t.Fatalf("expected a minted trace id")
	}
}

func TestSendFallsBackToRawBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("  plain text answer \n"))
	})

	resp, err := client.Send(context.Background(), TargetRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Message != "plain text answer" {
		t.Fatalf("expected trimmed raw body, got %q", resp.Message)
	}
}

func TestSendDetectsEcho(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req TargetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": " " + req.Message + " "})
	})

	resp, err := client.Send(context.Background(), TargetRequest{Message: "repeat me"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !resp.Echo {
		t.Fatalf("expected echo detection on a verbatim response")
	}
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "recovered"})
	})

	resp, err := client.Send(context.Background(), TargetRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Message != "recovered" {
		t.Fatalf("expected recovery after retries, got %q", resp.Message)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	})

	if _, err := client.Send(context.Background(), TargetRequest{Message: "hello"}); err == nil {
		t.Fatalf("expected error for 400 response")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestSendGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Send(context.Background(), TargetRequest{Message: "hello"})
	if err == nil || !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestSendPropagatesTraceHeader(t *testing.T) {
	var header string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Amzn-Trace-Id")
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok"})
	})

	resp, err := client.Send(context.Background(), TargetRequest{Message: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if header != "Root="+resp.TraceID+";Sampled=1" {
		t.Fatalf("unexpected trace header %q for trace %s", header, resp.TraceID)
	}
}

func TestNewTraceIDFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^1-[0-9a-f]{8}-[0-9a-f]{24}$`)
	first := NewTraceID()
	if !pattern.MatchString(first) {
		t.Fatalf("unexpected trace id format %q", first)
	}
	if first == NewTraceID() {
		t.Fatalf("expected unique trace ids")
	}
}

func TestSendRequiresEndpoint(t *testing.T) {
	client := NewTargetClient("", time.Second, DefaultRetryConfig(), nil)
	if _, err := client.Send(context.Background(), TargetRequest{Message: "hi"}); err == nil {
		t.Fatalf("expected error without endpoint")
	}
}
