package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type fakeGemini struct {
	mu       sync.Mutex
	requests []map[string]any
	status   int
	body     string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.URL.Path, ":generateContent") {
		http.NotFound(w, r)
		return
	}
	payload, _ := io.ReadAll(r.Body)
	decoded := map[string]any{}
	_ = json.Unmarshal(payload, &decoded)
	f.mu.Lock()
	f.requests = append(f.requests, decoded)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = io.WriteString(w, f.body)
}

func newGeminiFixture(t *testing.T, status int, body string) (*GeminiCompleter, *fakeGemini) {
	t.Helper()
	fake := &fakeGemini{status: status, body: body}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	completer, err := NewGeminiCompleter(context.Background(), GeminiConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("failed to build completer: %v", err)
	}
	return completer, fake
}

func TestGeminiCompleterReturnsFirstCandidate(t *testing.T) {
	completer, fake := newGeminiFixture(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Photosynthesis turns light into sugar."}]}}]}`)

	reply, err := completer.Complete(context.Background(), []ChatMessage{
		{Role: RoleModel, Content: "welcome"},
		{Role: RoleUser, Content: "What is photosynthesis?"},
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if reply.Role != RoleModel || reply.Content != "Photosynthesis turns light into sugar." {
		t.Fatalf("unexpected reply %#v", reply)
	}

	if len(fake.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(fake.requests))
	}
	contents, _ := fake.requests[0]["contents"].([]any)
	if len(contents) != 2 {
		t.Fatalf("expected both turns to be sent, got %#v", fake.requests[0]["contents"])
	}
	generation, _ := fake.requests[0]["generationConfig"].(map[string]any)
	if generation["maxOutputTokens"] != float64(2048) || generation["topK"] != float64(40) {
		t.Fatalf("unexpected generation config %#v", generation)
	}
}

func TestGeminiCompleterReportsMissingCandidates(t *testing.T) {
	completer, _ := newGeminiFixture(t, http.StatusOK, `{"candidates":[]}`)
	_, err := completer.Complete(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}
}

func TestGeminiCompleterSurfacesUpstreamErrors(t *testing.T) {
	completer, _ := newGeminiFixture(t, http.StatusBadRequest,
		`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	if _, err := completer.Complete(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}); err == nil {
		t.Fatalf("expected upstream error")
	}
	if err := completer.Validate(context.Background()); err == nil {
		t.Fatalf("expected validation to fail")
	}
}

func TestServiceWithGeminiRecordsUpstreamFailureAsErrorTurn(t *testing.T) {
	completer, _ := newGeminiFixture(t, http.StatusBadRequest,
		`{"error":{"code":400,"message":"backend unavailable","status":"FAILED_PRECONDITION"}}`)
	service, _, _ := newTestService(t, completer)

	reply, err := service.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("send must not fail: %v", err)
	}
	if !strings.HasPrefix(reply.Content, "Error: ") || !strings.Contains(reply.Content, "backend unavailable") {
		t.Fatalf("unexpected reply %q", reply.Content)
	}
}

func TestNewGeminiCompleterRequiresKey(t *testing.T) {
	if _, err := NewGeminiCompleter(context.Background(), GeminiConfig{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
