package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newEmulatorHandler() http.Handler {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/profile", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": "admin-user-1"}, "error": nil})
	})
	engine.POST("/echo", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"host": c.Request.Host, "body": string(body)}, "error": nil})
	})
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"message": "Mock API response"}, "error": nil})
	})
	return engine
}

func TestNonUpstreamHostsAreServedByEmulator(t *testing.T) {
	upstreamCalls := 0
	client, err := NewHTTPClient(Config{
		Emulator: newEmulatorHandler(),
		Upstream: roundTripFunc(func(*http.Request) (*http.Response, error) {
			upstreamCalls++
			return nil, errors.New("network disabled")
		}),
	})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	response, err := client.Get("https://api.marinet.local/profile")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	envelope, err := ReadEnvelope(response)
	if err != nil {
		t.Fatalf("failed to read envelope: %v", err)
	}
	var profile struct {
		ID string `json:"id"`
	}
	if err := envelope.Decode(&profile); err != nil || profile.ID != "admin-user-1" {
		t.Fatalf("unexpected payload %#v (%v)", profile, err)
	}
	if !envelope.OK() || upstreamCalls != 0 {
		t.Fatalf("expected an emulator-only response, upstream calls=%d", upstreamCalls)
	}
}

func TestUnknownPathsGetMockResponse(t *testing.T) {
	client, _ := NewHTTPClient(Config{Emulator: newEmulatorHandler()})
	response, err := client.Post("https://api.marinet.local/anything", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	envelope, _ := ReadEnvelope(response)
	var payload map[string]string
	envelope.Decode(&payload)
	if payload["message"] != "Mock API response" {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestUpstreamHostsGoToTheNetwork(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	}))
	defer upstream.Close()

	host := strings.TrimPrefix(upstream.URL, "http://")
	client, _ := NewHTTPClient(Config{
		Emulator:      newEmulatorHandler(),
		UpstreamHosts: []string{host},
	})
	response, err := client.Post(upstream.URL+"/v1beta/models/x:generateContent", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	body, _ := io.ReadAll(response.Body)
	if string(body) != `{"candidates":[]}` {
		t.Fatalf("expected the upstream body, got %s", body)
	}
}

func TestUpstreamFailureFallsBackToEmulatorWithBody(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	client, _ := NewHTTPClient(Config{
		Emulator:      newEmulatorHandler(),
		UpstreamHosts: []string{"generativelanguage.googleapis.com"},
		Upstream: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			io.ReadAll(req.Body)
			return nil, errors.New("dial tcp: no route to host")
		}),
		Logger: zap.New(core),
	})

	response, err := client.Post("https://generativelanguage.googleapis.com/echo", "text/plain", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("fallback must not fail: %v", err)
	}
	envelope, _ := ReadEnvelope(response)
	var echoed map[string]string
	envelope.Decode(&echoed)
	if echoed["body"] != "payload" || echoed["host"] != "generativelanguage.googleapis.com" {
		t.Fatalf("unexpected replay %#v", echoed)
	}
	if logs.FilterMessage("upstream request failed; serving from emulator").Len() != 1 {
		t.Fatalf("expected fallback warning")
	}
}

func TestCanceledRequestsDoNotFallBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client, _ := NewHTTPClient(Config{
		Emulator: newEmulatorHandler(),
		Upstream: roundTripFunc(func(*http.Request) (*http.Response, error) {
			cancel()
			return nil, context.Canceled
		}),
	})
	request, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://generativelanguage.googleapis.com/profile", nil)
	if _, err := client.Do(request); err == nil {
		t.Fatalf("expected canceled request to fail")
	}
}

func TestOfflineRoutesEverythingToEmulator(t *testing.T) {
	client, _ := NewHTTPClient(Config{
		Emulator: newEmulatorHandler(),
		Offline:  true,
		Upstream: roundTripFunc(func(*http.Request) (*http.Response, error) {
			t.Fatalf("offline client must not reach upstream")
			return nil, nil
		}),
	})
	response, err := client.Get("https://generativelanguage.googleapis.com/profile")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	response.Body.Close()
}

func TestRoutingTransportNormalizesHosts(t *testing.T) {
	transport := NewRoutingTransport(nil, nil, []string{" GenerativeLanguage.googleapis.com "}, nil)
	if !transport.Upstream("generativelanguage.googleapis.com:443") {
		t.Fatalf("expected host match regardless of case and port")
	}
	if transport.Upstream("api.marinet.local") {
		t.Fatalf("unexpected upstream match")
	}
}

func TestNewHTTPClientRequiresEmulator(t *testing.T) {
	if _, err := NewHTTPClient(Config{}); !errors.Is(err, errMissingHandler) {
		t.Fatalf("expected errMissingHandler, got %v", err)
	}
}
