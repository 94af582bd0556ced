// Package gateway routes outbound HTTP calls either to the real network or to the in-process
// emulator. The routing is fixed when the client is built.
package gateway

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/marinet/internal/metrics"
	"go.uber.org/zap"
)

// DefaultUpstreamHost is the AI provider host that is always sent to the real network.
const DefaultUpstreamHost = "generativelanguage.googleapis.com"

const (
	routeUpstream = "upstream"
	routeEmulator = "emulator"
	routeFallback = "fallback"

	userAgent = "marinet-gateway/1"
)

var errMissingHandler = errors.New("gateway: emulator handler required")

// UpstreamTransport sends requests to the real network.
type UpstreamTransport struct {
	base http.RoundTripper
}

// NewUpstreamTransport wraps base, or a clone of http.DefaultTransport when base is nil.
func NewUpstreamTransport(base http.RoundTripper) *UpstreamTransport {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	return &UpstreamTransport{base: base}
}

func (t *UpstreamTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", userAgent)
	}
	return t.base.RoundTrip(req)
}

// EmulatorTransport serves requests in-process against the emulated backend handler.
type EmulatorTransport struct {
	handler http.Handler
}

// NewEmulatorTransport constructs a transport that never touches the network.
func NewEmulatorTransport(handler http.Handler) (*EmulatorTransport, error) {
	if handler == nil {
		return nil, errMissingHandler
	}
	return &EmulatorTransport{handler: handler}, nil
}

func (t *EmulatorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	inbound := req.Clone(req.Context())
	inbound.RequestURI = req.URL.RequestURI()
	if inbound.Host == "" {
		inbound.Host = req.URL.Host
	}
	if inbound.Body == nil {
		inbound.Body = http.NoBody
	}

	recorder := httptest.NewRecorder()
	t.handler.ServeHTTP(recorder, inbound)

	response := recorder.Result()
	response.Request = req
	return response, nil
}

// RoutingTransport sends allow-listed hosts upstream and everything else to the emulator. A
// failed upstream round trip is replayed against the emulator.
type RoutingTransport struct {
	upstream http.RoundTripper
	emulator http.RoundTripper
	hosts    map[string]struct{}
	logger   *zap.Logger
}

// NewRoutingTransport constructs the routing transport.
func NewRoutingTransport(upstream, emulator http.RoundTripper, upstreamHosts []string, logger *zap.Logger) *RoutingTransport {
	hosts := make(map[string]struct{}, len(upstreamHosts))
	for _, host := range upstreamHosts {
		if normalized := normalizeHost(host); normalized != "" {
			hosts[normalized] = struct{}{}
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoutingTransport{upstream: upstream, emulator: emulator, hosts: hosts, logger: logger}
}

// Upstream reports whether requests to host leave the process.
func (t *RoutingTransport) Upstream(host string) bool {
	_, ok := t.hosts[normalizeHost(host)]
	return ok
}

func (t *RoutingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.Upstream(req.URL.Host) {
		metrics.GatewayRoutes.WithLabelValues(routeEmulator).Inc()
		return t.emulator.RoundTrip(req)
	}

	outbound, replay, err := bufferBody(req)
	if err != nil {
		return nil, err
	}
	metrics.GatewayRoutes.WithLabelValues(routeUpstream).Inc()
	response, err := t.upstream.RoundTrip(outbound)
	if err == nil {
		return response, nil
	}
	if ctxErr := req.Context().Err(); ctxErr != nil {
		return nil, err
	}

	t.logger.Warn("upstream request failed; serving from emulator",
		zap.String("host", req.URL.Host),
		zap.String("path", req.URL.Path),
		zap.Error(err))
	metrics.GatewayRoutes.WithLabelValues(routeFallback).Inc()
	return t.emulator.RoundTrip(replay)
}

// Config describes the HTTP client built by NewHTTPClient.
type Config struct {
	// Emulator serves every request not bound for an upstream host.
	Emulator http.Handler
	// Upstream overrides the network transport; nil uses a clone of http.DefaultTransport.
	Upstream      http.RoundTripper
	UpstreamHosts []string
	// Offline sends every request to the emulator, including upstream hosts.
	Offline bool
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewHTTPClient builds a client whose transport routes as described by cfg.
func NewHTTPClient(cfg Config) (*http.Client, error) {
	emulator, err := NewEmulatorTransport(cfg.Emulator)
	if err != nil {
		return nil, err
	}
	hosts := cfg.UpstreamHosts
	if len(hosts) == 0 {
		hosts = []string{DefaultUpstreamHost}
	}
	if cfg.Offline {
		hosts = nil
	}
	transport := NewRoutingTransport(NewUpstreamTransport(cfg.Upstream), emulator, hosts, cfg.Logger)
	return &http.Client{Transport: transport, Timeout: cfg.Timeout}, nil
}

// bufferBody returns two copies of req that can each be sent once.
func bufferBody(req *http.Request) (*http.Request, *http.Request, error) {
	outbound := req.Clone(req.Context())
	replay := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return outbound, replay, nil
	}
	payload, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("gateway: buffer request body: %w", err)
	}
	outbound.Body = io.NopCloser(bytes.NewReader(payload))
	replay.Body = io.NopCloser(bytes.NewReader(payload))
	return outbound, replay, nil
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if withoutPort, _, err := net.SplitHostPort(host); err == nil {
		host = withoutPort
	}
	return host
}
