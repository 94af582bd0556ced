package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/marinet/internal/config"
	"github.com/MarcoPoloResearchLab/marinet/internal/gateway"
	"github.com/MarcoPoloResearchLab/marinet/internal/records"
	"github.com/MarcoPoloResearchLab/marinet/internal/seed"
	"github.com/MarcoPoloResearchLab/marinet/internal/tutor"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const emulatedOrigin = "https://api.marinet.local"

func testConfig(driver, databasePath string) config.AppConfig {
	return config.AppConfig{
		StorageDriver: driver,
		DatabasePath:  databasePath,
		SigningSecret: "wiring-secret",
		CookieName:    "marinet_access",
		TokenTTL:      time.Hour,
		TutorOffline:  true,
		TutorTimeout:  5 * time.Second,
		LogFormat:     "json",
	}
}

func postJSON(t *testing.T, client *http.Client, path, token string, body any) gateway.Envelope {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	request, err := http.NewRequest(http.MethodPost, emulatedOrigin+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := client.Do(request)
	if err != nil {
		t.Fatalf("request %s failed: %v", path, err)
	}
	envelope, err := gateway.ReadEnvelope(response)
	if err != nil {
		t.Fatalf("failed to read envelope: %v", err)
	}
	return envelope
}

func TestApplicationServesFixtureThroughGateway(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	for _, driver := range []string{config.StorageMemory, config.StorageSQLite} {
		t.Run(driver, func(t *testing.T) {
			cfg := testConfig(driver, filepath.Join(t.TempDir(), "marinet.db"))
			app, err := buildApplication(ctx, cfg, zap.NewNop())
			if err != nil {
				t.Fatalf("failed to build application: %v", err)
			}
			defer app.Close()

			if err := app.seed(ctx, seed.DemoOptions{}, false); err != nil {
				t.Fatalf("failed to seed: %v", err)
			}
			if app.tutorName != "canned" {
				t.Fatalf("expected the offline tutor, got %q", app.tutorName)
			}

			client, err := gateway.NewHTTPClient(gateway.Config{Emulator: app.handler, Offline: true})
			if err != nil {
				t.Fatalf("failed to build gateway client: %v", err)
			}

			signIn := postJSON(t, client, "/auth/signin", "", map[string]string{
				"email":    seed.AdminEmail,
				"password": seed.AdminPassword,
			})
			if !signIn.OK() {
				t.Fatalf("sign in failed: %+v", signIn.Error)
			}
			var session struct {
				User    records.Profile `json:"user"`
				Session struct {
					AccessToken string `json:"access_token"`
				} `json:"session"`
			}
			if err := signIn.Decode(&session); err != nil {
				t.Fatalf("failed to decode session: %v", err)
			}
			if session.User.ID != seed.AdminID || session.Session.AccessToken == "" {
				t.Fatalf("unexpected session: %+v", session)
			}

			reply := postJSON(t, client, "/tutor/messages", session.Session.AccessToken, map[string]string{
				"message": "How do fractions work?",
			})
			var message tutor.ChatMessage
			if err := reply.Decode(&message); err != nil {
				t.Fatalf("tutor reply failed: %v", err)
			}
			if message.Role != tutor.RoleModel || message.Content == "" {
				t.Fatalf("unexpected tutor reply: %+v", message)
			}

			response, err := client.Get(emulatedOrigin + "/groups/popular?limit=2")
			if err != nil {
				t.Fatalf("popular groups request failed: %v", err)
			}
			popular, err := gateway.ReadEnvelope(response)
			if err != nil {
				t.Fatalf("failed to read envelope: %v", err)
			}
			var groups []records.Group
			if err := popular.Decode(&groups); err != nil {
				t.Fatalf("failed to decode groups: %v", err)
			}
			if len(groups) != 2 {
				t.Fatalf("expected two popular groups, got %d", len(groups))
			}
		})
	}
}

func TestSeedIsIdempotentAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(config.StorageSQLite, filepath.Join(t.TempDir(), "marinet.db"))

	for range 2 {
		app, err := buildApplication(ctx, cfg, zap.NewNop())
		if err != nil {
			t.Fatalf("failed to build application: %v", err)
		}
		if err := app.seed(ctx, seed.DemoOptions{}, false); err != nil {
			app.Close()
			t.Fatalf("failed to seed: %v", err)
		}
		all, err := app.tables.Groups.ReadAll(ctx)
		app.Close()
		if err != nil {
			t.Fatalf("failed to read groups: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected three fixture groups, got %d", len(all))
		}
	}
}

func TestDeferredHandlerRejectsBeforeInstall(t *testing.T) {
	handler := &deferredHandler{}
	client, err := gateway.NewHTTPClient(gateway.Config{Emulator: handler, Offline: true})
	if err != nil {
		t.Fatalf("failed to build gateway client: %v", err)
	}
	response, err := client.Get(emulatedOrigin + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before install, got %d", response.StatusCode)
	}
}
