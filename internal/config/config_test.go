package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StorageDriver != StorageSQLite || cfg.DatabasePath != "marinet.db" {
		t.Fatalf("unexpected storage defaults: %+v", cfg)
	}
	if cfg.TokenTTL != time.Hour {
		t.Fatalf("expected one hour token ttl, got %s", cfg.TokenTTL)
	}
	if cfg.TutorTimeout != 30*time.Second {
		t.Fatalf("unexpected tutor timeout %s", cfg.TutorTimeout)
	}
	if len(cfg.UpstreamHosts) != 1 || cfg.UpstreamHosts[0] != "generativelanguage.googleapis.com" {
		t.Fatalf("unexpected upstream hosts %v", cfg.UpstreamHosts)
	}
	if cfg.TutorOnline() {
		t.Fatalf("tutor must stay offline without an api key")
	}
	if !cfg.SeedEnabled {
		t.Fatalf("seeding should be enabled by default")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("MARINET_AUTH_SIGNING_SECRET", "from-env")
	t.Setenv("MARINET_STORAGE_DRIVER", "Redis")
	t.Setenv("MARINET_GEMINI_API_KEY", "key")
	t.Setenv("MARINET_GATEWAY_UPSTREAM_HOSTS", "a.example.com, b.example.com")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SigningSecret != "from-env" || cfg.StorageDriver != StorageRedis {
		t.Fatalf("environment not applied: %+v", cfg)
	}
	if !cfg.TutorOnline() {
		t.Fatalf("expected tutor to be online with an api key")
	}
	if len(cfg.UpstreamHosts) != 2 || cfg.UpstreamHosts[1] != "b.example.com" {
		t.Fatalf("unexpected upstream hosts %v", cfg.UpstreamHosts)
	}
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	testCases := []struct {
		name    string
		key     string
		value   any
		message string
	}{
		{name: "missing secret", key: "auth.signing_secret", value: "", message: "auth.signing_secret"},
		{name: "unknown driver", key: "storage.driver", value: "etcd", message: "storage.driver"},
		{name: "bad ttl", key: "token.ttl_minutes", value: 0, message: "token.ttl_minutes"},
		{name: "bad format", key: "log.format", value: "xml", message: "log.format"},
		{name: "negative demo", key: "seed.demo_profiles", value: -1, message: "seed.demo_profiles"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			configViper.Set("auth.signing_secret", "secret")
			configViper.Set(testCase.key, testCase.value)
			_, err := Load(configViper)
			if err == nil || !strings.Contains(err.Error(), testCase.message) {
				t.Fatalf("expected error mentioning %s, got %v", testCase.message, err)
			}
		})
	}
}
