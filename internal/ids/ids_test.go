package ids

import (
	"strings"
	"testing"
)

func TestUUIDProviderPrefixesIdentifiers(t *testing.T) {
	provider := NewUUIDProvider()
	first, err := provider.NewID("post")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := provider.NewID("post")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(first, "post-") {
		t.Fatalf("expected post- prefix, got %q", first)
	}
	if first == second {
		t.Fatalf("expected distinct identifiers, got %q twice", first)
	}
}

func TestUUIDProviderWithoutPrefix(t *testing.T) {
	value, err := NewUUIDProvider().NewID("  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.HasPrefix(value, "-") {
		t.Fatalf("unexpected leading separator in %q", value)
	}
}

func TestSequenceProviderIsDeterministic(t *testing.T) {
	provider := &SequenceProvider{}
	first, _ := provider.NewID("user")
	second, _ := provider.NewID("group")
	if first != "user-1" || second != "group-2" {
		t.Fatalf("unexpected sequence %q, %q", first, second)
	}
}
