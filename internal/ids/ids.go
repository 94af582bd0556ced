package ids

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Provider issues record identifiers.
type Provider interface {
	NewID(prefix string) (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a Provider that issues prefixed UUIDv7 identifiers.
func NewUUIDProvider() Provider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID(prefix string) (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return value.String(), nil
	}
	return fmt.Sprintf("%s-%s", prefix, value.String()), nil
}

// SequenceProvider issues deterministic identifiers; used by tests and fixtures.
type SequenceProvider struct {
	mu   sync.Mutex
	next int
}

// NewID returns prefix-1, prefix-2, ...
func (p *SequenceProvider) NewID(prefix string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("%s-%d", prefix, p.next), nil
}
