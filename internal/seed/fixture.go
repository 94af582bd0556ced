// Package seed populates the emulated backend: a fixed first-run fixture and an optional
// generated demo population for development.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/marinet/internal/groups"
	"github.com/MarcoPoloResearchLab/marinet/internal/kv"
	"github.com/MarcoPoloResearchLab/marinet/internal/records"
	"go.uber.org/zap"
)

// Fixture identities.
const (
	AdminID       = "admin-user-1"
	AdminEmail    = "admin@marinet.edu"
	AdminPassword = "admin123"
	AdminUsername = "Admin User"
)

// Seeder writes the first-run fixture.
type Seeder struct {
	store  kv.Store
	tables records.Tables
	clock  func() time.Time
	logger *zap.Logger
}

// NewSeeder constructs a Seeder.
func NewSeeder(store kv.Store, bound records.Tables, clock func() time.Time, logger *zap.Logger) *Seeder {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{store: store, tables: bound, clock: clock, logger: logger}
}

// Initialize writes the fixture unless the initialized marker is present, and reports whether
// it did. Missing tables are created empty first.
func (s *Seeder) Initialize(ctx context.Context) (bool, error) {
	_, initialized, err := s.store.Get(ctx, records.KeyInitialized)
	if err != nil {
		return false, fmt.Errorf("seed: read marker: %w", err)
	}
	if initialized {
		return false, nil
	}

	for _, table := range records.AllTables {
		_, found, err := s.store.Get(ctx, table)
		if err != nil {
			return false, fmt.Errorf("seed: read %s: %w", table, err)
		}
		if !found {
			if err := s.store.Set(ctx, table, "[]"); err != nil {
				return false, fmt.Errorf("seed: create %s: %w", table, err)
			}
		}
	}

	now := s.clock().UTC()
	if err := s.insertFixture(ctx, now); err != nil {
		return false, err
	}
	if err := s.store.Set(ctx, records.KeyInitialized, "true"); err != nil {
		return false, fmt.Errorf("seed: write marker: %w", err)
	}
	s.logger.Info("seeded first-run fixture", zap.String("admin_id", AdminID))
	return true, nil
}

func (s *Seeder) insertFixture(ctx context.Context, now time.Time) error {
	admin := records.Profile{ID: AdminID, Username: AdminUsername, Email: AdminEmail, CreatedAt: now}
	if _, err := s.tables.Credentials.Insert(ctx, records.Credential{ID: AdminID, Email: AdminEmail, Password: AdminPassword}); err != nil {
		return fmt.Errorf("seed: admin credential: %w", err)
	}
	if _, err := s.tables.Profiles.Insert(ctx, admin); err != nil {
		return fmt.Errorf("seed: admin profile: %w", err)
	}

	fixtureGroups := []records.Group{
		{ID: "group-1", Name: "Math Club", Description: "A group for math enthusiasts to discuss problems and share solutions."},
		{ID: "group-2", Name: "Science Club", Description: "Discuss scientific discoveries, experiments, and theories."},
		{ID: "group-3", Name: "Literature Society", Description: "Analyze books, poetry, and other literary works."},
	}
	for _, group := range fixtureGroups {
		group.CreatedBy = AdminID
		group.MemberCount = 1
		group.CreatedAt = now
		if _, err := s.tables.Groups.Insert(ctx, group); err != nil {
			return fmt.Errorf("seed: group %s: %w", group.ID, err)
		}
		membership := records.GroupMembership{
			ID:       groups.MembershipID(group.ID, AdminID),
			GroupID:  group.ID,
			UserID:   AdminID,
			Role:     records.RoleAdmin,
			JoinedAt: now,
		}
		if _, err := s.tables.GroupMemberships.Insert(ctx, membership); err != nil {
			return fmt.Errorf("seed: membership %s: %w", membership.ID, err)
		}
	}

	mathClub := "group-1"
	fixturePosts := []records.Post{
		{ID: "post-1", UserID: AdminID, Content: "Welcome to MariNet! This is a social platform for schools.", Upvotes: 5, CreatedAt: now},
		{ID: "post-2", UserID: AdminID, Content: "Join our Math Club for exciting problem-solving sessions!", Upvotes: 3, GroupID: &mathClub, CreatedAt: now.Add(-time.Hour)},
	}
	for _, post := range fixturePosts {
		if _, err := s.tables.Posts.Insert(ctx, post); err != nil {
			return fmt.Errorf("seed: post %s: %w", post.ID, err)
		}
	}
	return nil
}
