package database

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/marinet/internal/records"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestStoreRoundTrip(testContext *testing.T) {
	db, err := OpenSQLite(filepath.Join(testContext.TempDir(), "kv.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	store, err := NewStore(db)
	if err != nil {
		testContext.Fatalf("failed to build store: %v", err)
	}
	ctx := context.Background()

	if _, found, err := store.Get(ctx, records.TablePosts); err != nil || found {
		testContext.Fatalf("expected missing key, found=%v err=%v", found, err)
	}
	if err := store.Set(ctx, records.TablePosts, `[{"id":"post-1"}]`); err != nil {
		testContext.Fatalf("set failed: %v", err)
	}
	if err := store.Set(ctx, records.TablePosts, `[{"id":"post-2"}]`); err != nil {
		testContext.Fatalf("overwrite failed: %v", err)
	}
	value, found, err := store.Get(ctx, records.TablePosts)
	if err != nil || !found {
		testContext.Fatalf("expected stored value, found=%v err=%v", found, err)
	}
	if value != `[{"id":"post-2"}]` {
		testContext.Fatalf("unexpected value %q", value)
	}
	if err := store.Remove(ctx, records.TablePosts); err != nil {
		testContext.Fatalf("remove failed: %v", err)
	}
	if _, found, _ := store.Get(ctx, records.TablePosts); found {
		testContext.Fatalf("expected key to be removed")
	}
}

func TestApplyMigrationsRepairsVoteCounters(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&Entry{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	store, _ := NewStore(database)
	ctx := context.Background()
	posts, _ := json.Marshal([]records.Post{
		{ID: "post-1", Upvotes: 7, Downvotes: 2},
		{ID: "post-2", Upvotes: 0, Downvotes: 0},
	})
	votes, _ := json.Marshal([]records.Vote{
		{ID: "vote-1", PostID: "post-1", UserID: "u1", Kind: records.VoteUp},
		{ID: "vote-2", PostID: "post-2", UserID: "u1", Kind: records.VoteDown},
		{ID: "vote-3", PostID: "post-2", UserID: "u2", Kind: records.VoteDown},
	})
	_ = store.Set(ctx, records.TablePosts, string(posts))
	_ = store.Set(ctx, records.TableVotes, string(votes))

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	raw, _, _ := store.Get(ctx, records.TablePosts)
	var repaired []records.Post
	if err := json.Unmarshal([]byte(raw), &repaired); err != nil {
		testContext.Fatalf("failed to decode posts: %v", err)
	}
	if repaired[0].Upvotes != 1 || repaired[0].Downvotes != 0 {
		testContext.Fatalf("unexpected counters for post-1: %+v", repaired[0])
	}
	if repaired[1].Upvotes != 0 || repaired[1].Downvotes != 2 {
		testContext.Fatalf("unexpected counters for post-2: %+v", repaired[1])
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationRepairPostVoteCounters).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}
