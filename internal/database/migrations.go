package database

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/marinet/internal/records"
	"github.com/MarcoPoloResearchLab/marinet/internal/tables"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRepairPostVoteCounters = "2026-10-01_repair_post_vote_counters"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB, *zap.Logger) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRepairPostVoteCounters, apply: repairPostVoteCounters},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db, logger); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// repairPostVoteCounters recomputes the denormalized post counters from the votes table.
// Counters written by clients that computed the new value themselves may have drifted.
func repairPostVoteCounters(db *gorm.DB, logger *zap.Logger) error {
	store, err := NewStore(db)
	if err != nil {
		return err
	}
	storage, err := tables.NewStorage(store, logger)
	if err != nil {
		return err
	}
	bound := records.BindTables(storage)
	ctx := context.Background()

	votes, err := bound.Votes.ReadAll(ctx)
	if err != nil {
		return err
	}
	type tally struct{ up, down int }
	tallies := make(map[string]tally, len(votes))
	for _, vote := range votes {
		current := tallies[vote.PostID]
		switch vote.Kind {
		case records.VoteUp:
			current.up++
		case records.VoteDown:
			current.down++
		}
		tallies[vote.PostID] = current
	}

	posts, err := bound.Posts.ReadAll(ctx)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		return nil
	}
	for index := range posts {
		counted := tallies[posts[index].ID]
		posts[index].Upvotes = counted.up
		posts[index].Downvotes = counted.down
	}
	return bound.Posts.WriteAll(ctx, posts)
}
