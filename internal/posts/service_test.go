package posts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/marinet/internal/ids"
	"github.com/MarcoPoloResearchLab/marinet/internal/kv"
	"github.com/MarcoPoloResearchLab/marinet/internal/records"
	"github.com/MarcoPoloResearchLab/marinet/internal/tables"
)

type fixture struct {
	service *Service
	tables  records.Tables
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	storage, err := tables.NewStorage(kv.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("failed to build storage: %v", err)
	}
	f := &fixture{tables: records.BindTables(storage), now: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)}
	service, err := NewService(ServiceConfig{
		Tables:     f.tables,
		IDProvider: &ids.SequenceProvider{},
		Clock: func() time.Time {
			f.now = f.now.Add(time.Minute)
			return f.now
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	f.service = service
	return f
}

func (f *fixture) createPost(t *testing.T, userID, content string) records.Post {
	t.Helper()
	post, err := f.service.Create(context.Background(), NewPost{UserID: userID, Content: content})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return post
}

func (f *fixture) votesOn(t *testing.T, postID string) []records.Vote {
	t.Helper()
	votes, err := tables.Select[records.Vote]().Where(records.VotePostID, postID).Execute(context.Background(), f.tables.Votes)
	if err != nil {
		t.Fatalf("failed to load votes: %v", err)
	}
	return votes
}

func TestVoteToggleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.createPost(t, "user-author", "hello")

	outcome, err := f.service.Vote(ctx, post.ID, "user-u", records.VoteUp)
	if err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	votes := f.votesOn(t, post.ID)
	if len(votes) != 1 || votes[0].UserID != "user-u" || votes[0].Kind != records.VoteUp {
		t.Fatalf("expected one upvote record, got %#v", votes)
	}
	if outcome.Post.Upvotes != 1 || outcome.Vote == nil || *outcome.Vote != records.VoteUp {
		t.Fatalf("unexpected outcome %#v", outcome)
	}

	outcome, err = f.service.Vote(ctx, post.ID, "user-u", records.VoteUp)
	if err != nil {
		t.Fatalf("second vote failed: %v", err)
	}
	if len(f.votesOn(t, post.ID)) != 0 {
		t.Fatalf("expected toggle off to remove the vote")
	}
	if outcome.Post.Upvotes != 0 || outcome.Vote != nil {
		t.Fatalf("unexpected outcome after toggle off %#v", outcome)
	}

	f.service.Vote(ctx, post.ID, "user-u", records.VoteUp)
	outcome, err = f.service.Vote(ctx, post.ID, "user-u", records.VoteDown)
	if err != nil {
		t.Fatalf("switch vote failed: %v", err)
	}
	votes = f.votesOn(t, post.ID)
	if len(votes) != 1 || votes[0].Kind != records.VoteDown {
		t.Fatalf("expected the vote to switch to downvote, got %#v", votes)
	}
	if outcome.Post.Upvotes != 0 || outcome.Post.Downvotes != 1 {
		t.Fatalf("unexpected counters %d/%d", outcome.Post.Upvotes, outcome.Post.Downvotes)
	}
}

func TestVoteRejectsUnknownKindAndPost(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t, "user-author", "hello")
	if _, err := f.service.Vote(context.Background(), post.ID, "user-u", records.VoteKind("sideways")); !errors.Is(err, ErrInvalidVote) {
		t.Fatalf("expected ErrInvalidVote, got %v", err)
	}
	if _, err := f.service.Vote(context.Background(), "post-missing", "user-u", records.VoteUp); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("expected ErrPostNotFound, got %v", err)
	}
}

func TestConcurrentVotesFromDistinctUsersAreAllCounted(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t, "user-author", "popular")

	var wg sync.WaitGroup
	for index := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			userID := "user-" + strings.Repeat("x", index+1)
			if _, err := f.service.Vote(context.Background(), post.ID, userID, records.VoteUp); err != nil {
				t.Errorf("vote failed: %v", err)
			}
		}()
	}
	wg.Wait()

	reloaded, err := f.service.Get(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Upvotes != 20 || len(f.votesOn(t, post.ID)) != 20 {
		t.Fatalf("expected 20 upvotes, got %d", reloaded.Upvotes)
	}
}

func TestCreateValidatesContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Create(ctx, NewPost{UserID: "user-1", Content: "   "}); !errors.Is(err, ErrEmptyPost) {
		t.Fatalf("expected ErrEmptyPost, got %v", err)
	}
	if _, err := f.service.Create(ctx, NewPost{UserID: "user-1", Content: strings.Repeat("é", MaxContentLength+1)}); !errors.Is(err, ErrContentTooLong) {
		t.Fatalf("expected ErrContentTooLong, got %v", err)
	}
	if _, err := f.service.Create(ctx, NewPost{Content: "x"}); !errors.Is(err, ErrMissingAuthorID) {
		t.Fatalf("expected ErrMissingAuthorID, got %v", err)
	}

	image := "https://images.example/cat.png"
	post, err := f.service.Create(ctx, NewPost{UserID: "user-1", ImageURL: &image})
	if err != nil {
		t.Fatalf("image-only post should be accepted: %v", err)
	}
	if post.ImageURL == nil || *post.ImageURL != image || post.GroupID != nil {
		t.Fatalf("unexpected post %#v", post)
	}
	exact, err := f.service.Create(ctx, NewPost{UserID: "user-1", Content: strings.Repeat("a", MaxContentLength)})
	if err != nil || exact.Upvotes != 0 || exact.Downvotes != 0 {
		t.Fatalf("expected a post at the limit to be accepted: %v", err)
	}
}

func TestCreateGroupPostRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	groupID := "group-1"
	f.tables.Groups.Insert(ctx, records.Group{ID: groupID, Name: "Math Club", MemberCount: 1})
	f.tables.GroupMemberships.Insert(ctx, records.GroupMembership{ID: "m1", GroupID: groupID, UserID: "user-member", Role: records.RoleMember})

	if _, err := f.service.Create(ctx, NewPost{UserID: "user-outsider", Content: "hi", GroupID: &groupID}); !errors.Is(err, ErrNotGroupMember) {
		t.Fatalf("expected ErrNotGroupMember, got %v", err)
	}
	missing := "group-missing"
	if _, err := f.service.Create(ctx, NewPost{UserID: "user-member", Content: "hi", GroupID: &missing}); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
	post, err := f.service.Create(ctx, NewPost{UserID: "user-member", Content: "hi", GroupID: &groupID})
	if err != nil {
		t.Fatalf("member post failed: %v", err)
	}

	groupPosts, _ := f.service.GroupPosts(ctx, groupID)
	if len(groupPosts) != 1 || groupPosts[0].ID != post.ID {
		t.Fatalf("unexpected group posts %#v", groupPosts)
	}
	feed, _ := f.service.Feed(ctx, 0)
	if len(feed) != 0 {
		t.Fatalf("group posts must stay off the global feed, got %#v", feed)
	}
}

func TestFeedAndUserPostsAreNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createPost(t, "user-1", "first")
	second := f.createPost(t, "user-2", "second")
	third := f.createPost(t, "user-1", "third")

	feed, err := f.service.Feed(ctx, 2)
	if err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if len(feed) != 2 || feed[0].ID != third.ID || feed[1].ID != second.ID {
		t.Fatalf("unexpected feed %#v", feed)
	}
	mine, _ := f.service.UserPosts(ctx, "user-1")
	if len(mine) != 2 || mine[0].ID != third.ID || mine[1].ID != first.ID {
		t.Fatalf("unexpected user posts %#v", mine)
	}
}

func TestDeleteRequiresAuthorAndRemovesVotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.createPost(t, "user-author", "bye")
	f.service.Vote(ctx, post.ID, "user-u", records.VoteUp)

	if err := f.service.Delete(ctx, post.ID, "user-u"); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}
	if err := f.service.Delete(ctx, post.ID, "user-author"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := f.service.Get(ctx, post.ID); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("expected post to be gone, got %v", err)
	}
	if len(f.votesOn(t, post.ID)) != 0 {
		t.Fatalf("expected votes to be removed with the post")
	}
}

func TestUserVotesMapsPostsToKinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createPost(t, "user-author", "one")
	second := f.createPost(t, "user-author", "two")
	f.service.Vote(ctx, first.ID, "user-u", records.VoteUp)
	f.service.Vote(ctx, second.ID, "user-u", records.VoteDown)
	f.service.Vote(ctx, second.ID, "user-other", records.VoteUp)

	votes, err := f.service.UserVotes(ctx, "user-u")
	if err != nil {
		t.Fatalf("user votes failed: %v", err)
	}
	if len(votes) != 2 || votes[first.ID] != records.VoteUp || votes[second.ID] != records.VoteDown {
		t.Fatalf("unexpected votes %#v", votes)
	}
}
