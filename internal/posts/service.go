// Package posts manages feed posts and the votes cast on them.
package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/marinet/internal/ids"
	"github.com/MarcoPoloResearchLab/marinet/internal/records"
	"github.com/MarcoPoloResearchLab/marinet/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/marinet/internal/tables"
	"go.uber.org/zap"
)

// MaxContentLength is the longest post body accepted, in characters.
const MaxContentLength = 900

var (
	ErrPostNotFound    = errors.New("posts: post not found")
	ErrNotAuthor       = errors.New("posts: only the author can delete a post")
	ErrEmptyPost       = errors.New("posts: content or image required")
	ErrContentTooLong  = fmt.Errorf("posts: content exceeds %d characters", MaxContentLength)
	ErrInvalidVote     = errors.New("posts: vote type must be upvote or downvote")
	ErrGroupNotFound   = errors.New("posts: group not found")
	ErrNotGroupMember  = errors.New("posts: only group members can post in a group")
	ErrMissingAuthorID = errors.New("posts: author id required")
)

const (
	opCreate    = "posts.create"
	opList      = "posts.list"
	opDelete    = "posts.delete"
	opVote      = "posts.vote"
	opUserVotes = "posts.user_votes"
)

// ServiceConfig describes the dependencies of the post service.
type ServiceConfig struct {
	Tables     records.Tables
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// NewPost is the input of Create.
type NewPost struct {
	UserID   string
	Content  string
	ImageURL *string
	GroupID  *string
}

// VoteOutcome reports the post after a vote and the caller's resulting vote, nil when retracted.
type VoteOutcome struct {
	Post records.Post      `json:"post"`
	Vote *records.VoteKind `json:"vote"`
}

// Service manages posts and votes.
type Service struct {
	tables records.Tables
	ids    ids.Provider
	clock  func() time.Time
	logger *zap.Logger

	// voteMu keeps the read of a user's vote and the writes it decides on together.
	voteMu sync.Mutex
}

// NewService constructs the post service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Tables.Posts == nil || cfg.Tables.Votes == nil {
		return nil, fmt.Errorf("posts: post and vote tables required")
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{tables: cfg.Tables, ids: idProvider, clock: clock, logger: logger}, nil
}

// Create validates and stores a post. Group posts require membership of the group.
func (s *Service) Create(ctx context.Context, input NewPost) (records.Post, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return records.Post{}, ErrMissingAuthorID
	}
	content := strings.TrimSpace(input.Content)
	imageURL := trimOptional(input.ImageURL)
	if content == "" && imageURL == nil {
		return records.Post{}, ErrEmptyPost
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return records.Post{}, ErrContentTooLong
	}

	groupID := trimOptional(input.GroupID)
	if groupID != nil {
		if err := s.requireMembership(ctx, *groupID, userID); err != nil {
			return records.Post{}, err
		}
	}

	postID, err := s.ids.NewID("post")
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.String("user_id", userID))
		return records.Post{}, serviceerr.New(opCreate, "id_generation_failed", err)
	}
	post := records.Post{
		ID:        postID,
		UserID:    userID,
		Content:   content,
		ImageURL:  imageURL,
		GroupID:   groupID,
		CreatedAt: s.clock().UTC(),
	}
	if _, err := s.tables.Posts.Insert(ctx, post); err != nil {
		s.logError(opCreate, "post_insert_failed", err, zap.String("user_id", userID))
		return records.Post{}, serviceerr.New(opCreate, "post_insert_failed", err)
	}
	return post, nil
}

// Get returns the post with id.
func (s *Service) Get(ctx context.Context, postID string) (records.Post, error) {
	post, err := tables.Select[records.Post]().Where(records.PostID, postID).Single(ctx, s.tables.Posts)
	if err != nil {
		s.logError(opList, "post_select_failed", err, zap.String("post_id", postID))
		return records.Post{}, serviceerr.New(opList, "post_select_failed", err)
	}
	if post == nil {
		return records.Post{}, ErrPostNotFound
	}
	return *post, nil
}

// Feed returns global posts, newest first. A non-positive limit returns all of them.
func (s *Service) Feed(ctx context.Context, limit int) ([]records.Post, error) {
	return s.list(ctx, newest().Where(records.PostGroupID, nil).Limit(limit))
}

// GroupPosts returns the posts of a group, newest first.
func (s *Service) GroupPosts(ctx context.Context, groupID string) ([]records.Post, error) {
	return s.list(ctx, newest().Where(records.PostGroupID, groupID))
}

// UserPosts returns every post authored by userID, newest first.
func (s *Service) UserPosts(ctx context.Context, userID string) ([]records.Post, error) {
	return s.list(ctx, newest().Where(records.PostUserID, userID))
}

// Delete removes a post and its votes. Only the author may delete.
func (s *Service) Delete(ctx context.Context, postID, userID string) error {
	post, err := s.Get(ctx, postID)
	if err != nil {
		return err
	}
	if post.UserID != userID {
		return ErrNotAuthor
	}
	if _, err := s.tables.Posts.Delete(ctx, tables.Where(records.PostID, postID)); err != nil {
		s.logError(opDelete, "post_delete_failed", err, zap.String("post_id", postID))
		return serviceerr.New(opDelete, "post_delete_failed", err)
	}
	if _, err := s.tables.Votes.Delete(ctx, tables.Where(records.VotePostID, postID)); err != nil {
		s.logError(opDelete, "vote_delete_failed", err, zap.String("post_id", postID))
		return serviceerr.New(opDelete, "vote_delete_failed", err)
	}
	return nil
}

// Vote toggles userID's vote on a post. Voting the same way twice retracts the vote; voting the
// other way switches it. Counters move through Adjust so they track the stored values.
func (s *Service) Vote(ctx context.Context, postID, userID string, kind records.VoteKind) (VoteOutcome, error) {
	if !kind.Valid() {
		return VoteOutcome{}, ErrInvalidVote
	}
	if _, err := s.Get(ctx, postID); err != nil {
		return VoteOutcome{}, err
	}

	s.voteMu.Lock()
	defer s.voteMu.Unlock()

	voteFilter := tables.Where(records.VotePostID, postID).And(records.VoteUserID, userID)
	existing, err := tables.Select[records.Vote]().
		Where(records.VotePostID, postID).
		Where(records.VoteUserID, userID).
		Single(ctx, s.tables.Votes)
	if err != nil {
		return VoteOutcome{}, s.voteFailure("vote_select_failed", err, postID, userID)
	}

	var result *records.VoteKind
	switch {
	case existing == nil:
		voteID, err := s.ids.NewID("vote")
		if err != nil {
			return VoteOutcome{}, s.voteFailure("id_generation_failed", err, postID, userID)
		}
		if _, err := s.tables.Votes.Insert(ctx, records.Vote{ID: voteID, PostID: postID, UserID: userID, Kind: kind}); err != nil {
			return VoteOutcome{}, s.voteFailure("vote_insert_failed", err, postID, userID)
		}
		if err := s.adjust(ctx, postID, kind, 1); err != nil {
			return VoteOutcome{}, s.voteFailure("adjust_failed", err, postID, userID)
		}
		result = &kind
	case existing.Kind == kind:
		if _, err := s.tables.Votes.Delete(ctx, voteFilter); err != nil {
			return VoteOutcome{}, s.voteFailure("vote_delete_failed", err, postID, userID)
		}
		if err := s.adjust(ctx, postID, kind, -1); err != nil {
			return VoteOutcome{}, s.voteFailure("adjust_failed", err, postID, userID)
		}
	default:
		previous := existing.Kind
		if _, err := s.tables.Votes.Update(ctx, voteFilter, func(vote *records.Vote) { vote.Kind = kind }); err != nil {
			return VoteOutcome{}, s.voteFailure("vote_update_failed", err, postID, userID)
		}
		if err := s.adjust(ctx, postID, previous, -1); err != nil {
			return VoteOutcome{}, s.voteFailure("adjust_failed", err, postID, userID)
		}
		if err := s.adjust(ctx, postID, kind, 1); err != nil {
			return VoteOutcome{}, s.voteFailure("adjust_failed", err, postID, userID)
		}
		result = &kind
	}

	post, err := s.Get(ctx, postID)
	if err != nil {
		return VoteOutcome{}, err
	}
	return VoteOutcome{Post: post, Vote: result}, nil
}

// UserVotes maps post ids to userID's vote on them.
func (s *Service) UserVotes(ctx context.Context, userID string) (map[string]records.VoteKind, error) {
	votes, err := tables.Select[records.Vote]().Where(records.VoteUserID, userID).Execute(ctx, s.tables.Votes)
	if err != nil {
		s.logError(opUserVotes, "vote_select_failed", err, zap.String("user_id", userID))
		return nil, serviceerr.New(opUserVotes, "vote_select_failed", err)
	}
	byPost := make(map[string]records.VoteKind, len(votes))
	for _, vote := range votes {
		byPost[vote.PostID] = vote.Kind
	}
	return byPost, nil
}

func (s *Service) adjust(ctx context.Context, postID string, kind records.VoteKind, delta int) error {
	_, err := s.tables.Posts.Adjust(ctx, tables.Where(records.PostID, postID), records.VoteCounter(kind), delta)
	return err
}

func (s *Service) requireMembership(ctx context.Context, groupID, userID string) error {
	if s.tables.Groups == nil || s.tables.GroupMemberships == nil {
		return ErrGroupNotFound
	}
	group, err := tables.Select[records.Group]().Where(records.GroupID, groupID).Single(ctx, s.tables.Groups)
	if err != nil {
		s.logError(opCreate, "group_select_failed", err, zap.String("group_id", groupID))
		return serviceerr.New(opCreate, "group_select_failed", err)
	}
	if group == nil {
		return ErrGroupNotFound
	}
	membership, err := tables.Select[records.GroupMembership]().
		Where(records.MembershipGroupID, groupID).
		Where(records.MembershipUserID, userID).
		Single(ctx, s.tables.GroupMemberships)
	if err != nil {
		s.logError(opCreate, "membership_select_failed", err, zap.String("group_id", groupID))
		return serviceerr.New(opCreate, "membership_select_failed", err)
	}
	if membership == nil {
		return ErrNotGroupMember
	}
	return nil
}

func (s *Service) list(ctx context.Context, query tables.Query[records.Post]) ([]records.Post, error) {
	posts, err := query.Execute(ctx, s.tables.Posts)
	if err != nil {
		s.logError(opList, "post_select_failed", err)
		return nil, serviceerr.New(opList, "post_select_failed", err)
	}
	return posts, nil
}

func (s *Service) voteFailure(reason string, err error, postID, userID string) error {
	s.logError(opVote, reason, err, zap.String("post_id", postID), zap.String("user_id", userID))
	return serviceerr.New(opVote, reason, err)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	serviceerr.Log(s.logger, "posts service error", operation, reason, err, fields...)
}

func newest() tables.Query[records.Post] {
	return tables.Select[records.Post]().OrderBy(records.PostCreatedAt, false)
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
