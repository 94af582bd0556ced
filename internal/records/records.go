// Package records declares the entities persisted in the emulated backend tables and the
// typed column descriptors used to query them.
package records

import (
	"time"

	"github.com/MarcoPoloResearchLab/marinet/internal/tables"
)

// Storage keys of the persisted tables and auxiliary values.
const (
	TableCredentials      = "marinet_users"
	TableProfiles         = "marinet_profiles"
	TablePosts            = "marinet_posts"
	TableGroups           = "marinet_groups"
	TableGroupMemberships = "marinet_group_members"
	TableVotes            = "marinet_votes"

	KeySession     = "marinet_session"
	KeyInitialized = "marinet_initialized"
)

// AllTables lists every table key in seeding order.
var AllTables = []string{
	TableCredentials,
	TableProfiles,
	TableGroups,
	TableGroupMemberships,
	TablePosts,
	TableVotes,
}

// Profile is the user-facing identity.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	Bio       string    `json:"bio,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Credential is used only for sign-in comparison. The password is stored as given.
type Credential struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Post is a feed entry. A nil GroupID places it on the global feed.
type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	ImageURL  *string   `json:"image_url"`
	GroupID   *string   `json:"group_id"`
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
	CreatedAt time.Time `json:"created_at"`
}

// VoteKind is the direction of a vote.
type VoteKind string

const (
	VoteUp   VoteKind = "upvote"
	VoteDown VoteKind = "downvote"
)

// Valid reports whether the kind is one of the known directions.
func (k VoteKind) Valid() bool {
	return k == VoteUp || k == VoteDown
}

// Opposite returns the other direction.
func (k VoteKind) Opposite() VoteKind {
	if k == VoteUp {
		return VoteDown
	}
	return VoteUp
}

// Vote records one user's vote on one post.
type Vote struct {
	ID     string   `json:"id"`
	PostID string   `json:"post_id"`
	UserID string   `json:"user_id"`
	Kind   VoteKind `json:"vote_type"`
}

// Group is a discussion group with a denormalized member count.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
	ImageURL    *string   `json:"image_url"`
}

// MembershipRole is a member's role within a group.
type MembershipRole string

const (
	RoleAdmin  MembershipRole = "admin"
	RoleMember MembershipRole = "member"
)

// GroupMembership joins a profile to a group.
type GroupMembership struct {
	ID       string         `json:"id"`
	GroupID  string         `json:"group_id"`
	UserID   string         `json:"user_id"`
	Role     MembershipRole `json:"role"`
	JoinedAt time.Time      `json:"joined_at"`
}

// Session is the persisted auth session value.
type Session struct {
	User *Profile `json:"user"`
}

func optional(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

// Profile columns.
var (
	ProfileID        = tables.NewField("id", func(p Profile) any { return p.ID })
	ProfileUsername  = tables.NewField("username", func(p Profile) any { return p.Username })
	ProfileEmail     = tables.NewField("email", func(p Profile) any { return p.Email })
	ProfileCreatedAt = tables.NewField("created_at", func(p Profile) any { return p.CreatedAt })
)

// Credential columns.
var (
	CredentialID    = tables.NewField("id", func(c Credential) any { return c.ID })
	CredentialEmail = tables.NewField("email", func(c Credential) any { return c.Email })
)

// Post columns.
var (
	PostID        = tables.NewField("id", func(p Post) any { return p.ID })
	PostUserID    = tables.NewField("user_id", func(p Post) any { return p.UserID })
	PostGroupID   = tables.NewField("group_id", func(p Post) any { return optional(p.GroupID) })
	PostCreatedAt = tables.NewField("created_at", func(p Post) any { return p.CreatedAt })
	PostUpvotes   = tables.NewCounter("upvotes",
		func(p Post) int { return p.Upvotes },
		func(p *Post, value int) { p.Upvotes = value })
	PostDownvotes = tables.NewCounter("downvotes",
		func(p Post) int { return p.Downvotes },
		func(p *Post, value int) { p.Downvotes = value })
)

// VoteCounter returns the post counter tracking votes of the given kind.
func VoteCounter(kind VoteKind) tables.Counter[Post] {
	if kind == VoteDown {
		return PostDownvotes
	}
	return PostUpvotes
}

// Vote columns.
var (
	VoteID     = tables.NewField("id", func(v Vote) any { return v.ID })
	VotePostID = tables.NewField("post_id", func(v Vote) any { return v.PostID })
	VoteUserID = tables.NewField("user_id", func(v Vote) any { return v.UserID })
	VoteType   = tables.NewField("vote_type", func(v Vote) any { return v.Kind })
)

// Group columns.
var (
	GroupID          = tables.NewField("id", func(g Group) any { return g.ID })
	GroupName        = tables.NewField("name", func(g Group) any { return g.Name })
	GroupCreatedBy   = tables.NewField("created_by", func(g Group) any { return g.CreatedBy })
	GroupCreatedAt   = tables.NewField("created_at", func(g Group) any { return g.CreatedAt })
	GroupMemberCount = tables.NewCounter("member_count",
		func(g Group) int { return g.MemberCount },
		func(g *Group, value int) { g.MemberCount = value })
)

// GroupMembership columns. Role orders as a plain string.
var (
	MembershipID         = tables.NewField("id", func(m GroupMembership) any { return m.ID })
	MembershipGroupID    = tables.NewField("group_id", func(m GroupMembership) any { return m.GroupID })
	MembershipUserID     = tables.NewField("user_id", func(m GroupMembership) any { return m.UserID })
	MembershipRoleColumn = tables.NewField("role", func(m GroupMembership) any { return string(m.Role) })
)
