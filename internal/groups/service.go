// Package groups manages discussion groups and their memberships.
package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/marinet/internal/ids"
	"github.com/MarcoPoloResearchLab/marinet/internal/records"
	"github.com/MarcoPoloResearchLab/marinet/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/marinet/internal/tables"
	"go.uber.org/zap"
)

const defaultPopularLimit = 5

var (
	ErrGroupNotFound   = errors.New("groups: group not found")
	ErrNameRequired    = errors.New("groups: name is required")
	ErrCreatorRequired = errors.New("groups: creator id required")
	ErrAlreadyMember   = errors.New("groups: already a member")
	ErrNotMember       = errors.New("groups: not a member")
)

const (
	opCreate  = "groups.create"
	opList    = "groups.list"
	opMembers = "groups.members"
	opJoin    = "groups.join"
	opLeave   = "groups.leave"
)

// ServiceConfig describes the dependencies of the group service.
type ServiceConfig struct {
	Tables     records.Tables
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// NewGroup is the input of Create.
type NewGroup struct {
	Name        string
	Description string
	CreatedBy   string
	ImageURL    *string
}

// Member is a membership joined with the member's profile, when it exists.
type Member struct {
	records.GroupMembership
	Profile *records.Profile `json:"profiles"`
}

// Service manages groups.
type Service struct {
	tables records.Tables
	ids    ids.Provider
	clock  func() time.Time
	logger *zap.Logger

	// membershipMu keeps membership checks and the writes they guard together.
	membershipMu sync.Mutex
}

// NewService constructs the group service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Tables.Groups == nil || cfg.Tables.GroupMemberships == nil {
		return nil, fmt.Errorf("groups: group and membership tables required")
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

// Create stores a group and makes its creator the first admin member.
func (s *Service) Create(ctx context.Context, input NewGroup) (records.Group, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return records.Group{}, ErrNameRequired
	}
	creator := strings.TrimSpace(input.CreatedBy)
	if creator == "" {
		return records.Group{}, ErrCreatorRequired
	}

	groupID, err := s.ids.NewID("group")
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return records.Group{}, serviceerr.New(opCreate, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	group := records.Group{
		ID:          groupID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		CreatedBy:   creator,
		MemberCount: 1,
		CreatedAt:   now,
		ImageURL:    input.ImageURL,
	}
	if _, err := s.tables.Groups.Insert(ctx, group); err != nil {
		s.logError(opCreate, "group_insert_failed", err, zap.String("group_id", groupID))
		return records.Group{}, serviceerr.New(opCreate, "group_insert_failed", err)
	}
	membership := records.GroupMembership{
		ID:       MembershipID(groupID, creator),
		GroupID:  groupID,
		UserID:   creator,
		Role:     records.RoleAdmin,
		JoinedAt: now,
	}
	if _, err := s.tables.GroupMemberships.Insert(ctx, membership); err != nil {
		s.logError(opCreate, "membership_insert_failed", err, zap.String("group_id", groupID))
		return records.Group{}, serviceerr.New(opCreate, "membership_insert_failed", err)
	}
	return group, nil
}

// Get returns the group with id.
func (s *Service) Get(ctx context.Context, groupID string) (records.Group, error) {
	group, err := tables.Select[records.Group]().Where(records.GroupID, groupID).Single(ctx, s.tables.Groups)
	if err != nil {
		s.logError(opList, "group_select_failed", err, zap.String("group_id", groupID))
		return records.Group{}, serviceerr.New(opList, "group_select_failed", err)
	}
	if group == nil {
		return records.Group{}, ErrGroupNotFound
	}
	return *group, nil
}

// List returns every group, newest first.
func (s *Service) List(ctx context.Context) ([]records.Group, error) {
	return s.list(ctx, tables.Select[records.Group]().OrderBy(records.GroupCreatedAt, false))
}

// Popular returns the groups with the most members.
func (s *Service) Popular(ctx context.Context, limit int) ([]records.Group, error) {
	if limit <= 0 {
		limit = defaultPopularLimit
	}
	return s.list(ctx, tables.Select[records.Group]().OrderBy(records.GroupMemberCount.Field, false).Limit(limit))
}

// ForMember returns the groups userID belongs to, in membership order.
func (s *Service) ForMember(ctx context.Context, userID string) ([]records.Group, error) {
	memberships, err := tables.Select[records.GroupMembership]().
		Where(records.MembershipUserID, userID).
		Execute(ctx, s.tables.GroupMemberships)
	if err != nil {
		s.logError(opList, "membership_select_failed", err, zap.String("user_id", userID))
		return nil, serviceerr.New(opList, "membership_select_failed", err)
	}
	all, err := s.tables.Groups.ReadAll(ctx)
	if err != nil {
		s.logError(opList, "group_select_failed", err, zap.String("user_id", userID))
		return nil, serviceerr.New(opList, "group_select_failed", err)
	}
	byID := make(map[string]records.Group, len(all))
	for _, group := range all {
		byID[group.ID] = group
	}
	groups := make([]records.Group, 0, len(memberships))
	for _, membership := range memberships {
		if group, ok := byID[membership.GroupID]; ok {
			groups = append(groups, group)
		}
	}
	return groups, nil
}

// Members lists a group's memberships ordered by role, descending, with their profiles.
func (s *Service) Members(ctx context.Context, groupID string) ([]Member, error) {
	memberships, err := tables.Select[records.GroupMembership]().
		Where(records.MembershipGroupID, groupID).
		OrderBy(records.MembershipRoleColumn, false).
		Execute(ctx, s.tables.GroupMemberships)
	if err != nil {
		s.logError(opMembers, "membership_select_failed", err, zap.String("group_id", groupID))
		return nil, serviceerr.New(opMembers, "membership_select_failed", err)
	}
	profiles := map[string]records.Profile{}
	if s.tables.Profiles != nil {
		all, err := s.tables.Profiles.ReadAll(ctx)
		if err != nil {
			s.logError(opMembers, "profile_select_failed", err, zap.String("group_id", groupID))
			return nil, serviceerr.New(opMembers, "profile_select_failed", err)
		}
		for _, profile := range all {
			profiles[profile.ID] = profile
		}
	}
	members := make([]Member, 0, len(memberships))
	for _, membership := range memberships {
		member := Member{GroupMembership: membership}
		if profile, ok := profiles[membership.UserID]; ok {
			member.Profile = &profile
		}
		members = append(members, member)
	}
	return members, nil
}

// IsMember reports whether userID belongs to the group.
func (s *Service) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	membership, err := s.membership(ctx, groupID, userID)
	if err != nil {
		s.logError(opMembers, "membership_select_failed", err, zap.String("group_id", groupID))
		return false, serviceerr.New(opMembers, "membership_select_failed", err)
	}
	return membership != nil, nil
}

// Join adds userID as a member and increments the member count.
func (s *Service) Join(ctx context.Context, groupID, userID string) (records.Group, error) {
	if _, err := s.Get(ctx, groupID); err != nil {
		return records.Group{}, err
	}

	s.membershipMu.Lock()
	defer s.membershipMu.Unlock()

	existing, err := s.membership(ctx, groupID, userID)
	if err != nil {
		return records.Group{}, s.failure(opJoin, "membership_select_failed", err, groupID, userID)
	}
	if existing != nil {
		return records.Group{}, ErrAlreadyMember
	}
	membership := records.GroupMembership{
		ID:       MembershipID(groupID, userID),
		GroupID:  groupID,
		UserID:   userID,
		Role:     records.RoleMember,
		JoinedAt: s.clock().UTC(),
	}
	if _, err := s.tables.GroupMemberships.Insert(ctx, membership); err != nil {
		return records.Group{}, s.failure(opJoin, "membership_insert_failed", err, groupID, userID)
	}
	updated, err := s.tables.Groups.Adjust(ctx, tables.Where(records.GroupID, groupID), records.GroupMemberCount, 1)
	if err != nil || len(updated) == 0 {
		return records.Group{}, s.failure(opJoin, "adjust_failed", err, groupID, userID)
	}
	return updated[0], nil
}

// Leave removes userID's membership and decrements the member count, floored at zero.
func (s *Service) Leave(ctx context.Context, groupID, userID string) (records.Group, error) {
	if _, err := s.Get(ctx, groupID); err != nil {
		return records.Group{}, err
	}

	s.membershipMu.Lock()
	defer s.membershipMu.Unlock()

	removed, err := s.tables.GroupMemberships.Delete(ctx,
		tables.Where(records.MembershipGroupID, groupID).And(records.MembershipUserID, userID))
	if err != nil {
		return records.Group{}, s.failure(opLeave, "membership_delete_failed", err, groupID, userID)
	}
	if removed == 0 {
		return records.Group{}, ErrNotMember
	}
	updated, err := s.tables.Groups.Adjust(ctx, tables.Where(records.GroupID, groupID), records.GroupMemberCount, -removed)
	if err != nil || len(updated) == 0 {
		return records.Group{}, s.failure(opLeave, "adjust_failed", err, groupID, userID)
	}
	return updated[0], nil
}

// MembershipID is the deterministic identifier of userID's membership in groupID.
func MembershipID(groupID, userID string) string {
	return fmt.Sprintf("member-%s-%s", groupID, userID)
}

func (s *Service) membership(ctx context.Context, groupID, userID string) (*records.GroupMembership, error) {
	return tables.Select[records.GroupMembership]().
		Where(records.MembershipGroupID, groupID).
		Where(records.MembershipUserID, userID).
		Single(ctx, s.tables.GroupMemberships)
}

func (s *Service) list(ctx context.Context, query tables.Query[records.Group]) ([]records.Group, error) {
	groups, err := query.Execute(ctx, s.tables.Groups)
	if err != nil {
		s.logError(opList, "group_select_failed", err)
		return nil, serviceerr.New(opList, "group_select_failed", err)
	}
	return groups, nil
}

func (s *Service) failure(operation, reason string, err error, groupID, userID string) error {
	if err == nil {
		err = ErrGroupNotFound
	}
	s.logError(operation, reason, err, zap.String("group_id", groupID), zap.String("user_id", userID))
	return serviceerr.New(operation, reason, err)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	serviceerr.Log(s.logger, "groups service error", operation, reason, err, fields...)
}
