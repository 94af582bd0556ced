// Package users serves profile lookups, search and edits.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/marinet/internal/auth"
	"github.com/MarcoPoloResearchLab/marinet/internal/records"
	"github.com/MarcoPoloResearchLab/marinet/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/marinet/internal/tables"
	"go.uber.org/zap"
)

const defaultSearchLimit = 5

var (
	// ErrProfileNotFound indicates no profile has the requested id.
	ErrProfileNotFound = errors.New("users: profile not found")
	// ErrUsernameRequired indicates an update tried to blank the username.
	ErrUsernameRequired = errors.New("users: username is required")
)

const (
	opGet    = "users.get"
	opSearch = "users.search"
	opUpdate = "users.update_profile"
)

// ServiceConfig describes the dependencies of the profile service.
type ServiceConfig struct {
	Profiles *tables.Table[records.Profile]
	Auth     *auth.Manager
	Logger   *zap.Logger
}

// Service manages profiles.
type Service struct {
	profiles *tables.Table[records.Profile]
	auth     *auth.Manager
	logger   *zap.Logger
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Profiles == nil {
		return nil, fmt.Errorf("users: profile table required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{profiles: cfg.Profiles, auth: cfg.Auth, logger: logger}, nil
}

// Get returns the profile with id.
func (s *Service) Get(ctx context.Context, id string) (records.Profile, error) {
	profile, err := tables.Select[records.Profile]().
		Where(records.ProfileID, normalize(id)).
		Single(ctx, s.profiles)
	if err != nil {
		s.logError(opGet, "profile_select_failed", err, zap.String("user_id", id))
		return records.Profile{}, serviceerr.New(opGet, "profile_select_failed", err)
	}
	if profile == nil {
		return records.Profile{}, ErrProfileNotFound
	}
	return *profile, nil
}

// Search returns profiles whose username contains term, case-insensitively. A blank term
// matches nothing.
func (s *Service) Search(ctx context.Context, term string, limit int) ([]records.Profile, error) {
	term = normalize(term)
	if term == "" {
		return []records.Profile{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	profiles, err := tables.Select[records.Profile]().
		ILike(records.ProfileUsername, "%"+term+"%").
		Limit(limit).
		Execute(ctx, s.profiles)
	if err != nil {
		s.logError(opSearch, "profile_select_failed", err, zap.String("term", term))
		return nil, serviceerr.New(opSearch, "profile_select_failed", err)
	}
	return profiles, nil
}

// UpdateProfile applies update to the profile of userID. When userID is the signed-in user the
// change goes through the auth manager so the session and its listeners see it.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (records.Profile, error) {
	userID = normalize(userID)
	if update.Username != nil && normalize(*update.Username) == "" {
		return records.Profile{}, ErrUsernameRequired
	}
	if update.empty() {
		return s.Get(ctx, userID)
	}

	if s.auth != nil {
		current, err := s.auth.User(ctx)
		if err != nil {
			s.logError(opUpdate, "session_read_failed", err, zap.String("user_id", userID))
			return records.Profile{}, serviceerr.New(opUpdate, "session_read_failed", err)
		}
		if current != nil && current.ID == userID {
			profile, err := s.auth.UpdateUser(ctx, auth.UserPatch{
				Username:  update.Username,
				AvatarURL: update.AvatarURL,
				Bio:       update.Bio,
			})
			if err != nil {
				return records.Profile{}, serviceerr.New(opUpdate, "auth_update_failed", err)
			}
			return profile, nil
		}
	}

	updated, err := s.profiles.Update(ctx, tables.Where(records.ProfileID, userID), func(profile *records.Profile) {
		if update.Username != nil {
			profile.Username = normalize(*update.Username)
		}
		if update.AvatarURL != nil {
			profile.AvatarURL = normalize(*update.AvatarURL)
		}
		if update.Bio != nil {
			profile.Bio = *update.Bio
		}
	})
	if err != nil {
		s.logError(opUpdate, "profile_update_failed", err, zap.String("user_id", userID))
		return records.Profile{}, serviceerr.New(opUpdate, "profile_update_failed", err)
	}
	if len(updated) == 0 {
		return records.Profile{}, ErrProfileNotFound
	}
	return updated[0], nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	serviceerr.Log(s.logger, "users service error", operation, reason, err, fields...)
}
