// Package auth owns the emulated authentication state: credentials, the persisted session and the
// listeners notified on every transition.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/marinet/internal/ids"
	"github.com/MarcoPoloResearchLab/marinet/internal/kv"
	"github.com/MarcoPoloResearchLab/marinet/internal/records"
	"github.com/MarcoPoloResearchLab/marinet/internal/tables"
	"go.uber.org/zap"
)

const userIDPrefix = "user"

// ManagerConfig describes the dependencies of the auth state machine.
type ManagerConfig struct {
	Tables     records.Tables
	Store      kv.Store
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// UserPatch carries the optional changes accepted by UpdateUser. Nil fields are left untouched.
type UserPatch struct {
	Email     *string
	Password  *string
	Username  *string
	AvatarURL *string
	Bio       *string
}

// Manager is the single owner of the session state and the listener registry.
type Manager struct {
	tables  records.Tables
	store   kv.Store
	ids     ids.Provider
	now     func() time.Time
	logger  *zap.Logger
	subject *Subject

	mu      sync.Mutex
	current *records.Profile

	// credentialsMu keeps the email lookup and the credential write of one call together.
	credentialsMu sync.Mutex
}

// NewManager constructs the auth manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("auth: key-value store required")
	}
	if cfg.Tables.Credentials == nil || cfg.Tables.Profiles == nil {
		return nil, fmt.Errorf("auth: credential and profile tables required")
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
	return &Manager{
		tables:  cfg.Tables,
		store:   cfg.Store,
		ids:     idProvider,
		now:     clock,
		logger:  logger,
		subject: NewSubject(),
	}, nil
}

// SignUp registers a credential and its profile. The session is not changed.
func (m *Manager) SignUp(ctx context.Context, email, password, username string) (records.Profile, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return records.Profile{}, ErrInvalidCredentials
	}
	m.credentialsMu.Lock()
	defer m.credentialsMu.Unlock()

	existing, err := tables.Select[records.Credential]().
		Where(records.CredentialEmail, email).
		Single(ctx, m.tables.Credentials)
	if err != nil {
		return records.Profile{}, m.fail("sign_up", "credential_lookup_failed", err)
	}
	if existing != nil {
		return records.Profile{}, ErrDuplicateCredential
	}

	userID, err := m.ids.NewID(userIDPrefix)
	if err != nil {
		return records.Profile{}, m.fail("sign_up", "id_generation_failed", err)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	profile := records.Profile{
		ID:        userID,
		Username:  username,
		Email:     email,
		CreatedAt: m.now().UTC(),
	}
	if _, err := m.tables.Credentials.Insert(ctx, records.Credential{ID: userID, Email: email, Password: password}); err != nil {
		return records.Profile{}, m.fail("sign_up", "credential_insert_failed", err)
	}
	if _, err := m.tables.Profiles.Insert(ctx, profile); err != nil {
		return records.Profile{}, m.fail("sign_up", "profile_insert_failed", err)
	}
	m.logger.Info("user signed up", zap.String("user_id", userID))
	return profile, nil
}

// SignIn verifies the credential, persists the session and notifies listeners.
func (m *Manager) SignIn(ctx context.Context, email, password string) (records.Profile, error) {
	credential, err := tables.Select[records.Credential]().
		Where(records.CredentialEmail, strings.TrimSpace(email)).
		Single(ctx, m.tables.Credentials)
	if err != nil {
		return records.Profile{}, m.fail("sign_in", "credential_lookup_failed", err)
	}
	if credential == nil {
		return records.Profile{}, ErrUserNotFound
	}
	if subtle.ConstantTimeCompare([]byte(credential.Password), []byte(password)) != 1 {
		return records.Profile{}, ErrInvalidPassword
	}

	profile, err := tables.Select[records.Profile]().
		Where(records.ProfileID, credential.ID).
		Single(ctx, m.tables.Profiles)
	if err != nil {
		return records.Profile{}, m.fail("sign_in", "profile_lookup_failed", err)
	}
	if profile == nil {
		return records.Profile{}, fmt.Errorf("%w: profile %s missing", ErrUserNotFound, credential.ID)
	}

	if err := m.persist(ctx, profile); err != nil {
		return records.Profile{}, m.fail("sign_in", "session_persist_failed", err)
	}
	m.subject.Publish(EventSignedIn, profile)
	return *profile, nil
}

// SignOut clears the session and notifies listeners with no user.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.store.Remove(ctx, records.KeySession); err != nil {
		return m.fail("sign_out", "session_remove_failed", err)
	}
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.subject.Publish(EventSignedOut, nil)
	return nil
}

// Session reads the persisted session. A signed-out state is a nil session.
func (m *Manager) Session(ctx context.Context) (*records.Session, error) {
	raw, found, err := m.store.Get(ctx, records.KeySession)
	if err != nil {
		return nil, m.fail("session", "session_read_failed", err)
	}
	if !found || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var session records.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, m.fail("session", "session_decode_failed", fmt.Errorf("%w: %v", tables.ErrMalformedData, err))
	}
	if session.User == nil {
		return nil, nil
	}
	return &session, nil
}

// User returns the signed-in profile, or nil.
func (m *Manager) User(ctx context.Context) (*records.Profile, error) {
	session, err := m.Session(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	return session.User, nil
}

// OnAuthStateChange registers listener and immediately replays the persisted session to it.
func (m *Manager) OnAuthStateChange(ctx context.Context, listener Listener) (*Subscription, error) {
	user, err := m.User(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.current = user
	m.mu.Unlock()

	subscription := m.subject.Subscribe(listener)
	if listener != nil {
		if user != nil {
			listener(EventSignedIn, cloneProfile(user))
		} else {
			listener(EventSignedOut, nil)
		}
	}
	return subscription, nil
}

// UpdateUser merges patch into the signed-in user's credential and profile.
func (m *Manager) UpdateUser(ctx context.Context, patch UserPatch) (records.Profile, error) {
	current, err := m.currentUser(ctx)
	if err != nil {
		return records.Profile{}, err
	}
	if current == nil {
		return records.Profile{}, ErrNoActiveSession
	}

	if patch.Email != nil || patch.Password != nil {
		if err := m.updateCredential(ctx, current.ID, patch); err != nil {
			return records.Profile{}, err
		}
	}

	updated, err := m.tables.Profiles.Update(ctx, tables.Where(records.ProfileID, current.ID), func(profile *records.Profile) {
		if patch.Email != nil {
			profile.Email = strings.TrimSpace(*patch.Email)
		}
		if patch.Username != nil {
			profile.Username = strings.TrimSpace(*patch.Username)
		}
		if patch.AvatarURL != nil {
			profile.AvatarURL = strings.TrimSpace(*patch.AvatarURL)
		}
		if patch.Bio != nil {
			profile.Bio = *patch.Bio
		}
	})
	if err != nil {
		return records.Profile{}, m.fail("update_user", "profile_update_failed", err)
	}
	if len(updated) == 0 {
		return records.Profile{}, fmt.Errorf("%w: profile %s missing", ErrUserNotFound, current.ID)
	}
	profile := updated[0]
	if err := m.persist(ctx, &profile); err != nil {
		return records.Profile{}, m.fail("update_user", "session_persist_failed", err)
	}
	m.subject.Publish(EventUserUpdated, &profile)
	return profile, nil
}

// Close tears down the listener registry. Later transitions notify nobody.
func (m *Manager) Close() {
	m.subject.Close()
}

func (m *Manager) updateCredential(ctx context.Context, userID string, patch UserPatch) error {
	m.credentialsMu.Lock()
	defer m.credentialsMu.Unlock()

	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		if email == "" {
			return ErrInvalidCredentials
		}
		owner, err := tables.Select[records.Credential]().
			Where(records.CredentialEmail, email).
			Single(ctx, m.tables.Credentials)
		if err != nil {
			return m.fail("update_user", "credential_lookup_failed", err)
		}
		if owner != nil && owner.ID != userID {
			return ErrDuplicateCredential
		}
	}
	if patch.Password != nil && *patch.Password == "" {
		return ErrInvalidCredentials
	}
	_, err := m.tables.Credentials.Update(ctx, tables.Where(records.CredentialID, userID), func(credential *records.Credential) {
		if patch.Email != nil {
			credential.Email = strings.TrimSpace(*patch.Email)
		}
		if patch.Password != nil {
			credential.Password = *patch.Password
		}
	})
	if err != nil {
		return m.fail("update_user", "credential_update_failed", err)
	}
	return nil
}

func (m *Manager) currentUser(ctx context.Context) (*records.Profile, error) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	if current != nil {
		return cloneProfile(current), nil
	}
	return m.User(ctx)
}

func (m *Manager) persist(ctx context.Context, profile *records.Profile) error {
	encoded, err := json.Marshal(records.Session{User: profile})
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, records.KeySession, string(encoded)); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = cloneProfile(profile)
	m.mu.Unlock()
	return nil
}

func (m *Manager) fail(operation, reason string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	m.logger.Error("auth operation failed",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err))
	return fmt.Errorf("auth: %s: %s: %w", operation, reason, err)
}
