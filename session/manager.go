// Package session owns the credential lifecycle: initialization from
// persisted storage, login, single-flight refresh, and logout. The manager
// holds the only mutable copy of the credential; every other component
// reads it through here.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/happy-carpenter/carpenter-go/apierror"
	"github.com/happy-carpenter/carpenter-go/credentials"
)

// State is the manager's position in the session lifecycle.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateInitializing    State = "initializing"
	StateAuthenticated   State = "authenticated"
	StateRefreshing      State = "refreshing"
)

// RegistrationForm carries the fields the registration endpoint expects.
// Validation happens server-side; field errors come back verbatim.
type RegistrationForm struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
	UserType  string `json:"user_type"`
}

// Backend is the remote auth API the manager drives. The concrete
// implementation lives in the gateway package; tests use backendfake.
//
// Refresh returns the replacement credential. A backend that does not
// rotate refresh tokens may leave RefreshToken empty; the manager keeps
// the previous one in that case.
type Backend interface {
	Login(ctx context.Context, username, password string) (*credentials.Credential, error)
	Register(ctx context.Context, form RegistrationForm) (*credentials.Credential, error)
	Refresh(ctx context.Context, refreshToken string) (*credentials.Credential, error)
	Logout(ctx context.Context, refreshToken string) error
}

// Manager implements the session state machine.
type Manager struct {
	repo    credentials.Repo
	backend Backend
	nowTime func() time.Time

	lock       sync.RWMutex
	credential *credentials.Credential
	state      State

	group    singleflight.Group
	initOnce sync.Once
	initErr  error
}

// ManagerOption modifies a Manager at construction time.
type ManagerOption func(*Manager)

// WithNowTime sets the clock (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// NewManager wires the state machine to its credential repo and auth
// backend. Both are required.
func NewManager(repo credentials.Repo, backend Backend, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[NewManager] credentials repo is required")
	}
	if backend == nil {
		return nil, errors.New("[NewManager] auth backend is required")
	}

	m := &Manager{
		repo:    repo,
		backend: backend,
		nowTime: time.Now,
		state:   StateUnauthenticated,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Initialize restores a persisted session, refreshing the credential when
// it is expired or its expiry is unknown. It runs the underlying work once
// per Manager lifetime; every caller, concurrent or later, observes the
// first run's outcome.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.initErr = m.initialize(ctx)
	})
	return m.initErr
}

func (m *Manager) initialize(ctx context.Context) error {
	m.setState(StateInitializing)

	stored, err := m.repo.Load()
	if err != nil {
		// Unavailable storage is treated as "no session".
		log.Debug().Err(err).Msg("session: credential load failed, starting unauthenticated")
		m.setState(StateUnauthenticated)
		return nil
	}
	if stored == nil {
		m.setState(StateUnauthenticated)
		return nil
	}

	if !stored.Expired(m.nowTime()) {
		m.setCredential(stored)
		m.setState(StateAuthenticated)
		return nil
	}

	// Expired or unknown expiry: one refresh attempt decides the session.
	m.setCredential(stored)
	if _, err := m.Refresh(ctx); err != nil {
		return errors.Wrap(err, "[Manager.Initialize] refresh")
	}
	return nil
}

// Login authenticates against the remote endpoint and, on success, makes
// the returned credential current and persists it.
func (m *Manager) Login(ctx context.Context, username, password string) (*credentials.Credential, error) {
	credential, err := m.backend.Login(ctx, username, password)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Login] backend")
	}
	m.adopt(credential)
	log.Info().Str("username", credential.Username).Msg("session: login succeeded")
	return credential, nil
}

// Register creates an account. The original flow stores the returned
// credential straight away, so a successful registration also logs in.
func (m *Manager) Register(ctx context.Context, form RegistrationForm) (*credentials.Credential, error) {
	credential, err := m.backend.Register(ctx, form)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Register] backend")
	}
	m.adopt(credential)
	return credential, nil
}

// Refresh exchanges the refresh token for a new access token. It is
// single-flight: while one network refresh is outstanding, every other
// caller waits for and shares its result instead of issuing another.
// A failed refresh tears the session down and returns SessionExpired.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	token, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	current := m.CurrentCredential()
	if current == nil || current.RefreshToken == "" {
		m.teardown()
		return "", apierror.New(apierror.SessionExpired, "no refresh token")
	}

	m.setState(StateRefreshing)
	log.Debug().Msg("session: refreshing credential")

	replacement, err := m.backend.Refresh(ctx, current.RefreshToken)
	if err != nil {
		m.teardown()
		return "", apierror.Wrap(apierror.SessionExpired, err, "refresh rejected")
	}

	// Carry forward anything the refresh response does not rotate.
	if replacement.RefreshToken == "" {
		replacement.RefreshToken = current.RefreshToken
	}
	if replacement.SubjectID == "" {
		replacement.SubjectID = current.SubjectID
	}
	if replacement.Username == "" {
		replacement.Username = current.Username
	}

	m.adopt(replacement)
	return replacement.AccessToken, nil
}

// Logout invalidates the session remotely on a best-effort basis, then
// unconditionally clears local state.
func (m *Manager) Logout(ctx context.Context) {
	current := m.CurrentCredential()
	if current != nil {
		if err := m.backend.Logout(ctx, current.RefreshToken); err != nil {
			log.Warn().Err(err).Msg("session: remote logout failed, clearing local session anyway")
		}
	}
	m.teardown()
	log.Info().Msg("session: logged out")
}

// CurrentCredential returns the in-memory credential, or nil when
// unauthenticated. The returned copy is the caller's to keep.
func (m *Manager) CurrentCredential() *credentials.Credential {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.credential == nil {
		return nil
	}
	copied := *m.credential
	return &copied
}

// State returns the manager's current lifecycle state.
func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}

// adopt makes the credential current in memory and in the repo.
func (m *Manager) adopt(credential *credentials.Credential) {
	credential.DeriveExpiry()
	m.setCredential(credential)
	m.setState(StateAuthenticated)
	if err := m.repo.Save(credential); err != nil {
		log.Warn().Err(err).Msg("session: credential persist failed, session is memory-only")
	}
}

func (m *Manager) teardown() {
	m.lock.Lock()
	m.credential = nil
	m.state = StateUnauthenticated
	m.lock.Unlock()
	if err := m.repo.Clear(); err != nil {
		log.Warn().Err(err).Msg("session: credential clear failed")
	}
}

func (m *Manager) setCredential(credential *credentials.Credential) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.credential = credential
}

func (m *Manager) setState(state State) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.state = state
}
