package fakebackend

import (
	"context"
	"sync"

	"github.com/happy-carpenter/carpenter-go/credentials"
	"github.com/happy-carpenter/carpenter-go/session"
)

var _ session.Backend = (*FakeBackend)(nil)

// FakeBackend is an in-memory session.Backend for tests. Behaviour is
// programmed through the Fn fields; calls are counted so tests can assert
// on single-flight and best-effort properties.
type FakeBackend struct {
	lock sync.Mutex

	LoginCalls    int
	RegisterCalls int
	RefreshCalls  int
	LogoutCalls   int

	LoginFn    func(ctx context.Context, username, password string) (*credentials.Credential, error)
	RegisterFn func(ctx context.Context, form session.RegistrationForm) (*credentials.Credential, error)
	RefreshFn  func(ctx context.Context, refreshToken string) (*credentials.Credential, error)
	LogoutFn   func(ctx context.Context, refreshToken string) error
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{}
}

func (b *FakeBackend) Login(ctx context.Context, username, password string) (*credentials.Credential, error) {
	b.lock.Lock()
	b.LoginCalls++
	fn := b.LoginFn
	b.lock.Unlock()

	if fn == nil {
		return &credentials.Credential{AccessToken: "access", RefreshToken: "refresh", Username: username}, nil
	}
	return fn(ctx, username, password)
}

func (b *FakeBackend) Register(ctx context.Context, form session.RegistrationForm) (*credentials.Credential, error) {
	b.lock.Lock()
	b.RegisterCalls++
	fn := b.RegisterFn
	b.lock.Unlock()

	if fn == nil {
		return &credentials.Credential{AccessToken: "access", RefreshToken: "refresh", Username: form.Username}, nil
	}
	return fn(ctx, form)
}

func (b *FakeBackend) Refresh(ctx context.Context, refreshToken string) (*credentials.Credential, error) {
	b.lock.Lock()
	b.RefreshCalls++
	fn := b.RefreshFn
	b.lock.Unlock()

	if fn == nil {
		return &credentials.Credential{AccessToken: "refreshed-access"}, nil
	}
	return fn(ctx, refreshToken)
}

func (b *FakeBackend) Logout(ctx context.Context, refreshToken string) error {
	b.lock.Lock()
	b.LogoutCalls++
	fn := b.LogoutFn
	b.lock.Unlock()

	if fn == nil {
		return nil
	}
	return fn(ctx, refreshToken)
}

// Calls returns a snapshot of the call counters.
func (b *FakeBackend) Calls() (login, register, refresh, logout int) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.LoginCalls, b.RegisterCalls, b.RefreshCalls, b.LogoutCalls
}
