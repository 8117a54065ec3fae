package fakecredentialrepo

import (
	"sync"

	"github.com/happy-carpenter/carpenter-go/credentials"
)

var _ credentials.Repo = (*FakeCredentialRepo)(nil)

// FakeCredentialRepo is an in-memory credentials.Repo for tests. It counts
// operations so tests can assert on persistence behaviour, and can be made
// to fail to simulate unavailable storage.
type FakeCredentialRepo struct {
	lock       sync.Mutex
	credential *credentials.Credential
	SaveCalls  int
	ClearCalls int
	FailSave   error
	FailLoad   error
}

func NewFakeCredentialRepo() *FakeCredentialRepo {
	return &FakeCredentialRepo{}
}

func (r *FakeCredentialRepo) Save(credential *credentials.Credential) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.SaveCalls++
	if r.FailSave != nil {
		return r.FailSave
	}
	copied := *credential
	r.credential = &copied
	return nil
}

func (r *FakeCredentialRepo) Load() (*credentials.Credential, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.FailLoad != nil {
		return nil, r.FailLoad
	}
	if r.credential == nil {
		return nil, nil
	}
	copied := *r.credential
	return &copied, nil
}

func (r *FakeCredentialRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.ClearCalls++
	r.credential = nil
	return nil
}

// Stored returns the persisted credential without counting as a Load.
func (r *FakeCredentialRepo) Stored() *credentials.Credential {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.credential
}
