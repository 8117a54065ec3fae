// Package filecredentialrepo stores the credential as a sealed blob on
// disk, scoped to the user running the client.
package filecredentialrepo

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/happy-carpenter/carpenter-go/credentials"
)

var _ credentials.Repo = (*FileCredentialRepo)(nil)

const (
	keySize   = 32
	nonceSize = 24
	fileMode  = 0o600
)

// FileCredentialRepo persists the credential as a secretbox-sealed JSON
// blob. The sealing key lives in a sibling 0600 file and is generated on
// first save. Writes go through a temp file and rename so a crash mid-write
// never leaves a half-written pair behind.
type FileCredentialRepo struct {
	lock    sync.Mutex
	path    string
	keyPath string
}

func New(path string) *FileCredentialRepo {
	return &FileCredentialRepo{
		path:    path,
		keyPath: path + ".key",
	}
}

func (r *FileCredentialRepo) Save(credential *credentials.Credential) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	key, err := r.loadOrCreateKey()
	if err != nil {
		return errors.Wrap(err, "[FileCredentialRepo.Save] key")
	}

	plaintext, err := json.Marshal(credential)
	if err != nil {
		return errors.Wrap(err, "[FileCredentialRepo.Save] marshal")
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return errors.Wrap(err, "[FileCredentialRepo.Save] nonce")
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, key)

	return writeFileAtomic(r.path, sealed)
}

func (r *FileCredentialRepo) Load() (*credentials.Credential, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	sealed, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[FileCredentialRepo.Load] read")
	}
	if len(sealed) <= nonceSize {
		return nil, errors.New("[FileCredentialRepo.Load] blob too short")
	}

	key, err := r.loadKey()
	if err != nil {
		return nil, errors.Wrap(err, "[FileCredentialRepo.Load] key")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, errors.New("[FileCredentialRepo.Load] sealed blob failed to open")
	}

	var credential credentials.Credential
	if err := json.Unmarshal(plaintext, &credential); err != nil {
		return nil, errors.Wrap(err, "[FileCredentialRepo.Load] unmarshal")
	}
	return &credential, nil
}

func (r *FileCredentialRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileCredentialRepo.Clear] remove")
	}
	return nil
}

func (r *FileCredentialRepo) loadKey() (*[keySize]byte, error) {
	raw, err := os.ReadFile(r.keyPath)
	if err != nil {
		return nil, err
	}
	if len(raw) != keySize {
		return nil, errors.Errorf("key file is %d bytes, want %d", len(raw), keySize)
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}

func (r *FileCredentialRepo) loadOrCreateKey() (*[keySize]byte, error) {
	key, err := r.loadKey()
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	var created [keySize]byte
	if _, err := rand.Read(created[:]); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(r.keyPath, created[:]); err != nil {
		return nil, err
	}
	return &created, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "writeFileAtomic mkdir")
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "writeFileAtomic create")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "writeFileAtomic write")
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "writeFileAtomic chmod")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "writeFileAtomic close")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "writeFileAtomic rename")
	}
	return nil
}
