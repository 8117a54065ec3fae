package filecredentialrepo_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/happy-carpenter/carpenter-go/credentials"
	filecredentialrepo "github.com/happy-carpenter/carpenter-go/credentials/filerepo"
)

func testCredential() *credentials.Credential {
	return &credentials.Credential{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		SubjectID:    "7",
		Username:     "john",
	}
}

func TestFileCredentialRepo(t *testing.T) {
	t.Run("load before any save returns nil", func(t *testing.T) {
		repo := filecredentialrepo.New(filepath.Join(t.TempDir(), "creds.bin"))

		loaded, err := repo.Load()
		require.NoError(t, err)
		require.Nil(t, loaded)
	})

	t.Run("save then load round-trips", func(t *testing.T) {
		repo := filecredentialrepo.New(filepath.Join(t.TempDir(), "creds.bin"))

		require.NoError(t, repo.Save(testCredential()))

		loaded, err := repo.Load()
		require.NoError(t, err)
		require.Equal(t, testCredential(), loaded)
	})

	t.Run("save overwrites wholesale", func(t *testing.T) {
		repo := filecredentialrepo.New(filepath.Join(t.TempDir(), "creds.bin"))
		require.NoError(t, repo.Save(testCredential()))

		replacement := testCredential()
		replacement.AccessToken = "rotated-access"
		replacement.RefreshToken = "rotated-refresh"
		require.NoError(t, repo.Save(replacement))

		loaded, err := repo.Load()
		require.NoError(t, err)
		require.Equal(t, replacement, loaded)
	})

	t.Run("clear removes the credential", func(t *testing.T) {
		repo := filecredentialrepo.New(filepath.Join(t.TempDir(), "creds.bin"))
		require.NoError(t, repo.Save(testCredential()))

		require.NoError(t, repo.Clear())

		loaded, err := repo.Load()
		require.NoError(t, err)
		require.Nil(t, loaded)
	})

	t.Run("clear when nothing stored is fine", func(t *testing.T) {
		repo := filecredentialrepo.New(filepath.Join(t.TempDir(), "creds.bin"))
		require.NoError(t, repo.Clear())
	})

	t.Run("blob on disk is sealed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "creds.bin")
		repo := filecredentialrepo.New(path)
		require.NoError(t, repo.Save(testCredential()))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NotContains(t, string(raw), "access-token")
		require.NotContains(t, string(raw), "refresh-token")
	})
}
