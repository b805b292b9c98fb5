package securefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type secret struct {
	Key string `json:"key"`
}

// cheap KDF so the tests stay fast
var testOpts = Options{
	KDF: Envelope{Version: 1, ArgonTime: 1, ArgonMemory: 1024, ArgonThreads: 1, ArgonKeyLen: 32},
	AADFunc: func(string) []byte {
		return []byte("test:v1")
	},
}

func TestEncryptedJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wallet.json")

	require.NoError(t, WriteEncryptedJSON(path, secret{Key: "abc"}, []byte("password1"), testOpts))

	got, err := ReadEncryptedJSON[secret](path, []byte("password1"), testOpts)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.Key)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEncryptedJSON_WrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, WriteEncryptedJSON(path, secret{Key: "abc"}, []byte("password1"), testOpts))

	_, err := ReadEncryptedJSON[secret](path, []byte("password2"), testOpts)
	assert.ErrorIs(t, err, ErrInvalidPasswordOrCorrupt)
}

func TestEncryptedJSON_MissingFile(t *testing.T) {
	_, err := ReadEncryptedJSON[secret](filepath.Join(t.TempDir(), "nope.json"), []byte("x"), testOpts)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWriteJSON_Atomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.json")
	require.NoError(t, WriteJSON(path, map[string]int{"a": 1}))

	out, err := ReadJSON[map[string]int](path)
	require.NoError(t, err)
	assert.Equal(t, 1, out["a"])

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestConfigPathCandidates_EnvFolder(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SNAP_REAL_HOME", "")
	t.Setenv("JING_ENV", "local")

	paths, err := ConfigPathCandidates("app", "file.json")
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	assert.Equal(t, filepath.Join(home, ".config", "app", "local", "file.json"), paths[0])
}

func TestConfigPathCandidates_InvalidEnv(t *testing.T) {
	t.Setenv("JING_ENV", "staging")
	_, err := ConfigPathCandidates("app", "file.json")
	assert.Error(t, err)
}
