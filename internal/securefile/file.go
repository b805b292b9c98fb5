// Package securefile reads and writes JSON state files for the client.
// Plain files are written atomically; secret files are sealed with an
// Argon2id-derived key and XChaCha20-Poly1305.
package securefile

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/jingrm/jing-token-client/internal/constants"
)

// ErrInvalidPasswordOrCorrupt is returned when decryption fails.
var ErrInvalidPasswordOrCorrupt = errors.New("invalid password or corrupted file")

// Envelope is the on-disk form of a sealed file.
type Envelope struct {
	Version int `json:"version"`

	ArgonTime    uint32 `json:"argon_time"`
	ArgonMemory  uint32 `json:"argon_memory_kib"`
	ArgonThreads uint8  `json:"argon_threads"`
	ArgonKeyLen  uint32 `json:"argon_key_len"`

	SaltB64  string `json:"salt_b64"`
	NonceB64 string `json:"nonce_b64"`
	CTB64    string `json:"ct_b64"`
}

// DefaultKDF are the Argon2id settings used for new files.
var DefaultKDF = Envelope{
	Version:      1,
	ArgonTime:    2,
	ArgonMemory:  64 * 1024,
	ArgonThreads: 1,
	ArgonKeyLen:  32,
}

type Options struct {
	KDF           Envelope
	FilePerm      os.FileMode
	DirectoryPerm os.FileMode

	// AADFunc must return identical bytes on read and write.
	AADFunc func(path string) []byte
}

func mergeOptions(opt ...Options) Options {
	o := Options{
		KDF:           DefaultKDF,
		FilePerm:      constants.FilePerm,
		DirectoryPerm: constants.DirectoryPerm,
	}
	if len(opt) == 0 {
		return o
	}
	in := opt[0]
	if in.KDF.Version != 0 {
		o.KDF = in.KDF
	}
	if in.FilePerm != 0 {
		o.FilePerm = in.FilePerm
	}
	if in.DirectoryPerm != 0 {
		o.DirectoryPerm = in.DirectoryPerm
	}
	if in.AADFunc != nil {
		o.AADFunc = in.AADFunc
	}
	return o
}

// WriteEncryptedJSON marshals v, seals it with password and writes it atomically.
func WriteEncryptedJSON[T any](path string, v T, password []byte, opt ...Options) error {
	o := mergeOptions(opt...)
	if o.KDF.Version != 1 {
		return errors.Newf("unsupported kdf version: %d", o.KDF.Version)
	}

	plain, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal json")
	}
	defer zeroBytes(plain)

	env, err := seal(o.KDF, password, plain, o.aad(path))
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	if err := os.MkdirAll(filepath.Dir(path), o.DirectoryPerm); err != nil {
		return errors.Wrapf(err, "mkdir %s", filepath.Dir(path))
	}
	return AtomicWriteFile(path, b, o.FilePerm)
}

// ReadEncryptedJSON opens a file written by WriteEncryptedJSON.
// A missing file is reported with an error matching os.ErrNotExist.
func ReadEncryptedJSON[T any](path string, password []byte, opt ...Options) (T, error) {
	var out T
	o := mergeOptions(opt...)

	env, err := ReadJSON[Envelope](path)
	if err != nil {
		return out, err
	}
	plain, err := open(env, password, o.aad(path))
	if err != nil {
		return out, err
	}
	defer zeroBytes(plain)

	if err := json.Unmarshal(plain, &out); err != nil {
		var zero T
		return zero, errors.Wrap(err, "unmarshal json")
	}
	return out, nil
}

func (o Options) aad(path string) []byte {
	if o.AADFunc == nil {
		return nil
	}
	return o.AADFunc(path)
}

// key derives the AEAD for this envelope's Argon2id parameters.
func (e Envelope) key(password, salt []byte) (cipher.AEAD, error) {
	k := argon2.IDKey(password, salt, e.ArgonTime, e.ArgonMemory, e.ArgonThreads, e.ArgonKeyLen)
	defer zeroBytes(k)
	aead, err := chacha20poly1305.NewX(k)
	if err != nil {
		return nil, errors.Wrap(err, "aead")
	}
	return aead, nil
}

func seal(kdf Envelope, password, plain, aad []byte) (Envelope, error) {
	salt := make([]byte, 16)
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(salt); err != nil {
		return Envelope{}, errors.Wrap(err, "rand salt")
	}
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, errors.Wrap(err, "rand nonce")
	}
	aead, err := kdf.key(password, salt)
	if err != nil {
		return Envelope{}, err
	}

	enc := base64.StdEncoding
	env := kdf
	env.SaltB64 = enc.EncodeToString(salt)
	env.NonceB64 = enc.EncodeToString(nonce)
	env.CTB64 = enc.EncodeToString(aead.Seal(nil, nonce, plain, aad))
	return env, nil
}

func open(env Envelope, password, aad []byte) ([]byte, error) {
	if env.Version != 1 {
		return nil, errors.Newf("unsupported file version: %d", env.Version)
	}
	var salt, nonce, ct []byte
	for _, f := range []struct {
		name string
		in   string
		out  *[]byte
	}{
		{"salt", env.SaltB64, &salt},
		{"nonce", env.NonceB64, &nonce},
		{"ciphertext", env.CTB64, &ct},
	} {
		b, err := base64.StdEncoding.DecodeString(f.in)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", f.name)
		}
		*f.out = b
	}

	aead, err := env.key(password, salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ErrInvalidPasswordOrCorrupt
	}
	plain, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrInvalidPasswordOrCorrupt
	}
	return plain, nil
}

// WriteJSON marshals v as pretty JSON and writes it atomically to path.
func WriteJSON[T any](path string, v T) error {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirectoryPerm); err != nil {
		return errors.Wrapf(err, "mkdir %s", filepath.Dir(path))
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal json")
	}
	return AtomicWriteFile(path, b, constants.FilePerm)
}

// ReadJSON reads and unmarshals JSON from path into T.
func ReadJSON[T any](path string) (T, error) {
	var zero T
	b, err := os.ReadFile(path)
	if err != nil {
		return zero, errors.Wrap(err, "read file")
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, errors.Wrap(err, "unmarshal json")
	}
	return out, nil
}

// AtomicWriteFile writes data to a sibling tmp file and renames it over path.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	if err := os.WriteFile(tmp, data, perm); err != nil {
		return errors.Wrap(err, "write tmp")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "rename")
	}
	return nil
}

// Exists reports whether path can be stat'ed.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ConfigPathCandidates returns state file paths to try, in priority order.
// JING_ENV optionally adds a local/ or develop/ subfolder.
func ConfigPathCandidates(app, filename string) ([]string, error) {
	envFolder, err := EnvFolder()
	if err != nil {
		return nil, err
	}
	if app == "" {
		return nil, errors.New("app must not be empty")
	}
	if filename == "" {
		return nil, errors.New("filename must not be empty")
	}

	var paths []string
	seen := map[string]bool{}
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}
	withEnv := func(dir string) string {
		if envFolder != "" {
			dir = filepath.Join(dir, envFolder)
		}
		return filepath.Join(dir, filename)
	}

	if realHome := os.Getenv("SNAP_REAL_HOME"); realHome != "" {
		add(withEnv(filepath.Join(realHome, ".config", app)))
	}
	if home := os.Getenv("HOME"); home != "" {
		add(withEnv(filepath.Join(home, ".config", app)))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		add(withEnv(filepath.Join(dir, app)))
	} else if len(paths) == 0 {
		return nil, errors.Wrap(err, "UserConfigDir")
	}
	return paths, nil
}

// ResolvePath picks the first existing candidate, else the first candidate.
func ResolvePath(app, filename string) (string, error) {
	cands, err := ConfigPathCandidates(app, filename)
	if err != nil {
		return "", err
	}
	if len(cands) == 0 {
		return "", errors.New("no config path candidates returned")
	}
	for _, p := range cands {
		if Exists(p) {
			return p, nil
		}
	}
	return cands[0], nil
}

func EnvFolder() (string, error) {
	raw := strings.TrimSpace(os.Getenv(constants.EnvFolderVarName))
	switch strings.ToLower(raw) {
	case "", "prod", "production":
		return "", nil
	case "local":
		return "local", nil
	case "dev", "develop", "development":
		return "develop", nil
	default:
		return "", errors.Newf("invalid %s %q (allowed: local, develop, empty)", constants.EnvFolderVarName, raw)
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
