package ethwallet

import (
	"crypto/ecdsa"
	"crypto/rand"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/jingrm/jing-token-client/internal/constants"
	"github.com/jingrm/jing-token-client/internal/securefile"
)

// Account is one stored key.
type Account struct {
	AddressHex string `json:"address"`
	PrivKeyHex string `json:"priv_key_hex"`
	CreatedAt  string `json:"created_at,omitempty"` // RFC3339
}

// Keyring is the decrypted content of wallet.json.
type Keyring struct {
	Version  int       `json:"version"`
	Accounts []Account `json:"accounts"`
}

func (k *Keyring) Addresses() []common.Address {
	out := make([]common.Address, 0, len(k.Accounts))
	for _, a := range k.Accounts {
		out = append(out, common.HexToAddress(a.AddressHex))
	}
	return out
}

// Signers decodes every stored key.
func (k *Keyring) Signers() ([]Signer, error) {
	out := make([]Signer, 0, len(k.Accounts))
	for i, a := range k.Accounts {
		key, err := a.privateKey()
		if err != nil {
			return nil, errors.Wrapf(err, "account %d", i)
		}
		s := NewKeySigner(key)
		if s.Address() != common.HexToAddress(a.AddressHex) {
			return nil, errors.Newf("account %d: stored address does not match key", i)
		}
		out = append(out, s)
	}
	return out, nil
}

func (a Account) privateKey() (*ecdsa.PrivateKey, error) {
	b, err := hexutil.Decode(a.PrivKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "decode private key")
	}
	if len(b) != 32 {
		return nil, errors.Newf("invalid private key length: got %d want 32", len(b))
	}
	k, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, errors.Wrap(err, "to ecdsa")
	}
	return k, nil
}

func NewRandomAccount() (Account, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return Account{}, errors.Wrap(err, "generate key")
	}
	return accountFromKey(key), nil
}

func accountFromKey(key *ecdsa.PrivateKey) Account {
	return Account{
		AddressHex: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivKeyHex: hexutil.Encode(crypto.FromECDSA(key)),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}

// Store reads and writes the encrypted keyring file.
type Store struct {
	Path string
	Opt  securefile.Options
}

// NewStore sets up a keyring store at the canonical config path.
func NewStore() (*Store, error) {
	path, err := securefile.ResolvePath(constants.AppName, constants.WalletFile)
	if err != nil {
		return nil, err
	}
	return NewStoreAt(path), nil
}

func NewStoreAt(path string) *Store {
	return &Store{
		Path: path,
		Opt: securefile.Options{
			// must be identical for read and write
			AADFunc: func(_ string) []byte { return []byte(constants.AADConstant) },
		},
	}
}

func (s *Store) Exists() bool { return securefile.Exists(s.Path) }

func (s *Store) Load(password []byte) (*Keyring, error) {
	k, err := securefile.ReadEncryptedJSON[Keyring](s.Path, password, s.Opt)
	if err != nil {
		return nil, errors.Wrapf(err, "load wallet %s", s.Path)
	}
	return &k, nil
}

// Ensure loads the keyring or creates one with a single fresh account.
func (s *Store) Ensure(password []byte) (*Keyring, error) {
	k, err := s.Load(password)
	if err == nil {
		return k, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	acct, err := NewRandomAccount()
	if err != nil {
		return nil, err
	}
	nk := &Keyring{Version: 1, Accounts: []Account{acct}}
	if err := securefile.WriteEncryptedJSON(s.Path, *nk, password, s.Opt); err != nil {
		return nil, err
	}
	return nk, nil
}

// AddAccount appends a fresh account and rewrites the file.
func (s *Store) AddAccount(password []byte) (*Keyring, Account, error) {
	k, err := s.Load(password)
	if err != nil {
		return nil, Account{}, err
	}
	acct, err := NewRandomAccount()
	if err != nil {
		return nil, Account{}, err
	}
	k.Accounts = append(k.Accounts, acct)
	if err := securefile.WriteEncryptedJSON(s.Path, *k, password, s.Opt); err != nil {
		return nil, Account{}, err
	}
	return k, acct, nil
}

// Import stores an existing hex private key.
func (s *Store) Import(password []byte, privKeyHex string) (*Keyring, Account, error) {
	key, err := crypto.HexToECDSA(trim0x(privKeyHex))
	if err != nil {
		return nil, Account{}, errors.Wrap(err, "parse private key")
	}
	acct := accountFromKey(key)

	k, err := s.Load(password)
	if errors.Is(err, os.ErrNotExist) {
		k, err = &Keyring{Version: 1}, nil
	}
	if err != nil {
		return nil, Account{}, err
	}
	for _, a := range k.Accounts {
		if common.HexToAddress(a.AddressHex) == common.HexToAddress(acct.AddressHex) {
			return k, a, nil
		}
	}
	k.Accounts = append(k.Accounts, acct)
	if err := securefile.WriteEncryptedJSON(s.Path, *k, password, s.Opt); err != nil {
		return nil, Account{}, err
	}
	return k, acct, nil
}

func trim0x(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
