package ethwallet

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingrm/jing-token-client/internal/securefile"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := NewStoreAt(filepath.Join(t.TempDir(), "wallet.json"))
	s.Opt.KDF = securefile.Envelope{Version: 1, ArgonTime: 1, ArgonMemory: 1024, ArgonThreads: 1, ArgonKeyLen: 32}
	return s
}

func TestStore_EnsureCreatesThenLoads(t *testing.T) {
	s := testStore(t)
	pw := []byte("correct horse")

	k1, err := s.Ensure(pw)
	require.NoError(t, err)
	require.Len(t, k1.Accounts, 1)

	k2, err := s.Ensure(pw)
	require.NoError(t, err)
	assert.Equal(t, k1.Accounts[0].AddressHex, k2.Accounts[0].AddressHex)

	_, err = s.Ensure([]byte("wrong"))
	assert.ErrorIs(t, err, securefile.ErrInvalidPasswordOrCorrupt)
}

func TestStore_AddAndImport(t *testing.T) {
	s := testStore(t)
	pw := []byte("pw")

	_, err := s.Ensure(pw)
	require.NoError(t, err)
	k, acct, err := s.AddAccount(pw)
	require.NoError(t, err)
	assert.Len(t, k.Accounts, 2)
	assert.Equal(t, acct.AddressHex, k.Addresses()[1].Hex())

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := common.Bytes2Hex(crypto.FromECDSA(key))

	k, imported, err := s.Import(pw, "0x"+hexKey)
	require.NoError(t, err)
	assert.Len(t, k.Accounts, 3)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), imported.AddressHex)

	// importing twice is a no-op
	k, _, err = s.Import(pw, hexKey)
	require.NoError(t, err)
	assert.Len(t, k.Accounts, 3)

	signers, err := k.Signers()
	require.NoError(t, err)
	assert.Len(t, signers, 3)
}

func TestSignTx_RecoversSender(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewKeySigner(key)

	to := common.HexToAddress("0x15c12f6854c88175d2cd1448ffcf668be61cf4aa")
	chainID := big.NewInt(1)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(10),
	})

	signed, err := SignTx(context.Background(), signer, tx, chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)

	_, err = SignTx(context.Background(), signer, tx, nil)
	assert.Error(t, err)
}

func TestSignHash_RejectsShortDigest(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = NewKeySigner(key).SignHash(context.Background(), []byte{1, 2, 3})
	assert.Error(t, err)
}
