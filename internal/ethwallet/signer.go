// Package ethwallet holds the wallet's externally owned accounts and signs
// transactions with them.
package ethwallet

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is any EOA-like account the wallet exposes.
// SignHash returns a 65-byte R || S || V signature with V in {0,1}.
type Signer interface {
	Address() common.Address
	SignHash(ctx context.Context, digest32 []byte) ([]byte, error)
}

// KeySigner signs with an in-memory secp256k1 key.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func (s *KeySigner) Address() common.Address { return s.addr }

func (s *KeySigner) SignHash(ctx context.Context, digest32 []byte) ([]byte, error) {
	_ = ctx
	if err := EnsureDigest32(digest32); err != nil {
		return nil, err
	}
	return crypto.Sign(digest32, s.key)
}

// SignTx signs tx for chainID with the latest signer rules.
func SignTx(ctx context.Context, s Signer, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("sign tx: chain id is required")
	}
	txSigner := types.LatestSignerForChainID(chainID)
	h := txSigner.Hash(tx)

	sig, err := s.SignHash(ctx, h[:])
	if err != nil {
		return nil, errors.Wrap(err, "sign tx hash")
	}
	signed, err := tx.WithSignature(txSigner, sig)
	if err != nil {
		return nil, errors.Wrap(err, "attach signature")
	}
	return signed, nil
}

func EnsureDigest32(d []byte) error {
	if len(d) != 32 {
		return errors.Newf("digest must be 32 bytes, got %d", len(d))
	}
	return nil
}
