package txbuilder

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var _ Credential = (*KeyCredential)(nil)

// Credential is the capability to sign transactions for one account. It is
// created once at startup and never changes during a run.
type Credential interface {
	Address() ethcmn.Address
	Sign(tx *types.Transaction) (*types.Transaction, error)
}

// KeyCredential signs with an in-memory secp256k1 key.
type KeyCredential struct {
	key     *ecdsa.PrivateKey
	address ethcmn.Address
	signer  types.Signer
}

// NewKeyCredential binds a private key to the chain it will sign for.
func NewKeyCredential(key *ecdsa.PrivateKey, chainID *big.Int) *KeyCredential {
	return &KeyCredential{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(chainID),
	}
}

// KeyCredentialFromHex parses a hex private key, with or without 0x prefix.
func KeyCredentialFromHex(hexKey string, chainID *big.Int) (*KeyCredential, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewKeyCredential(key, chainID), nil
}

// Address is the account derived from the key.
func (c *KeyCredential) Address() ethcmn.Address {
	return c.address
}

// Sign signs tx for the credential's chain.
func (c *KeyCredential) Sign(tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, c.signer, c.key)
}
