// Package txbuilder turns transfer descriptions into signed transactions,
// one at a time or as nonce-contiguous batches.
package txbuilder

import (
	"math/big"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const DefaultGasLimit uint64 = 21000

var defaultGasPrice = big.NewInt(1_000_000_000)

// Transfer is the call description every transaction of a run is built from.
type Transfer struct {
	To     string
	Amount *big.Int
}

// Builder signs value transfers with a fixed gas limit and price.
type Builder struct {
	cred     Credential
	gasLimit uint64
	gasPrice *big.Int
}

// NewBuilder returns a builder signing with cred. A zero gas limit or nil gas
// price falls back to the defaults.
func NewBuilder(cred Credential, gasLimit uint64, gasPrice *big.Int) *Builder {
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	if gasPrice == nil || gasPrice.Sign() <= 0 {
		gasPrice = defaultGasPrice
	}
	return &Builder{
		cred:     cred,
		gasLimit: gasLimit,
		gasPrice: new(big.Int).Set(gasPrice),
	}
}

// Sender is the account every built transaction is signed by.
func (b *Builder) Sender() ethcmn.Address {
	return b.cred.Address()
}

// Build signs a transfer of amount to destination at the given nonce.
// The returned transaction is bound to that nonce for good.
func (b *Builder) Build(destination string, amount *big.Int, nonce uint64) (*types.Transaction, error) {
	if !ethcmn.IsHexAddress(destination) {
		return nil, &ConstructionError{Nonce: nonce, Reason: "malformed destination " + destination}
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, &ConstructionError{Nonce: nonce, Reason: "amount must be non-negative"}
	}

	to := ethcmn.HexToAddress(destination)
	unsignedTx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: b.gasPrice,
		Gas:      b.gasLimit,
		To:       &to,
		Value:    new(big.Int).Set(amount),
	})

	signedTx, err := b.cred.Sign(unsignedTx)
	if err != nil {
		return nil, &ConstructionError{Nonce: nonce, Reason: "sign", Err: err}
	}
	return signedTx, nil
}

// BuildTransfer is Build for a prepared Transfer.
func (b *Builder) BuildTransfer(t Transfer, nonce uint64) (*types.Transaction, error) {
	return b.Build(t.To, t.Amount, nonce)
}
