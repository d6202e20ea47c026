package utils

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	NonceSourcePending = "pending"
	NonceSourceLatest  = "latest"
)

// EthClient is the node connection shared by the submission engine, the
// recovery path and the pool gauge. Calls are made sequentially by the engine.
type EthClient struct {
	*ethclient.Client
	rpcClient   *rpc.Client
	nonceSource string
}

// createOptimizedHTTPClient creates an HTTP client optimized for connection pooling
func createOptimizedHTTPClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     30 * time.Second,
		DisableKeepAlives:   false,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   10 * time.Second,
	}
}

// NewEthClient dials url (http, https, ws or wss).
func NewEthClient(ctx context.Context, url, nonceSource string) (*EthClient, error) {
	rpcClient, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(createOptimizedHTTPClient()))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rpc client: %w", err)
	}
	if nonceSource == "" {
		nonceSource = NonceSourcePending
	}

	return &EthClient{
		Client:      ethclient.NewClient(rpcClient),
		rpcClient:   rpcClient,
		nonceSource: nonceSource,
	}, nil
}

// AccountNonce returns the node's nonce for account. The pending source
// counts transactions already in the pool, the latest source only mined ones.
func (e *EthClient) AccountNonce(ctx context.Context, account ethcmn.Address) (uint64, error) {
	if e.nonceSource == NonceSourceLatest {
		return e.NonceAt(ctx, account, nil)
	}
	return e.PendingNonceAt(ctx, account)
}

// SubmitTransaction sends a signed transaction and returns its hash.
func (e *EthClient) SubmitTransaction(ctx context.Context, signedTx *types.Transaction) (ethcmn.Hash, error) {
	if err := e.SendTransaction(ctx, signedTx); err != nil {
		return ethcmn.Hash{}, err
	}
	return signedTx.Hash(), nil
}

// TxPoolStatus is the result of txpool_status.
type TxPoolStatus struct {
	Pending hexutil.Uint `json:"pending"`
	Queued  hexutil.Uint `json:"queued"`
}

// PoolSize returns pending plus queued transactions in the node's pool.
func (e *EthClient) PoolSize(ctx context.Context) (int, error) {
	var status TxPoolStatus
	if err := e.rpcClient.CallContext(ctx, &status, "txpool_status"); err != nil {
		return 0, fmt.Errorf("txpool_status: %w", err)
	}
	return int(status.Pending) + int(status.Queued), nil
}

// ResolveChainID returns configured when non-zero and asks the node otherwise.
func (e *EthClient) ResolveChainID(ctx context.Context, configured uint64) (*big.Int, error) {
	if configured != 0 {
		return new(big.Int).SetUint64(configured), nil
	}
	return e.ChainID(ctx)
}
