package txbuilder

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T, cfg GeneratorConfig, transfer Transfer) *Generator {
	t.Helper()
	return NewGenerator(newTestBuilder(t), transfer, cfg, log.NewLogger(log.DiscardHandler()))
}

func validTransfer() Transfer {
	return Transfer{To: testDestination, Amount: big.NewInt(123_456_789)}
}

func TestGenerator_MaxBatch(t *testing.T) {
	g := newTestGenerator(t, GeneratorConfig{}, validTransfer())
	require.Equal(t, DefaultPoolLimit-DefaultPoolHeadroom, g.MaxBatch())

	g = newTestGenerator(t, GeneratorConfig{PoolLimit: 10, PoolHeadroom: 4}, validTransfer())
	require.Equal(t, 6, g.MaxBatch())

	g = newTestGenerator(t, GeneratorConfig{PoolLimit: 1, PoolHeadroom: 4}, validTransfer())
	require.Equal(t, 0, g.MaxBatch())
}

func TestGenerator_ContiguousNonces(t *testing.T) {
	g := newTestGenerator(t, GeneratorConfig{PoolLimit: 64, PoolHeadroom: 2, Workers: 8}, validTransfer())

	batch, err := g.Generate(context.Background(), 50, 1000)
	require.NoError(t, err)
	require.Equal(t, 50, batch.Len())
	require.Equal(t, uint64(1000), batch.Start)

	seen := make(map[uint64]bool)
	for i, tx := range batch.Txs {
		require.NotNil(t, tx)
		require.Equal(t, uint64(1000+i), tx.Nonce())
		require.Equal(t, batch.Nonce(i), tx.Nonce())
		require.False(t, seen[tx.Nonce()])
		seen[tx.Nonce()] = true
	}
}

func TestGenerator_FillsPoolByDefault(t *testing.T) {
	g := newTestGenerator(t, GeneratorConfig{PoolLimit: 12, PoolHeadroom: 2}, validTransfer())

	batch, err := g.Generate(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Equal(t, 10, batch.Len())
	require.Equal(t, uint64(9), batch.Txs[9].Nonce())
}

func TestGenerator_RejectsOversizedBatch(t *testing.T) {
	g := newTestGenerator(t, GeneratorConfig{PoolLimit: 12, PoolHeadroom: 2}, validTransfer())

	_, err := g.Generate(context.Background(), 11, 0)
	require.ErrorIs(t, err, ErrBatchTooLarge)

	_, err = g.Generate(context.Background(), -1, 0)
	require.Error(t, err)
}

func TestGenerator_ConstructionErrorAbortsBatch(t *testing.T) {
	g := newTestGenerator(t, GeneratorConfig{PoolLimit: 20}, Transfer{To: "0xnot-an-address", Amount: big.NewInt(1)})

	batch, err := g.Generate(context.Background(), 10, 0)
	require.ErrorIs(t, err, ErrConstruction)
	require.Zero(t, batch.Len())
}

func TestGenerator_Cancelled(t *testing.T) {
	g := newTestGenerator(t, GeneratorConfig{PoolLimit: 20}, validTransfer())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, 10, 0)
	require.ErrorIs(t, err, context.Canceled)
}
