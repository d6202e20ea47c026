package txbuilder

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPoolLimit is the transaction pool capacity of the target node.
	DefaultPoolLimit = 8192
	// DefaultPoolHeadroom leaves room for transactions other senders put in the pool.
	DefaultPoolHeadroom = 2
)

// Batch is a run of signed transactions with nonces Start, Start+1, ...
type Batch struct {
	Start uint64
	Txs   []*types.Transaction
}

// Len is the number of transactions in the batch.
func (b Batch) Len() int {
	return len(b.Txs)
}

// Nonce returns the nonce element i was signed with.
func (b Batch) Nonce(i int) uint64 {
	return b.Start + uint64(i)
}

// GeneratorConfig controls batch sizing and signing parallelism.
type GeneratorConfig struct {
	PoolLimit     int
	PoolHeadroom  int
	Workers       int
	ProgressEvery int
}

// Generator pre-builds batches. It never touches the nonce tracker: the batch
// only becomes real state once it is submitted.
type Generator struct {
	builder  *Builder
	transfer Transfer
	cfg      GeneratorConfig
	log      log.Logger
}

// NewGenerator returns a generator signing transfer with builder. Zero workers
// means one per CPU.
func NewGenerator(builder *Builder, transfer Transfer, cfg GeneratorConfig, l log.Logger) *Generator {
	if cfg.PoolLimit <= 0 {
		cfg.PoolLimit = DefaultPoolLimit
	}
	if cfg.PoolHeadroom < 0 {
		cfg.PoolHeadroom = 0
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Generator{
		builder:  builder,
		transfer: transfer,
		cfg:      cfg,
		log:      l,
	}
}

// MaxBatch is the largest batch that fits in the pool next to the headroom.
func (g *Generator) MaxBatch() int {
	n := g.cfg.PoolLimit - g.cfg.PoolHeadroom
	if n < 0 {
		return 0
	}
	return n
}

// Generate signs count transfers with nonces start..start+count-1. A zero
// count fills the pool up to MaxBatch. Elements are signed concurrently and
// returned in nonce order; the first construction error aborts the batch.
func (g *Generator) Generate(ctx context.Context, count int, start uint64) (Batch, error) {
	if count == 0 {
		count = g.MaxBatch()
	}
	if count < 0 {
		return Batch{}, fmt.Errorf("negative batch size %d", count)
	}
	if count > g.MaxBatch() {
		return Batch{}, fmt.Errorf("%w: %d > %d (pool limit %d, headroom %d)",
			ErrBatchTooLarge, count, g.MaxBatch(), g.cfg.PoolLimit, g.cfg.PoolHeadroom)
	}

	txs := make([]*types.Transaction, count)
	var built atomic.Int64

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for i := 0; i < count; i++ {
		if egCtx.Err() != nil {
			break
		}
		index := i
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			nonce := start + uint64(index)
			tx, err := g.builder.BuildTransfer(g.transfer, nonce)
			if err != nil {
				return err
			}
			txs[index] = tx

			n := built.Add(1)
			g.log.Debug("Signed transaction", "step", index, "nonce", nonce)
			if g.cfg.ProgressEvery > 0 && n%int64(g.cfg.ProgressEvery) == 0 {
				g.log.Info("Building batch", "built", n, "total", count)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Batch{}, err
	}
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}

	g.log.Info("Batch built", "start", start, "size", count)
	return Batch{Start: start, Txs: txs}, nil
}
