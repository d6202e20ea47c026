package submit

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/okx/txstorm/nonce"
	"github.com/okx/txstorm/txbuilder"
)

const testDestination = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"

var errNodeBusy = errors.New("connection reset by peer")

// fakeLedger plays the node. By default it accepts everything and reports the
// next nonce after the highest accepted one.
type fakeLedger struct {
	mu sync.Mutex

	submitted []*types.Transaction
	accepted  []*types.Transaction
	queries   int
	chainNext uint64

	// reject decides the answer for the i-th submission (0-based).
	reject func(i int, tx *types.Transaction) error
	// authoritative overrides the nonce returned by AccountNonce.
	authoritative func(queries int) (uint64, error)
	// afterSubmit runs after every submission, outside the lock.
	afterSubmit func(i int)
}

func (f *fakeLedger) AccountNonce(_ context.Context, _ ethcmn.Address) (uint64, error) {
	f.mu.Lock()
	f.queries++
	q := f.queries
	next := f.chainNext
	f.mu.Unlock()

	if f.authoritative != nil {
		return f.authoritative(q)
	}
	return next, nil
}

func (f *fakeLedger) SubmitTransaction(ctx context.Context, tx *types.Transaction) (ethcmn.Hash, error) {
	if err := ctx.Err(); err != nil {
		return ethcmn.Hash{}, err
	}

	f.mu.Lock()
	i := len(f.submitted)
	f.submitted = append(f.submitted, tx)
	var err error
	if f.reject != nil {
		err = f.reject(i, tx)
	}
	if err == nil {
		f.accepted = append(f.accepted, tx)
		if tx.Nonce()+1 > f.chainNext {
			f.chainNext = tx.Nonce() + 1
		}
	}
	f.mu.Unlock()

	if f.afterSubmit != nil {
		f.afterSubmit(i)
	}
	if err != nil {
		return ethcmn.Hash{}, err
	}
	return tx.Hash(), nil
}

func (f *fakeLedger) submittedNonces() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	nonces := make([]uint64, len(f.submitted))
	for i, tx := range f.submitted {
		nonces[i] = tx.Nonce()
	}
	return nonces
}

type recordedSleeps struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.calls = append(r.calls, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordedSleeps) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type hashRecorder struct {
	hashes []ethcmn.Hash
}

func (h *hashRecorder) Record(hash ethcmn.Hash) {
	h.hashes = append(h.hashes, hash)
}

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func newTestBuilder(t *testing.T) *txbuilder.Builder {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return txbuilder.NewBuilder(txbuilder.NewKeyCredential(key, big.NewInt(1337)), 0, nil)
}

func testTransfer() txbuilder.Transfer {
	return txbuilder.Transfer{To: testDestination, Amount: big.NewInt(123_456_789_012_445)}
}

func newTestDeps(t *testing.T, ledger *fakeLedger, start uint64, sleeps *recordedSleeps) Deps {
	t.Helper()
	builder := newTestBuilder(t)
	l := testLogger()
	return Deps{
		Ledger:  ledger,
		Tracker: nonce.NewTracker(start),
		Builder: builder,
		Generator: txbuilder.NewGenerator(builder, testTransfer(),
			txbuilder.GeneratorConfig{PoolLimit: txbuilder.DefaultPoolLimit, PoolHeadroom: txbuilder.DefaultPoolHeadroom}, l),
		Transfer: testTransfer(),
		Recovery: NewRecovery(ledger, builder.Sender(), l),
		Sleep:    sleeps.sleep,
		Log:      l,
	}
}
