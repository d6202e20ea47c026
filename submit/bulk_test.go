package submit

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/okx/txstorm/txbuilder"
)

func newTestBulk(t *testing.T, cfg Config, deps Deps) Strategy {
	t.Helper()
	cfg.Mode = ModeBulk
	b, err := New(cfg, deps)
	require.NoError(t, err)
	require.Equal(t, ModeBulk, b.Mode())
	return b
}

func TestBulk_FailureDoesNotBlockLaterElements(t *testing.T) {
	ledger := &fakeLedger{
		reject: func(i int, _ *types.Transaction) error {
			if i == 4000 {
				return errors.New("already known")
			}
			return nil
		},
	}
	deps := newTestDeps(t, ledger, 0, &recordedSleeps{})
	bulk := newTestBulk(t, Config{}, deps)

	report, err := bulk.Run(context.Background())
	require.NoError(t, err)

	const size = txbuilder.DefaultPoolLimit - txbuilder.DefaultPoolHeadroom
	require.Equal(t, uint64(size), report.Submitted)
	require.Equal(t, uint64(size-1), report.Accepted)
	require.Equal(t, uint64(1), report.Rejected)
	require.Equal(t, uint64(1), report.RejectedByReason[ReasonAlreadyKnown])
	require.Len(t, report.Outcomes, size)

	for i, outcome := range report.Outcomes {
		require.Equal(t, i, outcome.Index)
		require.Equal(t, uint64(i), outcome.Nonce)
		if i == 4000 {
			require.False(t, outcome.Accepted())
			require.ErrorIs(t, outcome.Err, ErrSubmissionRejected)
			continue
		}
		require.True(t, outcome.Accepted(), "element %d", i)
	}

	nonces := ledger.submittedNonces()
	require.Len(t, nonces, size)
	for i, n := range nonces {
		require.Equal(t, uint64(i), n)
	}

	// the local nonce only follows the contiguous accepted prefix
	require.Equal(t, uint64(4000), report.FinalNonce)
	require.Zero(t, ledger.queries)
}

func TestBulk_BatchCountAndStart(t *testing.T) {
	ledger := &fakeLedger{}
	deps := newTestDeps(t, ledger, 77, &recordedSleeps{})
	recorder := &hashRecorder{}
	deps.Recorder = recorder
	bulk := newTestBulk(t, Config{BatchCount: 16, TargetTPS: 1000}, deps)

	report, err := bulk.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(16), report.Accepted)
	require.Equal(t, uint64(77), report.StartNonce)
	require.Equal(t, uint64(93), report.FinalNonce)
	require.Equal(t, uint64(93), deps.Tracker.Current())
	require.Len(t, recorder.hashes, 16)
}

func TestBulk_OversizedBatch(t *testing.T) {
	ledger := &fakeLedger{}
	deps := newTestDeps(t, ledger, 0, &recordedSleeps{})
	bulk := newTestBulk(t, Config{BatchCount: txbuilder.DefaultPoolLimit}, deps)

	report, err := bulk.Run(context.Background())
	require.ErrorIs(t, err, txbuilder.ErrBatchTooLarge)
	require.Nil(t, report)
	require.Empty(t, ledger.submitted)
}

func TestBulk_ConstructionErrorBeforeSubmission(t *testing.T) {
	ledger := &fakeLedger{}
	deps := newTestDeps(t, ledger, 0, &recordedSleeps{})
	deps.Generator = txbuilder.NewGenerator(deps.Builder,
		txbuilder.Transfer{To: "0x12", Amount: big.NewInt(1)}, txbuilder.GeneratorConfig{PoolLimit: 10}, testLogger())
	bulk := newTestBulk(t, Config{}, deps)

	_, err := bulk.Run(context.Background())
	require.ErrorIs(t, err, txbuilder.ErrConstruction)
	require.Empty(t, ledger.submitted)
}

func TestBulk_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger := &fakeLedger{
		afterSubmit: func(i int) {
			if i == 2 {
				cancel()
			}
		},
	}
	deps := newTestDeps(t, ledger, 0, &recordedSleeps{})
	bulk := newTestBulk(t, Config{BatchCount: 10}, deps)

	report, err := bulk.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)
	require.Equal(t, uint64(3), report.FinalNonce)
}

func TestBulk_CancelledWhileSigningIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ledger := &fakeLedger{}
	deps := newTestDeps(t, ledger, 42, &recordedSleeps{})
	bulk := newTestBulk(t, Config{BatchCount: 10}, deps)

	report, err := bulk.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, report)
	require.Zero(t, report.Submitted)
	require.Equal(t, uint64(42), report.StartNonce)
	require.Equal(t, uint64(42), report.FinalNonce)
	require.Empty(t, ledger.submitted)
}
