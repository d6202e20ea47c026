// Package submit drives signed transactions into a node under the pool's
// throughput ceiling and recovers from nonce desync.
//
// Two strategies share one interface: Bulk submits a pre-built batch, Stream
// builds and submits one transaction at a time against the live nonce. Both
// run on the caller's goroutine; the nonce tracker has no other writer.
package submit

import (
	"context"
	"fmt"
	"time"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"

	"github.com/okx/txstorm/nonce"
	"github.com/okx/txstorm/txbuilder"
)

// Ledger is the part of the node the engine talks to.
type Ledger interface {
	AccountNonce(ctx context.Context, account ethcmn.Address) (uint64, error)
	SubmitTransaction(ctx context.Context, tx *types.Transaction) (ethcmn.Hash, error)
}

// PoolGauge reports how many transactions sit in the node's pool.
type PoolGauge interface {
	PoolSize(ctx context.Context) (int, error)
}

// Recorder receives the hash of every accepted transaction.
type Recorder interface {
	Record(hash ethcmn.Hash)
}

// Sleeper blocks for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Mode selects a submission strategy.
type Mode string

const (
	ModeBulk   Mode = "bulk"
	ModeStream Mode = "stream"
)

const (
	DefaultBatchSize     = 100
	DefaultPauseInterval = 6 * time.Second
	DefaultProgressEvery = 500
)

// Config selects the strategy and its pacing.
type Config struct {
	Mode Mode

	// BatchSize is the number of accepted stream transactions between pauses.
	BatchSize int
	// BatchCount is the bulk batch size; 0 fills the pool.
	BatchCount int
	// PauseInterval is both the pacing pause and the backoff before a resync.
	PauseInterval time.Duration
	// TargetTPS caps bulk submissions per second; 0 means no limit.
	TargetTPS int
	// MaxTxs stops a stream after that many accepted transactions; 0 runs until cancelled.
	MaxTxs uint64
	// PoolPauseThreshold pauses a stream while the pool holds at least that many
	// transactions; 0 disables the check.
	PoolPauseThreshold int
	ProgressEvery      int
}

// Deps are the collaborators a strategy is built from.
type Deps struct {
	Ledger    Ledger
	Tracker   *nonce.Tracker
	Builder   *txbuilder.Builder
	Generator *txbuilder.Generator
	Transfer  txbuilder.Transfer
	Recovery  *Recovery

	// Optional.
	Pool     PoolGauge
	Recorder Recorder
	Sleep    Sleeper
	Log      log.Logger
}

// Strategy is one way of feeding transactions to the node.
type Strategy interface {
	Mode() Mode
	Run(ctx context.Context) (*Report, error)
}

// New returns the strategy named by cfg.Mode.
func New(cfg Config, deps Deps) (Strategy, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PauseInterval <= 0 {
		cfg.PauseInterval = DefaultPauseInterval
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	if deps.Sleep == nil {
		deps.Sleep = Sleep
	}
	if deps.Log == nil {
		deps.Log = log.Root()
	}
	if deps.Ledger == nil || deps.Tracker == nil {
		return nil, fmt.Errorf("submit: ledger and tracker are required")
	}
	if deps.Recovery == nil && deps.Builder != nil {
		deps.Recovery = NewRecovery(deps.Ledger, deps.Builder.Sender(), deps.Log)
	}

	switch cfg.Mode {
	case ModeBulk:
		if deps.Generator == nil {
			return nil, fmt.Errorf("submit: bulk mode needs a batch generator")
		}
		var limiter *rate.Limiter
		if cfg.TargetTPS > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.TargetTPS), 1)
		}
		return &Bulk{cfg: cfg, deps: deps, limiter: limiter}, nil
	case ModeStream:
		if deps.Builder == nil {
			return nil, fmt.Errorf("submit: stream mode needs a transaction builder")
		}
		return &Stream{cfg: cfg, deps: deps}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}

// Outcome is the result of submitting one transaction. Err is nil when the
// node accepted it.
type Outcome struct {
	Index int
	Nonce uint64
	Hash  ethcmn.Hash
	Err   error
}

// Accepted reports whether the node took the transaction.
func (o Outcome) Accepted() bool {
	return o.Err == nil
}

// Report summarises a run.
type Report struct {
	Mode       Mode
	StartNonce uint64
	FinalNonce uint64

	Submitted        uint64
	Accepted         uint64
	Rejected         uint64
	RejectedByReason map[Reason]uint64

	PacingPauses uint64
	Resyncs      uint64
	// LandedDespiteRejection counts rejections after which the node's nonce
	// showed the rejected transaction had been included anyway.
	LandedDespiteRejection uint64

	// Outcomes holds every bulk submission in batch order. Streams leave it empty.
	Outcomes []Outcome

	Elapsed time.Duration
}

func newReport(mode Mode, start uint64) *Report {
	return &Report{
		Mode:             mode,
		StartNonce:       start,
		RejectedByReason: make(map[Reason]uint64),
	}
}

func (r *Report) accept() {
	r.Submitted++
	r.Accepted++
}

func (r *Report) reject(err *SubmissionError) {
	r.Submitted++
	r.Rejected++
	r.RejectedByReason[err.Reason]++
}

func (r *Report) finish(tracker *nonce.Tracker, started time.Time) *Report {
	r.FinalNonce = tracker.Current()
	r.Elapsed = time.Since(started)
	return r
}
