package submit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

var _ Strategy = (*Bulk)(nil)

// Bulk signs a whole batch up front and then submits it strictly in order.
// A rejected element is reported and the next one is submitted anyway.
type Bulk struct {
	cfg     Config
	deps    Deps
	limiter *rate.Limiter
}

// Mode returns ModeBulk.
func (b *Bulk) Mode() Mode {
	return ModeBulk
}

// Run generates the batch at the tracker's nonce and submits every element.
// Cancelling ctx stops the run early and still returns the report.
func (b *Bulk) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	tracker := b.deps.Tracker
	start := tracker.Current()

	report := newReport(ModeBulk, start)
	l := b.deps.Log

	batch, err := b.deps.Generator.Generate(ctx, b.cfg.BatchCount, start)
	if err != nil {
		// an interrupt while signing ends the run like an interrupt while submitting
		if ctx.Err() != nil {
			report.finish(tracker, started)
			l.Info("Batch interrupted before submission", "start", start)
			return report, nil
		}
		return nil, err
	}
	report.Outcomes = make([]Outcome, 0, batch.Len())

	l.Info("Submitting batch", "start", start, "size", batch.Len(), "targetTPS", b.cfg.TargetTPS)
	for i, tx := range batch.Txs {
		if ctx.Err() != nil {
			break
		}
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				break
			}
		}

		hash, err := b.deps.Ledger.SubmitTransaction(ctx, tx)
		if err != nil && ctx.Err() != nil {
			break
		}

		outcome := Outcome{Index: i, Nonce: tx.Nonce(), Hash: hash}
		if err != nil {
			serr := newSubmissionError(i, tx.Nonce(), err)
			outcome.Err = serr
			report.reject(serr)
			l.Warn("Step failed", "step", i, "nonce", tx.Nonce(), "reason", serr.Reason, "err", err)
		} else {
			report.accept()
			// only a contiguous run of acceptances moves the local nonce
			if tx.Nonce() == tracker.Current() {
				tracker.Advance()
			}
			if b.deps.Recorder != nil {
				b.deps.Recorder.Record(hash)
			}
			l.Debug("Step", "step", i, "nonce", tx.Nonce(), "hash", hash)
		}
		report.Outcomes = append(report.Outcomes, outcome)

		if (i+1)%b.cfg.ProgressEvery == 0 {
			l.Info("Batch progress", "submitted", i+1, "total", batch.Len(),
				"accepted", report.Accepted, "rejected", report.Rejected)
		}
	}

	report.finish(tracker, started)
	l.Info("Batch submitted", "submitted", report.Submitted, "accepted", report.Accepted,
		"rejected", report.Rejected, "nonce", report.FinalNonce, "elapsed", report.Elapsed)
	return report, nil
}
