package submit

import (
	"context"
	"time"
)

var _ Strategy = (*Stream)(nil)

// Stream builds one transaction at a time against the live nonce and only
// builds the next one after seeing how the node answered.
//
// Accepted transactions advance the nonce; every BatchSize of them the stream
// pauses for PauseInterval so the node's pool can drain. Any rejection pauses
// for the same interval, resyncs the nonce from the node and discards the
// rejected transaction. The stream runs until ctx is cancelled or MaxTxs
// transactions were accepted.
type Stream struct {
	cfg  Config
	deps Deps
}

// Mode returns ModeStream.
func (s *Stream) Mode() Mode {
	return ModeStream
}

// Run streams until ctx is cancelled or MaxTxs transactions were accepted.
// A failed nonce query or build error ends the run with that error.
func (s *Stream) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	tracker := s.deps.Tracker
	report := newReport(ModeStream, tracker.Current())
	l := s.deps.Log

	// cancellation of ctx is the normal way out of a stream; any error seen
	// while ctx is still live is fatal, even one wrapping a transport timeout
	done := func(err error) (*Report, error) {
		report.finish(tracker, started)
		l.Info("Stream stopped", "submitted", report.Submitted, "accepted", report.Accepted,
			"rejected", report.Rejected, "resyncs", report.Resyncs, "nonce", report.FinalNonce)
		if err != nil && ctx.Err() == nil {
			return report, err
		}
		return report, nil
	}

	inBatch, step := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return done(err)
		}
		if s.cfg.MaxTxs > 0 && report.Accepted >= s.cfg.MaxTxs {
			return done(nil)
		}
		if s.poolSaturated(ctx) {
			if err := s.deps.Sleep(ctx, s.cfg.PauseInterval); err != nil {
				return done(err)
			}
			continue
		}

		n := tracker.Current()
		tx, err := s.deps.Builder.BuildTransfer(s.deps.Transfer, n)
		if err != nil {
			return done(err)
		}

		hash, err := s.deps.Ledger.SubmitTransaction(ctx, tx)
		i := step
		step++
		if err == nil {
			tracker.Advance()
			report.accept()
			if s.deps.Recorder != nil {
				s.deps.Recorder.Record(hash)
			}
			l.Debug("Step", "step", i, "nonce", n, "hash", hash)
			if report.Accepted%uint64(s.cfg.ProgressEvery) == 0 {
				l.Info("Stream progress", "accepted", report.Accepted, "rejected", report.Rejected, "nonce", tracker.Current())
			}

			inBatch++
			if inBatch >= s.cfg.BatchSize {
				inBatch = 0
				report.PacingPauses++
				l.Debug("Batch complete, pausing", "size", s.cfg.BatchSize, "pause", s.cfg.PauseInterval)
				if err := s.deps.Sleep(ctx, s.cfg.PauseInterval); err != nil {
					return done(err)
				}
			}
			continue
		}
		if ctx.Err() != nil {
			return done(ctx.Err())
		}

		serr := newSubmissionError(i, n, err)
		report.reject(serr)
		l.Warn("Step failed", "step", i, "nonce", n, "reason", serr.Reason, "err", err, "pause", s.cfg.PauseInterval)

		if err := s.deps.Sleep(ctx, s.cfg.PauseInterval); err != nil {
			return done(err)
		}
		res, err := s.deps.Recovery.Resync(ctx, tracker)
		if err != nil {
			return done(err)
		}
		report.Resyncs++
		if res.Authoritative > n {
			report.LandedDespiteRejection++
			l.Warn("Rejected transaction landed", "nonce", n, "authoritative", res.Authoritative)
		}
		inBatch = 0
	}
}

// poolSaturated reports whether the node's pool is at the pause threshold.
// A failed pool query never stops the stream.
func (s *Stream) poolSaturated(ctx context.Context) bool {
	if s.deps.Pool == nil || s.cfg.PoolPauseThreshold <= 0 {
		return false
	}
	size, err := s.deps.Pool.PoolSize(ctx)
	if err != nil {
		s.deps.Log.Debug("Pool size query failed", "err", err)
		return false
	}
	if size >= s.cfg.PoolPauseThreshold {
		s.deps.Log.Info("Pool saturated, pausing", "size", size, "threshold", s.cfg.PoolPauseThreshold, "pause", s.cfg.PauseInterval)
		return true
	}
	return false
}
