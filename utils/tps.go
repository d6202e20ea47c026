package utils

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// BlockSource is the read side of the node used to measure on-chain throughput.
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionCount(ctx context.Context, blockHash ethcmn.Hash) (uint, error)
}

// TPSStats accumulates included transactions per reporting interval.
type TPSStats struct {
	start         time.Time
	intervalStart time.Time

	TotalTxs    uint64
	IntervalTxs uint64
	Blocks      uint64
	MaxTPS      float64
	MinTPS      float64 // -1 until an interval with transactions was seen
	LastTPS     float64
}

// NewTPSStats starts the first interval at now.
func NewTPSStats(now time.Time) *TPSStats {
	return &TPSStats{start: now, intervalStart: now, MinTPS: -1}
}

// AddBlock counts one included block.
func (s *TPSStats) AddBlock(txCount uint64) {
	s.Blocks++
	s.TotalTxs += txCount
	s.IntervalTxs += txCount
}

// CloseInterval computes the interval's TPS, folds it into min/max and starts
// a new interval at now.
func (s *TPSStats) CloseInterval(now time.Time) float64 {
	var instant float64
	if d := now.Sub(s.intervalStart).Seconds(); d > 0 {
		instant = float64(s.IntervalTxs) / d
	}
	if instant > s.MaxTPS {
		s.MaxTPS = instant
	}
	if s.IntervalTxs > 0 && (s.MinTPS < 0 || instant < s.MinTPS) {
		s.MinTPS = instant
	}
	s.LastTPS = instant
	s.IntervalTxs = 0
	s.intervalStart = now
	return instant
}

// AverageTPS is the throughput since the stats were created.
func (s *TPSStats) AverageTPS(now time.Time) float64 {
	d := now.Sub(s.start).Seconds()
	if d <= 0 {
		return 0
	}
	return float64(s.TotalTxs) / d
}

// TPSMonitor periodically logs the node's on-chain throughput next to the
// local nonce of the run.
type TPSMonitor struct {
	src      BlockSource
	interval time.Duration
	nonce    func() uint64
	log      log.Logger
}

// NewTPSMonitor returns a monitor polling src every interval (5s when zero).
// nonce, if set, is sampled on each report.
func NewTPSMonitor(src BlockSource, interval time.Duration, nonce func() uint64, l log.Logger) *TPSMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &TPSMonitor{src: src, interval: interval, nonce: nonce, log: l}
}

// Run reports until ctx is done. Query errors are logged and retried on the
// next tick; the monitor never stops the run.
func (m *TPSMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	lastHeight, err := m.src.BlockNumber(ctx)
	for err != nil {
		m.log.Debug("TPS monitor waiting for node", "err", err)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		lastHeight, err = m.src.BlockNumber(ctx)
	}
	stats := NewTPSStats(time.Now())

	for {
		select {
		case <-ctx.Done():
			m.report(stats, lastHeight, true)
			return
		case <-ticker.C:
		}

		height, err := m.src.BlockNumber(ctx)
		if err != nil {
			m.log.Debug("Block number query failed", "err", err)
			continue
		}
		for h := lastHeight + 1; h <= height; h++ {
			count, err := m.transactionCountByHeight(ctx, h)
			if err != nil {
				m.log.Debug("Block query failed", "height", h, "err", err)
				break
			}
			stats.AddBlock(count)
			lastHeight = h
		}
		m.report(stats, lastHeight, false)
	}
}

func (m *TPSMonitor) report(stats *TPSStats, height uint64, final bool) {
	now := time.Now()
	instant := stats.CloseInterval(now)
	minTPS := stats.MinTPS
	if minTPS < 0 {
		minTPS = 0
	}
	msg := "TPS"
	if final {
		msg = "Final TPS"
	}
	ctx := []interface{}{
		"height", height,
		"instant", fmt.Sprintf("%.2f", instant),
		"avg", fmt.Sprintf("%.2f", stats.AverageTPS(now)),
		"max", fmt.Sprintf("%.2f", stats.MaxTPS),
		"min", fmt.Sprintf("%.2f", minTPS),
		"txs", stats.TotalTxs,
		"blocks", stats.Blocks,
	}
	if m.nonce != nil {
		ctx = append(ctx, "nonce", m.nonce())
	}
	m.log.Info(msg, ctx...)
}

func (m *TPSMonitor) transactionCountByHeight(ctx context.Context, height uint64) (uint64, error) {
	header, err := m.src.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		return 0, err
	}
	count, err := m.src.TransactionCount(ctx, header.Hash())
	if err != nil {
		return 0, err
	}
	return uint64(count), nil
}
