package utils

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

const txHashBufferSize = 10000

// TxHashWriter appends accepted transaction hashes to a file from a
// background goroutine so the submission loop never waits on disk.
type TxHashWriter struct {
	ch      chan ethcmn.Hash
	file    *os.File
	wg      sync.WaitGroup
	log     log.Logger
	dropped uint64
	once    sync.Once
}

// NewTxHashWriter truncates or creates path and starts the writer goroutine.
func NewTxHashWriter(path string, l log.Logger) (*TxHashWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open tx hash file: %w", err)
	}

	w := &TxHashWriter{
		ch:   make(chan ethcmn.Hash, txHashBufferSize),
		file: file,
		log:  l,
	}
	w.wg.Add(1)
	go w.loop()

	l.Info("TxHash writer enabled", "path", path)
	return w, nil
}

func (w *TxHashWriter) loop() {
	defer w.wg.Done()
	buf := bufio.NewWriter(w.file)
	for hash := range w.ch {
		if _, err := buf.WriteString(hash.Hex() + "\n"); err != nil {
			w.log.Warn("Failed to write tx hash", "hash", hash, "err", err)
		}
	}
	if err := buf.Flush(); err != nil {
		w.log.Warn("Failed to flush tx hashes", "err", err)
	}
}

// Record queues hash for writing. It never blocks; when the buffer is full
// the hash is dropped and counted.
func (w *TxHashWriter) Record(hash ethcmn.Hash) {
	select {
	case w.ch <- hash:
	default:
		w.dropped++
		w.log.Warn("TxHash channel full, dropping hash", "hash", hash)
	}
}

// Dropped returns how many hashes did not fit in the buffer. Only meaningful
// after Close or from the goroutine calling Record.
func (w *TxHashWriter) Dropped() uint64 {
	return w.dropped
}

// Close drains pending hashes and closes the file.
func (w *TxHashWriter) Close() error {
	var err error
	w.once.Do(func() {
		close(w.ch)
		w.wg.Wait()
		err = w.file.Close()
		if err == nil {
			w.log.Info("TxHash writer closed", "dropped", w.dropped)
		}
	})
	return err
}
