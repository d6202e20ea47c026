package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func TestTxHashWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txhashes.log")
	w, err := NewTxHashWriter(path, log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)

	hashes := []ethcmn.Hash{
		ethcmn.HexToHash("0x01"),
		ethcmn.HexToHash("0x02"),
		ethcmn.HexToHash("0x03"),
	}
	for _, h := range hashes {
		w.Record(h)
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.Zero(t, w.Dropped())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, len(hashes))
	for i, h := range hashes {
		require.Equal(t, h.Hex(), lines[i])
	}
}

func TestTxHashWriter_BadPath(t *testing.T) {
	_, err := NewTxHashWriter(filepath.Join(t.TempDir(), "missing", "dir", "x.log"), log.NewLogger(log.DiscardHandler()))
	require.Error(t, err)
}
