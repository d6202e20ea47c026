package submit

import (
	"context"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/txstorm/nonce"
)

// Resync records one recovery: the local nonce that was discarded and the
// node's value that replaced it.
type Resync struct {
	Local         uint64
	Authoritative uint64
}

// Recovery resynchronises the tracker with the node after a rejection.
type Recovery struct {
	ledger  Ledger
	account ethcmn.Address
	log     log.Logger
}

// NewRecovery returns a Recovery querying ledger for account.
func NewRecovery(ledger Ledger, account ethcmn.Address, l log.Logger) *Recovery {
	return &Recovery{
		ledger:  ledger,
		account: account,
		log:     l,
	}
}

// Query asks the node for the account's authoritative nonce. There is no
// retry here: a failure is fatal to the run.
func (r *Recovery) Query(ctx context.Context) (uint64, error) {
	n, err := r.ledger.AccountNonce(ctx, r.account)
	if err != nil {
		return 0, &QueryError{Account: r.account, Err: err}
	}
	return n, nil
}

// Resync resets the tracker to the node's nonce. Transactions signed against
// the previous local value must not be submitted afterwards.
func (r *Recovery) Resync(ctx context.Context, tracker *nonce.Tracker) (Resync, error) {
	local := tracker.Current()
	authoritative, err := r.Query(ctx)
	if err != nil {
		return Resync{Local: local}, err
	}
	tracker.Reset(authoritative)

	r.log.Info("Nonce resynced", "account", r.account, "local", local, "authoritative", authoritative)
	return Resync{Local: local, Authoritative: authoritative}, nil
}
