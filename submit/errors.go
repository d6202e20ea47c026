package submit

import (
	"errors"
	"fmt"
	"strings"

	ethcmn "github.com/ethereum/go-ethereum/common"
)

var (
	// ErrSubmissionRejected marks a transaction the node declined or errored on.
	// It is always recovered from by pausing, resyncing and discarding the tx.
	ErrSubmissionRejected = errors.New("submission rejected")

	// ErrQueryFailed marks a failed account query. It ends the run.
	ErrQueryFailed = errors.New("account query failed")

	ErrUnknownMode = errors.New("unknown submission mode")
)

// Reason is a coarse label for why the node rejected a transaction. It only
// feeds reports and logs; every rejection is recovered from the same way.
type Reason string

const (
	ReasonNonceTooLow            Reason = "nonce-too-low"
	ReasonNonceTooHigh           Reason = "nonce-too-high"
	ReasonAlreadyKnown           Reason = "already-known"
	ReasonReplacementUnderpriced Reason = "replacement-underpriced"
	ReasonUnderpriced            Reason = "underpriced"
	ReasonPoolFull               Reason = "pool-full"
	ReasonInsufficientFunds      Reason = "insufficient-funds"
	ReasonUnknown                Reason = "unknown"
)

// Order matters: "replacement transaction underpriced" must win over "underpriced".
var reasonPatterns = []struct {
	pattern string
	reason  Reason
}{
	{"nonce too low", ReasonNonceTooLow},
	{"nonce too high", ReasonNonceTooHigh},
	{"already known", ReasonAlreadyKnown},
	{"transaction already exists", ReasonAlreadyKnown},
	{"replacement transaction underpriced", ReasonReplacementUnderpriced},
	{"underpriced", ReasonUnderpriced},
	{"txpool is full", ReasonPoolFull},
	{"insufficient funds", ReasonInsufficientFunds},
}

// Classify maps a node error message to a Reason.
func Classify(err error) Reason {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	for _, p := range reasonPatterns {
		if strings.Contains(msg, p.pattern) {
			return p.reason
		}
	}
	return ReasonUnknown
}

// SubmissionError is the structured form of a rejected submission.
type SubmissionError struct {
	Index  int
	Nonce  uint64
	Reason Reason
	Err    error
}

func newSubmissionError(index int, nonce uint64, err error) *SubmissionError {
	return &SubmissionError{
		Index:  index,
		Nonce:  nonce,
		Reason: Classify(err),
		Err:    err,
	}
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("step %d nonce=%d rejected (%s): %v", e.Index, e.Nonce, e.Reason, e.Err)
}

func (e *SubmissionError) Unwrap() []error {
	return []error{ErrSubmissionRejected, e.Err}
}

// QueryError is returned when the node's account state cannot be read.
type QueryError struct {
	Account ethcmn.Address
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query nonce of %s: %v", e.Account.Hex(), e.Err)
}

func (e *QueryError) Unwrap() []error {
	return []error{ErrQueryFailed, e.Err}
}
