package txbuilder

import (
	"errors"
	"fmt"

	solanaswapgo "github.com/franco-bianco/solanatrade-go/solanaswap-go"
)

var (
	ErrMultipleTrades = errors.New("multiple trades returned by send and confirm")
	ErrNoTrade        = errors.New("no trade returned by send and confirm")
)

var pumpFunErrors = map[uint32]string{
	1:       "timed out: blockhash expired",
	6002:    "buy slippage exceeded",
	6003:    "sell slippage exceeded",
	6004:    "mint does not match bonding curve",
	6005:    "coin has migrated",
	4615041: "possibly insufficient funds",
}

var raydiumErrors = map[uint32]string{
	1:  "timed out: blockhash expired",
	30: "slippage exceeded",
	38: "possibly forgot to wrap sol",
	40: "insufficient funds",
}

// ProgramError is a known venue failure of a confirmed transaction.
type ProgramError struct {
	Venue  solanaswapgo.SwapType
	Code   uint32
	Reason string
	Err    *solanaswapgo.TransactionError
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", e.Venue, e.Reason, e.Code)
}

func (e *ProgramError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

// ProgramErrorReason looks up the readable reason for a custom program error code.
func ProgramErrorReason(venue solanaswapgo.SwapType, code uint32) (string, bool) {
	var table map[uint32]string
	switch venue {
	case solanaswapgo.PUMP_FUN:
		table = pumpFunErrors
	case solanaswapgo.RAYDIUM:
		table = raydiumErrors
	default:
		return "", false
	}
	reason, ok := table[code]
	return reason, ok
}

// ClassifyError maps a failed transaction with a known custom error code of venue
// to a *ProgramError. Anything else is reported as unknown.
func ClassifyError(venue solanaswapgo.SwapType, err error) (*ProgramError, bool) {
	var txErr *solanaswapgo.TransactionError
	if !errors.As(err, &txErr) {
		return nil, false
	}
	code, ok := txErr.CustomCode()
	if !ok {
		return nil, false
	}
	reason, ok := ProgramErrorReason(venue, code)
	if !ok {
		return nil, false
	}
	return &ProgramError{Venue: venue, Code: code, Reason: reason, Err: txErr}, true
}
