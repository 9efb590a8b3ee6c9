package txbuilder

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	solanaswapgo "github.com/franco-bianco/solanatrade-go/solanaswap-go"
)

// estimated compute units per order shape
const (
	pumpFunBuyComputeUnits  = 62000
	pumpFunSellComputeUnits = 38000
	raydiumBuyComputeUnits  = 50000
	raydiumSellComputeUnits = 30724
)

// Order is one swap to execute.
//
// Amount is the token amount on bonding curve orders and AMM sells, and the
// lamports spent on AMM buys. Limit is the slippage bound: the maximum lamports
// spent on bonding curve buys, the minimum output otherwise.
type Order struct {
	Venue     solanaswapgo.SwapType
	Direction solanaswapgo.Direction
	Mint      solana.PublicKey
	Amount    uint64
	Limit     uint64
	// Pool is required for AMM orders.
	Pool *solanaswapgo.RaydiumAddresses

	PriorityFeeLamports uint64
	JitoTipLamports     uint64
	NozomiTipLamports   uint64
}

// Executor turns orders into signed transactions and sends them.
type Executor struct {
	Builder   *Builder
	Submitter *Submitter
	Signer    solana.PrivateKey
	Log       *logrus.Logger
}

func NewExecutor(builder *Builder, submitter *Submitter, signer solana.PrivateKey, log *logrus.Logger) *Executor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{Builder: builder, Submitter: submitter, Signer: signer, Log: log}
}

// Execute returns the order's trade. A failure the venue program reports with a
// known code is logged and yields (nil, nil).
func (e *Executor) Execute(ctx context.Context, o Order) (*solanaswapgo.Trade, error) {
	log := e.Log.WithFields(logrus.Fields{
		"venue":     o.Venue,
		"direction": o.Direction,
		"mint":      o.Mint,
	})

	instructions, units, err := e.instructions(o)
	if err != nil {
		return nil, err
	}
	tx, err := e.Builder.Build(BuildParams{
		FeePayer:              e.Signer,
		PriorityFeeLamports:   o.PriorityFeeLamports,
		EstimatedComputeUnits: units,
		JitoTipLamports:       o.JitoTipLamports,
		NozomiTipLamports:     o.NozomiTipLamports,
		Instructions:          instructions,
	})
	if err != nil {
		return nil, err
	}
	log = log.WithField("signature", tx.Signatures[0])
	log.Debugf("sending %s of %d", o.Direction, o.Amount)

	trades, err := e.Submitter.SendAndConfirm(ctx, tx, ChannelFor(o.JitoTipLamports, o.NozomiTipLamports))
	if err != nil {
		if perr, ok := ClassifyError(o.Venue, err); ok {
			log.Warnf("error trading on %s: %s", o.Venue, perr.Reason)
			return nil, nil
		}
		return nil, err
	}

	switch len(trades) {
	case 0:
		log.Error("no trades returned by send and confirm, but no error")
		return nil, ErrNoTrade
	case 1:
		log.Debug("trade sent and confirmed")
		return &trades[0], nil
	default:
		log.WithField("trades", len(trades)).Error("multiple trades returned by send and confirm")
		return nil, ErrMultipleTrades
	}
}

func (e *Executor) instructions(o Order) ([]solana.Instruction, uint32, error) {
	user := e.Signer.PublicKey()
	buy := o.Direction == solanaswapgo.BUY

	switch o.Venue {
	case solanaswapgo.PUMP_FUN:
		ata, err := CreateIdempotentATAInstruction(user, user, o.Mint)
		if err != nil {
			return nil, 0, err
		}
		if buy {
			ix, err := PumpFunBuyInstruction(user, o.Mint, o.Amount, o.Limit)
			return []solana.Instruction{ata, ix}, pumpFunBuyComputeUnits, err
		}
		ix, err := PumpFunSellInstruction(user, o.Mint, o.Amount, o.Limit)
		return []solana.Instruction{ata, ix}, pumpFunSellComputeUnits, err

	case solanaswapgo.RAYDIUM:
		if o.Pool == nil {
			return nil, 0, errors.New("pool addresses are required for AMM orders")
		}
		pool := *o.Pool
		if pool.Mint.IsZero() {
			pool.Mint = o.Mint
		}
		swap, err := RaydiumSwapInstruction(user, pool, buy, o.Amount, o.Limit)
		if err != nil {
			return nil, 0, err
		}
		if !buy {
			return []solana.Instruction{swap}, raydiumSellComputeUnits, nil
		}
		ata, err := CreateIdempotentATAInstruction(user, user, pool.Mint)
		if err != nil {
			return nil, 0, err
		}
		return []solana.Instruction{ata, swap}, raydiumBuyComputeUnits, nil
	}
	return nil, 0, fmt.Errorf("unsupported venue %q", o.Venue)
}
