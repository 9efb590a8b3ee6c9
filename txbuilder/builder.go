// Package txbuilder composes, signs and submits trading transactions: compute
// budget and relay tip instructions in front of the venue instructions, three
// delivery channels racing the same stream confirmation, and the mapping of venue
// program errors to readable reasons.
package txbuilder

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"

	solanaswapgo "github.com/franco-bianco/solanatrade-go/solanaswap-go"
)

const (
	// compute unit headroom for the budget and tip instructions
	computeMarginWithJitoTip = 450
	computeMargin            = 300

	// the price is spread over the doubled limit the instruction requests
	priorityFeeScale = 500_000
)

// Channel is how a signed transaction reaches the leader.
type Channel string

const (
	ChannelPlain  Channel = "plain"
	ChannelJito   Channel = "jito"
	ChannelNozomi Channel = "nozomi"
)

// ChannelFor picks the delivery channel implied by the tips: Nozomi first, then
// Jito, else the plain RPC path.
func ChannelFor(jitoTipLamports, nozomiTipLamports uint64) Channel {
	switch {
	case nozomiTipLamports > 0:
		return ChannelNozomi
	case jitoTipLamports > 0:
		return ChannelJito
	default:
		return ChannelPlain
	}
}

type BuildParams struct {
	FeePayer              solana.PrivateKey
	PriorityFeeLamports   uint64
	EstimatedComputeUnits uint32
	JitoTipLamports       uint64
	NozomiTipLamports     uint64
	// Instructions follow the budget and tip instructions.
	Instructions []solana.Instruction
}

// Blockhashes hands out the blockhash new transactions are built against.
type Blockhashes interface {
	Latest() (solana.Hash, error)
}

type Builder struct {
	blockhashes Blockhashes
	// intn picks a tip account
	intn func(n int) int
}

func NewBuilder(blockhashes Blockhashes) *Builder {
	return &Builder{blockhashes: blockhashes, intn: rand.Intn}
}

// ComputeUnitLimit is the limit requested for an estimate: the estimate plus the
// margin for the extra instructions, doubled.
func ComputeUnitLimit(estimated uint32, jitoTip bool) uint32 {
	return effectiveComputeUnits(estimated, jitoTip) * 2
}

// ComputeUnitPrice is the micro-lamport price that makes the priority fee come out
// at roughly priorityFeeLamports.
func ComputeUnitPrice(priorityFeeLamports uint64, estimated uint32, jitoTip bool) uint64 {
	return priorityFeeLamports * priorityFeeScale / uint64(effectiveComputeUnits(estimated, jitoTip))
}

func effectiveComputeUnits(estimated uint32, jitoTip bool) uint32 {
	if jitoTip {
		return estimated + computeMarginWithJitoTip
	}
	return estimated + computeMargin
}

// Build composes and signs a transaction. Only one tip is ever added, the Nozomi
// tip taking precedence.
func (b *Builder) Build(p BuildParams) (*solana.Transaction, error) {
	if p.FeePayer == nil {
		return nil, errors.New("fee payer is required")
	}
	blockhash, err := b.blockhashes.Latest()
	if err != nil {
		return nil, err
	}

	payer := p.FeePayer.PublicKey()
	jitoTip := p.JitoTipLamports > 0

	instructions := []solana.Instruction{
		computebudget.NewSetComputeUnitLimitInstruction(ComputeUnitLimit(p.EstimatedComputeUnits, jitoTip)).Build(),
	}
	if p.PriorityFeeLamports > 0 {
		instructions = append(instructions,
			computebudget.NewSetComputeUnitPriceInstruction(ComputeUnitPrice(p.PriorityFeeLamports, p.EstimatedComputeUnits, jitoTip)).Build())
	}
	switch {
	case p.NozomiTipLamports > 0:
		instructions = append(instructions, b.tip(payer, p.NozomiTipLamports, solanaswapgo.NOZOMI_TIP_ADDRESSES))
	case jitoTip:
		instructions = append(instructions, b.tip(payer, p.JitoTipLamports, solanaswapgo.JITO_TIP_ADDRESSES))
	}
	instructions = append(instructions, p.Instructions...)

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to compose transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &p.FeePayer
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}

func (b *Builder) tip(payer solana.PublicKey, lamports uint64, accounts []solana.PublicKey) solana.Instruction {
	to := accounts[b.intn(len(accounts))]
	return system.NewTransferInstruction(lamports, payer, to).Build()
}
