package solanaswapgo

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

type SwapType string

const (
	RAYDIUM  SwapType = "Raydium"
	PUMP_FUN SwapType = "PumpFun"
)

type Direction string

const (
	BUY  Direction = "buy"
	SELL Direction = "sell"
)

// Trade is one normalized swap. Lamports is the native side, Tokens the other side.
// FeeLamports stays nil until the transaction fee has been split across all trades.
type Trade struct {
	Signature   string           `json:"signature"`
	Wallet      solana.PublicKey `json:"wallet"`
	Platform    SwapType         `json:"platform"`
	Direction   Direction        `json:"direction"`
	Mint        solana.PublicKey `json:"mint"`
	Lamports    uint64           `json:"lamports"`
	Tokens      uint64           `json:"tokens"`
	FeeLamports *int64           `json:"feeLamports"`
	Block       uint64           `json:"block"`
	Timestamp   time.Time        `json:"timestamp"`

	// AMM trades only
	Amm   *solana.PublicKey `json:"amm,omitempty"`
	Pool1 *solana.PublicKey `json:"pool1,omitempty"`
	Pool2 *solana.PublicKey `json:"pool2,omitempty"`
}

func (t Trade) IsBuy() bool { return t.Direction == BUY }

// PoolBalance is the post-state of an AMM pool: SolPool holds WSOL, TokenPool the other mint.
type PoolBalance struct {
	Amm       solana.PublicKey `json:"amm"`
	SolPool   uint64           `json:"solPool"`
	TokenPool uint64           `json:"tokenPool"`
}

// RaydiumAddresses identifies a pool created by a bonding-curve migration.
type RaydiumAddresses struct {
	Mint  solana.PublicKey `json:"mint"`
	Amm   solana.PublicKey `json:"amm"`
	Pool1 solana.PublicKey `json:"pool1"`
	Pool2 solana.PublicKey `json:"pool2"`
}

type BondingCurveReserve struct {
	Mint                 solana.PublicKey `json:"mint"`
	VirtualSolReserves   uint64           `json:"virtualSolReserves"`
	VirtualTokenReserves uint64           `json:"virtualTokenReserves"`
}
