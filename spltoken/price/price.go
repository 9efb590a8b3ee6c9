package price

import (
	"fmt"
	"time"

	solanaswapgo "github.com/franco-bianco/solanatrade-go/solanaswap-go"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const lamportsPerSOL = 1_000_000_000

// PricePoint is a single price observation derived from one trade.
type PricePoint struct {
	Signature string
	Slot      uint64
	Time      time.Time

	Mint     solana.PublicKey
	Platform solanaswapgo.SwapType
	IsBuy    bool

	// raw units on both sides
	TokensPerLamport decimal.Decimal
	// lamports per raw token unit scaled to SOL
	SOLPerToken decimal.Decimal
}

// TokensPerLamport is tokens / lamports of the trade, zero when no lamports moved.
func TokensPerLamport(trade solanaswapgo.Trade) decimal.Decimal {
	return ratio(trade.Tokens, trade.Lamports)
}

// PoolPrice is the pool's tokens per lamport from its post-trade reserves.
func PoolPrice(balance solanaswapgo.PoolBalance) decimal.Decimal {
	return ratio(balance.TokenPool, balance.SolPool)
}

func ratio(num, den uint64) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromUint64(num).Div(decimal.NewFromUint64(den))
}

func PricePointFromTrade(trade solanaswapgo.Trade) PricePoint {
	pp := PricePoint{
		Signature:        trade.Signature,
		Slot:             trade.Block,
		Time:             trade.Timestamp,
		Mint:             trade.Mint,
		Platform:         trade.Platform,
		IsBuy:            trade.IsBuy(),
		TokensPerLamport: TokensPerLamport(trade),
		SOLPerToken:      decimal.Zero,
	}
	if trade.Tokens > 0 {
		pp.SOLPerToken = decimal.NewFromUint64(trade.Lamports).
			Div(decimal.NewFromInt(lamportsPerSOL)).
			Div(decimal.NewFromUint64(trade.Tokens))
	}
	return pp
}

// PrettyPrice formats a PricePoint for logs.
func PrettyPrice(pp PricePoint) string {
	side := "sell"
	if pp.IsBuy {
		side = "buy"
	}
	return fmt.Sprintf("sig=%s slot=%d time=%s platform=%s side=%s tokens/lamport=%s SOL/token=%s mint=%s",
		pp.Signature, pp.Slot, pp.Time.UTC().Format(time.RFC3339), pp.Platform, side,
		pp.TokensPerLamport.StringFixed(6), pp.SOLPerToken.String(), pp.Mint)
}
