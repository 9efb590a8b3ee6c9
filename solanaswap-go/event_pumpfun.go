package solanaswapgo

import (
	"fmt"

	ag_binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// PumpfunTradeEventSize is the byte length of the self-CPI trade log:
// 16-byte event tag, the borsh event body, then a trailing 16 bytes.
const PumpfunTradeEventSize = 137

type PumpfunTradeEvent struct {
	Mint                 solana.PublicKey
	SolAmount            uint64
	TokenAmount          uint64
	IsBuy                bool
	User                 solana.PublicKey
	Timestamp            int64
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
}

func (p *Parser) processPumpfunSwaps() []Trade {
	var trades []Trade
	for _, event := range p.pumpfunTradeEvents() {
		trade := p.newTrade(PUMP_FUN)
		trade.Wallet = event.User
		trade.Mint = event.Mint
		trade.Lamports = event.SolAmount
		trade.Tokens = event.TokenAmount
		if event.IsBuy {
			trade.Direction = BUY
		} else {
			trade.Direction = SELL
		}
		trades = append(trades, trade)
	}
	return trades
}

func (p *Parser) pumpfunTradeEvents() []*PumpfunTradeEvent {
	if p.pumpFunIndex < 0 {
		return nil
	}
	var events []*PumpfunTradeEvent
	for _, group := range p.tx.InnerInstructions {
		for _, instr := range group.Instructions {
			if !p.isPumpFunTradeEventInstruction(instr) {
				continue
			}
			event, err := parsePumpfunTradeEvent(instr.Data)
			if err != nil {
				p.Log.Errorf("error processing Pumpfun trade event: %s", err)
				continue
			}
			events = append(events, event)
		}
	}
	return events
}

func parsePumpfunTradeEvent(data []byte) (*PumpfunTradeEvent, error) {
	if len(data) != PumpfunTradeEventSize {
		return nil, fmt.Errorf("pumpfun event data has length %d", len(data))
	}
	decoder := ag_binary.NewBorshDecoder(data[16:])
	var event PumpfunTradeEvent
	if err := decoder.Decode(&event); err != nil {
		return nil, fmt.Errorf("error unmarshaling PumpfunTradeEvent: %s", err)
	}
	return &event, nil
}

// BondingCurveReserves returns the virtual reserves reported by every pump.fun trade event.
func BondingCurveReserves(tx *RawTransaction) []BondingCurveReserve {
	p := NewTransactionParserFromRaw(tx)
	if !p.complete() {
		return nil
	}
	var out []BondingCurveReserve
	for _, event := range p.pumpfunTradeEvents() {
		out = append(out, BondingCurveReserve{
			Mint:                 event.Mint,
			VirtualSolReserves:   event.VirtualSolReserves,
			VirtualTokenReserves: event.VirtualTokenReserves,
		})
	}
	return out
}
